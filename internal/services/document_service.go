package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/internal/access"
	"github.com/xamero/smartdocs/internal/cache"
	"github.com/xamero/smartdocs/internal/lifecycle"
	"github.com/xamero/smartdocs/internal/metrics"
	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/repositories"
	"github.com/xamero/smartdocs/internal/search"
	"github.com/xamero/smartdocs/internal/tracking"
	"github.com/xamero/smartdocs/internal/validation"
)

// RegisterDocumentRequest is the input for registering a document
type RegisterDocumentRequest struct {
	Title             string                 `json:"title" validate:"required,max=255"`
	Description       string                 `json:"description" validate:"max=5000"`
	DocumentType      models.DocumentType    `json:"document_type" validate:"required,oneof=incoming outgoing internal"`
	Source            string                 `json:"source" validate:"max=255"`
	Priority          models.Priority        `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Confidentiality   models.Confidentiality `json:"confidentiality" validate:"omitempty,oneof=public confidential restricted"`
	ReceivingOfficeID *uuid.UUID             `json:"receiving_office_id"`
	DateReceived      *time.Time             `json:"date_received"`
	DateDue           *time.Time             `json:"date_due"`
	TrackingPrefix    string                 `json:"prefix" validate:"omitempty,tracking_prefix"`
	Metadata          map[string]interface{} `json:"metadata"`
}

// UpdateDocumentRequest changes descriptive fields. Status only moves
// through the lifecycle commands.
type UpdateDocumentRequest struct {
	Title           *string                 `json:"title" validate:"omitnil,min=1,max=255"`
	Description     *string                 `json:"description" validate:"omitnil,max=5000"`
	DocumentType    *models.DocumentType    `json:"document_type" validate:"omitnil,oneof=incoming outgoing internal"`
	Source          *string                 `json:"source" validate:"omitnil,max=255"`
	Priority        *models.Priority        `json:"priority" validate:"omitnil,oneof=low normal high urgent"`
	Confidentiality *models.Confidentiality `json:"confidentiality" validate:"omitnil,oneof=public confidential restricted"`
	DateReceived    *time.Time              `json:"date_received"`
	DateDue         *time.Time              `json:"date_due"`
	Metadata        map[string]interface{}  `json:"metadata"`
}

// ActionRequest records an office acting on a document
type ActionRequest struct {
	ActionType           models.ActionType `json:"action_type" validate:"required,oneof=approve note comply sign return forward"`
	Remarks              string            `json:"remarks" validate:"max=5000"`
	MemoFilePath         *string           `json:"memo_file_path"`
	IsOfficeHeadApproval bool              `json:"is_office_head_approval"`
}

// History is a document's routing trail and action log
type History struct {
	Document *models.Document        `json:"document"`
	Routings []HistoryEntry          `json:"routings"`
	Actions  []models.DocumentAction `json:"actions"`
}

// DocumentService registers documents and drives the non-routing parts of
// their lifecycle
type DocumentService struct {
	base
	allocator *tracking.Allocator
	qr        *QRCodeService
	copies    *CopyManager
}

// NewDocumentService creates a new document service. qr may be nil.
func NewDocumentService(db, readOnlyDB *gorm.DB, allocator *tracking.Allocator, qr *QRCodeService, opts Options) *DocumentService {
	return &DocumentService{
		base:      newBase(db, readOnlyDB, opts),
		allocator: allocator,
		qr:        qr,
		copies:    NewCopyManager(db, readOnlyDB),
	}
}

func checkDates(received, due *time.Time) error {
	if received != nil && due != nil && due.Before(*received) {
		return errors.Wrap(models.ErrValidation, "date_due must be on or after date_received")
	}
	return nil
}

func marshalMetadata(meta map[string]interface{}) (datatypes.JSON, error) {
	if meta == nil {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, errors.Wrap(models.ErrValidation, "metadata must be a JSON object")
	}
	return datatypes.JSON(data), nil
}

// Register creates a document with a freshly allocated tracking number
func (s *DocumentService) Register(ctx context.Context, actor *models.User, req RegisterDocumentRequest) (doc *models.Document, err error) {
	txn := s.opts.Tracer.StartTransaction("register-document")
	defer s.opts.Tracer.EndTransaction(txn)

	started := time.Now()
	defer func() { s.opts.Metrics.RecordOperation(metrics.DocumentsRegistered, started, err) }()

	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := checkDates(req.DateReceived, req.DateDue); err != nil {
		return nil, err
	}

	office := req.ReceivingOfficeID
	if office == nil {
		office = actor.OfficeID
	}
	if office == nil {
		return nil, errors.Wrap(models.ErrValidation, "receiving_office_id is required when the user has no office")
	}

	meta, err := marshalMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	confidentiality := req.Confidentiality
	if confidentiality == "" {
		confidentiality = models.ConfidentialityPublic
	}
	now := s.now()
	received := req.DateReceived
	if received == nil {
		received = &now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.ReceivingOfficeID != nil {
			active, err := s.offices.WithTx(tx).GetActiveByIDs(ctx, []uuid.UUID{*req.ReceivingOfficeID})
			if err != nil {
				return err
			}
			if _, ok := active[*req.ReceivingOfficeID]; !ok {
				return errors.Wrapf(models.ErrInvalidDestination, "office %s does not exist or is inactive", *req.ReceivingOfficeID)
			}
		}

		span := s.opts.Tracer.StartSpan("allocate-tracking-number", txn)
		number, err := s.allocator.Generate(tx, req.DocumentType, req.TrackingPrefix)
		span.End()
		if err != nil {
			return err
		}

		doc = &models.Document{
			TrackingNumber:    number,
			Title:             req.Title,
			Description:       req.Description,
			DocumentType:      req.DocumentType,
			Source:            req.Source,
			Priority:          priority,
			Confidentiality:   confidentiality,
			Status:            models.StatusRegistered,
			CurrentOfficeID:   *office,
			ReceivingOfficeID: req.ReceivingOfficeID,
			CreatedBy:         actor.ID,
			RegisteredBy:      actor.ID,
			DateReceived:      received,
			DateDue:           req.DateDue,
			Metadata:          meta,
		}
		if err := s.documents.WithTx(tx).Create(ctx, doc); err != nil {
			return err
		}

		if s.qr.Enabled() {
			if _, err := s.qr.Generate(ctx, tx, doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.opts.Tracer.RecordError(txn, err)
		return nil, err
	}

	s.opts.Metrics.IncrementCounter(metrics.DocumentsRegistered)
	log.Info().
		Str("document_id", doc.ID.String()).
		Str("tracking_number", doc.TrackingNumber).
		Str("office_id", doc.CurrentOfficeID.String()).
		Msg("Document registered")

	s.afterCommit(ctx, doc)
	return doc, nil
}

// load reads a document through the cache
func (s *DocumentService) load(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := s.opts.Cache.Get(ctx, cache.DocumentKey(id), &doc)
	if err == nil {
		return &doc, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Str("document_id", id.String()).Msg("Document cache read failed")
	}

	loaded, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.opts.Cache.Set(ctx, cache.DocumentKey(id), loaded); err != nil {
		log.Warn().Err(err).Str("document_id", id.String()).Msg("Document cache write failed")
	}
	return loaded, nil
}

func (s *DocumentService) check(ctx context.Context, actor *models.User, capability access.Capability, doc *models.Document) error {
	f, err := facts(ctx, s.documents, s.routings, doc)
	if err != nil {
		return err
	}
	return access.Authorize(actor, capability, f)
}

// Get returns a document the actor may view
func (s *DocumentService) Get(ctx context.Context, actor *models.User, id uuid.UUID) (*models.Document, error) {
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, actor, access.View, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns one page of the documents the actor may view
func (s *DocumentService) List(ctx context.Context, actor *models.User, filter repositories.DocumentFilter) ([]models.Document, int64, error) {
	filter.VisibleTo = nil
	if !actor.IsAdmin() {
		if actor.OfficeID == nil {
			return []models.Document{}, 0, nil
		}
		filter.VisibleTo = actor.OfficeID
	}
	return s.documents.List(ctx, filter, s.now())
}

// Update edits descriptive fields of a document
func (s *DocumentService) Update(ctx context.Context, actor *models.User, id uuid.UUID, req UpdateDocumentRequest) (*models.Document, error) {
	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}
	meta, err := marshalMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	var doc *models.Document
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		documents := s.documents.WithTx(tx)

		doc, err = documents.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(ctx, tx, &s.base, actor, access.Edit, doc); err != nil {
			return err
		}

		if req.Title != nil {
			doc.Title = *req.Title
		}
		if req.Description != nil {
			doc.Description = *req.Description
		}
		if req.DocumentType != nil {
			doc.DocumentType = *req.DocumentType
		}
		if req.Source != nil {
			doc.Source = *req.Source
		}
		if req.Priority != nil {
			doc.Priority = *req.Priority
		}
		if req.Confidentiality != nil {
			doc.Confidentiality = *req.Confidentiality
		}
		if req.DateReceived != nil {
			doc.DateReceived = req.DateReceived
		}
		if req.DateDue != nil {
			doc.DateDue = req.DateDue
		}
		if meta != nil {
			doc.Metadata = meta
		}
		if err := checkDates(doc.DateReceived, doc.DateDue); err != nil {
			return err
		}
		return documents.Save(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, doc)
	return doc, nil
}

// RecordAction appends an action taken by the actor's office and applies
// the status change it implies
func (s *DocumentService) RecordAction(ctx context.Context, actor *models.User, id uuid.UUID, req ActionRequest) (action *models.DocumentAction, err error) {
	started := time.Now()
	defer func() { s.opts.Metrics.RecordOperation(metrics.ActionsRecorded, started, err) }()

	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}
	if actor.OfficeID == nil {
		return nil, errors.Wrap(models.ErrValidation, "actions are recorded on behalf of an office")
	}

	var doc *models.Document
	now := s.now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		documents := s.documents.WithTx(tx)

		doc, err = documents.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(ctx, tx, &s.base, actor, access.TakeAction, doc); err != nil {
			return err
		}

		next, err := lifecycle.Action(doc.Status, req.ActionType)
		if err != nil {
			return errors.Wrapf(err, "document %s", doc.ID)
		}

		action = &models.DocumentAction{
			DocumentID:           doc.ID,
			OfficeID:             *actor.OfficeID,
			ActionBy:             actor.ID,
			ActionType:           req.ActionType,
			Remarks:              req.Remarks,
			MemoFilePath:         req.MemoFilePath,
			IsOfficeHeadApproval: req.IsOfficeHeadApproval,
			ActionAt:             now,
		}
		if err := s.actions.WithTx(tx).Create(ctx, action); err != nil {
			return err
		}

		if next == doc.Status {
			return nil
		}
		doc.Status = next
		return documents.Save(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	s.opts.Metrics.IncrementCounter(metrics.ActionsRecorded)
	log.Info().
		Str("document_id", doc.ID.String()).
		Str("action", string(req.ActionType)).
		Str("status", string(doc.Status)).
		Msg("Action recorded")

	s.afterCommit(ctx, doc)
	return action, nil
}

// transition locks a document, checks capability and applies apply
func (s *DocumentService) transition(ctx context.Context, actor *models.User, id uuid.UUID, capability access.Capability, apply func(doc *models.Document) error) (*models.Document, error) {
	var doc *models.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		documents := s.documents.WithTx(tx)

		var err error
		doc, err = documents.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(ctx, tx, &s.base, actor, capability, doc); err != nil {
			return err
		}
		if err := apply(doc); err != nil {
			return errors.Wrapf(err, "document %s", doc.ID)
		}
		return documents.Save(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("document_id", doc.ID.String()).
		Str("status", string(doc.Status)).
		Msg("Document status changed")

	s.afterCommit(ctx, doc)
	return doc, nil
}

// Complete closes a received or in-action document
func (s *DocumentService) Complete(ctx context.Context, actor *models.User, id uuid.UUID) (*models.Document, error) {
	return s.transition(ctx, actor, id, access.Update, func(doc *models.Document) error {
		next, err := lifecycle.Complete(doc.Status)
		if err != nil {
			return err
		}
		doc.Status = next
		return nil
	})
}

// Archive moves a document to the archive. Custody is unchanged.
func (s *DocumentService) Archive(ctx context.Context, actor *models.User, id uuid.UUID) (*models.Document, error) {
	doc, err := s.transition(ctx, actor, id, access.Archive, func(doc *models.Document) error {
		next, err := lifecycle.Archive(doc.Status)
		if err != nil {
			return err
		}
		now := s.now()
		doc.Status = next
		doc.IsArchived = true
		doc.ArchivedAt = &now
		return nil
	})
	if err == nil {
		s.opts.Metrics.IncrementCounter(metrics.DocumentsArchived)
	}
	return doc, err
}

// Restore brings an archived document back as completed
func (s *DocumentService) Restore(ctx context.Context, actor *models.User, id uuid.UUID) (*models.Document, error) {
	return s.transition(ctx, actor, id, access.Archive, func(doc *models.Document) error {
		next, err := lifecycle.Restore(doc.Status)
		if err != nil {
			return err
		}
		doc.Status = next
		doc.IsArchived = false
		doc.ArchivedAt = nil
		return nil
	})
}

// Delete soft-deletes a document
func (s *DocumentService) Delete(ctx context.Context, actor *models.User, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		documents := s.documents.WithTx(tx)

		doc, err := documents.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(ctx, tx, &s.base, actor, access.Delete, doc); err != nil {
			return err
		}
		return documents.SoftDelete(ctx, doc.ID)
	})
	if err != nil {
		return err
	}

	log.Info().Str("document_id", id.String()).Str("actor_id", actor.ID.String()).Msg("Document deleted")

	if err := s.opts.Cache.Delete(ctx, cache.DocumentKey(id), cache.HistoryKey(id)); err != nil {
		log.Warn().Err(err).Str("document_id", id.String()).Msg("Failed to invalidate document cache")
	}
	if err := s.opts.Indexer.DeleteDocument(ctx, id); err != nil {
		log.Warn().Err(err).Str("document_id", id.String()).Msg("Failed to remove document from index")
	}
	return nil
}

// RestoreDeleted undoes a soft delete
func (s *DocumentService) RestoreDeleted(ctx context.Context, actor *models.User, id uuid.UUID) (*models.Document, error) {
	doc, err := s.documents.GetDeletedByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, actor, access.RestoreDelete, doc); err != nil {
		return nil, err
	}
	if err := s.documents.Restore(ctx, id); err != nil {
		return nil, err
	}
	doc.DeletedAt = gorm.DeletedAt{}

	s.afterCommit(ctx, doc)
	return doc, nil
}

// History returns the routing trail and actions of a document. A main
// document's trail includes the routings of all its copies.
func (s *DocumentService) History(ctx context.Context, actor *models.User, id uuid.UUID) (*History, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, actor, access.View, doc); err != nil {
		return nil, err
	}

	var cached History
	if err := s.opts.Cache.Get(ctx, cache.HistoryKey(id), &cached); err == nil {
		return &cached, nil
	}

	var routings []HistoryEntry
	if doc.Kind() == models.KindMain {
		routings, err = s.copies.AggregateRoutings(ctx, doc.ID)
	} else {
		routings, err = s.copies.OwnHistory(ctx, doc)
	}
	if err != nil {
		return nil, err
	}

	actions, err := s.actions.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	history := &History{Document: doc, Routings: routings, Actions: actions}
	if err := s.opts.Cache.Set(ctx, cache.HistoryKey(id), history); err != nil {
		log.Warn().Err(err).Str("document_id", id.String()).Msg("History cache write failed")
	}
	return history, nil
}

// Search finds documents the actor may view. Falls back to a database
// LIKE query when no search cluster is configured.
func (s *DocumentService) Search(ctx context.Context, actor *models.User, text string, limit int) ([]search.Hit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if !s.opts.Indexer.Enabled() {
		docs, _, err := s.List(ctx, actor, repositories.DocumentFilter{Search: text, PerPage: limit})
		if err != nil {
			return nil, err
		}
		hits := make([]search.Hit, 0, len(docs))
		for _, d := range docs {
			hits = append(hits, search.Hit{ID: d.ID, TrackingNumber: d.TrackingNumber, Title: d.Title, Status: string(d.Status)})
		}
		return hits, nil
	}

	candidates, err := s.opts.Indexer.SearchDocuments(ctx, search.Query{Text: text, Limit: limit})
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return candidates, nil
	}

	ids := make([]uuid.UUID, 0, len(candidates))
	for _, h := range candidates {
		ids = append(ids, h.ID)
	}
	docs, err := s.documents.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	visible := make(map[uuid.UUID]bool, len(docs))
	for i := range docs {
		f, err := facts(ctx, s.documents, s.routings, &docs[i])
		if err != nil {
			return nil, err
		}
		visible[docs[i].ID] = access.CanView(actor, f)
	}

	hits := make([]search.Hit, 0, len(candidates))
	for _, h := range candidates {
		if visible[h.ID] {
			hits = append(hits, h)
		}
	}
	return hits, nil
}

// QRCode returns the active verification code of a document the actor may view
func (s *DocumentService) QRCode(ctx context.Context, actor *models.User, id uuid.UUID) (*models.QRCode, error) {
	if !s.qr.Enabled() {
		return nil, errors.Wrap(models.ErrNotFound, "qr codes are disabled")
	}
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.qr.ForDocument(ctx, id)
}

// RegenerateQRCode replaces a document's verification code
func (s *DocumentService) RegenerateQRCode(ctx context.Context, actor *models.User, id uuid.UUID) (*models.QRCode, error) {
	if !s.qr.Enabled() {
		return nil, errors.Wrap(models.ErrInvalidState, "qr codes are disabled")
	}

	var qr *models.QRCode
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := s.documents.WithTx(tx).LockByID(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(ctx, tx, &s.base, actor, access.Update, doc); err != nil {
			return err
		}
		qr, err = s.qr.Generate(ctx, tx, doc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return qr, nil
}
