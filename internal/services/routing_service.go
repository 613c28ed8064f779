package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/internal/access"
	"github.com/xamero/smartdocs/internal/lifecycle"
	"github.com/xamero/smartdocs/internal/metrics"
	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/validation"
)

// RouteRequest describes a routing command
type RouteRequest struct {
	ToOfficeIDs  []uuid.UUID `json:"to_office_ids" validate:"required,min=1"`
	Remarks      string      `json:"remarks" validate:"max=1000"`
	CreateCopies bool        `json:"create_copies"`
}

// RoutingResult is what a routing command produced
type RoutingResult struct {
	Document *models.Document         `json:"document"`
	Routings []models.DocumentRouting `json:"routings"`
	Copies   []models.Document        `json:"copies,omitempty"`
}

// routedNotice is a NotificationSink call deferred until commit
type routedNotice struct {
	doc     *models.Document
	office  uuid.UUID
	remarks string
}

// RoutingService moves documents between offices
type RoutingService struct {
	base
	copies *CopyManager
}

// NewRoutingService creates a new routing service
func NewRoutingService(db, readOnlyDB *gorm.DB, opts Options) *RoutingService {
	return &RoutingService{
		base:   newBase(db, readOnlyDB, opts),
		copies: NewCopyManager(db, readOnlyDB),
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Route sends a document to one or more offices. Several destinations, or
// an explicit copy request, distribute copies of a main document; otherwise
// the document itself changes hands.
func (s *RoutingService) Route(ctx context.Context, documentID uuid.UUID, req RouteRequest, actor *models.User) (result *RoutingResult, err error) {
	txn := s.opts.Tracer.StartTransaction("route-document")
	defer s.opts.Tracer.EndTransaction(txn)
	s.opts.Tracer.AddAttribute(txn, "document_id", documentID.String())

	started := time.Now()
	defer func() { s.opts.Metrics.RecordOperation(metrics.DocumentsRouted, started, err) }()

	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}
	dests := dedupe(req.ToOfficeIDs)
	if len(dests) == 0 {
		return nil, errors.Wrap(models.ErrValidation, "at least one destination office is required")
	}

	var (
		notices []routedNotice
		touched []*models.Document
	)
	now := s.now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		documents := s.documents.WithTx(tx)
		routings := s.routings.WithTx(tx)

		doc, err := documents.LockByID(ctx, documentID)
		if err != nil {
			return err
		}
		if err := authorize(ctx, tx, &s.base, actor, access.Route, doc); err != nil {
			return err
		}
		if doc.Kind() == models.KindCopy && len(dests) > 1 {
			return errors.Wrapf(models.ErrValidation, "copy %s can only be routed to a single office", doc.ID)
		}

		active, err := s.offices.WithTx(tx).GetActiveByIDs(ctx, dests)
		if err != nil {
			return err
		}
		for _, id := range dests {
			if _, ok := active[id]; !ok {
				return errors.Wrapf(models.ErrInvalidDestination, "office %s does not exist or is inactive", id)
			}
		}

		if _, err := lifecycle.Route(doc.Status); err != nil {
			return errors.Wrapf(err, "document %s", doc.ID)
		}

		maxSeq, err := routings.MaxSequence(ctx, doc.ID)
		if err != nil {
			return err
		}

		createCopies := (req.CreateCopies || len(dests) > 1) && doc.Kind() == models.KindMain
		result = &RoutingResult{Document: doc}

		if createCopies {
			span := s.opts.Tracer.StartSpan("create-copies", txn)
			defer span.End()

			for i, dest := range dests {
				created, err := s.copies.CreateCopy(ctx, tx, doc, dest, req.Remarks, actor, maxSeq+i+1, now)
				if err != nil {
					return err
				}
				result.Copies = append(result.Copies, *created.Copy)
				result.Routings = append(result.Routings, *created.Summary, *created.Routing)
				notices = append(notices, routedNotice{doc: created.Copy, office: dest, remarks: req.Remarks})
				touched = append(touched, created.Copy)
			}
			touched = append(touched, doc)
			return nil
		}

		// Route already refuses in_transit documents; the routing table is
		// checked too in case the status was edited out of band.
		inFlight, err := routings.InFlightTransfer(ctx, doc.ID)
		if err != nil {
			return err
		}
		if inFlight != nil {
			return errors.Wrapf(models.ErrInvalidState, "document %s already has routing %s in flight", doc.ID, inFlight.ID)
		}

		next, err := lifecycle.Route(doc.Status)
		if err != nil {
			return err
		}

		dest := dests[0]
		origin := doc.CurrentOfficeID
		routing := &models.DocumentRouting{
			DocumentID:   doc.ID,
			FromOfficeID: &origin,
			ToOfficeID:   dest,
			RoutedBy:     actor.ID,
			Remarks:      req.Remarks,
			Status:       models.RoutingInTransit,
			RoutedAt:     now,
			Sequence:     maxSeq + 1,
		}
		if err := routings.Create(ctx, routing); err != nil {
			return err
		}

		// The event carries the sending office, so snapshot before custody moves
		sent := *doc
		notices = append(notices, routedNotice{doc: &sent, office: dest, remarks: req.Remarks})

		doc.Status = next
		doc.CurrentOfficeID = dest
		if err := documents.Save(ctx, doc); err != nil {
			return err
		}

		result.Routings = append(result.Routings, *routing)
		touched = append(touched, doc)
		return nil
	})
	if err != nil {
		s.opts.Tracer.RecordError(txn, err)
		return nil, err
	}

	if len(result.Copies) > 0 {
		s.opts.Metrics.IncrementCounterBy(metrics.CopiesCreated, int64(len(result.Copies)))
	}

	log.Info().
		Str("document_id", documentID.String()).
		Str("actor_id", actor.ID.String()).
		Int("destinations", len(dests)).
		Int("copies", len(result.Copies)).
		Msg("Document routed")

	for _, n := range notices {
		s.opts.Notifier.NotifyDocumentRouted(ctx, n.doc, n.office, n.remarks)
	}
	s.afterCommit(ctx, touched...)

	return result, nil
}

// Receive confirms that the destination office of an in-flight routing now
// holds the document
func (s *RoutingService) Receive(ctx context.Context, documentID, routingID uuid.UUID, actor *models.User) (routing *models.DocumentRouting, err error) {
	txn := s.opts.Tracer.StartTransaction("receive-document")
	defer s.opts.Tracer.EndTransaction(txn)

	started := time.Now()
	defer func() { s.opts.Metrics.RecordOperation(metrics.DocumentsReceived, started, err) }()

	var doc *models.Document
	now := s.now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		documents := s.documents.WithTx(tx)
		routings := s.routings.WithTx(tx)

		doc, err = documents.LockByID(ctx, documentID)
		if err != nil {
			return err
		}
		routing, err = routings.GetByID(ctx, routingID)
		if err != nil {
			return err
		}
		if routing.DocumentID != doc.ID {
			return errors.Wrapf(models.ErrNotFound, "routing %s does not belong to document %s", routingID, doc.ID)
		}
		if !actor.InOffice(routing.ToOfficeID) {
			return errors.Wrapf(models.ErrForbidden, "routing %s can only be received by office %s", routingID, routing.ToOfficeID)
		}
		if routing.IsSummary() {
			return errors.Wrapf(models.ErrInvalidState, "routing %s records a copy; receive copy %s instead", routingID, *routing.CopyDocumentID)
		}
		if !routing.Status.InFlight() {
			return errors.Wrapf(models.ErrInvalidState, "routing %s is already %s", routingID, routing.Status)
		}

		next, err := lifecycle.Receive(doc.Status)
		if err != nil {
			return errors.Wrapf(err, "document %s", doc.ID)
		}

		receiver := actor.ID
		routing.Status = models.RoutingReceived
		routing.ReceivedBy = &receiver
		routing.ReceivedAt = &now
		if err := routings.Save(ctx, routing); err != nil {
			return err
		}

		doc.Status = next
		doc.CurrentOfficeID = routing.ToOfficeID
		if err := documents.Save(ctx, doc); err != nil {
			return err
		}

		if doc.Kind() == models.KindCopy {
			return mirrorSummary(ctx, s, tx, doc, func(summary *models.DocumentRouting) {
				summary.Status = models.RoutingReceived
				summary.ReceivedBy = &receiver
				summary.ReceivedAt = &now
			})
		}
		return nil
	})
	if err != nil {
		s.opts.Tracer.RecordError(txn, err)
		return nil, err
	}

	log.Info().
		Str("document_id", doc.ID.String()).
		Str("routing_id", routing.ID.String()).
		Str("office_id", routing.ToOfficeID.String()).
		Msg("Document received")

	s.opts.Notifier.NotifyDocumentReceived(ctx, doc, actor)
	s.afterCommit(ctx, doc)

	return routing, nil
}

// Cancel withdraws an in-flight routing. The routing row is deleted and the
// document falls back to registered, or received if it was ever received.
func (s *RoutingService) Cancel(ctx context.Context, documentID, routingID uuid.UUID, actor *models.User) (err error) {
	txn := s.opts.Tracer.StartTransaction("cancel-routing")
	defer s.opts.Tracer.EndTransaction(txn)

	started := time.Now()
	defer func() { s.opts.Metrics.RecordOperation(metrics.RoutingsCancelled, started, err) }()

	var doc *models.Document
	now := s.now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		documents := s.documents.WithTx(tx)
		routings := s.routings.WithTx(tx)

		doc, err = documents.LockByID(ctx, documentID)
		if err != nil {
			return err
		}
		routing, err := routings.GetByID(ctx, routingID)
		if err != nil {
			return err
		}
		if routing.DocumentID != doc.ID {
			return errors.Wrapf(models.ErrNotFound, "routing %s does not belong to document %s", routingID, doc.ID)
		}
		if routing.IsSummary() {
			return errors.Wrapf(models.ErrInvalidState, "routing %s records a copy; cancel the copy's routing instead", routingID)
		}
		if !routing.Status.InFlight() {
			return errors.Wrapf(models.ErrInvalidState, "routing %s is %s and can no longer be cancelled", routingID, routing.Status)
		}
		sender := routing.FromOfficeID != nil && actor.InOffice(*routing.FromOfficeID)
		if !sender && !actor.IsAdmin() {
			return errors.Wrapf(models.ErrForbidden, "only the sending office can cancel routing %s", routingID)
		}

		if err := routings.Delete(ctx, routing.ID); err != nil {
			return err
		}

		received, err := routings.HasReceived(ctx, doc.ID)
		if err != nil {
			return err
		}
		next, err := lifecycle.Cancel(doc.Status, received)
		if err != nil {
			return errors.Wrapf(err, "document %s", doc.ID)
		}
		doc.Status = next
		if err := documents.Save(ctx, doc); err != nil {
			return err
		}

		if doc.Kind() == models.KindCopy {
			return mirrorSummary(ctx, s, tx, doc, func(summary *models.DocumentRouting) {
				summary.Status = models.RoutingReturned
				summary.ReturnedAt = &now
			})
		}
		return nil
	})
	if err != nil {
		s.opts.Tracer.RecordError(txn, err)
		return err
	}

	log.Info().
		Str("document_id", doc.ID.String()).
		Str("routing_id", routingID.String()).
		Str("status", string(doc.Status)).
		Msg("Routing cancelled")

	s.afterCommit(ctx, doc)
	return nil
}

// mirrorSummary applies update to the main document's in-flight summary
// routing for cp, if there is one
func mirrorSummary(ctx context.Context, s *RoutingService, tx *gorm.DB, cp *models.Document, update func(*models.DocumentRouting)) error {
	routings := s.routings.WithTx(tx)
	summary, err := routings.SummaryForCopy(ctx, cp.ID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !summary.Status.InFlight() {
		return nil
	}
	update(summary)
	return routings.Save(ctx, summary)
}
