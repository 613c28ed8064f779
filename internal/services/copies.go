package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/repositories"
	"github.com/xamero/smartdocs/internal/tracking"
)

// CopyResult is what CreateCopy writes
type CopyResult struct {
	Copy    *models.Document
	Routing *models.DocumentRouting
	Summary *models.DocumentRouting
}

// HistoryEntry is one routing in a document's combined history
type HistoryEntry struct {
	models.DocumentRouting
	DocumentKind   string `json:"document_kind"`
	TrackingNumber string `json:"tracking_number"`
	CopyNumber     *int   `json:"copy_number,omitempty"`
}

// CopyManager creates copies of main documents and merges their histories
type CopyManager struct {
	documents *repositories.DocumentRepository
	routings  *repositories.RoutingRepository
}

// NewCopyManager creates a new copy manager
func NewCopyManager(db, readOnlyDB *gorm.DB) *CopyManager {
	return &CopyManager{
		documents: repositories.NewDocumentRepository(db, readOnlyDB),
		routings:  repositories.NewRoutingRepository(db, readOnlyDB),
	}
}

func summaryRemarks(remarks string, copyNumber int) string {
	if remarks == "" {
		return fmt.Sprintf("Copy #%d created and routed", copyNumber)
	}
	return fmt.Sprintf("%s - Copy #%d created and routed", remarks, copyNumber)
}

// CreateCopy clones main into a new copy routed to dest and appends the
// summary routing to main at summarySequence. tx must hold the lock on main.
func (m *CopyManager) CreateCopy(ctx context.Context, tx *gorm.DB, main *models.Document, dest uuid.UUID, remarks string, actor *models.User, summarySequence int, now time.Time) (*CopyResult, error) {
	if main.Kind() == models.KindCopy {
		return nil, errors.Wrapf(models.ErrValidation, "document %s is a copy and cannot be copied", main.ID)
	}

	documents := m.documents.WithTx(tx)
	routings := m.routings.WithTx(tx)

	last, err := documents.MaxCopyNumber(ctx, main.ID)
	if err != nil {
		return nil, err
	}
	number := last + 1
	origin := main.CurrentOfficeID

	mainID := main.ID
	receiving := dest
	cp := &models.Document{
		TrackingNumber:    tracking.CopyTrackingNumber(main.TrackingNumber, number),
		Title:             main.Title,
		Description:       main.Description,
		DocumentType:      main.DocumentType,
		Source:            main.Source,
		Priority:          main.Priority,
		Confidentiality:   main.Confidentiality,
		Status:            models.StatusInTransit,
		CurrentOfficeID:   origin,
		ReceivingOfficeID: &receiving,
		CreatedBy:         main.CreatedBy,
		RegisteredBy:      main.RegisteredBy,
		DateReceived:      main.DateReceived,
		DateDue:           main.DateDue,
		Metadata:          append([]byte(nil), main.Metadata...),
		ParentDocumentID:  &mainID,
		IsCopy:            true,
		CopyNumber:        &number,
	}
	if err := documents.Create(ctx, cp); err != nil {
		return nil, err
	}

	routing := &models.DocumentRouting{
		DocumentID:   cp.ID,
		FromOfficeID: &origin,
		ToOfficeID:   dest,
		RoutedBy:     actor.ID,
		Remarks:      remarks,
		Status:       models.RoutingInTransit,
		RoutedAt:     now,
		Sequence:     1,
	}
	if err := routings.Create(ctx, routing); err != nil {
		return nil, err
	}

	copyID := cp.ID
	summary := &models.DocumentRouting{
		DocumentID:     main.ID,
		FromOfficeID:   &origin,
		ToOfficeID:     dest,
		RoutedBy:       actor.ID,
		Remarks:        summaryRemarks(remarks, number),
		Status:         models.RoutingInTransit,
		RoutedAt:       now,
		Sequence:       summarySequence,
		CopyDocumentID: &copyID,
	}
	if err := routings.Create(ctx, summary); err != nil {
		return nil, err
	}

	return &CopyResult{Copy: cp, Routing: routing, Summary: summary}, nil
}

// AggregateRoutings returns the routings of a main document and all of its
// copies ordered by routed_at. Ties put the main document first, then
// follow sequence.
func (m *CopyManager) AggregateRoutings(ctx context.Context, mainID uuid.UUID) ([]HistoryEntry, error) {
	main, err := m.documents.GetByID(ctx, mainID)
	if err != nil {
		return nil, err
	}
	if main.Kind() == models.KindCopy {
		return nil, errors.Wrapf(models.ErrValidation, "document %s is a copy", mainID)
	}

	copies, err := m.documents.ListCopies(ctx, main.ID)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.Document, len(copies)+1)
	ids := make([]uuid.UUID, 0, len(copies)+1)
	byID[main.ID] = main
	ids = append(ids, main.ID)
	for i := range copies {
		byID[copies[i].ID] = &copies[i]
		ids = append(ids, copies[i].ID)
	}

	routings, err := m.routings.ListByDocuments(ctx, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(routings))
	for _, r := range routings {
		doc := byID[r.DocumentID]
		entries = append(entries, HistoryEntry{
			DocumentRouting: r,
			DocumentKind:    doc.Kind().String(),
			TrackingNumber:  doc.TrackingNumber,
			CopyNumber:      doc.CopyNumber,
		})
	}

	sortHistory(entries)
	return entries, nil
}

// OwnHistory returns a single document's routings without merging copies
func (m *CopyManager) OwnHistory(ctx context.Context, doc *models.Document) ([]HistoryEntry, error) {
	routings, err := m.routings.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(routings))
	for _, r := range routings {
		entries = append(entries, HistoryEntry{
			DocumentRouting: r,
			DocumentKind:    doc.Kind().String(),
			TrackingNumber:  doc.TrackingNumber,
			CopyNumber:      doc.CopyNumber,
		})
	}
	sortHistory(entries)
	return entries, nil
}

func sortHistory(entries []HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.RoutedAt.Equal(b.RoutedAt) {
			return a.RoutedAt.Before(b.RoutedAt)
		}
		aMain := a.DocumentKind == models.KindMain.String()
		bMain := b.DocumentKind == models.KindMain.String()
		if aMain != bMain {
			return aMain
		}
		return a.Sequence < b.Sequence
	})
}
