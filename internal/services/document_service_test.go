package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/repositories"
	"github.com/xamero/smartdocs/internal/search"
	"github.com/xamero/smartdocs/internal/testutil"
)

// MockIndexer is a mock implementation of DocumentIndexer
type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) Enabled() bool {
	return m.Called().Bool(0)
}

func (m *MockIndexer) IndexDocument(ctx context.Context, doc *models.Document) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *MockIndexer) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockIndexer) SearchDocuments(ctx context.Context, q search.Query) ([]search.Hit, error) {
	args := m.Called(ctx, q)
	if hits := args.Get(0); hits != nil {
		return hits.([]search.Hit), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRegisterDocument(t *testing.T) {
	f := newFixture(t)
	year := time.Now().Year()

	doc, err := f.documents.Register(f.ctx, f.clerk, RegisterDocumentRequest{
		Title:        "Purchase request",
		DocumentType: models.DocumentTypeIncoming,
		Metadata:     map[string]interface{}{"supplier": "ACME"},
	})
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("IN-%d-000001", year), doc.TrackingNumber)
	assert.Equal(t, models.StatusRegistered, doc.Status)
	assert.Equal(t, models.PriorityNormal, doc.Priority)
	assert.Equal(t, models.ConfidentialityPublic, doc.Confidentiality)
	assert.Equal(t, f.registry.ID, doc.CurrentOfficeID)
	assert.Equal(t, f.clerk.ID, doc.CreatedBy)
	assert.NotNil(t, doc.DateReceived)
	assert.JSONEq(t, `{"supplier":"ACME"}`, string(doc.Metadata))

	second, err := f.documents.Register(f.ctx, f.clerk, RegisterDocumentRequest{Title: "Follow up", DocumentType: models.DocumentTypeIncoming})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("IN-%d-000002", year), second.TrackingNumber)

	custom, err := f.documents.Register(f.ctx, f.clerk, RegisterDocumentRequest{
		Title:             "Memo",
		DocumentType:      models.DocumentTypeInternal,
		TrackingPrefix:    "fin",
		ReceivingOfficeID: &f.finance.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("FIN-%d-000001", year), custom.TrackingNumber)
	assert.Equal(t, f.finance.ID, custom.CurrentOfficeID)

	var qr models.QRCode
	require.NoError(t, f.db.Where("document_id = ?", doc.ID).First(&qr).Error)
	assert.True(t, qr.IsActive)
	assert.Len(t, qr.Code, 32)
	assert.Len(t, qr.Hash, 64)
	assert.Equal(t, "https://docs.example.com/api/v1/verify/"+qr.Code, qr.VerificationURL)
}

func TestRegisterDocumentValidation(t *testing.T) {
	f := newFixture(t)
	received := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	due := received.AddDate(0, 0, -1)

	tests := []struct {
		name  string
		actor *models.User
		req   RegisterDocumentRequest
		want  error
	}{
		{"missing title", f.clerk, RegisterDocumentRequest{DocumentType: models.DocumentTypeIncoming}, models.ErrValidation},
		{"bad type", f.clerk, RegisterDocumentRequest{Title: "x", DocumentType: "fax"}, models.ErrValidation},
		{"bad prefix", f.clerk, RegisterDocumentRequest{Title: "x", DocumentType: models.DocumentTypeIncoming, TrackingPrefix: "T1"}, models.ErrValidation},
		{"due before received", f.clerk, RegisterDocumentRequest{Title: "x", DocumentType: models.DocumentTypeIncoming, DateReceived: &received, DateDue: &due}, models.ErrValidation},
		{"no office", f.admin, RegisterDocumentRequest{Title: "x", DocumentType: models.DocumentTypeIncoming}, models.ErrValidation},
		{"unknown office", f.clerk, RegisterDocumentRequest{Title: "x", DocumentType: models.DocumentTypeIncoming, ReceivingOfficeID: uuidPtr(uuid.New())}, models.ErrInvalidDestination},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.documents.Register(f.ctx, tt.actor, tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Document{}).Count(&count).Error)
	assert.Zero(t, count)
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func TestGetAndUpdate(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	got, err := f.documents.Get(f.ctx, f.clerk, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.TrackingNumber, got.TrackingNumber)

	_, err = f.documents.Get(f.ctx, f.accountant, doc.ID)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	_, err = f.documents.Get(f.ctx, f.clerk, uuid.New())
	assert.True(t, errors.Is(err, models.ErrNotFound))

	title := "Renamed"
	urgent := models.PriorityUrgent
	updated, err := f.documents.Update(f.ctx, f.clerk, doc.ID, UpdateDocumentRequest{Title: &title, Priority: &urgent})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, models.PriorityUrgent, updated.Priority)
	assert.Equal(t, models.StatusRegistered, updated.Status)

	_, err = f.documents.Update(f.ctx, f.accountant, doc.ID, UpdateDocumentRequest{Title: &title})
	assert.True(t, errors.Is(err, models.ErrForbidden))

	empty := ""
	_, err = f.documents.Update(f.ctx, f.clerk, doc.ID, UpdateDocumentRequest{Title: &empty})
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestRecordAction(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	// Notes never move the status
	_, err := f.documents.RecordAction(f.ctx, f.clerk, doc.ID, ActionRequest{ActionType: models.ActionNote, Remarks: "seen"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistered, testutil.Reload(t, f.db, doc.ID).Status)

	// Approval needs the document to be received first
	_, err = f.documents.RecordAction(f.ctx, f.clerk, doc.ID, ActionRequest{ActionType: models.ActionApprove})
	assert.True(t, errors.Is(err, models.ErrInvalidState))

	result, err := f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID}}, f.clerk)
	require.NoError(t, err)
	_, err = f.routing.Receive(f.ctx, doc.ID, result.Routings[0].ID, f.accountant)
	require.NoError(t, err)

	action, err := f.documents.RecordAction(f.ctx, f.accountant, doc.ID, ActionRequest{ActionType: models.ActionApprove, IsOfficeHeadApproval: true})
	require.NoError(t, err)
	assert.Equal(t, f.finance.ID, action.OfficeID)
	assert.True(t, action.IsOfficeHeadApproval)
	assert.Equal(t, models.StatusInAction, testutil.Reload(t, f.db, doc.ID).Status)

	_, err = f.documents.RecordAction(f.ctx, f.lawyer, doc.ID, ActionRequest{ActionType: models.ActionNote})
	assert.True(t, errors.Is(err, models.ErrForbidden))

	_, err = f.documents.RecordAction(f.ctx, f.admin, doc.ID, ActionRequest{ActionType: models.ActionNote})
	assert.True(t, errors.Is(err, models.ErrValidation), "actions belong to an office")

	_, err = f.documents.RecordAction(f.ctx, f.accountant, doc.ID, ActionRequest{ActionType: models.ActionReturn})
	require.NoError(t, err)
	assert.Equal(t, models.StatusReturned, testutil.Reload(t, f.db, doc.ID).Status)

	history, err := f.documents.History(f.ctx, f.clerk, doc.ID)
	require.NoError(t, err)
	assert.Len(t, history.Actions, 3)
}

func TestCompleteArchiveRestore(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	_, err := f.documents.Complete(f.ctx, f.clerk, doc.ID)
	assert.True(t, errors.Is(err, models.ErrInvalidState), "registered documents cannot be completed")

	result, err := f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID}}, f.clerk)
	require.NoError(t, err)
	_, err = f.routing.Receive(f.ctx, doc.ID, result.Routings[0].ID, f.accountant)
	require.NoError(t, err)

	_, err = f.documents.Complete(f.ctx, f.lawyer, doc.ID)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	completed, err := f.documents.Complete(f.ctx, f.accountant, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)

	// Only the creating office archives
	_, err = f.documents.Archive(f.ctx, f.accountant, doc.ID)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	archived, err := f.documents.Archive(f.ctx, f.clerk, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, archived.Status)
	assert.True(t, archived.IsArchived)
	assert.NotNil(t, archived.ArchivedAt)
	assert.Equal(t, f.finance.ID, archived.CurrentOfficeID)

	_, err = f.documents.Archive(f.ctx, f.clerk, doc.ID)
	assert.True(t, errors.Is(err, models.ErrInvalidState))

	_, err = f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.legal.ID}}, f.clerk)
	assert.True(t, errors.Is(err, models.ErrInvalidState), "archived documents are not routable")

	restored, err := f.documents.Restore(f.ctx, f.admin, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, restored.Status)
	assert.False(t, restored.IsArchived)
	assert.Nil(t, restored.ArchivedAt)

	_, err = f.documents.Restore(f.ctx, f.admin, doc.ID)
	assert.True(t, errors.Is(err, models.ErrInvalidState))
}

func TestDeleteAndRestoreDeleted(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	err := f.documents.Delete(f.ctx, f.clerk, doc.ID)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	require.NoError(t, f.documents.Delete(f.ctx, f.admin, doc.ID))
	_, err = f.documents.Get(f.ctx, f.clerk, doc.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = f.documents.RestoreDeleted(f.ctx, f.accountant, doc.ID)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	restored, err := f.documents.RestoreDeleted(f.ctx, f.clerk, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, restored.ID)

	_, err = f.documents.Get(f.ctx, f.clerk, doc.ID)
	require.NoError(t, err)

	_, err = f.documents.RestoreDeleted(f.ctx, f.clerk, doc.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound), "only deleted documents can be restored")
}

func TestHistoryMergesCopies(t *testing.T) {
	f := newFixture(t)
	f.withClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	doc := f.document(t, "IN-2026-000001")

	result, err := f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID, f.legal.ID}}, f.clerk)
	require.NoError(t, err)

	history, err := f.documents.History(f.ctx, f.clerk, doc.ID)
	require.NoError(t, err)
	require.Len(t, history.Routings, 4)

	// Same instant: the main document's summaries lead, in sequence order
	assert.Equal(t, "main", history.Routings[0].DocumentKind)
	assert.Equal(t, 1, history.Routings[0].Sequence)
	assert.Equal(t, "main", history.Routings[1].DocumentKind)
	assert.Equal(t, 2, history.Routings[1].Sequence)
	for _, entry := range history.Routings[2:] {
		assert.Equal(t, "copy", entry.DocumentKind)
		assert.NotNil(t, entry.CopyNumber)
	}

	// A copy's history is its own
	copyHistory, err := f.documents.History(f.ctx, f.clerk, result.Copies[0].ID)
	require.NoError(t, err)
	require.Len(t, copyHistory.Routings, 1)
	assert.Equal(t, result.Copies[0].TrackingNumber, copyHistory.Routings[0].TrackingNumber)

	_, err = f.copies.AggregateRoutings(f.ctx, result.Copies[0].ID)
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = f.documents.History(f.ctx, f.lawyer, doc.ID)
	assert.True(t, errors.Is(err, models.ErrForbidden))
}

func TestHistoryOrdersByRoutedAt(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	f.withClock(start)
	result, err := f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID}, CreateCopies: true}, f.clerk)
	require.NoError(t, err)
	cp := result.Copies[0]

	f.withClock(start.Add(time.Hour))
	_, err = f.routing.Receive(f.ctx, cp.ID, result.Routings[1].ID, f.accountant)
	require.NoError(t, err)
	_, err = f.routing.Route(f.ctx, cp.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.legal.ID}}, f.accountant)
	require.NoError(t, err)

	f.withClock(start.Add(2 * time.Hour))
	_, err = f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.legal.ID}}, f.clerk)
	require.NoError(t, err)

	entries, err := f.copies.AggregateRoutings(f.ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	kinds := make([]string, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, fmt.Sprintf("%s/%d", e.DocumentKind, e.Sequence))
	}
	assert.Equal(t, []string{"main/1", "copy/1", "copy/2", "main/2"}, kinds)
}

func TestListScopesToOffice(t *testing.T) {
	f := newFixture(t)
	mine := f.document(t, "IN-2026-000001")
	theirs := testutil.CreateDocument(t, f.db, "IN-2026-000002", f.legal, f.lawyer)

	docs, total, err := f.documents.List(f.ctx, f.clerk, repositories.DocumentFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, docs, 1)
	assert.Equal(t, mine.ID, docs[0].ID)

	// Routing a document to the office brings it into view
	_, err = f.routing.Route(f.ctx, theirs.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.registry.ID}}, f.lawyer)
	require.NoError(t, err)
	_, total, err = f.documents.List(f.ctx, f.clerk, repositories.DocumentFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, total, err = f.documents.List(f.ctx, f.admin, repositories.DocumentFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	officeless := testutil.CreateUser(t, f.db, nil, models.RoleUser)
	docs, total, err = f.documents.List(f.ctx, officeless, repositories.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Zero(t, total)
}

func TestSearchFallsBackToDatabase(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")
	testutil.CreateDocument(t, f.db, "IN-2026-000002", f.legal, f.lawyer)

	hits, err := f.documents.Search(f.ctx, f.clerk, "IN-2026", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, doc.ID, hits[0].ID)
}

func TestSearchFiltersIndexHits(t *testing.T) {
	f := newFixture(t)
	mine := f.document(t, "IN-2026-000001")
	theirs := testutil.CreateDocument(t, f.db, "IN-2026-000002", f.legal, f.lawyer)

	indexer := new(MockIndexer)
	indexer.On("Enabled").Return(true)
	indexer.On("SearchDocuments", mock.Anything, search.Query{Text: "budget", Limit: 20}).Return([]search.Hit{
		{ID: mine.ID, TrackingNumber: mine.TrackingNumber},
		{ID: theirs.ID, TrackingNumber: theirs.TrackingNumber},
	}, nil)

	f.opts.Indexer = indexer
	svc := NewDocumentService(f.db, f.db, nil, nil, f.opts)

	hits, err := svc.Search(f.ctx, f.clerk, "budget", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, mine.ID, hits[0].ID)

	hits, err = svc.Search(f.ctx, f.admin, "budget", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	indexer.AssertExpectations(t)
}

func TestMutationsReindex(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	indexer := new(MockIndexer)
	indexer.On("IndexDocument", mock.Anything, mock.MatchedBy(func(d *models.Document) bool { return d.ID == doc.ID })).Return(errors.New("cluster down")).Once()
	indexer.On("DeleteDocument", mock.Anything, doc.ID).Return(nil).Once()

	f.opts.Indexer = indexer
	svc := NewDocumentService(f.db, f.db, nil, nil, f.opts)

	title := "Indexed"
	_, err := svc.Update(f.ctx, f.clerk, doc.ID, UpdateDocumentRequest{Title: &title})
	require.NoError(t, err, "index failures never fail the command")

	require.NoError(t, svc.Delete(f.ctx, f.admin, doc.ID))
	indexer.AssertExpectations(t)
}

func TestQRCodes(t *testing.T) {
	f := newFixture(t)
	doc, err := f.documents.Register(f.ctx, f.clerk, RegisterDocumentRequest{Title: "Contract", DocumentType: models.DocumentTypeOutgoing})
	require.NoError(t, err)

	first, err := f.documents.qr.ForDocument(f.ctx, doc.ID)
	require.NoError(t, err)

	verified, err := f.documents.qr.Verify(f.ctx, first.Code)
	require.NoError(t, err)
	assert.Equal(t, doc.TrackingNumber, verified.TrackingNumber)
	assert.Equal(t, 1, verified.ScanCount)

	_, err = f.documents.RegenerateQRCode(f.ctx, f.lawyer, doc.ID)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	second, err := f.documents.RegenerateQRCode(f.ctx, f.clerk, doc.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, second.Code)

	_, err = f.documents.qr.Verify(f.ctx, first.Code)
	assert.True(t, errors.Is(err, models.ErrNotFound), "regenerating retires the old code")

	current, err := f.documents.qr.ForDocument(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Code, current.Code)

	disabled := NewDocumentService(f.db, f.db, nil, nil, f.opts)
	_, err = disabled.RegenerateQRCode(f.ctx, f.clerk, doc.ID)
	assert.True(t, errors.Is(err, models.ErrInvalidState))
}
