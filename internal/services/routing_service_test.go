package services

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xamero/smartdocs/internal/metrics"
	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/testutil"
)

func TestRouteReceiveAndDistribute(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	// registry -> finance
	result, err := f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID}, Remarks: "for payment"}, f.clerk)
	require.NoError(t, err)
	require.Len(t, result.Routings, 1)
	require.Empty(t, result.Copies)

	first := result.Routings[0]
	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, f.registry.ID, *first.FromOfficeID)
	assert.Equal(t, f.finance.ID, first.ToOfficeID)
	assert.Equal(t, models.RoutingInTransit, first.Status)

	reloaded := testutil.Reload(t, f.db, doc.ID)
	assert.Equal(t, models.StatusInTransit, reloaded.Status)
	assert.Equal(t, f.finance.ID, reloaded.CurrentOfficeID)

	require.Len(t, f.notifier.routed, 1)
	assert.Equal(t, f.registry.ID, f.notifier.routed[0].FromOffice, "event carries the sending office")

	// finance confirms receipt
	received, err := f.routing.Receive(f.ctx, doc.ID, first.ID, f.accountant)
	require.NoError(t, err)
	assert.Equal(t, models.RoutingReceived, received.Status)
	assert.Equal(t, f.accountant.ID, *received.ReceivedBy)
	assert.NotNil(t, received.ReceivedAt)

	reloaded = testutil.Reload(t, f.db, doc.ID)
	assert.Equal(t, models.StatusReceived, reloaded.Status)
	assert.Equal(t, f.finance.ID, reloaded.CurrentOfficeID)
	assert.Equal(t, []uuid.UUID{doc.ID}, f.notifier.received)

	// finance distributes copies to finance, legal and registry
	result, err = f.routing.Route(f.ctx, doc.ID, RouteRequest{
		ToOfficeIDs:  []uuid.UUID{f.finance.ID, f.legal.ID, f.registry.ID},
		Remarks:      "for comment",
		CreateCopies: true,
	}, f.accountant)
	require.NoError(t, err)
	require.Len(t, result.Copies, 3)

	assert.Equal(t, []int{1, 2, 3, 4}, sequences(f.routings(t, doc.ID)))

	main := f.routings(t, doc.ID)
	for i, summary := range main[1:] {
		require.NotNil(t, summary.CopyDocumentID)
		assert.Equal(t, result.Copies[i].ID, *summary.CopyDocumentID)
		assert.Equal(t, fmt.Sprintf("for comment - Copy #%d created and routed", i+1), summary.Remarks)
	}

	for i, cp := range result.Copies {
		assert.True(t, cp.IsCopy)
		assert.Equal(t, i+1, *cp.CopyNumber)
		assert.Equal(t, doc.ID, *cp.ParentDocumentID)
		assert.Equal(t, fmt.Sprintf("IN-2026-000001-COPY-%d", i+1), cp.TrackingNumber)
		assert.Equal(t, models.StatusInTransit, cp.Status)
		assert.Equal(t, f.finance.ID, cp.CurrentOfficeID, "copies depart from the main document's office")
		assert.Equal(t, doc.CreatedBy, cp.CreatedBy)

		own := f.routings(t, cp.ID)
		require.Len(t, own, 1)
		assert.Equal(t, 1, own[0].Sequence)
		assert.Equal(t, *cp.ReceivingOfficeID, own[0].ToOfficeID)
	}

	reloaded = testutil.Reload(t, f.db, doc.ID)
	assert.Equal(t, models.StatusReceived, reloaded.Status, "distributing copies leaves the main document alone")
	assert.Equal(t, f.finance.ID, reloaded.CurrentOfficeID)

	assert.Equal(t, int64(3), f.metrics.GetCounters()[metrics.CopiesCreated])
	assert.Len(t, f.notifier.routed, 4)
}

func TestRouteSingleDestinationWithCopyFlag(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	result, err := f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID}, CreateCopies: true}, f.clerk)
	require.NoError(t, err)
	require.Len(t, result.Copies, 1)
	assert.Equal(t, "Copy #1 created and routed", f.routings(t, doc.ID)[0].Remarks)

	reloaded := testutil.Reload(t, f.db, doc.ID)
	assert.Equal(t, models.StatusRegistered, reloaded.Status)
	assert.Equal(t, f.registry.ID, reloaded.CurrentOfficeID)
}

func TestRouteValidation(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	_, err := f.routing.Route(f.ctx, doc.ID, RouteRequest{}, f.clerk)
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{uuid.New()}}, f.clerk)
	assert.True(t, errors.Is(err, models.ErrInvalidDestination))

	closed := testutil.CreateOffice(t, f.db, "closed")
	require.NoError(t, f.db.Model(closed).Update("is_active", false).Error)
	_, err = f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{closed.ID}}, f.clerk)
	assert.True(t, errors.Is(err, models.ErrInvalidDestination))

	_, err = f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID}}, f.lawyer)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	_, err = f.routing.Route(f.ctx, uuid.New(), RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID}}, f.clerk)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID}}, f.clerk)
	require.NoError(t, err)
	_, err = f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.legal.ID}}, f.clerk)
	assert.True(t, errors.Is(err, models.ErrInvalidState), "a document in transit cannot be routed again")

	assert.Len(t, f.routings(t, doc.ID), 1)
}

func TestRouteDuplicateDestinationsCollapse(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	result, err := f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID, f.finance.ID}}, f.clerk)
	require.NoError(t, err)
	assert.Empty(t, result.Copies, "one distinct destination is a plain transfer")
	assert.Len(t, result.Routings, 1)
}

func TestCopyRouting(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	result, err := f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID, f.legal.ID}}, f.clerk)
	require.NoError(t, err)
	financeCopy := result.Copies[0]
	copyRouting := f.routings(t, financeCopy.ID)[0]

	_, err = f.routing.Route(f.ctx, financeCopy.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.legal.ID, f.registry.ID}}, f.clerk)
	assert.True(t, errors.Is(err, models.ErrValidation), "copies go to one office at a time")

	// Summary routings are settled through the copy
	summary := f.routings(t, doc.ID)[0]
	_, err = f.routing.Receive(f.ctx, doc.ID, summary.ID, f.accountant)
	assert.True(t, errors.Is(err, models.ErrInvalidState))

	_, err = f.routing.Receive(f.ctx, financeCopy.ID, copyRouting.ID, f.accountant)
	require.NoError(t, err)

	summary = f.routings(t, doc.ID)[0]
	assert.Equal(t, models.RoutingReceived, summary.Status, "summary mirrors the copy's receipt")
	assert.NotNil(t, summary.ReceivedAt)

	// A received copy routes itself, never spawning copies
	result, err = f.routing.Route(f.ctx, financeCopy.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.registry.ID}, CreateCopies: true}, f.accountant)
	require.NoError(t, err)
	assert.Empty(t, result.Copies)
	assert.Equal(t, []int{1, 2}, sequences(f.routings(t, financeCopy.ID)))

	reloaded := testutil.Reload(t, f.db, financeCopy.ID)
	assert.Equal(t, models.StatusInTransit, reloaded.Status)
	assert.Equal(t, f.registry.ID, reloaded.CurrentOfficeID)

	// Cancelling the legal copy's routing marks its summary returned
	legalCopy := &models.Document{}
	require.NoError(t, f.db.Where("parent_document_id = ? AND copy_number = ?", doc.ID, 2).First(legalCopy).Error)
	legalRouting := f.routings(t, legalCopy.ID)[0]
	require.NoError(t, f.routing.Cancel(f.ctx, legalCopy.ID, legalRouting.ID, f.clerk))

	assert.Empty(t, f.routings(t, legalCopy.ID))
	assert.Equal(t, models.StatusRegistered, testutil.Reload(t, f.db, legalCopy.ID).Status)

	main := f.routings(t, doc.ID)
	require.Len(t, main, 2, "the main document's sequence keeps no gaps")
	assert.Equal(t, models.RoutingReturned, main[1].Status)
	assert.NotNil(t, main[1].ReturnedAt)
}

func TestReceiveErrors(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")
	other := f.document(t, "IN-2026-000002")

	result, err := f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID}}, f.clerk)
	require.NoError(t, err)
	routing := result.Routings[0]

	_, err = f.routing.Receive(f.ctx, other.ID, routing.ID, f.accountant)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = f.routing.Receive(f.ctx, doc.ID, uuid.New(), f.accountant)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = f.routing.Receive(f.ctx, doc.ID, routing.ID, f.lawyer)
	assert.True(t, errors.Is(err, models.ErrForbidden))

	_, err = f.routing.Receive(f.ctx, doc.ID, routing.ID, f.admin)
	assert.True(t, errors.Is(err, models.ErrForbidden), "receipt is confirmed by the destination office")

	_, err = f.routing.Receive(f.ctx, doc.ID, routing.ID, f.accountant)
	require.NoError(t, err)

	_, err = f.routing.Receive(f.ctx, doc.ID, routing.ID, f.accountant)
	assert.True(t, errors.Is(err, models.ErrInvalidState))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	result, err := f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID}}, f.clerk)
	require.NoError(t, err)
	routing := result.Routings[0]

	err = f.routing.Cancel(f.ctx, doc.ID, routing.ID, f.accountant)
	assert.True(t, errors.Is(err, models.ErrForbidden), "only the sender may cancel")

	require.NoError(t, f.routing.Cancel(f.ctx, doc.ID, routing.ID, f.clerk))
	reloaded := testutil.Reload(t, f.db, doc.ID)
	assert.Equal(t, models.StatusRegistered, reloaded.Status)
	assert.Equal(t, f.finance.ID, reloaded.CurrentOfficeID, "cancellation leaves custody alone")
	assert.Empty(t, f.routings(t, doc.ID))

	err = f.routing.Cancel(f.ctx, doc.ID, routing.ID, f.clerk)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	// After a receipt, cancelling the next hop falls back to received
	result, err = f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.registry.ID}}, f.clerk)
	require.NoError(t, err)
	_, err = f.routing.Receive(f.ctx, doc.ID, result.Routings[0].ID, f.clerk)
	require.NoError(t, err)

	result, err = f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.legal.ID}}, f.clerk)
	require.NoError(t, err)

	err = f.routing.Cancel(f.ctx, doc.ID, f.routings(t, doc.ID)[0].ID, f.clerk)
	assert.True(t, errors.Is(err, models.ErrInvalidState), "received routings cannot be cancelled")

	require.NoError(t, f.routing.Cancel(f.ctx, doc.ID, result.Routings[0].ID, f.admin))
	reloaded = testutil.Reload(t, f.db, doc.ID)
	assert.Equal(t, models.StatusReceived, reloaded.Status)
	assert.Equal(t, f.legal.ID, reloaded.CurrentOfficeID)
	assert.Equal(t, []int{1}, sequences(f.routings(t, doc.ID)))
}

func TestCancelIgnoresCopyReceipts(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	result, err := f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID}, CreateCopies: true}, f.clerk)
	require.NoError(t, err)
	financeCopy := result.Copies[0]
	_, err = f.routing.Receive(f.ctx, financeCopy.ID, f.routings(t, financeCopy.ID)[0].ID, f.accountant)
	require.NoError(t, err)
	require.Equal(t, models.RoutingReceived, f.routings(t, doc.ID)[0].Status)

	result, err = f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.legal.ID}}, f.clerk)
	require.NoError(t, err)
	require.NoError(t, f.routing.Cancel(f.ctx, doc.ID, result.Routings[0].ID, f.clerk))

	reloaded := testutil.Reload(t, f.db, doc.ID)
	assert.Equal(t, models.StatusRegistered, reloaded.Status, "the main document itself was never received")
}

func TestConcurrentTransfersAllowOneInFlight(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	var g errgroup.Group
	results := make([]error, 5)
	for i := range results {
		i := i
		g.Go(func() error {
			_, results[i] = f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID}}, f.clerk)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, models.ErrInvalidState))
	}
	assert.Equal(t, 1, succeeded)

	routings := f.routings(t, doc.ID)
	require.Len(t, routings, 1)
	assert.Equal(t, 1, routings[0].Sequence)
}

func TestConcurrentDistributionKeepsSequences(t *testing.T) {
	f := newFixture(t)
	doc := f.document(t, "IN-2026-000001")

	var g errgroup.Group
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			_, err := f.routing.Route(f.ctx, doc.ID, RouteRequest{ToOfficeIDs: []uuid.UUID{f.finance.ID, f.legal.ID}}, f.clerk)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, sequences(f.routings(t, doc.ID)))

	var numbers []int
	require.NoError(t, f.db.Model(&models.Document{}).
		Where("parent_document_id = ?", doc.ID).
		Order("copy_number ASC").
		Pluck("copy_number", &numbers).Error)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, numbers)
}
