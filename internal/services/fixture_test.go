package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/config"
	"github.com/xamero/smartdocs/internal/metrics"
	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/testutil"
	"github.com/xamero/smartdocs/internal/tracking"
)

type routedCall struct {
	DocumentID uuid.UUID
	OfficeID   uuid.UUID
	FromOffice uuid.UUID
	Remarks    string
}

// recordingNotifier captures notifications for assertions
type recordingNotifier struct {
	mu       sync.Mutex
	routed   []routedCall
	received []uuid.UUID
	overdue  []uuid.UUID
}

func (r *recordingNotifier) NotifyDocumentRouted(_ context.Context, doc *models.Document, officeID uuid.UUID, remarks string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routed = append(r.routed, routedCall{DocumentID: doc.ID, OfficeID: officeID, FromOffice: doc.CurrentOfficeID, Remarks: remarks})
}

func (r *recordingNotifier) NotifyDocumentReceived(_ context.Context, doc *models.Document, _ *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, doc.ID)
}

func (r *recordingNotifier) NotifyDocumentOverdue(_ context.Context, doc *models.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overdue = append(r.overdue, doc.ID)
}

type fixture struct {
	ctx       context.Context
	db        *gorm.DB
	notifier  *recordingNotifier
	metrics   *metrics.Metrics
	routing   *RoutingService
	documents *DocumentService
	copies    *CopyManager
	opts      Options

	registry *models.Office
	finance  *models.Office
	legal    *models.Office

	clerk      *models.User // registry
	accountant *models.User // finance
	lawyer     *models.User // legal
	admin      *models.User // no office
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	f := &fixture{
		ctx:      context.Background(),
		db:       db,
		notifier: &recordingNotifier{},
		metrics:  metrics.NewMetrics(),
	}

	f.registry = testutil.CreateOffice(t, db, "registry")
	f.finance = testutil.CreateOffice(t, db, "finance")
	f.legal = testutil.CreateOffice(t, db, "legal")
	f.clerk = testutil.CreateUser(t, db, f.registry, models.RoleUser)
	f.accountant = testutil.CreateUser(t, db, f.finance, models.RoleUser)
	f.lawyer = testutil.CreateUser(t, db, f.legal, models.RoleUser)
	f.admin = testutil.CreateUser(t, db, nil, models.RoleAdmin)

	f.opts = Options{Notifier: f.notifier, Metrics: f.metrics}
	f.routing = NewRoutingService(db, db, f.opts)
	f.copies = NewCopyManager(db, db)
	qr := NewQRCodeService(db, db, config.QRCodeConfig{Enabled: true, BaseURL: "https://docs.example.com/"})
	f.documents = NewDocumentService(db, db, tracking.NewAllocator(nil), qr, f.opts)
	return f
}

// withClock rebuilds the services with a fixed clock
func (f *fixture) withClock(at time.Time) {
	f.opts.Now = func() time.Time { return at }
	f.routing = NewRoutingService(f.db, f.db, f.opts)
	f.documents = NewDocumentService(f.db, f.db, tracking.NewAllocator(nil), nil, f.opts)
}

func (f *fixture) document(t *testing.T, number string) *models.Document {
	t.Helper()
	return testutil.CreateDocument(t, f.db, number, f.registry, f.clerk)
}

func (f *fixture) routings(t *testing.T, documentID uuid.UUID) []models.DocumentRouting {
	t.Helper()
	var routings []models.DocumentRouting
	if err := f.db.Where("document_id = ?", documentID).Order("sequence ASC").Find(&routings).Error; err != nil {
		t.Fatalf("load routings: %v", err)
	}
	return routings
}

func sequences(routings []models.DocumentRouting) []int {
	out := make([]int, 0, len(routings))
	for _, r := range routings {
		out = append(out, r.Sequence)
	}
	return out
}
