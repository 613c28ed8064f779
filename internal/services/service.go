package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/internal/access"
	"github.com/xamero/smartdocs/internal/cache"
	"github.com/xamero/smartdocs/internal/metrics"
	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/notifications"
	"github.com/xamero/smartdocs/internal/repositories"
	"github.com/xamero/smartdocs/internal/search"
	"github.com/xamero/smartdocs/internal/tracing"
)

// DocumentIndexer keeps the search index in step with the database
type DocumentIndexer interface {
	Enabled() bool
	IndexDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	SearchDocuments(ctx context.Context, q search.Query) ([]search.Hit, error)
}

// Options carries the collaborators shared by the document services. Zero
// values are replaced with no-op implementations.
type Options struct {
	Cache    *cache.RedisCache
	Indexer  DocumentIndexer
	Notifier notifications.Sink
	Metrics  *metrics.Metrics
	Tracer   tracing.Tracer
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Cache == nil {
		o.Cache = cache.Disabled()
	}
	if o.Indexer == nil {
		o.Indexer = (*search.ElasticClient)(nil)
	}
	if o.Notifier == nil {
		o.Notifier = notifications.Noop{}
	}
	if o.Tracer == nil {
		o.Tracer = tracing.Noop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// base holds the repositories and collaborators every service needs
type base struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
	documents  *repositories.DocumentRepository
	routings   *repositories.RoutingRepository
	actions    *repositories.ActionRepository
	offices    *repositories.OfficeRepository
	users      *repositories.UserRepository
	opts       Options
}

func newBase(db, readOnlyDB *gorm.DB, opts Options) base {
	return base{
		db:         db,
		readOnlyDB: readOnlyDB,
		documents:  repositories.NewDocumentRepository(db, readOnlyDB),
		routings:   repositories.NewRoutingRepository(db, readOnlyDB),
		actions:    repositories.NewActionRepository(db, readOnlyDB),
		offices:    repositories.NewOfficeRepository(db, readOnlyDB),
		users:      repositories.NewUserRepository(db, readOnlyDB),
		opts:       opts.withDefaults(),
	}
}

func (b *base) now() time.Time {
	return b.opts.Now().UTC()
}

// facts gathers what the access policy needs about doc. Pass tx-bound
// repositories when called inside a transaction.
func facts(ctx context.Context, documents *repositories.DocumentRepository, routings *repositories.RoutingRepository, doc *models.Document) (access.Facts, error) {
	creatorOffice, err := documents.CreatorOfficeID(ctx, doc)
	if err != nil {
		return access.Facts{}, err
	}
	inbound, err := routings.InboundOfficeIDs(ctx, doc.ID)
	if err != nil {
		return access.Facts{}, err
	}
	return access.Facts{
		Document:         doc,
		CreatorOfficeID:  creatorOffice,
		InboundOfficeIDs: inbound,
	}, nil
}

// authorize checks capability against doc inside tx
func authorize(ctx context.Context, tx *gorm.DB, b *base, actor *models.User, capability access.Capability, doc *models.Document) error {
	f, err := facts(ctx, b.documents.WithTx(tx), b.routings.WithTx(tx), doc)
	if err != nil {
		return err
	}
	return access.Authorize(actor, capability, f)
}

// afterCommit refreshes derived state for the given documents. Failures are
// logged only; the database is the source of truth.
func (b *base) afterCommit(ctx context.Context, docs ...*models.Document) {
	for _, doc := range docs {
		keys := []string{cache.DocumentKey(doc.ID), cache.HistoryKey(doc.ID)}
		if doc.Kind() == models.KindCopy {
			keys = append(keys, cache.HistoryKey(doc.MainDocumentID()))
		}
		if err := b.opts.Cache.Delete(ctx, keys...); err != nil {
			log.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("Failed to invalidate document cache")
		}

		if err := b.opts.Indexer.IndexDocument(ctx, doc); err != nil {
			log.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("Failed to index document")
		}
	}
}
