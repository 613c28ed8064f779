package cmd

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/config"
	"github.com/xamero/smartdocs/internal/api"
	"github.com/xamero/smartdocs/internal/api/handlers"
	"github.com/xamero/smartdocs/internal/cache"
	"github.com/xamero/smartdocs/internal/database"
	"github.com/xamero/smartdocs/internal/messaging"
	"github.com/xamero/smartdocs/internal/metrics"
	"github.com/xamero/smartdocs/internal/notifications"
	"github.com/xamero/smartdocs/internal/repositories"
	"github.com/xamero/smartdocs/internal/search"
	"github.com/xamero/smartdocs/internal/services"
	"github.com/xamero/smartdocs/internal/tracing"
	"github.com/xamero/smartdocs/internal/tracking"
)

// app holds the connections and services shared by the commands
type app struct {
	cfg        config.Config
	db         *gorm.DB
	readOnlyDB *gorm.DB
	cache      *cache.RedisCache
	elastic    *search.ElasticClient
	bus        *messaging.ServiceBus
	tracer     tracing.Tracer
	metrics    *metrics.Metrics

	users *repositories.UserRepository
	store *notifications.StoreSink
	opts  services.Options

	documents *services.DocumentService
	routing   *services.RoutingService
	qrcodes   *services.QRCodeService
	imports   *services.ImportService
	inbox     *services.InboxService
	retention *services.RetentionService
	overdue   *services.OverdueService
}

// newApp connects every backing service. Only the database is mandatory;
// Redis, Elasticsearch, New Relic and Service Bus degrade to disabled.
// With publish set and a bus configured, notifications travel over the bus
// for the worker to store; otherwise they are stored in-process.
func newApp(cfg config.Config, source string, publish bool) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.NewMetrics()}

	db, readOnlyDB, err := database.Open(cfg.DB, a.metrics)
	if err != nil {
		return nil, err
	}
	a.db, a.readOnlyDB = db, readOnlyDB

	a.cache, err = cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		a.cache = cache.Disabled()
	}

	a.tracer, err = tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		a.tracer = tracing.Noop()
	}

	a.elastic, err = search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
		a.elastic = nil
	}

	if cfg.Azure.QueueConnStr != "" {
		a.bus, err = messaging.NewServiceBus(cfg.Azure, source)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Azure Service Bus, notifications stay in-process")
			a.bus = nil
		}
	}

	a.users = repositories.NewUserRepository(db, readOnlyDB)
	a.store = notifications.NewStoreSink(a.users, repositories.NewNotificationRepository(db, readOnlyDB), a.metrics)

	var notifier notifications.Sink = a.store
	if publish && a.bus != nil {
		notifier = notifications.NewBusSink(a.bus, a.metrics)
	}

	a.opts = services.Options{
		Cache:    a.cache,
		Indexer:  a.elastic,
		Notifier: notifier,
		Metrics:  a.metrics,
		Tracer:   a.tracer,
	}

	a.qrcodes = services.NewQRCodeService(db, readOnlyDB, cfg.QRCode)
	a.documents = services.NewDocumentService(db, readOnlyDB, tracking.NewAllocator(cfg.Tracking.Prefixes), a.qrcodes, a.opts)
	a.routing = services.NewRoutingService(db, readOnlyDB, a.opts)
	a.imports = services.NewImportService(a.documents, a.metrics)
	a.inbox = services.NewInboxService(db, readOnlyDB)
	a.retention = services.NewRetentionService(db, readOnlyDB, cfg.Retention, a.opts)
	a.overdue = services.NewOverdueService(db, readOnlyDB, cfg.Retention.BatchSize, a.opts)

	return a, nil
}

// server builds the HTTP server over the app's services
func (a *app) server() *api.Server {
	checks := map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error { return database.Ping(a.db) },
	}
	if a.cache.Enabled() {
		checks["redis"] = a.cache.Ping
	}

	return api.NewServer(a.cfg, api.Services{
		Documents: a.documents,
		Routing:   a.routing,
		QRCodes:   a.qrcodes,
		Imports:   a.imports,
		Inbox:     a.inbox,
		Users:     a.users,
	}, a.metrics, a.tracer, checks)
}

// Close releases every connection the app opened
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.bus != nil {
		if err := a.bus.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to close Service Bus client")
		}
	}
	if err := a.cache.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close Redis client")
	}
	a.tracer.Close()
	database.Close(a.db, a.readOnlyDB)
}
