package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/xamero/smartdocs/config"
	"github.com/xamero/smartdocs/internal/api/handlers"
	"github.com/xamero/smartdocs/internal/metrics"
	"github.com/xamero/smartdocs/internal/repositories"
	"github.com/xamero/smartdocs/internal/services"
	"github.com/xamero/smartdocs/internal/tracing"
)

// Services groups what the HTTP layer serves
type Services struct {
	Documents *services.DocumentService
	Routing   *services.RoutingService
	QRCodes   *services.QRCodeService
	Imports   *services.ImportService
	Inbox     *services.InboxService
	Users     *repositories.UserRepository
}

// Server represents the HTTP server
type Server struct {
	config       config.Config
	router       *gin.Engine
	httpServer   *http.Server
	services     Services
	metrics      *metrics.Metrics
	tracer       tracing.Tracer
	healthChecks map[string]handlers.HealthCheck
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, svc Services, collector *metrics.Metrics, tracer tracing.Tracer, checks map[string]handlers.HealthCheck) *Server {
	if tracer == nil {
		tracer = tracing.Noop()
	}

	server := &Server{
		config:       cfg,
		services:     svc,
		metrics:      collector,
		tracer:       tracer,
		healthChecks: checks,
	}

	router := server.setupRouter()
	server.router = router

	server.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()

	router.Use(RequestIDMiddleware())
	if s.config.Server.CorsEnabled {
		router.Use(CORSMiddleware(s.config.Server.CorsOrigins))
	}
	router.Use(gin.Recovery())
	router.Use(LoggingMiddleware())
	if s.config.MetricsEnabled {
		router.Use(MetricsMiddleware(s.metrics))
	}
	router.Use(TracingMiddleware(s.tracer))

	metricsHandler := handlers.NewMetricsHandler(s.metrics, s.tracer, s.healthChecks)
	metricsHandler.RegisterRoutes(router)

	v1 := router.Group("/api/v1")

	// Verification links are scanned by people without an account
	handlers.NewVerifyHandler(s.services.QRCodes).RegisterRoutes(v1)

	authed := v1.Group("")
	authed.Use(ActorMiddleware(s.services.Users))
	handlers.NewDocumentHandler(s.services.Documents, s.services.Imports, s.tracer).RegisterRoutes(authed)
	handlers.NewRoutingHandler(s.services.Routing, s.tracer).RegisterRoutes(authed)
	handlers.NewNotificationHandler(s.services.Inbox).RegisterRoutes(authed)

	return router
}

// Router exposes the configured engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Server.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
