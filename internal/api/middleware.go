package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/xamero/smartdocs/internal/api/handlers"
	"github.com/xamero/smartdocs/internal/metrics"
	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/repositories"
	"github.com/xamero/smartdocs/internal/tracing"
)

// Constants for middleware
const (
	requestIDKey = "X-Request-ID"
	userIDHeader = "X-User-ID"
)

// RequestIDMiddleware adds a request ID to the context
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDKey)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(requestIDKey, requestID)
		c.Header(requestIDKey, requestID)

		c.Next()
	}
}

// CORSMiddleware handles CORS for the configured origins. "*" allows any.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID, X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// LoggingMiddleware logs API requests
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		requestID := c.GetString(requestIDKey)
		status := c.Writer.Status()

		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Str("request_id", requestID).
			Msg("API request")
	}
}

// MetricsMiddleware records request timings per route
func MetricsMiddleware(collector *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		collector.RecordHTTPRequest(c.Request.Method+" "+route, c.Writer.Status(), time.Since(start))
	}
}

// TracingMiddleware wraps each request in a tracing transaction
func TracingMiddleware(tracer tracing.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := tracer.StartTransaction(c.Request.Method + " " + c.FullPath())
		defer tracer.EndTransaction(txn)

		tracer.AddAttribute(txn, "request_id", c.GetString(requestIDKey))

		c.Next()

		tracer.AddAttribute(txn, "status", c.Writer.Status())
	}
}

// ActorMiddleware resolves the calling user from the X-User-ID header.
// Authentication happens upstream; this only loads the identity it asserts.
func ActorMiddleware(users *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(userIDHeader))
		id, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handlers.ErrorResponse{
				Message: "missing or invalid " + userIDHeader + " header",
				Code:    "UNAUTHORIZED",
			})
			return
		}

		user, err := users.GetByID(c.Request.Context(), id)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			handlers.WriteError(c, err)
			c.Abort()
			return
		}
		if err != nil || !user.IsActive {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handlers.ErrorResponse{
				Message: "unknown or inactive user",
				Code:    "UNAUTHORIZED",
			})
			return
		}

		c.Set(handlers.ActorKey, user)
		c.Next()
	}
}
