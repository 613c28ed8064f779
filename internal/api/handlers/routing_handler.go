package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xamero/smartdocs/internal/services"
	"github.com/xamero/smartdocs/internal/tracing"
)

// RoutingHandler handles routing HTTP requests
type RoutingHandler struct {
	routing *services.RoutingService
	tracer  tracing.Tracer
}

// NewRoutingHandler creates a new routing handler
func NewRoutingHandler(routing *services.RoutingService, tracer tracing.Tracer) *RoutingHandler {
	return &RoutingHandler{
		routing: routing,
		tracer:  tracer,
	}
}

// HandleRoute sends a document to one or more offices
func (h *RoutingHandler) HandleRoute(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-route-document")
	defer h.tracer.EndTransaction(txn)

	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		h.tracer.RecordError(txn, err)
		return
	}
	h.tracer.AddAttribute(txn, "destinations", len(req.ToOfficeIDs))

	result, err := h.routing.Route(c.Request.Context(), id, req, Actor(c))
	if err != nil {
		WriteError(c, err)
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// HandleReceive confirms receipt of an in-flight routing
func (h *RoutingHandler) HandleReceive(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-receive-document")
	defer h.tracer.EndTransaction(txn)

	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	routingID, ok := uuidParam(c, "routingId")
	if !ok {
		return
	}

	routing, err := h.routing.Receive(c.Request.Context(), id, routingID, Actor(c))
	if err != nil {
		WriteError(c, err)
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, routing)
}

// HandleCancel withdraws an in-flight routing
func (h *RoutingHandler) HandleCancel(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	routingID, ok := uuidParam(c, "routingId")
	if !ok {
		return
	}

	if err := h.routing.Cancel(c.Request.Context(), id, routingID, Actor(c)); err != nil {
		WriteError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers the handler's routes
func (h *RoutingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/route", h.HandleRoute)
	rg.POST("/documents/:id/routings/:routingId/receive", h.HandleReceive)
	rg.DELETE("/documents/:id/routings/:routingId", h.HandleCancel)
}
