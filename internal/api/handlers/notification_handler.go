package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xamero/smartdocs/internal/services"
)

// NotificationHandler serves the caller's notification inbox
type NotificationHandler struct {
	inbox *services.InboxService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(inbox *services.InboxService) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// HandleList returns the caller's newest notifications
func (h *NotificationHandler) HandleList(c *gin.Context) {
	unread := c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.Query("limit"))

	items, err := h.inbox.List(c.Request.Context(), Actor(c), unread, limit)
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

// HandleMarkRead acknowledges a notification
func (h *NotificationHandler) HandleMarkRead(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.inbox.MarkRead(c.Request.Context(), Actor(c), id); err != nil {
		WriteError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers the handler's routes
func (h *NotificationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/notifications", h.HandleList)
	rg.POST("/notifications/:id/read", h.HandleMarkRead)
}
