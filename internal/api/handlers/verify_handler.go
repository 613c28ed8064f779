package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xamero/smartdocs/internal/services"
)

// VerifyHandler resolves scanned QR codes. It is served without an actor.
type VerifyHandler struct {
	qr *services.QRCodeService
}

// NewVerifyHandler creates a new verify handler
func NewVerifyHandler(qr *services.QRCodeService) *VerifyHandler {
	return &VerifyHandler{qr: qr}
}

// HandleVerify looks up an active code
func (h *VerifyHandler) HandleVerify(c *gin.Context) {
	verification, err := h.qr.Verify(c.Request.Context(), c.Param("code"))
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, verification)
}

// RegisterRoutes registers the handler's routes
func (h *VerifyHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/verify/:code", h.HandleVerify)
}
