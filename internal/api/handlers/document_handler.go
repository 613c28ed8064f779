package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/repositories"
	"github.com/xamero/smartdocs/internal/services"
	"github.com/xamero/smartdocs/internal/tracing"
)

// maxImportSize caps uploaded CSV files
const maxImportSize = 10 << 20

// DocumentHandler handles document HTTP requests
type DocumentHandler struct {
	documents *services.DocumentService
	imports   *services.ImportService
	tracer    tracing.Tracer
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documents *services.DocumentService, imports *services.ImportService, tracer tracing.Tracer) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		imports:   imports,
		tracer:    tracer,
	}
}

// ListResponse is one page of documents
type ListResponse struct {
	Data    []models.Document `json:"data"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
}

// ListQuery holds the query string filters of the document listing
type ListQuery struct {
	Search       string `form:"search"`
	Status       string `form:"status"`
	DocumentType string `form:"document_type"`
	Priority     string `form:"priority"`
	OfficeID     string `form:"office_id"`
	Overdue      bool   `form:"overdue"`
	DueThisWeek  bool   `form:"due_this_week"`
	Page         int    `form:"page"`
	PerPage      int    `form:"per_page"`
}

// HandleList lists the documents visible to the caller
func (h *DocumentHandler) HandleList(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBadRequest(c, err)
		return
	}
	if q.PerPage <= 0 || q.PerPage > 100 {
		q.PerPage = 15
	}
	if q.Page <= 0 {
		q.Page = 1
	}

	filter := repositories.DocumentFilter{
		Search:       q.Search,
		Status:       models.DocumentStatus(q.Status),
		DocumentType: models.DocumentType(q.DocumentType),
		Priority:     models.Priority(q.Priority),
		Overdue:      q.Overdue,
		DueThisWeek:  q.DueThisWeek,
		Page:         q.Page,
		PerPage:      q.PerPage,
	}
	if q.OfficeID != "" {
		id, err := uuid.Parse(q.OfficeID)
		if err != nil {
			writeBadRequest(c, errors.Errorf("invalid office_id %q", q.OfficeID))
			return
		}
		filter.OfficeID = &id
	}

	docs, total, err := h.documents.List(c.Request.Context(), Actor(c), filter)
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Data: docs, Total: total, Page: q.Page, PerPage: q.PerPage})
}

// HandleRegister registers a new document
func (h *DocumentHandler) HandleRegister(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-register-document")
	defer h.tracer.EndTransaction(txn)

	var req services.RegisterDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		h.tracer.RecordError(txn, err)
		return
	}

	doc, err := h.documents.Register(c.Request.Context(), Actor(c), req)
	if err != nil {
		WriteError(c, err)
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// HandleGet returns a single document
func (h *DocumentHandler) HandleGet(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	doc, err := h.documents.Get(c.Request.Context(), Actor(c), id)
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// HandleUpdate edits a document's descriptive fields
func (h *DocumentHandler) HandleUpdate(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}

	doc, err := h.documents.Update(c.Request.Context(), Actor(c), id, req)
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// HandleDelete soft-deletes a document
func (h *DocumentHandler) HandleDelete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.documents.Delete(c.Request.Context(), Actor(c), id); err != nil {
		WriteError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// HandleRestoreDeleted brings back a soft-deleted document
func (h *DocumentHandler) HandleRestoreDeleted(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	doc, err := h.documents.RestoreDeleted(c.Request.Context(), Actor(c), id)
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// HandleRecordAction records an office action
func (h *DocumentHandler) HandleRecordAction(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}

	action, err := h.documents.RecordAction(c.Request.Context(), Actor(c), id, req)
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, action)
}

// statusChange adapts Complete, Archive and Restore to a handler
func (h *DocumentHandler) statusChange(apply func(*gin.Context, *models.User, uuid.UUID) (*models.Document, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}

		doc, err := apply(c, Actor(c), id)
		if err != nil {
			WriteError(c, err)
			return
		}

		c.JSON(http.StatusOK, doc)
	}
}

// HandleHistory returns routings and actions of a document
func (h *DocumentHandler) HandleHistory(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	history, err := h.documents.History(c.Request.Context(), Actor(c), id)
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

// HandleSearch runs a full-text search
func (h *DocumentHandler) HandleSearch(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-search-documents")
	defer h.tracer.EndTransaction(txn)

	text := c.Query("q")
	if text == "" {
		writeBadRequest(c, errors.New("query parameter q is required"))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	h.tracer.AddAttribute(txn, "query", text)

	hits, err := h.documents.Search(c.Request.Context(), Actor(c), text, limit)
	if err != nil {
		WriteError(c, err)
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": hits})
}

// HandleImport registers documents from an uploaded CSV file
func (h *DocumentHandler) HandleImport(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-import-documents")
	defer h.tracer.EndTransaction(txn)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize)
	header, err := c.FormFile("file")
	if err != nil {
		writeBadRequest(c, errors.Wrap(err, "a CSV file is required in field \"file\""))
		return
	}

	file, err := header.Open()
	if err != nil {
		WriteError(c, errors.Wrap(err, "failed to open uploaded file"))
		return
	}
	defer file.Close()

	result, err := h.imports.Import(c.Request.Context(), Actor(c), file)
	if err != nil {
		WriteError(c, err)
		h.tracer.RecordError(txn, err)
		return
	}

	log.Info().
		Str("file", header.Filename).
		Int("created", result.Created).
		Int("failed", result.Failed).
		Msg("Documents imported")

	c.JSON(http.StatusOK, result)
}

// HandleGetQRCode returns the active verification code of a document
func (h *DocumentHandler) HandleGetQRCode(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	qr, err := h.documents.QRCode(c.Request.Context(), Actor(c), id)
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, qr)
}

// HandleRegenerateQRCode issues a new verification code
func (h *DocumentHandler) HandleRegenerateQRCode(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	qr, err := h.documents.RegenerateQRCode(c.Request.Context(), Actor(c), id)
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, qr)
}

// RegisterRoutes registers the handler's routes
func (h *DocumentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	docs := rg.Group("/documents")
	{
		docs.GET("", h.HandleList)
		docs.POST("", h.HandleRegister)
		docs.GET("/search", h.HandleSearch)
		docs.POST("/import", h.HandleImport)
		docs.GET("/:id", h.HandleGet)
		docs.PUT("/:id", h.HandleUpdate)
		docs.DELETE("/:id", h.HandleDelete)
		docs.POST("/:id/restore-deleted", h.HandleRestoreDeleted)
		docs.POST("/:id/actions", h.HandleRecordAction)
		docs.POST("/:id/complete", h.statusChange(func(c *gin.Context, u *models.User, id uuid.UUID) (*models.Document, error) {
			return h.documents.Complete(c.Request.Context(), u, id)
		}))
		docs.POST("/:id/archive", h.statusChange(func(c *gin.Context, u *models.User, id uuid.UUID) (*models.Document, error) {
			return h.documents.Archive(c.Request.Context(), u, id)
		}))
		docs.POST("/:id/restore", h.statusChange(func(c *gin.Context, u *models.User, id uuid.UUID) (*models.Document, error) {
			return h.documents.Restore(c.Request.Context(), u, id)
		}))
		docs.GET("/:id/history", h.HandleHistory)
		docs.GET("/:id/qrcode", h.HandleGetQRCode)
		docs.POST("/:id/qrcode", h.HandleRegenerateQRCode)
	}
}
