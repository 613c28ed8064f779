package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/xamero/smartdocs/internal/models"
)

// ActorKey is the gin context key holding the authenticated *models.User
const ActorKey = "actor"

// ErrorResponse defines the structure of an error response
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// apiError maps a domain error onto an HTTP status and code
type apiError struct {
	sentinel   error
	statusCode int
	code       string
}

var apiErrors = []apiError{
	{models.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{models.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{models.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
	{models.ErrInvalidDestination, http.StatusUnprocessableEntity, "INVALID_DESTINATION"},
	{models.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
}

// WriteError writes an error response. Unknown errors become 500s and are
// logged; their details stay out of the response.
func WriteError(c *gin.Context, err error) {
	for _, e := range apiErrors {
		if errors.Is(err, e.sentinel) {
			c.JSON(e.statusCode, ErrorResponse{Message: err.Error(), Code: e.code})
			return
		}
	}

	log.Error().Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Msg("Unhandled error")
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Message: "Internal server error",
		Code:    "INTERNAL_ERROR",
	})
}

// writeBadRequest reports a request that could not be decoded
func writeBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error(), Code: "INVALID_REQUEST"})
}

// Actor returns the user attached by the actor middleware
func Actor(c *gin.Context) *models.User {
	v, ok := c.Get(ActorKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// uuidParam parses a path parameter as a UUID, writing a 400 on failure
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		writeBadRequest(c, errors.Errorf("invalid %s %q", name, c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}
