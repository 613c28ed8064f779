package models

import "github.com/pkg/errors"

// Domain errors. Callers wrap these with context; match with errors.Is.
var (
	ErrNotFound           = errors.New("record not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidDestination = errors.New("invalid destination")
	ErrValidation         = errors.New("validation failed")
)
