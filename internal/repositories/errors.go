package repositories

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/internal/models"
)

// wrap maps gorm's not-found error onto models.ErrNotFound and adds context
// to everything else.
func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(models.ErrNotFound, msg)
	}
	return errors.Wrap(err, msg)
}
