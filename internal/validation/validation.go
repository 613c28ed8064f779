package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/tracking"
)

var (
	validate      *validator.Validate
	prefixPattern = regexp.MustCompile(`^[A-Za-z]{2,4}$`)
)

func init() {
	validate = validator.New()
	registerCustomValidations()
}

// ValidateStruct validates a struct using validation tags. Failures are
// returned as models.ErrValidation listing every offending field.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(models.ErrValidation, err.Error())
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.Wrap(models.ErrValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// IsValidTrackingPrefix checks a tracking number prefix
func IsValidTrackingPrefix(prefix string) bool {
	return prefixPattern.MatchString(prefix)
}

func registerCustomValidations() {
	validate.RegisterValidation("tracking_prefix", func(fl validator.FieldLevel) bool {
		return IsValidTrackingPrefix(fl.Field().String())
	})

	validate.RegisterValidation("tracking_number", func(fl validator.FieldLevel) bool {
		return tracking.Valid(fl.Field().String())
	})
}
