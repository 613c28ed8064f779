// Package tracking allocates human-readable tracking numbers of the form
// PREFIX-YYYY-NNNNNN.
package tracking

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xamero/smartdocs/internal/database"
	"github.com/xamero/smartdocs/internal/models"
)

const fallbackPrefix = "DOC"

var trackingPattern = regexp.MustCompile(`^[A-Z]{2,4}-\d{4}-\d{6}$`)

var defaultPrefixes = map[models.DocumentType]string{
	models.DocumentTypeIncoming: "IN",
	models.DocumentTypeOutgoing: "OUT",
	models.DocumentTypeInternal: "INT",
}

// DefaultPrefix maps a document type to its built-in prefix
func DefaultPrefix(docType models.DocumentType) string {
	if p, ok := defaultPrefixes[docType]; ok {
		return p
	}
	return fallbackPrefix
}

// Format renders a tracking number
func Format(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%04d-%06d", prefix, year, seq)
}

// Valid reports whether s is a well-formed main-document tracking number
func Valid(s string) bool {
	return trackingPattern.MatchString(s)
}

// Parse splits a main-document tracking number into its parts
func Parse(s string) (prefix string, year int, seq int, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return "", 0, 0, errors.Errorf("malformed tracking number %q", s)
	}
	if year, err = strconv.Atoi(parts[1]); err != nil {
		return "", 0, 0, errors.Wrapf(err, "malformed year in %q", s)
	}
	if seq, err = strconv.Atoi(parts[2]); err != nil {
		return "", 0, 0, errors.Wrapf(err, "malformed sequence in %q", s)
	}
	return parts[0], year, seq, nil
}

// CopyTrackingNumber derives the tracking number of the n-th copy
func CopyTrackingNumber(main string, n int) string {
	return fmt.Sprintf("%s-COPY-%d", main, n)
}

// Allocator hands out tracking numbers inside a caller's transaction
type Allocator struct {
	prefixes map[string]string
	now      func() time.Time
}

// NewAllocator creates an allocator. prefixes maps document type names to
// prefixes and overrides the built-in ones.
func NewAllocator(prefixes map[string]string) *Allocator {
	return &Allocator{
		prefixes: prefixes,
		now:      time.Now,
	}
}

// Prefix resolves the prefix for a document type
func (a *Allocator) Prefix(docType models.DocumentType) string {
	if p, ok := a.prefixes[string(docType)]; ok && p != "" {
		return strings.ToUpper(p)
	}
	return DefaultPrefix(docType)
}

// Generate allocates the next tracking number for docType. prefix, when
// non-empty, overrides the type's prefix. tx must be an open transaction:
// the (prefix, year) lock row stays held until it commits.
func (a *Allocator) Generate(tx *gorm.DB, docType models.DocumentType, prefix string) (string, error) {
	if prefix == "" {
		prefix = a.Prefix(docType)
	}
	prefix = strings.ToUpper(prefix)
	year := a.now().Year()

	lock := models.TrackingSequence{Prefix: prefix, Year: year}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock).Error; err != nil {
		return "", errors.Wrap(err, "failed to create tracking sequence row")
	}
	if err := database.ForUpdate(tx).
		Where("prefix = ? AND year = ?", prefix, year).
		First(&lock).Error; err != nil {
		return "", errors.Wrap(err, "failed to lock tracking sequence row")
	}

	// Soft-deleted documents keep their numbers; copies carry a suffix and
	// never take part in main numbering.
	var last []string
	err := tx.Unscoped().
		Model(&models.Document{}).
		Where("is_copy = ? AND tracking_number LIKE ?", false, fmt.Sprintf("%s-%04d-%%", prefix, year)).
		Order("tracking_number DESC").
		Limit(1).
		Pluck("tracking_number", &last).Error
	if err != nil {
		return "", errors.Wrap(err, "failed to read last tracking number")
	}

	next := 1
	if len(last) > 0 {
		_, _, seq, err := Parse(last[0])
		if err != nil {
			log.Warn().Err(err).Str("tracking_number", last[0]).Msg("Ignoring unparseable tracking number")
		} else {
			next = seq + 1
		}
	}

	return Format(prefix, year, next), nil
}
