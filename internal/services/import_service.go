package services

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/xamero/smartdocs/internal/metrics"
	"github.com/xamero/smartdocs/internal/models"
)

// RowError describes a rejected import row
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult summarizes a bulk import
type ImportResult struct {
	Created int        `json:"created"`
	Failed  int        `json:"failed"`
	Errors  []RowError `json:"errors,omitempty"`
}

// Registrar registers a single document
type Registrar interface {
	Register(ctx context.Context, actor *models.User, req RegisterDocumentRequest) (*models.Document, error)
}

// ImportService registers documents from CSV, one row at a time
type ImportService struct {
	registrar Registrar
	metrics   *metrics.Metrics
}

// NewImportService creates a new import service
func NewImportService(registrar Registrar, collector *metrics.Metrics) *ImportService {
	return &ImportService{registrar: registrar, metrics: collector}
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.Wrapf(models.ErrValidation, "invalid date %q", value)
}

func valueOr(row map[string]string, key, fallback string) string {
	if v := row[key]; v != "" {
		return v
	}
	return fallback
}

// rowRequest maps a CSV row onto a registration request
func rowRequest(row map[string]string) (RegisterDocumentRequest, error) {
	req := RegisterDocumentRequest{
		Title:           valueOr(row, "title", "Untitled"),
		Description:     row["description"],
		DocumentType:    models.DocumentType(valueOr(row, "document_type", string(models.DocumentTypeIncoming))),
		Source:          row["source"],
		Priority:        models.Priority(valueOr(row, "priority", string(models.PriorityNormal))),
		Confidentiality: models.Confidentiality(valueOr(row, "confidentiality", string(models.ConfidentialityPublic))),
	}

	if v := row["receiving_office_id"]; v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return req, errors.Wrapf(models.ErrValidation, "invalid receiving_office_id %q", v)
		}
		req.ReceivingOfficeID = &id
	}

	var err error
	if req.DateReceived, err = parseDate(row["date_received"]); err != nil {
		return req, err
	}
	if req.DateDue, err = parseDate(row["date_due"]); err != nil {
		return req, err
	}
	return req, nil
}

// Import reads a CSV with a header row and registers each data row
// independently. Blank lines are skipped; bad rows are counted and logged.
func (s *ImportService) Import(ctx context.Context, actor *models.User, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrap(models.ErrValidation, "import file is empty")
	}
	if err != nil {
		return nil, errors.Wrap(models.ErrValidation, err.Error())
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")))
	}

	result := &ImportResult{}
	fail := func(line int, err error) {
		result.Failed++
		result.Errors = append(result.Errors, RowError{Row: line, Message: err.Error()})
		s.metrics.IncrementCounter(metrics.ImportRowsFailed)
		log.Warn().Err(err).Int("row", line).Msg("Document import row failed")
	}

	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			fail(line, err)
			continue
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) != len(header) {
			fail(line, errors.Wrapf(models.ErrValidation, "expected %d columns, got %d", len(header), len(record)))
			continue
		}

		row := make(map[string]string, len(header))
		for i, name := range header {
			row[name] = strings.TrimSpace(record[i])
		}

		req, err := rowRequest(row)
		if err != nil {
			fail(line, err)
			continue
		}
		if _, err := s.registrar.Register(ctx, actor, req); err != nil {
			fail(line, err)
			continue
		}
		result.Created++
		s.metrics.IncrementCounter(metrics.ImportRowsCreated)
	}

	log.Info().
		Int("created", result.Created).
		Int("failed", result.Failed).
		Msg("Document import finished")

	return result, nil
}
