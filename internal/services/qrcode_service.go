package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/config"
	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/repositories"
)

// Verification is what a QR scan reveals about a document
type Verification struct {
	Code           string                `json:"code"`
	DocumentID     uuid.UUID             `json:"document_id"`
	TrackingNumber string                `json:"tracking_number"`
	Title          string                `json:"title"`
	Status         models.DocumentStatus `json:"status"`
	ScanCount      int                   `json:"scan_count"`
}

// QRCodeService issues and verifies document verification codes. Rendering
// the QR image is left to clients.
type QRCodeService struct {
	codes     *repositories.QRCodeRepository
	documents *repositories.DocumentRepository
	cfg       config.QRCodeConfig
	now       func() time.Time
}

// NewQRCodeService creates a new QR code service
func NewQRCodeService(db, readOnlyDB *gorm.DB, cfg config.QRCodeConfig) *QRCodeService {
	return &QRCodeService{
		codes:     repositories.NewQRCodeRepository(db, readOnlyDB),
		documents: repositories.NewDocumentRepository(db, readOnlyDB),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Enabled reports whether documents get codes on registration
func (s *QRCodeService) Enabled() bool {
	return s != nil && s.cfg.Enabled
}

// Generate issues a new active code for doc inside tx, retiring any
// previous one
func (s *QRCodeService) Generate(ctx context.Context, tx *gorm.DB, doc *models.Document) (*models.QRCode, error) {
	codes := s.codes.WithTx(tx)
	if err := codes.DeactivateForDocument(ctx, doc.ID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	code := strings.ReplaceAll(uuid.NewString(), "-", "")
	sum := sha256.Sum256([]byte(doc.TrackingNumber + code + strconv.FormatInt(now.Unix(), 10)))

	meta, err := json.Marshal(map[string]interface{}{
		"tracking_number": doc.TrackingNumber,
		"title":           doc.Title,
		"status":          doc.Status,
		"generated_at":    now.Format(time.RFC3339),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal qr metadata")
	}

	qr := &models.QRCode{
		DocumentID:      doc.ID,
		Code:            code,
		Hash:            hex.EncodeToString(sum[:]),
		VerificationURL: strings.TrimRight(s.cfg.BaseURL, "/") + "/api/v1/verify/" + code,
		Metadata:        datatypes.JSON(meta),
		IsActive:        true,
	}
	if err := codes.Create(ctx, qr); err != nil {
		return nil, err
	}
	return qr, nil
}

// Verify resolves an active code and records the scan
func (s *QRCodeService) Verify(ctx context.Context, code string) (*Verification, error) {
	qr, err := s.codes.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	doc, err := s.documents.GetByID(ctx, qr.DocumentID)
	if err != nil {
		return nil, err
	}

	if err := s.codes.RecordScan(ctx, qr.ID, s.now().UTC()); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("Failed to record qr scan")
	} else {
		qr.ScanCount++
	}

	return &Verification{
		Code:           qr.Code,
		DocumentID:     doc.ID,
		TrackingNumber: doc.TrackingNumber,
		Title:          doc.Title,
		Status:         doc.Status,
		ScanCount:      qr.ScanCount,
	}, nil
}

// ForDocument returns the active code of a document
func (s *QRCodeService) ForDocument(ctx context.Context, documentID uuid.UUID) (*models.QRCode, error) {
	return s.codes.GetByDocument(ctx, documentID)
}
