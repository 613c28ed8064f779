package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/internal/models"
)

// SystemConfigRepository reads runtime settings
type SystemConfigRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewSystemConfigRepository creates a new system configuration repository
func NewSystemConfigRepository(db *gorm.DB, readOnlyDB *gorm.DB) *SystemConfigRepository {
	return &SystemConfigRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Get returns the value for key and whether it was set
func (r *SystemConfigRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var cfg models.SystemConfiguration
	err := r.readOnlyDB.WithContext(ctx).Where("key = ?", key).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "failed to read system configuration")
	}
	return cfg.Value, true, nil
}

// Set upserts a value
func (r *SystemConfigRepository) Set(ctx context.Context, key, value string) error {
	return errors.Wrap(
		r.db.WithContext(ctx).Save(&models.SystemConfiguration{Key: key, Value: value}).Error,
		"failed to write system configuration",
	)
}

// QRCodeRepository provides access to document verification codes
type QRCodeRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewQRCodeRepository creates a new QR code repository
func NewQRCodeRepository(db *gorm.DB, readOnlyDB *gorm.DB) *QRCodeRepository {
	return &QRCodeRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// WithTx binds the repository to an open transaction
func (r *QRCodeRepository) WithTx(tx *gorm.DB) *QRCodeRepository {
	return &QRCodeRepository{db: tx, readOnlyDB: tx}
}

// Create inserts a code
func (r *QRCodeRepository) Create(ctx context.Context, code *models.QRCode) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(code).Error, "failed to create qr code")
}

// GetByCode gets an active code
func (r *QRCodeRepository) GetByCode(ctx context.Context, code string) (*models.QRCode, error) {
	var qr models.QRCode
	err := r.readOnlyDB.WithContext(ctx).Where("code = ? AND is_active = ?", code, true).First(&qr).Error
	if err != nil {
		return nil, wrap(err, "failed to get qr code")
	}
	return &qr, nil
}

// GetByDocument gets the active code of a document
func (r *QRCodeRepository) GetByDocument(ctx context.Context, documentID uuid.UUID) (*models.QRCode, error) {
	var qr models.QRCode
	err := r.readOnlyDB.WithContext(ctx).
		Where("document_id = ? AND is_active = ?", documentID, true).
		Order("created_at DESC").
		First(&qr).Error
	if err != nil {
		return nil, wrap(err, "failed to get document qr code")
	}
	return &qr, nil
}

// RecordScan bumps the scan counter
func (r *QRCodeRepository) RecordScan(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.QRCode{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"scan_count":      gorm.Expr("scan_count + 1"),
			"last_scanned_at": at,
		}).Error
	return errors.Wrap(err, "failed to record qr scan")
}

// DeactivateForDocument retires every active code of a document
func (r *QRCodeRepository) DeactivateForDocument(ctx context.Context, documentID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.QRCode{}).
		Where("document_id = ? AND is_active = ?", documentID, true).
		Update("is_active", false).Error
	return errors.Wrap(err, "failed to deactivate qr codes")
}
