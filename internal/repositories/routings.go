package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/internal/models"
)

var inFlightStatuses = []models.RoutingStatus{models.RoutingPending, models.RoutingInTransit}

// RoutingRepository provides access to document routings
type RoutingRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewRoutingRepository creates a new routing repository
func NewRoutingRepository(db *gorm.DB, readOnlyDB *gorm.DB) *RoutingRepository {
	return &RoutingRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// WithTx binds the repository to an open transaction
func (r *RoutingRepository) WithTx(tx *gorm.DB) *RoutingRepository {
	return &RoutingRepository{db: tx, readOnlyDB: tx}
}

// Create inserts a routing
func (r *RoutingRepository) Create(ctx context.Context, routing *models.DocumentRouting) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(routing).Error, "failed to create routing")
}

// Save writes every field of the routing
func (r *RoutingRepository) Save(ctx context.Context, routing *models.DocumentRouting) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(routing).Error, "failed to save routing")
}

// Delete hard-deletes a routing
func (r *RoutingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return errors.Wrap(r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.DocumentRouting{}).Error, "failed to delete routing")
}

// GetByID gets a routing by id
func (r *RoutingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DocumentRouting, error) {
	var routing models.DocumentRouting
	err := r.readOnlyDB.WithContext(ctx).Where("id = ?", id).First(&routing).Error
	if err != nil {
		return nil, wrap(err, "failed to get routing")
	}
	return &routing, nil
}

// MaxSequence returns the highest sequence on a document, or 0
func (r *RoutingRepository) MaxSequence(ctx context.Context, documentID uuid.UUID) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&models.DocumentRouting{}).
		Where("document_id = ?", documentID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to read max routing sequence")
	}
	return max, nil
}

// InFlightTransfer returns the in-flight custody transfer of a document, or
// nil. Summary routings for copies are not transfers.
func (r *RoutingRepository) InFlightTransfer(ctx context.Context, documentID uuid.UUID) (*models.DocumentRouting, error) {
	var routings []models.DocumentRouting
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND status IN ? AND copy_document_id IS NULL", documentID, inFlightStatuses).
		Order("sequence DESC").
		Limit(1).
		Find(&routings).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find in-flight routing")
	}
	if len(routings) == 0 {
		return nil, nil
	}
	return &routings[0], nil
}

// InboundOfficeIDs returns the destinations of a document's in-flight routings
func (r *RoutingRepository) InboundOfficeIDs(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.DocumentRouting{}).
		Where("document_id = ? AND status IN ?", documentID, inFlightStatuses).
		Distinct().
		Pluck("to_office_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list inbound offices")
	}
	return ids, nil
}

// HasReceived reports whether a custody transfer of the document was ever
// received. Summary routings mirror their copy and do not count.
func (r *RoutingRepository) HasReceived(ctx context.Context, documentID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DocumentRouting{}).
		Where("document_id = ? AND status = ? AND copy_document_id IS NULL", documentID, models.RoutingReceived).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "failed to check received routings")
	}
	return count > 0, nil
}

// SummaryForCopy returns the summary routing on the main document that
// records the creation of copyID
func (r *RoutingRepository) SummaryForCopy(ctx context.Context, copyID uuid.UUID) (*models.DocumentRouting, error) {
	var routing models.DocumentRouting
	err := r.db.WithContext(ctx).Where("copy_document_id = ?", copyID).First(&routing).Error
	if err != nil {
		return nil, wrap(err, "failed to get summary routing")
	}
	return &routing, nil
}

// ListByDocument returns a document's routings in sequence order
func (r *RoutingRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]models.DocumentRouting, error) {
	return r.ListByDocuments(ctx, []uuid.UUID{documentID})
}

// ListByDocuments returns the routings of several documents ordered by
// document then sequence
func (r *RoutingRepository) ListByDocuments(ctx context.Context, documentIDs []uuid.UUID) ([]models.DocumentRouting, error) {
	var routings []models.DocumentRouting
	if len(documentIDs) == 0 {
		return routings, nil
	}
	err := r.readOnlyDB.WithContext(ctx).
		Where("document_id IN ?", documentIDs).
		Order("document_id ASC, sequence ASC").
		Find(&routings).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list routings")
	}
	return routings, nil
}

// ActionRepository provides access to the append-only action log
type ActionRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewActionRepository creates a new action repository
func NewActionRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ActionRepository {
	return &ActionRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// WithTx binds the repository to an open transaction
func (r *ActionRepository) WithTx(tx *gorm.DB) *ActionRepository {
	return &ActionRepository{db: tx, readOnlyDB: tx}
}

// Create appends an action
func (r *ActionRepository) Create(ctx context.Context, action *models.DocumentAction) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(action).Error, "failed to create action")
}

// ListByDocument returns actions oldest first
func (r *ActionRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]models.DocumentAction, error) {
	var actions []models.DocumentAction
	err := r.readOnlyDB.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("action_at ASC").
		Find(&actions).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list actions")
	}
	return actions, nil
}
