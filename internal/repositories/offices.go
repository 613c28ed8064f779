package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/internal/models"
)

// OfficeRepository provides access to offices
type OfficeRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewOfficeRepository creates a new office repository
func NewOfficeRepository(db *gorm.DB, readOnlyDB *gorm.DB) *OfficeRepository {
	return &OfficeRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// WithTx binds the repository to an open transaction
func (r *OfficeRepository) WithTx(tx *gorm.DB) *OfficeRepository {
	return &OfficeRepository{db: tx, readOnlyDB: tx}
}

// GetByID gets an office by id
func (r *OfficeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Office, error) {
	var office models.Office
	err := r.readOnlyDB.WithContext(ctx).Where("id = ?", id).First(&office).Error
	if err != nil {
		return nil, wrap(err, "failed to get office")
	}
	return &office, nil
}

// GetActiveByIDs returns the active offices among ids, keyed by id
func (r *OfficeRepository) GetActiveByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Office, error) {
	out := make(map[uuid.UUID]models.Office, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var offices []models.Office
	err := r.readOnlyDB.WithContext(ctx).
		Where("id IN ? AND is_active = ?", ids, true).
		Find(&offices).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get offices")
	}
	for _, o := range offices {
		out[o.ID] = o
	}
	return out, nil
}

// List returns active offices in display order
func (r *OfficeRepository) List(ctx context.Context) ([]models.Office, error) {
	var offices []models.Office
	err := r.readOnlyDB.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, name ASC").
		Find(&offices).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list offices")
	}
	return offices, nil
}

// Create inserts an office
func (r *OfficeRepository) Create(ctx context.Context, office *models.Office) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(office).Error, "failed to create office")
}

// UserRepository reads users; identities are managed elsewhere
type UserRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB, readOnlyDB *gorm.DB) *UserRepository {
	return &UserRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// WithTx binds the repository to an open transaction
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx, readOnlyDB: tx}
}

// GetByID gets a user by id
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.readOnlyDB.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, wrap(err, "failed to get user")
	}
	return &user, nil
}

// ActiveByOffice returns the active users assigned to an office
func (r *UserRepository) ActiveByOffice(ctx context.Context, officeID uuid.UUID) ([]models.User, error) {
	var users []models.User
	err := r.readOnlyDB.WithContext(ctx).
		Where("office_id = ? AND is_active = ?", officeID, true).
		Find(&users).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list office users")
	}
	return users, nil
}
