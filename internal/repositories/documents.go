package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/internal/database"
	"github.com/xamero/smartdocs/internal/models"
)

// DocumentRepository provides access to documents
type DocumentRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *gorm.DB, readOnlyDB *gorm.DB) *DocumentRepository {
	return &DocumentRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// WithTx binds the repository to an open transaction for reads and writes
func (r *DocumentRepository) WithTx(tx *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: tx, readOnlyDB: tx}
}

// GetByID gets a document by id
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := r.readOnlyDB.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		return nil, wrap(err, "failed to get document")
	}
	return &doc, nil
}

// GetByTrackingNumber gets a document by its tracking number
func (r *DocumentRepository) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Document, error) {
	var doc models.Document
	err := r.readOnlyDB.WithContext(ctx).Where("tracking_number = ?", trackingNumber).First(&doc).Error
	if err != nil {
		return nil, wrap(err, "failed to get document by tracking number")
	}
	return &doc, nil
}

// GetByIDs loads documents in no particular order
func (r *DocumentRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Document, error) {
	var docs []models.Document
	if len(ids) == 0 {
		return docs, nil
	}
	err := r.readOnlyDB.WithContext(ctx).Where("id IN ?", ids).Find(&docs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get documents")
	}
	return docs, nil
}

// LockByID loads a document and holds a row lock until the transaction ends.
// Must be called on a repository bound with WithTx.
func (r *DocumentRepository) LockByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := database.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&doc).Error
	if err != nil {
		return nil, wrap(err, "failed to lock document")
	}
	return &doc, nil
}

// Create inserts a document
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(doc).Error, "failed to create document")
}

// Save writes every field of the document
func (r *DocumentRepository) Save(ctx context.Context, doc *models.Document) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(doc).Error, "failed to save document")
}

// SoftDelete marks a document deleted
func (r *DocumentRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Document{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to delete document")
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(models.ErrNotFound, "failed to delete document")
	}
	return nil
}

// Restore clears the soft delete marker
func (r *DocumentRepository) Restore(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Unscoped().Model(&models.Document{}).
		Where("id = ? AND deleted_at IS NOT NULL", id).
		Update("deleted_at", nil)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to restore document")
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(models.ErrNotFound, "failed to restore document")
	}
	return nil
}

// GetDeletedByID loads a soft-deleted document
func (r *DocumentRepository) GetDeletedByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := r.readOnlyDB.WithContext(ctx).Unscoped().
		Where("id = ? AND deleted_at IS NOT NULL", id).
		First(&doc).Error
	if err != nil {
		return nil, wrap(err, "failed to get deleted document")
	}
	return &doc, nil
}

// MaxCopyNumber returns the highest copy number issued for a main document,
// counting deleted copies so numbers are never reused.
func (r *DocumentRepository) MaxCopyNumber(ctx context.Context, mainID uuid.UUID) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Unscoped().
		Model(&models.Document{}).
		Where("parent_document_id = ? AND is_copy = ?", mainID, true).
		Select("COALESCE(MAX(copy_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to read max copy number")
	}
	return max, nil
}

// ListCopies returns the copies of a main document ordered by copy number
func (r *DocumentRepository) ListCopies(ctx context.Context, mainID uuid.UUID) ([]models.Document, error) {
	var copies []models.Document
	err := r.readOnlyDB.WithContext(ctx).
		Where("parent_document_id = ? AND is_copy = ?", mainID, true).
		Order("copy_number ASC").
		Find(&copies).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list copies")
	}
	return copies, nil
}

// CreatorOfficeID resolves the office of the user who created the document
func (r *DocumentRepository) CreatorOfficeID(ctx context.Context, doc *models.Document) (*uuid.UUID, error) {
	var user models.User
	err := r.readOnlyDB.WithContext(ctx).Select("office_id").Where("id = ?", doc.CreatedBy).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to resolve creator office")
	}
	return user.OfficeID, nil
}

// ListRetentionCandidates returns up to limit ids of completed, unarchived
// documents received on or before the calendar day of threshold, ordered by
// id and starting after afterID.
func (r *DocumentRepository) ListRetentionCandidates(ctx context.Context, threshold time.Time, afterID uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	q := r.readOnlyDB.WithContext(ctx).
		Model(&models.Document{}).
		Where("status = ? AND is_archived = ? AND date_received IS NOT NULL AND date_received < ?",
			models.StatusCompleted, false, dayAfter(threshold))
	if afterID != uuid.Nil {
		q = q.Where("id > ?", afterID)
	}
	err := q.Order("id ASC").Limit(limit).Pluck("id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list retention candidates")
	}
	return ids, nil
}

// ArchiveIfEligible archives a document still matching the retention
// criteria. Returns false when another writer got there first.
func (r *DocumentRepository) ArchiveIfEligible(ctx context.Context, id uuid.UUID, threshold, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ? AND status = ? AND is_archived = ? AND date_received < ?",
			id, models.StatusCompleted, false, dayAfter(threshold)).
		Updates(map[string]interface{}{
			"status":      models.StatusArchived,
			"is_archived": true,
			"archived_at": now,
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "failed to archive document")
	}
	return res.RowsAffected > 0, nil
}

// DocumentFilter narrows a document listing
type DocumentFilter struct {
	Search       string
	Status       models.DocumentStatus
	DocumentType models.DocumentType
	Priority     models.Priority
	OfficeID     *uuid.UUID
	Overdue      bool
	DueThisWeek  bool
	// VisibleTo limits results to documents an office may view. Nil means no limit.
	VisibleTo *uuid.UUID
	Page      int
	PerPage   int
}

// closedStatuses never count as overdue
var closedStatuses = []models.DocumentStatus{models.StatusCompleted, models.StatusArchived, models.StatusReturned}

// List returns one page of documents, newest first, plus the total count
func (r *DocumentRepository) List(ctx context.Context, f DocumentFilter, now time.Time) ([]models.Document, int64, error) {
	q := r.readOnlyDB.WithContext(ctx).Model(&models.Document{})

	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("tracking_number LIKE ? OR title LIKE ? OR description LIKE ?", like, like, like)
	}

	switch {
	case f.Status == models.StatusArchived:
		q = q.Where("is_archived = ?", true)
	case f.Status != "":
		q = q.Where("status = ? AND is_archived = ?", f.Status, false)
	default:
		q = q.Where("is_archived = ?", false)
	}

	if f.DocumentType != "" {
		q = q.Where("document_type = ?", f.DocumentType)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.OfficeID != nil {
		q = q.Where("current_office_id = ?", *f.OfficeID)
	}

	today := startOfDay(now)
	if f.Overdue {
		q = q.Where("date_due IS NOT NULL AND date_due < ? AND status NOT IN ?", today, closedStatuses)
	}
	if f.DueThisWeek {
		q = q.Where("date_due IS NOT NULL AND date_due >= ? AND date_due < ? AND status NOT IN ?",
			today, today.AddDate(0, 0, 8), closedStatuses)
	}

	if f.VisibleTo != nil {
		office := *f.VisibleTo
		q = q.Where(
			"current_office_id = ? OR created_by IN (?) OR id IN (?)",
			office,
			r.readOnlyDB.Model(&models.User{}).Select("id").Where("office_id = ?", office),
			r.readOnlyDB.Model(&models.DocumentRouting{}).Select("document_id").
				Where("to_office_id = ? AND status IN ?", office, inFlightStatuses),
		)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "failed to count documents")
	}

	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 15
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}

	var docs []models.Document
	err := q.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&docs).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list documents")
	}
	return docs, total, nil
}

// ListOverdue returns up to limit open documents due before the start of
// now's day, ordered by id and starting after afterID
func (r *DocumentRepository) ListOverdue(ctx context.Context, now time.Time, afterID uuid.UUID, limit int) ([]models.Document, error) {
	q := r.readOnlyDB.WithContext(ctx).
		Where("date_due IS NOT NULL AND date_due < ? AND is_archived = ? AND status NOT IN ?",
			startOfDay(now), false, closedStatuses)
	if afterID != uuid.Nil {
		q = q.Where("id > ?", afterID)
	}

	var docs []models.Document
	if err := q.Order("id ASC").Limit(limit).Find(&docs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list overdue documents")
	}
	return docs, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayAfter returns midnight following the calendar day of t
func dayAfter(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1)
}
