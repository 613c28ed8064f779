package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/internal/models"
)

// NotificationRepository provides access to user inboxes
type NotificationRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB, readOnlyDB *gorm.DB) *NotificationRepository {
	return &NotificationRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// CreateBatch inserts notifications in one statement
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return errors.Wrap(r.db.WithContext(ctx).Create(&notifications).Error, "failed to create notifications")
}

// ListForUser returns the newest notifications of a user
func (r *NotificationRepository) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	q := r.readOnlyDB.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}

	var notifications []models.Notification
	err := q.Order("created_at DESC").Limit(limit).Find(&notifications).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead flags a notification read. Only the owner may do so.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to mark notification read")
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(models.ErrNotFound, "notification not found")
	}
	return nil
}
