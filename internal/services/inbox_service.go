package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/repositories"
)

// InboxService reads and acknowledges a user's notifications
type InboxService struct {
	notifications *repositories.NotificationRepository
	now           func() time.Time
}

// NewInboxService creates a new inbox service
func NewInboxService(db, readOnlyDB *gorm.DB) *InboxService {
	return &InboxService{
		notifications: repositories.NewNotificationRepository(db, readOnlyDB),
		now:           time.Now,
	}
}

// List returns the actor's newest notifications
func (s *InboxService) List(ctx context.Context, actor *models.User, unreadOnly bool, limit int) ([]models.Notification, error) {
	return s.notifications.ListForUser(ctx, actor.ID, unreadOnly, limit)
}

// MarkRead acknowledges one of the actor's notifications
func (s *InboxService) MarkRead(ctx context.Context, actor *models.User, id uuid.UUID) error {
	return s.notifications.MarkRead(ctx, id, actor.ID, s.now().UTC())
}
