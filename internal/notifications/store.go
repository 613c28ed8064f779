package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"github.com/xamero/smartdocs/internal/metrics"
	"github.com/xamero/smartdocs/internal/models"
	"github.com/xamero/smartdocs/internal/repositories"
)

// StoreSink writes inbox rows for the users an event concerns
type StoreSink struct {
	users         *repositories.UserRepository
	notifications *repositories.NotificationRepository
	metrics       *metrics.Metrics
}

// NewStoreSink creates a sink backed by the notifications table
func NewStoreSink(users *repositories.UserRepository, notifications *repositories.NotificationRepository, collector *metrics.Metrics) *StoreSink {
	return &StoreSink{
		users:         users,
		notifications: notifications,
		metrics:       collector,
	}
}

func (s *StoreSink) NotifyDocumentRouted(ctx context.Context, doc *models.Document, officeID uuid.UUID, remarks string) {
	s.deliverLogged(ctx, RoutedEvent(doc, officeID, remarks))
}

func (s *StoreSink) NotifyDocumentReceived(ctx context.Context, doc *models.Document, receiver *models.User) {
	s.deliverLogged(ctx, ReceivedEvent(doc, receiver))
}

func (s *StoreSink) NotifyDocumentOverdue(ctx context.Context, doc *models.Document) {
	s.deliverLogged(ctx, OverdueEvent(doc))
}

func (s *StoreSink) deliverLogged(ctx context.Context, e Event) {
	if err := s.Deliver(ctx, e); err != nil {
		s.metrics.IncrementCounter(metrics.NotificationsFailed)
		log.Error().Err(err).
			Str("event", string(e.Type)).
			Str("document_id", e.DocumentID.String()).
			Msg("Failed to store notification")
	}
}

// HandleMessage decodes a bus message and delivers it. Suitable as a
// messaging.Handler.
func (s *StoreSink) HandleMessage(ctx context.Context, body []byte) error {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		// Poison message; redelivery will not help
		log.Error().Err(err).Msg("Dropping undecodable notification event")
		return nil
	}
	return s.Deliver(ctx, e)
}

// Deliver persists the inbox rows for an event
func (s *StoreSink) Deliver(ctx context.Context, e Event) error {
	data := map[string]interface{}{
		"document_id":     e.DocumentID,
		"document_title":  e.DocumentTitle,
		"tracking_number": e.TrackingNumber,
	}

	var (
		recipients []uuid.UUID
		nType      = models.NotificationRouting
		title      string
		message    string
	)

	switch e.Type {
	case EventDocumentRouted:
		title = "New Document Routed"
		message = fmt.Sprintf("Document %s has been routed to your office.", e.TrackingNumber)
		data["to_office_id"] = e.OfficeID
		data["remarks"] = e.Remarks
		if e.FromOfficeID != nil {
			data["from_office_id"] = *e.FromOfficeID
		}
		users, err := s.users.ActiveByOffice(ctx, e.OfficeID)
		if err != nil {
			return err
		}
		for _, u := range users {
			recipients = append(recipients, u.ID)
		}
	case EventDocumentReceived:
		if e.UserID == nil {
			return errors.New("received event without user")
		}
		title = "Document Received"
		message = fmt.Sprintf("Document %s has been received in your office.", e.TrackingNumber)
		recipients = []uuid.UUID{*e.UserID}
	case EventDocumentOverdue:
		nType = models.NotificationOverdue
		title = "Overdue Document"
		message = fmt.Sprintf("Document %s is overdue.", e.TrackingNumber)
		if e.DateDue != nil {
			data["date_due"] = e.DateDue.Format("2006-01-02")
		}
		users, err := s.users.ActiveByOffice(ctx, e.OfficeID)
		if err != nil {
			return err
		}
		for _, u := range users {
			recipients = append(recipients, u.ID)
		}
	default:
		return errors.Errorf("unknown notification event %q", e.Type)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification data")
	}

	officeID := e.OfficeID
	documentID := e.DocumentID
	rows := make([]models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		rows = append(rows, models.Notification{
			UserID:     userID,
			OfficeID:   &officeID,
			DocumentID: &documentID,
			Type:       nType,
			Title:      title,
			Message:    message,
			Data:       datatypes.JSON(payload),
		})
	}

	if err := s.notifications.CreateBatch(ctx, rows); err != nil {
		return err
	}
	s.metrics.IncrementCounterBy(metrics.NotificationsSent, int64(len(rows)))
	return nil
}
