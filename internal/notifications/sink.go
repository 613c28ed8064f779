// Package notifications delivers routing events to office inboxes. Delivery
// is fire-and-forget: failures are logged and never reach the caller.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/xamero/smartdocs/internal/models"
)

// Sink receives document events after the state change has committed
type Sink interface {
	NotifyDocumentRouted(ctx context.Context, doc *models.Document, officeID uuid.UUID, remarks string)
	NotifyDocumentReceived(ctx context.Context, doc *models.Document, receiver *models.User)
	NotifyDocumentOverdue(ctx context.Context, doc *models.Document)
}

// EventType identifies a notification event on the wire
type EventType string

const (
	EventDocumentRouted   EventType = "document.routed"
	EventDocumentReceived EventType = "document.received"
	EventDocumentOverdue  EventType = "document.overdue"
)

// Event is the serializable form of a notification
type Event struct {
	Type           EventType  `json:"type"`
	DocumentID     uuid.UUID  `json:"document_id"`
	TrackingNumber string     `json:"tracking_number"`
	DocumentTitle  string     `json:"document_title"`
	OfficeID       uuid.UUID  `json:"office_id"`
	FromOfficeID   *uuid.UUID `json:"from_office_id,omitempty"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
	Remarks        string     `json:"remarks,omitempty"`
	DateDue        *time.Time `json:"date_due,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// RoutedEvent describes a document routed to officeID
func RoutedEvent(doc *models.Document, officeID uuid.UUID, remarks string) Event {
	from := doc.CurrentOfficeID
	return Event{
		Type:           EventDocumentRouted,
		DocumentID:     doc.ID,
		TrackingNumber: doc.TrackingNumber,
		DocumentTitle:  doc.Title,
		OfficeID:       officeID,
		FromOfficeID:   &from,
		Remarks:        remarks,
		OccurredAt:     time.Now().UTC(),
	}
}

// ReceivedEvent describes a document received by receiver
func ReceivedEvent(doc *models.Document, receiver *models.User) Event {
	userID := receiver.ID
	return Event{
		Type:           EventDocumentReceived,
		DocumentID:     doc.ID,
		TrackingNumber: doc.TrackingNumber,
		DocumentTitle:  doc.Title,
		OfficeID:       doc.CurrentOfficeID,
		UserID:         &userID,
		OccurredAt:     time.Now().UTC(),
	}
}

// OverdueEvent describes a document past its due date
func OverdueEvent(doc *models.Document) Event {
	return Event{
		Type:           EventDocumentOverdue,
		DocumentID:     doc.ID,
		TrackingNumber: doc.TrackingNumber,
		DocumentTitle:  doc.Title,
		OfficeID:       doc.CurrentOfficeID,
		DateDue:        doc.DateDue,
		OccurredAt:     time.Now().UTC(),
	}
}

// Fanout forwards every event to each sink in order
type Fanout []Sink

func (f Fanout) NotifyDocumentRouted(ctx context.Context, doc *models.Document, officeID uuid.UUID, remarks string) {
	for _, s := range f {
		s.NotifyDocumentRouted(ctx, doc, officeID, remarks)
	}
}

func (f Fanout) NotifyDocumentReceived(ctx context.Context, doc *models.Document, receiver *models.User) {
	for _, s := range f {
		s.NotifyDocumentReceived(ctx, doc, receiver)
	}
}

func (f Fanout) NotifyDocumentOverdue(ctx context.Context, doc *models.Document) {
	for _, s := range f {
		s.NotifyDocumentOverdue(ctx, doc)
	}
}

// Noop discards every event
type Noop struct{}

func (Noop) NotifyDocumentRouted(context.Context, *models.Document, uuid.UUID, string) {}
func (Noop) NotifyDocumentReceived(context.Context, *models.Document, *models.User)    {}
func (Noop) NotifyDocumentOverdue(context.Context, *models.Document)                   {}
