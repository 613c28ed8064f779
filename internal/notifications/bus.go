package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xamero/smartdocs/internal/metrics"
	"github.com/xamero/smartdocs/internal/models"
)

// Publisher sends an event body to the message bus
type Publisher interface {
	Publish(ctx context.Context, eventType string, body interface{}) error
}

// BusSink publishes events for the worker to deliver
type BusSink struct {
	publisher Publisher
	metrics   *metrics.Metrics
}

// NewBusSink creates a sink that publishes to the message bus
func NewBusSink(publisher Publisher, collector *metrics.Metrics) *BusSink {
	return &BusSink{publisher: publisher, metrics: collector}
}

func (b *BusSink) NotifyDocumentRouted(ctx context.Context, doc *models.Document, officeID uuid.UUID, remarks string) {
	b.publish(ctx, RoutedEvent(doc, officeID, remarks))
}

func (b *BusSink) NotifyDocumentReceived(ctx context.Context, doc *models.Document, receiver *models.User) {
	b.publish(ctx, ReceivedEvent(doc, receiver))
}

func (b *BusSink) NotifyDocumentOverdue(ctx context.Context, doc *models.Document) {
	b.publish(ctx, OverdueEvent(doc))
}

func (b *BusSink) publish(ctx context.Context, e Event) {
	if err := b.publisher.Publish(ctx, string(e.Type), e); err != nil {
		b.metrics.IncrementCounter(metrics.NotificationsFailed)
		log.Error().Err(err).
			Str("event", string(e.Type)).
			Str("document_id", e.DocumentID.String()).
			Msg("Failed to publish notification event")
	}
}
