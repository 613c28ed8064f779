package messaging

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/xamero/smartdocs/config"
)

// Handler processes the body of one message. A returned error abandons the
// message so it is redelivered.
type Handler func(ctx context.Context, body []byte) error

// settler is the part of *azservicebus.Receiver used to settle messages
type settler interface {
	CompleteMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.CompleteMessageOptions) error
	AbandonMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.AbandonMessageOptions) error
}

// ServiceBus publishes to and consumes from a single queue
type ServiceBus struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
	source    string
	batchSize int
}

// NewServiceBus creates a new Azure Service Bus client for the configured queue
func NewServiceBus(cfg config.AzureConfig, source string) (*ServiceBus, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &ServiceBus{
		client:    client,
		sender:    sender,
		queueName: cfg.QueueName,
		source:    source,
		batchSize: 10,
	}, nil
}

// QueueName returns the queue this client is bound to
func (s *ServiceBus) QueueName() string {
	return s.queueName
}

// Publish sends body as JSON with the event type as an application property
func (s *ServiceBus) Publish(ctx context.Context, eventType string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message body")
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"source":     s.source,
			"event_type": eventType,
			"time":       time.Now().UTC().Format(time.RFC3339),
		},
	}

	return RetryWithBackoff(ctx, func() error {
		return s.sender.SendMessage(ctx, msg, nil)
	}, 3)
}

// ProcessMessages receives messages until ctx is cancelled
func (s *ServiceBus) ProcessMessages(ctx context.Context, handler Handler) error {
	receiver, err := s.client.NewReceiverForQueue(s.queueName, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to create receiver for queue %s", s.queueName)
	}
	defer func() {
		_ = receiver.Close(context.Background())
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		var messages []*azservicebus.ReceivedMessage
		err := RetryWithBackoff(ctx, func() error {
			var rerr error
			messages, rerr = receiver.ReceiveMessages(ctx, s.batchSize, nil)
			return rerr
		}, 5)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to receive messages")
		}

		for _, msg := range messages {
			dispatch(ctx, receiver, msg, handler)
		}
	}
}

func dispatch(ctx context.Context, s settler, msg *azservicebus.ReceivedMessage, handler Handler) {
	if err := handler(ctx, msg.Body); err != nil {
		log.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to process message, abandoning")
		if aerr := s.AbandonMessage(ctx, msg, nil); aerr != nil {
			log.Error().Err(aerr).Str("message_id", msg.MessageID).Msg("Failed to abandon message")
		}
		return
	}

	if err := s.CompleteMessage(ctx, msg, nil); err != nil {
		log.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to complete message")
	}
}

// Close closes the sender and the client
func (s *ServiceBus) Close(ctx context.Context) error {
	if s.sender != nil {
		if err := s.sender.Close(ctx); err != nil {
			return err
		}
	}
	if s.client != nil {
		return s.client.Close(ctx)
	}
	return nil
}

// IsDisconnectionError checks if an error is a transient link failure
func IsDisconnectionError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "amqp: link detached") ||
		strings.Contains(msg, "awaiting send: context deadline exceeded") ||
		strings.Contains(msg, "connection reset by peer")
}

// RetryWithBackoff retries fn on disconnection errors with exponential backoff
func RetryWithBackoff(ctx context.Context, fn func() error, maxRetries int) error {
	var err error

	for retry := 0; retry < maxRetries; retry++ {
		err = fn()
		if err == nil || !IsDisconnectionError(err) {
			return err
		}

		backoff := time.Duration(1<<uint(retry)) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return err
}
