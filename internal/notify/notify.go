// Package notify hands staged notification records to an external transport.
// Delivery is best effort: the NotificationSink is the source of truth and a
// failed forward never undoes a recorded notification.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
)

// EventNotificationCreated is the event type carried in published envelopes
const EventNotificationCreated = "notification.created"

// Forwarder passes a recorded notification on to a mailer or message bus
type Forwarder interface {
	Forward(ctx context.Context, n domain.NotificationRecord) error
}

// Publisher is the subset of the RabbitMQ client used for forwarding
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Envelope is the message body published for each notification
type Envelope struct {
	Event        string                    `json:"event"`
	PublishedAt  time.Time                 `json:"published_at"`
	Notification domain.NotificationRecord `json:"notification"`
}

// RabbitForwarder publishes notifications to the notifications exchange
type RabbitForwarder struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewRabbitForwarder creates a forwarder on top of publisher
func NewRabbitForwarder(publisher Publisher, logger *slog.Logger) *RabbitForwarder {
	return &RabbitForwarder{publisher: publisher, logger: logger}
}

// Forward publishes n as a JSON envelope
func (f *RabbitForwarder) Forward(ctx context.Context, n domain.NotificationRecord) error {
	body, err := json.Marshal(Envelope{
		Event:        EventNotificationCreated,
		PublishedAt:  time.Now().UTC(),
		Notification: n,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := f.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	f.logger.Debug("Notification forwarded",
		slog.String("notification_id", n.ID),
		slog.String("tenant_id", n.TenantID),
		slog.String("channel", n.Channel),
	)
	return nil
}

// LogForwarder writes notifications to the log instead of a transport.
// Used in development and when RabbitMQ is disabled.
type LogForwarder struct {
	logger *slog.Logger
}

func NewLogForwarder(logger *slog.Logger) *LogForwarder {
	return &LogForwarder{logger: logger}
}

func (f *LogForwarder) Forward(_ context.Context, n domain.NotificationRecord) error {
	f.logger.Info("Notification staged",
		slog.String("notification_id", n.ID),
		slog.String("tenant_id", n.TenantID),
		slog.String("job_id", n.JobID),
		slog.String("channel", n.Channel),
		slog.String("recipient", n.Recipient),
		slog.String("subject", n.Subject),
	)
	return nil
}
