package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
)

type fakePublisher struct {
	bodies       [][]byte
	contentTypes []string
	err          error
}

func (p *fakePublisher) PublishWithRetry(_ context.Context, body []byte, contentType string) error {
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, body)
	p.contentTypes = append(p.contentTypes, contentType)
	return nil
}

func testRecord() domain.NotificationRecord {
	return domain.NotificationRecord{
		ID:        "n-1",
		TenantID:  "org-a",
		JobID:     "job-1",
		Channel:   domain.ChannelEmail,
		Recipient: "ops@a.test",
		Subject:   "Analysis ready for q3.xlsx",
		Body:      "Your analysis is ready.",
		Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRabbitForwarder_Forward(t *testing.T) {
	pub := &fakePublisher{}
	f := NewRabbitForwarder(pub, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	require.NoError(t, f.Forward(context.Background(), testRecord()))
	require.Len(t, pub.bodies, 1)
	assert.Equal(t, "application/json", pub.contentTypes[0])

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.bodies[0], &env))
	assert.Equal(t, EventNotificationCreated, env.Event)
	assert.Equal(t, testRecord(), env.Notification)
	assert.False(t, env.PublishedAt.IsZero())
}

func TestRabbitForwarder_PublishError(t *testing.T) {
	boom := errors.New("channel closed")
	f := NewRabbitForwarder(&fakePublisher{err: boom}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	err := f.Forward(context.Background(), testRecord())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to publish notification")
}

func TestLogForwarder_Forward(t *testing.T) {
	var buf bytes.Buffer
	f := NewLogForwarder(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, f.Forward(context.Background(), testRecord()))
	assert.Contains(t, buf.String(), "Notification staged")
	assert.Contains(t, buf.String(), "recipient=ops@a.test")
}
