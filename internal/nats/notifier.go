package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/atendai/orchestrator/internal/model"
)

const (
	// StreamName is the name of the notifications stream.
	StreamName = "NOTIFICATIONS"

	// SubjectPrefix is the prefix for all notification subjects.
	SubjectPrefix = "notify"
)

// Notifier publishes tenant lifecycle notifications to JetStream, where
// tenant-side integrations consume them.
type Notifier struct {
	client *Client
}

// NewNotifier creates a notifier over an established NATS client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// EnsureStream ensures the notifications stream exists.
func (n *Notifier) EnsureStream(ctx context.Context) error {
	js := n.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Tenant lifecycle notifications",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for a lifecycle event.
func EventSubject(tenantID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, tenantID, eventType)
}

// Publish publishes a lifecycle event.
func (n *Notifier) Publish(ctx context.Context, tenantID, conversationID string, eventType model.EventType, payload map[string]any) error {
	event := &model.LifecycleEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		TenantID:       tenantID,
		ConversationID: conversationID,
		Type:           eventType,
		Payload:        payload,
		CreatedAt:      time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := n.client.JetStream().Publish(ctx, EventSubject(tenantID, eventType), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
