package model

import (
	"time"
)

// EventType identifies a tenant lifecycle notification.
type EventType string

const (
	EventConversationCreated EventType = "conversation.created"
	EventConversationUpdated EventType = "conversation.updated"
	EventMessageReceived     EventType = "message.received"
)

// LifecycleEvent is published to tenant-configured integrations when
// conversations change.
type LifecycleEvent struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	ConversationID string         `json:"conversation_id"`
	Type           EventType      `json:"type"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
