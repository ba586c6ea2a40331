package model

import (
	"time"
)

// Direction tells whether a message came from the customer or from our side.
type Direction string

const (
	DirectionCustomer Direction = "customer"
	DirectionAgent    Direction = "agent"
)

// Origin tells who produced an agent-side message.
type Origin string

const (
	OriginAI       Origin = "ai"
	OriginOperator Origin = "operator"
	OriginSystem   Origin = "system"
)

// MessageStatus is the delivery state of an outbound message. Transitions are
// append-only: a message never moves back to an earlier state.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusFailed    MessageStatus = "failed"
)

// statusRank orders delivery states for the append-only check.
var statusRank = map[MessageStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusFailed:    2,
}

// StatusAdvances reports whether moving from to next respects the
// append-only lifecycle.
func StatusAdvances(from, to MessageStatus) bool {
	if from == "" {
		return true
	}
	return statusRank[to] > statusRank[from]
}

// Message represents a conversation message.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	TenantID       string `json:"tenant_id"`

	Direction Direction `json:"direction"`
	Origin    Origin    `json:"origin,omitempty"`

	Content   string `json:"content"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`

	Status        MessageStatus `json:"status,omitempty"`
	Transcription string        `json:"transcription,omitempty"`

	// QuotedID is the provider id of the message this one replies to.
	QuotedID string `json:"quoted_id,omitempty"`

	// ProviderID is the id assigned by the messaging provider.
	ProviderID string `json:"provider_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Text returns the reasoning-facing text of the message: the transcription for
// audio messages, the raw content otherwise.
func (m *Message) Text() string {
	if m.Transcription != "" {
		return m.Transcription
	}
	return m.Content
}
