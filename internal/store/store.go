// Package store defines the document-store port used by the orchestration
// engine and an in-memory implementation of it. The engine only relies on
// atomic single-document read/update and array-append semantics.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/atendai/orchestrator/internal/model"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("store: not found")

// ConversationUpdate is a merge-update of conversation fields. Nil fields are
// left untouched.
type ConversationUpdate struct {
	Folder      *model.Folder
	AIActive    *bool
	ContactName *string
	Preview     *string
	Tags        []string
}

// Store is the document-store port.
type Store interface {
	// Conversations.
	GetConversation(ctx context.Context, tenantID, id string) (*model.Conversation, error)
	FindConversationByContact(ctx context.Context, tenantID, contactJID string) (*model.Conversation, error)
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	UpdateConversation(ctx context.Context, tenantID, id string, update ConversationUpdate) error
	AppendNote(ctx context.Context, tenantID, id string, note model.Note) error

	// Pending-batch queue. AppendPending and DrainPending are atomic with
	// respect to each other: a concurrent append observes either the
	// pre-drain or post-drain list, never a partially drained one.
	AppendPending(ctx context.Context, tenantID, id string, msg model.Message) error
	DrainPending(ctx context.Context, tenantID, id string) ([]model.Message, error)

	// Thinking flag. TryMarkThinking is a compare-and-set: it returns false
	// when another loop already holds the flag.
	TryMarkThinking(ctx context.Context, tenantID, id string) (bool, error)
	ClearThinking(ctx context.Context, tenantID, id string) error

	// Follow-up state.
	SetFollowUp(ctx context.Context, tenantID, id string, st *model.FollowUpState) error
	ListDueFollowUps(ctx context.Context, tenantID string, now time.Time) ([]model.Conversation, error)

	// Messages.
	CreateMessage(ctx context.Context, msg *model.Message) error
	// UpdateMessageStatus advances the delivery status and, when providerID
	// is non-empty, records the provider's message id on the stored record.
	UpdateMessageStatus(ctx context.Context, tenantID, messageID string, status model.MessageStatus, providerID string) error
	RecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Message, error)
	LatestMessage(ctx context.Context, tenantID, conversationID string) (*model.Message, error)

	// Tenant configuration (read-only from the engine's perspective).
	GetTenantSettings(ctx context.Context, tenantID string) (*model.TenantSettings, error)
	ListTenants(ctx context.Context) ([]model.TenantSettings, error)
}
