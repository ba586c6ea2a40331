package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atendai/orchestrator/internal/model"
)

// Memory is an in-memory Store. Every method takes the store lock, which gives
// each call the single-document atomicity the port requires.
type Memory struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]*model.Message // conversation ID → chronological
	byMessageID   map[string]*model.Message
	tenants       map[string]*model.TenantSettings
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]*model.Message),
		byMessageID:   make(map[string]*model.Message),
		tenants:       make(map[string]*model.TenantSettings),
	}
}

func (m *Memory) conversation(tenantID, id string) (*model.Conversation, error) {
	conv, ok := m.conversations[id]
	if !ok || conv.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return conv, nil
}

// GetConversation returns a copy of the conversation document.
func (m *Memory) GetConversation(ctx context.Context, tenantID, id string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, err := m.conversation(tenantID, id)
	if err != nil {
		return nil, err
	}
	cp := *conv
	cp.Pending = append([]model.Message(nil), conv.Pending...)
	return &cp, nil
}

// FindConversationByContact looks a conversation up by remote identity.
func (m *Memory) FindConversationByContact(ctx context.Context, tenantID, contactJID string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, conv := range m.conversations {
		if conv.TenantID == tenantID && conv.ContactJID == contactJID {
			cp := *conv
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// CreateConversation stores a new conversation document.
func (m *Memory) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *conv
	m.conversations[conv.ID] = &cp
	return nil
}

// UpdateConversation merge-updates conversation fields.
func (m *Memory) UpdateConversation(ctx context.Context, tenantID, id string, update ConversationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.conversation(tenantID, id)
	if err != nil {
		return err
	}
	if update.Folder != nil {
		conv.Folder = *update.Folder
	}
	if update.AIActive != nil {
		conv.AIActive = *update.AIActive
	}
	if update.ContactName != nil {
		conv.ContactName = *update.ContactName
	}
	if update.Preview != nil {
		conv.Preview = *update.Preview
	}
	if update.Tags != nil {
		conv.Tags = update.Tags
	}
	conv.UpdatedAt = time.Now()
	return nil
}

// AppendNote appends a note to the conversation.
func (m *Memory) AppendNote(ctx context.Context, tenantID, id string, note model.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.conversation(tenantID, id)
	if err != nil {
		return err
	}
	conv.Notes = append(conv.Notes, note)
	conv.UpdatedAt = time.Now()
	return nil
}

// AppendPending atomically appends a message to the pending batch.
func (m *Memory) AppendPending(ctx context.Context, tenantID, id string, msg model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.conversation(tenantID, id)
	if err != nil {
		return err
	}
	conv.Pending = append(conv.Pending, msg)
	conv.UpdatedAt = time.Now()
	return nil
}

// DrainPending atomically reads and clears the pending batch.
func (m *Memory) DrainPending(ctx context.Context, tenantID, id string) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.conversation(tenantID, id)
	if err != nil {
		return nil, err
	}
	drained := conv.Pending
	conv.Pending = nil
	conv.UpdatedAt = time.Now()
	return drained, nil
}

// TryMarkThinking sets the thinking flag if no other loop holds it.
func (m *Memory) TryMarkThinking(ctx context.Context, tenantID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.conversation(tenantID, id)
	if err != nil {
		return false, err
	}
	if conv.AIThinking {
		return false, nil
	}
	conv.AIThinking = true
	conv.UpdatedAt = time.Now()
	return true, nil
}

// ClearThinking clears the thinking flag.
func (m *Memory) ClearThinking(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.conversation(tenantID, id)
	if err != nil {
		return err
	}
	conv.AIThinking = false
	conv.UpdatedAt = time.Now()
	return nil
}

// SetFollowUp replaces the follow-up state; nil clears it.
func (m *Memory) SetFollowUp(ctx context.Context, tenantID, id string, st *model.FollowUpState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.conversation(tenantID, id)
	if err != nil {
		return err
	}
	if st == nil {
		conv.FollowUp = nil
	} else {
		cp := *st
		conv.FollowUp = &cp
	}
	conv.UpdatedAt = time.Now()
	return nil
}

// ListDueFollowUps returns inbox conversations whose follow-up is due.
func (m *Memory) ListDueFollowUps(ctx context.Context, tenantID string, now time.Time) ([]model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []model.Conversation
	for _, conv := range m.conversations {
		if conv.TenantID != tenantID || conv.Folder != model.FolderInbox {
			continue
		}
		if conv.FollowUp == nil || conv.FollowUp.DueAt.After(now) {
			continue
		}
		cp := *conv
		fu := *conv.FollowUp
		cp.FollowUp = &fu
		due = append(due, cp)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].FollowUp.DueAt.Before(due[j].FollowUp.DueAt)
	})
	return due, nil
}

// CreateMessage stores a message record.
func (m *Memory) CreateMessage(ctx context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &cp)
	m.byMessageID[msg.ID] = &cp
	return nil
}

// UpdateMessageStatus advances a message's delivery status and records the
// provider message id when one is supplied. Status regressions are ignored:
// the lifecycle is append-only.
func (m *Memory) UpdateMessageStatus(ctx context.Context, tenantID, messageID string, status model.MessageStatus, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.byMessageID[messageID]
	if !ok || msg.TenantID != tenantID {
		return ErrNotFound
	}
	if providerID != "" {
		msg.ProviderID = providerID
	}
	if model.StatusAdvances(msg.Status, status) {
		msg.Status = status
	}
	return nil
}

// RecentMessages returns up to limit most recent messages in chronological order.
func (m *Memory) RecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[conversationID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	out := make([]model.Message, 0, len(all)-start)
	for _, msg := range all[start:] {
		if msg.TenantID != tenantID {
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}

// LatestMessage returns the most recent message of a conversation.
func (m *Memory) LatestMessage(ctx context.Context, tenantID, conversationID string) (*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[conversationID]
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].TenantID == tenantID {
			cp := *all[i]
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// GetTenantSettings returns the automation settings for a tenant.
func (m *Memory) GetTenantSettings(ctx context.Context, tenantID string) (*model.TenantSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	settings, ok := m.tenants[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *settings
	return &cp, nil
}

// ListTenants returns all tenant settings records.
func (m *Memory) ListTenants(ctx context.Context) ([]model.TenantSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.TenantSettings, 0, len(m.tenants))
	for _, settings := range m.tenants {
		out = append(out, *settings)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

// PutTenantSettings stores tenant settings. Tenant records are written by the
// management plane; this exists for wiring and tests.
func (m *Memory) PutTenantSettings(ctx context.Context, settings *model.TenantSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *settings
	m.tenants[settings.TenantID] = &cp
	return nil
}

var _ Store = (*Memory)(nil)
