// Package model defines data structures for the conversation orchestration engine.
package model

import (
	"time"
)

// Folder is the queue a conversation currently lives in.
type Folder string

const (
	FolderInbox    Folder = "inbox"
	FolderSupport  Folder = "support"
	FolderArchived Folder = "archived"
)

// FollowUpStep is one of the ordered re-engagement steps.
type FollowUpStep string

const (
	FollowUpFirst  FollowUpStep = "first"
	FollowUpSecond FollowUpStep = "second"
	FollowUpThird  FollowUpStep = "third"
)

// NextFollowUpStep returns the step after s, or "" when the sequence ends.
func NextFollowUpStep(s FollowUpStep) FollowUpStep {
	switch s {
	case FollowUpFirst:
		return FollowUpSecond
	case FollowUpSecond:
		return FollowUpThird
	default:
		return ""
	}
}

// FollowUpState tracks the pending re-engagement step for an idle conversation.
type FollowUpState struct {
	Step  FollowUpStep `json:"step"`
	DueAt time.Time    `json:"due_at"`
}

// Note is a free-form annotation on a conversation.
type Note struct {
	Text      string    `json:"text"`
	Origin    Origin    `json:"origin"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation represents one customer thread.
type Conversation struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	ContactJID  string `json:"contact_jid"`
	ContactName string `json:"contact_name,omitempty"`

	Folder     Folder `json:"folder"`
	AIActive   bool   `json:"ai_active"`
	AIThinking bool   `json:"ai_thinking"`

	// Pending holds inbound messages awaiting the next debounce batch.
	Pending []Message `json:"pending,omitempty"`

	FollowUp *FollowUpState `json:"follow_up,omitempty"`

	Notes   []Note   `json:"notes,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Preview string   `json:"preview,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
