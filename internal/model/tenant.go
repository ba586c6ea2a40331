package model

import (
	"time"
)

// FollowUpStepSettings configures one re-engagement step.
type FollowUpStepSettings struct {
	Enabled bool          `json:"enabled"`
	Message string        `json:"message"`
	Delay   time.Duration `json:"delay"`
}

// FollowUpSettings configures the follow-up sequence for a tenant.
type FollowUpSettings struct {
	Enabled bool                                  `json:"enabled"`
	Steps   map[FollowUpStep]FollowUpStepSettings `json:"steps"`
}

// BusinessHours gates follow-up sends to the tenant's opening hours.
type BusinessHours struct {
	Enabled   bool                  `json:"enabled"`
	OpenHour  int                   `json:"open_hour"`
	CloseHour int                   `json:"close_hour"`
	Weekdays  map[time.Weekday]bool `json:"weekdays,omitempty"`
	Location  string                `json:"location,omitempty"`
}

// OpenAt reports whether the tenant is open at t. An unset weekday map means
// open every day.
func (b BusinessHours) OpenAt(t time.Time) bool {
	if !b.Enabled {
		return true
	}
	if b.Location != "" {
		if loc, err := time.LoadLocation(b.Location); err == nil {
			t = t.In(loc)
		}
	}
	if b.Weekdays != nil && !b.Weekdays[t.Weekday()] {
		return false
	}
	return t.Hour() >= b.OpenHour && t.Hour() < b.CloseHour
}

// TenantSettings is the automation configuration for one tenant. The engine
// treats it as a read-only collaborator record.
type TenantSettings struct {
	TenantID string `json:"tenant_id"`

	// Generation settings.
	AIModel         string  `json:"ai_model"`
	FallbackEnabled bool    `json:"fallback_enabled"`
	Temperature     float64 `json:"temperature"`
	KnowledgeBase   string  `json:"knowledge_base"`
	AgentName       string  `json:"agent_name"`

	// Aggregation settings.
	GroupingEnabled  bool          `json:"grouping_enabled"`
	GroupingInterval time.Duration `json:"grouping_interval"`

	FollowUps     FollowUpSettings `json:"follow_ups"`
	BusinessHours BusinessHours    `json:"business_hours"`

	// PostToolMessages maps a terminal tool name to the text sent to the
	// customer after that tool succeeds.
	PostToolMessages map[string]string `json:"post_tool_messages,omitempty"`

	// NotificationsEnabled turns on lifecycle event publication.
	NotificationsEnabled bool `json:"notifications_enabled"`
}
