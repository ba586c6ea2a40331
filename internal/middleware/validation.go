package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxWebhookBody is the largest inbound provider payload accepted, in bytes.
// Media arrives base64-embedded so the ceiling is generous.
const MaxWebhookBody = 10 << 20

// ValidateTenantID validates a tenant ID.
func ValidateTenantID(id string) error {
	if len(id) == 0 {
		return errors.New("tenant ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("tenant ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("tenant ID must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateWebhookBody validates a raw provider payload before parsing.
func ValidateWebhookBody(body []byte) error {
	if len(body) == 0 {
		return errors.New("body cannot be empty")
	}
	if len(body) > MaxWebhookBody {
		return errors.New("body exceeds maximum size")
	}
	return nil
}
