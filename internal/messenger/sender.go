// Package messenger provides the outbound messaging-provider client.
package messenger

import (
	"context"
	"errors"
)

// Presence is the outward state shown to the remote party.
type Presence string

const (
	PresenceComposing Presence = "composing"
	PresenceAvailable Presence = "available"
)

// SendOptions tune a single text send.
type SendOptions struct {
	// QuoteID quotes the customer message with this provider id.
	QuoteID string
	// LinkPreview enables the provider's URL preview card.
	LinkPreview bool
}

var (
	// ErrClientRejected marks a 4xx-class provider response. Never retried.
	ErrClientRejected = errors.New("messenger: request rejected by provider")

	// ErrUnreachable marks a network-class failure that survived the retry
	// budget. The delivery pipeline escalates the conversation on it.
	ErrUnreachable = errors.New("messenger: provider unreachable")
)

// IsNetworkFailure reports whether err is a persistent network-class failure.
func IsNetworkFailure(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// Sender sends messages and presence signals to the remote party.
type Sender interface {
	// SendText sends a text message and returns the provider message id.
	SendText(ctx context.Context, tenantID, to, text string, opts SendOptions) (string, error)

	// SendMedia sends a media message with an optional caption.
	SendMedia(ctx context.Context, tenantID, to, mediaURL, caption string) (string, error)

	// SetPresence signals a presence state to the remote party.
	SetPresence(ctx context.Context, tenantID, to string, presence Presence) error
}
