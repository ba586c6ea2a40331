// Package gateway normalizes inbound provider events into canonical messages
// and hands genuine customer content to the aggregation queue.
package gateway

import (
	"encoding/json"
	"errors"
	"strings"
)

// EventMessagesUpsert is the only conversational provider event type.
const EventMessagesUpsert = "messages.upsert"

// MediaPayload is an embedded media blob or reference.
type MediaPayload struct {
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	Base64   string `json:"base64,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Event is the raw provider webhook envelope.
type Event struct {
	Type string `json:"event"`
	Data struct {
		Key struct {
			ID        string `json:"id"`
			RemoteJID string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
		} `json:"key"`
		PushName string `json:"pushName,omitempty"`
		Message  struct {
			Conversation    string        `json:"conversation,omitempty"`
			ImageMessage    *MediaPayload `json:"imageMessage,omitempty"`
			AudioMessage    *MediaPayload `json:"audioMessage,omitempty"`
			DocumentMessage *MediaPayload `json:"documentMessage,omitempty"`
		} `json:"message"`
	} `json:"data"`
}

// parseEvent decodes and shape-validates a provider payload.
func parseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	if ev.Type == "" {
		return nil, errors.New("missing event type")
	}
	if ev.Data.Key.ID == "" {
		return nil, errors.New("missing message id")
	}
	if ev.Data.Key.RemoteJID == "" {
		return nil, errors.New("missing remote identity")
	}
	return &ev, nil
}

// isGroup reports whether the remote identity is a group chat.
func isGroup(remoteJID string) bool {
	return strings.HasSuffix(remoteJID, "@g.us")
}
