package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atendai/orchestrator/internal/model"
	"github.com/atendai/orchestrator/internal/queue"
	"github.com/atendai/orchestrator/internal/store"
	"github.com/atendai/orchestrator/pkg/logger"
	"github.com/atendai/orchestrator/pkg/metrics"
)

// Outcome classifies what the adapter did with an inbound event.
type Outcome string

const (
	OutcomeInvalid      Outcome = "invalid"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeGroup        Outcome = "group_discarded"
	OutcomeIntervention Outcome = "intervention"
	OutcomeUnsupported  Outcome = "unsupported"
	OutcomeAccepted     Outcome = "accepted"
)

// Adapter normalizes inbound provider events. Shape failures never propagate
// to the HTTP caller; they are logged and classified.
type Adapter struct {
	store       store.Store
	queue       *queue.Aggregator
	storage     ObjectStorage
	transcriber Transcriber // nil disables transcription
	notifier    Notifier    // nil disables notifications
	logger      *logger.Logger
}

// NewAdapter creates a gateway adapter.
func NewAdapter(st store.Store, agg *queue.Aggregator, storage ObjectStorage, transcriber Transcriber, notifier Notifier, log *logger.Logger) *Adapter {
	return &Adapter{
		store:       st,
		queue:       agg,
		storage:     storage,
		transcriber: transcriber,
		notifier:    notifier,
		logger:      log,
	}
}

// HandleEvent processes one raw provider payload for a tenant.
func (a *Adapter) HandleEvent(ctx context.Context, tenantID string, raw []byte) Outcome {
	outcome := a.handle(ctx, tenantID, raw)
	metrics.WebhookEventsTotal.WithLabelValues(tenantID, string(outcome)).Inc()
	return outcome
}

func (a *Adapter) handle(ctx context.Context, tenantID string, raw []byte) Outcome {
	log := a.logger.With(zap.String("tenant_id", tenantID))

	settings, err := a.store.GetTenantSettings(ctx, tenantID)
	if err != nil {
		log.Warn("event for unknown tenant rejected", zap.Error(err))
		return OutcomeInvalid
	}

	ev, err := parseEvent(raw)
	if err != nil {
		log.Warn("malformed provider payload rejected", zap.Error(err))
		return OutcomeInvalid
	}

	if ev.Type != EventMessagesUpsert {
		log.Debug("non-conversational event filtered", zap.String("event", ev.Type))
		return OutcomeIgnored
	}

	if isGroup(ev.Data.Key.RemoteJID) {
		log.Info("group message discarded", zap.String("remote_jid", ev.Data.Key.RemoteJID))
		return OutcomeGroup
	}

	conv, created, err := a.findOrCreateConversation(ctx, tenantID, ev)
	if err != nil {
		log.Error("conversation lookup failed", zap.Error(err))
		return OutcomeInvalid
	}
	log = log.WithConversation(tenantID, conv.ID)

	if created {
		a.notify(ctx, settings, conv.ID, model.EventConversationCreated, map[string]any{
			"contact_jid": conv.ContactJID,
		})
	}

	// A self-originated echo means a human operator replied from another
	// device: automation stands down for this conversation.
	if ev.Data.Key.FromMe {
		a.recordIntervention(ctx, conv, log)
		a.notify(ctx, settings, conv.ID, model.EventConversationUpdated, map[string]any{
			"ai_active": false,
		})
		return OutcomeIntervention
	}

	msg, ok := a.normalize(ctx, tenantID, conv.ID, ev, log)
	if !ok {
		log.Info("unsupported content ignored", zap.String("provider_id", ev.Data.Key.ID))
		return OutcomeUnsupported
	}

	if err := a.store.CreateMessage(ctx, msg); err != nil {
		log.Error("store inbound message failed", zap.Error(err))
		return OutcomeInvalid
	}

	preview := previewLine(msg)
	update := store.ConversationUpdate{Preview: &preview}
	if name := strings.TrimSpace(ev.Data.PushName); name != "" && conv.ContactName == "" {
		update.ContactName = &name
	}
	if err := a.store.UpdateConversation(ctx, tenantID, conv.ID, update); err != nil {
		log.Error("conversation preview update failed", zap.Error(err))
	}

	// The customer replied: any pending re-engagement is obsolete.
	if err := a.store.SetFollowUp(ctx, tenantID, conv.ID, nil); err != nil {
		log.Error("clear follow-up failed", zap.Error(err))
	}

	a.notify(ctx, settings, conv.ID, model.EventMessageReceived, map[string]any{
		"message_id": msg.ID,
		"preview":    preview,
	})

	if err := a.queue.Enqueue(ctx, tenantID, conv.ID, settings, *msg); err != nil {
		log.Error("enqueue failed", zap.Error(err))
		return OutcomeInvalid
	}
	return OutcomeAccepted
}

func (a *Adapter) findOrCreateConversation(ctx context.Context, tenantID string, ev *Event) (*model.Conversation, bool, error) {
	conv, err := a.store.FindConversationByContact(ctx, tenantID, ev.Data.Key.RemoteJID)
	if err == nil {
		return conv, false, nil
	}
	if err != store.ErrNotFound {
		return nil, false, err
	}

	now := time.Now()
	conv = &model.Conversation{
		ID:          uuid.Must(uuid.NewV7()).String(),
		TenantID:    tenantID,
		ContactJID:  ev.Data.Key.RemoteJID,
		ContactName: strings.TrimSpace(ev.Data.PushName),
		Folder:      model.FolderInbox,
		AIActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.CreateConversation(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (a *Adapter) recordIntervention(ctx context.Context, conv *model.Conversation, log *logger.Logger) {
	active := false
	if err := a.store.UpdateConversation(ctx, conv.TenantID, conv.ID, store.ConversationUpdate{
		AIActive: &active,
	}); err != nil {
		log.Error("deactivate automation failed", zap.Error(err))
		return
	}
	if err := a.store.AppendNote(ctx, conv.TenantID, conv.ID, model.Note{
		Text:      "operator replied manually, automation deactivated",
		Origin:    model.OriginSystem,
		CreatedAt: time.Now(),
	}); err != nil {
		log.Error("intervention note failed", zap.Error(err))
	}
	log.Info("operator intervention, automation deactivated")
}

// normalize canonicalizes provider content into a Message. It returns false
// when the event carries nothing conversational (no text, transcribable audio
// or image).
func (a *Adapter) normalize(ctx context.Context, tenantID, conversationID string, ev *Event, log *logger.Logger) (*model.Message, bool) {
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		Direction:      model.DirectionCustomer,
		ProviderID:     ev.Data.Key.ID,
		CreatedAt:      time.Now(),
	}

	content := ev.Data.Message
	switch {
	case strings.TrimSpace(content.Conversation) != "":
		msg.Content = content.Conversation

	case content.ImageMessage != nil:
		msg.MediaType = orDefault(content.ImageMessage.MimeType, "image/jpeg")
		msg.Content = content.ImageMessage.Caption
		msg.MediaURL = a.uploadMedia(ctx, tenantID, msg.ID, content.ImageMessage, log)

	case content.AudioMessage != nil:
		msg.MediaType = orDefault(content.AudioMessage.MimeType, "audio/ogg")
		msg.MediaURL = a.uploadMedia(ctx, tenantID, msg.ID, content.AudioMessage, log)
		msg.Transcription = a.transcribe(ctx, content.AudioMessage, log)
		if msg.Transcription == "" {
			// Nothing transcribable came out; there is no content to reason on.
			return nil, false
		}

	default:
		return nil, false
	}

	return msg, true
}

func (a *Adapter) uploadMedia(ctx context.Context, tenantID, name string, media *MediaPayload, log *logger.Logger) string {
	if media.Base64 == "" {
		return media.URL
	}
	data, err := base64.StdEncoding.DecodeString(media.Base64)
	if err != nil {
		log.Warn("media decode failed", zap.Error(err))
		return media.URL
	}
	url, err := a.storage.Upload(ctx, tenantID, name, data, media.MimeType)
	if err != nil {
		log.Error("media upload failed", zap.Error(err))
		return media.URL
	}
	return url
}

func (a *Adapter) transcribe(ctx context.Context, media *MediaPayload, log *logger.Logger) string {
	if a.transcriber == nil || media.Base64 == "" {
		return ""
	}
	data, err := base64.StdEncoding.DecodeString(media.Base64)
	if err != nil {
		log.Warn("audio decode failed", zap.Error(err))
		return ""
	}
	text, err := a.transcriber.Transcribe(ctx, bytes.NewReader(data), "audio"+extensionFor(media.MimeType))
	if err != nil {
		log.Warn("transcription failed", zap.Error(err))
		return ""
	}
	return text
}

func (a *Adapter) notify(ctx context.Context, settings *model.TenantSettings, conversationID string, eventType model.EventType, payload map[string]any) {
	if a.notifier == nil || !settings.NotificationsEnabled {
		return
	}
	if err := a.notifier.Publish(ctx, settings.TenantID, conversationID, eventType, payload); err != nil {
		a.logger.Warn("lifecycle notification failed",
			zap.String("tenant_id", settings.TenantID),
			zap.String("type", string(eventType)),
			zap.Error(err),
		)
	}
}

const previewLimit = 80

// previewLine computes the conversation-list preview for a message.
func previewLine(msg *model.Message) string {
	text := msg.Text()
	if text == "" {
		switch {
		case strings.HasPrefix(msg.MediaType, "image"):
			return "[image]"
		case strings.HasPrefix(msg.MediaType, "audio"):
			return "[audio]"
		default:
			return "[media]"
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if runes := []rune(text); len(runes) > previewLimit {
		return string(runes[:previewLimit]) + "…"
	}
	return text
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func extensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return ".mp3"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	default:
		return ".ogg"
	}
}
