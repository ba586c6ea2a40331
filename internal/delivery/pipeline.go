package delivery

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atendai/orchestrator/internal/messenger"
	"github.com/atendai/orchestrator/internal/model"
	"github.com/atendai/orchestrator/internal/store"
	"github.com/atendai/orchestrator/pkg/logger"
	"github.com/atendai/orchestrator/pkg/metrics"
)

// Pipeline delivers a final reply as human-paced chunks with presence
// signaling, then updates follow-up scheduling.
type Pipeline struct {
	store    store.Store
	sender   messenger.Sender
	splitter *Splitter

	composingDelay  time.Duration
	interChunkDelay time.Duration

	logger *logger.Logger
}

// Config tunes the delivery cadence.
type Config struct {
	ComposingDelay  time.Duration
	InterChunkDelay time.Duration
	MinChunkLength  int
	MaxChunkLength  int
}

// NewPipeline creates a delivery pipeline.
func NewPipeline(st store.Store, sender messenger.Sender, cfg Config, log *logger.Logger) *Pipeline {
	return &Pipeline{
		store:           st,
		sender:          sender,
		splitter:        NewSplitter(cfg.MinChunkLength, cfg.MaxChunkLength),
		composingDelay:  cfg.ComposingDelay,
		interChunkDelay: cfg.InterChunkDelay,
		logger:          log,
	}
}

// Deliver sends text to the conversation's contact. Empty text is a no-op
// success. A chunk failure stops the remaining chunks; delivered chunks stand.
// On full success the follow-up state is updated per tenant settings.
func (p *Pipeline) Deliver(ctx context.Context, conv *model.Conversation, settings *model.TenantSettings, text string, quoted *model.Message) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	log := p.logger.WithConversation(conv.TenantID, conv.ID)
	chunks := p.splitter.Split(text)

	for i, chunk := range chunks {
		if err := p.sendChunk(ctx, conv, chunk, i, quoted); err != nil {
			log.Error("chunk send failed, stopping delivery",
				zap.Int("chunk", i),
				zap.Int("total", len(chunks)),
				zap.Error(err),
			)
			metrics.ChunksSentTotal.WithLabelValues(conv.TenantID, "failure").Inc()

			if messenger.IsNetworkFailure(err) {
				p.escalate(ctx, conv, log)
			}
			return err
		}
		metrics.ChunksSentTotal.WithLabelValues(conv.TenantID, "success").Inc()

		if i+1 < len(chunks) {
			p.sleep(ctx, p.interChunkDelay)
		}
	}

	// Best-effort: the reply already went out.
	_ = p.sender.SetPresence(ctx, conv.TenantID, conv.ContactJID, messenger.PresenceAvailable)

	p.updateFollowUp(ctx, conv, settings, text, log)
	return nil
}

func (p *Pipeline) sendChunk(ctx context.Context, conv *model.Conversation, chunk string, index int, quoted *model.Message) error {
	_ = p.sender.SetPresence(ctx, conv.TenantID, conv.ContactJID, messenger.PresenceComposing)
	p.sleep(ctx, p.composingDelay)

	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		TenantID:       conv.TenantID,
		Direction:      model.DirectionAgent,
		Origin:         model.OriginAI,
		Content:        chunk,
		Status:         model.StatusSending,
		CreatedAt:      time.Now(),
	}

	opts := messenger.SendOptions{}
	// Quote the customer's message only on the first chunk.
	if index == 0 && quoted != nil {
		opts.QuoteID = quoted.ProviderID
		msg.QuotedID = quoted.ProviderID
	}

	if err := p.store.CreateMessage(ctx, msg); err != nil {
		return err
	}

	providerID, err := p.sender.SendText(ctx, conv.TenantID, conv.ContactJID, chunk, opts)
	if err != nil {
		_ = p.store.UpdateMessageStatus(ctx, conv.TenantID, msg.ID, model.StatusFailed, "")
		return err
	}

	return p.store.UpdateMessageStatus(ctx, conv.TenantID, msg.ID, model.StatusSent, providerID)
}

// escalate moves the conversation to the support folder and deactivates
// automation after a persistent network-class failure.
func (p *Pipeline) escalate(ctx context.Context, conv *model.Conversation, log *logger.Logger) {
	folder := model.FolderSupport
	active := false
	if err := p.store.UpdateConversation(ctx, conv.TenantID, conv.ID, store.ConversationUpdate{
		Folder:   &folder,
		AIActive: &active,
	}); err != nil {
		log.Error("escalation after network failure failed", zap.Error(err))
		return
	}
	metrics.EscalationsTotal.WithLabelValues(conv.TenantID, "network").Inc()
	log.Warn("conversation escalated to support after network failure")
}

// updateFollowUp clears any active follow-up and, when the tenant enables
// follow-ups and the reply does not conclude the interaction, schedules the
// first step.
func (p *Pipeline) updateFollowUp(ctx context.Context, conv *model.Conversation, settings *model.TenantSettings, text string, log *logger.Logger) {
	if !settings.FollowUps.Enabled || IsFinalizing(text) {
		if err := p.store.SetFollowUp(ctx, conv.TenantID, conv.ID, nil); err != nil {
			log.Error("clear follow-up failed", zap.Error(err))
		}
		return
	}

	first, ok := settings.FollowUps.Steps[model.FollowUpFirst]
	if !ok || !first.Enabled {
		if err := p.store.SetFollowUp(ctx, conv.TenantID, conv.ID, nil); err != nil {
			log.Error("clear follow-up failed", zap.Error(err))
		}
		return
	}

	st := &model.FollowUpState{
		Step:  model.FollowUpFirst,
		DueAt: time.Now().Add(first.Delay),
	}
	if err := p.store.SetFollowUp(ctx, conv.TenantID, conv.ID, st); err != nil {
		log.Error("schedule follow-up failed", zap.Error(err))
		return
	}
	metrics.FollowUpsTotal.WithLabelValues(conv.TenantID, "scheduled").Inc()
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
