package engine

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/atendai/orchestrator/internal/delivery"
	"github.com/atendai/orchestrator/internal/llm"
	"github.com/atendai/orchestrator/internal/model"
	"github.com/atendai/orchestrator/internal/store"
	"github.com/atendai/orchestrator/internal/tools"
	"github.com/atendai/orchestrator/pkg/logger"
	"github.com/atendai/orchestrator/pkg/metrics"
)

// Controller runs the reasoning loop: context-build → model-call →
// decision-parse → optional tool-execution, until a terminal condition.
type Controller struct {
	store         store.Store
	router        *llm.Router
	registry      *tools.Registry
	pipeline      *delivery.Pipeline
	maxTurns      int
	historyWindow int
	logger        *logger.Logger
}

// Config tunes the controller.
type Config struct {
	// MaxTurns is the hard upper bound on turns per loop.
	MaxTurns int
	// HistoryWindow is how many recent messages feed the context.
	HistoryWindow int
}

// NewController creates a reasoning loop controller.
func NewController(st store.Store, router *llm.Router, registry *tools.Registry, pipeline *delivery.Pipeline, cfg Config, log *logger.Logger) *Controller {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 5
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 30
	}
	return &Controller{
		store:         st,
		router:        router,
		registry:      registry,
		pipeline:      pipeline,
		maxTurns:      cfg.MaxTurns,
		historyWindow: cfg.HistoryWindow,
		logger:        log,
	}
}

// ProcessBatch is the entry point the aggregation queue invokes with a drained
// batch. It guards the single-loop-per-conversation invariant and guarantees
// the thinking flag is cleared on every exit path.
func (c *Controller) ProcessBatch(ctx context.Context, tenantID, conversationID string, batch []model.Message) {
	log := c.logger.WithConversation(tenantID, conversationID)

	settings, err := c.store.GetTenantSettings(ctx, tenantID)
	if err != nil {
		log.Error("load tenant settings failed", zap.Error(err))
		return
	}
	conv, err := c.store.GetConversation(ctx, tenantID, conversationID)
	if err != nil {
		log.Error("load conversation failed", zap.Error(err))
		return
	}
	if !conv.AIActive {
		log.Debug("automation inactive, batch ignored")
		return
	}

	ok, err := c.store.TryMarkThinking(ctx, tenantID, conversationID)
	if err != nil {
		log.Error("mark thinking failed", zap.Error(err))
		return
	}
	if !ok {
		// Another loop owns this conversation. Put the batch back on the
		// pending queue so it is picked up when that loop finishes.
		log.Warn("reasoning loop already in flight, batch requeued")
		for _, msg := range batch {
			if err := c.store.AppendPending(ctx, tenantID, conversationID, msg); err != nil {
				log.Error("requeue pending failed", zap.String("message_id", msg.ID), zap.Error(err))
			}
		}
		return
	}

	outcome := "completed"
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("reasoning loop panicked", zap.Any("panic", rec))
			c.flagForSupport(ctx, tenantID, conversationID, log)
			outcome = "panic"
		}
		if err := c.store.ClearThinking(ctx, tenantID, conversationID); err != nil {
			log.Error("clear thinking failed", zap.Error(err))
		}
		metrics.LoopOutcomesTotal.WithLabelValues(tenantID, outcome).Inc()
		c.resumeDeferred(ctx, tenantID, conversationID, log)
	}()

	outcome = c.run(ctx, conv, settings, batch, log)
}

// run executes turns until a terminal condition and returns the outcome label.
func (c *Controller) run(ctx context.Context, conv *model.Conversation, settings *model.TenantSettings, batch []model.Message, log *logger.Logger) string {
	state := &turnState{}
	quoted := latestCustomer(batch)

	for turn := 0; turn < c.maxTurns; turn++ {
		metrics.LoopTurnsTotal.WithLabelValues(conv.TenantID).Inc()

		system := c.buildSystemPrompt(conv, settings, state)
		state.failureContext = "" // consumed once
		turns, imageURL := c.buildTurns(ctx, conv, batch)

		candidates := c.router.Candidates(settings.AIModel, settings.FallbackEnabled)
		resp, err := c.router.Generate(ctx, candidates, &llm.CompletionRequest{
			System:      system,
			Messages:    turns,
			Temperature: settings.Temperature,
			ImageURL:    imageURL,
		})
		if err != nil {
			log.Error("generation failed, aborting loop", zap.Int("turn", turn), zap.Error(err))
			return "generation_failed"
		}

		decision, err := ParseDecision(resp.Content)
		if err != nil {
			log.Error("decision parse failed, aborting loop",
				zap.Int("turn", turn),
				zap.String("model", resp.Model),
				zap.Error(err),
			)
			return "parse_failed"
		}
		state.priorReasoning = decision.Reasoning

		var requested *tools.Tool
		if decision.ToolRequest != nil {
			requested, _ = c.registry.Get(decision.ToolRequest.Name)
		}

		if decision.ResponseToClient != "" {
			if requested != nil && requested.Silent {
				log.Info("silent tool requested, client text suppressed",
					zap.String("tool", requested.Name),
					zap.String("suppressed", decision.ResponseToClient),
				)
			} else if err := c.pipeline.Deliver(ctx, conv, settings, decision.ResponseToClient, quoted); err != nil {
				log.Error("delivery failed, aborting loop", zap.Int("turn", turn), zap.Error(err))
				return "delivery_failed"
			}
		}

		if decision.ToolRequest == nil {
			return "completed"
		}

		inv := tools.Invocation{
			TenantID:       conv.TenantID,
			ConversationID: conv.ID,
			ContactJID:     conv.ContactJID,
		}
		result := c.registry.Execute(ctx, decision.ToolRequest, inv)

		if result.Success {
			state.surfacedFailure = ""
			if requested != nil && requested.Terminal {
				c.sendPostToolMessage(ctx, conv, settings, requested.Name, log)
				return "terminal_tool"
			}
			state.toolNotes = append(state.toolNotes, decision.ToolRequest.Name+" → "+result.String())
			continue
		}

		// The same failure fed back once already: stop retrying and hand the
		// conversation to a human.
		signature := decision.ToolRequest.Name
		if state.surfacedFailure == signature {
			log.Warn("repeated tool failure, forcing human handoff",
				zap.String("tool", signature),
				zap.String("error", result.Error),
			)
			c.forceEscalation(ctx, conv, settings, result.Error, inv, log)
			return "forced_escalation"
		}
		state.surfacedFailure = signature
		state.failureContext = decision.ToolRequest.Name + " failed: " + result.Error
	}

	// Safety valve, not a normal exit: whatever was already sent stands.
	log.Warn("turn cap reached", zap.Int("max_turns", c.maxTurns))
	return "turn_cap"
}

// resumeDeferred drains messages that were requeued while this loop held the
// thinking flag and processes them as a fresh batch.
func (c *Controller) resumeDeferred(ctx context.Context, tenantID, conversationID string, log *logger.Logger) {
	pending, err := c.store.DrainPending(ctx, tenantID, conversationID)
	if err != nil {
		log.Error("drain deferred batch failed", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}
	log.Info("processing batch deferred during loop", zap.Int("messages", len(pending)))
	go c.ProcessBatch(ctx, tenantID, conversationID, pending)
}

// forceEscalation invokes the human-handoff tool directly and sends its
// configured post-tool message.
func (c *Controller) forceEscalation(ctx context.Context, conv *model.Conversation, settings *model.TenantSettings, reason string, inv tools.Invocation, log *logger.Logger) {
	args, _ := json.Marshal(map[string]string{"reason": "repeated tool failure: " + reason})
	result := c.registry.Execute(ctx, &model.ToolRequest{Name: tools.ToolTransferToHuman, Args: args}, inv)
	if !result.Success {
		log.Error("forced escalation failed", zap.String("error", result.Error))
		return
	}
	c.sendPostToolMessage(ctx, conv, settings, tools.ToolTransferToHuman, log)
}

// sendPostToolMessage delivers the tenant-configured message for a terminal
// tool, when one is configured.
func (c *Controller) sendPostToolMessage(ctx context.Context, conv *model.Conversation, settings *model.TenantSettings, toolName string, log *logger.Logger) {
	text := settings.PostToolMessages[toolName]
	if text == "" {
		return
	}
	if err := c.pipeline.Deliver(ctx, conv, settings, text, nil); err != nil {
		log.Error("post-tool message delivery failed",
			zap.String("tool", toolName),
			zap.Error(err),
		)
	}
}

// flagForSupport moves a conversation to human attention after an unexpected
// loop failure.
func (c *Controller) flagForSupport(ctx context.Context, tenantID, conversationID string, log *logger.Logger) {
	folder := model.FolderSupport
	active := false
	if err := c.store.UpdateConversation(ctx, tenantID, conversationID, store.ConversationUpdate{
		Folder:   &folder,
		AIActive: &active,
	}); err != nil {
		log.Error("flag for support failed", zap.Error(err))
		return
	}
	metrics.EscalationsTotal.WithLabelValues(tenantID, "loop_panic").Inc()
}

func latestCustomer(batch []model.Message) *model.Message {
	for i := len(batch) - 1; i >= 0; i-- {
		if batch[i].Direction == model.DirectionCustomer {
			return &batch[i]
		}
	}
	return nil
}
