// Package followup sweeps idle conversations and advances them through the
// tenant's re-engagement sequence.
package followup

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atendai/orchestrator/internal/messenger"
	"github.com/atendai/orchestrator/internal/model"
	"github.com/atendai/orchestrator/internal/store"
	"github.com/atendai/orchestrator/pkg/logger"
	"github.com/atendai/orchestrator/pkg/metrics"
)

// Scheduler runs the periodic follow-up sweep. It is invoked by an external
// trigger, not a background goroutine, so deployments control the cadence.
type Scheduler struct {
	store  store.Store
	sender messenger.Sender
	logger *logger.Logger

	// now is swappable in tests.
	now func() time.Time
}

// NewScheduler creates a follow-up scheduler.
func NewScheduler(st store.Store, sender messenger.Sender, log *logger.Logger) *Scheduler {
	return &Scheduler{
		store:  st,
		sender: sender,
		logger: log,
		now:    time.Now,
	}
}

// Result summarizes one sweep.
type Result struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Run sweeps every tenant with follow-ups enabled.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, settings := range tenants {
		if !settings.FollowUps.Enabled {
			continue
		}
		if !settings.BusinessHours.OpenAt(s.now()) {
			s.logger.Debug("tenant closed, follow-up sweep skipped",
				zap.String("tenant_id", settings.TenantID),
			)
			continue
		}

		processed, failed := s.sweepTenant(ctx, settings)
		result.Processed += processed
		result.Failed += failed
	}
	return result, nil
}

func (s *Scheduler) sweepTenant(ctx context.Context, settings model.TenantSettings) (processed, failed int) {
	due, err := s.store.ListDueFollowUps(ctx, settings.TenantID, s.now())
	if err != nil {
		s.logger.Error("list due follow-ups failed",
			zap.String("tenant_id", settings.TenantID),
			zap.Error(err),
		)
		return 0, 1
	}

	for i := range due {
		if err := s.advance(ctx, settings, &due[i]); err != nil {
			failed++
			continue
		}
		processed++
	}
	return processed, failed
}

// advance handles one due conversation: cancel when the customer already
// replied, otherwise send the step message and move the sequence forward.
func (s *Scheduler) advance(ctx context.Context, settings model.TenantSettings, conv *model.Conversation) error {
	log := s.logger.WithConversation(conv.TenantID, conv.ID)
	step := conv.FollowUp.Step

	latest, err := s.store.LatestMessage(ctx, conv.TenantID, conv.ID)
	if err != nil && err != store.ErrNotFound {
		log.Error("latest message lookup failed", zap.Error(err))
		return err
	}
	if latest != nil && latest.Direction == model.DirectionCustomer {
		metrics.FollowUpsTotal.WithLabelValues(conv.TenantID, "cancelled").Inc()
		log.Info("customer already replied, follow-up cancelled")
		return s.store.SetFollowUp(ctx, conv.TenantID, conv.ID, nil)
	}

	stepSettings, ok := settings.FollowUps.Steps[step]
	if !ok || !stepSettings.Enabled || stepSettings.Message == "" {
		metrics.FollowUpsTotal.WithLabelValues(conv.TenantID, "cleared").Inc()
		return s.store.SetFollowUp(ctx, conv.TenantID, conv.ID, nil)
	}

	if err := s.send(ctx, conv, stepSettings.Message); err != nil {
		// No automatic retry of the same step: clear without advancing.
		metrics.FollowUpsTotal.WithLabelValues(conv.TenantID, "send_failed").Inc()
		log.Error("follow-up send failed, state cleared", zap.String("step", string(step)), zap.Error(err))
		if clearErr := s.store.SetFollowUp(ctx, conv.TenantID, conv.ID, nil); clearErr != nil {
			log.Error("clear follow-up failed", zap.Error(clearErr))
		}
		return err
	}
	metrics.FollowUpsTotal.WithLabelValues(conv.TenantID, "sent").Inc()
	log.Info("follow-up sent", zap.String("step", string(step)))

	next := model.NextFollowUpStep(step)
	if next != "" {
		if nextSettings, ok := settings.FollowUps.Steps[next]; ok && nextSettings.Enabled {
			return s.store.SetFollowUp(ctx, conv.TenantID, conv.ID, &model.FollowUpState{
				Step:  next,
				DueAt: s.now().Add(nextSettings.Delay),
			})
		}
	}
	// Sequence exhausted or next step disabled.
	return s.store.SetFollowUp(ctx, conv.TenantID, conv.ID, nil)
}

func (s *Scheduler) send(ctx context.Context, conv *model.Conversation, text string) error {
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		TenantID:       conv.TenantID,
		Direction:      model.DirectionAgent,
		Origin:         model.OriginAI,
		Content:        text,
		Status:         model.StatusSending,
		CreatedAt:      s.now(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return err
	}

	providerID, err := s.sender.SendText(ctx, conv.TenantID, conv.ContactJID, text, messenger.SendOptions{})
	if err != nil {
		_ = s.store.UpdateMessageStatus(ctx, conv.TenantID, msg.ID, model.StatusFailed, "")
		return err
	}
	return s.store.UpdateMessageStatus(ctx, conv.TenantID, msg.ID, model.StatusSent, providerID)
}
