// Package queue coalesces bursts of inbound messages per conversation into a
// single reasoning invocation.
package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atendai/orchestrator/internal/model"
	"github.com/atendai/orchestrator/internal/store"
	"github.com/atendai/orchestrator/pkg/logger"
	"github.com/atendai/orchestrator/pkg/metrics"
)

// BatchFunc receives a drained batch for processing.
type BatchFunc func(ctx context.Context, tenantID, conversationID string, batch []model.Message)

// Aggregator is the per-conversation debounce buffer. The timer registry is
// owned by the instance: created on first enqueue, cancelled and replaced on
// subsequent enqueues, deleted on fire.
type Aggregator struct {
	store           store.Store
	handle          BatchFunc
	defaultInterval time.Duration
	logger          *logger.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewAggregator creates an aggregation queue that hands drained batches to
// handle.
func NewAggregator(st store.Store, handle BatchFunc, defaultInterval time.Duration, log *logger.Logger) *Aggregator {
	return &Aggregator{
		store:           st,
		handle:          handle,
		defaultInterval: defaultInterval,
		logger:          log,
		timers:          make(map[string]*time.Timer),
	}
}

// Enqueue appends msg to the conversation's pending batch. With grouping
// enabled the debounce window restarts (last message resets the window); with
// grouping disabled the batch drains immediately.
func (a *Aggregator) Enqueue(ctx context.Context, tenantID, conversationID string, settings *model.TenantSettings, msg model.Message) error {
	if err := a.store.AppendPending(ctx, tenantID, conversationID, msg); err != nil {
		return err
	}

	if !settings.GroupingEnabled {
		a.fire(tenantID, conversationID)
		return nil
	}

	interval := settings.GroupingInterval
	if interval <= 0 {
		interval = a.defaultInterval
	}

	a.mu.Lock()
	if timer, ok := a.timers[conversationID]; ok {
		timer.Stop()
	}
	a.timers[conversationID] = time.AfterFunc(interval, func() {
		a.fire(tenantID, conversationID)
	})
	a.mu.Unlock()

	return nil
}

// fire drains the pending batch and invokes the handler. Draining is a single
// store operation, so an enqueue racing with it lands either in this batch or
// in the next one, never nowhere.
func (a *Aggregator) fire(tenantID, conversationID string) {
	a.mu.Lock()
	delete(a.timers, conversationID)
	a.mu.Unlock()

	ctx := context.Background()
	batch, err := a.store.DrainPending(ctx, tenantID, conversationID)
	if err != nil {
		a.logger.Error("drain pending failed",
			zap.String("tenant_id", tenantID),
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}
	if len(batch) == 0 {
		return
	}

	metrics.BatchesProcessedTotal.WithLabelValues(tenantID).Inc()
	metrics.BatchSize.Observe(float64(len(batch)))

	a.handle(ctx, tenantID, conversationID, batch)
}

// Stop cancels all scheduled timers. Pending batches stay in the store and
// drain on the next enqueue.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, timer := range a.timers {
		timer.Stop()
		delete(a.timers, id)
	}
}
