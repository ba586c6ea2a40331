package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atendai/orchestrator/internal/model"
	"github.com/atendai/orchestrator/internal/store"
	"github.com/atendai/orchestrator/pkg/logger"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]model.Message
	fired   chan struct{}
}

func newBatchRecorder() *batchRecorder {
	return &batchRecorder{fired: make(chan struct{}, 16)}
}

func (r *batchRecorder) handle(ctx context.Context, tenantID, conversationID string, batch []model.Message) {
	r.mu.Lock()
	r.batches = append(r.batches, batch)
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *batchRecorder) all() [][]model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches
}

func (r *batchRecorder) waitFire(t *testing.T) {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
}

func setupStore(t *testing.T) store.Store {
	t.Helper()
	m := store.NewMemory()
	require.NoError(t, m.CreateConversation(context.Background(), &model.Conversation{
		ID:       "c1",
		TenantID: "t1",
		Folder:   model.FolderInbox,
		AIActive: true,
	}))
	return m
}

func TestBurstCoalescesIntoOneBatch(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	rec := newBatchRecorder()
	agg := NewAggregator(st, rec.handle, time.Second, logger.NewNop())
	defer agg.Stop()

	settings := &model.TenantSettings{
		TenantID:         "t1",
		GroupingEnabled:  true,
		GroupingInterval: 50 * time.Millisecond,
	}

	require.NoError(t, agg.Enqueue(ctx, "t1", "c1", settings, model.Message{ID: "m1", Content: "oi"}))
	require.NoError(t, agg.Enqueue(ctx, "t1", "c1", settings, model.Message{ID: "m2", Content: "tudo bem?"}))

	rec.waitFire(t)

	batches := rec.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, "m1", batches[0][0].ID)
	assert.Equal(t, "m2", batches[0][1].ID)
}

func TestEnqueueRestartsWindow(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	rec := newBatchRecorder()
	agg := NewAggregator(st, rec.handle, time.Second, logger.NewNop())
	defer agg.Stop()

	settings := &model.TenantSettings{
		TenantID:         "t1",
		GroupingEnabled:  true,
		GroupingInterval: 80 * time.Millisecond,
	}

	require.NoError(t, agg.Enqueue(ctx, "t1", "c1", settings, model.Message{ID: "m1"}))
	time.Sleep(40 * time.Millisecond)
	// Still inside the window: this must reset it, not fire the first alone.
	require.NoError(t, agg.Enqueue(ctx, "t1", "c1", settings, model.Message{ID: "m2"}))
	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, rec.all())

	rec.waitFire(t)
	batches := rec.all()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestGroupingDisabledFiresImmediately(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	rec := newBatchRecorder()
	agg := NewAggregator(st, rec.handle, time.Second, logger.NewNop())
	defer agg.Stop()

	settings := &model.TenantSettings{TenantID: "t1", GroupingEnabled: false}

	require.NoError(t, agg.Enqueue(ctx, "t1", "c1", settings, model.Message{ID: "m1"}))

	batches := rec.all()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 1)
}

func TestEmptyDrainIsNoOp(t *testing.T) {
	st := setupStore(t)
	rec := newBatchRecorder()
	agg := NewAggregator(st, rec.handle, time.Second, logger.NewNop())
	defer agg.Stop()

	// Nothing pending: firing must not reach the handler.
	agg.fire("t1", "c1")
	assert.Empty(t, rec.all())
}

func TestZeroIntervalUsesDefault(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	rec := newBatchRecorder()
	agg := NewAggregator(st, rec.handle, 50*time.Millisecond, logger.NewNop())
	defer agg.Stop()

	settings := &model.TenantSettings{TenantID: "t1", GroupingEnabled: true}

	require.NoError(t, agg.Enqueue(ctx, "t1", "c1", settings, model.Message{ID: "m1"}))
	rec.waitFire(t)
	assert.Len(t, rec.all(), 1)
}

func TestNoMessageLostAcrossConversations(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	for _, id := range []string{"c1", "c2"} {
		require.NoError(t, m.CreateConversation(ctx, &model.Conversation{
			ID: id, TenantID: "t1", Folder: model.FolderInbox, AIActive: true,
		}))
	}

	rec := newBatchRecorder()
	agg := NewAggregator(m, rec.handle, time.Second, logger.NewNop())
	defer agg.Stop()

	settings := &model.TenantSettings{
		TenantID:         "t1",
		GroupingEnabled:  true,
		GroupingInterval: 30 * time.Millisecond,
	}

	require.NoError(t, agg.Enqueue(ctx, "t1", "c1", settings, model.Message{ID: "a1"}))
	require.NoError(t, agg.Enqueue(ctx, "t1", "c2", settings, model.Message{ID: "b1"}))

	rec.waitFire(t)
	rec.waitFire(t)

	var total int
	for _, b := range rec.all() {
		total += len(b)
	}
	assert.Equal(t, 2, total)
}
