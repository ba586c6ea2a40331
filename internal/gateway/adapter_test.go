package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atendai/orchestrator/internal/model"
	"github.com/atendai/orchestrator/internal/queue"
	"github.com/atendai/orchestrator/internal/store"
	"github.com/atendai/orchestrator/pkg/logger"
)

type capturedBatches struct {
	mu      sync.Mutex
	batches [][]model.Message
}

func (c *capturedBatches) handle(ctx context.Context, tenantID, conversationID string, batch []model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batch)
}

func (c *capturedBatches) all() [][]model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}

func adapterFixture(t *testing.T) (*Adapter, *store.Memory, *capturedBatches) {
	t.Helper()
	st := store.NewMemory()
	require.NoError(t, st.PutTenantSettings(context.Background(), &model.TenantSettings{
		TenantID: "t1",
		// Grouping disabled: batches drain synchronously, which keeps the
		// tests deterministic.
		GroupingEnabled: false,
	}))

	captured := &capturedBatches{}
	agg := queue.NewAggregator(st, captured.handle, time.Second, logger.NewNop())
	t.Cleanup(agg.Stop)

	adapter := NewAdapter(st, agg, NewMemoryStorage(), nil, nil, logger.NewNop())
	return adapter, st, captured
}

func upsertPayload(t *testing.T, remoteJID string, fromMe bool, text string) []byte {
	t.Helper()
	payload := map[string]any{
		"event": "messages.upsert",
		"data": map[string]any{
			"key": map[string]any{
				"id":        "prov-m1",
				"remoteJid": remoteJID,
				"fromMe":    fromMe,
			},
			"pushName": "Ana",
			"message":  map[string]any{"conversation": text},
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return raw
}

func TestHandleEventAcceptsTextMessage(t *testing.T) {
	ctx := context.Background()
	adapter, st, captured := adapterFixture(t)

	outcome := adapter.HandleEvent(ctx, "t1", upsertPayload(t, "5511999@s.whatsapp.net", false, "oi, tudo bem?"))
	assert.Equal(t, OutcomeAccepted, outcome)

	batches := captured.all()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, "oi, tudo bem?", batches[0][0].Content)
	assert.Equal(t, model.DirectionCustomer, batches[0][0].Direction)

	conv, err := st.FindConversationByContact(ctx, "t1", "5511999@s.whatsapp.net")
	require.NoError(t, err)
	assert.True(t, conv.AIActive)
	assert.Equal(t, model.FolderInbox, conv.Folder)
	assert.Equal(t, "Ana", conv.ContactName)
	assert.Equal(t, "oi, tudo bem?", conv.Preview)
}

func TestHandleEventReusesExistingConversation(t *testing.T) {
	ctx := context.Background()
	adapter, st, captured := adapterFixture(t)

	adapter.HandleEvent(ctx, "t1", upsertPayload(t, "5511999@s.whatsapp.net", false, "primeira"))
	adapter.HandleEvent(ctx, "t1", upsertPayload(t, "5511999@s.whatsapp.net", false, "segunda"))

	assert.Len(t, captured.all(), 2)

	conv, err := st.FindConversationByContact(ctx, "t1", "5511999@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "segunda", conv.Preview)
}

func TestHandleEventDiscardsGroupMessages(t *testing.T) {
	ctx := context.Background()
	adapter, st, captured := adapterFixture(t)

	outcome := adapter.HandleEvent(ctx, "t1", upsertPayload(t, "12036302@g.us", false, "mensagem de grupo"))
	assert.Equal(t, OutcomeGroup, outcome)
	assert.Empty(t, captured.all())

	_, err := st.FindConversationByContact(ctx, "t1", "12036302@g.us")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleEventSelfEchoDeactivatesAutomation(t *testing.T) {
	ctx := context.Background()
	adapter, st, captured := adapterFixture(t)

	// Customer opens, then an operator replies from the business's own device.
	adapter.HandleEvent(ctx, "t1", upsertPayload(t, "5511999@s.whatsapp.net", false, "oi"))
	outcome := adapter.HandleEvent(ctx, "t1", upsertPayload(t, "5511999@s.whatsapp.net", true, "deixa que eu assumo"))
	assert.Equal(t, OutcomeIntervention, outcome)

	// Only the customer message reached the queue.
	assert.Len(t, captured.all(), 1)

	conv, err := st.FindConversationByContact(ctx, "t1", "5511999@s.whatsapp.net")
	require.NoError(t, err)
	assert.False(t, conv.AIActive)
	require.NotEmpty(t, conv.Notes)
	assert.Equal(t, model.OriginSystem, conv.Notes[0].Origin)
}

func TestHandleEventRejectsMalformedPayloads(t *testing.T) {
	ctx := context.Background()
	adapter, _, captured := adapterFixture(t)

	cases := map[string][]byte{
		"not json":       []byte("definitely not json"),
		"missing type":   []byte(`{"data": {"key": {"id": "x", "remoteJid": "y"}}}`),
		"missing id":     []byte(`{"event": "messages.upsert", "data": {"key": {"remoteJid": "y"}}}`),
		"missing remote": []byte(`{"event": "messages.upsert", "data": {"key": {"id": "x"}}}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, OutcomeInvalid, adapter.HandleEvent(ctx, "t1", raw))
		})
	}
	assert.Empty(t, captured.all())
}

func TestHandleEventUnknownTenant(t *testing.T) {
	adapter, _, _ := adapterFixture(t)

	outcome := adapter.HandleEvent(context.Background(), "ghost", upsertPayload(t, "5511999@s.whatsapp.net", false, "oi"))
	assert.Equal(t, OutcomeInvalid, outcome)
}

func TestHandleEventIgnoresNonUpsertEvents(t *testing.T) {
	adapter, _, captured := adapterFixture(t)

	raw := []byte(`{"event": "presence.update", "data": {"key": {"id": "x", "remoteJid": "5511999@s.whatsapp.net"}}}`)
	outcome := adapter.HandleEvent(context.Background(), "t1", raw)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Empty(t, captured.all())
}

func TestHandleEventAudioWithoutTranscriberIsUnsupported(t *testing.T) {
	adapter, _, captured := adapterFixture(t)

	payload := map[string]any{
		"event": "messages.upsert",
		"data": map[string]any{
			"key":     map[string]any{"id": "prov-a1", "remoteJid": "5511999@s.whatsapp.net"},
			"message": map[string]any{"audioMessage": map[string]any{"mimetype": "audio/ogg", "base64": "b2k="}},
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	outcome := adapter.HandleEvent(context.Background(), "t1", raw)
	assert.Equal(t, OutcomeUnsupported, outcome)
	assert.Empty(t, captured.all())
}

func TestHandleEventClearsFollowUpOnCustomerReply(t *testing.T) {
	ctx := context.Background()
	adapter, st, _ := adapterFixture(t)

	adapter.HandleEvent(ctx, "t1", upsertPayload(t, "5511999@s.whatsapp.net", false, "oi"))
	conv, err := st.FindConversationByContact(ctx, "t1", "5511999@s.whatsapp.net")
	require.NoError(t, err)

	require.NoError(t, st.SetFollowUp(ctx, "t1", conv.ID, &model.FollowUpState{
		Step: model.FollowUpSecond, DueAt: time.Now().Add(time.Hour),
	}))

	adapter.HandleEvent(ctx, "t1", upsertPayload(t, "5511999@s.whatsapp.net", false, "voltei!"))

	fresh, err := st.GetConversation(ctx, "t1", conv.ID)
	require.NoError(t, err)
	assert.Nil(t, fresh.FollowUp)
}

func TestPreviewTruncation(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "palavra "
	}
	msg := &model.Message{Content: long}
	preview := previewLine(msg)
	assert.LessOrEqual(t, len([]rune(preview)), previewLimit+1)

	image := &model.Message{MediaType: "image/jpeg"}
	assert.Equal(t, "[image]", previewLine(image))
}
