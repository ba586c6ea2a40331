package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atendai/orchestrator/internal/delivery"
	"github.com/atendai/orchestrator/internal/llm"
	"github.com/atendai/orchestrator/internal/messenger"
	"github.com/atendai/orchestrator/internal/model"
	"github.com/atendai/orchestrator/internal/store"
	"github.com/atendai/orchestrator/internal/tools"
	"github.com/atendai/orchestrator/pkg/logger"
)

type scriptedClient struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	content string
	err     error
}

func (c *scriptedClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.calls
	c.calls++
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	s := c.responses[i]
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.content, Model: req.Model}, nil
}

func (c *scriptedClient) Name() string     { return "openai" }
func (c *scriptedClient) Models() []string { return nil }

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSender) SendText(ctx context.Context, tenantID, to, text string, opts messenger.SendOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.texts = append(f.texts, text)
	return fmt.Sprintf("prov-%d", len(f.texts)), nil
}

func (f *fakeSender) SendMedia(ctx context.Context, tenantID, to, mediaURL, caption string) (string, error) {
	return "prov-media", nil
}

func (f *fakeSender) SetPresence(ctx context.Context, tenantID, to string, presence messenger.Presence) error {
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type loopFixture struct {
	store      *store.Memory
	client     *scriptedClient
	sender     *fakeSender
	controller *Controller
}

func newLoopFixture(t *testing.T, maxTurns int, responses ...scriptedResponse) *loopFixture {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemory()
	require.NoError(t, st.PutTenantSettings(ctx, &model.TenantSettings{
		TenantID: "t1",
		AIModel:  "gpt-4o",
		PostToolMessages: map[string]string{
			tools.ToolTransferToHuman: "Vou te passar para um atendente.",
		},
	}))
	require.NoError(t, st.CreateConversation(ctx, &model.Conversation{
		ID:         "c1",
		TenantID:   "t1",
		ContactJID: "5511999@s.whatsapp.net",
		Folder:     model.FolderInbox,
		AIActive:   true,
	}))

	client := &scriptedClient{responses: responses}
	sender := &fakeSender{}
	log := logger.NewNop()

	router := llm.NewRouter(client, nil, "gpt-4o", 0, log)
	registry := tools.NewRegistry(log)
	tools.RegisterBuiltin(registry, tools.Deps{Store: st, Sender: sender, Logger: log})
	pipeline := delivery.NewPipeline(st, sender, delivery.Config{}, log)
	controller := NewController(st, router, registry, pipeline, Config{MaxTurns: maxTurns}, log)

	return &loopFixture{store: st, client: client, sender: sender, controller: controller}
}

func decision(reasoning, response, toolJSON string) string {
	out := fmt.Sprintf(`{"reasoning": %q`, reasoning)
	if response != "" {
		out += fmt.Sprintf(`, "response_to_client": %q`, response)
	}
	if toolJSON != "" {
		out += `, "tool_request": ` + toolJSON
	}
	return out + "}"
}

func batchOf(texts ...string) []model.Message {
	batch := make([]model.Message, 0, len(texts))
	for i, text := range texts {
		batch = append(batch, model.Message{
			ID:             fmt.Sprintf("in-%d", i),
			ConversationID: "c1",
			TenantID:       "t1",
			Direction:      model.DirectionCustomer,
			Content:        text,
		})
	}
	return batch
}

func TestLoopDeliversPlainReply(t *testing.T) {
	ctx := context.Background()
	f := newLoopFixture(t, 5,
		scriptedResponse{content: decision("greet", "Olá, como posso ajudar?", "")},
	)

	f.controller.ProcessBatch(ctx, "t1", "c1", batchOf("oi"))

	assert.Equal(t, []string{"Olá, como posso ajudar?"}, f.sender.sent())
	assert.Equal(t, 1, f.client.callCount())

	conv, err := f.store.GetConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.False(t, conv.AIThinking)
}

func TestLoopSkipsWhenAutomationInactive(t *testing.T) {
	ctx := context.Background()
	f := newLoopFixture(t, 5,
		scriptedResponse{content: decision("r", "never sent", "")},
	)
	active := false
	require.NoError(t, f.store.UpdateConversation(ctx, "t1", "c1", store.ConversationUpdate{AIActive: &active}))

	f.controller.ProcessBatch(ctx, "t1", "c1", batchOf("oi"))

	assert.Zero(t, f.client.callCount())
	assert.Empty(t, f.sender.sent())
}

func TestLoopRequeuesBatchWhenAlreadyThinking(t *testing.T) {
	ctx := context.Background()
	f := newLoopFixture(t, 5,
		scriptedResponse{content: decision("r", "never sent", "")},
	)
	ok, err := f.store.TryMarkThinking(ctx, "t1", "c1")
	require.NoError(t, err)
	require.True(t, ok)

	f.controller.ProcessBatch(ctx, "t1", "c1", batchOf("oi", "tudo bem?"))

	assert.Zero(t, f.client.callCount())

	// The flag belongs to the other loop and must not have been cleared, and
	// the batch goes back on the pending queue instead of being dropped.
	conv, err := f.store.GetConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.True(t, conv.AIThinking)
	require.Len(t, conv.Pending, 2)
	assert.Equal(t, "oi", conv.Pending[0].Content)
	assert.Equal(t, "tudo bem?", conv.Pending[1].Content)
}

func TestLoopResumesDeferredBatch(t *testing.T) {
	ctx := context.Background()
	f := newLoopFixture(t, 5,
		scriptedResponse{content: decision("greet", "Olá!", "")},
	)

	// A batch arriving while another loop holds the flag gets requeued.
	ok, err := f.store.TryMarkThinking(ctx, "t1", "c1")
	require.NoError(t, err)
	require.True(t, ok)
	f.controller.ProcessBatch(ctx, "t1", "c1", batchOf("primeira"))
	require.NoError(t, f.store.ClearThinking(ctx, "t1", "c1"))

	// The next completed loop drains the deferred batch and processes it.
	f.controller.ProcessBatch(ctx, "t1", "c1", batchOf("segunda"))

	require.Eventually(t, func() bool {
		return len(f.sender.sent()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		conv, err := f.store.GetConversation(ctx, "t1", "c1")
		return err == nil && !conv.AIThinking && len(conv.Pending) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLoopToolThenReply(t *testing.T) {
	ctx := context.Background()
	f := newLoopFixture(t, 5,
		scriptedResponse{content: decision("save it", "", `{"name": "save_note", "args": {"text": "customer wants pricing"}}`)},
		scriptedResponse{content: decision("answer", "Nossos planos começam em R$99.", "")},
	)

	f.controller.ProcessBatch(ctx, "t1", "c1", batchOf("quanto custa?"))

	assert.Equal(t, 2, f.client.callCount())
	assert.Equal(t, []string{"Nossos planos começam em R$99."}, f.sender.sent())

	conv, err := f.store.GetConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	require.Len(t, conv.Notes, 1)
	assert.Equal(t, "customer wants pricing", conv.Notes[0].Text)
}

func TestLoopSilentToolSuppressesClientText(t *testing.T) {
	ctx := context.Background()
	f := newLoopFixture(t, 5,
		scriptedResponse{content: decision("record name", "Prazer em te conhecer!", `{"name": "update_contact", "args": {"name": "Ana"}}`)},
		scriptedResponse{content: decision("now greet", "Prazer, Ana! Como posso ajudar?", "")},
	)

	f.controller.ProcessBatch(ctx, "t1", "c1", batchOf("meu nome é Ana"))

	// The text accompanying the silent tool never reaches the customer.
	assert.Equal(t, []string{"Prazer, Ana! Como posso ajudar?"}, f.sender.sent())

	conv, err := f.store.GetConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", conv.ContactName)
}

func TestLoopTerminalToolShortCircuits(t *testing.T) {
	ctx := context.Background()
	f := newLoopFixture(t, 5,
		scriptedResponse{content: decision("escalate", "", `{"name": "transfer_to_human", "args": {"reason": "asked for a person"}}`)},
		scriptedResponse{content: decision("should not run", "never", "")},
	)

	f.controller.ProcessBatch(ctx, "t1", "c1", batchOf("quero falar com uma pessoa"))

	assert.Equal(t, 1, f.client.callCount())
	assert.Equal(t, []string{"Vou te passar para um atendente."}, f.sender.sent())

	conv, err := f.store.GetConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.FolderSupport, conv.Folder)
	assert.False(t, conv.AIActive)
	assert.False(t, conv.AIThinking)
}

func TestLoopRepeatedToolFailureForcesEscalation(t *testing.T) {
	ctx := context.Background()
	// schedule_appointment fails validation both times with the same signature.
	badTool := `{"name": "schedule_appointment", "args": {"date": "amanhã", "time": "14:00"}}`
	f := newLoopFixture(t, 5,
		scriptedResponse{content: decision("book it", "", badTool)},
		scriptedResponse{content: decision("retry booking", "", badTool)},
	)

	f.controller.ProcessBatch(ctx, "t1", "c1", batchOf("marca pra amanhã às 14h"))

	// Two model calls: original failure, one retry, then forced handoff.
	assert.Equal(t, 2, f.client.callCount())
	assert.Equal(t, []string{"Vou te passar para um atendente."}, f.sender.sent())

	conv, err := f.store.GetConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.FolderSupport, conv.Folder)
	assert.False(t, conv.AIActive)
}

func TestLoopTurnCap(t *testing.T) {
	ctx := context.Background()
	// Every turn requests a successful non-terminal tool, so only the cap stops it.
	f := newLoopFixture(t, 3,
		scriptedResponse{content: decision("loop", "", `{"name": "save_note", "args": {"text": "spinning"}}`)},
	)

	f.controller.ProcessBatch(ctx, "t1", "c1", batchOf("oi"))

	assert.Equal(t, 3, f.client.callCount())

	conv, err := f.store.GetConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.False(t, conv.AIThinking)
}

func TestLoopAbortsOnUnparsableDecision(t *testing.T) {
	ctx := context.Background()
	f := newLoopFixture(t, 5,
		scriptedResponse{content: "I think the customer wants help."},
	)

	f.controller.ProcessBatch(ctx, "t1", "c1", batchOf("oi"))

	assert.Equal(t, 1, f.client.callCount())
	assert.Empty(t, f.sender.sent())

	conv, err := f.store.GetConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.False(t, conv.AIThinking)
}

func TestLoopClearsThinkingOnGenerationFailure(t *testing.T) {
	ctx := context.Background()
	f := newLoopFixture(t, 5,
		scriptedResponse{err: errors.New("invalid api key")},
	)

	f.controller.ProcessBatch(ctx, "t1", "c1", batchOf("oi"))

	conv, err := f.store.GetConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.False(t, conv.AIThinking)
	assert.Empty(t, f.sender.sent())
}

func TestLoopFailureContextReachesNextTurn(t *testing.T) {
	ctx := context.Background()
	f := newLoopFixture(t, 5,
		scriptedResponse{content: decision("book", "", `{"name": "schedule_appointment", "args": {"date": "bad", "time": "14:00"}}`)},
		scriptedResponse{content: decision("fixed", "", `{"name": "schedule_appointment", "args": {"date": "2026-09-01", "time": "14:00"}}`)},
	)

	f.controller.ProcessBatch(ctx, "t1", "c1", batchOf("marca uma visita"))

	assert.Equal(t, 2, f.client.callCount())

	conv, err := f.store.GetConversation(ctx, "t1", "c1")
	require.NoError(t, err)
	require.Len(t, conv.Notes, 1)
	assert.Contains(t, conv.Notes[0].Text, "2026-09-01")
	// Corrected retry succeeded: no escalation.
	assert.Equal(t, model.FolderInbox, conv.Folder)
	assert.True(t, conv.AIActive)
}
