package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atendai/orchestrator/internal/model"
	"github.com/atendai/orchestrator/pkg/logger"
)

func testInvocation() Invocation {
	return Invocation{TenantID: "t1", ConversationID: "c1", ContactJID: "5511999@s.whatsapp.net"}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(logger.NewNop())

	result := r.Execute(context.Background(), &model.ToolRequest{Name: "bogus"}, testInvocation())
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown tool")
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	r.Register(&Tool{
		Name: "explode",
		Handler: func(ctx context.Context, args json.RawMessage, inv Invocation) *Result {
			panic("boom")
		},
	})

	result := r.Execute(context.Background(), &model.ToolRequest{Name: "explode"}, testInvocation())
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "panicked")
}

func TestExecuteValidatesBeforeHandler(t *testing.T) {
	var handlerRan bool
	r := NewRegistry(logger.NewNop())
	r.Register(&Tool{
		Name: "strict",
		Validate: func(args json.RawMessage) error {
			return errors.New("bad shape")
		},
		Handler: func(ctx context.Context, args json.RawMessage, inv Invocation) *Result {
			handlerRan = true
			return OK(nil)
		},
	})

	result := r.Execute(context.Background(), &model.ToolRequest{Name: "strict", Args: json.RawMessage(`{}`)}, testInvocation())
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "invalid arguments")
	assert.False(t, handlerRan)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	r.Register(&Tool{Name: "once"})
	assert.Panics(t, func() {
		r.Register(&Tool{Name: "once"})
	})
}

func TestDescribeListsToolsSorted(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	r.Register(&Tool{Name: "zeta", Description: "last."})
	r.Register(&Tool{Name: "alpha", Description: "first.", ArgSpec: `{"x": 1}`})

	doc := r.Describe()
	assert.Less(t, strings.Index(doc, "alpha"), strings.Index(doc, "zeta"))
	assert.Contains(t, doc, `Args: {"x": 1}`)
}
