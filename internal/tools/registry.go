package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/atendai/orchestrator/internal/model"
	"github.com/atendai/orchestrator/pkg/logger"
	"github.com/atendai/orchestrator/pkg/metrics"
)

// Invocation carries the scope a tool runs in.
type Invocation struct {
	TenantID       string
	ConversationID string
	ContactJID     string
}

// HandlerFunc executes a tool. It returns a Result; transport-level problems
// go into the Result too, never up the stack.
type HandlerFunc func(ctx context.Context, args json.RawMessage, inv Invocation) *Result

// Tool describes one registered operation.
type Tool struct {
	Name        string
	Description string
	// ArgSpec documents the expected argument shape; exposed verbatim to the
	// generation service alongside Description.
	ArgSpec string
	// Silent suppresses the model's accompanying client text when this tool
	// is requested.
	Silent bool
	// Terminal short-circuits the reasoning loop when this tool succeeds.
	Terminal bool
	// Validate checks the argument shape before the handler runs.
	Validate func(args json.RawMessage) error
	Handler  HandlerFunc
}

// Registry maps tool names to tools.
type Registry struct {
	tools  map[string]*Tool
	logger *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: log,
	}
}

// Register adds a tool. Registering a duplicate name panics: the registry is
// assembled once at startup.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; exists {
		panic(fmt.Sprintf("tools: duplicate registration of %q", t.Name))
	}
	r.tools[t.Name] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Describe renders the available-actions documentation for the generation
// service prompt.
func (r *Registry) Describe() string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		t := r.tools[name]
		fmt.Fprintf(&b, "- %s: %s", t.Name, t.Description)
		if t.ArgSpec != "" {
			fmt.Fprintf(&b, " Args: %s", t.ArgSpec)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Execute runs a tool request. Unknown names fail fast; panics from handlers
// are converted into a failed result rather than propagated.
func (r *Registry) Execute(ctx context.Context, req *model.ToolRequest, inv Invocation) (result *Result) {
	log := r.logger.WithConversation(inv.TenantID, inv.ConversationID)

	tool, ok := r.tools[req.Name]
	if !ok {
		log.Warn("unknown tool requested", zap.String("tool", req.Name))
		metrics.ToolExecutionsTotal.WithLabelValues(req.Name, "unknown").Inc()
		return Fail("unknown tool %q", req.Name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("tool panicked",
				zap.String("tool", req.Name),
				zap.Any("panic", rec),
			)
			result = Fail("tool %s panicked: %v", req.Name, rec)
		}
		outcome := "success"
		if !result.Success {
			outcome = "failure"
		}
		metrics.ToolExecutionsTotal.WithLabelValues(req.Name, outcome).Inc()
		log.Info("tool executed",
			zap.String("tool", req.Name),
			zap.String("args", string(req.Args)),
			zap.Bool("success", result.Success),
			zap.String("error", result.Error),
		)
	}()

	if tool.Validate != nil {
		if err := tool.Validate(req.Args); err != nil {
			return Fail("invalid arguments for %s: %v", req.Name, err)
		}
	}

	return tool.Handler(ctx, req.Args, inv)
}
