package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atendai/orchestrator/pkg/logger"
	"github.com/atendai/orchestrator/pkg/metrics"
)

// knownModels is the fixed fallback priority order across providers.
var knownModels = []string{
	"gpt-4o",
	"claude-3-5-sonnet-20241022",
	"gpt-4o-mini",
	"claude-3-5-haiku-20241022",
	"gpt-4-turbo",
	"claude-3-opus-20240229",
	"gpt-3.5-turbo",
}

// ErrCandidatesExhausted is returned when every candidate model failed with a
// retryable error.
var ErrCandidatesExhausted = errors.New("llm: all candidate models exhausted")

// Router dispatches completion requests to the provider owning a model and
// walks an ordered candidate list on retryable failures.
type Router struct {
	clients      map[Provider]Client
	defaultModel string
	timeout      time.Duration
	logger       *logger.Logger
}

// NewRouter creates a router over the configured provider clients. Clients may
// be nil when a provider is not configured; its models are then skipped.
func NewRouter(openaiClient, anthropicClient Client, defaultModel string, timeout time.Duration, log *logger.Logger) *Router {
	clients := make(map[Provider]Client)
	if openaiClient != nil {
		clients[ProviderOpenAI] = openaiClient
	}
	if anthropicClient != nil {
		clients[ProviderAnthropic] = anthropicClient
	}
	if !isKnownModel(defaultModel) {
		defaultModel = "gpt-4o"
	}
	return &Router{
		clients:      clients,
		defaultModel: defaultModel,
		timeout:      timeout,
		logger:       log,
	}
}

func isKnownModel(model string) bool {
	for _, m := range knownModels {
		if m == model {
			return true
		}
	}
	return false
}

func providerFor(model string) Provider {
	if strings.HasPrefix(model, "claude") {
		return ProviderAnthropic
	}
	return ProviderOpenAI
}

// Candidates builds the ordered candidate list for a tenant. The tenant's
// model leads (normalized to the default when unrecognized); with fallback
// enabled, every other known model follows in fixed priority order.
func (r *Router) Candidates(tenantModel string, fallbackEnabled bool) []string {
	primary := tenantModel
	if !isKnownModel(primary) {
		primary = r.defaultModel
	}
	if !fallbackEnabled {
		return []string{primary}
	}
	candidates := make([]string, 0, len(knownModels))
	candidates = append(candidates, primary)
	for _, m := range knownModels {
		if m != primary {
			candidates = append(candidates, m)
		}
	}
	return candidates
}

// Generate walks the candidate list in order. A candidate succeeds when it
// returns non-empty content. Retryable failures fall through to the next
// candidate; a terminal failure aborts immediately.
func (r *Router) Generate(ctx context.Context, candidates []string, req *CompletionRequest) (*CompletionResponse, error) {
	var lastErr error
	for i, model := range candidates {
		client, ok := r.clients[providerFor(model)]
		if !ok {
			continue
		}

		callReq := *req
		callReq.Model = model

		resp, err := r.complete(ctx, client, &callReq)
		if err == nil && strings.TrimSpace(resp.Content) == "" {
			err = ErrEmptyCompletion
		}
		if err == nil {
			metrics.RecordGeneration(model, "success", float64(resp.LatencyMs)/1000.0, resp.TokensIn, resp.TokensOut)
			return resp, nil
		}

		metrics.RecordGeneration(model, "error", 0, 0, 0)
		if !Retryable(err) {
			r.logger.Error("generation failed, not retryable",
				zap.String("model", model),
				zap.Error(err),
			)
			return nil, fmt.Errorf("generation with %s: %w", model, err)
		}

		lastErr = err
		if i+1 < len(candidates) {
			metrics.GenerationFallbacksTotal.WithLabelValues(model, candidates[i+1]).Inc()
			r.logger.Warn("generation failed, trying next candidate",
				zap.String("model", model),
				zap.String("next", candidates[i+1]),
				zap.Error(err),
			)
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: last error: %v", ErrCandidatesExhausted, lastErr)
	}
	return nil, ErrCandidatesExhausted
}

// complete runs a single candidate attempt under the per-call timeout. The
// timeout context is released when the attempt finishes, not when the whole
// candidate walk does.
func (r *Router) complete(ctx context.Context, client Client, req *CompletionRequest) (*CompletionResponse, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return client.Complete(ctx, req)
}
