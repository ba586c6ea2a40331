// Package engine drives the bounded multi-turn reasoning loop for one
// conversation at a time.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/atendai/orchestrator/internal/model"
)

// ErrUnparsableDecision is the single failure mode of decision parsing. The
// loop aborts on it without retrying.
var ErrUnparsableDecision = errors.New("engine: model output is not a valid decision")

// ParseDecision turns raw model output into a Decision. The output is
// untrusted: code fences are stripped, the outermost JSON object is extracted,
// and the result is schema-checked.
func ParseDecision(raw string) (*model.Decision, error) {
	cleaned := stripFences(raw)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrUnparsableDecision)
	}

	var decision model.Decision
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &decision); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableDecision, err)
	}

	if decision.Reasoning == "" && decision.ResponseToClient == "" && decision.ToolRequest == nil {
		return nil, fmt.Errorf("%w: decision carries no reasoning, response or tool request", ErrUnparsableDecision)
	}
	if decision.ToolRequest != nil && decision.ToolRequest.Name == "" {
		return nil, fmt.Errorf("%w: tool request without a name", ErrUnparsableDecision)
	}

	return &decision, nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the language tag on the opening fence.
	if idx := strings.Index(s, "\n"); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 10 && !strings.Contains(first, "{") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
