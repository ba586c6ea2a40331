// Package tools provides the registry of side-effecting operations the
// reasoning loop can invoke, with a uniform invocation and result contract.
package tools

import (
	"fmt"
)

// Result is the unified return type from tool execution.
type Result struct {
	Success bool           `json:"success"`
	Payload map[string]any `json:"payload,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// OK builds a successful result.
func OK(payload map[string]any) *Result {
	return &Result{Success: true, Payload: payload}
}

// Fail builds a failed result.
func Fail(format string, args ...any) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// String renders the result for injection into the next reasoning turn.
func (r *Result) String() string {
	if r.Success {
		if len(r.Payload) == 0 {
			return "success"
		}
		return fmt.Sprintf("success: %v", r.Payload)
	}
	return "error: " + r.Error
}
