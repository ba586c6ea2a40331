package model

import (
	"encoding/json"
)

// ToolRequest is a side-effecting action the model asked for. Ephemeral: never
// persisted as its own entity.
type ToolRequest struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Decision is the structured object every model turn must produce. The raw
// model output is untrusted input; see engine.ParseDecision.
type Decision struct {
	Reasoning        string       `json:"reasoning"`
	ResponseToClient string       `json:"response_to_client,omitempty"`
	ToolRequest      *ToolRequest `json:"tool_request,omitempty"`
}
