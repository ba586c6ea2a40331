package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/atendai/orchestrator/internal/llm"
	"github.com/atendai/orchestrator/internal/model"
)

// turnState is the ephemeral per-loop state rebuilt into each turn's context.
type turnState struct {
	priorReasoning string
	// failureContext is consumed by exactly one context build, then cleared.
	failureContext string
	// surfacedFailure remembers the failure signature already fed back once;
	// a repeat forces escalation.
	surfacedFailure string
	toolNotes       []string
}

const decisionFormat = `Respond with a single JSON object and nothing else:
{
  "reasoning": "your private reasoning, never shown to the customer",
  "response_to_client": "text to send to the customer (omit when nothing should be sent)",
  "tool_request": {"name": "tool_name", "args": {...}} (omit when no action is needed)
}`

// buildSystemPrompt assembles the per-turn system instruction: persona,
// knowledge base, conversation metadata, available tools, prior reasoning and
// any pending failure context.
func (c *Controller) buildSystemPrompt(conv *model.Conversation, settings *model.TenantSettings, state *turnState) string {
	var b strings.Builder

	name := settings.AgentName
	if name == "" {
		name = "the virtual assistant"
	}
	fmt.Fprintf(&b, "You are %s, handling a customer conversation over a messaging channel.\n\n", name)

	if settings.KnowledgeBase != "" {
		b.WriteString("## Business knowledge\n")
		b.WriteString(settings.KnowledgeBase)
		b.WriteString("\n\n")
	}

	b.WriteString("## Conversation\n")
	if conv.ContactName != "" {
		fmt.Fprintf(&b, "Customer name: %s\n", conv.ContactName)
	}
	fmt.Fprintf(&b, "Folder: %s\n", conv.Folder)
	if len(conv.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(conv.Tags, ", "))
	}
	b.WriteString("\n")

	b.WriteString("## Available tools\n")
	b.WriteString(c.registry.Describe())
	b.WriteString("\n")

	if state.priorReasoning != "" {
		b.WriteString("## Your reasoning from the previous turn\n")
		b.WriteString(state.priorReasoning)
		b.WriteString("\n\n")
	}

	if len(state.toolNotes) > 0 {
		b.WriteString("## Tool results so far\n")
		for _, note := range state.toolNotes {
			b.WriteString("- " + note + "\n")
		}
		b.WriteString("\n")
	}

	if state.failureContext != "" {
		b.WriteString("## Tool failure to address\n")
		b.WriteString(state.failureContext)
		b.WriteString("\nCorrect the arguments and retry, or hand the conversation to a human.\n\n")
	}

	b.WriteString("## Output format\n")
	b.WriteString(decisionFormat)

	return b.String()
}

// buildTurns maps recent history plus the current batch into chat turns.
// Consecutive same-role messages are coalesced because generation services
// require alternating roles.
func (c *Controller) buildTurns(ctx context.Context, conv *model.Conversation, batch []model.Message) ([]llm.ChatMessage, string) {
	history, err := c.store.RecentMessages(ctx, conv.TenantID, conv.ID, c.historyWindow)
	if err != nil {
		history = nil
	}

	seen := make(map[string]bool, len(history))
	for _, msg := range history {
		seen[msg.ID] = true
	}
	for _, msg := range batch {
		if !seen[msg.ID] {
			history = append(history, msg)
		}
	}

	var turns []llm.ChatMessage
	var imageURL string
	for _, msg := range history {
		role := "assistant"
		if msg.Direction == model.DirectionCustomer {
			role = "user"
		}
		text := msg.Text()
		if text == "" && msg.MediaURL != "" {
			text = "[" + msg.MediaType + " message]"
		}
		if msg.Direction == model.DirectionCustomer && strings.HasPrefix(msg.MediaType, "image") {
			imageURL = msg.MediaURL
		}
		if len(turns) > 0 && turns[len(turns)-1].Role == role {
			turns[len(turns)-1].Content += "\n" + text
			continue
		}
		turns = append(turns, llm.ChatMessage{Role: role, Content: text})
	}

	// The transcript must open with a customer turn.
	if len(turns) > 0 && turns[0].Role != "user" {
		turns = append([]llm.ChatMessage{{Role: "user", Content: "[conversation opened]"}}, turns...)
	}
	if len(turns) == 0 {
		turns = []llm.ChatMessage{{Role: "user", Content: "[no message content]"}}
	}
	// And close with one, so the model answers the customer.
	if turns[len(turns)-1].Role != "user" {
		turns = append(turns, llm.ChatMessage{Role: "user", Content: "[awaiting your reply]"})
	}

	return turns, imageURL
}
