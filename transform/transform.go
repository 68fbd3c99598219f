// Package transform implements the context-transformation pipeline:
// compaction (summarizing old history when near the token budget) and
// branch summarization (summarizing an abandoned subtree when navigating).
// Both are consumed as agent.TransformFunc implementations. The
// serialization shape follows a content-flattening helper pattern,
// generalized to this core's message.AgentMessage.
package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/relaycore/agentcore/message"
)

// EstimateTokens approximates a token count from rune length using the
// conventional English bytes-per-token heuristic (see DESIGN.md for why no
// real tokenizer dependency is pulled in for this).
func EstimateTokens(s string) int {
	n := len([]rune(s)) / 4
	if n == 0 && s != "" {
		n = 1
	}
	return n
}

// EstimateMessageTokens sums the approximate token cost of a message's
// serialized form.
func EstimateMessageTokens(m message.AgentMessage) int {
	return EstimateTokens(Serialize(m))
}

// EstimateTotal sums EstimateMessageTokens across a list.
func EstimateTotal(messages []message.AgentMessage) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessageTokens(m)
	}
	return total
}

// Serialize renders one message as a `[Role]: text` transcript line, after
// the caller's convertToLlm has reduced custom variants to one of the four
// normalized roles.
func Serialize(m message.AgentMessage) string {
	switch m.Role {
	case message.RoleUser:
		return "[User]: " + m.Text()
	case message.RoleAssistant:
		var b strings.Builder
		if text := m.Text(); text != "" {
			b.WriteString("[Assistant]: ")
			b.WriteString(text)
		}
		for _, call := range m.ToolCalls() {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "[Assistant tool calls]: %s(args=%v)", call.ToolName, call.Arguments)
		}
		return b.String()
	case message.RoleToolResult:
		return "[Tool result]: " + m.Text()
	default:
		return "[" + string(m.Role) + "]: " + m.Text()
	}
}

// SerializeTranscript joins Serialize output for a message list with blank
// lines between entries, the shape fed to the LLM as the summarization
// prompt's user turn.
func SerializeTranscript(messages []message.AgentMessage) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		if s := Serialize(m); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n\n")
}

// SummarizeFunc calls an LLM (outside this package's concern) with a fixed
// system prompt and a serialized transcript, returning generated summary
// text. The agent loop's own provider machinery backs this in practice; it
// is injected here so transform has no dependency on a specific provider.
type SummarizeFunc func(ctx context.Context, systemPrompt string, transcript string) (string, error)

// CompactionSystemPrompt is the fixed instruction given to the summarizer.
const CompactionSystemPrompt = "Summarize the conversation below concisely, preserving the goal, decisions made, and any unresolved work, so the assistant can continue without the original messages."

// NewCompactionMessage wraps generated summary text in the normalized
// custom-message shape a caller's convertToLlm recognizes and folds into a
// single user-role turn; the loop itself never inspects the custom variant.
func NewCompactionMessage(summary string) message.AgentMessage {
	return message.AgentMessage{
		Role:          message.RoleCustom,
		CustomVariant: "compactionSummary",
		CustomPayload: summary,
		Content:       []message.ContentBlock{{Type: message.BlockText, Text: summary}},
	}
}

// Compact runs the compaction operation: if the estimated token count of
// messages exceeds contextWindow-reserveTokens, collect the
// oldest messages forward until the remaining tail is under
// keepRecentTokens, summarize that prefix via summarize, and replace it
// with a single compactionSummary message.
func Compact(ctx context.Context, messages []message.AgentMessage, contextWindow, reserveTokens, keepRecentTokens int, summarize SummarizeFunc) ([]message.AgentMessage, error) {
	if EstimateTotal(messages) <= contextWindow-reserveTokens {
		return messages, nil
	}

	splitAt := len(messages)
	remaining := 0
	for i := len(messages) - 1; i >= 0; i-- {
		remaining += EstimateMessageTokens(messages[i])
		if remaining > keepRecentTokens {
			splitAt = i + 1
			break
		}
		splitAt = i
	}
	if splitAt <= 0 {
		return messages, nil // nothing old enough to summarize
	}

	prefix := messages[:splitAt]
	tail := messages[splitAt:]

	summary, err := summarize(ctx, CompactionSystemPrompt, SerializeTranscript(prefix))
	if err != nil {
		return nil, fmt.Errorf("transform: compaction summarize: %w", err)
	}

	out := make([]message.AgentMessage, 0, 1+len(tail))
	out = append(out, NewCompactionMessage(summary))
	out = append(out, tail...)
	return out, nil
}
