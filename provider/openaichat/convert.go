package openaichat

import (
	"encoding/json"

	"github.com/relaycore/agentcore/message"
)

// toWireMessages converts a prepared (PrepareHistory'd) AgentMessage list
// into the OpenAI Chat Completions wire shape.
func toWireMessages(history []message.AgentMessage) []wireMessage {
	out := make([]wireMessage, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case message.RoleUser:
			out = append(out, wireMessage{Role: "user", Content: userContent(m)})
		case message.RoleAssistant:
			wm := wireMessage{Role: "assistant"}
			var text string
			for _, b := range m.Content {
				switch b.Type {
				case message.BlockText:
					text += b.Text
				case message.BlockThinking:
					// Chat Completions has no reasoning-item wire shape to echo a
					// thinking block back through (unlike the Responses API), so every
					// thinking block downgrades to plain text regardless of signature.
					text += b.Thinking
				case message.BlockToolCall:
					args, _ := json.Marshal(b.Arguments)
					wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
						ID:   b.ToolCallID,
						Type: "function",
						Function: wireToolCallFunc{
							Name:      b.ToolName,
							Arguments: string(args),
						},
					})
				}
			}
			if text != "" {
				wm.Content = text
			}
			out = append(out, wm)
		case message.RoleToolResult:
			out = append(out, wireMessage{
				Role:       "tool",
				ToolCallID: m.ToolCallID,
				Content:    textOf(m),
			})
		}
	}
	return out
}

func textOf(m message.AgentMessage) string {
	var out string
	for _, b := range m.Content {
		if b.Type == message.BlockText {
			out += b.Text
		}
	}
	return out
}

// userContent returns a plain string for a text-only message, or a
// content-parts array (per OpenAI's multimodal message shape) when images
// are attached (spec §3's InputImage capability).
func userContent(m message.AgentMessage) any {
	imgs := m.Images()
	if len(imgs) == 0 {
		return textOf(m)
	}
	parts := make([]wireContentPart, 0, len(imgs)+1)
	if text := textOf(m); text != "" {
		parts = append(parts, wireContentPart{Type: "text", Text: text})
	}
	for _, b := range imgs {
		parts = append(parts, wireContentPart{Type: "image_url", ImageURL: &wireImageURL{URL: imageDataURL(b)}})
	}
	return parts
}

func imageDataURL(b message.ContentBlock) string {
	mime := b.ImageMimeType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + b.ImageData
}

func toWireTools(tools []ToolSpec) []wireTool {
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// ToolSpec describes one tool advertised to the model. The adapter takes a
// plain slice instead of importing the tool package, keeping provider
// adapters decoupled from the tool contract (callers pass tool specs
// derived from their tool.Registry).
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

func toUsage(u *wireUsage) message.Usage {
	if u == nil {
		return message.Usage{}
	}
	return message.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
}

func mapStopReason(finishReason string) message.StopReason {
	switch finishReason {
	case "stop":
		return message.StopReasonStop
	case "length":
		return message.StopReasonLength
	case "tool_calls":
		return message.StopReasonToolUse
	default:
		return message.StopReasonStop
	}
}
