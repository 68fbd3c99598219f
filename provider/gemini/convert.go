package gemini

import "github.com/relaycore/agentcore/message"

// toWireContents converts a prepared history into Gemini's contents array.
// Gemini has no dedicated tool-result role: a toolResult message becomes a
// "user" turn carrying a functionResponse part, matching the API's
// documented convention.
func toWireContents(history []message.AgentMessage) []wireContent {
	out := make([]wireContent, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case message.RoleUser:
			out = append(out, wireContent{Role: "user", Parts: userParts(m)})
		case message.RoleAssistant:
			var parts []wirePart
			for _, b := range m.Content {
				switch b.Type {
				case message.BlockText:
					if b.Text != "" {
						parts = append(parts, wirePart{Text: b.Text})
					}
				case message.BlockThinking:
					// A signed thinking part is replayed marked "thought" with its
					// signature so the model recognizes its own reasoning; unsigned
					// thinking (e.g. carried over from another provider) downgrades to
					// a plain text part to avoid the model rejecting an unsigned thought.
					if b.Thinking == "" {
						continue
					}
					if b.ThinkingSignature != "" {
						parts = append(parts, wirePart{Text: b.Thinking, Thought: true, ThoughtSignature: b.ThinkingSignature})
					} else {
						parts = append(parts, wirePart{Text: b.Thinking})
					}
				case message.BlockToolCall:
					parts = append(parts, wirePart{FunctionCall: &wireFunctionCall{Name: b.ToolName, Args: b.Arguments}})
				}
			}
			if len(parts) > 0 {
				out = append(out, wireContent{Role: "model", Parts: parts})
			}
		case message.RoleToolResult:
			out = append(out, wireContent{
				Role: "user",
				Parts: []wirePart{{FunctionResponse: &wireFunctionResponse{
					Name:     m.ToolName,
					Response: map[string]any{"result": m.Text(), "isError": m.IsError},
				}}},
			})
		}
	}
	return out
}

// userParts builds a user turn's parts, pairing its text with any attached
// images (spec §3's InputImage capability; PrepareHistory already strips
// images the target model can't accept before this runs).
func userParts(m message.AgentMessage) []wirePart {
	parts := make([]wirePart, 0, len(m.Content))
	if text := m.Text(); text != "" {
		parts = append(parts, wirePart{Text: text})
	}
	for _, b := range m.Images() {
		mime := b.ImageMimeType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, wirePart{InlineData: &wireInlineData{MimeType: mime, Data: b.ImageData}})
	}
	if len(parts) == 0 {
		parts = append(parts, wirePart{Text: ""})
	}
	return parts
}

func toWireTools(tools []ToolSpec) []wireToolDecl {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]wireFunctionDecl, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, wireFunctionDecl{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return []wireToolDecl{{FunctionDeclarations: decls}}
}

// ToolSpec describes one tool advertised to the model, decoupled from the
// tool package the way every other adapter's ToolSpec is.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

func toUsage(u *wireUsage) message.Usage {
	if u == nil {
		return message.Usage{}
	}
	return message.Usage{InputTokens: u.PromptTokenCount, OutputTokens: u.CandidatesTokenCount}
}

func mapFinishReason(reason string, hasToolCall bool) message.StopReason {
	switch reason {
	case "MAX_TOKENS":
		return message.StopReasonLength
	case "STOP", "":
		if hasToolCall {
			return message.StopReasonToolUse
		}
		return message.StopReasonStop
	default:
		return message.StopReasonStop
	}
}
