package openairesponses

import (
	"encoding/json"
	"strings"

	"github.com/relaycore/agentcore/message"
)

// toolCallIDSep joins a function call's "call_id" (used on the matching
// function_call_output) and its "id" (the opaque item id some reasoning-
// enabled models require echoed back verbatim) into the single string this
// core's ContentBlock.ToolCallID carries, since the normalized message model
// has only one id field per tool call.
const toolCallIDSep = "|"

func encodeToolCallID(callID, itemID string) string {
	if itemID == "" {
		return callID
	}
	return callID + toolCallIDSep + itemID
}

func decodeToolCallID(encoded string) (callID, itemID string) {
	if idx := strings.IndexByte(encoded, toolCallIDSep[0]); idx >= 0 {
		return encoded[:idx], encoded[idx+1:]
	}
	return encoded, ""
}

// toWireInput converts a prepared history into the Responses API "input"
// item array.
func toWireInput(history []message.AgentMessage) []wireItem {
	out := make([]wireItem, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case message.RoleUser:
			out = append(out, wireItem{
				Type:    "message",
				Role:    "user",
				Content: userContent(m),
			})
		case message.RoleAssistant:
			for _, b := range m.Content {
				switch b.Type {
				case message.BlockText:
					if b.Text == "" {
						continue
					}
					out = append(out, wireItem{
						Type:    "message",
						Role:    "assistant",
						Content: []wireContent{{Type: "output_text", Text: b.Text}},
					})
				case message.BlockThinking:
					// A reasoning item's id must be echoed back verbatim on the
					// following request, so a signed thinking block is re-sent as a
					// "reasoning" item keyed by that id; without a signature (e.g. the
					// block was reconstructed from a different provider) there is no
					// id to echo, so it downgrades to a plain assistant text message.
					if b.Thinking == "" && b.ThinkingSignature == "" {
						continue
					}
					if b.ThinkingSignature != "" {
						out = append(out, wireItem{
							Type:    "reasoning",
							ID:      b.ThinkingSignature,
							Summary: []wireReasoningSummary{{Type: "summary_text", Text: b.Thinking}},
						})
					} else {
						out = append(out, wireItem{
							Type:    "message",
							Role:    "assistant",
							Content: []wireContent{{Type: "output_text", Text: b.Thinking}},
						})
					}
				case message.BlockToolCall:
					callID, itemID := decodeToolCallID(b.ToolCallID)
					args, _ := json.Marshal(b.Arguments)
					out = append(out, wireItem{
						Type:      "function_call",
						ID:        itemID,
						CallID:    callID,
						Name:      b.ToolName,
						Arguments: string(args),
					})
				}
			}
		case message.RoleToolResult:
			callID, _ := decodeToolCallID(m.ToolCallID)
			out = append(out, wireItem{
				Type:   "function_call_output",
				CallID: callID,
				Output: m.Text(),
			})
		}
	}
	return out
}

// userContent builds a user turn's content array, pairing its text with any
// attached images (spec §3's InputImage capability; PrepareHistory already
// strips images the target model can't accept before this runs).
func userContent(m message.AgentMessage) []wireContent {
	parts := make([]wireContent, 0, len(m.Content))
	if text := m.Text(); text != "" {
		parts = append(parts, wireContent{Type: "input_text", Text: text})
	}
	for _, b := range m.Images() {
		parts = append(parts, wireContent{Type: "input_image", ImageURL: imageDataURL(b)})
	}
	if len(parts) == 0 {
		parts = append(parts, wireContent{Type: "input_text"})
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
		out = append(out, wireTool{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return out
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
	return message.Usage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
}
