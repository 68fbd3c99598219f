package openairesponses

import (
	"testing"

	"github.com/relaycore/agentcore/message"
)

func TestToWireInputEchoesReasoningItemID(t *testing.T) {
	history := []message.AgentMessage{
		{
			Role: message.RoleAssistant,
			Content: []message.ContentBlock{
				{Type: message.BlockThinking, Thinking: "chain of thought", ThinkingSignature: "reasoning-item-1"},
				{Type: message.BlockText, Text: "final answer"},
			},
		},
	}
	out := toWireInput(history)
	if len(out) != 2 {
		t.Fatalf("toWireInput() returned %d items, want 2", len(out))
	}
	reasoning := out[0]
	if reasoning.Type != "reasoning" || reasoning.ID != "reasoning-item-1" {
		t.Fatalf("reasoning item mismatch: %+v", reasoning)
	}
	if len(reasoning.Summary) != 1 || reasoning.Summary[0].Text != "chain of thought" {
		t.Fatalf("reasoning summary mismatch: %+v", reasoning.Summary)
	}
	if out[1].Type != "message" || out[1].Role != "assistant" {
		t.Fatalf("message item mismatch: %+v", out[1])
	}
}

func TestToWireInputDowngradesUnsignedThinkingToMessage(t *testing.T) {
	history := []message.AgentMessage{
		{
			Role:    message.RoleAssistant,
			Content: []message.ContentBlock{{Type: message.BlockThinking, Thinking: "unsigned reasoning"}},
		},
	}
	out := toWireInput(history)
	if len(out) != 1 {
		t.Fatalf("toWireInput() returned %d items, want 1", len(out))
	}
	if out[0].Type != "message" || out[0].Role != "assistant" {
		t.Fatalf("unsigned thinking should downgrade to an assistant message, got %+v", out[0])
	}
	if len(out[0].Content) != 1 || out[0].Content[0].Text != "unsigned reasoning" {
		t.Fatalf("downgraded content mismatch: %+v", out[0].Content)
	}
}

func TestToWireInputUserContentIncludesImage(t *testing.T) {
	history := []message.AgentMessage{
		{
			Role: message.RoleUser,
			Content: []message.ContentBlock{
				{Type: message.BlockText, Text: "what is this?"},
				{Type: message.BlockImage, ImageData: "YQ==", ImageMimeType: "image/png"},
			},
		},
	}
	out := toWireInput(history)
	if len(out) != 1 {
		t.Fatalf("toWireInput() returned %d items, want 1", len(out))
	}
	content := out[0].Content
	if len(content) != 2 {
		t.Fatalf("toWireInput() returned %d content parts, want 2", len(content))
	}
	if content[0].Type != "input_text" || content[0].Text != "what is this?" {
		t.Fatalf("first content part mismatch: %+v", content[0])
	}
	if content[1].Type != "input_image" || content[1].ImageURL != "data:image/png;base64,YQ==" {
		t.Fatalf("second content part mismatch: %+v", content[1])
	}
}
