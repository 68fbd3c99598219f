package openaichat

import (
	"testing"

	"github.com/relaycore/agentcore/message"
)

func TestToWireMessagesDowngradesThinkingToText(t *testing.T) {
	history := []message.AgentMessage{
		{
			Role: message.RoleAssistant,
			Content: []message.ContentBlock{
				{Type: message.BlockThinking, Thinking: "step one. ", ThinkingSignature: "sig-1"},
				{Type: message.BlockText, Text: "final answer"},
			},
		},
	}
	out := toWireMessages(history)
	if len(out) != 1 {
		t.Fatalf("toWireMessages() returned %d messages, want 1", len(out))
	}
	want := "step one. final answer"
	if out[0].Content != want {
		t.Fatalf("toWireMessages() Content = %q, want %q", out[0].Content, want)
	}
}

func TestToWireMessagesUserWithImageBuildsContentParts(t *testing.T) {
	history := []message.AgentMessage{
		{
			Role: message.RoleUser,
			Content: []message.ContentBlock{
				{Type: message.BlockText, Text: "what is this?"},
				{Type: message.BlockImage, ImageData: "YQ==", ImageMimeType: "image/png"},
			},
		},
	}
	out := toWireMessages(history)
	parts, ok := out[0].Content.([]wireContentPart)
	if !ok {
		t.Fatalf("toWireMessages() Content type = %T, want []wireContentPart", out[0].Content)
	}
	if len(parts) != 2 {
		t.Fatalf("toWireMessages() returned %d content parts, want 2", len(parts))
	}
	if parts[0].Type != "text" || parts[0].Text != "what is this?" {
		t.Fatalf("first part mismatch: %+v", parts[0])
	}
	if parts[1].Type != "image_url" || parts[1].ImageURL == nil || parts[1].ImageURL.URL != "data:image/png;base64,YQ==" {
		t.Fatalf("second part mismatch: %+v", parts[1])
	}
}

func TestToWireMessagesUserWithoutImageStaysPlainString(t *testing.T) {
	history := []message.AgentMessage{message.NewUserText("hello")}
	out := toWireMessages(history)
	if out[0].Content != "hello" {
		t.Fatalf("toWireMessages() Content = %v, want plain string \"hello\"", out[0].Content)
	}
}
