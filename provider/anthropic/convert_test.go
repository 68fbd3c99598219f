package anthropic

import (
	"testing"

	"github.com/relaycore/agentcore/message"
)

func TestEncodeMessagesReplaysSignedThinkingBlock(t *testing.T) {
	history := []message.AgentMessage{
		{
			Role: message.RoleAssistant,
			Content: []message.ContentBlock{
				{Type: message.BlockThinking, Thinking: "because X implies Y", ThinkingSignature: "sig-123"},
				{Type: message.BlockText, Text: "the answer is Y"},
			},
		},
	}
	out, err := encodeMessages(history)
	if err != nil {
		t.Fatalf("encodeMessages() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("encodeMessages() returned %d messages, want 1", len(out))
	}
	blocks := out[0].Content
	if len(blocks) != 2 {
		t.Fatalf("encodeMessages() returned %d content blocks, want 2", len(blocks))
	}
	if blocks[0].OfThinking == nil {
		t.Fatalf("first block should be a thinking block, got %+v", blocks[0])
	}
	if blocks[0].OfThinking.Thinking != "because X implies Y" || blocks[0].OfThinking.Signature != "sig-123" {
		t.Fatalf("thinking block mismatch: %+v", blocks[0].OfThinking)
	}
	if blocks[1].OfText == nil || blocks[1].OfText.Text != "the answer is Y" {
		t.Fatalf("second block should carry the text reply, got %+v", blocks[1])
	}
}

func TestEncodeMessagesDowngradesUnsignedThinkingToText(t *testing.T) {
	history := []message.AgentMessage{
		{
			Role:    message.RoleAssistant,
			Content: []message.ContentBlock{{Type: message.BlockThinking, Thinking: "unsigned reasoning"}},
		},
	}
	out, err := encodeMessages(history)
	if err != nil {
		t.Fatalf("encodeMessages() error = %v", err)
	}
	blocks := out[0].Content
	if len(blocks) != 1 {
		t.Fatalf("encodeMessages() returned %d content blocks, want 1", len(blocks))
	}
	if blocks[0].OfThinking != nil {
		t.Fatalf("unsigned thinking block should not be replayed as thinking, got %+v", blocks[0])
	}
	if blocks[0].OfText == nil || blocks[0].OfText.Text != "unsigned reasoning" {
		t.Fatalf("unsigned thinking block should downgrade to text, got %+v", blocks[0])
	}
}

func TestUserBlocksIncludesImages(t *testing.T) {
	m := message.AgentMessage{
		Role: message.RoleUser,
		Content: []message.ContentBlock{
			{Type: message.BlockText, Text: "what is this?"},
			{Type: message.BlockImage, ImageData: "base64data", ImageMimeType: "image/jpeg"},
		},
	}
	blocks := userBlocks(m)
	if len(blocks) != 2 {
		t.Fatalf("userBlocks() returned %d blocks, want 2", len(blocks))
	}
	if blocks[0].OfText == nil || blocks[0].OfText.Text != "what is this?" {
		t.Fatalf("first block should be the text, got %+v", blocks[0])
	}
	if blocks[1].OfImage == nil {
		t.Fatalf("second block should be an image, got %+v", blocks[1])
	}
}
