package provider

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/relaycore/agentcore/message"
)

// idSanitizer implements the tool-call id normalization rule of spec §4.2
// point 1: replace any character outside [A-Za-z0-9_-] with "_".
var idSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// NormalizeToolCallID sanitizes and truncates a tool-call id per spec §4.2.
func NormalizeToolCallID(id string) string {
	normalized := idSanitizer.ReplaceAllString(id, "_")
	if len(normalized) > 64 {
		normalized = normalized[:64]
	}
	return normalized
}

// StripUnpairedSurrogates removes lone UTF-16 surrogate code points that
// slipped into text (e.g. from a truncated multi-byte stream read), which
// some providers reject outright. A surrogate code point is not valid UTF-8,
// so every byte outside a valid UTF-8 sequence is dropped; characters beyond
// the Basic Multilingual Plane (what a valid surrogate pair encodes) are
// left untouched.
func StripUnpairedSurrogates(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			continue // drop unpaired surrogate
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PrepareHistory applies the universal transforms of spec §4.2 point 1
// before a provider-specific conversion: strip unpaired surrogates from all
// text, drop assistant messages whose content is entirely empty, drop image
// blocks when the model declares no image input, and normalize tool-call
// ids.
func PrepareHistory(history []message.AgentMessage, model message.ModelDescriptor) []message.AgentMessage {
	out := make([]message.AgentMessage, 0, len(history))
	for _, m := range history {
		if m.Role == message.RoleAssistant && m.IsEmptyContent() {
			continue
		}
		out = append(out, prepareMessage(m, model))
	}
	return out
}

func prepareMessage(m message.AgentMessage, model message.ModelDescriptor) message.AgentMessage {
	blocks := make([]message.ContentBlock, 0, len(m.Content))
	for _, b := range m.Content {
		switch b.Type {
		case message.BlockText:
			b.Text = StripUnpairedSurrogates(b.Text)
		case message.BlockThinking:
			b.Thinking = StripUnpairedSurrogates(b.Thinking)
		case message.BlockImage:
			if !model.InputImage {
				continue
			}
		case message.BlockToolCall:
			b.ToolCallID = NormalizeToolCallID(b.ToolCallID)
		}
		blocks = append(blocks, b)
	}
	m.Content = blocks
	if m.Role == message.RoleToolResult {
		m.ToolCallID = NormalizeToolCallID(m.ToolCallID)
	}
	return m
}
