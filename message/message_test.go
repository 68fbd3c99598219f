package message

import "testing"

func TestUsageTotalTokens(t *testing.T) {
	u := Usage{InputTokens: 10, OutputTokens: 5, CacheReadTokens: 2, CacheWriteTokens: 1}
	if got := u.TotalTokens(); got != 18 {
		t.Fatalf("TotalTokens() = %d, want 18", got)
	}
}

func TestUsageCost(t *testing.T) {
	u := Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	p := Price{InputPer1M: 3, OutputPer1M: 15}
	if got := u.Cost(p); got != 18 {
		t.Fatalf("Cost() = %v, want 18", got)
	}
}

func TestToolCallsReturnsOnlyToolCallBlocks(t *testing.T) {
	m := AgentMessage{
		Role: RoleAssistant,
		Content: []ContentBlock{
			{Type: BlockText, Text: "hi"},
			{Type: BlockToolCall, ToolCallID: "t1", ToolName: "read"},
			{Type: BlockToolCall, ToolCallID: "t2", ToolName: "bash"},
		},
	}
	calls := m.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("ToolCalls() returned %d blocks, want 2", len(calls))
	}
	if calls[0].ToolCallID != "t1" || calls[1].ToolCallID != "t2" {
		t.Fatalf("ToolCalls() out of order: %+v", calls)
	}
}

func TestIsEmptyContent(t *testing.T) {
	cases := []struct {
		name string
		msg  AgentMessage
		want bool
	}{
		{"no blocks", AgentMessage{}, true},
		{"empty text", AgentMessage{Content: []ContentBlock{{Type: BlockText, Text: ""}}}, true},
		{"nonempty text", AgentMessage{Content: []ContentBlock{{Type: BlockText, Text: "x"}}}, false},
		{"tool call always counts", AgentMessage{Content: []ContentBlock{{Type: BlockToolCall}}}, false},
		{"empty image", AgentMessage{Content: []ContentBlock{{Type: BlockImage, ImageData: ""}}}, true},
		{"nonempty thinking", AgentMessage{Content: []ContentBlock{{Type: BlockThinking, Thinking: "hmm"}}}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.msg.IsEmptyContent(); got != c.want {
				t.Fatalf("IsEmptyContent() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestTextConcatenatesOnlyTextBlocks(t *testing.T) {
	m := AgentMessage{Content: []ContentBlock{
		{Type: BlockThinking, Thinking: "skip me"},
		{Type: BlockText, Text: "Hello"},
		{Type: BlockText, Text: " world"},
	}}
	if got := m.Text(); got != "Hello world" {
		t.Fatalf("Text() = %q, want %q", got, "Hello world")
	}
}

func TestWithArgumentsClearsPartialJSON(t *testing.T) {
	b := ContentBlock{Type: BlockToolCall, PartialJSON: `{"path":"foo"`}
	b = b.WithArguments(map[string]any{"path": "foo"})
	if b.PartialJSON != "" {
		t.Fatalf("PartialJSON not cleared: %q", b.PartialJSON)
	}
	if !b.HasArguments() {
		t.Fatalf("HasArguments() = false after WithArguments")
	}
	if b.Arguments["path"] != "foo" {
		t.Fatalf("Arguments not set: %+v", b.Arguments)
	}
}

func TestHasArgumentsFalseBeforeAssembly(t *testing.T) {
	b := ContentBlock{Type: BlockToolCall, PartialJSON: `{"path"`}
	if b.HasArguments() {
		t.Fatalf("HasArguments() = true before any WithArguments call")
	}
}

func TestNewUserTextAndNewToolResult(t *testing.T) {
	u := NewUserText("hi")
	if u.Role != RoleUser || u.Text() != "hi" {
		t.Fatalf("NewUserText produced %+v", u)
	}
	tr := NewToolResult("t1", "read", "FOO", false)
	if tr.Role != RoleToolResult || tr.ToolCallID != "t1" || tr.IsError {
		t.Fatalf("NewToolResult produced %+v", tr)
	}
}
