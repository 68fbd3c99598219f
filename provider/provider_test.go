package provider

import (
	"testing"

	"github.com/relaycore/agentcore/message"
)

func TestNormalizeToolCallIDSanitizesAndTruncates(t *testing.T) {
	got := NormalizeToolCallID("call id!@#")
	if got != "call_id___" {
		t.Fatalf("NormalizeToolCallID() = %q", got)
	}
	long := ""
	for i := 0; i < 100; i++ {
		long += "a"
	}
	got = NormalizeToolCallID(long)
	if len(got) != 64 {
		t.Fatalf("NormalizeToolCallID() length = %d, want 64", len(got))
	}
}

func TestStripUnpairedSurrogatesLeavesValidUTF8Untouched(t *testing.T) {
	s := "héllo 世界"
	if got := StripUnpairedSurrogates(s); got != s {
		t.Fatalf("StripUnpairedSurrogates() = %q, want unchanged %q", got, s)
	}
}

func TestPrepareHistoryDropsEmptyAssistantMessages(t *testing.T) {
	model := message.ModelDescriptor{InputImage: false}
	history := []message.AgentMessage{
		message.NewUserText("hi"),
		{Role: message.RoleAssistant, Content: nil},
		{Role: message.RoleAssistant, Content: []message.ContentBlock{{Type: message.BlockText, Text: "hello"}}},
	}
	out := PrepareHistory(history, model)
	if len(out) != 2 {
		t.Fatalf("PrepareHistory() returned %d messages, want 2", len(out))
	}
	if out[1].Role != message.RoleAssistant || out[1].Text() != "hello" {
		t.Fatalf("PrepareHistory() dropped the non-empty assistant message: %+v", out[1])
	}
}

func TestPrepareHistoryDropsImageWhenModelHasNoImageInput(t *testing.T) {
	model := message.ModelDescriptor{InputImage: false}
	history := []message.AgentMessage{
		{Role: message.RoleUser, Content: []message.ContentBlock{
			{Type: message.BlockText, Text: "see this"},
			{Type: message.BlockImage, ImageData: "base64data", ImageMimeType: "image/png"},
		}},
	}
	out := PrepareHistory(history, model)
	if len(out[0].Content) != 1 {
		t.Fatalf("PrepareHistory() kept %d blocks, want 1 (image dropped)", len(out[0].Content))
	}
	if out[0].Content[0].Type != message.BlockText {
		t.Fatalf("PrepareHistory() dropped the wrong block: %+v", out[0].Content)
	}
}

func TestPrepareHistoryKeepsImageWhenModelSupportsIt(t *testing.T) {
	model := message.ModelDescriptor{InputImage: true}
	history := []message.AgentMessage{
		{Role: message.RoleUser, Content: []message.ContentBlock{
			{Type: message.BlockImage, ImageData: "base64data"},
		}},
	}
	out := PrepareHistory(history, model)
	if len(out[0].Content) != 1 {
		t.Fatalf("PrepareHistory() dropped the image despite model image support")
	}
}

func TestPrepareHistoryNormalizesToolCallAndResultIDs(t *testing.T) {
	model := message.ModelDescriptor{}
	history := []message.AgentMessage{
		{Role: message.RoleAssistant, Content: []message.ContentBlock{
			{Type: message.BlockToolCall, ToolCallID: "call!1"},
		}},
		{Role: message.RoleToolResult, ToolCallID: "call!1"},
	}
	out := PrepareHistory(history, model)
	if out[0].Content[0].ToolCallID != "call_1" {
		t.Fatalf("tool-call id not normalized: %q", out[0].Content[0].ToolCallID)
	}
	if out[1].ToolCallID != "call_1" {
		t.Fatalf("tool-result id not normalized: %q", out[1].ToolCallID)
	}
}

func TestDetectOverflowByErrorPattern(t *testing.T) {
	model := message.ModelDescriptor{ContextWindow: 100000}
	cases := []string{
		"Error: prompt is too long for this model",
		"This request exceeds the context window of the model",
		"input token count 5000 exceeds the maximum",
		"please reduce the length of the messages",
		"maximum context length is 8192 tokens",
		"context_length_exceeded",
	}
	for _, body := range cases {
		httpErr := &HTTPError{StatusCode: 400, Body: body}
		if !DetectOverflow(httpErr, nil, model) {
			t.Errorf("DetectOverflow() = false for body %q, want true", body)
		}
	}
}

func TestDetectOverflowByBodylessStatus(t *testing.T) {
	model := message.ModelDescriptor{}
	for _, status := range []int{400, 413} {
		if !DetectOverflow(&HTTPError{StatusCode: status, Body: ""}, nil, model) {
			t.Errorf("DetectOverflow() = false for bodyless %d, want true", status)
		}
	}
	if DetectOverflow(&HTTPError{StatusCode: 500, Body: ""}, nil, model) {
		t.Errorf("DetectOverflow() = true for bodyless 500, want false")
	}
}

func TestDetectOverflowBySilentUsage(t *testing.T) {
	model := message.ModelDescriptor{ContextWindow: 1000}
	usage := &message.Usage{InputTokens: 1001}
	if !DetectOverflow(nil, usage, model) {
		t.Fatalf("DetectOverflow() = false for usage over context window")
	}
	usage.InputTokens = 999
	if DetectOverflow(nil, usage, model) {
		t.Fatalf("DetectOverflow() = true for usage under context window")
	}
}

func TestClassifyErrorOverflowTakesPrecedence(t *testing.T) {
	model := message.ModelDescriptor{}
	httpErr := &HTTPError{StatusCode: 400, Body: "prompt is too long"}
	if got := ClassifyError(httpErr, 0, 60, nil, model); got != ErrorClassOverflow {
		t.Fatalf("ClassifyError() = %v, want ErrorClassOverflow", got)
	}
}

func TestClassifyErrorNetworkIsTransient(t *testing.T) {
	model := message.ModelDescriptor{}
	if got := ClassifyError(nil, 0, 60, nil, model); got != ErrorClassTransient {
		t.Fatalf("ClassifyError(nil) = %v, want ErrorClassTransient", got)
	}
}

func TestClassifyError5xxIsTransient(t *testing.T) {
	model := message.ModelDescriptor{}
	httpErr := &HTTPError{StatusCode: 503}
	if got := ClassifyError(httpErr, 0, 60, nil, model); got != ErrorClassTransient {
		t.Fatalf("ClassifyError(503) = %v, want ErrorClassTransient", got)
	}
}

func TestClassifyError429WithinCapIsTransient(t *testing.T) {
	model := message.ModelDescriptor{}
	httpErr := &HTTPError{StatusCode: 429}
	if got := ClassifyError(httpErr, 30, 60, nil, model); got != ErrorClassTransient {
		t.Fatalf("ClassifyError(429, 30<=60) = %v, want ErrorClassTransient", got)
	}
}

func TestClassifyError429BeyondCapIsTerminal(t *testing.T) {
	model := message.ModelDescriptor{}
	httpErr := &HTTPError{StatusCode: 429}
	if got := ClassifyError(httpErr, 120, 60, nil, model); got != ErrorClassTerminal {
		t.Fatalf("ClassifyError(429, 120>60) = %v, want ErrorClassTerminal", got)
	}
}

func TestClassifyError400IsTerminal(t *testing.T) {
	model := message.ModelDescriptor{}
	httpErr := &HTTPError{StatusCode: 400, Body: "invalid request"}
	if got := ClassifyError(httpErr, 0, 60, nil, model); got != ErrorClassTerminal {
		t.Fatalf("ClassifyError(400) = %v, want ErrorClassTerminal", got)
	}
}
