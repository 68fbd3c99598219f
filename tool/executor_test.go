package tool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaycore/agentcore/message"
)

type fakeTool struct {
	name    string
	delay   time.Duration
	err     error
	content []message.ContentBlock
}

func (f *fakeTool) Name() string                  { return f.name }
func (f *fakeTool) Label() string                  { return f.name }
func (f *fakeTool) Description() string            { return "" }
func (f *fakeTool) Parameters() map[string]any     { return nil }

func (f *fakeTool) Execute(ctx context.Context, callID string, args map[string]any, cancel CancelToken, onUpdate UpdateFunc) (Result, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{Content: f.content}, nil
}

func newRegistry(t *testing.T, tools ...Tool) *Registry {
	t.Helper()
	r, err := NewRegistry(tools, false)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestExecutorRunSuccessOrdersResultsByToolCallOrder(t *testing.T) {
	slow := &fakeTool{name: "slow", delay: 30 * time.Millisecond, content: []message.ContentBlock{{Type: message.BlockText, Text: "SLOW"}}}
	fast := &fakeTool{name: "fast", content: []message.ContentBlock{{Type: message.BlockText, Text: "FAST"}}}
	reg := newRegistry(t, slow, fast)
	e := &Executor{Registry: reg}

	calls := []message.ContentBlock{
		{Type: message.BlockToolCall, ToolCallID: "t1", ToolName: "slow"},
		{Type: message.BlockToolCall, ToolCallID: "t2", ToolName: "fast"},
	}
	results, steering := e.Run(context.Background(), calls)
	if steering != nil {
		t.Fatalf("steering = %v, want nil", steering)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].ToolCallID != "t1" || results[0].Content[0].Text != "SLOW" {
		t.Fatalf("results[0] = %+v, want t1/SLOW despite fast completing first", results[0])
	}
	if results[1].ToolCallID != "t2" || results[1].Content[0].Text != "FAST" {
		t.Fatalf("results[1] = %+v, want t2/FAST", results[1])
	}
}

func TestExecutorRunToolErrorBecomesIsErrorResult(t *testing.T) {
	failing := &fakeTool{name: "boom", err: errors.New("kaboom")}
	reg := newRegistry(t, failing)
	e := &Executor{Registry: reg}

	calls := []message.ContentBlock{{Type: message.BlockToolCall, ToolCallID: "t1", ToolName: "boom"}}
	results, _ := e.Run(context.Background(), calls)
	if !results[0].IsError {
		t.Fatalf("IsError = false, want true")
	}
	if results[0].Content[0].Text != "kaboom" {
		t.Fatalf("result text = %q, want %q", results[0].Content[0].Text, "kaboom")
	}
}

func TestExecutorRunUnknownToolIsError(t *testing.T) {
	reg := newRegistry(t)
	e := &Executor{Registry: reg}
	calls := []message.ContentBlock{{Type: message.BlockToolCall, ToolCallID: "t1", ToolName: "missing"}}
	results, _ := e.Run(context.Background(), calls)
	if !results[0].IsError {
		t.Fatalf("IsError = false for unknown tool, want true")
	}
}

func TestExecutorRunSteeringSkipsRemainingCalls(t *testing.T) {
	fast := &fakeTool{name: "fast", content: []message.ContentBlock{{Type: message.BlockText, Text: "DONE"}}}
	slow := &fakeTool{name: "slow", delay: 200 * time.Millisecond, content: []message.ContentBlock{{Type: message.BlockText, Text: "SLOW"}}}
	reg := newRegistry(t, fast, slow)

	var mu sync.Mutex
	polled := false
	e := &Executor{
		Registry: reg,
		Steering: func() []message.AgentMessage {
			mu.Lock()
			defer mu.Unlock()
			if !polled {
				polled = true
				return []message.AgentMessage{message.NewUserText("stop and do X")}
			}
			return nil
		},
	}

	calls := []message.ContentBlock{
		{Type: message.BlockToolCall, ToolCallID: "t1", ToolName: "fast"},
		{Type: message.BlockToolCall, ToolCallID: "t2", ToolName: "slow"},
	}
	start := time.Now()
	results, steering := e.Run(context.Background(), calls)
	elapsed := time.Since(start)

	if len(steering) != 1 || steering[0].Text() != "stop and do X" {
		t.Fatalf("steering = %+v, want one user message", steering)
	}
	if elapsed >= 200*time.Millisecond {
		t.Fatalf("Run() took %v, want the slow call to be cancelled well before its delay", elapsed)
	}
	if !results[1].IsError || results[1].Content[0].Text != skippedText {
		t.Fatalf("results[1] = %+v, want skipped error result", results[1])
	}
}

func TestExecutorRunProgressEventsEmitted(t *testing.T) {
	fast := &fakeTool{name: "fast", content: []message.ContentBlock{{Type: message.BlockText, Text: "DONE"}}}
	reg := newRegistry(t, fast)

	var mu sync.Mutex
	var kinds []string
	e := &Executor{
		Registry: reg,
		Progress: func(ev ProgressEvent) {
			mu.Lock()
			defer mu.Unlock()
			kinds = append(kinds, ev.Kind)
		},
	}
	calls := []message.ContentBlock{{Type: message.BlockToolCall, ToolCallID: "t1", ToolName: "fast"}}
	e.Run(context.Background(), calls)

	if len(kinds) != 2 || kinds[0] != "start" || kinds[1] != "end" {
		t.Fatalf("progress kinds = %v, want [start end]", kinds)
	}
}
