package agent

import (
	"context"
	"testing"
	"time"

	"github.com/relaycore/agentcore/event"
	"github.com/relaycore/agentcore/message"
	"github.com/relaycore/agentcore/provider"
	"github.com/relaycore/agentcore/tool"
)

// scriptedStream builds a StreamFunc that replays a fixed sequence of
// events on every call it is asked to serve, in order, one call per script
// entry (so a test can drive turn 1, then turn 2, deterministically).
func scriptedStream(t *testing.T, scripts ...[]event.Event) provider.StreamFunc {
	t.Helper()
	call := 0
	return func(ctx context.Context, model message.ModelDescriptor, history []message.AgentMessage, opts provider.Options) *event.Stream {
		if call >= len(scripts) {
			t.Fatalf("streamFn invoked more times (%d) than scripted (%d)", call+1, len(scripts))
		}
		script := scripts[call]
		call++
		s := event.New(8)
		go func() {
			for _, e := range script {
				_ = s.Emit(ctx, e)
			}
			s.Close()
		}()
		return s
	}
}

func textDoneEvent(text string, reason message.StopReason) []event.Event {
	return []event.Event{
		{Kind: event.KindTextDelta, TextDelta: text},
		{Kind: event.KindDone, StopReason: reason, Message: message.AgentMessage{
			Role:       message.RoleAssistant,
			Content:    []message.ContentBlock{{Type: message.BlockText, Text: text}},
			StopReason: reason,
		}},
	}
}

func TestRunPlainTextTurn(t *testing.T) {
	events := event.New(64)
	cfg := Config{
		StreamFn: scriptedStream(t, textDoneEvent("Hello world", message.StopReasonStop)),
		Events:   events,
	}
	go func() {
		_, err := Run(context.Background(), []message.AgentMessage{message.NewUserText("hi")}, nil, cfg)
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	}()

	var kinds []event.Kind
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		e, ok := events.Next(ctx)
		if !ok {
			t.Fatalf("event stream closed before agent_end")
		}
		kinds = append(kinds, e.Kind)
		if e.Kind == event.KindAgentEnd {
			if len(e.Messages) != 2 {
				t.Fatalf("agent_end Messages = %d, want 2 (user + assistant)", len(e.Messages))
			}
			if e.Messages[1].Text() != "Hello world" {
				t.Fatalf("final assistant text = %q, want %q", e.Messages[1].Text(), "Hello world")
			}
			break
		}
	}

	want := []event.Kind{
		event.KindTurnStart,
		event.KindMessageStart, event.KindMessageEnd, // user message
		event.KindMessageStart,                          // assistant stream start
		event.KindMessageUpdate, event.KindMessageUpdate, // text_delta, done
		event.KindMessageEnd,
		event.KindTurnEnd,
		event.KindAgentEnd,
	}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s (full: %v)", i, kinds[i], want[i], kinds)
		}
	}
}

type echoTool struct{}

func (echoTool) Name() string              { return "read" }
func (echoTool) Label() string             { return "Read" }
func (echoTool) Description() string       { return "" }
func (echoTool) Parameters() map[string]any { return nil }
func (echoTool) Execute(ctx context.Context, callID string, args map[string]any, cancel tool.CancelToken, onUpdate tool.UpdateFunc) (tool.Result, error) {
	return tool.Result{Content: []message.ContentBlock{{Type: message.BlockText, Text: "FOO"}}}, nil
}

func TestRunSingleToolCallSuccess(t *testing.T) {
	registry, err := tool.NewRegistry([]tool.Tool{echoTool{}}, false)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	toolCallTurn := []event.Event{
		{Kind: event.KindToolCallStart, ToolCallID: "t1", ToolCallName: "read"},
		{Kind: event.KindToolCallDelta, JSONDelta: `{"path"`},
		{Kind: event.KindToolCallDelta, JSONDelta: `:"foo"}`},
		{Kind: event.KindDone, StopReason: message.StopReasonToolUse, Message: message.AgentMessage{
			Role:       message.RoleAssistant,
			StopReason: message.StopReasonToolUse,
			Content: []message.ContentBlock{
				{Type: message.BlockToolCall, ToolCallID: "t1", ToolName: "read", Arguments: map[string]any{"path": "foo"}},
			},
		}},
	}
	finalTurn := textDoneEvent("", message.StopReasonStop)

	events := event.New(64)
	cfg := Config{
		StreamFn: scriptedStream(t, toolCallTurn, finalTurn),
		Tools:    registry,
		Events:   events,
	}

	resultCh := make(chan []message.AgentMessage, 1)
	go func() {
		out, err := Run(context.Background(), []message.AgentMessage{message.NewUserText("read foo")}, nil, cfg)
		if err != nil {
			t.Errorf("Run: %v", err)
		}
		resultCh <- out
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		e, ok := events.Next(ctx)
		if !ok {
			t.Fatalf("event stream closed before agent_end")
		}
		if e.Kind == event.KindAgentEnd {
			break
		}
	}

	select {
	case out := <-resultCh:
		// user, assistant(tool-call), toolResult, assistant(empty/stop) —
		// the trailing empty assistant message is still committed since
		// StopReason=stop is set explicitly by Done even with no content;
		// only an *aborted* partial is dropped when empty.
		if len(out) < 3 {
			t.Fatalf("final messages = %d, want at least 3", len(out))
		}
		asst := out[1]
		if len(asst.ToolCalls()) != 1 || asst.ToolCalls()[0].Arguments["path"] != "foo" {
			t.Fatalf("assistant tool-call block = %+v", asst.ToolCalls())
		}
		tr := out[2]
		if tr.Role != message.RoleToolResult || tr.ToolCallID != "t1" || tr.IsError || tr.Text() != "FOO" {
			t.Fatalf("tool result = %+v, want non-error FOO result for t1", tr)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after agent_end")
	}
}

func TestRunFailsWhenTurnWouldStartFromAssistant(t *testing.T) {
	cfg := Config{
		StreamFn: scriptedStream(t),
	}
	_, err := Run(context.Background(), []message.AgentMessage{
		{Role: message.RoleAssistant, Content: []message.ContentBlock{{Type: message.BlockText, Text: "hi"}}},
	}, nil, cfg)
	if err == nil {
		t.Fatalf("Run() with assistant-tail history = nil error, want ErrNotUserOrToolResult")
	}
}

func TestRunFollowUpQueueContinuesAfterCleanFinish(t *testing.T) {
	polled := false
	followUp := func() []message.AgentMessage {
		if polled {
			return nil
		}
		polled = true
		return []message.AgentMessage{message.NewUserText("one more thing")}
	}

	cfg := Config{
		StreamFn: scriptedStream(t, textDoneEvent("first", message.StopReasonStop), textDoneEvent("second", message.StopReasonStop)),
		FollowUp: followUp,
	}
	out, err := Run(context.Background(), []message.AgentMessage{message.NewUserText("hi")}, nil, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// user, assistant(first), follow-up user, assistant(second)
	if len(out) != 4 {
		t.Fatalf("final messages = %d, want 4: %+v", len(out), out)
	}
	if out[2].Text() != "one more thing" {
		t.Fatalf("follow-up message not injected: %+v", out[2])
	}
	if out[3].Text() != "second" {
		t.Fatalf("second turn not driven by follow-up: %+v", out[3])
	}
}

func TestRunAbortYieldsExactlyOneAgentEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// A realistic provider adapter surfaces cancellation as error{aborted}
	// rather than silently closing the stream.
	cfg := Config{
		StreamFn: func(ctx context.Context, model message.ModelDescriptor, history []message.AgentMessage, opts provider.Options) *event.Stream {
			s := event.New(1)
			go func() {
				<-ctx.Done()
				_ = s.Emit(context.Background(), event.Event{Kind: event.KindError, ErrorReason: event.ErrorReasonAborted, Err: ctx.Err()})
				s.Close()
			}()
			return s
		},
	}

	events := event.New(64)
	cfg.Events = events
	done := make(chan struct{})
	go func() {
		Run(ctx, []message.AgentMessage{message.NewUserText("hi")}, nil, cfg)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	agentEndCount := 0
	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	for {
		e, ok := events.Next(readCtx)
		if !ok {
			break
		}
		if e.Kind == event.KindAgentEnd {
			agentEndCount++
		}
	}
	<-done
	if agentEndCount != 1 {
		t.Fatalf("agent_end emitted %d times, want exactly 1", agentEndCount)
	}
}
