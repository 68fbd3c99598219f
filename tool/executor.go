package tool

import (
	"context"
	"sync"

	"github.com/relaycore/agentcore/message"
)

// skippedText is the fixed message synthesized for tool calls cancelled by a
// mid-phase steering interruption, verbatim per spec §4.5 step 5.
const skippedText = "Tool execution skipped due to steering interruption"

// ProgressFunc receives tool_execution_start/update/end notifications as the
// executor runs. It is called synchronously from whichever goroutine
// produced the event, so a slow subscriber slows the executor — matching
// the ordering guarantee in spec §5 ("subscribers receive events
// synchronously before the loop proceeds").
type ProgressFunc func(event ProgressEvent)

// ProgressEvent mirrors the tool_execution_* event shapes of spec §4.1.
type ProgressEvent struct {
	Kind       string // "start" | "update" | "end"
	ToolCallID string
	ToolName   string
	Args       map[string]any
	Partial    any
	Result     message.AgentMessage
	IsError    bool
}

// SteeringPoll is consulted after each tool call completes; if it returns a
// non-empty slice, the executor cancels and skips all remaining in-flight
// and not-yet-started calls.
type SteeringPoll func() []message.AgentMessage

// Executor runs the tool calls of one assistant turn concurrently.
type Executor struct {
	Registry *Registry
	Progress ProgressFunc
	Steering SteeringPoll
}

// Run executes calls (in the order they appeared in the assistant message)
// concurrently, and returns one toolResult AgentMessage per call in that
// same order regardless of completion order — the invariant tested in
// spec §8. If steering arrives mid-phase, the remaining (not-yet-completed)
// calls are synthesized as skipped, their contexts cancelled, and the
// steering messages found are returned in steering.
func (e *Executor) Run(ctx context.Context, calls []message.ContentBlock) (results []message.AgentMessage, steering []message.AgentMessage) {
	n := len(calls)
	results = make([]message.AgentMessage, n)
	done := make([]bool, n)

	callCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	var mu sync.Mutex
	var wg sync.WaitGroup
	completions := make(chan int, n)

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call message.ContentBlock) {
			defer wg.Done()
			result := e.runOne(callCtx, call)
			mu.Lock()
			results[i] = result
			done[i] = true
			mu.Unlock()
			completions <- i
		}(i, call)
	}

	go func() {
		wg.Wait()
		close(completions)
	}()

	interrupted := false
	var completedBeforeSteering []bool
	for range calls {
		_, ok := <-completions
		if !ok {
			break
		}
		if interrupted || e.Steering == nil {
			continue
		}
		if msgs := e.poll(); len(msgs) > 0 {
			steering = msgs
			interrupted = true
			mu.Lock()
			completedBeforeSteering = append([]bool(nil), done...)
			mu.Unlock()
			cancelAll()
		}
	}

	if interrupted {
		// Drain remaining completions so the waitgroup goroutine above
		// doesn't block forever on a full channel.
		for range completions {
		}
		mu.Lock()
		for i, call := range calls {
			if !completedBeforeSteering[i] {
				results[i] = message.NewToolResult(call.ToolCallID, call.ToolName, skippedText, true)
			}
		}
		mu.Unlock()
	}

	return results, steering
}

func (e *Executor) poll() []message.AgentMessage {
	if e.Steering == nil {
		return nil
	}
	return e.Steering()
}

func (e *Executor) runOne(ctx context.Context, call message.ContentBlock) message.AgentMessage {
	e.emit(ProgressEvent{Kind: "start", ToolCallID: call.ToolCallID, ToolName: call.ToolName, Args: call.Arguments})

	tool, ok := e.lookup(call.ToolName)
	if !ok {
		text := "tool not found: " + call.ToolName
		e.emitResult(call, text, true)
		return message.NewToolResult(call.ToolCallID, call.ToolName, text, true)
	}

	if e.Registry != nil {
		if err := e.Registry.Validate(call.ToolName, call.Arguments); err != nil {
			e.emitResult(call, err.Error(), true)
			return message.NewToolResult(call.ToolCallID, call.ToolName, err.Error(), true)
		}
	}

	onUpdate := func(partial any) {
		e.emit(ProgressEvent{Kind: "update", ToolCallID: call.ToolCallID, ToolName: call.ToolName, Args: call.Arguments, Partial: partial})
	}

	result, err := tool.Execute(ctx, call.ToolCallID, call.Arguments, cancelTokenFromContext(ctx), onUpdate)
	if err != nil {
		e.emitResult(call, err.Error(), true)
		return message.NewToolResult(call.ToolCallID, call.ToolName, err.Error(), true)
	}

	msg := message.AgentMessage{
		Role:       message.RoleToolResult,
		ToolCallID: call.ToolCallID,
		ToolName:   call.ToolName,
		Content:    result.Content,
		Details:    result.Details,
	}
	e.emit(ProgressEvent{Kind: "end", ToolCallID: call.ToolCallID, ToolName: call.ToolName, Result: msg, IsError: false})
	return msg
}

func (e *Executor) emitResult(call message.ContentBlock, text string, isError bool) {
	msg := message.NewToolResult(call.ToolCallID, call.ToolName, text, isError)
	e.emit(ProgressEvent{Kind: "end", ToolCallID: call.ToolCallID, ToolName: call.ToolName, Result: msg, IsError: isError})
}

func (e *Executor) emit(ev ProgressEvent) {
	if e.Progress != nil {
		e.Progress(ev)
	}
}

func (e *Executor) lookup(name string) (Tool, bool) {
	if e.Registry == nil {
		return nil, false
	}
	return e.Registry.Get(name)
}

type ctxCancelToken struct {
	ctx context.Context
}

func (c ctxCancelToken) Done() <-chan struct{} { return c.ctx.Done() }
func (c ctxCancelToken) Err() error            { return c.ctx.Err() }

func cancelTokenFromContext(ctx context.Context) CancelToken {
	return ctxCancelToken{ctx: ctx}
}
