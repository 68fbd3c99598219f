// Package agent implements the turn-driving loop (C5) and the mutable-state
// facade (C6) described in spec §4.5–4.6, generalized from the teacher's
// internal/agent.Runner.Run single-shot turn loop into a streaming,
// steerable, multi-provider loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/agentcore/event"
	"github.com/relaycore/agentcore/message"
	"github.com/relaycore/agentcore/provider"
	"github.com/relaycore/agentcore/tool"
)

var (
	// ErrNotUserOrToolResult is returned when a turn would start with a
	// working-message tail that is neither user nor toolResult, per spec
	// §4.5 step 1.
	ErrNotUserOrToolResult = errors.New("agent: turn must start from a user or toolResult message")
)

// TransformFunc reshapes the working message list before a turn is sent,
// implementing compaction/branch-summary folding (C9). Returning the input
// unchanged is a valid no-op transform.
type TransformFunc func(ctx context.Context, messages []message.AgentMessage) ([]message.AgentMessage, error)

// APIKeyResolver resolves the credential to use for a turn, called fresh
// each turn per spec §4.5 step 2 ("resolve the API key now").
type APIKeyResolver func(ctx context.Context) (string, error)

// Config bundles everything one call to Run/RunContinue needs beyond the
// message history itself.
type Config struct {
	Model         message.ModelDescriptor
	Options       provider.Options
	StreamFn      provider.StreamFunc
	Tools         *tool.Registry
	Transform     TransformFunc
	ResolveAPIKey APIKeyResolver
	Retry         RetryPolicy
	// Steering and FollowUp drain their respective queues and return the
	// drained items already converted to user messages, so the same
	// closure doubles as a tool.SteeringPoll (which has this exact shape).
	Steering func() []message.AgentMessage
	FollowUp func() []message.AgentMessage
	Events   *event.Stream

	// Logger receives turn/retry/tool lifecycle messages. A nil
	// Logger is valid and resolved to a no-op logger by cfg.log().
	Logger *zap.Logger
}

func (cfg Config) log() *zap.Logger {
	if cfg.Logger == nil {
		return zap.NewNop()
	}
	return cfg.Logger
}

// Run implements agentLoop: append newMessages to context and drive turns
// until the loop decision says to stop. newMessages are not appended or
// emitted here — runTurn does that immediately after emitting turn_start, so
// a fresh prompt's events read turn_start, message_start(user), … rather
// than the other way around (spec §8 scenario 1).
func Run(ctx context.Context, newMessages []message.AgentMessage, working []message.AgentMessage, cfg Config) ([]message.AgentMessage, error) {
	working = append([]message.AgentMessage{}, working...)
	return runLoop(ctx, working, newMessages, cfg)
}

// emitMessageEvents wraps each already-complete message (user/toolResult/
// custom) in a message_start/message_end pair, matching spec §8 scenario 1
// ("message_start(user), message_end(user)"); only assistant messages get
// an intervening message_update stream, produced separately in streamOnce.
func emitMessageEvents(ctx context.Context, cfg Config, msgs []message.AgentMessage) {
	for _, m := range msgs {
		emit(ctx, cfg.Events, event.Event{Kind: event.KindMessageStart, Message: m})
		emit(ctx, cfg.Events, event.Event{Kind: event.KindMessageEnd, Message: m})
	}
}

// RunContinue implements agentLoopContinue: resume from the existing tail.
func RunContinue(ctx context.Context, working []message.AgentMessage, cfg Config) ([]message.AgentMessage, error) {
	return runLoop(ctx, working, nil, cfg)
}

func runLoop(ctx context.Context, working []message.AgentMessage, pending []message.AgentMessage, cfg Config) ([]message.AgentMessage, error) {
	steeringInjected := false

	for {
		var toolCallsHappened bool
		var err error
		working, toolCallsHappened, err = runTurn(ctx, working, pending, cfg)
		pending = nil
		if err != nil {
			emit(ctx, cfg.Events, event.Event{Kind: event.KindAgentEnd, Messages: working})
			return working, err
		}

		if ctx.Err() != nil {
			emit(ctx, cfg.Events, event.Event{Kind: event.KindAgentEnd, Messages: working})
			return working, ctx.Err()
		}

		// 7(a): steering pending and not yet injected takes priority.
		if !steeringInjected && cfg.Steering != nil {
			if steered := cfg.Steering(); len(steered) > 0 {
				pending = steered
				steeringInjected = true
				continue
			}
		}
		steeringInjected = false

		// 7(b): tool calls happened this turn, keep going.
		if toolCallsHappened {
			continue
		}

		// 7(c): poll follow-up queue.
		if cfg.FollowUp != nil {
			if followUp := cfg.FollowUp(); len(followUp) > 0 {
				pending = followUp
				continue
			}
		}

		// 7(d): done.
		emit(ctx, cfg.Events, event.Event{Kind: event.KindAgentEnd, Messages: working})
		return working, nil
	}
}

// runTurn implements spec §4.5's single-turn algorithm (steps 1-6),
// returning the updated message list and whether tool calls occurred.
// pending holds messages not yet appended to working (a fresh prompt, or a
// drained steering/follow-up batch) — they are appended and their
// message_start/message_end events emitted right after turn_start, so
// turn_start always precedes them (spec §8 scenario 1) rather than the
// other way around.
func runTurn(ctx context.Context, working []message.AgentMessage, pending []message.AgentMessage, cfg Config) ([]message.AgentMessage, bool, error) {
	cfg.log().Debug("turn start", zap.Int("history_len", len(working)+len(pending)))
	emit(ctx, cfg.Events, event.Event{Kind: event.KindTurnStart})

	if len(pending) > 0 {
		working = append(working, pending...)
		emitMessageEvents(ctx, cfg, pending)
	}

	llmMessages := working
	if cfg.Transform != nil {
		transformed, err := cfg.Transform(ctx, working)
		if err != nil {
			return working, false, fmt.Errorf("agent: transform context: %w", err)
		}
		llmMessages = transformed
	}

	if len(llmMessages) == 0 {
		return working, false, ErrNotUserOrToolResult
	}
	tail := llmMessages[len(llmMessages)-1]
	if tail.Role != message.RoleUser && tail.Role != message.RoleToolResult {
		return working, false, ErrNotUserOrToolResult
	}

	opts := cfg.Options
	if cfg.ResolveAPIKey != nil {
		key, err := cfg.ResolveAPIKey(ctx)
		if err != nil {
			return working, false, fmt.Errorf("agent: resolve api key: %w", err)
		}
		opts.APIKey = key
	}

	final, err := streamTurn(ctx, llmMessages, cfg, opts)
	if err != nil {
		// A clean abort with no content committed yet is discarded (spec
		// §8 scenario 6); any other terminal/aborted message with real
		// content is still appended so subscribers and the session log see
		// why the turn ended.
		if !(final.StopReason == message.StopReasonAborted && final.IsEmptyContent()) {
			working = append(working, final)
		}
		return working, false, err
	}

	working = append(working, final)

	if final.StopReason != message.StopReasonToolUse || final.IsError {
		cfg.log().Debug("turn end", zap.String("stop_reason", string(final.StopReason)), zap.Bool("is_error", final.IsError))
		emit(ctx, cfg.Events, event.Event{Kind: event.KindTurnEnd, Message: final})
		return working, false, nil
	}

	var toolResults []message.AgentMessage
	working, toolResults, err = runToolPhase(ctx, working, final, cfg)
	if err != nil {
		return working, false, err
	}

	emit(ctx, cfg.Events, event.Event{Kind: event.KindTurnEnd, Message: final, ToolResults: toolResults})
	return working, true, nil
}

// streamTurn invokes the provider stream with retry per spec §4.5 step 2-4
// and C10's retry policy, consuming events and building the final message.
func streamTurn(ctx context.Context, llmMessages []message.AgentMessage, cfg Config, opts provider.Options) (message.AgentMessage, error) {
	attempt := 0
	for {
		final, class, err := streamOnce(ctx, llmMessages, cfg, opts)
		if err == nil {
			return final, nil
		}
		if class != provider.ErrorClassTransient || attempt >= cfg.Retry.maxAttempts() {
			return final, err
		}
		delay := cfg.Retry.NextDelay(attempt)
		attempt++
		cfg.log().Warn("retrying provider stream", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return final, ctx.Err()
		}
	}
}

// streamOnce runs one provider call to completion, translating its event
// stream into message_update/message_start/message_end events. It
// accumulates every text/thinking/tool-call delta into a local partial
// assistant message itself rather than trusting each adapter to fill in
// Event.Partial, since spec §4.2 point 2 and §4.6's streamMessage observable
// must hold for any adapter regardless of whether that adapter bothers to
// assemble one (none of the ones in this tree do).
func streamOnce(ctx context.Context, llmMessages []message.AgentMessage, cfg Config, opts provider.Options) (message.AgentMessage, provider.ErrorClass, error) {
	stream := cfg.StreamFn(ctx, cfg.Model, llmMessages, opts)
	emit(ctx, cfg.Events, event.Event{Kind: event.KindMessageStart})

	var partial message.AgentMessage
	for {
		e, ok := stream.Next(ctx)
		if !ok {
			if ctx.Err() != nil {
				return partial, provider.ErrorClassTerminal, ctx.Err()
			}
			return partial, provider.ErrorClassTerminal, errors.New("agent: provider stream closed without a terminal event")
		}
		applyDelta(&partial, e)
		e.Partial = snapshotPartial(partial)
		emit(ctx, cfg.Events, event.Event{Kind: event.KindMessageUpdate, Inner: &e})

		switch e.Kind {
		case event.KindDone:
			emit(ctx, cfg.Events, event.Event{Kind: event.KindMessageEnd, Message: e.Message})
			return e.Message, provider.ErrorClassTerminal, nil
		case event.KindError:
			partial.Role = message.RoleAssistant
			partial.StopReason = message.StopReasonError
			partial.IsError = true
			partial.ErrorMessage = errorText(e.Err)
			if e.ErrorReason == event.ErrorReasonAborted {
				partial.StopReason = message.StopReasonAborted
			}
			emit(ctx, cfg.Events, event.Event{Kind: event.KindMessageEnd, Message: partial})
			class := provider.ErrorClassTerminal
			if e.ErrorReason != event.ErrorReasonAborted {
				class = classifyStreamErr(e, cfg.Model, cfg.Retry.maxRetryDelaySeconds())
			}
			return partial, class, fmt.Errorf("agent: provider stream: %s", partial.ErrorMessage)
		}
	}
}

// applyDelta folds one assistant-message event into partial in place,
// mirroring spec §4.2 point 2's per-block state machine (start → deltas →
// end) so partial is a self-consistent best-effort assistant message after
// every event, not just at toolcall_end/text_end.
func applyDelta(partial *message.AgentMessage, e event.Event) {
	switch e.Kind {
	case event.KindStart:
		partial.Role = message.RoleAssistant
	case event.KindTextStart:
		ensureContentBlock(partial, e.ContentIndex, message.BlockText)
	case event.KindTextDelta:
		b := ensureContentBlock(partial, e.ContentIndex, message.BlockText)
		b.Text += e.TextDelta
	case event.KindTextEnd:
		b := ensureContentBlock(partial, e.ContentIndex, message.BlockText)
		b.Text = e.Content
		b.TextSignature = e.Signature
	case event.KindThinkingStart:
		ensureContentBlock(partial, e.ContentIndex, message.BlockThinking)
	case event.KindThinkingDelta:
		b := ensureContentBlock(partial, e.ContentIndex, message.BlockThinking)
		b.Thinking += e.TextDelta
	case event.KindThinkingEnd:
		b := ensureContentBlock(partial, e.ContentIndex, message.BlockThinking)
		b.Thinking = e.Content
		b.ThinkingSignature = e.Signature
	case event.KindToolCallStart:
		b := ensureContentBlock(partial, e.ContentIndex, message.BlockToolCall)
		b.ToolCallID = e.ToolCallID
		b.ToolName = e.ToolCallName
	case event.KindToolCallDelta:
		b := ensureContentBlock(partial, e.ContentIndex, message.BlockToolCall)
		b.PartialJSON += e.JSONDelta
	case event.KindToolCallEnd:
		ensureContentBlock(partial, e.ContentIndex, message.BlockToolCall)
		partial.Content[e.ContentIndex] = e.ToolCall
	}
}

// ensureContentBlock grows partial.Content up to idx if needed and seeds a
// fresh slot's Type, returning a pointer into the slice so callers can
// accumulate in place.
func ensureContentBlock(partial *message.AgentMessage, idx int, t message.BlockType) *message.ContentBlock {
	for len(partial.Content) <= idx {
		partial.Content = append(partial.Content, message.ContentBlock{})
	}
	if partial.Content[idx].Type == "" {
		partial.Content[idx].Type = t
	}
	return &partial.Content[idx]
}

// snapshotPartial copies partial with its own Content backing array so the
// event.Event handed to subscribers is independent of later accumulation,
// rather than aliasing the slice streamOnce keeps mutating.
func snapshotPartial(partial message.AgentMessage) message.AgentMessage {
	partial.Content = append([]message.ContentBlock(nil), partial.Content...)
	return partial
}

// classifyStreamErr rebuilds a provider.HTTPError from the adapter's
// terminal event and delegates to provider.ClassifyError (spec §4.5 step 2-4
// /§7 "Provider transient" vs "Provider terminal"), so the 5xx/429/overflow
// split lives in exactly one place instead of being re-decided here.
func classifyStreamErr(e event.Event, model message.ModelDescriptor, maxRetryDelaySeconds int) provider.ErrorClass {
	var httpErr *provider.HTTPError
	if e.HTTPStatusCode != 0 || e.HTTPBody != "" {
		httpErr = &provider.HTTPError{StatusCode: e.HTTPStatusCode, Body: e.HTTPBody}
	}
	usage := e.Usage
	return provider.ClassifyError(httpErr, e.RetryAfterSeconds, maxRetryDelaySeconds, &usage, model)
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// runToolPhase implements spec §4.5 step 5: concurrent execution preserving
// call order, steering-interruption handling, and toolResult assembly.
func runToolPhase(ctx context.Context, working []message.AgentMessage, final message.AgentMessage, cfg Config) ([]message.AgentMessage, []message.AgentMessage, error) {
	calls := final.ToolCalls()
	if len(calls) == 0 || cfg.Tools == nil {
		return working, nil, nil
	}

	executor := &tool.Executor{
		Registry: cfg.Tools,
		Steering: cfg.steeringPoll(),
		Progress: cfg.progressFunc(ctx),
	}

	cfg.log().Debug("tool phase start", zap.Int("calls", len(calls)))
	results, steering := executor.Run(ctx, calls)
	cfg.log().Debug("tool phase end", zap.Int("results", len(results)), zap.Int("steering_injected", len(steering)))

	// steering carries whatever the executor drained from the same queue
	// mid-phase to decide on interruption; append it alongside the tool
	// results so the next loop iteration's own poll finds the queue already
	// empty instead of re-injecting the same messages.
	working = append(working, results...)
	emitMessageEvents(ctx, cfg, results)
	working = append(working, steering...)
	emitMessageEvents(ctx, cfg, steering)
	return working, results, nil
}

func (cfg Config) steeringPoll() tool.SteeringPoll {
	if cfg.Steering == nil {
		return nil
	}
	return cfg.Steering
}

// progressFunc bridges the tool executor's ProgressEvent (start/update/end
// per call) onto the agent event stream's tool_execution_* kinds (spec
// §4.1), so subscribers see per-call progress rather than one aggregate
// event for the whole phase.
func (cfg Config) progressFunc(ctx context.Context) tool.ProgressFunc {
	events := cfg.Events
	if events == nil {
		return nil
	}
	return func(p tool.ProgressEvent) {
		switch p.Kind {
		case "start":
			emit(ctx, events, event.Event{
				Kind:       event.KindToolExecStart,
				ToolCallID: p.ToolCallID,
				ToolName:   p.ToolName,
				ToolArgs:   p.Args,
			})
		case "update":
			emit(ctx, events, event.Event{
				Kind:        event.KindToolExecUpdate,
				ToolCallID:  p.ToolCallID,
				ToolName:    p.ToolName,
				ToolArgs:    p.Args,
				ToolPartial: p.Partial,
			})
		case "end":
			emit(ctx, events, event.Event{
				Kind:        event.KindToolExecEnd,
				ToolCallID:  p.ToolCallID,
				ToolName:    p.ToolName,
				ToolResult:  p.Result,
				ToolIsError: p.IsError,
			})
		}
	}
}

func emit(ctx context.Context, s *event.Stream, e event.Event) {
	if s == nil {
		return
	}
	_ = s.Emit(ctx, e)
}
