// Package event implements a push/pull event channel: a
// single-producer/single-consumer stream of typed events with a terminal
// sentinel, backed by a Go channel for backpressure and context.Context for
// cancellation.
package event

import (
	"context"

	"github.com/relaycore/agentcore/message"
)

// Kind discriminates the payload carried by an Event.
type Kind string

const (
	// assistant-message events (produced by provider adapters)
	KindStart         Kind = "start"
	KindTextStart     Kind = "text_start"
	KindTextDelta     Kind = "text_delta"
	KindTextEnd       Kind = "text_end"
	KindThinkingStart Kind = "thinking_start"
	KindThinkingDelta Kind = "thinking_delta"
	KindThinkingEnd   Kind = "thinking_end"
	KindToolCallStart Kind = "toolcall_start"
	KindToolCallDelta Kind = "toolcall_delta"
	KindToolCallEnd   Kind = "toolcall_end"
	KindDone          Kind = "done"
	KindError         Kind = "error"

	// agent events (produced by the agent loop/facade)
	KindAgentStart         Kind = "agent_start"
	KindAgentEnd           Kind = "agent_end"
	KindTurnStart          Kind = "turn_start"
	KindTurnEnd            Kind = "turn_end"
	KindMessageStart       Kind = "message_start"
	KindMessageUpdate      Kind = "message_update"
	KindMessageEnd         Kind = "message_end"
	KindToolExecStart      Kind = "tool_execution_start"
	KindToolExecUpdate     Kind = "tool_execution_update"
	KindToolExecEnd        Kind = "tool_execution_end"
)

// ErrorReason distinguishes a clean abort from a hard failure.
type ErrorReason string

const (
	ErrorReasonAborted ErrorReason = "aborted"
	ErrorReasonError   ErrorReason = "error"
)

// Event is a single tagged item on the stream. Only the fields relevant to
// Kind are populated.
type Event struct {
	Kind Kind

	// shared across assistant-message events
	ContentIndex int
	Partial      message.AgentMessage

	// text/thinking deltas
	TextDelta string

	// text/thinking end
	Content   string
	Signature string

	// tool-call events
	ToolCallID   string
	ToolCallName string
	JSONDelta    string
	ToolCall     message.ContentBlock

	// done
	StopReason message.StopReason
	Message    message.AgentMessage

	// error. HTTPStatusCode/HTTPBody/RetryAfterSeconds carry enough of the
	// failed wire call for the retry layer (C10) to classify it without the
	// event package depending on the provider package back; 0/"" means "no
	// HTTP response at all" (network error), matching provider.HTTPError's
	// nil case.
	ErrorReason       ErrorReason
	Err               error
	ContextOverflow   bool
	HTTPStatusCode    int
	HTTPBody          string
	RetryAfterSeconds int
	Usage             message.Usage

	// agent_end
	Messages []message.AgentMessage

	// turn_end
	ToolResults []message.AgentMessage

	// message_update
	Inner *Event

	// tool_execution_*
	ToolName    string
	ToolArgs    map[string]any
	ToolPartial any
	ToolResult  message.AgentMessage
	ToolIsError bool
}

// IsTerminal reports whether this event ends an assistant-message stream.
func (e Event) IsTerminal() bool {
	return e.Kind == KindDone || e.Kind == KindError
}

// Stream is a cold, bounded channel of Events with an explicit Close.
// Producers call Emit; consumers call Next until it returns ok==false.
type Stream struct {
	ch     chan Event
	done   chan struct{}
	closed bool
}

// New creates a Stream with the given buffer capacity. A capacity of 1
// matches a strict single-producer/single-consumer handoff; larger
// capacities trade memory for reduced producer blocking.
func New(capacity int) *Stream {
	if capacity < 1 {
		capacity = 1
	}
	return &Stream{
		ch:   make(chan Event, capacity),
		done: make(chan struct{}),
	}
}

// Emit pushes an event to the consumer. It blocks (backpressure) only while
// the buffer is full, until the consumer makes room, the stream is closed,
// or ctx is cancelled. It returns
// ctx.Err() on cancellation so producers can unwind promptly.
func (s *Stream) Emit(ctx context.Context, e Event) error {
	select {
	case s.ch <- e:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals that no further events will be emitted. Safe to call once;
// additional calls are no-ops.
func (s *Stream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

// Next blocks for the next event. ok is false once the stream is closed and
// drained, or ctx is cancelled (in which case err is set on the zero Event
// via the second return being false with no event to read).
func (s *Stream) Next(ctx context.Context) (Event, bool) {
	select {
	case e, ok := <-s.ch:
		return e, ok
	case <-ctx.Done():
		return Event{}, false
	}
}

// Drain reads all remaining events until the stream closes, discarding them.
// Used by callers that abort mid-stream but must let the producer finish
// unwinding without deadlocking on a full channel.
func (s *Stream) Drain() {
	for range s.ch {
	}
}
