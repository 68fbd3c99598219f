package agent

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/relaycore/agentcore/event"
	"github.com/relaycore/agentcore/message"
	"github.com/relaycore/agentcore/tool"
)

// ErrStreaming is returned by Prompt when called while a loop is already
// running, per spec §3 invariant 6 ("while isStreaming is true, prompt() is
// forbidden; callers use steer/followUp to inject work").
var ErrStreaming = errors.New("agent: prompt forbidden while streaming")

// Subscriber receives every event.Event emitted by a running loop, in
// emission order. Delivery runs on a goroutine that drains the loop's
// 8-event buffered stream, so the loop can run up to that many events ahead
// of its subscribers; delivery is not synchronous with the loop.
type Subscriber func(event.Event)

// Agent is the mutable-state facade of spec §4.6: it holds conversation
// state and the steering/follow-up queues, and exposes prompt/continue/
// abort/subscribe. It has no teacher analogue (internal/agent.Runner is a
// one-shot, non-reentrant call with no steering or subscriber concept);
// this is new functionality layered in the teacher's plain exported-struct-
// plus-methods idiom rather than an event-emitter framework.
type Agent struct {
	SystemPrompt  string
	Model         message.ModelDescriptor
	ThinkingLevel string
	Tools         *tool.Registry

	Transform     TransformFunc
	ResolveAPIKey APIKeyResolver
	Retry         RetryPolicy
	Logger        *zap.Logger // nil is valid, injected per spec §1.2

	mu               sync.Mutex
	messages         []message.AgentMessage
	isStreaming      bool
	streamMessage    message.AgentMessage
	pendingToolCalls []string
	lastErr          error

	steering  *messageQueue
	followUp  *messageQueue
	subs      []Subscriber
	cancel    context.CancelFunc
	idleWG    sync.WaitGroup
}

// New builds an idle Agent. steeringPolicy/followUpPolicy select each
// queue's dequeue behavior. logger may be nil; it is injected
// directly here (rather than via a With-style setter) since New is this
// type's one true constructor, per spec §1.2.
func New(steeringPolicy, followUpPolicy DequeuePolicy, logger *zap.Logger) *Agent {
	return &Agent{
		steering: newMessageQueue(steeringPolicy),
		followUp: newMessageQueue(followUpPolicy),
		Logger:   logger,
	}
}

// Messages returns a snapshot of the committed conversation.
func (a *Agent) Messages() []message.AgentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]message.AgentMessage(nil), a.messages...)
}

// IsStreaming reports whether a loop is currently running.
func (a *Agent) IsStreaming() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isStreaming
}

// StreamMessage returns the progressively assembled assistant message
// visible while a turn is in flight.
func (a *Agent) StreamMessage() message.AgentMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streamMessage
}

// Err returns the last error recorded by a finished loop, if any.
func (a *Agent) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Subscribe registers fn to receive every event and returns an unsubscribe
// callable. Subscribers do not own the Agent; they are plain entries in a slice the Agent alone mutates.
func (a *Agent) Subscribe(fn Subscriber) func() {
	a.mu.Lock()
	a.subs = append(a.subs, fn)
	idx := len(a.subs) - 1
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if idx < len(a.subs) {
			a.subs[idx] = nil
		}
	}
}

func (a *Agent) broadcast(e event.Event) {
	a.mu.Lock()
	subs := append([]Subscriber(nil), a.subs...)
	a.mu.Unlock()
	for _, s := range subs {
		if s != nil {
			s(e)
		}
	}
}

// Steer pushes a user message onto the steering queue, consumed at the
// next tool-phase boundary.
func (a *Agent) Steer(text string) {
	a.steering.Push(text)
}

// FollowUp pushes a user message onto the follow-up queue, consumed when
// the loop would otherwise terminate cleanly.
func (a *Agent) FollowUp(text string) {
	a.followUp.Push(text)
}

// Abort cancels the current loop's context, if one is running. Safe to
// call when idle (a no-op).
func (a *Agent) Abort() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// WaitForIdle blocks until the current loop (if any) terminates.
func (a *Agent) WaitForIdle() {
	a.idleWG.Wait()
}

// Reset clears messages, queues, and transient flags but not the model or
// tools configuration, per spec §4.6.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = nil
	a.streamMessage = message.AgentMessage{}
	a.pendingToolCalls = nil
	a.lastErr = nil
	a.steering.Clear()
	a.followUp.Clear()
}

func (a *Agent) drainSteering() []message.AgentMessage {
	return toUserMessages(a.steering.Poll())
}

func (a *Agent) drainFollowUp() []message.AgentMessage {
	return toUserMessages(a.followUp.Poll())
}

func toUserMessages(texts []string) []message.AgentMessage {
	if len(texts) == 0 {
		return nil
	}
	out := make([]message.AgentMessage, len(texts))
	for i, t := range texts {
		out[i] = message.NewUserText(t)
	}
	return out
}

// Prompt appends a user message and starts the loop, forbidden while
// already streaming.
func (a *Agent) Prompt(ctx context.Context, text string, cfg Config) ([]message.AgentMessage, error) {
	return a.run(ctx, []message.AgentMessage{message.NewUserText(text)}, cfg)
}

// Continue resumes from the existing tail, dequeuing a pending steering or
// follow-up message first if the tail is already an assistant message
// (there would otherwise be nothing to send the provider).
func (a *Agent) Continue(ctx context.Context, cfg Config) ([]message.AgentMessage, error) {
	var seed []message.AgentMessage
	a.mu.Lock()
	needsSeed := len(a.messages) == 0 || a.messages[len(a.messages)-1].Role == message.RoleAssistant
	a.mu.Unlock()
	if needsSeed {
		if pending := a.drainSteering(); len(pending) > 0 {
			seed = pending
		} else if pending := a.drainFollowUp(); len(pending) > 0 {
			seed = pending
		}
	}
	return a.run(ctx, seed, cfg)
}

// withDefaults fills cfg fields the caller left zero-valued from the
// facade's own held configuration.
func (a *Agent) withDefaults(cfg Config) Config {
	if cfg.Model.ID == "" {
		cfg.Model = a.Model
	}
	if cfg.Tools == nil {
		cfg.Tools = a.Tools
	}
	if cfg.Transform == nil {
		cfg.Transform = a.Transform
	}
	if cfg.ResolveAPIKey == nil {
		cfg.ResolveAPIKey = a.ResolveAPIKey
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = a.Retry
	}
	if cfg.Options.SystemPrompt == "" {
		cfg.Options.SystemPrompt = a.SystemPrompt
	}
	if cfg.Logger == nil {
		cfg.Logger = a.Logger
	}
	return cfg
}

func (a *Agent) run(ctx context.Context, newMessages []message.AgentMessage, cfg Config) ([]message.AgentMessage, error) {
	a.mu.Lock()
	if a.isStreaming {
		a.mu.Unlock()
		return nil, ErrStreaming
	}
	cfg = a.withDefaults(cfg)
	runCtx, cancel := context.WithCancel(ctx)
	a.isStreaming = true
	a.cancel = cancel
	working := append([]message.AgentMessage(nil), a.messages...)
	a.mu.Unlock()

	a.idleWG.Add(1)
	defer func() {
		a.mu.Lock()
		a.isStreaming = false
		a.cancel = nil
		a.mu.Unlock()
		a.idleWG.Done()
	}()

	events := event.New(8)
	cfg.Events = events
	cfg.Steering = a.drainSteering
	cfg.FollowUp = a.drainFollowUp

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			e, ok := events.Next(context.Background())
			if !ok {
				return
			}
			a.applyEvent(e)
			a.broadcast(e)
			if e.Kind == event.KindAgentEnd {
				return
			}
		}
	}()

	result, err := Run(runCtx, newMessages, working, cfg)
	events.Close()
	<-done

	a.mu.Lock()
	a.messages = result
	a.lastErr = err
	a.mu.Unlock()

	return result, err
}

func (a *Agent) applyEvent(e event.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch e.Kind {
	case event.KindMessageUpdate:
		if e.Inner != nil {
			a.streamMessage = e.Inner.Partial
		}
	case event.KindMessageEnd:
		a.streamMessage = message.AgentMessage{}
	case event.KindToolExecStart:
		a.pendingToolCalls = append(a.pendingToolCalls, e.ToolCallID)
	case event.KindToolExecEnd:
		a.pendingToolCalls = removeID(a.pendingToolCalls, e.ToolCallID)
	case event.KindAgentEnd:
		a.pendingToolCalls = nil
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
