// Package provider defines the adapter contract of spec §4.2: one
// implementation per wire protocol, each translating a normalized request to
// bytes on the wire and re-emitting a streamed response as normalized
// events plus a terminal assistant message.
package provider

import (
	"context"

	"github.com/relaycore/agentcore/event"
	"github.com/relaycore/agentcore/message"
)

// ReasoningLevel mirrors spec §4.2's enumerated effort levels.
type ReasoningLevel string

const (
	ReasoningOff    ReasoningLevel = "off"
	ReasoningMin    ReasoningLevel = "minimal"
	ReasoningLow    ReasoningLevel = "low"
	ReasoningMedium ReasoningLevel = "medium"
	ReasoningHigh   ReasoningLevel = "high"
	ReasoningXHigh  ReasoningLevel = "xhigh"
)

// CacheRetention selects a provider's prompt-cache TTL tier.
type CacheRetention string

const (
	CacheRetentionNone  CacheRetention = "none"
	CacheRetentionShort CacheRetention = "short"
	CacheRetentionLong  CacheRetention = "long"
)

// Options carries the per-call parameters named in spec §4.2.
type Options struct {
	APIKey          string
	SystemPrompt    string
	Temperature     *float64
	MaxTokens       int
	Reasoning       ReasoningLevel
	SessionID       string
	ThinkingBudgets map[string]int
	CacheRetention  CacheRetention
	Headers         map[string]string
}

// Adapter is the contract every provider implementation satisfies: stream a
// turn and return a live event.Stream the caller pulls from until a
// terminal event appears.
type Adapter interface {
	// Stream begins a request for one assistant turn. It returns
	// immediately with a Stream that the caller reads from; the HTTP
	// round trip and SSE parsing happen on a background goroutine owned
	// by the adapter.
	Stream(ctx context.Context, model message.ModelDescriptor, history []message.AgentMessage, opts Options) *event.Stream
}

// StreamFunc is the function-typed form of Adapter.Stream, matching spec
// §4.5's "streamFn" parameter threaded through the agent loop so callers
// can inject adapters, fakes, or provider-selection logic without the loop
// depending on the Adapter interface directly.
type StreamFunc func(ctx context.Context, model message.ModelDescriptor, history []message.AgentMessage, opts Options) *event.Stream

// AsStreamFunc adapts an Adapter to a StreamFunc.
func AsStreamFunc(a Adapter) StreamFunc {
	return a.Stream
}
