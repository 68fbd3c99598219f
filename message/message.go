// Package message defines the normalized conversation model shared by every
// provider adapter and by the agent loop. Nothing outside this package knows
// about a specific wire protocol.
package message

import "time"

// Role discriminates the four message shapes the core understands.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "toolResult"
	RoleCustom     Role = "custom"
)

// StopReason reports why an assistant turn ended.
type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonToolUse StopReason = "toolUse"
	StopReasonAborted StopReason = "aborted"
	StopReasonError   StopReason = "error"
)

// BlockType discriminates content block payloads.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockThinking BlockType = "thinking"
	BlockToolCall BlockType = "tool-call"
	BlockImage    BlockType = "image"
)

// ContentBlock is a single unit of assistant/user content. Only the fields
// relevant to Type are populated; the rest are zero values.
type ContentBlock struct {
	Type BlockType

	// text
	Text          string
	TextSignature string

	// thinking
	Thinking          string
	ThinkingSignature string

	// tool-call
	ToolCallID   string
	ToolName     string
	Arguments    map[string]any
	PartialJSON  string // transient, streaming-only
	partialKnown bool

	// image
	ImageData     string
	ImageMimeType string
}

// HasArguments reports whether a tool-call block carries a parsed (possibly
// best-effort) arguments object, as opposed to only a raw partial buffer.
func (b ContentBlock) HasArguments() bool {
	return b.Arguments != nil || b.partialKnown
}

// Usage is a token-usage record. Totals and cost are derived, never stored
// independently of their inputs, so callers cannot observe an inconsistent
// pair (see TotalTokens and Cost).
type Usage struct {
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
	CacheWriteTokens int
}

// TotalTokens sums all four counters.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Price is a per-model, per-million-token price table entry.
type Price struct {
	InputPer1M      float64
	OutputPer1M     float64
	CacheReadPer1M  float64
	CacheWritePer1M float64
}

// Cost derives a dollar cost for the given usage under a price table.
func (u Usage) Cost(p Price) float64 {
	return float64(u.InputTokens)/1_000_000*p.InputPer1M +
		float64(u.OutputTokens)/1_000_000*p.OutputPer1M +
		float64(u.CacheReadTokens)/1_000_000*p.CacheReadPer1M +
		float64(u.CacheWriteTokens)/1_000_000*p.CacheWritePer1M
}

// ModelDescriptor identifies a model and its capabilities.
type ModelDescriptor struct {
	API           string // wire protocol family, e.g. "anthropic-messages"
	Provider      string // e.g. "anthropic", "openai", "groq"
	ID            string // provider model id
	BaseURL       string
	MaxTokens     int
	ContextWindow int
	InputText     bool
	InputImage    bool
	Reasoning     bool
	Headers       map[string]string
}

// AgentMessage is a tagged union over conversation roles. Exactly one of the
// role-specific field groups is meaningful, selected by Role.
type AgentMessage struct {
	Role      Role
	Timestamp time.Time

	// user / assistant content
	Content []ContentBlock

	// assistant-only
	Usage        Usage
	StopReason   StopReason
	ErrorMessage string
	Model        ModelDescriptor

	// toolResult-only
	ToolCallID string
	ToolName   string
	IsError    bool
	Details    any

	// custom-only
	CustomVariant string
	CustomPayload any
}

// NewUserText builds a single-text-block user message.
func NewUserText(text string) AgentMessage {
	return AgentMessage{
		Role:      RoleUser,
		Content:   []ContentBlock{{Type: BlockText, Text: text}},
		Timestamp: time.Now(),
	}
}

// NewToolResult builds a toolResult message carrying text content.
func NewToolResult(toolCallID, toolName, text string, isError bool) AgentMessage {
	return AgentMessage{
		Role:       RoleToolResult,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		IsError:    isError,
		Content:    []ContentBlock{{Type: BlockText, Text: text}},
		Timestamp:  time.Now(),
	}
}

// ToolCalls returns the ordered tool-call blocks of an assistant message.
func (m AgentMessage) ToolCalls() []ContentBlock {
	var calls []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolCall {
			calls = append(calls, b)
		}
	}
	return calls
}

// IsEmptyContent reports whether a message has no non-empty content blocks,
// used by the loop to decide whether an aborted partial should be committed.
func (m AgentMessage) IsEmptyContent() bool {
	for _, b := range m.Content {
		switch b.Type {
		case BlockText:
			if b.Text != "" {
				return false
			}
		case BlockThinking:
			if b.Thinking != "" {
				return false
			}
		case BlockToolCall:
			return false
		case BlockImage:
			if b.ImageData != "" {
				return false
			}
		}
	}
	return true
}

// Text concatenates all text blocks of a message, ignoring thinking/tool/image
// blocks. Used by transcript serialization in the transform package and by
// adapters building a text-only wire payload; callers that must also honor
// image content (user messages, per the InputImage capability) pair this
// with Images.
func (m AgentMessage) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// Images returns the ordered image blocks of a message.
func (m AgentMessage) Images() []ContentBlock {
	var imgs []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockImage {
			imgs = append(imgs, b)
		}
	}
	return imgs
}

// WithArguments returns a copy of the block with Arguments set and the
// streaming-only PartialJSON cleared, marking arguments as authoritative.
func (b ContentBlock) WithArguments(args map[string]any) ContentBlock {
	b.Arguments = args
	b.partialKnown = true
	b.PartialJSON = ""
	return b
}
