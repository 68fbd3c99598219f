// Package openairesponses implements the OpenAI Responses API streaming wire
// protocol (POST /v1/responses, stream:true), adapted from the teacher's
// internal/llm/openai (same HTTP/SSE plumbing, different wire shape) and
// generalized per spec §6's typed-event description of this protocol.
package openairesponses

// request matches the POST /v1/responses request body.
type request struct {
	Model       string         `json:"model"`
	Input       []wireItem     `json:"input"`
	Tools       []wireTool     `json:"tools,omitempty"`
	Stream      bool           `json:"stream"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"max_output_tokens,omitempty"`
	Reasoning   *wireReasoning `json:"reasoning,omitempty"`
	Instructions string        `json:"instructions,omitempty"`
}

type wireReasoning struct {
	Effort string `json:"effort,omitempty"`
}

// wireItem is one entry of the "input" array: a message, a function_call, a
// function_call_output, or a reasoning item, discriminated by Type.
type wireItem struct {
	Type      string                 `json:"type"`
	Role      string                 `json:"role,omitempty"`
	Content   []wireContent          `json:"content,omitempty"`
	ID        string                 `json:"id,omitempty"`
	CallID    string                 `json:"call_id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Arguments string                 `json:"arguments,omitempty"`
	Output    string                 `json:"output,omitempty"`
	Summary   []wireReasoningSummary `json:"summary,omitempty"`
}

// wireReasoningSummary is one entry of a "reasoning" item's summary array,
// the Responses API's replayable representation of a thinking block.
type wireReasoningSummary struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type wireTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// wireEvent is the superset decode target for every "response.*" SSE event
// this adapter handles; unused fields for a given event type are zero.
type wireEvent struct {
	Type         string       `json:"type"`
	OutputIndex  int          `json:"output_index"`
	ContentIndex int          `json:"content_index"`
	ItemID       string       `json:"item_id"`
	Delta        string       `json:"delta"`
	Item         *wireOutItem `json:"item,omitempty"`
	Response     *wireResponse `json:"response,omitempty"`
}

type wireOutItem struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireResponse struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Usage      *wireUsage `json:"usage,omitempty"`
	IncompleteDetails *wireIncomplete `json:"incomplete_details,omitempty"`
}

type wireIncomplete struct {
	Reason string `json:"reason"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
