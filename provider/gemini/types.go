// Package gemini implements the Google Gemini generateContent streaming wire
// protocol (POST /v1/models/{model}:streamGenerateContent?alt=sse), adapted
// from provider/openaichat's HTTP/SSE plumbing with Gemini's part-based
// content shape in place of OpenAI's message/tool_call shape.
package gemini

// request matches the Gemini generateContent request body.
type request struct {
	Contents          []wireContent      `json:"contents"`
	SystemInstruction *wireContent       `json:"systemInstruction,omitempty"`
	Tools             []wireToolDecl     `json:"tools,omitempty"`
	GenerationConfig  *wireGenConfig     `json:"generationConfig,omitempty"`
}

type wireGenConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

// wirePart is a tagged union: exactly one of Text, InlineData, FunctionCall,
// or FunctionResponse is populated, matching Gemini's part shape. Thought and
// ThoughtSignature decorate a Text part carrying reasoning content rather
// than naming a separate part type, per Gemini's "thought" part convention.
type wirePart struct {
	Text             string                `json:"text,omitempty"`
	Thought          bool                  `json:"thought,omitempty"`
	ThoughtSignature string                `json:"thoughtSignature,omitempty"`
	InlineData       *wireInlineData       `json:"inlineData,omitempty"`
	FunctionCall     *wireFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *wireFunctionResponse `json:"functionResponse,omitempty"`
}

// wireInlineData carries a base64-encoded image (or other blob) part.
type wireInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type wireFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type wireToolDecl struct {
	FunctionDeclarations []wireFunctionDecl `json:"functionDeclarations"`
}

type wireFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// streamResponse is one SSE data payload: one candidate's worth of delta
// content plus, on the final chunk, usage metadata.
type streamResponse struct {
	Candidates    []wireCandidate `json:"candidates,omitempty"`
	UsageMetadata *wireUsage      `json:"usageMetadata,omitempty"`
}

type wireCandidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason,omitempty"`
	Index        int         `json:"index"`
}

type wireUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}
