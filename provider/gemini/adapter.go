package gemini

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/agentcore/event"
	"github.com/relaycore/agentcore/message"
	"github.com/relaycore/agentcore/provider"
)

// Adapter implements provider.Adapter for Gemini's streamGenerateContent.
type Adapter struct {
	client *client
	Tools  []ToolSpec
}

// New builds an Adapter targeting baseURL (e.g.
// "https://generativelanguage.googleapis.com").
func New(baseURL string, timeout time.Duration) *Adapter {
	return &Adapter{client: newClient(baseURL, timeout)}
}

// Stream satisfies provider.Adapter. Each streamed chunk carries new
// candidate parts, not a cumulative state: a text part is emitted as a
// delta on the single text block and appended to its buffer, and each
// functionCall part arrives complete and becomes one tool-call block
// (start then end, with no argument deltas).
func (a *Adapter) Stream(ctx context.Context, model message.ModelDescriptor, history []message.AgentMessage, opts provider.Options) *event.Stream {
	stream := event.New(8)

	go func() {
		defer stream.Close()

		prepared := provider.PrepareHistory(history, model)
		req := &request{
			Contents: toWireContents(prepared),
			Tools:    toWireTools(a.Tools),
		}
		if opts.SystemPrompt != "" {
			req.SystemInstruction = &wireContent{Parts: []wirePart{{Text: opts.SystemPrompt}}}
		}
		if opts.Temperature != nil || opts.MaxTokens > 0 {
			req.GenerationConfig = &wireGenConfig{Temperature: opts.Temperature, MaxOutputTokens: opts.MaxTokens}
		}

		_ = stream.Emit(ctx, event.Event{Kind: event.KindStart})

		var (
			textStarted bool
			textIndex   int
			textBuf     string
			nextIndex   = 0
			toolBlocks  []message.ContentBlock
			finalUsage  message.Usage
			finishSeen  string
		)

		handler := func(chunk streamResponse) error {
			if chunk.UsageMetadata != nil {
				finalUsage = toUsage(chunk.UsageMetadata)
			}
			if len(chunk.Candidates) == 0 {
				return nil
			}
			cand := chunk.Candidates[0]
			if cand.FinishReason != "" {
				finishSeen = cand.FinishReason
			}
			for _, part := range cand.Content.Parts {
				switch {
				case part.Text != "":
					if !textStarted {
						textStarted = true
						textIndex = nextIndex
						nextIndex++
						if err := stream.Emit(ctx, event.Event{Kind: event.KindTextStart, ContentIndex: textIndex}); err != nil {
							return err
						}
					}
					textBuf += part.Text
					if err := stream.Emit(ctx, event.Event{Kind: event.KindTextDelta, ContentIndex: textIndex, TextDelta: part.Text}); err != nil {
						return err
					}
				case part.FunctionCall != nil:
					ci := nextIndex
					nextIndex++
					id := uuid.NewString()
					if err := stream.Emit(ctx, event.Event{Kind: event.KindToolCallStart, ContentIndex: ci, ToolCallID: id, ToolCallName: part.FunctionCall.Name}); err != nil {
						return err
					}
					block := message.ContentBlock{
						Type:       message.BlockToolCall,
						ToolCallID: id,
						ToolName:   part.FunctionCall.Name,
					}.WithArguments(part.FunctionCall.Args)
					if err := stream.Emit(ctx, event.Event{Kind: event.KindToolCallEnd, ContentIndex: ci, ToolCallID: id, ToolCall: block}); err != nil {
						return err
					}
					toolBlocks = append(toolBlocks, block)
				}
			}
			return nil
		}

		err := a.client.stream(ctx, opts.APIKey, opts.Headers, model.ID, req, handler)

		if textStarted {
			_ = stream.Emit(ctx, event.Event{Kind: event.KindTextEnd, ContentIndex: textIndex, Content: textBuf})
		}

		if err != nil {
			var apiErr *apiError
			overflow := false
			errEvent := event.Event{Kind: event.KindError, ErrorReason: event.ErrorReasonError, Err: err, Usage: finalUsage}
			if errors.As(err, &apiErr) {
				overflow = provider.DetectOverflow(&provider.HTTPError{StatusCode: apiErr.StatusCode, Body: apiErr.Body}, &finalUsage, model)
				errEvent.HTTPStatusCode = apiErr.StatusCode
				errEvent.HTTPBody = apiErr.Body
				errEvent.RetryAfterSeconds = apiErr.RetryAfterSeconds
			}
			errEvent.ContextOverflow = overflow
			_ = stream.Emit(ctx, errEvent)
			return
		}

		contentBlocks := make([]message.ContentBlock, 0, len(toolBlocks)+1)
		if textStarted {
			contentBlocks = append(contentBlocks, message.ContentBlock{Type: message.BlockText, Text: textBuf})
		}
		contentBlocks = append(contentBlocks, toolBlocks...)

		stopReason := mapFinishReason(finishSeen, len(toolBlocks) > 0)
		final := message.AgentMessage{
			Role:       message.RoleAssistant,
			Content:    contentBlocks,
			Usage:      finalUsage,
			StopReason: stopReason,
			Model:      model,
			Timestamp:  time.Now(),
		}
		_ = stream.Emit(ctx, event.Event{Kind: event.KindDone, StopReason: stopReason, Message: final})
	}()

	return stream
}
