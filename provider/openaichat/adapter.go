package openaichat

import (
	"context"
	"errors"
	"time"

	"github.com/relaycore/agentcore/event"
	"github.com/relaycore/agentcore/message"
	"github.com/relaycore/agentcore/partialjson"
	"github.com/relaycore/agentcore/provider"
)

// Adapter implements provider.Adapter for the OpenAI Chat Completions wire
// protocol and any gateway that reuses it verbatim.
type Adapter struct {
	client *client
	Tools  []ToolSpec
}

// New builds an Adapter targeting baseURL (e.g. "https://api.openai.com/v1").
func New(baseURL string, timeout time.Duration) *Adapter {
	return &Adapter{client: newClient(baseURL, timeout)}
}

// blockState accumulates one tool-call's streamed fragments, keyed by the
// wire delta's index field the way the teacher's stream_accumulator.go keys
// by choice/tool-call index rather than by id (ids can arrive split across
// chunks on some gateways).
type blockState struct {
	id        string
	name      string
	argsBuf   string
	contentIx int
	started   bool
}

// Stream satisfies provider.Adapter. It launches a goroutine performing the
// HTTP round trip and SSE decode, translating each wire delta into a
// normalized event.Event, and closes the returned Stream when the response
// completes, errors, or ctx is cancelled.
func (a *Adapter) Stream(ctx context.Context, model message.ModelDescriptor, history []message.AgentMessage, opts provider.Options) *event.Stream {
	stream := event.New(8)

	go func() {
		defer stream.Close()

		prepared := provider.PrepareHistory(history, model)
		req := &chatRequest{
			Model:       model.ID,
			Messages:    toWireMessages(prepared),
			Tools:       toWireTools(a.Tools),
			Temperature: opts.Temperature,
		}
		if opts.MaxTokens > 0 {
			req.MaxTokens = &opts.MaxTokens
		}

		_ = stream.Emit(ctx, event.Event{Kind: event.KindStart})

		var (
			textStarted bool
			textBuf     string
			blocks      = map[int]*blockState{}
			nextIndex   = 0
			finalUsage  message.Usage
			stopReason  = message.StopReasonStop
			sawFinish   bool
		)

		textIndex := -1

		handler := func(resp streamResponse) error {
			if resp.Usage != nil {
				finalUsage = toUsage(resp.Usage)
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content != "" {
					if !textStarted {
						textStarted = true
						textIndex = nextIndex
						nextIndex++
						if err := stream.Emit(ctx, event.Event{Kind: event.KindTextStart, ContentIndex: textIndex}); err != nil {
							return err
						}
					}
					textBuf += choice.Delta.Content
					if err := stream.Emit(ctx, event.Event{Kind: event.KindTextDelta, ContentIndex: textIndex, TextDelta: choice.Delta.Content}); err != nil {
						return err
					}
				}
				for _, diff := range choice.Delta.ToolCalls {
					st, ok := blocks[diff.Index]
					if !ok {
						st = &blockState{contentIx: nextIndex}
						nextIndex++
						blocks[diff.Index] = st
					}
					if diff.ID != "" {
						st.id = diff.ID
					}
					if diff.Function.Name != "" {
						st.name = diff.Function.Name
					}
					if !st.started && st.id != "" && st.name != "" {
						st.started = true
						if err := stream.Emit(ctx, event.Event{
							Kind:         event.KindToolCallStart,
							ContentIndex: st.contentIx,
							ToolCallID:   st.id,
							ToolCallName: st.name,
						}); err != nil {
							return err
						}
					}
					if diff.Function.Arguments != "" {
						st.argsBuf += diff.Function.Arguments
						if st.started {
							if err := stream.Emit(ctx, event.Event{
								Kind:         event.KindToolCallDelta,
								ContentIndex: st.contentIx,
								ToolCallID:   st.id,
								JSONDelta:    diff.Function.Arguments,
							}); err != nil {
								return err
							}
						}
					}
				}
				if choice.FinishReason != nil {
					sawFinish = true
					stopReason = mapStopReason(*choice.FinishReason)
				}
			}
			return nil
		}

		err := a.client.stream(ctx, opts.APIKey, opts.Headers, req, handler)

		if textStarted {
			_ = stream.Emit(ctx, event.Event{Kind: event.KindTextEnd, ContentIndex: textIndex, Content: textBuf})
		}

		contentBlocks := make([]message.ContentBlock, 0, len(blocks)+1)
		if textStarted {
			contentBlocks = append(contentBlocks, message.ContentBlock{Type: message.BlockText, Text: textBuf})
		}
		for i := 0; i < nextIndex; i++ {
			for _, st := range blocks {
				if st.contentIx != i {
					continue
				}
				args, _ := partialjson.Parse(st.argsBuf).(map[string]any)
				block := message.ContentBlock{
					Type:       message.BlockToolCall,
					ToolCallID: st.id,
					ToolName:   st.name,
				}.WithArguments(args)
				if err := stream.Emit(ctx, event.Event{
					Kind:         event.KindToolCallEnd,
					ContentIndex: st.contentIx,
					ToolCallID:   st.id,
					ToolCall:     block,
				}); err != nil {
					return
				}
				contentBlocks = append(contentBlocks, block)
			}
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

		if !sawFinish {
			stopReason = message.StopReasonStop
		}

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
