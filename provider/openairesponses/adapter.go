package openairesponses

import (
	"context"
	"errors"
	"time"

	"github.com/relaycore/agentcore/event"
	"github.com/relaycore/agentcore/message"
	"github.com/relaycore/agentcore/partialjson"
	"github.com/relaycore/agentcore/provider"
)

// Adapter implements provider.Adapter for the OpenAI Responses API.
type Adapter struct {
	client *client
	Tools  []ToolSpec
}

// New builds an Adapter targeting baseURL (e.g. "https://api.openai.com/v1").
func New(baseURL string, timeout time.Duration) *Adapter {
	return &Adapter{client: newClient(baseURL, timeout)}
}

type functionCallState struct {
	contentIx int
	callID    string
	itemID    string
	name      string
	argsBuf   string
	started   bool
}

// Stream satisfies provider.Adapter. The Responses API keys every delta by
// output_index/content_index rather than the Chat Completions "tool_calls[i]"
// array, so block bookkeeping is keyed by item id (assigned at
// response.output_item.added) instead of by wire index.
func (a *Adapter) Stream(ctx context.Context, model message.ModelDescriptor, history []message.AgentMessage, opts provider.Options) *event.Stream {
	stream := event.New(8)

	go func() {
		defer stream.Close()

		prepared := provider.PrepareHistory(history, model)
		req := &request{
			Model:        model.ID,
			Input:        toWireInput(prepared),
			Tools:        toWireTools(a.Tools),
			Temperature:  opts.Temperature,
			Instructions: opts.SystemPrompt,
		}
		if opts.MaxTokens > 0 {
			req.MaxTokens = &opts.MaxTokens
		}
		if opts.Reasoning != provider.ReasoningOff && opts.Reasoning != "" {
			req.Reasoning = &wireReasoning{Effort: string(opts.Reasoning)}
		}

		_ = stream.Emit(ctx, event.Event{Kind: event.KindStart})

		var (
			textStarted bool
			textIndex   int
			textBuf     string
			nextIndex   = 0
			calls       = map[string]*functionCallState{} // keyed by item id
			finalUsage  message.Usage
			stopReason  = message.StopReasonStop
		)

		handler := func(ev wireEvent) error {
			switch ev.Type {
			case "response.output_item.added":
				if ev.Item != nil && ev.Item.Type == "function_call" {
					st := &functionCallState{contentIx: nextIndex, callID: ev.Item.CallID, itemID: ev.Item.ID, name: ev.Item.Name}
					nextIndex++
					calls[ev.Item.ID] = st
					if st.callID != "" && st.name != "" {
						st.started = true
						if err := stream.Emit(ctx, event.Event{
							Kind: event.KindToolCallStart, ContentIndex: st.contentIx,
							ToolCallID: encodeToolCallID(st.callID, st.itemID), ToolCallName: st.name,
						}); err != nil {
							return err
						}
					}
				}
			case "response.output_text.delta":
				if ev.Delta == "" {
					return nil
				}
				if !textStarted {
					textStarted = true
					textIndex = nextIndex
					nextIndex++
					if err := stream.Emit(ctx, event.Event{Kind: event.KindTextStart, ContentIndex: textIndex}); err != nil {
						return err
					}
				}
				textBuf += ev.Delta
				return stream.Emit(ctx, event.Event{Kind: event.KindTextDelta, ContentIndex: textIndex, TextDelta: ev.Delta})
			case "response.function_call_arguments.delta":
				st, ok := calls[ev.ItemID]
				if !ok {
					return nil
				}
				st.argsBuf += ev.Delta
				if st.started {
					return stream.Emit(ctx, event.Event{
						Kind: event.KindToolCallDelta, ContentIndex: st.contentIx,
						ToolCallID: encodeToolCallID(st.callID, st.itemID), JSONDelta: ev.Delta,
					})
				}
			case "response.output_item.done":
				if ev.Item != nil && ev.Item.Type == "function_call" {
					if st, ok := calls[ev.Item.ID]; ok && ev.Item.Arguments != "" {
						st.argsBuf = ev.Item.Arguments
					}
				}
			case "response.completed", "response.incomplete":
				if ev.Response != nil {
					if ev.Response.Usage != nil {
						finalUsage = toUsage(ev.Response.Usage)
					}
					if ev.Response.Status == "incomplete" && ev.Response.IncompleteDetails != nil && ev.Response.IncompleteDetails.Reason == "max_output_tokens" {
						stopReason = message.StopReasonLength
					} else if len(calls) > 0 {
						stopReason = message.StopReasonToolUse
					} else {
						stopReason = message.StopReasonStop
					}
				}
			}
			return nil
		}

		err := a.client.stream(ctx, opts.APIKey, opts.Headers, req, handler)

		if textStarted {
			_ = stream.Emit(ctx, event.Event{Kind: event.KindTextEnd, ContentIndex: textIndex, Content: textBuf})
		}

		contentBlocks := make([]message.ContentBlock, 0, len(calls)+1)
		if textStarted {
			contentBlocks = append(contentBlocks, message.ContentBlock{Type: message.BlockText, Text: textBuf})
		}
		for i := 0; i < nextIndex; i++ {
			for _, st := range calls {
				if st.contentIx != i {
					continue
				}
				args, _ := partialjson.Parse(st.argsBuf).(map[string]any)
				block := message.ContentBlock{
					Type:       message.BlockToolCall,
					ToolCallID: encodeToolCallID(st.callID, st.itemID),
					ToolName:   st.name,
				}.WithArguments(args)
				if err := stream.Emit(ctx, event.Event{Kind: event.KindToolCallEnd, ContentIndex: st.contentIx, ToolCallID: block.ToolCallID, ToolCall: block}); err != nil {
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
