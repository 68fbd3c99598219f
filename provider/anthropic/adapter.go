// Package anthropic implements the Anthropic Messages streaming wire
// protocol adapter. It is not grounded on the teacher repository (which
// speaks only OpenAI Chat Completions) but on the anthropic-sdk-go usage
// pattern in the example pack's goadesign-goa-ai model/anthropic package,
// generalized from that package's model.Chunk/model.Streamer shape onto this
// core's event.Stream and message.AgentMessage.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/relaycore/agentcore/event"
	"github.com/relaycore/agentcore/message"
	"github.com/relaycore/agentcore/partialjson"
	"github.com/relaycore/agentcore/provider"
)

// Adapter implements provider.Adapter against the Anthropic Messages API.
type Adapter struct {
	Tools []ToolSpec
}

// ToolSpec describes one tool advertised to the model, kept decoupled from
// the tool package the same way the openaichat adapter does.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// New builds an Anthropic Adapter. It takes no endpoint: Stream uses
// model.BaseURL, when non-empty, to override the SDK's default endpoint
// (used for proxies/gateways).
func New() *Adapter {
	return &Adapter{}
}

type toolBuffer struct {
	contentIx int
	id        string
	name      string
	argsBuf   strings.Builder
}

type thinkingBuffer struct {
	contentIx int
	text      strings.Builder
	signature string
}

// Stream satisfies provider.Adapter.
func (a *Adapter) Stream(ctx context.Context, model message.ModelDescriptor, history []message.AgentMessage, opts provider.Options) *event.Stream {
	stream := event.New(8)

	go func() {
		defer stream.Close()

		clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
		if model.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(model.BaseURL))
		}
		for k, v := range opts.Headers {
			clientOpts = append(clientOpts, option.WithHeader(k, v))
		}
		client := sdk.NewClient(clientOpts...)

		prepared := provider.PrepareHistory(history, model)
		params, err := a.buildParams(prepared, model, opts)
		if err != nil {
			_ = stream.Emit(ctx, event.Event{Kind: event.KindError, ErrorReason: event.ErrorReasonError, Err: err})
			return
		}

		_ = stream.Emit(ctx, event.Event{Kind: event.KindStart})

		sdkStream := client.Messages.NewStreaming(ctx, *params)
		defer sdkStream.Close()

		var (
			nextIndex   = 0
			textIndices = map[int]int{}
			textBufs    = map[int]*strings.Builder{}
			tools       = map[int]*toolBuffer{}
			thinkings   = map[int]*thinkingBuffer{}
			finalUsage  message.Usage
			stopReason  = message.StopReasonStop
			blocks      []message.ContentBlock
		)

		for sdkStream.Next() {
			ev := sdkStream.Current()
			switch e := ev.AsAny().(type) {
			case sdk.ContentBlockStartEvent:
				idx := int(e.Index)
				switch start := e.ContentBlock.AsAny().(type) {
				case sdk.ToolUseBlock:
					tb := &toolBuffer{contentIx: nextIndex, id: start.ID, name: start.Name}
					nextIndex++
					tools[idx] = tb
					if err := stream.Emit(ctx, event.Event{
						Kind: event.KindToolCallStart, ContentIndex: tb.contentIx,
						ToolCallID: tb.id, ToolCallName: tb.name,
					}); err != nil {
						return
					}
				}
			case sdk.ContentBlockDeltaEvent:
				idx := int(e.Index)
				switch delta := e.Delta.AsAny().(type) {
				case sdk.TextDelta:
					if delta.Text == "" {
						continue
					}
					ci, ok := textIndices[idx]
					if !ok {
						ci = nextIndex
						nextIndex++
						textIndices[idx] = ci
						textBufs[idx] = &strings.Builder{}
						if err := stream.Emit(ctx, event.Event{Kind: event.KindTextStart, ContentIndex: ci}); err != nil {
							return
						}
					}
					textBufs[idx].WriteString(delta.Text)
					if err := stream.Emit(ctx, event.Event{Kind: event.KindTextDelta, ContentIndex: ci, TextDelta: delta.Text}); err != nil {
						return
					}
				case sdk.InputJSONDelta:
					if delta.PartialJSON == "" {
						continue
					}
					if tb, ok := tools[idx]; ok {
						tb.argsBuf.WriteString(delta.PartialJSON)
						if err := stream.Emit(ctx, event.Event{
							Kind: event.KindToolCallDelta, ContentIndex: tb.contentIx,
							ToolCallID: tb.id, JSONDelta: delta.PartialJSON,
						}); err != nil {
							return
						}
					}
				case sdk.ThinkingDelta:
					if delta.Thinking == "" {
						continue
					}
					tb, ok := thinkings[idx]
					if !ok {
						tb = &thinkingBuffer{contentIx: nextIndex}
						nextIndex++
						thinkings[idx] = tb
						if err := stream.Emit(ctx, event.Event{Kind: event.KindThinkingStart, ContentIndex: tb.contentIx}); err != nil {
							return
						}
					}
					tb.text.WriteString(delta.Thinking)
					if err := stream.Emit(ctx, event.Event{Kind: event.KindThinkingDelta, ContentIndex: tb.contentIx, TextDelta: delta.Thinking}); err != nil {
						return
					}
				case sdk.SignatureDelta:
					if tb, ok := thinkings[idx]; ok {
						tb.signature = delta.Signature
					}
				}
			case sdk.ContentBlockStopEvent:
				idx := int(e.Index)
				if ci, ok := textIndices[idx]; ok {
					text := textBufs[idx].String()
					blocks = append(blocks, message.ContentBlock{Type: message.BlockText, Text: text})
					if err := stream.Emit(ctx, event.Event{Kind: event.KindTextEnd, ContentIndex: ci, Content: text}); err != nil {
						return
					}
					continue
				}
				if tb, ok := thinkings[idx]; ok {
					text := tb.text.String()
					blocks = append(blocks, message.ContentBlock{Type: message.BlockThinking, Thinking: text, ThinkingSignature: tb.signature})
					if err := stream.Emit(ctx, event.Event{Kind: event.KindThinkingEnd, ContentIndex: tb.contentIx, Content: text, Signature: tb.signature}); err != nil {
						return
					}
					continue
				}
				if tb, ok := tools[idx]; ok {
					args, _ := parseToolArgs(tb.argsBuf.String())
					block := message.ContentBlock{Type: message.BlockToolCall, ToolCallID: tb.id, ToolName: tb.name}.WithArguments(args)
					blocks = append(blocks, block)
					if err := stream.Emit(ctx, event.Event{Kind: event.KindToolCallEnd, ContentIndex: tb.contentIx, ToolCallID: tb.id, ToolCall: block}); err != nil {
						return
					}
				}
			case sdk.MessageDeltaEvent:
				stopReason = mapStopReason(string(e.Delta.StopReason))
				finalUsage = message.Usage{
					InputTokens:      int(e.Usage.InputTokens),
					OutputTokens:     int(e.Usage.OutputTokens),
					CacheReadTokens:  int(e.Usage.CacheReadInputTokens),
					CacheWriteTokens: int(e.Usage.CacheCreationInputTokens),
				}
			}
		}

		if err := sdkStream.Err(); err != nil {
			httpErr, retryAfter := classifyHTTPErr(err)
			overflow := provider.DetectOverflow(httpErr, &finalUsage, model)
			errEvent := event.Event{Kind: event.KindError, ErrorReason: event.ErrorReasonError, Err: err, ContextOverflow: overflow, Usage: finalUsage, RetryAfterSeconds: retryAfter}
			if httpErr != nil {
				errEvent.HTTPStatusCode = httpErr.StatusCode
				errEvent.HTTPBody = httpErr.Body
			}
			_ = stream.Emit(ctx, errEvent)
			return
		}

		final := message.AgentMessage{
			Role:       message.RoleAssistant,
			Content:    blocks,
			Usage:      finalUsage,
			StopReason: stopReason,
			Model:      model,
			Timestamp:  time.Now(),
		}
		_ = stream.Emit(ctx, event.Event{Kind: event.KindDone, StopReason: stopReason, Message: final})
	}()

	return stream
}

func (a *Adapter) buildParams(history []message.AgentMessage, model message.ModelDescriptor, opts provider.Options) (*sdk.MessageNewParams, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = model.MaxTokens
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("anthropic: max tokens must be positive")
	}

	msgs, err := encodeMessages(history)
	if err != nil {
		return nil, err
	}

	params := &sdk.MessageNewParams{
		Model:     sdk.Model(model.ID),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if opts.SystemPrompt != "" {
		sysBlock := sdk.TextBlockParam{Text: opts.SystemPrompt}
		if opts.CacheRetention != provider.CacheRetentionNone {
			sysBlock.CacheControl = sdk.CacheControlEphemeralParam{}
		}
		params.System = []sdk.TextBlockParam{sysBlock}
	}
	if opts.Temperature != nil {
		params.Temperature = sdk.Float(*opts.Temperature)
	}
	if budget, ok := opts.ThinkingBudgets[model.ID]; ok && budget > 0 {
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(budget))
	}
	if len(a.Tools) > 0 {
		params.Tools = encodeTools(a.Tools)
	}
	return params, nil
}

func encodeMessages(history []message.AgentMessage) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case message.RoleUser:
			out = append(out, sdk.NewUserMessage(userBlocks(m)...))
		case message.RoleAssistant:
			var blocks []sdk.ContentBlockParamUnion
			for _, b := range m.Content {
				switch b.Type {
				case message.BlockText:
					if b.Text != "" {
						blocks = append(blocks, sdk.NewTextBlock(b.Text))
					}
				case message.BlockThinking:
					// A thinking block with a signature is replayed verbatim so the
					// model can verify it produced the thinking itself; one without a
					// signature (e.g. reconstructed from a different provider) is
					// downgraded to plain text rather than rejected outright.
					if b.Thinking == "" {
						continue
					}
					if b.ThinkingSignature != "" {
						blocks = append(blocks, sdk.NewThinkingBlock(b.ThinkingSignature, b.Thinking))
					} else {
						blocks = append(blocks, sdk.NewTextBlock(b.Thinking))
					}
				case message.BlockToolCall:
					blocks = append(blocks, sdk.NewToolUseBlock(b.ToolCallID, b.Arguments, b.ToolName))
				}
			}
			if len(blocks) > 0 {
				out = append(out, sdk.NewAssistantMessage(blocks...))
			}
		case message.RoleToolResult:
			block := sdk.NewToolResultBlock(m.ToolCallID, m.Text(), m.IsError)
			out = append(out, sdk.NewUserMessage(block))
		}
	}
	return out, nil
}

// userBlocks builds a user turn's content blocks, pairing its text with any
// attached images (spec §3's InputImage capability; PrepareHistory already
// strips images the target model can't accept before this runs).
func userBlocks(m message.AgentMessage) []sdk.ContentBlockParamUnion {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
	if text := m.Text(); text != "" {
		blocks = append(blocks, sdk.NewTextBlock(text))
	}
	for _, b := range m.Images() {
		mime := b.ImageMimeType
		if mime == "" {
			mime = "image/png"
		}
		blocks = append(blocks, sdk.NewImageBlockBase64(mime, b.ImageData))
	}
	if len(blocks) == 0 {
		blocks = append(blocks, sdk.NewTextBlock(""))
	}
	return blocks
}

func encodeTools(specs []ToolSpec) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(specs))
	for _, t := range specs {
		schema := sdk.ToolInputSchemaParam{ExtraFields: t.Parameters}
		u := sdk.ToolUnionParamOfTool(schema, t.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(t.Description)
		}
		out = append(out, u)
	}
	return out
}

func mapStopReason(reason string) message.StopReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return message.StopReasonStop
	case "max_tokens":
		return message.StopReasonLength
	case "tool_use":
		return message.StopReasonToolUse
	default:
		return message.StopReasonStop
	}
}

func parseToolArgs(buf string) (map[string]any, bool) {
	v, _ := partialjson.Parse(buf).(map[string]any)
	return v, true
}

// classifyHTTPErr turns an SDK error into the shape provider.DetectOverflow
// and provider.ClassifyError inspect. *sdk.Error (the stainless-generated
// error type, per haasonsaas-nexus's internal/agent/providers/anthropic.go
// errors.As usage) carries the real StatusCode; the SDK does not surface a
// typed Retry-After, so retryAfterSeconds is scraped from the error text the
// same way other_examples' goclaw/dodo OpenAI provider wrappers do it. A
// bare error (network failure, no response at all) falls back to body-only
// phrase matching with retryAfterSeconds 0.
func classifyHTTPErr(err error) (*provider.HTTPError, int) {
	if err == nil {
		return nil, 0
	}
	var aerr *sdk.Error
	if errors.As(err, &aerr) {
		return &provider.HTTPError{StatusCode: aerr.StatusCode, Body: err.Error()}, retryAfterFromText(err.Error())
	}
	return &provider.HTTPError{Body: err.Error()}, 0
}

// retryAfterFromText scrapes a "retry-after"/"retry after" value out of an
// error message in whole seconds, for SDKs (like anthropic-sdk-go) that
// don't expose a typed Retry-After header.
func retryAfterFromText(errText string) int {
	lower := strings.ToLower(errText)
	for _, marker := range []string{"retry-after", "retry after"} {
		idx := strings.Index(lower, marker)
		if idx == -1 {
			continue
		}
		remaining := strings.TrimSpace(errText[idx+len(marker):])
		remaining = strings.TrimLeft(remaining, ":= ")
		fields := strings.Fields(remaining)
		if len(fields) == 0 {
			continue
		}
		if secs, perr := strconv.Atoi(fields[0]); perr == nil && secs >= 0 {
			return secs
		}
	}
	return 0
}
