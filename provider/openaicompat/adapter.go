// Package openaicompat wraps provider/openaichat for the OpenAI-chat-wire-
// compatible gateways named in spec §6: xAI and Groq need no changes beyond
// a different base URL, while GitHub Copilot additionally requires identity-
// spoofing headers and tool-name case canonicalization.
package openaicompat

import (
	"context"
	"strings"
	"time"

	"github.com/relaycore/agentcore/event"
	"github.com/relaycore/agentcore/message"
	"github.com/relaycore/agentcore/provider"
	"github.com/relaycore/agentcore/provider/openaichat"
)

// Variant selects the per-gateway behavior this adapter layers on top of the
// plain OpenAI Chat Completions wire format.
type Variant string

const (
	VariantXAI      Variant = "xai"
	VariantGroq     Variant = "groq"
	VariantCopilot  Variant = "copilot"
)

// copilotHeaders is the fixed header set Copilot's gateway expects from a
// recognized client; values are illustrative of the shape spec §4.2 point 6
// describes ("replay a fixed set of headers"), not a claim to reproduce any
// specific vendor's exact wire capture.
var copilotHeaders = map[string]string{
	"Editor-Version":        "vscode/1.90.0",
	"Editor-Plugin-Version": "copilot-chat/0.12.0",
	"Copilot-Integration-Id": "vscode-chat",
}

// Adapter layers variant-specific request shaping and tool-name translation
// over provider/openaichat.Adapter.
type Adapter struct {
	inner   *openaichat.Adapter
	variant Variant
	// toolCasing maps each user-declared tool name, lowercased, to that
	// declared name, so tool-call names returned in another casing can be
	// rewritten to it. Populated from Tools.
	toolCasing map[string]string
}

// New builds an openaicompat Adapter. baseURL is the gateway's own chat-
// completions-compatible endpoint (e.g. https://api.x.ai/v1,
// https://api.groq.com/openai/v1, or a resolved Copilot inference host).
func New(baseURL string, variant Variant, timeout time.Duration) *Adapter {
	return &Adapter{inner: openaichat.New(baseURL, timeout), variant: variant}
}

// SetTools declares the tool set this adapter advertises, building the
// case-insensitive reverse map used to translate tool-call names back to
// their user-declared casing after a Copilot response.
func (a *Adapter) SetTools(tools []openaichat.ToolSpec) {
	a.inner.Tools = tools
	a.toolCasing = make(map[string]string, len(tools))
	for _, t := range tools {
		a.toolCasing[strings.ToLower(t.Name)] = t.Name
	}
}

// Stream satisfies provider.Adapter.
func (a *Adapter) Stream(ctx context.Context, model message.ModelDescriptor, history []message.AgentMessage, opts provider.Options) *event.Stream {
	if a.variant == VariantCopilot {
		opts = a.withCopilotHeaders(opts)
	}

	inner := a.inner.Stream(ctx, model, history, opts)
	if a.variant != VariantCopilot || len(a.toolCasing) == 0 {
		return inner
	}

	// Rewrite tool-call names on the way out to the user's declared casing,
	// since Copilot canonicalizes tool names to its own case on the way in.
	out := event.New(8)
	go func() {
		defer out.Close()
		for {
			e, ok := inner.Next(ctx)
			if !ok {
				return
			}
			a.rewriteEventToolName(&e)
			if err := out.Emit(ctx, e); err != nil {
				return
			}
			if e.IsTerminal() {
				return
			}
		}
	}()
	return out
}

func (a *Adapter) withCopilotHeaders(opts provider.Options) provider.Options {
	headers := make(map[string]string, len(opts.Headers)+len(copilotHeaders))
	for k, v := range opts.Headers {
		headers[k] = v
	}
	for k, v := range copilotHeaders {
		if _, exists := headers[k]; !exists {
			headers[k] = v
		}
	}
	opts.Headers = headers
	return opts
}

func (a *Adapter) rewriteEventToolName(e *event.Event) {
	if e.ToolCallName != "" {
		if canonical, ok := a.toolCasing[strings.ToLower(e.ToolCallName)]; ok {
			e.ToolCallName = canonical
		}
	}
	if e.ToolCall.ToolName != "" {
		if canonical, ok := a.toolCasing[strings.ToLower(e.ToolCall.ToolName)]; ok {
			e.ToolCall.ToolName = canonical
		}
	}
	if e.Message.Role == message.RoleAssistant {
		for i := range e.Message.Content {
			b := &e.Message.Content[i]
			if b.Type == message.BlockToolCall {
				if canonical, ok := a.toolCasing[strings.ToLower(b.ToolName)]; ok {
					b.ToolName = canonical
				}
			}
		}
	}
}
