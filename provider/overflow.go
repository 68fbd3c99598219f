package provider

import (
	"regexp"

	"github.com/relaycore/agentcore/message"
)

// overflowPatterns enumerates the provider-specific phrasing spec §4.2
// point 7 names for detecting context overflow from an error body.
var overflowPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)prompt is too long`),
	regexp.MustCompile(`(?i)exceeds the context window`),
	regexp.MustCompile(`(?i)input token count.*exceeds`),
	regexp.MustCompile(`(?i)reduce the length`),
	regexp.MustCompile(`(?i)maximum context length`),
	regexp.MustCompile(`(?i)context_length_exceeded`),
}

// HTTPError is the minimal shape adapters report for a failed HTTP call;
// each concrete adapter builds one from its own error type's status code
// and body so DetectOverflow can inspect it.
type HTTPError struct {
	StatusCode int
	Body       string
}

// DetectOverflow implements spec §4.2 point 7's three conditions: a
// recognized error phrase, a body-less 400/413, or a usage report claiming
// more input tokens than the model declares.
func DetectOverflow(httpErr *HTTPError, usage *message.Usage, model message.ModelDescriptor) bool {
	if httpErr != nil {
		for _, pattern := range overflowPatterns {
			if pattern.MatchString(httpErr.Body) {
				return true
			}
		}
		if httpErr.Body == "" && (httpErr.StatusCode == 400 || httpErr.StatusCode == 413) {
			return true
		}
	}
	if usage != nil && model.ContextWindow > 0 && usage.InputTokens > model.ContextWindow {
		return true
	}
	return false
}

// ErrorClass buckets a terminal provider error for the retry layer (C10).
type ErrorClass string

const (
	ErrorClassTransient ErrorClass = "transient"
	ErrorClassTerminal  ErrorClass = "terminal"
	ErrorClassOverflow  ErrorClass = "overflow"
)

// ClassifyError decides whether a failed call should be retried. A 5xx or a
// 429 with a short enough Retry-After is transient; overflow takes
// precedence since retrying it verbatim will just fail again; anything else
// (auth failures, 400s, content-policy refusals) is terminal.
func ClassifyError(httpErr *HTTPError, retryAfterSeconds int, maxRetryDelaySeconds int, usage *message.Usage, model message.ModelDescriptor) ErrorClass {
	if DetectOverflow(httpErr, usage, model) {
		return ErrorClassOverflow
	}
	if httpErr == nil {
		return ErrorClassTransient // network-level error, no HTTP response at all
	}
	switch {
	case httpErr.StatusCode >= 500:
		return ErrorClassTransient
	case httpErr.StatusCode == 429:
		if retryAfterSeconds <= maxRetryDelaySeconds {
			return ErrorClassTransient
		}
		return ErrorClassTerminal
	default:
		return ErrorClassTerminal
	}
}
