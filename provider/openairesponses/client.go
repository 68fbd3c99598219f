package openairesponses

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type apiError struct {
	StatusCode        int
	Body              string
	RetryAfterSeconds int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("openai-responses api error: status %d: %s", e.StatusCode, e.Body)
}

// parseRetryAfter reads a Retry-After header value as whole seconds.
func parseRetryAfter(v string) int {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}

// client talks to the OpenAI Responses endpoint. Modeled directly on
// provider/openaichat's client, the two wire protocols differing only in
// request/response shape, not in transport.
type client struct {
	baseURL    string
	httpClient *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: &http.Client{Timeout: timeout}}
}

func (c *client) responsesURL() string {
	if strings.HasSuffix(c.baseURL, "/responses") {
		return c.baseURL
	}
	return c.baseURL + "/responses"
}

type streamHandler func(wireEvent) error

func (c *client) stream(ctx context.Context, apiKey string, headers map[string]string, req *request, handler streamHandler) error {
	req.Stream = true

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal responses request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.responsesURL(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create responses request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send responses request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("read responses error body: %w", readErr)
		}
		return &apiError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body)), RetryAfterSeconds: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}

	reader := bufio.NewReader(resp.Body)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, eventType, err := readSSEEvent(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read responses event: %w", err)
		}
		if data == "" {
			continue
		}
		var ev wireEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("parse responses event: %w", err)
		}
		if ev.Type == "" {
			ev.Type = eventType
		}
		if err := handler(ev); err != nil {
			return err
		}
	}
}

// readSSEEvent reads one SSE frame, returning its "data:" payload and its
// "event:" name (the Responses API sets both, unlike Chat Completions which
// relies solely on the decoded "type" field).
func readSSEEvent(reader *bufio.Reader) (data string, eventType string, err error) {
	var dataBuilder, eventBuilder strings.Builder
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return "", "", readErr
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if dataBuilder.Len() == 0 && eventBuilder.Len() == 0 {
				if errors.Is(readErr, io.EOF) {
					return "", "", io.EOF
				}
				continue
			}
			return strings.TrimSuffix(dataBuilder.String(), "\n"), eventBuilder.String(), nil
		}
		switch {
		case strings.HasPrefix(line, "data:"):
			dataBuilder.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			dataBuilder.WriteByte('\n')
		case strings.HasPrefix(line, "event:"):
			eventBuilder.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		}
		if errors.Is(readErr, io.EOF) {
			if dataBuilder.Len() == 0 && eventBuilder.Len() == 0 {
				return "", "", io.EOF
			}
			return strings.TrimSuffix(dataBuilder.String(), "\n"), eventBuilder.String(), nil
		}
	}
}
