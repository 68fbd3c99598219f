package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
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
	return fmt.Sprintf("gemini api error: status %d: %s", e.StatusCode, e.Body)
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

// client talks to the Gemini streamGenerateContent endpoint. Transport is
// the same bufio/SSE approach as provider/openaichat and
// provider/openairesponses; only the URL shape and auth header differ.
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

func (c *client) streamURL(model string) string {
	return fmt.Sprintf("%s/v1/models/%s:streamGenerateContent", c.baseURL, url.PathEscape(model))
}

type streamHandler func(streamResponse) error

func (c *client) stream(ctx context.Context, apiKey string, headers map[string]string, model string, req *request, handler streamHandler) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal gemini request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.streamURL(model)+"?alt=sse", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("x-goog-api-key", apiKey)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("read gemini error body: %w", readErr)
		}
		return &apiError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body)), RetryAfterSeconds: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}

	reader := bufio.NewReader(resp.Body)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := readSSEData(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read gemini event: %w", err)
		}
		if data == "" {
			continue
		}
		var chunk streamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("parse gemini chunk: %w", err)
		}
		if err := handler(chunk); err != nil {
			return err
		}
	}
}

// readSSEData reads one SSE "data:" payload, matching provider/openaichat's
// readSSEEvent line-accumulation approach.
func readSSEData(reader *bufio.Reader) (string, error) {
	var builder strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if builder.Len() == 0 {
				if errors.Is(err, io.EOF) {
					return "", io.EOF
				}
				continue
			}
			return strings.TrimSuffix(builder.String(), "\n"), nil
		}
		if strings.HasPrefix(line, "data:") {
			builder.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			builder.WriteByte('\n')
		}
		if errors.Is(err, io.EOF) {
			if builder.Len() == 0 {
				return "", io.EOF
			}
			return strings.TrimSuffix(builder.String(), "\n"), nil
		}
	}
}
