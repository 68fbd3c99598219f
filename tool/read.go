package tool

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/relaycore/agentcore/message"
)

// maxReadBytes bounds file reads so tool output stays predictable; larger
// files should be paginated by the caller via offset/limit.
const maxReadBytes = 1024 * 1024

// ReadTool reads a file from disk, with optional line-window support. It is
// one of the handful of concrete tools carried into this core purely to
// exercise Executor/Registry end to end in tests and the demo binary — the
// spec keeps concrete tool implementations out of the core's scope beyond
// the Tool contract itself.
type ReadTool struct{}

func (t *ReadTool) Name() string        { return "read" }
func (t *ReadTool) Label() string       { return "Read" }
func (t *ReadTool) Description() string { return "Read the contents of a file from disk." }

func (t *ReadTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to read.",
			},
			"offset": map[string]any{
				"type":        "integer",
				"description": "Line number to start reading from (1-indexed).",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of lines to read.",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadTool) Execute(ctx context.Context, callID string, args map[string]any, cancel CancelToken, onUpdate UpdateFunc) (Result, error) {
	path, _ := args["path"].(string)
	if strings.TrimSpace(path) == "" {
		return Result{}, fmt.Errorf("path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}
	if info.Size() > maxReadBytes {
		return Result{}, fmt.Errorf("file too large: %d bytes", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	for _, b := range data {
		if b == 0 {
			return Result{}, fmt.Errorf("binary file detected")
		}
	}

	content := string(data)
	offset, hasOffset := toInt(args["offset"])
	limit, hasLimit := toInt(args["limit"])
	if hasOffset || hasLimit {
		lines := strings.Split(content, "\n")
		start := 0
		if hasOffset && offset > 0 {
			start = offset - 1
		}
		if start > len(lines) {
			return Result{}, fmt.Errorf("offset exceeds file length")
		}
		end := len(lines)
		if hasLimit && start+limit < end {
			end = start + limit
		}
		content = strings.Join(lines[start:end], "\n")
	}

	return Result{Content: []message.ContentBlock{{Type: message.BlockText, Text: content}}}, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
