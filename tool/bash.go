package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/relaycore/agentcore/message"
)

// maxCommandOutput limits combined stdout/stderr output.
const maxCommandOutput = 64 * 1024

// BashTool runs a shell command. See ReadTool for why this exists here.
type BashTool struct {
	// CWD is the default working directory for commands that don't override it.
	CWD string
}

func (t *BashTool) Name() string        { return "bash" }
func (t *BashTool) Label() string       { return "Bash" }
func (t *BashTool) Description() string { return "Run a shell command." }

func (t *BashTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute.",
			},
			"cwd": map[string]any{
				"type":        "string",
				"description": "Working directory.",
			},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, callID string, args map[string]any, cancel CancelToken, onUpdate UpdateFunc) (Result, error) {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return Result{}, fmt.Errorf("command is required")
	}

	workingDir := t.CWD
	if cwd, ok := args["cwd"].(string); ok && cwd != "" {
		workingDir = cwd
	}

	cmd := exec.CommandContext(ctx, "bash", "-lc", command)
	cmd.Dir = workingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := strings.TrimSpace(stdout.String())
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += strings.TrimSpace(stderr.String())
	}
	if len(output) > maxCommandOutput {
		output = output[:maxCommandOutput] + "\n...[truncated]"
	}

	if err != nil {
		return Result{}, fmt.Errorf("command failed: %w\n%s", err, output)
	}

	return Result{Content: []message.ContentBlock{{Type: message.BlockText, Text: output}}}, nil
}
