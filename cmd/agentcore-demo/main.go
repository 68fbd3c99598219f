// Command agentcore-demo wires the library together against stdin/stdout:
// read a line, prompt the agent, print the streamed response. It is not a
// TUI and does not parse flags beyond the provider name, model and log level, on
// purpose (spec.md places a terminal UI and CLI argument parsing out of
// scope as external collaborators this core never owns).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/relaycore/agentcore/agent"
	"github.com/relaycore/agentcore/config"
	"github.com/relaycore/agentcore/credential"
	"github.com/relaycore/agentcore/event"
	"github.com/relaycore/agentcore/message"
	"github.com/relaycore/agentcore/provider"
	"github.com/relaycore/agentcore/provider/anthropic"
	"github.com/relaycore/agentcore/provider/openaichat"
	"github.com/relaycore/agentcore/tool"
)

func main() {
	providerName := flag.String("provider", "anthropic", "provider to talk to (anthropic, openai)")
	modelID := flag.String("model", "", "model id override")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Parse()

	logger, err := config.NewLogger(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentcore-demo:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentcore-demo:", err)
		os.Exit(1)
	}

	settings, err := config.LoadSettings(cwd, nil, "")
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentcore-demo:", err)
		os.Exit(1)
	}

	home, _ := os.UserHomeDir()
	authPath := home + "/.agentcore/auth.json"
	creds := credential.NewStore(authPath, logger)

	candidates := []tool.Tool{&tool.ReadTool{}, &tool.BashTool{CWD: cwd}}
	enabled := make([]tool.Tool, 0, len(candidates))
	for _, t := range candidates {
		if settings.ToolEnabled(t.Name()) {
			enabled = append(enabled, t)
		}
	}

	model, streamFn := buildProvider(*providerName, *modelID, settings.Model, enabled)

	tools, err := tool.NewRegistry(enabled, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentcore-demo:", err)
		os.Exit(1)
	}

	a := agent.New(agent.DequeueAll, agent.DequeueOne, logger)
	a.Model = model
	a.Tools = tools
	a.Logger = logger
	a.ResolveAPIKey = func(ctx context.Context) (string, error) {
		return creds.Resolve(*providerName, credential.EnvVarsFor(*providerName), nil, nil)
	}

	unsubscribe := a.Subscribe(printEvent)
	defer unsubscribe()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("agentcore-demo: type a message and press enter (Ctrl-D to quit)")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		_, err := a.Prompt(ctx, line, agent.Config{StreamFn: streamFn})
		cancel()
		if err != nil {
			fmt.Fprintln(os.Stderr, "\nagentcore-demo:", err)
		}
		fmt.Println()
	}
}

// buildProvider resolves the model descriptor and stream function for the
// requested provider, a small fixed switch rather than a plugin registry
// since this demo only ever talks to whichever provider the flag names.
// enabled is advertised to the adapter as its tool schema so the model can
// actually emit tool calls against it; a provider the demo never sends
// tools to would leave the tool registry (and the executor it drives) dead
// code on every real request.
func buildProvider(providerName, modelOverride, settingsModel string, enabled []tool.Tool) (message.ModelDescriptor, provider.StreamFunc) {
	switch providerName {
	case "openai":
		model := modelOverride
		if model == "" {
			model = firstNonEmpty(settingsModel, "gpt-4o")
		}
		adapter := openaichat.New("https://api.openai.com/v1", 5*time.Minute)
		adapter.Tools = openaichatToolSpecs(enabled)
		return message.ModelDescriptor{API: "openai-chat", Provider: "openai", ID: model, InputText: true},
			adapter.Stream
	default:
		model := modelOverride
		if model == "" {
			model = firstNonEmpty(settingsModel, "claude-sonnet-4-5-20250929")
		}
		adapter := anthropic.New()
		adapter.Tools = anthropicToolSpecs(enabled)
		return message.ModelDescriptor{API: "anthropic-messages", Provider: "anthropic", ID: model, InputText: true},
			adapter.Stream
	}
}

func anthropicToolSpecs(tools []tool.Tool) []anthropic.ToolSpec {
	specs := make([]anthropic.ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, anthropic.ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return specs
}

func openaichatToolSpecs(tools []tool.Tool) []openaichat.ToolSpec {
	specs := make([]openaichat.ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, openaichat.ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return specs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// printEvent renders text deltas and tool activity to stdout as they
// arrive, the minimal rendering this demo needs in place of a real TUI.
func printEvent(e event.Event) {
	switch e.Kind {
	case event.KindMessageUpdate:
		if e.Inner != nil && e.Inner.Kind == event.KindTextDelta {
			fmt.Print(e.Inner.TextDelta)
		}
	case event.KindToolExecStart:
		fmt.Printf("\n[tool %s started]\n", e.ToolName)
	case event.KindToolExecEnd:
		status := "ok"
		if e.ToolIsError {
			status = "error"
		}
		fmt.Printf("[tool %s finished: %s]\n", e.ToolName, status)
	}
}
