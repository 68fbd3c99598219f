// Package config implements the ambient configuration stack of spec §1.2:
// JSON settings merged across user/project/local scopes, a per-provider
// registry with model aliases and pricing, and a zap logger factory. None of
// this has a per-spec-component identity (C1-C10); it is the wiring layer a
// cmd/agentcore-demo-style embedder uses to build the Config/Agent values
// those components accept.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/relaycore/agentcore/provider"
)

// Settings is the embedder-facing subset of merged settings.json content,
// generalized from the teacher's Claude-settings-compatibility shape to this
// core's own concerns (default model, thinking level, enabled tools) while
// keeping Raw for forward compatibility with fields this package doesn't
// model yet.
type Settings struct {
	Model         string          `json:"-"`
	ThinkingLevel string          `json:"-"`
	EnabledTools  map[string]bool `json:"-"`
	Raw           map[string]any  `json:"-"`
}

// validThinkingLevels mirrors provider.ReasoningLevel's enumerated values
// (spec §4.2); a settings file naming anything else has its thinkingLevel
// ignored rather than handed to an adapter that will reject it.
var validThinkingLevels = map[string]bool{
	string(provider.ReasoningOff):    true,
	string(provider.ReasoningMin):    true,
	string(provider.ReasoningLow):    true,
	string(provider.ReasoningMedium): true,
	string(provider.ReasoningHigh):   true,
	string(provider.ReasoningXHigh):  true,
}

// toolWildcard is the enabledTools key that sets a default for every tool
// not named explicitly, matching the "*" convention used elsewhere in the
// pack for default-allow/deny lists.
const toolWildcard = "*"

// ToolEnabled reports whether name should be registered, consulting an
// explicit entry first and falling back to the "*" wildcard default, then to
// enabled-by-default when settings say nothing about tools at all.
func (s *Settings) ToolEnabled(name string) bool {
	if s == nil || s.EnabledTools == nil {
		return true
	}
	if enabled, ok := s.EnabledTools[name]; ok {
		return enabled
	}
	if enabled, ok := s.EnabledTools[toolWildcard]; ok {
		return enabled
	}
	return true
}

type settingsSource struct {
	Source string
	Dir    string
}

// settingsFilenames lists the filenames checked within a scope directory,
// in preference order: settings.json first (matching the teacher's
// LoadClaudeSettings), falling back to a YAML rendering of the same shape
// for embedders that prefer it (gopkg.in/yaml.v3, per haasonsaas-nexus's
// cmd/nexus-edge/config.go config.yaml convention).
var settingsFilenames = []string{"settings.json", "settings.yaml", "settings.yml"}

// LoadSettings loads and merges settings from user, project, and local
// scopes (in that overlay order), optionally restricted to a subset of
// sources and optionally overridden by an inline-JSON or path extraSettings
// value, mirroring the teacher's LoadClaudeSettings signature.
func LoadSettings(cwd string, sources []string, extraSettings string) (*Settings, error) {
	sourceSet := normalizeSources(sources)
	paths, err := settingsPaths(cwd)
	if err != nil {
		return nil, err
	}

	var merged *Settings
	for _, item := range paths {
		if len(sourceSet) > 0 && !sourceSet[item.Source] {
			continue
		}
		settings, err := loadSettingsFromDir(item.Dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		if settings == nil {
			continue
		}
		merged = mergeSettings(merged, settings)
	}

	if extraSettings != "" {
		override, err := loadSettingsFlag(extraSettings)
		if err != nil {
			return nil, err
		}
		merged = mergeSettings(merged, override)
	}

	if merged == nil {
		return &Settings{Raw: map[string]any{}, EnabledTools: map[string]bool{}}, nil
	}
	return merged, nil
}

func settingsPaths(cwd string) ([]settingsSource, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("config: resolve home dir: %w", err)
	}
	projectRoot := findProjectRoot(cwd)

	return []settingsSource{
		{Source: "user", Dir: filepath.Join(home, ".agentcore")},
		{Source: "project", Dir: filepath.Join(projectRoot, ".agentcore")},
		{Source: "local", Dir: filepath.Join(cwd, ".agentcore")},
	}, nil
}

// loadSettingsFromDir tries each of settingsFilenames in dir in order,
// returning the first one that exists. A scope directory with none of them
// present is not an error (os.ErrNotExist, like a single missing file).
func loadSettingsFromDir(dir string) (*Settings, error) {
	var lastErr error = os.ErrNotExist
	for _, name := range settingsFilenames {
		settings, err := loadSettingsFromFile(filepath.Join(dir, name))
		if err == nil {
			return settings, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func normalizeSources(sources []string) map[string]bool {
	if len(sources) == 0 {
		return nil
	}
	set := make(map[string]bool)
	for _, entry := range sources {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		set[strings.ToLower(entry)] = true
	}
	return set
}

func loadSettingsFromFile(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSettings(raw, isYAMLPath(path))
}

func loadSettingsFlag(value string) (*Settings, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "{") {
		return parseSettings([]byte(trimmed), false)
	}
	return loadSettingsFromFile(trimmed)
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// parseSettings decodes raw as JSON or, when asYAML is set, as YAML via
// gopkg.in/yaml.v3 into the same map[string]any shape JSON decoding
// produces, so the rest of parseSettings reads either format identically.
func parseSettings(raw []byte, asYAML bool) (*Settings, error) {
	var data map[string]any
	var err error
	if asYAML {
		err = yaml.Unmarshal(raw, &data)
	} else {
		err = json.Unmarshal(raw, &data)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse settings: %w", err)
	}

	settings := &Settings{
		Raw:          data,
		EnabledTools: map[string]bool{},
	}

	if model, ok := data["model"].(string); ok {
		settings.Model = model
	}
	if level, ok := data["thinkingLevel"].(string); ok {
		settings.ThinkingLevel = level
	}
	if tools, ok := data["enabledTools"].(map[string]any); ok {
		for key, value := range tools {
			if b, ok := value.(bool); ok {
				settings.EnabledTools[key] = b
			}
		}
	}

	return settings, nil
}

// mergeSettings layers overlay on top of base, local scope winning over
// project winning over user (LoadSettings walks sources in that order).
// Model is a plain override, but ThinkingLevel and EnabledTools each need
// real overlay semantics beyond "last write wins": an overlay naming a
// thinkingLevel outside provider.ReasoningLevel's enum is dropped rather
// than silently breaking every subsequent Stream call, and enabledTools
// merges its "*" wildcard default and per-tool overrides independently so a
// project file can flip the default off while a local file re-enables one
// tool without having to restate the whole map.
func mergeSettings(base, overlay *Settings) *Settings {
	if base == nil {
		return overlay
	}
	if overlay == nil {
		return base
	}

	merged := &Settings{
		Model:         base.Model,
		ThinkingLevel: base.ThinkingLevel,
		EnabledTools:  map[string]bool{},
		Raw:           map[string]any{},
	}

	for k, v := range base.Raw {
		merged.Raw[k] = v
	}
	for k, v := range overlay.Raw {
		merged.Raw[k] = v
	}

	if overlay.Model != "" {
		merged.Model = overlay.Model
	}
	if overlay.ThinkingLevel != "" && validThinkingLevels[overlay.ThinkingLevel] {
		merged.ThinkingLevel = overlay.ThinkingLevel
	}

	for k, v := range base.EnabledTools {
		merged.EnabledTools[k] = v
	}
	for k, v := range overlay.EnabledTools {
		// An overlay's "*" only replaces the base's default; it does not
		// erase a base scope's explicit per-tool entries, since ToolEnabled
		// already prefers an explicit entry over the wildcard at lookup
		// time. A project file narrowing the default to deny-all therefore
		// can't silently take away a tool the user's own settings opted in.
		merged.EnabledTools[k] = v
	}

	return merged
}

// findProjectRoot locates the nearest parent directory containing .git,
// falling back to cwd if none is found.
func findProjectRoot(cwd string) string {
	current := filepath.Clean(cwd)
	for {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return cwd
		}
		current = parent
	}
}
