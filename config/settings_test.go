package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeSettingsRejectsInvalidThinkingLevel(t *testing.T) {
	base := &Settings{ThinkingLevel: "medium", EnabledTools: map[string]bool{}, Raw: map[string]any{}}
	overlay := &Settings{ThinkingLevel: "ultra-mega", EnabledTools: map[string]bool{}, Raw: map[string]any{}}
	merged := mergeSettings(base, overlay)
	if merged.ThinkingLevel != "medium" {
		t.Fatalf("mergeSettings() ThinkingLevel = %q, want base value preserved", merged.ThinkingLevel)
	}
}

func TestMergeSettingsAcceptsValidThinkingLevel(t *testing.T) {
	base := &Settings{ThinkingLevel: "low", EnabledTools: map[string]bool{}, Raw: map[string]any{}}
	overlay := &Settings{ThinkingLevel: "high", EnabledTools: map[string]bool{}, Raw: map[string]any{}}
	merged := mergeSettings(base, overlay)
	if merged.ThinkingLevel != "high" {
		t.Fatalf("mergeSettings() ThinkingLevel = %q, want %q", merged.ThinkingLevel, "high")
	}
}

func TestToolEnabledPrefersExplicitOverWildcard(t *testing.T) {
	s := &Settings{EnabledTools: map[string]bool{"*": false, "bash": true}}
	if !s.ToolEnabled("bash") {
		t.Fatalf("ToolEnabled(bash) = false, want true (explicit entry beats wildcard)")
	}
	if s.ToolEnabled("read") {
		t.Fatalf("ToolEnabled(read) = true, want false (falls back to wildcard default)")
	}
}

func TestToolEnabledDefaultsTrueWithNoSettings(t *testing.T) {
	var s *Settings
	if !s.ToolEnabled("anything") {
		t.Fatalf("ToolEnabled() on nil settings = false, want true")
	}
	empty := &Settings{}
	if !empty.ToolEnabled("anything") {
		t.Fatalf("ToolEnabled() on empty settings = false, want true")
	}
}

func TestMergeSettingsWildcardDoesNotEraseBaseExplicitEntries(t *testing.T) {
	base := &Settings{EnabledTools: map[string]bool{"bash": true}, Raw: map[string]any{}}
	overlay := &Settings{EnabledTools: map[string]bool{"*": false}, Raw: map[string]any{}}
	merged := mergeSettings(base, overlay)
	if !merged.ToolEnabled("bash") {
		t.Fatalf("merged.ToolEnabled(bash) = false, want true (base's explicit entry survives a narrower overlay default)")
	}
	if merged.ToolEnabled("read") {
		t.Fatalf("merged.ToolEnabled(read) = true, want false (overlay wildcard applies to tools neither scope named)")
	}
}

// TestLoadSettingsReadsYAMLWhenJSONAbsent exercises the settings.yaml
// fallback path (loadSettingsFromDir walking settingsFilenames), confirming
// a YAML-only local scope is parsed identically to the JSON shape.
func TestLoadSettingsReadsYAMLWhenJSONAbsent(t *testing.T) {
	cwd := t.TempDir()
	localDir := filepath.Join(cwd, ".agentcore")
	require.NoError(t, os.MkdirAll(localDir, 0o755))

	yamlDoc := "model: claude-sonnet-4-5\nthinkingLevel: high\nenabledTools:\n  \"*\": true\n  bash: false\n"
	require.NoError(t, os.WriteFile(filepath.Join(localDir, "settings.yaml"), []byte(yamlDoc), 0o644))

	settings, err := LoadSettings(cwd, []string{"local"}, "")
	require.NoError(t, err)
	require.Equal(t, "claude-sonnet-4-5", settings.Model)
	require.Equal(t, "high", settings.ThinkingLevel)
	require.True(t, settings.ToolEnabled("read"))
	require.False(t, settings.ToolEnabled("bash"))
}

// TestLoadSettingsPrefersJSONOverYAML confirms settings.json still wins when
// a scope directory carries both files, per settingsFilenames' order.
func TestLoadSettingsPrefersJSONOverYAML(t *testing.T) {
	cwd := t.TempDir()
	localDir := filepath.Join(cwd, ".agentcore")
	require.NoError(t, os.MkdirAll(localDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(localDir, "settings.json"), []byte(`{"model":"from-json"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(localDir, "settings.yaml"), []byte("model: from-yaml\n"), 0o644))

	settings, err := LoadSettings(cwd, []string{"local"}, "")
	require.NoError(t, err)
	require.Equal(t, "from-json", settings.Model)
}
