package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ProviderConfig describes how to reach one LLM provider, generalized from
// the teacher's single-gateway ProviderConfig (which only ever described one
// OpenAI-compatible endpoint) into one entry of a per-provider registry,
// since this core talks to five wire families at once (C3).
type ProviderConfig struct {
	BaseURL      string                  `json:"base_url"`
	TimeoutMS    int                     `json:"timeout_ms"`
	DefaultModel string                  `json:"default_model"`
	ModelAliases map[string]string       `json:"model_aliases"`
	Pricing      map[string]ModelPricing `json:"pricing"`
}

// ModelPricing mirrors the teacher's per-model pricing metadata, used for
// budget/cost reporting rather than enforcement here (no Non-goal blocks an
// embedder from computing cost from Usage itself).
type ModelPricing struct {
	InputPer1M  float64 `json:"input_per_1m"`
	OutputPer1M float64 `json:"output_per_1m"`
}

// Registry is the full set of configured providers, keyed by provider name
// ("anthropic", "openai", "gemini", "xai", "groq", "copilot", ...), plus the
// shared credential file path.
type Registry struct {
	Providers  map[string]ProviderConfig `json:"providers"`
	AuthPath   string                    `json:"auth_path"`
	SessionDir string                    `json:"session_dir"`
}

var (
	ErrRegistryMissing = errors.New("config: provider registry missing")
	ErrRegistryInvalid = errors.New("config: provider registry invalid")
)

// DefaultRegistryPath returns ~/.agentcore/providers.json, the teacher's
// ~/.openclaude/config.json convention renamed for this module.
func DefaultRegistryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".agentcore", "providers.json"), nil
}

// LoadRegistry reads and validates the provider registry at path (or the
// default path if empty).
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		var err error
		path, err = DefaultRegistryPath()
		if err != nil {
			return nil, err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRegistryMissing
		}
		return nil, fmt.Errorf("config: read provider registry: %w", err)
	}

	var reg Registry
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("config: parse provider registry: %w", err)
	}

	if len(reg.Providers) == 0 || reg.AuthPath == "" {
		return nil, ErrRegistryInvalid
	}
	for name, p := range reg.Providers {
		if p.ModelAliases == nil {
			p.ModelAliases = map[string]string{}
		}
		if p.Pricing == nil {
			p.Pricing = map[string]ModelPricing{}
		}
		if p.TimeoutMS <= 0 {
			p.TimeoutMS = 600000
		}
		reg.Providers[name] = p
	}
	return &reg, nil
}

// ResolveModel picks the effective model for a provider: an explicit CLI/
// caller override wins, then the merged settings.json value, then the
// provider's own default, each passed through alias resolution.
func (r *Registry) ResolveModel(provider, callerModel, settingsModel string) string {
	cfg, ok := r.Providers[provider]
	if !ok {
		if callerModel != "" {
			return callerModel
		}
		return settingsModel
	}
	if callerModel != "" {
		return aliasModel(cfg, callerModel)
	}
	if settingsModel != "" {
		return aliasModel(cfg, settingsModel)
	}
	return cfg.DefaultModel
}

func aliasModel(cfg ProviderConfig, name string) string {
	if aliased, ok := cfg.ModelAliases[name]; ok {
		return aliased
	}
	return name
}
