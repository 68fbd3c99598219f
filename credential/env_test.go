package credential

import (
	"reflect"
	"testing"
)

func TestEnvVarsForKnownProviderAliases(t *testing.T) {
	cases := map[string][]string{
		"anthropic": {"ANTHROPIC_API_KEY"},
		"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY", "GOOGLE_GENERATIVE_AI_API_KEY"},
		"bedrock":   {"AWS_BEARER_TOKEN_BEDROCK", "BEDROCK_API_KEY"},
	}
	for provider, want := range cases {
		if got := EnvVarsFor(provider); !reflect.DeepEqual(got, want) {
			t.Errorf("EnvVarsFor(%q) = %v, want %v", provider, got, want)
		}
	}
}

func TestEnvVarsForUnknownProviderDerivesName(t *testing.T) {
	got := EnvVarsFor("mistral")
	want := []string{"MISTRAL_API_KEY"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("EnvVarsFor(mistral) = %v, want %v", got, want)
	}
}
