package credential

// EnvVarsFor returns the environment variable names checked for a
// provider's API key, in priority order. Per-provider variables follow
// `<PROVIDER>_API_KEY` with documented aliases for Azure/Bedrock/Gemini/etc.
// An unrecognized provider still gets the derived `<PROVIDER>_API_KEY` name
// as its sole candidate.
func EnvVarsFor(provider string) []string {
	if aliases, ok := providerEnvAliases[provider]; ok {
		return aliases
	}
	return []string{derivedEnvVar(provider)}
}

var providerEnvAliases = map[string][]string{
	"anthropic": {"ANTHROPIC_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"azure":     {"AZURE_OPENAI_API_KEY", "AZURE_API_KEY"},
	"bedrock":   {"AWS_BEARER_TOKEN_BEDROCK", "BEDROCK_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY", "GOOGLE_GENERATIVE_AI_API_KEY"},
	"xai":       {"XAI_API_KEY"},
	"groq":      {"GROQ_API_KEY"},
	"copilot":   {"GITHUB_COPILOT_TOKEN", "GH_TOKEN"},
}

func derivedEnvVar(provider string) string {
	upper := make([]byte, 0, len(provider)+8)
	for i := 0; i < len(provider); i++ {
		c := provider[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = append(upper, c)
	}
	return string(upper) + "_API_KEY"
}
