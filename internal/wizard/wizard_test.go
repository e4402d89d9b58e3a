package wizard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xamun-dev/xamun/internal/models"
)

func TestConfigAnswers_Values(t *testing.T) {
	tests := []struct {
		name    string
		answers ConfigAnswers
		want    map[string]any
	}{
		{
			name:    "copilot stores the token as github token",
			answers: ConfigAnswers{Provider: "copilot", ModelID: "gpt-5", APIKey: "ghp_x"},
			want:    map[string]any{"apiProvider": "copilot", "apiModelId": "gpt-5", "githubToken": "ghp_x"},
		},
		{
			name:    "empty key keeps the stored secret",
			answers: ConfigAnswers{Provider: "anthropic", ModelID: "claude"},
			want:    map[string]any{"apiProvider": "anthropic", "apiModelId": "claude"},
		},
		{
			name:    "openrouter",
			answers: ConfigAnswers{Provider: "openrouter", ModelID: "m", APIKey: "k"},
			want:    map[string]any{"apiProvider": "openrouter", "apiModelId": "m", "openRouterApiKey": "k"},
		},
		{
			name:    "openai compatible endpoint",
			answers: ConfigAnswers{Provider: "openai", ModelID: "m", APIKey: "k", BaseURL: "https://api.example.com/v1"},
			want: map[string]any{
				"apiProvider":   "openai",
				"openAiModelId": "m",
				"openAiApiKey":  "k",
				"openAiBaseUrl": "https://api.example.com/v1",
			},
		},
		{
			name:    "ollama has no key",
			answers: ConfigAnswers{Provider: "ollama", ModelID: "llama3", APIKey: "ignored", BaseURL: ""},
			want:    map[string]any{"apiProvider": "ollama", "ollamaModelId": "llama3", "ollamaBaseUrl": ""},
		},
		{
			name:    "mock",
			answers: ConfigAnswers{Provider: "mock", APIKey: "ignored"},
			want:    map[string]any{"apiProvider": "mock", "apiModelId": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.answers.Values())
		})
	}
}

func TestConfigAnswers_ValuesUseSchemaKeys(t *testing.T) {
	for _, p := range Providers {
		a := ConfigAnswers{Provider: p, ModelID: "m", APIKey: "k", BaseURL: "http://x"}
		for key := range a.Values() {
			_, ok := models.LookupConfigField(key)
			assert.True(t, ok, "provider %s produced unknown key %s", p, key)
		}
	}
}

func TestUsesBaseURL(t *testing.T) {
	assert.True(t, usesBaseURL("openai"))
	assert.True(t, usesBaseURL("ollama"))
	assert.False(t, usesBaseURL("anthropic"))
}

func TestIsTerminal_NonFile(t *testing.T) {
	require.False(t, isTerminal(strings.NewReader("")))
}
