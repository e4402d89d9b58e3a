package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigSchema_UniqueKeys(t *testing.T) {
	seen := map[string]bool{}
	for _, f := range ConfigSchema {
		require.False(t, seen[f.Key], "duplicate key %s", f.Key)
		seen[f.Key] = true
	}
}

func TestConfigSchema_MatchesJSONTags(t *testing.T) {
	cfg := APIConfiguration{}
	for _, f := range ConfigSchema {
		f.Set(&cfg, "v-"+f.Key)
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(data, &fields))

	require.Len(t, fields, len(ConfigSchema))
	for _, f := range ConfigSchema {
		assert.Equal(t, "v-"+f.Key, fields[f.Key])
	}
}

func TestConfigSchema_Classification(t *testing.T) {
	tests := []struct {
		key  string
		want KeyClass
	}{
		{"apiKey", KeySecret},
		{"awsSecretKey", KeySecret},
		{"awsSessionToken", KeySecret},
		{"githubToken", KeySecret},
		{"awsRegion", KeyPlain},
		{"apiProvider", KeyPlain},
		// would have been a secret under substring matching
		{"tokenizerOverride", KeyPlain},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			f, ok := LookupConfigField(tt.key)
			require.True(t, ok)
			assert.Equal(t, tt.want, f.Class)
		})
	}

	_, ok := LookupConfigField("notAKey")
	assert.False(t, ok)
}

func TestAPIConfiguration_Redacted(t *testing.T) {
	cfg := APIConfiguration{
		APIProvider:  "copilot",
		APIKey:       "sk-secret",
		AWSRegion:    "us-east-1",
		AWSSecretKey: "aws-secret",
	}

	red := cfg.Redacted()

	assert.Equal(t, "copilot", red.APIProvider)
	assert.Equal(t, "us-east-1", red.AWSRegion)
	assert.Empty(t, red.APIKey)
	assert.Empty(t, red.AWSSecretKey)
	// original untouched
	assert.Equal(t, "sk-secret", cfg.APIKey)
}

func TestAPIMessage_Text(t *testing.T) {
	msg := NewTextMessage(RoleUser, "hello")
	assert.Equal(t, "hello", msg.Text())

	blocks := APIMessage{
		Role:    RoleAssistant,
		Content: json.RawMessage(`[{"type":"text","text":"one"},{"type":"image"},{"type":"text","text":"two"}]`),
	}
	assert.Equal(t, "one\ntwo", blocks.Text())

	bad := APIMessage{Role: RoleAssistant, Content: json.RawMessage(`42`)}
	assert.Empty(t, bad.Text())
}
