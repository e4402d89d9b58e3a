package models

import "fmt"

// KeyClass says where a configuration key is persisted.
type KeyClass int

const (
	// KeyPlain values are stored with the rest of the global state.
	KeyPlain KeyClass = iota
	// KeySecret values are stored in the secret store and never leave the
	// host in a state snapshot.
	KeySecret
)

func (c KeyClass) String() string {
	switch c {
	case KeyPlain:
		return "plain"
	case KeySecret:
		return "secret"
	default:
		return fmt.Sprintf("KeyClass(%d)", int(c))
	}
}

// APIConfiguration holds the provider settings used to build a task executor.
type APIConfiguration struct {
	APIProvider       string `json:"apiProvider,omitempty" mapstructure:"apiProvider"`
	APIModelID        string `json:"apiModelId,omitempty" mapstructure:"apiModelId"`
	APIKey            string `json:"apiKey,omitempty" mapstructure:"apiKey"`
	AnthropicBaseURL  string `json:"anthropicBaseUrl,omitempty" mapstructure:"anthropicBaseUrl"`
	OpenRouterAPIKey  string `json:"openRouterApiKey,omitempty" mapstructure:"openRouterApiKey"`
	AWSAccessKey      string `json:"awsAccessKey,omitempty" mapstructure:"awsAccessKey"`
	AWSSecretKey      string `json:"awsSecretKey,omitempty" mapstructure:"awsSecretKey"`
	AWSSessionToken   string `json:"awsSessionToken,omitempty" mapstructure:"awsSessionToken"`
	AWSRegion         string `json:"awsRegion,omitempty" mapstructure:"awsRegion"`
	VertexProjectID   string `json:"vertexProjectId,omitempty" mapstructure:"vertexProjectId"`
	VertexRegion      string `json:"vertexRegion,omitempty" mapstructure:"vertexRegion"`
	OpenAIBaseURL     string `json:"openAiBaseUrl,omitempty" mapstructure:"openAiBaseUrl"`
	OpenAIAPIKey      string `json:"openAiApiKey,omitempty" mapstructure:"openAiApiKey"`
	OpenAIModelID     string `json:"openAiModelId,omitempty" mapstructure:"openAiModelId"`
	OllamaModelID     string `json:"ollamaModelId,omitempty" mapstructure:"ollamaModelId"`
	OllamaBaseURL     string `json:"ollamaBaseUrl,omitempty" mapstructure:"ollamaBaseUrl"`
	GitHubToken       string `json:"githubToken,omitempty" mapstructure:"githubToken"`
	TokenizerOverride string `json:"tokenizerOverride,omitempty" mapstructure:"tokenizerOverride"`
}

// ConfigField binds a configuration key to its storage class and struct field.
type ConfigField struct {
	Key   string
	Class KeyClass
	field func(*APIConfiguration) *string
}

// Get returns the field's value in c.
func (f ConfigField) Get(c *APIConfiguration) string {
	return *f.field(c)
}

// Set stores v in the field of c.
func (f ConfigField) Set(c *APIConfiguration, v string) {
	*f.field(c) = v
}

// ConfigSchema lists every APIConfiguration key with its storage class.
// Classification is explicit: a key is secret only because it is listed as
// such here, never because of how it is spelled ("tokenizerOverride" is plain).
var ConfigSchema = []ConfigField{
	{"apiProvider", KeyPlain, func(c *APIConfiguration) *string { return &c.APIProvider }},
	{"apiModelId", KeyPlain, func(c *APIConfiguration) *string { return &c.APIModelID }},
	{"apiKey", KeySecret, func(c *APIConfiguration) *string { return &c.APIKey }},
	{"anthropicBaseUrl", KeyPlain, func(c *APIConfiguration) *string { return &c.AnthropicBaseURL }},
	{"openRouterApiKey", KeySecret, func(c *APIConfiguration) *string { return &c.OpenRouterAPIKey }},
	{"awsAccessKey", KeySecret, func(c *APIConfiguration) *string { return &c.AWSAccessKey }},
	{"awsSecretKey", KeySecret, func(c *APIConfiguration) *string { return &c.AWSSecretKey }},
	{"awsSessionToken", KeySecret, func(c *APIConfiguration) *string { return &c.AWSSessionToken }},
	{"awsRegion", KeyPlain, func(c *APIConfiguration) *string { return &c.AWSRegion }},
	{"vertexProjectId", KeyPlain, func(c *APIConfiguration) *string { return &c.VertexProjectID }},
	{"vertexRegion", KeyPlain, func(c *APIConfiguration) *string { return &c.VertexRegion }},
	{"openAiBaseUrl", KeyPlain, func(c *APIConfiguration) *string { return &c.OpenAIBaseURL }},
	{"openAiApiKey", KeySecret, func(c *APIConfiguration) *string { return &c.OpenAIAPIKey }},
	{"openAiModelId", KeyPlain, func(c *APIConfiguration) *string { return &c.OpenAIModelID }},
	{"ollamaModelId", KeyPlain, func(c *APIConfiguration) *string { return &c.OllamaModelID }},
	{"ollamaBaseUrl", KeyPlain, func(c *APIConfiguration) *string { return &c.OllamaBaseURL }},
	{"githubToken", KeySecret, func(c *APIConfiguration) *string { return &c.GitHubToken }},
	{"tokenizerOverride", KeyPlain, func(c *APIConfiguration) *string { return &c.TokenizerOverride }},
}

// LookupConfigField finds the schema entry for key.
func LookupConfigField(key string) (ConfigField, bool) {
	for _, f := range ConfigSchema {
		if f.Key == key {
			return f, true
		}
	}
	return ConfigField{}, false
}

// Redacted returns a copy of c with every secret field cleared.
func (c APIConfiguration) Redacted() APIConfiguration {
	out := c
	for _, f := range ConfigSchema {
		if f.Class == KeySecret {
			f.Set(&out, "")
		}
	}
	return out
}
