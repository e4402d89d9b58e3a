package models

// ModelInfo describes a model's capabilities and pricing. Prices are in
// dollars per million tokens.
type ModelInfo struct {
	MaxTokens           int      `json:"maxTokens,omitempty"`
	ContextWindow       int      `json:"contextWindow,omitempty"`
	SupportsImages      bool     `json:"supportsImages"`
	SupportsPromptCache bool     `json:"supportsPromptCache"`
	InputPrice          *float64 `json:"inputPrice,omitempty"`
	OutputPrice         *float64 `json:"outputPrice,omitempty"`
	CacheWritesPrice    *float64 `json:"cacheWritesPrice,omitempty"`
	CacheReadsPrice     *float64 `json:"cacheReadsPrice,omitempty"`
	Description         string   `json:"description,omitempty"`
}

// Catalog maps a model identifier to its metadata.
type Catalog map[string]ModelInfo
