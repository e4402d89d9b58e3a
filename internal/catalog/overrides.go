package catalog

import (
	"github.com/xamun-dev/xamun/internal/models"
	"github.com/xamun-dev/xamun/internal/utils"
)

// OverridesVersion identifies the revision of the cache pricing table. Bump it
// whenever an entry changes.
const OverridesVersion = 1

// cachePricing holds per-million-token prompt cache prices.
type cachePricing struct {
	Writes float64
	Reads  float64
}

// cachePricingOverrides lists models whose prompt cache support and prices are
// known out of band. The registry does not report cache pricing.
var cachePricingOverrides = map[string]cachePricing{
	"anthropic/claude-3.5-sonnet":      {Writes: 3.75, Reads: 0.3},
	"anthropic/claude-3.5-sonnet:beta": {Writes: 3.75, Reads: 0.3},
	"anthropic/claude-3-opus":          {Writes: 18.75, Reads: 1.5},
	"anthropic/claude-3-opus:beta":     {Writes: 18.75, Reads: 1.5},
	"anthropic/claude-3-haiku":         {Writes: 0.3, Reads: 0.03},
	"anthropic/claude-3-haiku:beta":    {Writes: 0.3, Reads: 0.03},
}

// applyOverrides sets prompt cache support and prices for known models. Other
// models keep SupportsPromptCache=false.
func applyOverrides(id string, info *models.ModelInfo) {
	o, ok := cachePricingOverrides[id]
	if !ok {
		return
	}
	info.SupportsPromptCache = true
	info.CacheWritesPrice = utils.Ptr(o.Writes)
	info.CacheReadsPrice = utils.Ptr(o.Reads)
}
