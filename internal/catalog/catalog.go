// Package catalog keeps an on-disk copy of the remote model registry.
//
// Read serves the last fetched catalog without touching the network. Refresh
// fetches the registry, normalizes each entry, applies the cache pricing
// overrides and replaces the cache file. Refresh never leaves a partially
// written file behind: the cache is either the previous catalog or the new one.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/xamun-dev/xamun/internal/models"
	"github.com/xamun-dev/xamun/internal/utils"
	"golang.org/x/sync/singleflight"
)

// FileName is the cache file inside the cache directory.
const FileName = "openrouter_models.json"

// priceScale converts the registry's per-token price into a per-million-tokens
// price.
const priceScale = 1_000_000

// Cache provides read and refresh access to the cached model catalog.
type Cache struct {
	dir    string
	url    string
	client *http.Client
	logger *slog.Logger

	mu    sync.Mutex
	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithHTTPClient sets the client used to fetch the registry.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) { c.client = client }
}

// WithLogger sets the logger for refresh failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates a cache stored in dir, refreshed from registryURL.
func New(dir, registryURL string, opts ...Option) *Cache {
	c := &Cache{
		dir:    dir,
		url:    registryURL,
		client: http.DefaultClient,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return filepath.Join(c.dir, FileName)
}

// Read returns the cached catalog. A missing or malformed cache file reports
// ok=false.
func (c *Cache) Read() (models.Catalog, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.readLocked()
}

func (c *Cache) readLocked() (models.Catalog, bool) {
	data, err := os.ReadFile(c.Path())
	if err != nil {
		return nil, false
	}

	var cat models.Catalog
	if err := json.Unmarshal(data, &cat); err != nil || cat == nil {
		// Invalid cache entry, treat as miss
		return nil, false
	}
	return cat, true
}

// Refresh fetches the registry and replaces the cache file. It always returns
// the catalog that should be broadcast: the fresh one on success, otherwise
// the previous cache or an empty catalog. The error reports why the refresh
// failed and is informational only.
//
// Concurrent calls share a single fetch.
func (c *Cache) Refresh(ctx context.Context) (models.Catalog, error) {
	type result struct {
		cat models.Catalog
		err error
	}
	v, _, _ := c.group.Do("refresh", func() (any, error) {
		cat, err := c.refresh(ctx)
		return result{cat, err}, nil
	})
	r := v.(result)
	return r.cat, r.err
}

func (c *Cache) refresh(ctx context.Context) (models.Catalog, error) {
	cat, err := c.fetch(ctx)
	if err == nil {
		err = c.write(cat)
	}
	if err != nil {
		c.logger.Error("refreshing model catalog", "url", c.url, "error", err)

		c.mu.Lock()
		prior, ok := c.readLocked()
		c.mu.Unlock()
		if !ok {
			prior = models.Catalog{}
		}
		return prior, err
	}

	c.logger.Debug("model catalog refreshed", "entries", len(cat))
	return cat, nil
}

func (c *Cache) write(cat models.Catalog) error {
	data, err := json.Marshal(cat)
	if err != nil {
		return fmt.Errorf("marshaling catalog: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := utils.WriteFileAtomic(c.Path(), data, 0o644); err != nil {
		return fmt.Errorf("writing catalog cache: %w", err)
	}
	return nil
}

func (c *Cache) fetch(ctx context.Context) (models.Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching registry: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned %s", resp.Status)
	}

	var body registryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding registry response: %w", err)
	}
	if body.Data == nil {
		return nil, errors.New("invalid registry response: missing data")
	}

	cat := make(models.Catalog, len(body.Data))
	for _, raw := range body.Data {
		if raw.ID == "" {
			continue
		}
		info := raw.toModelInfo()
		applyOverrides(raw.ID, &info)
		cat[raw.ID] = info
	}
	return cat, nil
}

type registryResponse struct {
	Data []registryModel `json:"data"`
}

type registryModel struct {
	ID            string `json:"id"`
	Description   string `json:"description"`
	ContextLength int    `json:"context_length"`
	Architecture  struct {
		Modality string `json:"modality"`
	} `json:"architecture"`
	Pricing struct {
		Prompt     price `json:"prompt"`
		Completion price `json:"completion"`
	} `json:"pricing"`
	TopProvider struct {
		MaxCompletionTokens int `json:"max_completion_tokens"`
	} `json:"top_provider"`
}

func (m registryModel) toModelInfo() models.ModelInfo {
	return models.ModelInfo{
		MaxTokens:      m.TopProvider.MaxCompletionTokens,
		ContextWindow:  m.ContextLength,
		SupportsImages: strings.Contains(m.Architecture.Modality, "image"),
		InputPrice:     m.Pricing.Prompt.perMillion(),
		OutputPrice:    m.Pricing.Completion.perMillion(),
		Description:    m.Description,
	}
}

// price is a registry price. The registry sends decimal strings; plain JSON
// numbers are accepted too. Empty or unparseable values leave the price unset.
type price struct {
	value *float64
}

func (p *price) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	p.value = &f
	return nil
}

func (p price) perMillion() *float64 {
	if p.value == nil {
		return nil
	}
	return utils.Ptr(*p.value * priceScale)
}
