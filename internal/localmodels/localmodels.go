// Package localmodels lists the models served by a local Ollama-compatible
// registry.
package localmodels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is queried when the caller does not name a registry.
const DefaultBaseURL = "http://localhost:11434"

const tagsPath = "/api/tags"

// Registry queries a local model registry.
type Registry struct {
	client *http.Client
	logger *slog.Logger
}

// NewRegistry creates a Registry. A nil client uses http.DefaultClient.
func NewRegistry(client *http.Client, logger *slog.Logger) *Registry {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{client: client, logger: logger}
}

// List returns the distinct model names served at baseURL, in the order the
// registry reports them. An empty baseURL queries DefaultBaseURL. Invalid URLs
// and transport or decoding failures yield an empty list.
func (p *Registry) List(ctx context.Context, baseURL string) []string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		p.logger.Debug("ignoring invalid local registry url", "url", baseURL)
		return []string{}
	}

	names, err := p.fetch(ctx, strings.TrimRight(baseURL, "/")+tagsPath)
	if err != nil {
		p.logger.Debug("querying local registry", "url", baseURL, "error", err)
		return []string{}
	}
	return names
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (p *Registry) fetch(ctx context.Context, endpoint string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned %s", resp.Status)
	}

	var body tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}

	seen := make(map[string]bool, len(body.Models))
	names := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		if m.Name == "" || seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		names = append(names, m.Name)
	}
	return names, nil
}
