// Package openrouter exchanges OpenRouter OAuth codes for API keys.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// DefaultKeysURL is the OpenRouter endpoint that trades an authorization
// code for a key.
const DefaultKeysURL = "https://openrouter.ai/api/v1/auth/keys"

// ErrInvalidResponse is returned when the endpoint answers without a key.
var ErrInvalidResponse = errors.New("invalid response from OpenRouter")

// KeyExchanger trades authorization codes for API keys.
type KeyExchanger struct {
	url    string
	client *http.Client
}

// NewKeyExchanger creates a KeyExchanger posting to url. An empty url uses
// DefaultKeysURL and a nil client uses http.DefaultClient.
func NewKeyExchanger(url string, client *http.Client) *KeyExchanger {
	if url == "" {
		url = DefaultKeysURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &KeyExchanger{url: url, client: client}
}

type keysRequest struct {
	Code string `json:"code"`
}

type keysResponse struct {
	Key string `json:"key"`
}

// Exchange posts code and returns the key from the response.
func (k *KeyExchanger) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", errors.New("authorization code is empty")
	}
	body, err := json.Marshal(keysRequest{Code: code})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building key request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchanging code: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("key endpoint returned %s", resp.Status)
	}

	var out keysResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding key response: %w", err)
	}
	if out.Key == "" {
		return "", ErrInvalidResponse
	}
	return out.Key, nil
}
