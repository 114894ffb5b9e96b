// Package classifier holds the HTTP clients for the external scoring
// services: the free baseline NSFW endpoint, the paid multi-model premium
// endpoint and the object/label detection endpoint. All clients fail with
// wrapped errors; the pipeline treats those as "no match" so a classifier
// outage never blocks normal message flow.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BasicScores are the four category scores returned by the baseline NSFW
// classifier.
type BasicScores struct {
	Sexy    float64 `json:"sexy"`
	Porn    float64 `json:"porn"`
	Drawing float64 `json:"drawing"`
	Hentai  float64 `json:"hentai"`
	Neutral float64 `json:"neutral"`
	Error   string  `json:"error,omitempty"`
}

// BasicClient calls the baseline NSFW classification endpoint.
type BasicClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBasicClient creates a new baseline NSFW client.
func NewBasicClient(baseURL string) *BasicClient {
	return &BasicClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Classify uploads the raw image bytes and returns the category scores
// together with the raw response body for caching.
func (c *BasicClient) Classify(ctx context.Context, content []byte) (*BasicScores, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(content))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("basic NSFW API returned status %d: %s", resp.StatusCode, string(body))
	}

	var scores BasicScores
	if err := json.Unmarshal(body, &scores); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if scores.Error != "" {
		return nil, nil, fmt.Errorf("basic NSFW API error: %s", scores.Error)
	}
	return &scores, body, nil
}

// ParseBasicScores decodes a cached response body.
func ParseBasicScores(raw []byte) (*BasicScores, error) {
	var scores BasicScores
	if err := json.Unmarshal(raw, &scores); err != nil {
		return nil, fmt.Errorf("failed to decode cached scores: %w", err)
	}
	return &scores, nil
}
