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

// Label is one detected object/scene label with its confidence score.
type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// LabelClient calls the object-detection endpoint.
type LabelClient struct {
	baseURL    string
	key        string
	httpClient *http.Client
}

// NewLabelClient creates a new object-detection client.
func NewLabelClient(baseURL, key string) *LabelClient {
	return &LabelClient{
		baseURL: baseURL,
		key:     key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Detect uploads the raw image bytes and returns the detected labels
// together with the raw response body for caching.
func (c *LabelClient) Detect(ctx context.Context, content []byte) ([]Label, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(content))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

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
		return nil, nil, fmt.Errorf("label API returned status %d: %s", resp.StatusCode, string(body))
	}

	labels, err := ParseLabels(body)
	if err != nil {
		return nil, nil, err
	}
	return labels, body, nil
}

// ParseLabels decodes a label response body, cached or fresh.
func ParseLabels(raw []byte) ([]Label, error) {
	var labels []Label
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("failed to decode labels: %w", err)
	}
	return labels, nil
}
