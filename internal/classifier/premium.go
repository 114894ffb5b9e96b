package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrImageTooSmall is returned when the premium endpoint rejects the image
// for being below its minimum dimensions. The stage upsamples once and
// retries on this error; any other failure is terminal for the call.
var ErrImageTooSmall = errors.New("premium API: image too small")

// imageTooSmallCode is the provider's error code for undersized media.
const imageTooSmallCode = 32

// PremiumClient calls the paid multi-model classification endpoint.
type PremiumClient struct {
	baseURL     string
	feedbackURL string
	username    string
	password    string
	httpClient  *http.Client
}

// NewPremiumClient creates a new premium classification client.
func NewPremiumClient(baseURL, feedbackURL, username, password string) *PremiumClient {
	return &PremiumClient{
		baseURL:     baseURL,
		feedbackURL: feedbackURL,
		username:    username,
		password:    password,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type premiumError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type premiumEnvelope struct {
	Status string        `json:"status"`
	Error  *premiumError `json:"error,omitempty"`
}

// Classify uploads the image with the requested model list and returns the
// decoded response document. Only the models in modelNames are billed and
// returned; callers pass the subset not already cached.
func (c *PremiumClient) Classify(ctx context.Context, content []byte, modelNames []string) (map[string]any, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("media", "image")
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	for field, value := range map[string]string{
		"models":     strings.Join(modelNames, ","),
		"api_user":   c.username,
		"api_secret": c.password,
	} {
		if err := w.WriteField(field, value); err != nil {
			return nil, fmt.Errorf("failed to build multipart body: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var envelope premiumEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("premium API returned status %d: %s", resp.StatusCode, string(body))
	}
	if envelope.Status != "success" {
		if envelope.Error != nil && envelope.Error.Code == imageTooSmallCode {
			return nil, ErrImageTooSmall
		}
		if envelope.Error != nil {
			return nil, fmt.Errorf("premium API error %d: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return nil, fmt.Errorf("premium API status was: %s", envelope.Status)
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return doc, nil
}

// Feedback reports a moderator verdict on a premium match back to the
// provider: class is the matched category and correct records whether the
// match was good or a false positive.
func (c *PremiumClient) Feedback(ctx context.Context, modelName, class string, correct bool) error {
	if c.feedbackURL == "" {
		return nil
	}
	form := url.Values{
		"model":      {modelName},
		"class":      {class},
		"correct":    {fmt.Sprintf("%t", correct)},
		"api_user":   {c.username},
		"api_secret": {c.password},
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.feedbackURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("feedback endpoint returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
