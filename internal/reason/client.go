// Package reason calls the reasoning model that turns an email into a
// calendar artifact plus a reply summary, and extracts the structured
// result out of the model's free-form output.
package reason

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 8192
	apiURL           = "https://api.anthropic.com/v1/messages"
	apiVersion       = "2023-06-01"
)

// Client communicates with the Claude Messages API.
type Client struct {
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
	logger    zerolog.Logger
}

// NewClient creates a reasoning client. The timeout covers the whole
// request so a slow model call cannot stall the pipeline indefinitely.
func NewClient(apiKey, modelName string, maxTokens int, timeout time.Duration, logger zerolog.Logger) *Client {
	if modelName == "" {
		modelName = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		apiKey:    apiKey,
		model:     modelName,
		maxTokens: maxTokens,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "reasoner").Logger(),
	}
}

// Complete sends a single-turn prompt and returns the model's text
// output. Transport errors, timeouts, and API errors are returned to
// the caller for classification.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := apiRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []apiMessage{
			{
				Role: "user",
				Content: []apiContentBlock{
					{Type: "text", Text: prompt},
				},
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, apiURL, bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling reasoning API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	var textParts []string
	for _, block := range result.Content {
		if block.Type == "text" {
			textParts = append(textParts, block.Text)
		}
	}
	text := strings.Join(textParts, "")

	c.logger.Debug().
		Int("chars", len(text)).
		Dur("duration", time.Since(start)).
		Msg("reasoning call completed")

	return text, nil
}

// --- Claude API types ---

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string            `json:"role"`
	Content []apiContentBlock `json:"content"`
}

type apiContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []apiContentBlock `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
