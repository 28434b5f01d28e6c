package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bdobrica/nakama/common/retry"
)

const (
	defaultOpenAIBase    = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultClientTimeout = 30 * time.Second
)

// OpenAIConfig configures the OpenAI-compatible chat client.
type OpenAIConfig struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for local models (Ollama),
	// Azure OpenAI, or any other OpenAI-compatible endpoint.
	// Defaults to https://api.openai.com/v1 when empty.
	BaseURL string

	// Model is the chat model to use. Defaults to gpt-4o-mini.
	Model string

	// Timeout is the HTTP request timeout. Defaults to 30 s.
	Timeout time.Duration

	// Retry controls retries of transient failures (network errors, 429,
	// 5xx). Defaults to retry.DefaultConfig.
	Retry *retry.Config
}

// OpenAIClient implements Client against the OpenAI chat completions API.
type OpenAIClient struct {
	cfg    OpenAIConfig
	retry  retry.Config
	client *http.Client
}

// NewOpenAIClient returns a Client backed by the OpenAI (or compatible) chat
// API. The returned client is safe for concurrent use.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBase
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultClientTimeout
	}
	rc := retry.DefaultConfig
	if cfg.Retry != nil {
		rc = *cfg.Retry
	}
	return &OpenAIClient{
		cfg:    cfg,
		retry:  rc,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal OpenAI wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type oaiRequest struct {
	Model          string       `json:"model"`
	Messages       []oaiMessage `json:"messages"`
	Temperature    float64      `json:"temperature"`
	MaxTokens      int          `json:"max_tokens,omitempty"`
	ResponseFormat *oaiFormat   `json:"response_format,omitempty"`
}

type oaiFormat struct {
	Type string `json:"type"` // "json_object"
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	body := oaiRequest{
		Model:       c.cfg.Model,
		Messages:    make([]oaiMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, oaiMessage{
			Role:    m.Role,
			Content: m.Content,
			Name:    sanitiseName(m.Name),
		})
	}
	if req.JSON {
		body.ResponseFormat = &oaiFormat{Type: "json_object"}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	var out string
	err = retry.Do(ctx, c.retry, func() error {
		var callErr error
		out, callErr = c.do(ctx, data)
		return callErr
	})
	return out, err
}

func (c *OpenAIClient) do(ctx context.Context, data []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(data),
	)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("llm: create http request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", retry.After(fmt.Errorf("%w (HTTP 429)", ErrRateLimit), retryAfter(resp.Header))
	}

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("llm: unexpected HTTP status %d", resp.StatusCode)
		}
		return "", retry.Permanent(fmt.Errorf("llm: decode API response (HTTP %d): %w", resp.StatusCode, err))
	}

	if oaiResp.Error != nil {
		apiErr := fmt.Errorf("llm: API error (%s): %s", oaiResp.Error.Type, oaiResp.Error.Message)
		if resp.StatusCode >= 500 {
			return "", apiErr
		}
		return "", retry.Permanent(apiErr)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("llm: unexpected HTTP status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", retry.Permanent(fmt.Errorf("llm: unexpected HTTP status %d", resp.StatusCode))
	}

	if len(oaiResp.Choices) == 0 {
		return "", retry.Permanent(fmt.Errorf("%w: no choices returned", ErrEmptyResponse))
	}
	content := strings.TrimSpace(oaiResp.Choices[0].Message.Content)
	if content == "" {
		return "", retry.Permanent(ErrEmptyResponse)
	}
	return content, nil
}

// retryAfter parses a Retry-After header given in seconds. Zero means
// absent or unparsable.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// sanitiseName maps a display name onto the API's name pattern
// ^[a-zA-Z0-9_-]{1,64}$.
func sanitiseName(name string) string {
	if name == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteByte('_')
		}
		if b.Len() >= 64 {
			break
		}
	}
	return b.String()
}

// Compile-time interface satisfaction check.
var _ Client = (*OpenAIClient)(nil)
