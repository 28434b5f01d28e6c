package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel     = "claude-3-5-haiku-latest"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicConfig configures the Anthropic Messages client.
type AnthropicConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint. Empty uses the SDK default.
	BaseURL string
	// Model defaults to claude-3-5-haiku-latest.
	Model string
	// MaxRetries is passed to the SDK. Negative disables retries.
	MaxRetries int
}

// AnthropicClient implements Client with the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClient creates an AnthropicClient.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries != 0 {
		opts = append(opts, option.WithMaxRetries(max(cfg.MaxRetries, 0)))
	}
	opts = append(opts, option.WithRequestTimeout(defaultClientTimeout))
	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
	}
}

// Complete implements Client. System messages are lifted into the system
// prompt; user turns carrying a name are prefixed with it; consecutive turns
// with the same role are merged.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (string, error) {
	system, turns := splitForAnthropic(req.Messages)
	if len(turns) == 0 {
		return "", fmt.Errorf("llm: anthropic: request has no user or assistant turns")
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		Messages:    make([]anthropic.MessageParam, 0, len(turns)),
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
			continue
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %v", ErrRateLimit, err)
		}
		return "", fmt.Errorf("llm: anthropic: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// splitForAnthropic separates system content from the dialogue and shapes
// the dialogue into strictly alternating turns starting with a user turn.
func splitForAnthropic(msgs []Message) (system []string, turns []Message) {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		role, content := RoleUser, m.Content
		if m.Role == RoleAssistant {
			role = RoleAssistant
		} else if m.Name != "" {
			content = m.Name + ": " + content
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content += "\n" + content
			continue
		}
		turns = append(turns, Message{Role: role, Content: content})
	}
	if len(turns) > 0 && turns[0].Role == RoleAssistant {
		turns = append([]Message{{Role: RoleUser, Content: "(conversation so far)"}}, turns...)
	}
	return system, turns
}

// Compile-time interface satisfaction check.
var _ Client = (*AnthropicClient)(nil)
