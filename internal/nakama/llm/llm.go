// Package llm provides the language-model clients behind the teammate's
// collaborators: an OpenAI-compatible chat client, an Anthropic Messages
// client, a read-through response cache, and adapters exposing them through
// the narrow interfaces the core packages declare.
package llm

import (
	"context"
	"errors"
)

// ErrRateLimit is returned when the upstream API reports a rate-limiting
// condition (HTTP 429).
var ErrRateLimit = errors.New("llm: upstream rate limit exceeded")

// ErrEmptyResponse is returned when the upstream API answers without any
// usable text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn. Name identifies the human speaker of a user turn
// and is empty otherwise.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Request is a single chat completion call.
type Request struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	// MaxTokens caps the completion length. Zero leaves the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
	// JSON asks the provider for a JSON object answer where supported.
	JSON bool `json:"json,omitempty"`
}

// Client completes chat requests. Implementations are safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
