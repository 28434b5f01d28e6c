// Package compose builds the response prompt from persona, task and memory
// and asks a Generator for the teammate's next message.
package compose

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bdobrica/nakama/internal/nakama/llm"
)

// Sampling parameters for replies.
const (
	Temperature = 0.4
	MaxTokens   = 50
)

// Persona supplies the persona-dependent prompt blocks.
type Persona interface {
	PromptModifiers() string
	ResponseStyle() string
}

// Generator produces a reply for a prepared prompt.
type Generator interface {
	Generate(ctx context.Context, msgs []llm.Message, temperature float64, maxTokens int) (string, error)
}

// Incoming is the message being answered.
type Incoming struct {
	SpeakerName string
	Text        string
}

const basePrompt = `You are a member of a team participating in collaborative discussions.

Core Behaviors:
- You are a peer/colleague, not an assistant or service
- You have your own experiences and knowledge to share
- You are focused on collaborative problem-solving
- You aim to keep discussions productive and on-topic

Message Structure:
- Keep responses concise (1-2 sentences per point)
- Stay focused on the immediate discussion topic
- Cover one topic per message
- Maintain conversation flow through natural turn-taking
- Use a chat-appropriate messaging style

Discussion Approach:
- Share relevant knowledge when it adds value
- Consider practical aspects of suggestions
- Acknowledge constraints and trade-offs
- Keep solutions grounded in reality`

const closingReminder = "Remember: You're participating in a team chat where the goal is efficient collaboration and problem-solving."

const communicationApproach = `Communication Approach:
- Use 1-2 concise sentences per response
- Connect your thoughts to the ongoing discussion
- Stay on the current topic without jumping ahead
- Maintain a natural, peer-to-peer conversation style`

// SystemPrompt assembles the system turn: base prompt, task, persona block
// and response style.
func SystemPrompt(persona Persona, task string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	if t := strings.TrimSpace(task); t != "" {
		b.WriteString("\n\nCurrent Task:\n")
		b.WriteString(t)
	}
	b.WriteString("\n\n")
	b.WriteString(closingReminder)
	if persona != nil {
		b.WriteString("\n\n")
		b.WriteString(persona.PromptModifiers())
		if style := persona.ResponseStyle(); style != "" {
			b.WriteString("\n\n")
			b.WriteString(style)
		}
	}
	b.WriteString("\n\n")
	b.WriteString(communicationApproach)
	return b.String()
}

// BuildMessages renders the full generation request.
func BuildMessages(persona Persona, task string, history []llm.Message, in Incoming) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(persona, task)})
	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: in.Text, Name: in.SpeakerName})
	return msgs
}

// Composer generates teammate replies.
type Composer struct {
	gen    Generator
	logger *slog.Logger
}

// New creates a Composer.
func New(gen Generator, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{gen: gen, logger: logger}
}

// Generate returns the reply and true, or ("", false) when the generator
// fails or answers with nothing. It has no side effects.
func (c *Composer) Generate(ctx context.Context, persona Persona, task string, history []llm.Message, in Incoming) (string, bool) {
	if c.gen == nil {
		c.logger.Warn("compose: no generator configured")
		return "", false
	}
	out, err := c.gen.Generate(ctx, BuildMessages(persona, task, history, in), Temperature, MaxTokens)
	if err != nil {
		c.logger.Warn("compose: generation failed", "err", err)
		return "", false
	}
	out = strings.TrimSpace(out)
	if out == "" {
		c.logger.Warn("compose: generator returned empty text")
		return "", false
	}
	c.logger.Debug("compose: reply generated", "len", len(out))
	return out, true
}
