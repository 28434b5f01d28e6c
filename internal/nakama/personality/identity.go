package personality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrMalformedIdentity is returned when generator output lacks a usable
// Name or Summary line.
var ErrMalformedIdentity = errors.New("personality: malformed identity output")

// Identity is a generated persona name and one-line summary.
type Identity struct {
	Name    string
	Summary string
}

// IdentityGenerator synthesises a persona identity from its traits and the
// behaviour fragments they produce.
type IdentityGenerator interface {
	GenerateIdentity(ctx context.Context, traits map[string]Trait, fragments []string) (Identity, error)
}

// RegenerateIdentity replaces Name and Description with a freshly generated
// identity. Failures are logged and leave the persona untouched. It reports
// whether the identity changed.
func (p *Personality) RegenerateIdentity(ctx context.Context, gen IdentityGenerator, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}
	if gen == nil {
		logger.Debug("personality: no identity generator configured; keeping identity", "name", p.Name)
		return false
	}
	id, err := gen.GenerateIdentity(ctx, p.Traits, p.BehaviorFragments())
	if err != nil {
		logger.Warn("personality: identity regeneration failed; keeping current identity",
			"name", p.Name, "err", err)
		return false
	}
	if id.Name == "" || id.Summary == "" {
		logger.Warn("personality: identity generator returned empty fields; keeping current identity",
			"name", p.Name)
		return false
	}
	p.Name = id.Name
	p.Description = id.Summary
	return true
}

// TextCompleter is the single-turn completion capability used by
// LLMIdentityGenerator.
type TextCompleter interface {
	CompleteText(ctx context.Context, system, user string) (string, error)
}

const identitySystemPrompt = "You are a personality psychology expert who specializes in creating concise, insightful personality profiles."

// LLMIdentityGenerator asks a language model for a short persona name and
// summary and parses its "Name: … / Summary: …" answer.
type LLMIdentityGenerator struct {
	Completer TextCompleter
}

// NewLLMIdentityGenerator wraps c.
func NewLLMIdentityGenerator(c TextCompleter) *LLMIdentityGenerator {
	return &LLMIdentityGenerator{Completer: c}
}

// GenerateIdentity implements IdentityGenerator.
func (g *LLMIdentityGenerator) GenerateIdentity(ctx context.Context, traits map[string]Trait, fragments []string) (Identity, error) {
	out, err := g.Completer.CompleteText(ctx, identitySystemPrompt, IdentityPrompt(traits, fragments))
	if err != nil {
		return Identity{}, fmt.Errorf("personality: generate identity: %w", err)
	}
	return ParseIdentity(out)
}

// IdentityPrompt renders the user prompt for identity generation.
func IdentityPrompt(traits map[string]Trait, fragments []string) string {
	var b strings.Builder
	b.WriteString("Given this personality profile and its associated behaviors:\n\nPersonality Traits:\n")
	levels := BehaviorLevels(traits)
	for _, name := range append(BaseTraits(), Proactivity) {
		comps, ok := levels[name]
		if !ok {
			continue
		}
		if c := Components(name); len(c) > 0 {
			parts := make([]string, 0, len(c))
			for _, comp := range c {
				parts = append(parts, titleCase(comp)+": "+string(comps[comp]))
			}
			fmt.Fprintf(&b, "- %s: %s\n", titleCase(name), strings.Join(parts, ", "))
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", titleCase(name), comps[""])
	}
	b.WriteString("\nBehavioral Expressions:\n")
	for _, f := range fragments {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteByte('\n')
	}
	b.WriteString(`
Please provide:
1. A memorable 1-2 word name that captures the essence of this personality type
2. A very brief (15-20 words) summary of this personality type

Format your response as:
Name: [name]
Summary: [summary]`)
	return b.String()
}

// ParseIdentity extracts the Name and Summary fields from generator output.
// Labels are matched case-insensitively and markdown emphasis is stripped.
func ParseIdentity(text string) (Identity, error) {
	lower := strings.ToLower(text)
	ni := strings.Index(lower, "name:")
	si := strings.Index(lower, "summary:")
	if ni < 0 || si < 0 || si < ni {
		return Identity{}, ErrMalformedIdentity
	}
	id := Identity{
		Name:    cleanField(text[ni+len("name:") : si]),
		Summary: cleanField(text[si+len("summary:"):]),
	}
	if id.Name == "" || id.Summary == "" {
		return Identity{}, ErrMalformedIdentity
	}
	return id, nil
}

func cleanField(s string) string {
	return strings.Trim(strings.TrimSpace(s), "*\"' \n\t")
}

func titleCase(snake string) string {
	words := strings.Split(snake, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
