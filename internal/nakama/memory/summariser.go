package memory

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformedDigest is returned when summariser output is not a JSON object
// matching the digest schema.
var ErrMalformedDigest = errors.New("memory: malformed digest")

// summariserSystemPrompt asks for the structured digest the manager stores.
const summariserSystemPrompt = `Analyze the conversation and create a structured summary with the following format:
{
    "summary": "Brief overview of the conversation",
    "insights": ["Key insight 1", "Key insight 2", ...],
    "key_points": ["Important point 1", "Important point 2", ...],
    "participants": ["participant1", "participant2", ...]
}`

// TextCompleter is the single-turn completion capability used by
// LLMSummariser.
type TextCompleter interface {
	CompleteText(ctx context.Context, system, user string) (string, error)
}

//go:embed schema/digest.schema.json
var digestSchemaJSON string

var digestSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("digest.schema.json", digestSchemaJSON)
})

// LLMSummariser implements Summariser by asking a language model for a JSON
// digest and validating it against the embedded schema.
type LLMSummariser struct {
	completer TextCompleter
}

// NewLLMSummariser wraps c.
func NewLLMSummariser(c TextCompleter) *LLMSummariser {
	return &LLMSummariser{completer: c}
}

// Summarise implements Summariser.
func (s *LLMSummariser) Summarise(ctx context.Context, transcript string) (*Digest, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, nil
	}
	out, err := s.completer.CompleteText(ctx, summariserSystemPrompt, "Here is the conversation:\n"+transcript)
	if err != nil {
		return nil, fmt.Errorf("memory: summarise: %w", err)
	}
	return ParseDigest(out)
}

// ParseDigest decodes and validates summariser output. Markdown code fences
// around the JSON are tolerated.
func ParseDigest(text string) (*Digest, error) {
	body := stripFences(text)
	if body == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedDigest)
	}

	schema, err := digestSchema()
	if err != nil {
		return nil, fmt.Errorf("memory: compile digest schema: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDigest, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDigest, err)
	}

	var d Digest
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDigest, err)
	}
	return &d, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// NoopSummariser never produces a digest, so compaction never succeeds and
// the short-term buffer simply slides.
type NoopSummariser struct {
	logger *slog.Logger
}

// NewNoopSummariser creates a NoopSummariser that logs skipped compactions at
// DEBUG level. If logger is nil, the default slog logger is used.
func NewNoopSummariser(logger *slog.Logger) *NoopSummariser {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopSummariser{logger: logger}
}

// Summarise implements Summariser.
func (n *NoopSummariser) Summarise(_ context.Context, transcript string) (*Digest, error) {
	n.logger.Debug("summariser noop: skipping compaction", "transcript_len", len(transcript))
	return nil, nil
}

// Compile-time interface satisfaction checks.
var (
	_ Summariser = (*LLMSummariser)(nil)
	_ Summariser = (*NoopSummariser)(nil)
)
