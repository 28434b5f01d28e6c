package compose

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bdobrica/nakama/internal/nakama/llm"
	"github.com/bdobrica/nakama/internal/nakama/personality"
)

type stubGenerator struct {
	out         string
	err         error
	calls       int
	msgs        []llm.Message
	temperature float64
	maxTokens   int
}

func (s *stubGenerator) Generate(_ context.Context, msgs []llm.Message, temperature float64, maxTokens int) (string, error) {
	s.calls++
	s.msgs, s.temperature, s.maxTokens = msgs, temperature, maxTokens
	return s.out, s.err
}

func TestGenerate_PromptOrder(t *testing.T) {
	gen := &stubGenerator{out: "  Water first, then the mirror.  "}
	c := New(gen, nil)
	p := personality.Default()

	history := []llm.Message{
		{Role: llm.RoleSystem, Content: "Previous conversation summary:\nS"},
		{Role: llm.RoleUser, Content: "what first?", Name: "Alice"},
		{Role: llm.RoleAssistant, Content: "hmm"},
	}
	out, ok := c.Generate(context.Background(), p, "Rank the items.", history, Incoming{SpeakerName: "Bob", Text: "ideas?"})
	if !ok || out != "Water first, then the mirror." {
		t.Fatalf("Generate = %q, %v", out, ok)
	}
	if gen.temperature != 0.4 || gen.maxTokens != 50 {
		t.Errorf("sampling = %v/%d, want 0.4/50", gen.temperature, gen.maxTokens)
	}
	if len(gen.msgs) != 5 {
		t.Fatalf("messages = %d, want 5", len(gen.msgs))
	}

	system := gen.msgs[0].Content
	base := strings.Index(system, "You are a member of a team")
	task := strings.Index(system, "Current Task:\nRank the items.")
	mods := strings.Index(system, p.PromptModifiers())
	style := strings.Index(system, "Response Style:")
	if base != 0 || task <= base || mods <= task || style <= mods {
		t.Errorf("system prompt order wrong: base=%d task=%d mods=%d style=%d", base, task, mods, style)
	}
	for i, h := range history {
		if gen.msgs[i+1] != h {
			t.Errorf("context turn %d = %+v, want %+v", i, gen.msgs[i+1], h)
		}
	}
	last := gen.msgs[4]
	if last.Role != llm.RoleUser || last.Content != "ideas?" || last.Name != "Bob" {
		t.Errorf("final turn = %+v", last)
	}
}

func TestSystemPrompt_NoTask(t *testing.T) {
	if strings.Contains(SystemPrompt(personality.Default(), "  "), "Current Task:") {
		t.Error("blank task should be omitted")
	}
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name string
		gen  Generator
	}{
		{"error", &stubGenerator{err: errors.New("boom")}},
		{"empty", &stubGenerator{out: "   "}},
		{"nil generator", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := New(tt.gen, nil).Generate(context.Background(), personality.Default(), "", nil, Incoming{Text: "x"})
			if ok || out != "" {
				t.Errorf("Generate = %q, %v; want \"\", false", out, ok)
			}
		})
	}
}
