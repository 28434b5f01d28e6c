// Package decision implements turn-taking: whether the teammate should reply
// to the latest message at all, and how long to "type" before it does.
package decision

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bdobrica/nakama/internal/nakama/llm"
)

// PromptSource supplies the persona block shared with response generation.
type PromptSource interface {
	PromptModifiers() string
}

// Decider answers a prepared decision prompt with free text expected to
// begin with "Respond:" or "Don't respond:".
type Decider interface {
	Decide(ctx context.Context, msgs []llm.Message) (string, error)
}

// Verdict is the outcome of one turn-taking decision.
type Verdict struct {
	Respond bool
	Reason  string
	// FailOpen is set when the decider failed and the engine defaulted to
	// responding.
	FailOpen bool
	// Throttled is set when the room's cooldown suppressed the decision.
	Throttled bool
}

// Config wires an Engine.
type Config struct {
	Decider Decider
	Logger  *slog.Logger

	// CooldownWindow and CooldownLimit cap how often a room gets a reply.
	// A zero window disables the cooldown.
	CooldownWindow time.Duration
	CooldownLimit  int

	// Rand drives typing delays. Defaults to a time-seeded source.
	Rand *rand.Rand

	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine makes turn-taking decisions. It is safe for concurrent use across
// rooms.
type Engine struct {
	decider  Decider
	logger   *slog.Logger
	cooldown *Cooldown
	now      func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewEngine creates an Engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		cfg.Rand = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		decider:  cfg.Decider,
		logger:   cfg.Logger,
		cooldown: NewCooldown(cfg.CooldownLimit, cfg.CooldownWindow),
		now:      cfg.Now,
		rand:     cfg.Rand,
	}
}

// ShouldRespond reports whether the teammate should reply to latest.
func (e *Engine) ShouldRespond(ctx context.Context, roomID string, persona PromptSource, history []llm.Message, latest string) bool {
	return e.Evaluate(ctx, roomID, persona, history, latest).Respond
}

// Evaluate runs the decision and returns the full verdict. Decider errors and
// empty answers fail open.
func (e *Engine) Evaluate(ctx context.Context, roomID string, persona PromptSource, history []llm.Message, latest string) Verdict {
	if !e.cooldown.Allowed(roomID, e.now()) {
		e.logger.Info("decision: room in cooldown; not responding", "room_id", roomID)
		return Verdict{Respond: false, Reason: "cooldown", Throttled: true}
	}

	var modifiers string
	if persona != nil {
		modifiers = persona.PromptModifiers()
	}

	v := e.ask(ctx, roomID, BuildPrompt(modifiers, history, latest))
	if v.Respond {
		e.cooldown.Record(roomID, e.now())
	}
	return v
}

func (e *Engine) ask(ctx context.Context, roomID string, prompt []llm.Message) Verdict {
	if e.decider == nil {
		e.logger.Warn("decision: no decider configured; responding", "room_id", roomID)
		return Verdict{Respond: true, FailOpen: true}
	}
	answer, err := e.decider.Decide(ctx, prompt)
	if err != nil {
		e.logger.Warn("decision: decider failed; responding by default",
			"room_id", roomID, "err", err)
		return Verdict{Respond: true, FailOpen: true}
	}
	if answer == "" {
		e.logger.Warn("decision: empty decider answer; responding by default", "room_id", roomID)
		return Verdict{Respond: true, FailOpen: true}
	}

	respond, reason := ParseVerdict(answer)
	e.logger.Info("decision made", "room_id", roomID, "respond", respond, "reason", reason)
	return Verdict{Respond: respond, Reason: reason}
}

// Forget drops per-room decision state.
func (e *Engine) Forget(roomID string) {
	e.cooldown.Forget(roomID)
}

// TypingDelay returns a human-like pause before sending text.
func (e *Engine) TypingDelay(text string) time.Duration {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return TypingDelay(e.rand, text)
}

// Typing delay bounds.
const (
	MinTypingDelay = 1500 * time.Millisecond
	MaxTypingDelay = 4 * time.Second
)

// TypingDelay draws uniform(n/10, n/5) seconds for n characters, scales it by
// uniform(0.8, 1.2) and clamps the result to [1.5s, 4s].
func TypingDelay(r *rand.Rand, text string) time.Duration {
	n := float64(utf8.RuneCountInString(text))
	lo, hi := n/10, n/5
	base := lo + r.Float64()*(hi-lo)
	factor := 0.8 + r.Float64()*0.4
	d := time.Duration(base * factor * float64(time.Second))
	return min(max(d, MinTypingDelay), MaxTypingDelay)
}

// Wait sleeps for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
