package room

import (
	"context"
	"log/slog"
	"time"

	"github.com/bdobrica/nakama/common/trace"
	"github.com/bdobrica/nakama/internal/nakama/compose"
	"github.com/bdobrica/nakama/internal/nakama/decision"
	"github.com/bdobrica/nakama/internal/nakama/llm"
	"github.com/bdobrica/nakama/internal/nakama/memory"
	"github.com/bdobrica/nakama/internal/nakama/observability"
	"github.com/bdobrica/nakama/internal/nakama/store"
)

// Memory is the conversation memory the pipeline feeds and reads.
type Memory interface {
	Hydrate(ctx context.Context, roomID string)
	AddMessage(ctx context.Context, turn memory.Turn, names memory.NameLookup)
	GetContext(ctx context.Context, roomID string) []llm.Message
}

// Decisions makes turn-taking decisions.
type Decisions interface {
	Evaluate(ctx context.Context, roomID string, persona decision.PromptSource, history []llm.Message, latest string) decision.Verdict
	TypingDelay(text string) time.Duration
}

// Composer writes the teammate's reply.
type Composer interface {
	Generate(ctx context.Context, persona compose.Persona, task string, history []llm.Message, in compose.Incoming) (string, bool)
}

// Journal is the durable record of turns and decisions.
type Journal interface {
	SaveTurn(ctx context.Context, t memory.Turn) error
	SaveDecision(ctx context.Context, d store.Decision) error
}

var (
	_ Memory    = (*memory.Manager)(nil)
	_ Decisions = (*decision.Engine)(nil)
	_ Composer  = (*compose.Composer)(nil)
	_ Journal   = (*store.Store)(nil)
)

// Inbound is one message delivered by a transport.
type Inbound struct {
	RoomID      string
	SpeakerID   string
	DisplayName string
	Text        string
	Timestamp   time.Time
	// Typing, when set, is toggled around the typing delay.
	Typing func(ctx context.Context, typing bool)
}

// Reply is the teammate's answer to an Inbound message.
type Reply struct {
	RoomID      string
	SpeakerID   string
	DisplayName string
	Text        string
	TraceID     string
	Delay       time.Duration
}

// PipelineConfig wires a Pipeline.
type PipelineConfig struct {
	Registry  *Registry
	Memory    Memory
	Decisions Decisions
	Composer  Composer
	// Journal is optional; without it turns and decisions are not persisted.
	Journal Journal
	// AssistantID is the speaker ID recorded for the teammate's turns.
	AssistantID string
	// TypingDelay enables the human-like pause before a reply is delivered.
	TypingDelay bool
	Logger      *slog.Logger

	// Wait defaults to decision.Wait.
	Wait func(ctx context.Context, d time.Duration) error
	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline runs inbound messages through memory, turn-taking and
// composition. Messages for one room are handled strictly one at a time;
// different rooms proceed in parallel.
type Pipeline struct {
	cfg    PipelineConfig
	logger *slog.Logger
}

// DefaultAssistantID is used when PipelineConfig.AssistantID is empty.
const DefaultAssistantID = "nakama"

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AssistantID == "" {
		cfg.AssistantID = DefaultAssistantID
	}
	if cfg.Wait == nil {
		cfg.Wait = decision.Wait
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry(RegistryConfig{Logger: cfg.Logger})
	}
	return &Pipeline{cfg: cfg, logger: cfg.Logger}
}

// Registry returns the room registry the pipeline serves.
func (p *Pipeline) Registry() *Registry { return p.cfg.Registry }

// AssistantID returns the speaker ID used for the teammate's turns.
func (p *Pipeline) AssistantID() string { return p.cfg.AssistantID }

// HandleMessage records in and returns the teammate's reply, if it chose to
// speak. A false result is the normal outcome for messages the teammate lets
// pass and for any collaborator failure; the two are indistinguishable to the
// caller.
func (p *Pipeline) HandleMessage(ctx context.Context, in Inbound) (Reply, bool) {
	ctx, traceID := trace.Ensure(ctx)
	log := observability.WithTrace(ctx, p.logger).With("room_id", in.RoomID)

	r := p.cfg.Registry.Acquire(ctx, in.RoomID)
	r.mu.Lock()
	defer r.mu.Unlock()

	if in.DisplayName != "" {
		r.setMember(in.SpeakerID, in.DisplayName)
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = p.cfg.Now()
	}
	incoming := memory.Turn{
		RoomID:      in.RoomID,
		SpeakerID:   in.SpeakerID,
		DisplayName: in.DisplayName,
		Role:        memory.RoleUser,
		Text:        in.Text,
		Timestamp:   in.Timestamp,
	}
	if incoming.DisplayName == "" {
		incoming.DisplayName = r.DisplayName(in.SpeakerID)
	}
	log.Info("pipeline: message received", "speaker_id", in.SpeakerID, "len", len(in.Text))

	p.cfg.Memory.Hydrate(ctx, in.RoomID)
	p.saveTurn(ctx, log, incoming)
	p.cfg.Memory.AddMessage(ctx, incoming, r.DisplayName)
	history := p.cfg.Memory.GetContext(ctx, in.RoomID)

	verdict := p.cfg.Decisions.Evaluate(ctx, in.RoomID, r.persona, history, in.Text)
	record := store.Decision{
		RoomID:      in.RoomID,
		TraceID:     traceID,
		MessageTS:   in.Timestamp,
		SpeakerID:   in.SpeakerID,
		MessageText: in.Text,
		Context:     history,
		Respond:     verdict.Respond,
		Reason:      verdict.Reason,
		FailOpen:    verdict.FailOpen,
		Throttled:   verdict.Throttled,
	}
	// Saved on every return path; Response is set only once a reply is sent.
	defer func() { p.saveDecision(ctx, log, record) }()
	if !verdict.Respond {
		return Reply{}, false
	}

	text, ok := p.cfg.Composer.Generate(ctx, r.persona, r.task.Description, history, compose.Incoming{
		SpeakerName: incoming.Name(),
		Text:        in.Text,
	})
	if !ok {
		log.Warn("pipeline: no reply generated")
		return Reply{}, false
	}

	var delay time.Duration
	if p.cfg.TypingDelay {
		delay = p.cfg.Decisions.TypingDelay(text)
		if err := p.typeFor(ctx, in, delay); err != nil {
			log.Info("pipeline: reply abandoned during typing delay", "err", err)
			return Reply{}, false
		}
	}

	reply := memory.Turn{
		RoomID:      in.RoomID,
		SpeakerID:   p.cfg.AssistantID,
		DisplayName: r.persona.Name,
		Role:        memory.RoleAssistant,
		Text:        text,
		Timestamp:   p.cfg.Now(),
	}
	p.saveTurn(ctx, log, reply)
	p.cfg.Memory.AddMessage(ctx, reply, r.DisplayName)
	record.Response = &text

	log.Info("pipeline: reply ready", "len", len(text), "delay", delay)
	return Reply{
		RoomID:      in.RoomID,
		SpeakerID:   reply.SpeakerID,
		DisplayName: reply.DisplayName,
		Text:        text,
		TraceID:     traceID,
		Delay:       delay,
	}, true
}

func (p *Pipeline) typeFor(ctx context.Context, in Inbound, d time.Duration) error {
	if in.Typing != nil {
		in.Typing(ctx, true)
		defer in.Typing(context.WithoutCancel(ctx), false)
	}
	return p.cfg.Wait(ctx, d)
}

func (p *Pipeline) saveTurn(ctx context.Context, log *slog.Logger, t memory.Turn) {
	if p.cfg.Journal == nil {
		return
	}
	if err := p.cfg.Journal.SaveTurn(context.WithoutCancel(ctx), t); err != nil {
		log.Error("pipeline: failed to persist turn", "role", t.Role, "err", err)
	}
}

func (p *Pipeline) saveDecision(ctx context.Context, log *slog.Logger, d store.Decision) {
	if p.cfg.Journal == nil {
		return
	}
	d.Outcome = store.OutcomeDidNotRespond
	if d.Response != nil {
		d.Outcome = store.OutcomeResponded
	}
	d.CreatedAt = p.cfg.Now()
	if err := p.cfg.Journal.SaveDecision(context.WithoutCancel(ctx), d); err != nil {
		log.Error("pipeline: failed to persist decision", "outcome", d.Outcome, "err", err)
	}
}
