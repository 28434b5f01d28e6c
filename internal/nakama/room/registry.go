// Package room owns per-room lifecycle: which persona and task a room has,
// who is in it, and the serialised message pipeline that runs one inbound
// message at a time per room.
package room

import (
	"context"
	_ "embed"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/bdobrica/nakama/internal/nakama/personality"
	"github.com/bdobrica/nakama/internal/nakama/store"
)

//go:embed tasks/desert_survival.txt
var desertSurvival string

// DefaultTask is the exercise a room works on until one is set.
var DefaultTask = store.Task{Title: "Desert Survival", Description: desertSurvival}

// TaskStore persists one task per room. LoadTask returns (nil, nil) when the
// room has none.
type TaskStore interface {
	SaveTask(ctx context.Context, t store.Task) error
	LoadTask(ctx context.Context, roomID string) (*store.Task, error)
}

// Forgetter drops per-room in-memory state on eviction.
type Forgetter interface {
	Forget(roomID string)
}

// RegistryConfig wires a Registry.
type RegistryConfig struct {
	Personas *personality.Service
	Tasks    TaskStore
	// Forget is called for every evicted room (memory manager, decision
	// engine).
	Forget []Forgetter
	// Preset names the persona new rooms start with. Empty means a random
	// persona.
	Preset string
	// DefaultTask overrides DefaultTask when non-empty.
	DefaultTask string
	Logger      *slog.Logger
}

// Room is the live state of one room. mu serialises the pipeline and every
// mutation of persona and task; membership has its own lock so joins and
// leaves never wait on an in-flight message.
type Room struct {
	ID string

	mu       sync.Mutex
	hydrated bool
	persona  *personality.Personality
	task     store.Task

	memberMu sync.Mutex
	members  map[string]string // speakerID → display name
}

// Persona returns a copy of the room's persona.
func (r *Room) Persona() *personality.Personality {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persona.Clone()
}

// Task returns the room's task.
func (r *Room) Task() store.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.task
}

// Members returns the current member IDs, sorted.
func (r *Room) Members() []string {
	r.memberMu.Lock()
	defer r.memberMu.Unlock()
	return slices.Sorted(maps.Keys(r.members))
}

// DisplayName resolves a member's name, or "" for unknown speakers.
func (r *Room) DisplayName(speakerID string) string {
	r.memberMu.Lock()
	defer r.memberMu.Unlock()
	return r.members[speakerID]
}

func (r *Room) setMember(speakerID, displayName string) {
	r.memberMu.Lock()
	r.members[speakerID] = displayName
	r.memberMu.Unlock()
}

// Registry tracks active rooms. Rooms are created lazily on first use and
// evicted when their last member leaves.
type Registry struct {
	cfg    RegistryConfig
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRegistry creates a Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Personas == nil {
		cfg.Personas = personality.NewService(personality.ServiceConfig{Logger: cfg.Logger})
	}
	return &Registry{
		cfg:    cfg,
		logger: cfg.Logger,
		rooms:  make(map[string]*Room),
	}
}

// Acquire returns the live room, hydrating persona and task on first use.
func (g *Registry) Acquire(ctx context.Context, roomID string) *Room {
	g.mu.Lock()
	r, ok := g.rooms[roomID]
	if !ok {
		r = &Room{ID: roomID, members: make(map[string]string)}
		g.rooms[roomID] = r
	}
	g.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hydrated {
		g.hydrate(ctx, r)
		r.hydrated = true
	}
	return r
}

// hydrate loads persona and task. Must be called with r.mu held.
func (g *Registry) hydrate(ctx context.Context, r *Room) {
	p := g.cfg.Personas.Load(ctx, r.ID)
	if p == nil {
		p = g.newPersona(ctx)
		g.cfg.Personas.Save(ctx, r.ID, p)
		g.logger.Info("room: assigned new persona", "room_id", r.ID, "persona", p.Name)
	}
	r.persona = p

	r.task = g.defaultTask(r.ID)
	if g.cfg.Tasks != nil {
		t, err := g.cfg.Tasks.LoadTask(ctx, r.ID)
		if err != nil {
			g.logger.Warn("room: task load failed; using default", "room_id", r.ID, "err", err)
		} else if t != nil {
			r.task = *t
		}
	}
}

func (g *Registry) newPersona(ctx context.Context) *personality.Personality {
	if g.cfg.Preset != "" {
		if p, ok := g.cfg.Personas.Preset(g.cfg.Preset); ok {
			return p
		}
		g.logger.Warn("room: unknown persona preset; randomising", "preset", g.cfg.Preset)
	}
	return g.cfg.Personas.Random(ctx)
}

func (g *Registry) defaultTask(roomID string) store.Task {
	t := DefaultTask
	if g.cfg.DefaultTask != "" {
		t = store.Task{Title: "Custom", Description: g.cfg.DefaultTask}
	}
	t.RoomID = roomID
	return t
}

// Join records a member and returns the room.
func (g *Registry) Join(ctx context.Context, roomID, speakerID, displayName string) *Room {
	r := g.Acquire(ctx, roomID)
	r.setMember(speakerID, displayName)
	g.logger.Debug("room: member joined", "room_id", roomID, "speaker_id", speakerID)
	return r
}

// Leave removes a member. The room is evicted when it becomes empty; its
// persisted state survives and is hydrated again on next use.
func (g *Registry) Leave(roomID, speakerID string) {
	g.mu.Lock()
	r, ok := g.rooms[roomID]
	if !ok {
		g.mu.Unlock()
		return
	}
	r.memberMu.Lock()
	delete(r.members, speakerID)
	empty := len(r.members) == 0
	r.memberMu.Unlock()
	if empty {
		delete(g.rooms, roomID)
	}
	g.mu.Unlock()

	if empty {
		for _, f := range g.cfg.Forget {
			f.Forget(roomID)
		}
		g.logger.Info("room: evicted", "room_id", roomID)
	}
}

// Lookup returns the live room without hydrating it.
func (g *Registry) Lookup(roomID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	return r, ok
}

// Active returns the number of live rooms.
func (g *Registry) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// UpdatePersonality applies edits to the room's persona, waiting for any
// in-flight message to finish first.
func (g *Registry) UpdatePersonality(ctx context.Context, roomID string, e personality.Edits) *personality.Personality {
	r := g.Acquire(ctx, roomID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persona = g.cfg.Personas.Update(ctx, roomID, r.persona, e)
	return r.persona.Clone()
}

// ReplacePersonality swaps in a whole persona (a preset or a fresh random
// one) and persists it.
func (g *Registry) ReplacePersonality(ctx context.Context, roomID string, p *personality.Personality) *personality.Personality {
	r := g.Acquire(ctx, roomID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persona = p.Clone()
	g.cfg.Personas.Save(ctx, roomID, r.persona)
	return r.persona.Clone()
}

// SetTask overwrites the room's task and persists it.
func (g *Registry) SetTask(ctx context.Context, roomID string, t store.Task) error {
	r := g.Acquire(ctx, roomID)
	t.RoomID = roomID
	r.mu.Lock()
	defer r.mu.Unlock()
	if g.cfg.Tasks != nil {
		if err := g.cfg.Tasks.SaveTask(ctx, t); err != nil {
			return err
		}
	}
	r.task = t
	return nil
}
