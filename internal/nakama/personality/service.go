package personality

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// Store persists one persona per room. LoadPersonality returns (nil, nil)
// when the room has none.
type Store interface {
	SavePersonality(ctx context.Context, roomID string, p *Personality) error
	LoadPersonality(ctx context.Context, roomID string) (*Personality, error)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Store     Store
	Generator IdentityGenerator
	Logger    *slog.Logger
	// Rand seeds Randomize. Defaults to a time-seeded PCG source.
	Rand *rand.Rand
	// Presets are named personas selectable at room creation.
	Presets map[string]*Personality
}

// Service owns persona lifecycle operations that touch collaborators:
// identity generation and persistence.
type Service struct {
	store   Store
	gen     IdentityGenerator
	logger  *slog.Logger
	presets map[string]*Personality

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewService creates a Service. A nil Store disables persistence.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		cfg.Rand = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Service{
		store:   cfg.Store,
		gen:     cfg.Generator,
		logger:  cfg.Logger,
		presets: cfg.Presets,
		rand:    cfg.Rand,
	}
}

// Update applies edits to a copy of p, regenerates the identity when a trait
// changed and no explicit name or description was supplied, and persists the
// result. Persistence failures are logged; the updated persona is returned
// either way.
func (s *Service) Update(ctx context.Context, roomID string, p *Personality, e Edits) *Personality {
	next := p.Clone()
	if next == nil {
		next = Default()
	}
	changed := next.Apply(e)
	if changed && e.Name == nil && e.Description == nil {
		next.RegenerateIdentity(ctx, s.gen, s.logger)
	}
	s.save(ctx, roomID, next)
	s.logger.Info("personality updated",
		"room_id", roomID, "traits_changed", changed, "name", next.Name)
	return next
}

// Random returns a freshly randomised persona with a generated identity.
// Identity failures leave the default name in place.
func (s *Service) Random(ctx context.Context) *Personality {
	p := Default()
	s.randMu.Lock()
	p.Randomize(s.rand)
	s.randMu.Unlock()
	p.RegenerateIdentity(ctx, s.gen, s.logger)
	return p
}

// Preset returns a copy of the named preset.
func (s *Service) Preset(name string) (*Personality, bool) {
	p, ok := s.presets[name]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// PresetNames lists the configured presets.
func (s *Service) PresetNames() []string {
	names := make([]string, 0, len(s.presets))
	for n := range s.presets {
		names = append(names, n)
	}
	return names
}

// Load returns the stored persona for roomID, or nil when none is stored or
// the store fails.
func (s *Service) Load(ctx context.Context, roomID string) *Personality {
	if s.store == nil {
		return nil
	}
	p, err := s.store.LoadPersonality(ctx, roomID)
	if err != nil {
		s.logger.Warn("personality: load failed", "room_id", roomID, "err", err)
		return nil
	}
	return p
}

// Save persists p for roomID, logging failures.
func (s *Service) Save(ctx context.Context, roomID string, p *Personality) {
	s.save(ctx, roomID, p)
}

func (s *Service) save(ctx context.Context, roomID string, p *Personality) {
	if s.store == nil {
		return
	}
	if err := s.store.SavePersonality(ctx, roomID, p); err != nil {
		s.logger.Error("personality: save failed", "room_id", roomID, "err", err)
	}
}
