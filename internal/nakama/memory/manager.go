package memory

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bdobrica/nakama/internal/nakama/llm"
)

// Config holds configuration for the Manager.
type Config struct {
	// ShortTermLimit bounds the short-term buffer. Default: 10.
	ShortTermLimit int

	// Threshold is the buffer length at which compaction is attempted.
	// Default: 5.
	Threshold int

	// Summariser compacts the buffer. Nil disables compaction success:
	// every attempt fails and the buffer is retained.
	Summariser Summariser

	// Persistence hydrates rooms on first touch and stores summaries.
	// Nil keeps everything in memory.
	Persistence Persistence

	Logger *slog.Logger
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		ShortTermLimit: 10,
		Threshold:      5,
	}
}

// State is a snapshot of one room's memory.
type State struct {
	RoomID       string
	ShortTerm    []Turn
	LongTerm     []Summary
	LastMemoryAt time.Time
}

type roomMemory struct {
	mu           sync.Mutex
	shortTerm    []Turn
	longTerm     []Summary
	lastMemoryAt time.Time
}

// Manager owns the short-term and long-term memory of every active room.
// Calls for different rooms proceed in parallel; calls for the same room
// are serialised.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]*roomMemory
}

// NewManager creates a Manager, filling unset limits with defaults.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.ShortTermLimit <= 0 {
		cfg.ShortTermLimit = def.ShortTermLimit
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		logger: cfg.Logger,
		rooms:  make(map[string]*roomMemory),
	}
}

// room returns the memory for roomID, hydrating it from persistence the first
// time the room is seen. Hydration failures degrade to empty memory.
func (m *Manager) room(ctx context.Context, roomID string) *roomMemory {
	m.mu.Lock()
	rm, ok := m.rooms[roomID]
	if !ok {
		rm = &roomMemory{}
		m.rooms[roomID] = rm
		// Hydrate under the room lock so concurrent callers wait for it.
		rm.mu.Lock()
	}
	m.mu.Unlock()

	if !ok {
		m.hydrate(ctx, roomID, rm)
		rm.mu.Unlock()
	}
	return rm
}

func (m *Manager) hydrate(ctx context.Context, roomID string, rm *roomMemory) {
	if m.cfg.Persistence == nil {
		return
	}
	turns, err := m.cfg.Persistence.LoadRecentTurns(ctx, roomID, m.cfg.ShortTermLimit)
	if err != nil {
		m.logger.Warn("memory: hydrate short-term failed; starting empty",
			"room_id", roomID, "err", err)
		turns = nil
	}
	if len(turns) > m.cfg.ShortTermLimit {
		turns = turns[len(turns)-m.cfg.ShortTermLimit:]
	}
	rm.shortTerm = turns

	latest, err := m.cfg.Persistence.LoadLatestSummary(ctx, roomID)
	if err != nil {
		m.logger.Warn("memory: hydrate long-term failed",
			"room_id", roomID, "err", err)
	} else if latest != nil {
		rm.longTerm = []Summary{*latest}
		rm.lastMemoryAt = latest.Timestamp
	}

	m.logger.Debug("memory: room hydrated",
		"room_id", roomID,
		"short_term", len(rm.shortTerm),
		"long_term", len(rm.longTerm),
	)
}

// Hydrate loads the room from persistence if it has not been seen yet.
// Callers that persist a turn before adding it hydrate first so the turn is
// not loaded twice.
func (m *Manager) Hydrate(ctx context.Context, roomID string) {
	m.room(ctx, roomID)
}

// AddMessage appends a turn to the room's short-term buffer, resolving the
// display name through names when the turn carries none. The buffer is
// truncated to the short-term limit, and once it reaches the threshold a
// compaction is attempted; the buffer is cleared only if compaction succeeds.
func (m *Manager) AddMessage(ctx context.Context, turn Turn, names NameLookup) {
	rm := m.room(ctx, turn.RoomID)
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if turn.DisplayName == "" && names != nil {
		turn.DisplayName = names(turn.SpeakerID)
	}
	if turn.DisplayName == "" {
		turn.DisplayName = turn.SpeakerID
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	rm.shortTerm = append(rm.shortTerm, turn)

	if excess := len(rm.shortTerm) - m.cfg.ShortTermLimit; excess > 0 {
		rm.shortTerm = append([]Turn(nil), rm.shortTerm[excess:]...)
	}

	if len(rm.shortTerm) >= m.cfg.Threshold {
		if m.compact(ctx, turn.RoomID, rm) {
			rm.shortTerm = nil
		}
	}
}

// compact summarises the short-term buffer. It reports success only when a
// non-empty digest was produced and, if persistence is configured, stored.
// Must be called with rm.mu held.
func (m *Manager) compact(ctx context.Context, roomID string, rm *roomMemory) bool {
	if m.cfg.Summariser == nil {
		m.logger.Debug("memory: no summariser configured; keeping buffer", "room_id", roomID)
		return false
	}
	start := time.Now()

	digest, err := m.cfg.Summariser.Summarise(ctx, Transcript(rm.shortTerm))
	if err != nil {
		m.logger.Warn("memory: compaction failed; keeping buffer",
			"room_id", roomID, "turns", len(rm.shortTerm), "err", err)
		return false
	}
	if digest.Empty() {
		m.logger.Warn("memory: summariser returned empty digest; keeping buffer",
			"room_id", roomID, "turns", len(rm.shortTerm))
		return false
	}

	first, last := rm.shortTerm[0], rm.shortTerm[len(rm.shortTerm)-1]
	s := Summary{
		RoomID:            roomID,
		Summary:           digest.Summary,
		Insights:          append([]string(nil), digest.Insights...),
		KeyPoints:         append([]string(nil), digest.KeyPoints...),
		Participants:      participants(rm.shortTerm),
		Timestamp:         last.Timestamp,
		ConversationStart: first.Timestamp,
		ConversationEnd:   last.Timestamp,
	}

	if m.cfg.Persistence != nil {
		id, err := m.cfg.Persistence.SaveSummary(ctx, s)
		if err != nil {
			m.logger.Error("memory: save summary failed; keeping buffer",
				"room_id", roomID, "err", err)
			return false
		}
		s.ID = id
	}

	rm.longTerm = append(rm.longTerm, s)
	rm.lastMemoryAt = s.Timestamp

	m.logger.Info("memory: compacted short-term buffer",
		"room_id", roomID,
		"summary_id", s.ID,
		"turns", len(rm.shortTerm),
		"participants", len(s.Participants),
		"elapsed", time.Since(start).String(),
	)
	return true
}

// GetContext returns the prompt context for a room: the latest long-term
// summary as a leading system message, then the short-term turns oldest
// first. Only user turns carry a name. Calling it has no side effects beyond
// first-touch hydration.
func (m *Manager) GetContext(ctx context.Context, roomID string) []llm.Message {
	rm := m.room(ctx, roomID)
	rm.mu.Lock()
	defer rm.mu.Unlock()

	out := make([]llm.Message, 0, len(rm.shortTerm)+1)
	if n := len(rm.longTerm); n > 0 {
		out = append(out, llm.Message{
			Role:    llm.RoleSystem,
			Content: FormatSummary(rm.longTerm[n-1]),
		})
	}
	for _, t := range rm.shortTerm {
		if t.Role == RoleAssistant {
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: t.Text})
			continue
		}
		out = append(out, llm.Message{Role: llm.RoleUser, Content: t.Text, Name: t.Name()})
	}
	return out
}

// Snapshot returns a copy of the room's memory without hydrating it.
// The second result is false when the room is not loaded.
func (m *Manager) Snapshot(roomID string) (State, bool) {
	m.mu.Lock()
	rm, ok := m.rooms[roomID]
	m.mu.Unlock()
	if !ok {
		return State{}, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return State{
		RoomID:       roomID,
		ShortTerm:    append([]Turn(nil), rm.shortTerm...),
		LongTerm:     append([]Summary(nil), rm.longTerm...),
		LastMemoryAt: rm.lastMemoryAt,
	}, true
}

// Forget drops the in-memory state for a room. The next touch re-hydrates
// from persistence.
func (m *Manager) Forget(roomID string) {
	m.mu.Lock()
	delete(m.rooms, roomID)
	m.mu.Unlock()
}

// Rooms returns the number of rooms currently held in memory.
func (m *Manager) Rooms() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Transcript renders turns as "<name>: <text>" lines.
func Transcript(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Name())
		b.WriteString(": ")
		b.WriteString(t.Text)
	}
	return b.String()
}

// FormatSummary renders a summary as the leading context block.
func FormatSummary(s Summary) string {
	var b strings.Builder
	b.WriteString("Previous conversation summary:\n")
	b.WriteString(s.Summary)
	b.WriteString("\n\nKey insights:\n")
	writeBullets(&b, s.Insights)
	b.WriteString("\n\nKey points:\n")
	writeBullets(&b, s.KeyPoints)
	b.WriteString("\n\nParticipants: ")
	b.WriteString(strings.Join(s.Participants, ", "))
	return b.String()
}

func writeBullets(b *strings.Builder, items []string) {
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
}

func participants(turns []Turn) []string {
	seen := make(map[string]struct{}, len(turns))
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		if _, ok := seen[t.SpeakerID]; ok || t.SpeakerID == "" {
			continue
		}
		seen[t.SpeakerID] = struct{}{}
		out = append(out, t.SpeakerID)
	}
	sort.Strings(out)
	return out
}
