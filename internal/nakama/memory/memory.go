// Package memory implements the per-room rolling conversation memory.
// Short-term memory keeps the most recent turns verbatim; once enough turns
// accumulate they are compacted into an append-only long-term summary that
// replaces them in the prompt context.
package memory

import (
	"context"
	"time"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is a single message in a room. Turns are immutable once recorded.
type Turn struct {
	RoomID      string    // room the turn belongs to
	SpeakerID   string    // opaque speaker identifier from the transport
	DisplayName string    // resolved display name; falls back to SpeakerID
	Role        string    // user, assistant or system
	Text        string    // message text
	Timestamp   time.Time // when the turn was produced
}

// Name returns the display name, or the speaker ID when none is known.
func (t Turn) Name() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.SpeakerID
}

// Summary is a compacted block of short-term turns.
type Summary struct {
	ID                int64
	RoomID            string
	Summary           string
	Insights          []string
	KeyPoints         []string
	Participants      []string // speaker IDs, sorted
	Timestamp         time.Time
	ConversationStart time.Time
	ConversationEnd   time.Time
}

// Digest is the structured output of a Summariser.
type Digest struct {
	Summary   string   `json:"summary"`
	Insights  []string `json:"insights"`
	KeyPoints []string `json:"key_points"`
}

// Empty reports whether the digest carries nothing usable.
func (d *Digest) Empty() bool {
	return d == nil || (d.Summary == "" && len(d.Insights) == 0 && len(d.KeyPoints) == 0)
}

// Summariser turns a rendered transcript into a Digest. A nil digest with a
// nil error means "nothing to say" and is treated as failure.
type Summariser interface {
	Summarise(ctx context.Context, transcript string) (*Digest, error)
}

// Persistence is the storage the manager reads on first touch of a room and
// writes after a successful compaction.
type Persistence interface {
	// LoadRecentTurns returns at most limit turns, most recent last.
	LoadRecentTurns(ctx context.Context, roomID string, limit int) ([]Turn, error)
	// SaveSummary stores a summary and returns its ID.
	SaveSummary(ctx context.Context, s Summary) (int64, error)
	// LoadLatestSummary returns the newest summary for the room, or nil.
	LoadLatestSummary(ctx context.Context, roomID string) (*Summary, error)
}

// NameLookup resolves a speaker ID to a display name. An empty result means
// unknown.
type NameLookup func(speakerID string) string
