package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bdobrica/nakama/internal/nakama/llm"
	"github.com/bdobrica/nakama/internal/nakama/personality"
)

var _ personality.Store = (*Store)(nil)

// SavePersonality replaces the room's persona.
func (s *Store) SavePersonality(ctx context.Context, roomID string, p *personality.Personality) error {
	if p == nil {
		return fmt.Errorf("store: save personality: nil personality")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: encode personality: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO personalities (room_id, name, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			name = excluded.name, data = excluded.data, updated_at = excluded.updated_at
	`, roomID, p.Name, string(data), s.now().UTC())
	if err != nil {
		return fmt.Errorf("store: save personality: %w", err)
	}
	return nil
}

// LoadPersonality returns the room's persona, or nil when none is stored.
func (s *Store) LoadPersonality(ctx context.Context, roomID string) (*personality.Personality, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM personalities WHERE room_id = ?", roomID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load personality: %w", err)
	}
	p := &personality.Personality{}
	if err := json.Unmarshal([]byte(data), p); err != nil {
		return nil, fmt.Errorf("store: decode personality for %s: %w", roomID, err)
	}
	return p, nil
}

// ── Tasks ─────────────────────────────────────────────────────────────────

// Task is the collaborative exercise a room is working on.
type Task struct {
	RoomID      string    `json:"room_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SaveTask replaces the room's task.
func (s *Store) SaveTask(ctx context.Context, t Task) error {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_tasks (room_id, title, description, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			title = excluded.title, description = excluded.description, updated_at = excluded.updated_at
	`, t.RoomID, t.Title, t.Description, t.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: save task: %w", err)
	}
	return nil
}

// LoadTask returns the room's task, or nil when none is stored.
func (s *Store) LoadTask(ctx context.Context, roomID string) (*Task, error) {
	t := &Task{}
	err := s.db.QueryRowContext(ctx, `
		SELECT room_id, title, description, updated_at FROM room_tasks WHERE room_id = ?
	`, roomID).Scan(&t.RoomID, &t.Title, &t.Description, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load task: %w", err)
	}
	return t, nil
}

// ── Decisions ─────────────────────────────────────────────────────────────

// Decision outcomes.
const (
	OutcomeResponded     = "responded"
	OutcomeDidNotRespond = "did_not_respond"
)

// Decision records one turn-taking decision and what came of it.
type Decision struct {
	ID          int64
	RoomID      string
	TraceID     string
	MessageTS   time.Time
	SpeakerID   string
	MessageText string
	// Context is the conversation the verdict was made on.
	Context []llm.Message
	// Respond is the verdict. A fail-open verdict may still end without a
	// reply; Outcome records what happened.
	Respond   bool
	Reason    string
	FailOpen  bool
	Throttled bool
	// Response is nil when no reply was sent.
	Response  *string
	Outcome   string
	CreatedAt time.Time
}

// SaveDecision appends a decision to the room's audit trail. An empty
// Outcome is derived from Response.
func (s *Store) SaveDecision(ctx context.Context, d Decision) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	if d.Outcome == "" {
		d.Outcome = OutcomeDidNotRespond
		if d.Response != nil {
			d.Outcome = OutcomeResponded
		}
	}
	history := d.Context
	if history == nil {
		history = []llm.Message{}
	}
	contextJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("store: encode decision context: %w", err)
	}
	var messageTS sql.NullTime
	if !d.MessageTS.IsZero() {
		messageTS = sql.NullTime{Time: d.MessageTS.UTC(), Valid: true}
	}
	var response sql.NullString
	if d.Response != nil {
		response = sql.NullString{String: *d.Response, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (room_id, trace_id, message_ts, speaker_id, message_text, context,
			respond, reason, fail_open, throttled, response, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.RoomID, d.TraceID, messageTS, d.SpeakerID, d.MessageText, string(contextJSON),
		d.Respond, d.Reason, d.FailOpen, d.Throttled, response, d.Outcome, d.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: save decision: %w", err)
	}
	return nil
}

// ListDecisions returns up to limit decisions for the room, newest first.
func (s *Store) ListDecisions(ctx context.Context, roomID string, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, trace_id, message_ts, speaker_id, message_text, context,
			respond, reason, fail_open, throttled, response, outcome, created_at
		FROM decisions
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var (
			d           Decision
			messageTS   sql.NullTime
			contextJSON string
			response    sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.RoomID, &d.TraceID, &messageTS, &d.SpeakerID, &d.MessageText, &contextJSON,
			&d.Respond, &d.Reason, &d.FailOpen, &d.Throttled, &response, &d.Outcome, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan decision: %w", err)
		}
		if messageTS.Valid {
			d.MessageTS = messageTS.Time
		}
		if response.Valid {
			d.Response = &response.String
		}
		if err := json.Unmarshal([]byte(contextJSON), &d.Context); err != nil {
			return nil, fmt.Errorf("store: decode decision context %d: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
