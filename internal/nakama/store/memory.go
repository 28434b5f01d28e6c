package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bdobrica/nakama/internal/nakama/memory"
)

var _ memory.Persistence = (*Store)(nil)

// SaveTurn appends a turn to the room's log.
func (s *Store) SaveTurn(ctx context.Context, t memory.Turn) error {
	ts := t.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (room_id, speaker_id, display_name, role, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.RoomID, t.SpeakerID, t.DisplayName, t.Role, t.Text, ts.UTC())
	if err != nil {
		return fmt.Errorf("store: save turn: %w", err)
	}
	return nil
}

// LoadRecentTurns returns at most limit turns for the room, most recent last.
func (s *Store) LoadRecentTurns(ctx context.Context, roomID string, limit int) ([]memory.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id, speaker_id, display_name, role, text, created_at
		FROM turns
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: load turns: %w", err)
	}
	defer rows.Close()

	var turns []memory.Turn
	for rows.Next() {
		var t memory.Turn
		if err := rows.Scan(&t.RoomID, &t.SpeakerID, &t.DisplayName, &t.Role, &t.Text, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load turns: %w", err)
	}
	slices.Reverse(turns)
	return turns, nil
}

// SaveSummary stores a compacted summary and returns its ID.
func (s *Store) SaveSummary(ctx context.Context, sum memory.Summary) (int64, error) {
	insights, err := encodeList(sum.Insights)
	if err != nil {
		return 0, err
	}
	keyPoints, err := encodeList(sum.KeyPoints)
	if err != nil {
		return 0, err
	}
	participants, err := encodeList(sum.Participants)
	if err != nil {
		return 0, err
	}
	ts := sum.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO long_term_summaries
			(room_id, summary, insights, key_points, participants, conversation_start, conversation_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sum.RoomID, sum.Summary, insights, keyPoints, participants,
		nullTime(sum.ConversationStart), nullTime(sum.ConversationEnd), ts.UTC())
	if err != nil {
		return 0, fmt.Errorf("store: save summary: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: summary id: %w", err)
	}
	return id, nil
}

const summaryColumns = `id, room_id, summary, insights, key_points, participants, conversation_start, conversation_end, created_at`

// LoadLatestSummary returns the newest summary for the room, or nil when the
// room has none.
func (s *Store) LoadLatestSummary(ctx context.Context, roomID string) (*memory.Summary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+summaryColumns+`
		FROM long_term_summaries
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, roomID)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load latest summary: %w", err)
	}
	return sum, nil
}

// ListSummaries returns every summary for the room, oldest first.
func (s *Store) ListSummaries(ctx context.Context, roomID string) ([]*memory.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+summaryColumns+`
		FROM long_term_summaries
		WHERE room_id = ?
		ORDER BY id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("store: list summaries: %w", err)
	}
	defer rows.Close()

	var out []*memory.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (*memory.Summary, error) {
	var (
		sum                               memory.Summary
		insights, keyPoints, participants string
		start, end                        sql.NullTime
	)
	if err := row.Scan(&sum.ID, &sum.RoomID, &sum.Summary, &insights, &keyPoints, &participants,
		&start, &end, &sum.Timestamp); err != nil {
		return nil, err
	}
	if err := decodeList(insights, &sum.Insights); err != nil {
		return nil, err
	}
	if err := decodeList(keyPoints, &sum.KeyPoints); err != nil {
		return nil, err
	}
	if err := decodeList(participants, &sum.Participants); err != nil {
		return nil, err
	}
	sum.ConversationStart = start.Time
	sum.ConversationEnd = end.Time
	return &sum, nil
}

func encodeList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("store: encode list: %w", err)
	}
	return string(b), nil
}

func decodeList(raw string, dst *[]string) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
