package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Room is a chat room the teammate sits in.
type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateRoom inserts a room with a fresh UUID.
func (s *Store) CreateRoom(ctx context.Context, name string) (*Room, error) {
	now := s.now().UTC()
	room := &Room{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
	`, room.ID, room.Name, room.CreatedAt, room.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create room: %w", err)
	}
	return room, nil
}

// EnsureRoom records a room created elsewhere (a Matrix room ID). Existing
// rows are left untouched.
func (s *Store) EnsureRoom(ctx context.Context, id, name string) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, name, now, now)
	if err != nil {
		return fmt.Errorf("store: ensure room %s: %w", id, err)
	}
	return nil
}

// GetRoom returns the room or ErrNotFound.
func (s *Store) GetRoom(ctx context.Context, id string) (*Room, error) {
	room := &Room{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at FROM rooms WHERE id = ?
	`, id).Scan(&room.ID, &room.Name, &room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: room %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get room: %w", err)
	}
	return room, nil
}

// ListRooms returns all rooms, oldest first.
func (s *Store) ListRooms(ctx context.Context) ([]*Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at FROM rooms ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*Room
	for rows.Next() {
		room := &Room{}
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// RoomCount returns the number of rooms.
func (s *Store) RoomCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count rooms: %w", err)
	}
	return n, nil
}

// ── Users ─────────────────────────────────────────────────────────────────

// SaveDisplayName records the latest display name seen for a speaker.
func (s *Store) SaveDisplayName(ctx context.Context, userID, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, updated_at = excluded.updated_at
	`, userID, displayName, s.now().UTC())
	if err != nil {
		return fmt.Errorf("store: save display name: %w", err)
	}
	return nil
}

// DisplayName returns the stored display name, or "" when none is known.
func (s *Store) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT display_name FROM users WHERE id = ?", userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: display name: %w", err)
	}
	return name, nil
}
