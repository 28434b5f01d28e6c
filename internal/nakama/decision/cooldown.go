package decision

import (
	"sync"
	"time"
)

// Cooldown enforces a per-room sliding-window cap on how often the teammate
// speaks. It is safe for concurrent use.
type Cooldown struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	history map[string][]time.Time // roomID → response timestamps in window
}

// NewCooldown allows at most limit responses per room within window.
// A non-positive window returns nil, which disables the cooldown.
// If limit ≤ 0 it defaults to 1.
func NewCooldown(limit int, window time.Duration) *Cooldown {
	if window <= 0 {
		return nil
	}
	if limit <= 0 {
		limit = 1
	}
	return &Cooldown{
		limit:   limit,
		window:  window,
		history: make(map[string][]time.Time),
	}
}

// Allowed reports whether the room may respond at now. A nil Cooldown always
// allows.
func (c *Cooldown) Allowed(roomID string, now time.Time) bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prune(roomID, now)) < c.limit
}

// Record notes a response for the room at now.
func (c *Cooldown) Record(roomID string, now time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[roomID] = append(c.prune(roomID, now), now)
}

// Forget drops the room's history.
func (c *Cooldown) Forget(roomID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.history, roomID)
	c.mu.Unlock()
}

// prune drops timestamps outside the window. Must be called with mu held.
func (c *Cooldown) prune(roomID string, now time.Time) []time.Time {
	cutoff := now.Add(-c.window)
	existing := c.history[roomID]
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(c.history, roomID)
		return nil
	}
	c.history[roomID] = valid
	return valid
}
