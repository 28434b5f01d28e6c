// Package retry retries transient failures of model providers and the Matrix
// homeserver with jittered exponential backoff.
//
//	err := retry.Do(ctx, retry.DefaultConfig, func() error {
//	    return client.Call(ctx)
//	})
//
// An error wrapped with Permanent stops retrying at once. An error wrapped
// with After overrides the next delay, e.g. from a Retry-After header.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Config controls Do.
type Config struct {
	// MaxAttempts counts the first call. Values below 1 mean a single call.
	MaxAttempts int
	// InitialDelay is the first backoff; each later one doubles up to
	// MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Jitter spreads each delay by ±Jitter (0.2 means ±20%). Zero disables it.
	Jitter float64
	// ShouldRetry classifies errors. Nil retries everything not Permanent.
	ShouldRetry func(err error) bool
}

// DefaultConfig suits short network calls.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Jitter:       0.2,
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. errors.Is and errors.As still
// see the wrapped error. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type afterError struct {
	err   error
	delay time.Duration
}

func (a *afterError) Error() string { return a.err.Error() }
func (a *afterError) Unwrap() error { return a.err }

// After asks Do to wait d before the next attempt instead of the computed
// backoff. A non-positive d leaves the backoff unchanged.
func After(err error, d time.Duration) error {
	if err == nil || d <= 0 {
		return err
	}
	return &afterError{err: err, delay: d}
}

// Do calls fn until it succeeds, returns a Permanent error, ShouldRetry
// rejects its error, ctx ends, or MaxAttempts is reached. The last error is
// returned, joined with ctx.Err() when the context ended the loop.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)
	b := Backoff{Min: cfg.InitialDelay, Max: cfg.MaxDelay, Jitter: cfg.Jitter}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) || (cfg.ShouldRetry != nil && !cfg.ShouldRetry(lastErr)) {
			return lastErr
		}
		if attempt >= attempts {
			return lastErr
		}

		delay := b.Next()
		var after *afterError
		if errors.As(lastErr, &after) {
			delay = min(after.delay, b.maxDelay())
		}
		slog.Debug("retry: attempt failed",
			"attempt", attempt, "max", attempts, "delay", delay, "err", lastErr)
		if err := Sleep(ctx, delay); err != nil {
			return errors.Join(lastErr, err)
		}
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Backoff yields exponentially growing delays. The zero value starts at
// 500ms and caps at 10s. It is not safe for concurrent use.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Jitter float64

	next time.Duration
}

func (b *Backoff) minDelay() time.Duration {
	if b.Min <= 0 {
		return DefaultConfig.InitialDelay
	}
	return b.Min
}

func (b *Backoff) maxDelay() time.Duration {
	if b.Max <= 0 {
		return DefaultConfig.MaxDelay
	}
	return max(b.Max, b.minDelay())
}

// Next returns the delay to wait now and advances the sequence.
func (b *Backoff) Next() time.Duration {
	if b.next == 0 {
		b.next = b.minDelay()
	}
	d := b.next
	b.next = min(b.next*2, b.maxDelay())
	if b.Jitter > 0 {
		spread := float64(d) * b.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	return max(d, 0)
}

// Reset restarts the sequence at Min.
func (b *Backoff) Reset() { b.next = 0 }
