// Package cooldown tracks, per action key, when an actuator command was last sent and how
// long the next identical command must wait.
package cooldown

import (
	"context"
	"time"
)

// Entry is the cooldown state of one key.
type Entry struct {
	Key           string    `json:"key"`
	LastInvokedAt time.Time `json:"last_invoked_at"`
	DurationMs    int64     `json:"duration_ms"`
	Extended      bool      `json:"extended"` // set by a vendor rate-limit response
}

func (e Entry) Duration() time.Duration { return time.Duration(e.DurationMs) * time.Millisecond }

func (e Entry) ExpiresAt() time.Time { return e.LastInvokedAt.Add(e.Duration()) }

// ActiveAt reports now - lastInvokedAt < duration.
func (e Entry) ActiveAt(now time.Time) bool { return now.Sub(e.LastInvokedAt) < e.Duration() }

// Remaining is zero once the window has elapsed.
func (e Entry) Remaining(now time.Time) time.Duration {
	if r := e.ExpiresAt().Sub(now); r > 0 {
		return r
	}
	return 0
}

// Store is the only mutable state of the control loop. Implementations must be safe for
// concurrent use; each controller owns its own instance.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Record starts a base window of d at time at.
	Record(ctx context.Context, key string, at time.Time, d time.Duration) (Entry, error)
	// Extend starts an extended window of d at time at.
	Extend(ctx context.Context, key string, at time.Time, d time.Duration) (Entry, error)
	Snapshot(ctx context.Context) ([]Entry, error)
	Reset(ctx context.Context) error
}

// Active reports whether key is cooling down at now and for how much longer.
func Active(ctx context.Context, s Store, key string, now time.Time) (bool, time.Duration, error) {
	e, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, 0, err
	}
	if !e.ActiveAt(now) {
		return false, 0, nil
	}
	return true, e.Remaining(now), nil
}

// merge computes the entry written for (key, at, d). An extended window that is still
// running and ends later than the new one is carried over, so a base Record can never
// shorten it.
func merge(prev Entry, had bool, key string, at time.Time, d time.Duration, extended bool) Entry {
	next := Entry{Key: key, LastInvokedAt: at, DurationMs: d.Milliseconds(), Extended: extended}
	if had && prev.Extended && prev.ActiveAt(at) && prev.ExpiresAt().After(next.ExpiresAt()) {
		next.DurationMs = prev.ExpiresAt().Sub(at).Milliseconds()
		next.Extended = true
	}
	return next
}
