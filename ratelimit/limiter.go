package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidPolicy is returned when a Policy has non-positive limits.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
	// ErrBackendUnavailable wraps storage failures of a shared backend.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)

// Policy describes the limits applied to a single identifier.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
	Block       time.Duration `yaml:"block"`
}

// Validate reports whether p can be enforced.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 || p.Window <= 0 || p.Block <= 0 {
		return ErrInvalidPolicy
	}
	return nil
}

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed      bool
	AttemptsLeft int
	ResetAt      time.Time
}

// Limiter is implemented by every backend.
type Limiter interface {
	Check(ctx context.Context, identifier string, p Policy) (Decision, error)
	Reset(ctx context.Context, identifier string) error
}

type record struct {
	count       int
	windowStart time.Time
	resetAt     time.Time
	blocked     bool
}

// step applies one check to rec at now. A nil rec, or one whose reset time
// has passed, starts a fresh window.
func step(rec *record, now time.Time, p Policy) (*record, Decision) {
	if rec == nil || now.After(rec.resetAt) {
		rec = &record{
			count:       1,
			windowStart: now,
			resetAt:     now.Add(p.Window),
		}
		return rec, Decision{Allowed: true, AttemptsLeft: p.MaxAttempts - 1, ResetAt: rec.resetAt}
	}

	if rec.blocked {
		return rec, Decision{Allowed: false, ResetAt: rec.resetAt}
	}

	if rec.count >= p.MaxAttempts {
		rec.blocked = true
		rec.resetAt = now.Add(p.Block)
		return rec, Decision{Allowed: false, ResetAt: rec.resetAt}
	}

	rec.count++
	return rec, Decision{Allowed: true, AttemptsLeft: p.MaxAttempts - rec.count, ResetAt: rec.resetAt}
}
