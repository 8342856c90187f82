// Package lockout implements the per-account lock state machine.
//
// An account is Active until its failed-attempt counter reaches the policy
// threshold, at which point it is Locked until a fixed instant. Expiry is lazy:
// a lock whose instant has passed is treated as Active on the next evaluation
// and its counter starts over. A successful credential check always returns
// the account to Active with a zero counter.
//
// The package holds no state. Callers load State from their store, apply a
// transition, and persist the result.
package lockout

import "time"

// Status is the evaluated lock state of an account.
type Status int

const (
	Active Status = iota
	Locked
)

func (s Status) String() string {
	if s == Locked {
		return "locked"
	}
	return "active"
}

// Policy holds the lock threshold and duration.
type Policy struct {
	Threshold int           `yaml:"threshold"`
	Duration  time.Duration `yaml:"duration"`
}

// DefaultPolicy locks for 30 minutes after 5 consecutive failures.
func DefaultPolicy() Policy {
	return Policy{Threshold: 5, Duration: 30 * time.Minute}
}

// State is the lock-relevant part of an account. A zero LockedUntil means
// no lock has been set.
type State struct {
	FailedAttempts int
	LockedUntil    time.Time
}

// StatusAt evaluates s at now.
func (p Policy) StatusAt(s State, now time.Time) Status {
	if !s.LockedUntil.IsZero() && now.Before(s.LockedUntil) {
		return Locked
	}
	return Active
}

// Expired reports whether s carries a lock that has already run out.
func (p Policy) Expired(s State, now time.Time) bool {
	return !s.LockedUntil.IsZero() && !now.Before(s.LockedUntil)
}

// RegisterFailure records one failed verification. It returns the new state
// and whether this failure moved the account into Locked. A failure while
// still locked changes nothing.
func (p Policy) RegisterFailure(s State, now time.Time) (State, bool) {
	if p.StatusAt(s, now) == Locked {
		return s, false
	}
	if p.Expired(s, now) {
		s = State{}
	}

	s.FailedAttempts++
	if s.FailedAttempts >= p.Threshold {
		s.LockedUntil = now.Add(p.Duration)
		return s, true
	}
	return s, false
}

// RegisterSuccess clears the counter and any lock.
func (p Policy) RegisterSuccess(State) State {
	return State{}
}
