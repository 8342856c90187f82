// Package memstore is an in-process secureauth.UserStore. It backs tests and
// the demo server; state is lost on restart.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/secureauth"
	"github.com/google/uuid"
)

// Store keeps users, login attempts and security events in maps and slices
// guarded by one RWMutex. Every value crossing the API is a copy.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*secureauth.User
	byEmail  map[string]string
	attempts []secureauth.LoginAttempt
	events   []secureauth.SecurityEvent
}

var _ secureauth.UserStore = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:   make(map[string]*secureauth.User),
		byEmail: make(map[string]string),
	}
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*secureauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, secureauth.ErrUserNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *Store) FindUserByID(_ context.Context, id string) (*secureauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, secureauth.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *Store) FindUserByVerificationToken(_ context.Context, tokenHash string, now time.Time) (*secureauth.User, error) {
	return s.findFirst(func(u *secureauth.User) bool {
		return tokenHash != "" && u.VerificationTokenHash == tokenHash && u.VerificationExpiresAt.After(now)
	})
}

func (s *Store) FindUserByResetToken(_ context.Context, tokenHash string, now time.Time) (*secureauth.User, error) {
	return s.findFirst(func(u *secureauth.User) bool {
		return tokenHash != "" && u.ResetTokenHash == tokenHash && u.ResetExpiresAt.After(now)
	})
}

func (s *Store) findFirst(match func(*secureauth.User) bool) (*secureauth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, secureauth.ErrUserNotFound
}

func (s *Store) CreateUser(_ context.Context, u *secureauth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[u.Email]; taken {
		return secureauth.ErrDuplicateEmail
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u.Clone()
	s.byEmail[u.Email] = u.ID
	return nil
}

// Apply runs cmd against a copy of the record and commits the copy only if
// the command succeeds.
func (s *Store) Apply(_ context.Context, userID string, cmd secureauth.Command) (*secureauth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[userID]
	if !ok {
		return nil, secureauth.ErrUserNotFound
	}
	next := current.Clone()
	if err := cmd.ApplyTo(next); err != nil {
		return nil, err
	}
	s.users[userID] = next
	return next.Clone(), nil
}

func (s *Store) CountRecentFailedAttempts(_ context.Context, email string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.attempts {
		if a.Email == email && !a.Success && !a.At.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) RecordLoginAttempt(_ context.Context, attempt secureauth.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *Store) AppendSecurityEvent(_ context.Context, event secureauth.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of every recorded security event, oldest first.
func (s *Store) Events() []secureauth.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]secureauth.SecurityEvent(nil), s.events...)
}

// Attempts returns a copy of the login attempt history, oldest first.
func (s *Store) Attempts() []secureauth.LoginAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]secureauth.LoginAttempt(nil), s.attempts...)
}

// PruneAttempts drops attempts older than before and returns how many were removed.
func (s *Store) PruneAttempts(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.attempts[:0]
	for _, a := range s.attempts {
		if !a.At.Before(before) {
			kept = append(kept, a)
		}
	}
	removed := len(s.attempts) - len(kept)
	s.attempts = kept
	return removed
}

// Len returns the number of stored users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.users)
}
