package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 64

type shard struct {
	mu      sync.Mutex
	records map[string]*record
}

// MemoryLimiter keeps records in process memory. Identifiers are spread over
// a fixed set of shards, each guarded by its own mutex, so checks for
// different identifiers rarely contend and the read-modify-write of one
// identifier is always atomic.
type MemoryLimiter struct {
	shards [shardCount]shard
	now    func() time.Time
}

// NewMemoryLimiter returns an empty limiter. A nil clock means time.Now.
func NewMemoryLimiter(now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	l := &MemoryLimiter{now: now}
	for i := range l.shards {
		l.shards[i].records = make(map[string]*record)
	}
	return l
}

func (l *MemoryLimiter) shardFor(identifier string) *shard {
	return &l.shards[xxhash.Sum64String(identifier)%shardCount]
}

// Check applies one attempt for identifier. It never returns a non-nil error
// for a valid policy.
func (l *MemoryLimiter) Check(_ context.Context, identifier string, p Policy) (Decision, error) {
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}

	now := l.now()
	s := l.shardFor(identifier)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, decision := step(s.records[identifier], now, p)
	s.records[identifier] = rec
	return decision, nil
}

// Reset forgets identifier so the next Check opens a clean window.
func (l *MemoryLimiter) Reset(_ context.Context, identifier string) error {
	s := l.shardFor(identifier)
	s.mu.Lock()
	delete(s.records, identifier)
	s.mu.Unlock()
	return nil
}

// Prune drops records whose window or block has already passed and returns
// how many were removed. Pruned identifiers behave exactly as if they had
// expired in place.
func (l *MemoryLimiter) Prune() int {
	now := l.now()
	removed := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for id, rec := range s.records {
			if now.After(rec.resetAt) {
				delete(s.records, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (l *MemoryLimiter) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		n += len(s.records)
		s.mu.Unlock()
	}
	return n
}
