// Package ratelimit implements the fixed-window attempt limiter with an
// escalating block used in front of credential endpoints.
//
// A record is created lazily on the first Check for an identifier. Once the
// window holds MaxAttempts accepted checks, the next Check blocks the
// identifier for Policy.Block. A block or window that has passed is replaced
// by a fresh window on the next Check, so callers never need to clean up.
//
// Two backends share the same state machine:
//
//   - [MemoryLimiter]: process-local, sharded by identifier hash.
//   - [RedisLimiter]: shared across instances, applied atomically by a Lua script.
package ratelimit
