// Package store provides the durable key/value layer behind sessions, the
// active-session index, repository locks and rate-limit counters. Every key
// carries a time-to-live; expiry is the ultimate cleanup for anything a
// crashed writer leaves behind.
package store

import (
	"context"
	"errors"

	"repolaunch-server/internal/model"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("not found")

// Store is the durable store abstraction. The Redis implementation is the
// production backend; the in-memory implementation backs tests and local
// development. The store offers no transactions beyond per-key conditional
// writes, so callers follow a single-writer discipline for session records.
type Store interface {
	// GetSession loads a session record. ErrNotFound if absent or expired.
	GetSession(ctx context.Context, id string) (*model.Session, error)

	// PutSession writes a full session record with the session lifetime TTL.
	PutSession(ctx context.Context, session *model.Session) error

	// DeleteSession removes a session record.
	DeleteSession(ctx context.Context, id string) error

	// GetActiveSession resolves the repo key to its live session id.
	// ErrNotFound when no session is active for the repository.
	GetActiveSession(ctx context.Context, repoKey string) (string, error)

	// SetActiveSession records the repo -> session mapping with the session
	// lifetime TTL. Its presence is the authoritative answer to "is there
	// already a session for this repo".
	SetActiveSession(ctx context.Context, repoKey, sessionID string) error

	// DeleteActiveSession drops the repo -> session mapping.
	DeleteActiveSession(ctx context.Context, repoKey string) error

	// AcquireLock attempts a conditional write of the creation lock for the
	// repository. Returns false when another holder's lock is live.
	AcquireLock(ctx context.Context, repoKey, token string) (bool, error)

	// ReleaseLock deletes the lock only if it still holds token, so an
	// expired-and-reacquired lock is never released by a stale holder.
	ReleaseLock(ctx context.Context, repoKey, token string) error

	// LockHeld reports whether a creation lock is currently live.
	LockHeld(ctx context.Context, repoKey string) (bool, error)

	// IncrCounter bumps a rolling-window counter, starting its TTL on first
	// increment, and returns the new value.
	IncrCounter(ctx context.Context, key string, window int) (int64, error)

	// DecrCounter decrements a counter, flooring at zero.
	DecrCounter(ctx context.Context, key string) error

	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Key helpers. The persisted layout is:
//
//	session:{id}          full session JSON
//	active:{owner}/{repo} live session id
//	lock:{owner}/{repo}   creation lock token, short TTL
//	ratelimit:{...}       rolling-window counters
func sessionKey(id string) string     { return "session:" + id }
func activeKey(repoKey string) string { return "active:" + repoKey }
func lockKey(repoKey string) string   { return "lock:" + repoKey }

// RateLimitKey builds a counter key under the ratelimit prefix.
func RateLimitKey(parts ...string) string {
	key := "ratelimit"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}
