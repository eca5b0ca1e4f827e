package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"repolaunch-server/internal/model"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is a thread-safe, in-memory Store with per-key expiry. It backs
// tests and local development without a Redis instance and mirrors the Redis
// semantics the coordinator depends on, including conditional lock writes.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	counters   map[string]memoryCounter
	sessionTTL time.Duration
	lockTTL    time.Duration
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(sessionTTL, lockTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]memoryEntry),
		counters:   make(map[string]memoryCounter),
		sessionTTL: sessionTTL,
		lockTTL:    lockTTL,
	}
}

func (s *MemoryStore) get(key string) (string, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if entry.expired(time.Now()) {
		delete(s.entries, key)
		return "", false
	}
	return entry.value, true
}

func (s *MemoryStore) set(key, value string, ttl time.Duration) {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = entry
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.get(sessionKey(id))
	if !ok {
		return nil, ErrNotFound
	}
	var session model.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *MemoryStore) PutSession(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(sessionKey(session.ID), string(data), s.sessionTTL)
	return nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionKey(id))
	return nil
}

func (s *MemoryStore) GetActiveSession(ctx context.Context, repoKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.get(activeKey(repoKey))
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (s *MemoryStore) SetActiveSession(ctx context.Context, repoKey, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(activeKey(repoKey), sessionID, s.sessionTTL)
	return nil
}

func (s *MemoryStore) DeleteActiveSession(ctx context.Context, repoKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, activeKey(repoKey))
	return nil
}

func (s *MemoryStore) AcquireLock(ctx context.Context, repoKey, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.get(lockKey(repoKey)); held {
		return false, nil
	}
	s.set(lockKey(repoKey), token, s.lockTTL)
	return true, nil
}

func (s *MemoryStore) ReleaseLock(ctx context.Context, repoKey, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, held := s.get(lockKey(repoKey)); held && current == token {
		delete(s.entries, lockKey(repoKey))
	}
	return nil
}

func (s *MemoryStore) LockHeld(ctx context.Context, repoKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, held := s.get(lockKey(repoKey))
	return held, nil
}

func (s *MemoryStore) IncrCounter(ctx context.Context, key string, window int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	counter, ok := s.counters[key]
	if !ok || now.After(counter.expiresAt) {
		counter = memoryCounter{expiresAt: now.Add(time.Duration(window) * time.Second)}
	}
	counter.count++
	s.counters[key] = counter
	return counter.count, nil
}

func (s *MemoryStore) DecrCounter(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok {
		return nil
	}
	if counter.count > 0 {
		counter.count--
	}
	s.counters[key] = counter
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
