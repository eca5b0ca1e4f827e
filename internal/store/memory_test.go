package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repolaunch-server/internal/model"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(time.Hour, time.Hour)
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()

	session := &model.Session{
		ID:        "123e4567-e89b-12d3-a456-426614174000",
		RepoOwner: "octocat",
		RepoName:  "Hello-World",
		Status:    model.StatusInitializing,
		CreatedAt: time.Now().UTC(),
	}
	session.AppendLog(model.LogLevelInfo, "created")

	require.NoError(t, st.PutSession(ctx, session))

	got, err := st.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, model.StatusInitializing, got.Status)
	assert.Len(t, got.Logs, 1)

	require.NoError(t, st.DeleteSession(ctx, session.ID))
	_, err = st.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetSessionNotFound(t *testing.T) {
	_, err := newTestStore().GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(10*time.Millisecond, time.Hour)

	session := &model.Session{ID: "expiring", Status: model.StatusRunning}
	require.NoError(t, st.PutSession(ctx, session))

	time.Sleep(25 * time.Millisecond)
	_, err := st.GetSession(ctx, "expiring")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActiveSessionIndex(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()

	_, err := st.GetActiveSession(ctx, "octocat/Hello-World")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.SetActiveSession(ctx, "octocat/Hello-World", "session-1"))
	id, err := st.GetActiveSession(ctx, "octocat/Hello-World")
	require.NoError(t, err)
	assert.Equal(t, "session-1", id)

	require.NoError(t, st.DeleteActiveSession(ctx, "octocat/Hello-World"))
	_, err = st.GetActiveSession(ctx, "octocat/Hello-World")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLockMutualExclusion(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()

	acquired, err := st.AcquireLock(ctx, "a/b", "token-1")
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = st.AcquireLock(ctx, "a/b", "token-2")
	require.NoError(t, err)
	assert.False(t, acquired)

	held, err := st.LockHeld(ctx, "a/b")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestLockReleaseRequiresToken(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()

	acquired, err := st.AcquireLock(ctx, "a/b", "token-1")
	require.NoError(t, err)
	require.True(t, acquired)

	// A release with the wrong token must not free the lock.
	require.NoError(t, st.ReleaseLock(ctx, "a/b", "token-2"))
	held, err := st.LockHeld(ctx, "a/b")
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, st.ReleaseLock(ctx, "a/b", "token-1"))
	held, err = st.LockHeld(ctx, "a/b")
	require.NoError(t, err)
	assert.False(t, held)

	acquired, err = st.AcquireLock(ctx, "a/b", "token-3")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestLockExpiry(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(time.Hour, 10*time.Millisecond)

	acquired, err := st.AcquireLock(ctx, "a/b", "token-1")
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(25 * time.Millisecond)

	held, err := st.LockHeld(ctx, "a/b")
	require.NoError(t, err)
	assert.False(t, held)

	acquired, err = st.AcquireLock(ctx, "a/b", "token-2")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestCounterWindow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore()
	key := RateLimitKey("exec", "session-1")

	for i := int64(1); i <= 3; i++ {
		count, err := st.IncrCounter(ctx, key, 60)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	require.NoError(t, st.DecrCounter(ctx, key))
	count, err := st.IncrCounter(ctx, key, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestDecrCounterOnMissingKey(t *testing.T) {
	st := newTestStore()
	assert.NoError(t, st.DecrCounter(context.Background(), "never-incremented"))
}

func TestRateLimitKey(t *testing.T) {
	assert.Equal(t, "ratelimit:exec:abc", RateLimitKey("exec", "abc"))
	assert.Equal(t, "ratelimit:ip:1.2.3.4", RateLimitKey("ip", "1.2.3.4"))
}
