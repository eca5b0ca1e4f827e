package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"repolaunch-server/internal/classifier"
	"repolaunch-server/internal/config"
	"repolaunch-server/internal/github"
	"repolaunch-server/internal/model"
	"repolaunch-server/internal/sandbox"
	"repolaunch-server/internal/shell"
	"repolaunch-server/internal/store"
	"repolaunch-server/internal/validate"
)

// errorMessageCap bounds the failure message preserved in a session record.
const errorMessageCap = 1000

// RepoProvider is the repository metadata surface the analyze phase needs.
type RepoProvider interface {
	GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error)
	ListTree(ctx context.Context, owner, repo, branch string) ([]string, error)
	GetFileContent(ctx context.Context, owner, repo, path string) (string, error)
}

// Detacher schedules a background task that must run to completion even
// after the request that triggered it has been answered. The default spawns
// a goroutine; the platform wiring may substitute its own guarantee.
type Detacher func(task func())

// Coordinator owns the session state machine. It is the sole writer of
// session records, repository locks and the active-session index; per
// session, phase execution is strictly sequential, so read-modify-write
// updates need no store-level transactions.
type Coordinator struct {
	store      store.Store
	repos      RepoProvider
	executor   sandbox.Executor
	classifier classifier.Classifier
	cfg        *config.Config
	detach     Detacher
	logger     *log.Logger

	// group collapses concurrent launches for the same repository within
	// this process; the distributed lock still guards cross-instance races.
	group singleflight.Group
}

// NewCoordinator wires the coordinator. A nil detach falls back to plain
// goroutines.
func NewCoordinator(
	st store.Store,
	repos RepoProvider,
	executor sandbox.Executor,
	cls classifier.Classifier,
	cfg *config.Config,
	detach Detacher,
	logger *log.Logger,
) *Coordinator {
	if detach == nil {
		detach = func(task func()) { go task() }
	}
	return &Coordinator{
		store:      st,
		repos:      repos,
		executor:   executor,
		classifier: cls,
		cfg:        cfg,
		detach:     detach,
		logger:     logger,
	}
}

// Launch returns the session id for owner/repo, creating a new session and
// scheduling its phase execution when none exists. At most one session per
// repository is created under concurrent first-requests: the fast path reads
// the active-session index, and creation is serialized by singleflight in
// process and a short-TTL conditional-write lock across processes.
func (c *Coordinator) Launch(ctx context.Context, owner, repo string) (string, error) {
	if !validate.Owner(owner) || !validate.Repo(repo) {
		return "", fmt.Errorf("%w: bad repository identifier", ErrInvalidInput)
	}
	repoKey := validate.RepoKey(owner, repo)

	// Fast path: an existing session answers without touching the lock.
	if id, err := c.store.GetActiveSession(ctx, repoKey); err == nil {
		return id, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	id, err, _ := c.group.Do(repoKey, func() (interface{}, error) {
		return c.createSession(ctx, owner, repo, repoKey)
	})
	if err != nil {
		return "", err
	}
	return id.(string), nil
}

// createSession runs the lock-guarded check-and-create sequence and schedules
// background phase execution for the new session.
func (c *Coordinator) createSession(ctx context.Context, owner, repo, repoKey string) (string, error) {
	token := uuid.New().String()

	acquired, err := c.store.AcquireLock(ctx, repoKey, token)
	if err != nil {
		return "", err
	}
	if !acquired {
		// Someone else is creating. Poll for their session to appear,
		// re-checking for lock release in the same loop.
		acquired, err = c.awaitLock(ctx, repoKey, token)
		if err != nil {
			return "", err
		}
		if !acquired {
			if id, err := c.store.GetActiveSession(ctx, repoKey); err == nil {
				return id, nil
			}
			// Wait exhausted. A lock that expired in the meantime is fair
			// game for one final attempt; a live lock means a creation is
			// still in flight and the caller should retry.
			if held, err := c.store.LockHeld(ctx, repoKey); err == nil && !held {
				acquired, err = c.store.AcquireLock(ctx, repoKey, token)
				if err != nil {
					return "", err
				}
			}
			if !acquired {
				return "", ErrRetryableConflict
			}
		}
	}
	defer func() {
		if err := c.store.ReleaseLock(context.WithoutCancel(ctx), repoKey, token); err != nil {
			c.logger.Warn("failed to release creation lock", "repo", repoKey, "err", err)
		}
	}()

	// Double-check under the lock: a concurrent creator may have finished
	// between the fast path and acquisition. Not a transaction — the store
	// offers none — but it closes the common race.
	if id, err := c.store.GetActiveSession(ctx, repoKey); err == nil {
		return id, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	if err := c.checkRepoLimit(ctx, repoKey); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	session := &model.Session{
		ID:             uuid.New().String(),
		RepoOwner:      owner,
		RepoName:       repo,
		Status:         model.StatusInitializing,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	session.AppendLog(model.LogLevelInfo, "session created for "+repoKey)

	if err := c.store.PutSession(ctx, session); err != nil {
		return "", err
	}
	if err := c.store.SetActiveSession(ctx, repoKey, session.ID); err != nil {
		return "", err
	}

	c.logger.Info("session created", "session", session.ID, "repo", repoKey)

	// Phase execution outlives this request; the caller only polls.
	sessionID := session.ID
	c.detach(func() { c.runPhases(context.Background(), sessionID) })

	return session.ID, nil
}

// awaitLock polls the active-session index and the lock at a fixed interval
// up to the bounded wait. It returns (true, nil) when the lock was acquired,
// (false, nil) when the wait exhausted — the caller decides between
// returning a found session and surfacing a conflict.
func (c *Coordinator) awaitLock(ctx context.Context, repoKey, token string) (bool, error) {
	deadline := time.Now().Add(c.cfg.Lifecycle.LockWait)
	ticker := time.NewTicker(c.cfg.Lifecycle.LockPoll)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}

		if _, err := c.store.GetActiveSession(ctx, repoKey); err == nil {
			// The concurrent creator finished; the double-check after the
			// (non-)acquisition path will pick the session up.
			return false, nil
		}
		held, err := c.store.LockHeld(ctx, repoKey)
		if err != nil {
			return false, err
		}
		if !held {
			acquired, err := c.store.AcquireLock(ctx, repoKey, token)
			if err != nil {
				return false, err
			}
			if acquired {
				return true, nil
			}
		}
	}
	return false, nil
}

// checkRepoLimit enforces the concurrently-active-sessions-per-repository
// cap with a TTL'd counter as the safety net against permanent leakage.
func (c *Coordinator) checkRepoLimit(ctx context.Context, repoKey string) error {
	window := int(c.cfg.Lifecycle.SessionTTL.Seconds())
	count, err := c.store.IncrCounter(ctx, store.RateLimitKey("repo", repoKey), window)
	if err != nil {
		return err
	}
	if count > int64(c.cfg.Limits.SessionsPerRepo) {
		if err := c.store.DecrCounter(ctx, store.RateLimitKey("repo", repoKey)); err != nil {
			c.logger.Warn("failed to roll back repo counter", "repo", repoKey, "err", err)
		}
		return fmt.Errorf("%w: too many active sessions for %s", ErrRateLimited, repoKey)
	}
	return nil
}

// Stop terminates a running session: a best-effort process sweep inside the
// environment, then the stopped status. It is a convenience, not a security
// boundary — the background task is not interrupted, only future reads
// change.
func (c *Coordinator) Stop(ctx context.Context, sessionID string) error {
	if !validate.SessionID(sessionID) {
		return fmt.Errorf("%w: bad session id", ErrInvalidInput)
	}
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if session.Status == model.StatusStopped {
		return nil
	}
	if session.Status != model.StatusRunning {
		return ErrNotRunning
	}

	if _, err := c.executor.Exec(ctx, sessionID, shell.KillCommand, 30*time.Second); err != nil {
		c.logger.Warn("process sweep failed", "session", sessionID, "err", err)
	}

	session.SetStatus(model.StatusStopped)
	session.AppendLog(model.LogLevelInfo, "session stopped")
	if err := c.store.PutSession(ctx, session); err != nil {
		return err
	}
	c.releaseRepo(ctx, session.Repo())
	return nil
}

// Exec runs a command in the session's workspace, gated by the destructive
// command denylist and a rolling per-session rate limit.
func (c *Coordinator) Exec(ctx context.Context, sessionID, command string) (*sandbox.ExecResult, error) {
	if !validate.SessionID(sessionID) {
		return nil, fmt.Errorf("%w: bad session id", ErrInvalidInput)
	}
	if shell.Denied(command) {
		return nil, ErrCommandDenied
	}

	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if session.Status == model.StatusStopped || session.Status == model.StatusError {
		return nil, ErrNotRunning
	}

	count, err := c.store.IncrCounter(ctx,
		store.RateLimitKey("exec", sessionID), c.cfg.Limits.ExecWindow)
	if err != nil {
		return nil, err
	}
	if count > int64(c.cfg.Limits.ExecsPerSession) {
		return nil, fmt.Errorf("%w: too many commands, slow down", ErrRateLimited)
	}

	return c.executor.Exec(ctx, sessionID,
		shell.PhaseCommand(c.cfg.Sandbox.Workdir, command), 60*time.Second)
}

// releaseRepo clears the dedup anchor and repo counter once a session
// reaches a dead state.
func (c *Coordinator) releaseRepo(ctx context.Context, repoKey string) {
	if err := c.store.DeleteActiveSession(ctx, repoKey); err != nil {
		c.logger.Warn("failed to clear active index", "repo", repoKey, "err", err)
	}
	if err := c.store.DecrCounter(ctx, store.RateLimitKey("repo", repoKey)); err != nil {
		c.logger.Warn("failed to decrement repo counter", "repo", repoKey, "err", err)
	}
}
