package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"repolaunch-server/internal/classifier"
	"repolaunch-server/internal/model"
	"repolaunch-server/internal/shell"
)

// startLogFile receives the detached server process output inside the
// sandbox.
const startLogFile = "/tmp/start.log"

// runPhases drives one session through clone -> analyze -> install ->
// build -> start. Phases are strictly sequential; install and build are
// skipped when the environment declares no command for them. All fatal
// errors are caught here, written into the session record, and swallowed —
// nothing is awaiting this task, so nothing may propagate out of it.
func (c *Coordinator) runPhases(ctx context.Context, sessionID string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("phase execution panicked", "session", sessionID, "panic", r)
			if session, err := c.store.GetSession(ctx, sessionID); err == nil {
				c.failSession(ctx, session, fmt.Sprintf("internal error: %v", r))
			}
		}
	}()

	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		c.logger.Error("session record vanished before phase execution", "session", sessionID, "err", err)
		return
	}

	// Clone. Failure here is fatal.
	c.transition(ctx, session, model.StatusCloning, "cloning "+session.Repo())
	cloneURL := shell.CloneURL(session.RepoOwner, session.RepoName)
	cloneCtx, cancel := context.WithTimeout(ctx, c.cfg.Lifecycle.CloneTimeout)
	err = c.executor.Clone(cloneCtx, sessionID, cloneURL, c.cfg.Sandbox.Workdir)
	cancel()
	if err != nil {
		c.failSession(ctx, session, "clone failed: "+err.Error())
		return
	}
	c.appendLog(ctx, session, model.LogLevelInfo, "clone complete")

	// Analyze. The environment is attached exactly once.
	c.transition(ctx, session, model.StatusAnalyzing, "analyzing repository")
	result, err := c.analyze(ctx, session)
	if err != nil {
		c.failSession(ctx, session, "analysis failed: "+err.Error())
		return
	}
	session.Environment = &result.Config
	c.appendLog(ctx, session, model.LogLevelInfo, result.LogLine())

	env := session.Environment

	// Install. Non-fatal: many package managers exit non-zero on warnings
	// that are not build-breaking.
	if env.InstallCommand != "" {
		c.transition(ctx, session, model.StatusInstalling, "installing dependencies: "+env.InstallCommand)
		if err := c.execPhase(ctx, sessionID, env.InstallCommand, c.cfg.Lifecycle.InstallTimeout); err != nil {
			c.appendLog(ctx, session, model.LogLevelWarn, "install had issues, continuing: "+err.Error())
		} else {
			c.appendLog(ctx, session, model.LogLevelInfo, "install complete")
		}
	}

	// Build. Fatal: a failed build means nothing runnable exists.
	if env.BuildCommand != "" {
		c.transition(ctx, session, model.StatusBuilding, "building: "+env.BuildCommand)
		if err := c.execPhase(ctx, sessionID, env.BuildCommand, c.cfg.Lifecycle.BuildTimeout); err != nil {
			c.failSession(ctx, session, "build failed: "+err.Error())
			return
		}
		c.appendLog(ctx, session, model.LogLevelInfo, "build complete")
	}

	// Start. The process is launched detached so this phase completes
	// without waiting for the server to exit.
	c.transition(ctx, session, model.StatusStarting, "starting: "+env.StartCommand)
	startCmd, err := shell.StartCommand(c.cfg.Sandbox.Workdir, env.StartCommand, env.Env, startLogFile)
	if err != nil {
		if errors.Is(err, shell.ErrUnsafeEnvName) {
			c.failSession(ctx, session, ErrUnsafeConfiguration.Error()+": "+err.Error())
		} else {
			c.failSession(ctx, session, "start failed: "+err.Error())
		}
		return
	}
	startCtx, cancel := context.WithTimeout(ctx, c.cfg.Lifecycle.StartTimeout)
	_, err = c.executor.Exec(startCtx, sessionID, startCmd, c.cfg.Lifecycle.StartTimeout)
	cancel()
	if err != nil {
		c.failSession(ctx, session, "start failed: "+err.Error())
		return
	}

	// Give the server a moment to bind before publishing the port. A failed
	// expose is tolerated: the session still runs, just without a preview.
	time.Sleep(c.cfg.Lifecycle.SettleDelay)
	if env.ExposePort {
		url, err := c.executor.ExposePort(ctx, sessionID, env.Port)
		if err != nil {
			c.appendLog(ctx, session, model.LogLevelWarn, "could not expose preview port: "+err.Error())
		} else {
			session.PreviewURL = url
			c.appendLog(ctx, session, model.LogLevelInfo, "preview available at "+url)
		}
	}

	c.transition(ctx, session, model.StatusRunning, "environment is running")
	c.logger.Info("session running", "session", sessionID, "repo", session.Repo(), "preview", session.PreviewURL)
}

// analyze gathers repository signals and classifies them, preferring the
// deterministic static analysis over the AI classifier whenever a parseable
// manifest exists.
func (c *Coordinator) analyze(ctx context.Context, session *model.Session) (*classifier.Result, error) {
	repoInfo, err := c.repos.GetRepository(ctx, session.RepoOwner, session.RepoName)
	if err != nil {
		return nil, err
	}

	signals := &classifier.Signals{
		Owner:       session.RepoOwner,
		Repo:        session.RepoName,
		Language:    repoInfo.Language,
		Description: repoInfo.Description,
		ConfigFiles: make(map[string]string),
	}

	signals.FilePaths, err = c.repos.ListTree(ctx, session.RepoOwner, session.RepoName, repoInfo.DefaultBranch)
	if err != nil {
		// A tree we cannot list degrades the signal but is not fatal; the
		// classifier can still work from the repo metadata.
		c.appendLog(ctx, session, model.LogLevelWarn, "could not list repository tree: "+err.Error())
	}

	rootFiles := make(map[string]bool, len(signals.FilePaths))
	for _, p := range signals.FilePaths {
		rootFiles[p] = true
	}
	for _, name := range classifier.ConfigFileAllowList {
		if len(signals.FilePaths) > 0 && !rootFiles[name] {
			continue
		}
		content, err := c.repos.GetFileContent(ctx, session.RepoOwner, session.RepoName, name)
		if err != nil {
			continue
		}
		signals.ConfigFiles[name] = content
	}

	if result := classifier.DetectStatic(signals); result != nil {
		return result, nil
	}
	return c.classifier.Classify(ctx, signals)
}

// execPhase runs an install or build command in the workspace and folds a
// non-zero exit into the error.
func (c *Coordinator) execPhase(ctx context.Context, sessionID, command string, timeout time.Duration) error {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.executor.Exec(execCtx, sessionID, shell.PhaseCommand(c.cfg.Sandbox.Workdir, command), timeout)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		msg := result.Stderr
		if msg == "" {
			msg = result.Stdout
		}
		if len(msg) > errorMessageCap {
			msg = msg[:errorMessageCap]
		}
		return fmt.Errorf("exit code %d: %s", result.ExitCode, msg)
	}
	return nil
}

// transition persists a status change together with a progress log line.
// Every mutation is a read-modify-write of the full record; the coordinator
// is the single writer for this session, so the pattern is race-free within
// a lifecycle.
func (c *Coordinator) transition(ctx context.Context, session *model.Session, status model.SessionStatus, message string) {
	session.SetStatus(status)
	session.AppendLog(model.LogLevelInfo, message)
	if err := c.store.PutSession(ctx, session); err != nil {
		c.logger.Error("failed to persist session transition", "session", session.ID, "status", status, "err", err)
	}
}

// appendLog persists a log line without a status change.
func (c *Coordinator) appendLog(ctx context.Context, session *model.Session, level, message string) {
	session.AppendLog(level, message)
	if err := c.store.PutSession(ctx, session); err != nil {
		c.logger.Error("failed to persist session log", "session", session.ID, "err", err)
	}
}

// failSession moves the session to the terminal error state, preserving the
// (length-capped) message for diagnosis, and releases the dedup anchor so a
// fresh launch can be attempted.
func (c *Coordinator) failSession(ctx context.Context, session *model.Session, message string) {
	if len(message) > errorMessageCap {
		message = message[:errorMessageCap]
	}
	session.Error = message
	session.SetStatus(model.StatusError)
	session.AppendLog(model.LogLevelError, message)
	if err := c.store.PutSession(ctx, session); err != nil {
		c.logger.Error("failed to persist session failure", "session", session.ID, "err", err)
	}
	c.releaseRepo(ctx, session.Repo())
	c.logger.Error("session failed", "session", session.ID, "repo", session.Repo(), "reason", message)
}
