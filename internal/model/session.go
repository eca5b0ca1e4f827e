// Package model defines the data structures persisted in the durable store.
package model

import (
	"time"
)

// SessionStatus is the lifecycle state of a session. The coordinator moves a
// session monotonically through the phase sequence; "error" is reachable from
// any non-terminal state and "stopped" only from "running".
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusCloning      SessionStatus = "cloning"
	StatusAnalyzing    SessionStatus = "analyzing"
	StatusInstalling   SessionStatus = "installing"
	StatusBuilding     SessionStatus = "building"
	StatusStarting     SessionStatus = "starting"
	StatusRunning      SessionStatus = "running"
	StatusStopped      SessionStatus = "stopped"
	StatusError        SessionStatus = "error"
)

// Terminal reports whether the status admits no further phase transitions.
// A running session still accepts an explicit stop.
func (s SessionStatus) Terminal() bool {
	return s == StatusRunning || s == StatusStopped || s == StatusError
}

// Log levels used in session log entries.
const (
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// MaxVisibleLogs bounds how many log entries a read returns. Older entries
// may survive in storage but are not guaranteed visible.
const MaxVisibleLogs = 100

// LogEntry is one line of session progress. Logs are append-only and, with
// the status field, the only externally observable proof of progress.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// EnvironmentConfig describes how to install, build and run a repository.
// It is immutable once attached to a session.
type EnvironmentConfig struct {
	// Type is the runtime family tag: nodejs, python, rust, go, ruby, php,
	// java, static, docker or unknown.
	Type string `json:"type"`

	// Name is a human-readable label for the detected environment.
	Name string `json:"name"`

	// Port the application is expected to listen on.
	Port int `json:"port"`

	// InstallCommand is optional; the install phase is skipped when empty.
	InstallCommand string `json:"install_command,omitempty"`

	// BuildCommand is optional; the build phase is skipped when empty.
	BuildCommand string `json:"build_command,omitempty"`

	// StartCommand launches the long-running server process.
	StartCommand string `json:"start_command"`

	// Env holds environment variables for the start command. Names are
	// validated and values shell-escaped before they reach a shell.
	Env map[string]string `json:"env,omitempty"`

	// ExposePort controls whether the port is published as a preview URL.
	ExposePort bool `json:"expose_port"`
}

// Session is the durable record of one repository's isolated development
// environment. The coordinator is its sole writer.
type Session struct {
	ID        string `json:"id"`
	RepoOwner string `json:"repo_owner"`
	RepoName  string `json:"repo_name"`

	Status SessionStatus `json:"status"`

	// Environment is set once during the analyze phase.
	Environment *EnvironmentConfig `json:"environment,omitempty"`

	// PreviewURL is set at most once, during the expose step.
	PreviewURL string `json:"preview_url,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	Logs []LogEntry `json:"logs"`

	// Error holds the failure message, set only on transition to error.
	Error string `json:"error,omitempty"`
}

// Repo returns the canonical "owner/repo" identifier.
func (s *Session) Repo() string {
	return s.RepoOwner + "/" + s.RepoName
}

// AppendLog records a progress line and bumps the activity timestamp.
func (s *Session) AppendLog(level, message string) {
	now := time.Now().UTC()
	s.Logs = append(s.Logs, LogEntry{Time: now, Level: level, Message: message})
	s.LastActivityAt = now
}

// SetStatus transitions the session and bumps the activity timestamp.
func (s *Session) SetStatus(status SessionStatus) {
	s.Status = status
	s.LastActivityAt = time.Now().UTC()
}

// VisibleLogs returns the most recent MaxVisibleLogs entries.
func (s *Session) VisibleLogs() []LogEntry {
	if len(s.Logs) <= MaxVisibleLogs {
		return s.Logs
	}
	return s.Logs[len(s.Logs)-MaxVisibleLogs:]
}

// View builds the read-side projection served to polling clients.
func (s *Session) View() *SessionView {
	return &SessionView{
		ID:          s.ID,
		RepoOwner:   s.RepoOwner,
		RepoName:    s.RepoName,
		Status:      s.Status,
		Environment: s.Environment,
		PreviewURL:  s.PreviewURL,
		CreatedAt:   s.CreatedAt,
		Logs:        s.VisibleLogs(),
		Error:       s.Error,
	}
}

// SessionView is what status endpoints return. Readers never mutate the
// underlying session record.
type SessionView struct {
	ID          string             `json:"id"`
	RepoOwner   string             `json:"repo_owner"`
	RepoName    string             `json:"repo_name"`
	Status      SessionStatus      `json:"status"`
	Environment *EnvironmentConfig `json:"environment,omitempty"`
	PreviewURL  string             `json:"preview_url,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	Logs        []LogEntry         `json:"logs"`
	Error       string             `json:"error,omitempty"`
}
