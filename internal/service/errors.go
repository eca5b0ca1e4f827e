// Package service implements the session lifecycle: deduplicated launch,
// background phase execution, command pass-through and the read-side status
// projection.
package service

import "errors"

// Error taxonomy for the synchronous operations. Handlers compare with
// errors.Is and map each family to an HTTP status and business code.
var (
	// ErrInvalidInput covers malformed owner/repo/session identifiers.
	// Raised before any network or storage access, never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound covers unknown repositories and expired or never-created
	// sessions.
	ErrNotFound = errors.New("not found")

	// ErrRetryableConflict signals a concurrent creation in flight after the
	// bounded lock wait expired. The caller is expected to retry.
	ErrRetryableConflict = errors.New("another launch is in progress, retry shortly")

	// ErrUnsafeConfiguration covers classifier or manifest output that fails
	// sanitization. Fatal for the session.
	ErrUnsafeConfiguration = errors.New("unsafe environment configuration")

	// ErrRateLimited covers exceeded creation and exec rate limits.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCommandDenied covers exec commands matching the destructive
	// operation denylist.
	ErrCommandDenied = errors.New("command rejected by policy")

	// ErrNotRunning covers stop/exec attempts against a session that is not
	// in a state that accepts them.
	ErrNotRunning = errors.New("session is not running")
)
