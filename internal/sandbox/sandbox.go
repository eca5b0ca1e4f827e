// Package sandbox abstracts the isolated execution environment a session
// runs in. All repository code executes through an Executor — never on the
// host serving the API.
package sandbox

import (
	"context"
	"time"
)

// ExecResult captures the outcome of a command run inside a sandbox.
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Executor is the sandbox capability surface the coordinator drives: check a
// repository out, write files, run shell commands with a bounded timeout and
// publish a TCP port as a preview URL. The sandbox is addressed by the
// session id; the substrate creates it on first use.
type Executor interface {
	// Clone checks the repository out into workdir with a shallow depth.
	Clone(ctx context.Context, sessionID, cloneURL, workdir string) error

	// WriteFile places content at path inside the sandbox.
	WriteFile(ctx context.Context, sessionID, path string, content []byte) error

	// Exec runs a shell command and waits up to timeout for it to finish.
	// A non-zero exit code is reported in the result, not as an error;
	// errors mean the command could not be run at all.
	Exec(ctx context.Context, sessionID, command string, timeout time.Duration) (*ExecResult, error)

	// ExposePort publishes a TCP port and returns its public preview URL.
	ExposePort(ctx context.Context, sessionID string, port int) (string, error)
}
