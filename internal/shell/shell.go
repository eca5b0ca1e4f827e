// Package shell builds safe shell invocations from externally supplied
// configuration. Commands derived from repository contents or classifier
// output are treated as configuration, but every value crossing into a shell
// passes through the quoting helpers here, and identifier-shaped inputs are
// allow-list validated and fail closed.
package shell

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrUnsafeEnvName is returned when an environment variable name falls
// outside the allowed grammar. The whole operation aborts rather than
// silently dropping the variable, because dropping would silently change
// application behavior.
var ErrUnsafeEnvName = errors.New("unsafe environment variable name")

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidEnvName reports whether name matches [A-Za-z_][A-Za-z0-9_]*.
func ValidEnvName(name string) bool {
	return envNamePattern.MatchString(name)
}

// Quote wraps s in single quotes, doubling out any embedded single quote
// ('  ->  '\''). The result is safe to interpolate into a POSIX shell
// command regardless of the content of s.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ExportPrefix renders "export K=V" assignments for the given variables with
// every value quoted. Names are sorted so output is deterministic. Returns
// ErrUnsafeEnvName (wrapped with the offending name) on any invalid name.
func ExportPrefix(env map[string]string) (string, error) {
	if len(env) == 0 {
		return "", nil
	}
	names := make([]string, 0, len(env))
	for name := range env {
		if !ValidEnvName(name) {
			return "", fmt.Errorf("%w: %q", ErrUnsafeEnvName, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("export %s=%s", name, Quote(env[name])))
	}
	return strings.Join(parts, " && "), nil
}

// StartCommand builds the detached launch invocation for a long-running
// server process:
//
//	cd <dir> && export K='v' ... && nohup sh -c '<command>' > <logfile> 2>&1 &
//
// The embedded command is passed through Quote so a start command containing
// single quotes cannot break out of the sh -c boundary. The process is
// backgrounded so the phase completes without waiting for it to exit.
func StartCommand(workdir, command string, env map[string]string, logfile string) (string, error) {
	exports, err := ExportPrefix(env)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("cd ")
	b.WriteString(Quote(workdir))
	if exports != "" {
		b.WriteString(" && ")
		b.WriteString(exports)
	}
	b.WriteString(" && nohup sh -c ")
	b.WriteString(Quote(command))
	b.WriteString(" > ")
	b.WriteString(Quote(logfile))
	b.WriteString(" 2>&1 &")
	return b.String(), nil
}

// PhaseCommand prefixes an install or build command with a change-directory
// to the workspace root.
func PhaseCommand(workdir, command string) string {
	return "cd " + Quote(workdir) + " && " + command
}

// CloneURL builds the canonical https clone URL. Both parts must be the
// post-validation owner/repo, never a raw path segment, which closes any
// path-traversal or argument-injection vector through the URL.
func CloneURL(owner, repo string) string {
	return "https://github.com/" + owner + "/" + repo + ".git"
}

// denied matches command fragments that perform destructive disk operations.
// The pass-through exec endpoint rejects anything matching one of these; the
// list is a convenience gate, not a security boundary.
var denied = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*[rf][a-zA-Z]*\s+)+/`),
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`\bdd\s+[^|;&]*of=/dev/`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
	regexp.MustCompile(`\bshutdown\b|\breboot\b|\bhalt\b`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]`),
}

// Denied reports whether command matches the destructive-operation denylist.
func Denied(command string) bool {
	for _, re := range denied {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

// KillCommand is the best-effort process sweep issued on stop. It targets
// common runtime process names inside the isolated environment and always
// exits zero.
const KillCommand = "pkill -f 'node|npm|yarn|python|gunicorn|uvicorn|cargo|java|ruby|rails|php|go run' || true"
