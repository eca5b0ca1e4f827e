// Package validate checks externally supplied identifiers against strict
// grammars. Every caller-facing operation validates before touching storage
// or the sandbox executor; these functions are pure and perform no I/O.
package validate

import (
	"regexp"
	"strings"
)

const (
	maxOwnerLen = 39
	maxRepoLen  = 100
)

var (
	ownerPattern     = regexp.MustCompile(`^[A-Za-z0-9]+(?:-[A-Za-z0-9]+)*$`)
	repoPattern      = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	sessionIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// Owner reports whether s is a valid repository owner: 1-39 characters,
// alphanumeric with single interior hyphens, no leading, trailing or doubled
// hyphen.
func Owner(s string) bool {
	if s == "" || len(s) > maxOwnerLen {
		return false
	}
	return ownerPattern.MatchString(s)
}

// Repo reports whether s is a valid repository name: 1-100 characters drawn
// from alphanumerics plus ".", "_" and "-", excluding the path segments "."
// and "..".
func Repo(s string) bool {
	if s == "" || len(s) > maxRepoLen {
		return false
	}
	if s == "." || s == ".." {
		return false
	}
	return repoPattern.MatchString(s)
}

// SessionID reports whether s is a canonically formatted UUID.
func SessionID(s string) bool {
	return sessionIDPattern.MatchString(s)
}

// RepoKey builds the canonical "owner/repo" key used throughout the store.
// Callers must have validated both parts first.
func RepoKey(owner, repo string) string {
	return owner + "/" + repo
}

// SplitRepoKey is the inverse of RepoKey.
func SplitRepoKey(key string) (owner, repo string) {
	owner, repo, _ = strings.Cut(key, "/")
	return owner, repo
}
