package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusRunning.Terminal())
	assert.True(t, StatusStopped.Terminal())
	assert.True(t, StatusError.Terminal())

	assert.False(t, StatusInitializing.Terminal())
	assert.False(t, StatusCloning.Terminal())
	assert.False(t, StatusAnalyzing.Terminal())
	assert.False(t, StatusInstalling.Terminal())
	assert.False(t, StatusBuilding.Terminal())
	assert.False(t, StatusStarting.Terminal())
}

func TestAppendLogBumpsActivity(t *testing.T) {
	s := &Session{}
	s.AppendLog(LogLevelInfo, "hello")

	assert.Len(t, s.Logs, 1)
	assert.Equal(t, "hello", s.Logs[0].Message)
	assert.False(t, s.LastActivityAt.IsZero())
	assert.Equal(t, s.Logs[0].Time, s.LastActivityAt)
}

func TestVisibleLogsBounded(t *testing.T) {
	s := &Session{}
	for i := 0; i < MaxVisibleLogs+20; i++ {
		s.AppendLog(LogLevelInfo, fmt.Sprintf("line %d", i))
	}

	visible := s.VisibleLogs()
	assert.Len(t, visible, MaxVisibleLogs)
	// The window keeps the newest entries.
	assert.Equal(t, "line 20", visible[0].Message)
	assert.Equal(t, fmt.Sprintf("line %d", MaxVisibleLogs+19), visible[len(visible)-1].Message)
}

func TestViewProjectsBoundedLogs(t *testing.T) {
	s := &Session{ID: "abc", RepoOwner: "octocat", RepoName: "demo", Status: StatusRunning}
	for i := 0; i < MaxVisibleLogs+5; i++ {
		s.AppendLog(LogLevelInfo, "x")
	}

	view := s.View()
	assert.Equal(t, "abc", view.ID)
	assert.Equal(t, StatusRunning, view.Status)
	assert.Len(t, view.Logs, MaxVisibleLogs)
}

func TestRepo(t *testing.T) {
	s := &Session{RepoOwner: "octocat", RepoName: "demo"}
	assert.Equal(t, "octocat/demo", s.Repo())
}
