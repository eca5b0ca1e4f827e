package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repolaunch-server/internal/classifier"
	"repolaunch-server/internal/config"
	"repolaunch-server/internal/github"
	"repolaunch-server/internal/sandbox"
	"repolaunch-server/internal/service"
	"repolaunch-server/internal/store"
	"repolaunch-server/pkg/response"
)

type stubRepos struct{}

func (stubRepos) GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error) {
	return &github.Repository{FullName: owner + "/" + repo, DefaultBranch: "main", Language: "JavaScript"}, nil
}

func (stubRepos) ListTree(ctx context.Context, owner, repo, branch string) ([]string, error) {
	return []string{"package.json"}, nil
}

func (stubRepos) GetFileContent(ctx context.Context, owner, repo, path string) (string, error) {
	if path == "package.json" {
		return `{"scripts":{"start":"node server.js"}}`, nil
	}
	return "", github.ErrRepoNotFound
}

type stubExecutor struct{}

func (stubExecutor) Clone(ctx context.Context, sessionID, cloneURL, workdir string) error { return nil }

func (stubExecutor) WriteFile(ctx context.Context, sessionID, path string, content []byte) error {
	return nil
}

func (stubExecutor) Exec(ctx context.Context, sessionID, command string, timeout time.Duration) (*sandbox.ExecResult, error) {
	return &sandbox.ExecResult{ExitCode: 0, Stdout: "ok"}, nil
}

func (stubExecutor) ExposePort(ctx context.Context, sessionID string, port int) (string, error) {
	return "https://preview.test", nil
}

type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, signals *classifier.Signals) (*classifier.Result, error) {
	return nil, context.Canceled
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Sandbox: config.SandboxConfig{Workdir: "/workspace"},
		Limits: config.LimitsConfig{
			SessionsPerIP:       10,
			SessionsPerIPWindow: 3600,
			SessionsPerRepo:     1,
			ExecsPerSession:     30,
			ExecWindow:          60,
		},
		Lifecycle: config.LifecycleConfig{
			SessionTTL:     time.Hour,
			LockTTL:        time.Second,
			LockWait:       100 * time.Millisecond,
			LockPoll:       10 * time.Millisecond,
			CloneTimeout:   time.Second,
			InstallTimeout: time.Second,
			BuildTimeout:   time.Second,
			StartTimeout:   time.Second,
			SettleDelay:    time.Millisecond,
		},
	}

	st := store.NewMemoryStore(time.Hour, time.Hour)
	logger := log.New(io.Discard)
	// Synchronous detacher: phase execution finishes before Launch returns,
	// so handlers can be asserted against settled sessions.
	detach := func(task func()) { task() }

	coordinator := service.NewCoordinator(st, stubRepos{}, stubExecutor{}, stubClassifier{}, cfg, detach, logger)
	projector := service.NewProjector(st)
	h := NewSessionHandler(coordinator, projector)

	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/gh/:owner/:repo", h.Launch)
	router.GET("/session/:id", h.StatusPage)
	router.GET("/api/status/:id", h.Status)
	router.POST("/api/exec/:id", h.Exec)
	router.POST("/api/stop/:id", h.Stop)
	return router
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var envelope response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestHealth(t *testing.T) {
	w := doRequest(newTestRouter(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestLaunchRedirectsToStatusPage(t *testing.T) {
	router := newTestRouter()

	w := doRequest(router, http.MethodGet, "/gh/octocat/demo", "")
	require.Equal(t, http.StatusFound, w.Code)

	location := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/session/"), "unexpected redirect: %s", location)
	id := strings.TrimPrefix(location, "/session/")
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	// Launching again lands on the same session.
	w = doRequest(router, http.MethodGet, "/gh/octocat/demo", "")
	assert.Equal(t, location, w.Header().Get("Location"))
}

func TestLaunchRejectsBadIdentifier(t *testing.T) {
	w := doRequest(newTestRouter(), http.MethodGet, "/gh/-bad-/demo", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeBadRequest, decodeEnvelope(t, w).Code)
}

func TestStatusEndpoint(t *testing.T) {
	router := newTestRouter()

	w := doRequest(router, http.MethodGet, "/gh/octocat/demo", "")
	require.Equal(t, http.StatusFound, w.Code)
	id := strings.TrimPrefix(w.Header().Get("Location"), "/session/")

	w = doRequest(router, http.MethodGet, "/api/status/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, response.CodeSuccess, envelope.Code)

	view, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "running", view["status"])
	assert.Equal(t, id, view["id"])
}

func TestStatusRejectsBadID(t *testing.T) {
	w := doRequest(newTestRouter(), http.MethodGet, "/api/status/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeBadRequest, decodeEnvelope(t, w).Code)
}

func TestStatusUnknownSession(t *testing.T) {
	w := doRequest(newTestRouter(), http.MethodGet, "/api/status/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeSessionNotFound, decodeEnvelope(t, w).Code)
}

func TestStatusPage(t *testing.T) {
	router := newTestRouter()
	id := uuid.New().String()

	w := doRequest(router, http.MethodGet, "/session/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), id)

	w = doRequest(router, http.MethodGet, "/session/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecEndpoint(t *testing.T) {
	router := newTestRouter()

	w := doRequest(router, http.MethodGet, "/gh/octocat/demo", "")
	require.Equal(t, http.StatusFound, w.Code)
	id := strings.TrimPrefix(w.Header().Get("Location"), "/session/")

	w = doRequest(router, http.MethodPost, "/api/exec/"+id, `{"command":"ls -la"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, decodeEnvelope(t, w).Code)

	w = doRequest(router, http.MethodPost, "/api/exec/"+id, `{"command":"rm -rf /"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, response.CodeCommandDenied, decodeEnvelope(t, w).Code)

	w = doRequest(router, http.MethodPost, "/api/exec/"+id, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStopEndpoint(t *testing.T) {
	router := newTestRouter()

	w := doRequest(router, http.MethodGet, "/gh/octocat/demo", "")
	require.Equal(t, http.StatusFound, w.Code)
	id := strings.TrimPrefix(w.Header().Get("Location"), "/session/")

	w = doRequest(router, http.MethodPost, "/api/stop/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, decodeEnvelope(t, w).Code)

	// Exec against the stopped session reports the stopped business code.
	w = doRequest(router, http.MethodPost, "/api/exec/"+id, `{"command":"ls"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeSessionStopped, decodeEnvelope(t, w).Code)

	w = doRequest(router, http.MethodPost, "/api/stop/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
