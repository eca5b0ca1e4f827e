// Package handler provides the HTTP request handlers.
package handler

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"repolaunch-server/internal/service"
	"repolaunch-server/internal/validate"
	"repolaunch-server/pkg/response"
)

// SessionHandler serves the launch, status, exec and stop endpoints.
type SessionHandler struct {
	coordinator *service.Coordinator
	projector   *service.Projector
}

// NewSessionHandler wires the session handler.
func NewSessionHandler(coordinator *service.Coordinator, projector *service.Projector) *SessionHandler {
	return &SessionHandler{coordinator: coordinator, projector: projector}
}

// Launch handles GET /gh/:owner/:repo — kicks off (or joins) a session for
// the repository and redirects to its status page.
func (h *SessionHandler) Launch(c *gin.Context) {
	owner := c.Param("owner")
	repo := c.Param("repo")

	sessionID, err := h.coordinator.Launch(c.Request.Context(), owner, repo)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			response.BadRequest(c, "invalid repository identifier")
		case errors.Is(err, service.ErrRateLimited):
			response.RateLimited(c, err.Error())
		case errors.Is(err, service.ErrRetryableConflict):
			response.Conflict(c, "a launch for this repository is already in progress, retry shortly")
		default:
			c.Error(err) //nolint:errcheck // surfaced via the request logger
			response.InternalError(c, "failed to launch session")
		}
		return
	}

	c.Redirect(http.StatusFound, "/session/"+sessionID)
}

// Status handles GET /api/status/:id — the polling read path.
func (h *SessionHandler) Status(c *gin.Context) {
	view, err := h.projector.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			response.BadRequest(c, "invalid session id")
		case errors.Is(err, service.ErrNotFound):
			response.SessionNotFound(c)
		default:
			c.Error(err) //nolint:errcheck
			response.InternalError(c, "failed to load session")
		}
		return
	}
	response.Success(c, view)
}

// ExecRequest is the body of POST /api/exec/:id.
type ExecRequest struct {
	Command string `json:"command" binding:"required"`
}

// Exec handles POST /api/exec/:id — pass-through command execution in the
// session workspace, gated by the denylist and per-session rate limit.
func (h *SessionHandler) Exec(c *gin.Context) {
	var req ExecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	result, err := h.coordinator.Exec(c.Request.Context(), c.Param("id"), req.Command)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			response.BadRequest(c, "invalid session id")
		case errors.Is(err, service.ErrNotFound):
			response.SessionNotFound(c)
		case errors.Is(err, service.ErrCommandDenied):
			response.CommandDenied(c)
		case errors.Is(err, service.ErrRateLimited):
			response.RateLimited(c, err.Error())
		case errors.Is(err, service.ErrNotRunning):
			response.SessionStopped(c, "session is not accepting commands")
		default:
			c.Error(err) //nolint:errcheck
			response.InternalError(c, "command execution failed")
		}
		return
	}
	response.Success(c, result)
}

// Stop handles POST /api/stop/:id.
func (h *SessionHandler) Stop(c *gin.Context) {
	err := h.coordinator.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			response.BadRequest(c, "invalid session id")
		case errors.Is(err, service.ErrNotFound):
			response.SessionNotFound(c)
		case errors.Is(err, service.ErrNotRunning):
			response.SessionStopped(c, "session is not running")
		default:
			c.Error(err) //nolint:errcheck
			response.InternalError(c, "failed to stop session")
		}
		return
	}
	response.Success(c, gin.H{"status": "stopped"})
}

// Health handles GET /health.
func (h *SessionHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>session {{.ID}}</title></head>
<body>
<h1>Session <code>{{.ID}}</code></h1>
<p>status: <strong id="status">loading</strong></p>
<p id="preview"></p>
<pre id="logs"></pre>
<script>
const id = {{.ID}};
async function poll() {
  const resp = await fetch('/api/status/' + id);
  if (!resp.ok) { document.getElementById('status').textContent = 'not found'; return; }
  const body = await resp.json();
  const view = body.data;
  document.getElementById('status').textContent = view.status + (view.error ? ': ' + view.error : '');
  if (view.preview_url) {
    document.getElementById('preview').innerHTML = '<a href="' + view.preview_url + '">' + view.preview_url + '</a>';
  }
  document.getElementById('logs').textContent =
    (view.logs || []).map(l => l.time + ' [' + l.level + '] ' + l.message).join('\n');
  if (!['running', 'stopped', 'error'].includes(view.status)) setTimeout(poll, 2000);
}
poll();
</script>
</body>
</html>`))

// StatusPage handles GET /session/:id — a minimal page that polls the
// status API until the session reaches a terminal state.
func (h *SessionHandler) StatusPage(c *gin.Context) {
	id := c.Param("id")
	if !validate.SessionID(id) {
		response.BadRequest(c, "invalid session id")
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := statusPage.Execute(c.Writer, gin.H{"ID": id}); err != nil {
		c.Error(err) //nolint:errcheck
	}
}
