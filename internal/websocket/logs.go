// Package websocket streams session log entries to connected clients.
package websocket

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"repolaunch-server/internal/model"
	"repolaunch-server/internal/service"
	"repolaunch-server/pkg/response"
)

const (
	pollInterval = time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The status API is already open to any origin; the stream carries the
	// same data.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LogStreamer pushes newly appended session log entries over a websocket by
// polling the read-side projection. The stream closes once the session
// reaches a terminal state and its remaining entries have been delivered.
type LogStreamer struct {
	projector *service.Projector
	logger    *log.Logger
}

// NewLogStreamer wires the log streamer.
func NewLogStreamer(projector *service.Projector, logger *log.Logger) *LogStreamer {
	return &LogStreamer{projector: projector, logger: logger}
}

// streamEvent is one websocket frame: a batch of new entries plus the
// session's current status.
type streamEvent struct {
	Status model.SessionStatus `json:"status"`
	Logs   []model.LogEntry    `json:"logs,omitempty"`
}

// Stream handles GET /api/logs/:id/stream.
func (s *LogStreamer) Stream(c *gin.Context) {
	sessionID := c.Param("id")

	// Reject before upgrading; a websocket close code carries less
	// information than a proper error response.
	view, err := s.projector.Status(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			response.BadRequest(c, "invalid session id")
		case errors.Is(err, service.ErrNotFound):
			response.SessionNotFound(c)
		default:
			response.InternalError(c, "failed to load session")
		}
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session", sessionID, "err", err)
		return
	}
	defer conn.Close()

	sent := 0
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		event := streamEvent{Status: view.Status}
		// The visible window is bounded; if it slid past what we already
		// sent, resync rather than slice out of range.
		if len(view.Logs) < sent {
			sent = len(view.Logs)
		}
		if len(view.Logs) > sent {
			event.Logs = view.Logs[sent:]
			sent = len(view.Logs)
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event); err != nil {
			return
		}
		if view.Status.Terminal() && view.Status != model.StatusRunning {
			return
		}

		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}

		view, err = s.projector.Status(c.Request.Context(), sessionID)
		if err != nil {
			return
		}
	}
}
