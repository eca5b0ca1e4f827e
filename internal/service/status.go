package service

import (
	"context"
	"errors"
	"fmt"

	"repolaunch-server/internal/model"
	"repolaunch-server/internal/store"
	"repolaunch-server/internal/validate"
)

// Projector is the read side of the session lifecycle: it assembles a
// session's current state plus preview URL for polling clients and never
// mutates anything.
type Projector struct {
	store store.Store
}

// NewProjector wires the status projector.
func NewProjector(st store.Store) *Projector {
	return &Projector{store: st}
}

// Status loads the session and projects it for a polling client. Logs are
// bounded to the most recent entries; ErrNotFound covers expired and
// never-created sessions alike.
func (p *Projector) Status(ctx context.Context, sessionID string) (*model.SessionView, error) {
	if !validate.SessionID(sessionID) {
		return nil, fmt.Errorf("%w: bad session id", ErrInvalidInput)
	}
	session, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return session.View(), nil
}
