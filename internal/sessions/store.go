// Package sessions manages conversation sessions: durable records via a
// Store and per-session runtime state (cancellation, suspended agent
// runs) via the Tracker.
package sessions

import (
	"context"
	"errors"

	"github.com/parley-ai/parley/pkg/models"
)

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session not found")

// Store is the interface for session persistence.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, owner string, opts ListOptions) ([]*models.Session, error)
}

// ListOptions configures session listing.
type ListOptions struct {
	Limit  int
	Offset int
}
