// Package history persists conversation messages per session. The memory
// store backs tests and local runs; the SQLite store backs durable
// deployments.
package history

import (
	"context"

	"github.com/parley-ai/parley/pkg/models"
)

// Store is the interface for message history persistence.
type Store interface {
	// Append stores one message at the end of a session's history.
	Append(ctx context.Context, msg *models.Message) error
	// Recent returns up to limit messages for a session, oldest first.
	// limit <= 0 returns the full history.
	Recent(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
	// Clear drops a session's history.
	Clear(ctx context.Context, sessionID string) error
	// Close releases backing resources.
	Close() error
}
