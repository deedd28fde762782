package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/pkg/models"
)

// maxMessagesPerSession limits messages stored per session to prevent
// unbounded memory growth. When exceeded, the oldest messages are trimmed.
const maxMessagesPerSession = 1000

// MemoryStore provides an in-memory Store implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]*models.Message
}

// NewMemoryStore creates a new in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: map[string][]*models.Message{}}
}

func (m *MemoryStore) Append(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	if msg.SessionID == "" {
		return errors.New("session id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *msg
	if clone.ID == "" {
		clone.ID = uuid.NewString()
		msg.ID = clone.ID
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
		msg.CreatedAt = clone.CreatedAt
	}

	msgs := append(m.messages[msg.SessionID], &clone)
	if len(msgs) > maxMessagesPerSession {
		msgs = msgs[len(msgs)-maxMessagesPerSession:]
	}
	m.messages[msg.SessionID] = msgs
	return nil
}

func (m *MemoryStore) Recent(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*models.Message, len(msgs))
	for i, msg := range msgs {
		clone := *msg
		out[i] = &clone
	}
	return out, nil
}

func (m *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, sessionID)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
