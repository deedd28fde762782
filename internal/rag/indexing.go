package rag

import (
	"context"

	"github.com/parley-ai/parley/internal/history"
	"github.com/parley-ai/parley/pkg/models"
)

// IndexingStore decorates a history store so every appended message also
// lands in the keyword index, keyed by its session id as the source. A
// session that lists its own id in Sources retrieves from its past
// conversation; a session with no Sources searches everything indexed.
type IndexingStore struct {
	history.Store
	retriever *KeywordRetriever
}

// NewIndexingStore wraps store so appends feed retriever.
func NewIndexingStore(store history.Store, retriever *KeywordRetriever) *IndexingStore {
	return &IndexingStore{Store: store, retriever: retriever}
}

// Append stores the message and indexes its text content. Tool-only
// messages carry no prose and are skipped.
func (s *IndexingStore) Append(ctx context.Context, msg *models.Message) error {
	if err := s.Store.Append(ctx, msg); err != nil {
		return err
	}
	if msg.Content != "" {
		s.retriever.Index(Document{
			ID:      msg.ID,
			Source:  msg.SessionID,
			Content: msg.Content,
		})
	}
	return nil
}
