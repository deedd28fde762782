// Package prompt delivers mid-call provider questions to the session owner
// and collects the answers. It is the "input" half of out-of-band routing;
// the approval gate handles the pre-execution decision, this broker handles
// questions a provider asks while its call is already running.
package prompt

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/pkg/models"
)

// DefaultTimeout bounds how long a provider call may stay suspended on an
// unanswered question.
const DefaultTimeout = 300 * time.Second

// ErrTimeout is returned when the owner never answered.
var ErrTimeout = errors.New("input request timed out")

// Broker tracks outstanding mid-call questions by their own correlation ids.
type Broker struct {
	mu      sync.Mutex
	pending map[string]chan string

	timeout time.Duration
	events  *registry.Registry
	logger  *slog.Logger
}

// New creates a broker. timeout <= 0 selects DefaultTimeout.
func New(events *registry.Registry, timeout time.Duration, logger *slog.Logger) *Broker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		pending: make(map[string]chan string),
		timeout: timeout,
		events:  events,
		logger:  logger.With("component", "prompt"),
	}
}

// Ask pushes the question to the session's client and blocks until the
// answer arrives, the timeout fires, or ctx is cancelled.
func (b *Broker) Ask(ctx context.Context, sessionID, provider, question string) (string, error) {
	id := uuid.NewString()
	ch := make(chan string, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if b.events != nil {
		e := models.NewEvent(models.EventInputRequest, sessionID)
		e.Input = &models.InputRequest{
			CorrelationID: id,
			Provider:      provider,
			Question:      question,
		}
		b.events.Emit(ctx, e)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case answer := <-ch:
		return answer, nil
	case <-timer.C:
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Answer resolves a pending question. Unknown ids are logged no-ops; the
// asking side may already have timed out.
func (b *Broker) Answer(correlationID, text string) {
	b.mu.Lock()
	ch, ok := b.pending[correlationID]
	b.mu.Unlock()

	if !ok {
		b.logger.Info("ignoring answer for unknown input request",
			"correlation_id", correlationID)
		return
	}

	select {
	case ch <- text:
	default:
	}
}
