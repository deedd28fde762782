package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/parley-ai/parley/pkg/models"
)

// Registry is the process-wide map from session id to the event sink of
// that session's connected client. Register replaces any previous sink for
// the id (a reconnecting client supersedes its old connection).
type Registry struct {
	mu     sync.RWMutex
	sinks  map[string]EventSink
	tap    EventSink
	active prometheus.Gauge
	logger *slog.Logger
}

// New creates an empty session registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sinks:  make(map[string]EventSink),
		logger: logger.With("component", "registry"),
	}
}

// SetTap installs a sink that observes every emitted event across all
// sessions, alongside the per-session client sink. Used for the server's
// event audit log.
func (r *Registry) SetTap(sink EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tap = sink
}

// SetActiveGauge publishes the registered-session count to a gauge.
func (r *Registry) SetActiveGauge(g prometheus.Gauge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = g
}

// Register binds a sink to a session id.
func (r *Registry) Register(sessionID string, sink EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[sessionID] = sink
	if r.active != nil {
		r.active.Set(float64(len(r.sinks)))
	}
}

// Unregister removes the sink for a session id, if sink is still the
// registered one. A stale unregister from a superseded connection is a no-op.
func (r *Registry) Unregister(sessionID string, sink EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sinks[sessionID]; ok && current == sink {
		delete(r.sinks, sessionID)
	}
	if r.active != nil {
		r.active.Set(float64(len(r.sinks)))
	}
}

// Sink returns the sink registered for a session id.
func (r *Registry) Sink(sessionID string) (EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sinks[sessionID]
	return sink, ok
}

// Emit delivers an event to the session's sink and to the tap, if one is
// installed. Events for sessions with no connected client reach only the
// tap; a disconnected client must never block or fail the producing task.
func (r *Registry) Emit(ctx context.Context, e models.Event) {
	r.mu.RLock()
	sink, ok := r.sinks[e.SessionID]
	tap := r.tap
	r.mu.RUnlock()

	if !ok {
		r.logger.Debug("no client sink for session",
			"session_id", e.SessionID,
			"type", e.Type)
		sink = NopSink{}
	}
	NewMultiSink(sink, tap).Emit(ctx, e)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}
