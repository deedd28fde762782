// Package registry maps session identifiers to the outbound event sinks of
// their connected clients. It is the only path by which concurrently
// running work (turn handlers, provider receive loops, approval waits)
// reaches a session's client.
package registry

import (
	"context"

	"github.com/parley-ai/parley/pkg/models"
)

// EventSink receives outbound session events.
// Implementations must be safe to call from multiple goroutines and should
// be non-blocking or handle backpressure gracefully.
type EventSink interface {
	Emit(ctx context.Context, e models.Event)
}

// ChanSink sends events to a channel, dropping when the channel is full.
type ChanSink struct {
	ch chan<- models.Event
}

// NewChanSink creates a sink that sends to ch. The channel should be
// buffered to avoid dropping under normal load.
func NewChanSink(ch chan<- models.Event) *ChanSink {
	return &ChanSink{ch: ch}
}

// Emit sends the event to the channel (non-blocking if full or context cancelled).
func (s *ChanSink) Emit(ctx context.Context, e models.Event) {
	select {
	case s.ch <- e:
	case <-ctx.Done():
	default:
		// Channel full - drop event rather than block
	}
}

// MultiSink fans out events to multiple sinks.
type MultiSink struct {
	sinks []EventSink
}

// NewMultiSink creates a sink that dispatches events to each of sinks.
// Nil sinks are filtered out.
func NewMultiSink(sinks ...EventSink) *MultiSink {
	filtered := make([]EventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiSink{sinks: filtered}
}

// Emit dispatches the event to all sinks.
func (s *MultiSink) Emit(ctx context.Context, e models.Event) {
	for _, sink := range s.sinks {
		sink.Emit(ctx, e)
	}
}

// CallbackSink wraps a function as an EventSink.
type CallbackSink struct {
	fn func(ctx context.Context, e models.Event)
}

// NewCallbackSink creates a sink that calls fn for each event.
func NewCallbackSink(fn func(ctx context.Context, e models.Event)) *CallbackSink {
	return &CallbackSink{fn: fn}
}

// Emit calls the wrapped function.
func (s *CallbackSink) Emit(ctx context.Context, e models.Event) {
	if s.fn != nil {
		s.fn(ctx, e)
	}
}

// NopSink discards all events.
type NopSink struct{}

// Emit does nothing.
func (NopSink) Emit(ctx context.Context, e models.Event) {}
