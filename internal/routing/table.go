// Package routing holds the process-wide table that lets a capability
// provider's receive loop find its way back to the conversation that is
// currently invoking it.
//
// The invoking task and the provider's receive loop are independently
// scheduled goroutines with no shared stack-local state, so the link
// between them is made explicit: the tool execution pipeline installs an
// entry keyed by provider id immediately before the call and removes it in
// a deferred block when the call returns. An out-of-band request arriving
// for a key with no entry belongs to no live call and is answered with a
// safe cancelled response.
package routing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/pkg/models"
)

// OutOfBandKind discriminates provider-initiated mid-call requests.
type OutOfBandKind string

const (
	// KindInput asks the session owner a question before the call continues.
	KindInput OutOfBandKind = "input"
	// KindLLMCall asks the orchestrator to run a completion on the
	// provider's behalf.
	KindLLMCall OutOfBandKind = "llm_call"
	// KindProgress reports progress on the executing call. One-way.
	KindProgress OutOfBandKind = "progress"
)

// OutOfBandRequest is issued by a provider connection's receive loop while
// one of its capabilities is executing.
type OutOfBandRequest struct {
	Provider string
	Kind     OutOfBandKind

	// KindInput payload.
	Question string

	// KindLLMCall payload.
	System   string
	Messages []models.Message

	// KindProgress payload.
	Percent *int
	Message string
}

// OutOfBandResponse answers an out-of-band request. Cancelled is set when
// no live call could be found for the provider or the request could not be
// served; providers must treat it as "proceed without".
type OutOfBandResponse struct {
	Cancelled bool   `json:"cancelled"`
	Text      string `json:"text,omitempty"`
}

// Entry describes where out-of-band traffic for an executing call belongs.
// PromptUser and Complete are bound to the owning session by the installer;
// the receive loop never sees session state directly.
type Entry struct {
	Provider  string
	SessionID string
	Call      *models.ToolCall
	Sink      registry.EventSink

	PromptUser func(ctx context.Context, question string) (string, error)
	Complete   func(ctx context.Context, system string, messages []models.Message) (string, error)
}

// Table maps provider id to the entry for its currently executing call.
//
// Provider connections are not shared across sessions, so the provider id
// alone identifies at most one live call. If connections were ever pooled,
// the key would have to widen to (provider, correlation id); Install
// guards the assumption by refusing a second entry for a live key.
type Table struct {
	mu      sync.Mutex
	entries map[string]*Entry
	logger  *slog.Logger
}

// NewTable creates an empty routing table.
func NewTable(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		entries: make(map[string]*Entry),
		logger:  logger.With("component", "routing"),
	}
}

// Install registers the entry for a provider about to be invoked.
// A live entry for the same key means two calls are in flight on one
// connection, which the connection lifecycle is supposed to make
// impossible; fail fast rather than misroute.
func (t *Table) Install(e *Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.entries[e.Provider]; ok {
		return &DuplicateEntryError{Provider: e.Provider, ExistingCall: existing.Call.ID}
	}
	t.entries[e.Provider] = e
	return nil
}

// Remove deletes the entry for a provider. Called in a deferred block by
// the pipeline regardless of call outcome.
func (t *Table) Remove(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, provider)
}

// Lookup returns the live entry for a provider. Callers must not retain
// the entry across suspension points; the table is the only authority.
func (t *Table) Lookup(provider string) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[provider]
	return e, ok
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Progress pushes a mid-call progress report to the owning session's
// client. One-way; reports for providers with no live call are dropped.
func (t *Table) Progress(ctx context.Context, provider string, percent *int, message string) {
	entry, ok := t.Lookup(provider)
	if !ok || entry.Sink == nil {
		return
	}
	e := models.NewEvent(models.EventToolProgress, entry.SessionID)
	e.Tool = &models.ToolEvent{
		CallID:   entry.Call.ID,
		Provider: provider,
		Name:     entry.Call.Name,
		Percent:  percent,
		Message:  message,
	}
	entry.Sink.Emit(ctx, e)
}

// Dispatch routes an out-of-band request to the session that owns the
// provider's executing call. Requests with no live entry are orphans:
// logged and answered cancelled, never left hanging.
func (t *Table) Dispatch(ctx context.Context, req *OutOfBandRequest) *OutOfBandResponse {
	entry, ok := t.Lookup(req.Provider)
	if !ok {
		t.logger.Warn("orphaned out-of-band request",
			"provider", req.Provider,
			"kind", req.Kind)
		return &OutOfBandResponse{Cancelled: true}
	}

	switch req.Kind {
	case KindInput:
		if entry.PromptUser == nil {
			return &OutOfBandResponse{Cancelled: true}
		}
		answer, err := entry.PromptUser(ctx, req.Question)
		if err != nil {
			t.logger.Warn("mid-call input request failed",
				"provider", req.Provider,
				"session_id", entry.SessionID,
				"error", err)
			return &OutOfBandResponse{Cancelled: true}
		}
		return &OutOfBandResponse{Text: answer}

	case KindLLMCall:
		if entry.Complete == nil {
			return &OutOfBandResponse{Cancelled: true}
		}
		text, err := entry.Complete(ctx, req.System, req.Messages)
		if err != nil {
			t.logger.Warn("mid-call completion request failed",
				"provider", req.Provider,
				"session_id", entry.SessionID,
				"error", err)
			return &OutOfBandResponse{Cancelled: true}
		}
		return &OutOfBandResponse{Text: text}

	case KindProgress:
		t.Progress(ctx, req.Provider, req.Percent, req.Message)
		return &OutOfBandResponse{}

	default:
		t.logger.Warn("unknown out-of-band request kind",
			"provider", req.Provider,
			"kind", req.Kind)
		return &OutOfBandResponse{Cancelled: true}
	}
}

// DuplicateEntryError reports an Install against a key with a live entry.
type DuplicateEntryError struct {
	Provider     string
	ExistingCall string
}

func (e *DuplicateEntryError) Error() string {
	return "routing entry already installed for provider " + e.Provider +
		" (call " + e.ExistingCall + ")"
}
