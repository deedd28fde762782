// Package approval implements the human approval gate for tool calls.
//
// Each gated tool call registers exactly one pending request keyed by its
// correlation id. The caller blocks on the returned handle until a client
// decision arrives or the timeout fires; whichever happens first wins and
// the loser becomes a logged no-op.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/pkg/models"
)

// DefaultTimeout is how long a request may stay unanswered before it is
// auto-rejected.
const DefaultTimeout = 300 * time.Second

// Decision is the resolved outcome of an approval request.
type Decision struct {
	Approved bool
	// Arguments are the arguments to execute with: the original proposal,
	// or the user's edit when one was supplied.
	Arguments map[string]any
	// Edited reports whether Arguments differ from the proposal.
	Edited bool
	// Reason is set on denial: "rejected" or "timeout".
	Reason string
}

// Pending is the caller's handle on an in-flight approval request.
type Pending struct {
	CorrelationID string
	ch            chan Decision
}

// Wait blocks until the request is resolved or ctx is cancelled.
// Cancellation counts as a rejection.
func (p *Pending) Wait(ctx context.Context) Decision {
	select {
	case d := <-p.ch:
		return d
	case <-ctx.Done():
		return Decision{Approved: false, Reason: models.ApprovalReasonRejected}
	}
}

type pendingEntry struct {
	request *models.ApprovalRequest
	ch      chan Decision
	timer   *time.Timer
}

// Gate tracks at most one pending approval per correlation id.
type Gate struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry

	timeout time.Duration
	events  *registry.Registry
	logger  *slog.Logger
}

// New creates a gate. timeout <= 0 selects DefaultTimeout.
func New(events *registry.Registry, timeout time.Duration, logger *slog.Logger) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		pending: make(map[string]*pendingEntry),
		timeout: timeout,
		events:  events,
		logger:  logger.With("component", "approval"),
	}
}

// Request registers a pending approval for call and notifies the owning
// session that a decision is needed. A second request for a correlation id
// that is still pending is a programming error and fails fast.
func (g *Gate) Request(ctx context.Context, sessionID string, call models.ToolCall, editAllowed, adminRequired bool) (*Pending, error) {
	req := &models.ApprovalRequest{
		CorrelationID: call.ID,
		Provider:      call.Provider,
		ToolName:      call.Name,
		Arguments:     call.Arguments,
		EditAllowed:   editAllowed,
		AdminRequired: adminRequired,
		CreatedAt:     time.Now(),
		ExpiresAt:     time.Now().Add(g.timeout),
	}

	entry := &pendingEntry{
		request: req,
		ch:      make(chan Decision, 1),
	}

	g.mu.Lock()
	if _, exists := g.pending[call.ID]; exists {
		g.mu.Unlock()
		return nil, fmt.Errorf("approval already pending for correlation id %s", call.ID)
	}
	g.pending[call.ID] = entry
	entry.timer = time.AfterFunc(g.timeout, func() { g.expire(call.ID) })
	g.mu.Unlock()

	// Tell the session the turn is blocked on a decision before the caller
	// starts waiting.
	if g.events != nil {
		waiting := models.NewEvent(models.EventApprovalWaiting, sessionID)
		waiting.Approval = req
		g.events.Emit(ctx, waiting)

		prompt := models.NewEvent(models.EventApprovalRequest, sessionID)
		prompt.Approval = req
		g.events.Emit(ctx, prompt)
	}

	return &Pending{CorrelationID: call.ID, ch: entry.ch}, nil
}

// Resolve delivers a client decision for a pending request. Resolving an
// unknown or already-resolved id is an idempotent no-op.
func (g *Gate) Resolve(resp models.ApprovalResponse) {
	g.mu.Lock()
	entry, ok := g.pending[resp.CorrelationID]
	if ok {
		delete(g.pending, resp.CorrelationID)
		entry.timer.Stop()
	}
	g.mu.Unlock()

	if !ok {
		g.logger.Info("ignoring resolve for unknown or expired approval",
			"correlation_id", resp.CorrelationID)
		return
	}

	d := Decision{
		Approved:  resp.Approved,
		Arguments: entry.request.Arguments,
	}
	if !resp.Approved {
		d.Reason = resp.Reason
		if d.Reason == "" {
			d.Reason = models.ApprovalReasonRejected
		}
	} else if len(resp.Arguments) > 0 && entry.request.EditAllowed {
		d.Arguments = resp.Arguments
		d.Edited = true
	}

	entry.ch <- d
}

// expire resolves a request as timed out. A concurrent explicit resolve
// that already removed the entry wins.
func (g *Gate) expire(correlationID string) {
	g.mu.Lock()
	entry, ok := g.pending[correlationID]
	if ok {
		delete(g.pending, correlationID)
	}
	g.mu.Unlock()

	if !ok {
		return
	}

	g.logger.Warn("approval request timed out",
		"correlation_id", correlationID,
		"tool", entry.request.ToolName)
	entry.ch <- Decision{Approved: false, Reason: models.ApprovalReasonTimeout}
}

// PendingCount returns the number of unresolved requests.
func (g *Gate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
