package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/parley-ai/parley/internal/routing"
	"github.com/parley-ai/parley/pkg/models"
)

// DispatchFunc routes an out-of-band request from a provider's receive
// loop back to the orchestration core. In production this is the routing
// table's Dispatch method.
type DispatchFunc func(ctx context.Context, req *routing.OutOfBandRequest) *routing.OutOfBandResponse

// OutOfBand is the surface a capability handler uses to reach back into
// the conversation mid-call. The second return value is false when the
// request was cancelled (no live call entry, or the answer never came);
// handlers must proceed without.
type OutOfBand interface {
	AskUser(ctx context.Context, question string) (string, bool)
	Complete(ctx context.Context, system string, messages []models.Message) (string, bool)
	// Progress reports completion progress to the client. One-way.
	Progress(ctx context.Context, percent *int, message string)
}

// Handler implements one loopback capability.
type Handler func(ctx context.Context, args map[string]any, oob OutOfBand) (*Result, error)

type loopbackJob struct {
	ctx        context.Context
	capability string
	args       map[string]any
	reply      chan loopbackReply
}

type loopbackReply struct {
	result *Result
	err    error
}

// LoopbackConnection is an in-process provider with a real receive loop,
// used for local capabilities and in tests. Invocations are executed on
// the connection's own goroutine, so out-of-band requests genuinely cross
// a task boundary on their way back to the session.
type LoopbackConnection struct {
	id       string
	dispatch DispatchFunc

	mu       sync.RWMutex
	caps     []Capability
	handlers map[string]Handler

	requests  chan *loopbackJob
	done      chan struct{}
	closeOnce sync.Once
}

// NewLoopback creates a loopback connection and starts its receive loop.
func NewLoopback(id string, dispatch DispatchFunc) *LoopbackConnection {
	c := &LoopbackConnection{
		id:       id,
		dispatch: dispatch,
		handlers: make(map[string]Handler),
		requests: make(chan *loopbackJob),
		done:     make(chan struct{}),
	}
	go c.serve()
	return c
}

// Register adds a capability and its handler.
func (c *LoopbackConnection) Register(cap Capability, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caps = append(c.caps, cap)
	c.handlers[cap.Name] = h
}

// ID returns the provider identifier.
func (c *LoopbackConnection) ID() string {
	return c.id
}

// Discover lists the registered capabilities.
func (c *LoopbackConnection) Discover(ctx context.Context) ([]Capability, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Capability, len(c.caps))
	copy(out, c.caps)
	return out, nil
}

// Invoke hands the call to the receive loop and waits for its reply.
func (c *LoopbackConnection) Invoke(ctx context.Context, capability string, args map[string]any) (*Result, error) {
	job := &loopbackJob{
		ctx:        ctx,
		capability: capability,
		args:       args,
		reply:      make(chan loopbackReply, 1),
	}

	select {
	case c.requests <- job:
	case <-c.done:
		return nil, &TransportError{Provider: c.id, Op: "invoke", Err: errors.New("connection closed")}
	case <-ctx.Done():
		return nil, &TransportError{Provider: c.id, Op: "invoke", Err: ctx.Err()}
	}

	select {
	case r := <-job.reply:
		return r.result, r.err
	case <-ctx.Done():
		return nil, &TransportError{Provider: c.id, Op: "invoke", Err: ctx.Err()}
	}
}

// Close stops the receive loop.
func (c *LoopbackConnection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// serve is the connection's receive loop. It owns handler execution; the
// invoking task only ever sees the reply channel.
func (c *LoopbackConnection) serve() {
	for {
		select {
		case <-c.done:
			return
		case job := <-c.requests:
			c.mu.RLock()
			h, ok := c.handlers[job.capability]
			c.mu.RUnlock()

			if !ok {
				job.reply <- loopbackReply{
					err: fmt.Errorf("unknown capability %q", job.capability),
				}
				continue
			}

			result, err := c.execute(job, h)
			job.reply <- loopbackReply{result: result, err: err}
		}
	}
}

// execute runs a handler, turning panics into errors so a broken
// capability cannot take the receive loop down.
func (c *LoopbackConnection) execute(job *loopbackJob, h Handler) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("capability %s panicked: %v", job.capability, r)
		}
	}()
	return h(job.ctx, job.args, &loopbackOOB{conn: c})
}

// loopbackOOB adapts the dispatch function to the OutOfBand surface.
type loopbackOOB struct {
	conn *LoopbackConnection
}

func (o *loopbackOOB) AskUser(ctx context.Context, question string) (string, bool) {
	if o.conn.dispatch == nil {
		return "", false
	}
	resp := o.conn.dispatch(ctx, &routing.OutOfBandRequest{
		Provider: o.conn.id,
		Kind:     routing.KindInput,
		Question: question,
	})
	if resp == nil || resp.Cancelled {
		return "", false
	}
	return resp.Text, true
}

func (o *loopbackOOB) Progress(ctx context.Context, percent *int, message string) {
	if o.conn.dispatch == nil {
		return
	}
	o.conn.dispatch(ctx, &routing.OutOfBandRequest{
		Provider: o.conn.id,
		Kind:     routing.KindProgress,
		Percent:  percent,
		Message:  message,
	})
}

func (o *loopbackOOB) Complete(ctx context.Context, system string, messages []models.Message) (string, bool) {
	if o.conn.dispatch == nil {
		return "", false
	}
	resp := o.conn.dispatch(ctx, &routing.OutOfBandRequest{
		Provider: o.conn.id,
		Kind:     routing.KindLLMCall,
		System:   system,
		Messages: messages,
	})
	if resp == nil || resp.Cancelled {
		return "", false
	}
	return resp.Text, true
}
