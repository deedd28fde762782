// Package dispatch routes each user message to the runner for the
// session's requested mode: plain completion, retrieval-augmented,
// tool-assisted, or the autonomous agent loop.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/agent"
	"github.com/parley-ai/parley/internal/gateway"
	"github.com/parley-ai/parley/internal/history"
	"github.com/parley-ai/parley/internal/observability"
	"github.com/parley-ai/parley/internal/provider"
	"github.com/parley-ai/parley/internal/rag"
	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/internal/sessions"
	"github.com/parley-ai/parley/pkg/models"
)

// Config configures turn handling across all modes.
type Config struct {
	// Model and MaxTokens pass through to the gateway.
	Model     string
	MaxTokens int

	// SystemPrompt is the base system prompt for every mode.
	SystemPrompt string

	// MaxToolRounds caps completion rounds in tools mode. Default: 8.
	MaxToolRounds int

	// HistoryWindow is how many recent messages feed the model. Default: 50.
	HistoryWindow int

	// RetrieveLimit caps snippets fetched per RAG turn. Default: 5.
	RetrieveLimit int

	// Injector controls how snippets reach the prompt.
	Injector rag.InjectorConfig
}

// Dispatcher owns one turn at a time per session.
type Dispatcher struct {
	gw        gateway.Gateway
	providers *provider.Manager
	pipeline  *agent.Pipeline
	loop      *agent.Loop
	retriever rag.Retriever
	history   history.Store
	tracker   *sessions.Tracker
	events    *registry.Registry
	metrics   *observability.Metrics
	logger    *slog.Logger
	config    Config
}

// New wires a dispatcher. retriever may be nil; RAG turns then run plain.
func New(
	gw gateway.Gateway,
	providers *provider.Manager,
	pipeline *agent.Pipeline,
	loop *agent.Loop,
	retriever rag.Retriever,
	hist history.Store,
	tracker *sessions.Tracker,
	events *registry.Registry,
	metrics *observability.Metrics,
	logger *slog.Logger,
	config Config,
) *Dispatcher {
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = 8
	}
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = 50
	}
	if config.RetrieveLimit <= 0 {
		config.RetrieveLimit = 5
	}
	if config.Injector.MaxSnippets <= 0 {
		config.Injector = rag.DefaultInjectorConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		gw:        gw,
		providers: providers,
		pipeline:  pipeline,
		loop:      loop,
		retriever: retriever,
		history:   hist,
		tracker:   tracker,
		events:    events,
		metrics:   metrics,
		logger:    logger.With("component", "dispatch"),
		config:    config,
	}
}

// HandleMessage processes one user message for a session and returns the
// assistant reply. A session with a suspended agent run consumes the
// message as the answer to its pending question, whatever mode was asked
// for.
func (d *Dispatcher) HandleMessage(ctx context.Context, session *models.Session, mode models.RunMode, text string) (string, error) {
	ctx = observability.AddSessionID(ctx, session.ID)
	ctx = observability.AddRunID(ctx, uuid.NewString())
	runtime := d.tracker.Runtime(session.ID)

	if err := d.history.Append(ctx, &models.Message{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   text,
	}); err != nil {
		return "", fmt.Errorf("append user message: %w", err)
	}

	if state := runtime.Resume(); state != nil {
		reply, err := d.resumeAgent(ctx, session, runtime, state, text)
		return d.finishTurn(ctx, session, reply, err)
	}

	r, err := d.runnerFor(mode)
	if err != nil {
		return d.finishTurn(ctx, session, "", err)
	}
	reply, err := r.run(ctx, session, runtime, text)
	return d.finishTurn(ctx, session, reply, err)
}

// runner is one conversational mode. Selected once per turn.
type runner interface {
	run(ctx context.Context, session *models.Session, runtime *sessions.Runtime, text string) (string, error)
}

func (d *Dispatcher) runnerFor(mode models.RunMode) (runner, error) {
	switch mode {
	case models.ModePlain:
		return plainRunner{d}, nil
	case models.ModeRAG:
		return ragRunner{d}, nil
	case models.ModeTools:
		return toolsRunner{d}, nil
	case models.ModeAgent:
		return agentRunner{d}, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

type plainRunner struct{ d *Dispatcher }

func (r plainRunner) run(ctx context.Context, session *models.Session, _ *sessions.Runtime, _ string) (string, error) {
	return r.d.runPlain(ctx, session, r.d.config.SystemPrompt)
}

type ragRunner struct{ d *Dispatcher }

func (r ragRunner) run(ctx context.Context, session *models.Session, _ *sessions.Runtime, text string) (string, error) {
	return r.d.runRAG(ctx, session, text)
}

type toolsRunner struct{ d *Dispatcher }

func (r toolsRunner) run(ctx context.Context, session *models.Session, _ *sessions.Runtime, _ string) (string, error) {
	return r.d.runTools(ctx, session)
}

type agentRunner struct{ d *Dispatcher }

func (r agentRunner) run(ctx context.Context, session *models.Session, runtime *sessions.Runtime, text string) (string, error) {
	return r.d.runAgent(ctx, session, runtime, text)
}

// finishTurn records the outcome and pushes the closing event.
func (d *Dispatcher) finishTurn(ctx context.Context, session *models.Session, reply string, err error) (string, error) {
	if err != nil {
		d.logger.Error("turn failed", "session_id", session.ID, "error", err)
		if d.events != nil {
			e := models.NewEvent(models.EventChatError, session.ID)
			e.Error = err.Error()
			d.events.Emit(ctx, e)
		}
		return "", err
	}

	if appendErr := d.history.Append(ctx, &models.Message{
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   reply,
	}); appendErr != nil {
		d.logger.Error("failed to record reply", "session_id", session.ID, "error", appendErr)
	}

	if d.events != nil {
		e := models.NewEvent(models.EventChatCompletion, session.ID)
		e.Text = reply
		d.events.Emit(ctx, e)
	}
	return reply, nil
}

func (d *Dispatcher) runPlain(ctx context.Context, session *models.Session, system string) (string, error) {
	msgs, err := d.history.Recent(ctx, session.ID, d.config.HistoryWindow)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	resp, err := d.complete(ctx, "plain", &gateway.Request{
		Model:     d.config.Model,
		System:    system,
		Messages:  deref(msgs),
		MaxTokens: d.config.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (d *Dispatcher) runRAG(ctx context.Context, session *models.Session, query string) (string, error) {
	system := d.config.SystemPrompt
	if d.retriever != nil {
		snippets, err := d.retriever.Retrieve(ctx, query, session.Sources, d.config.RetrieveLimit)
		if err != nil {
			// Retrieval is best effort; a broken index degrades to plain.
			d.logger.Warn("retrieval failed", "session_id", session.ID, "error", err)
		} else {
			system = rag.Augment(system, snippets, d.config.Injector)
		}
	}
	return d.runPlain(ctx, session, system)
}

// runTools alternates completions and tool executions until the model
// answers in text. Each round executes only the first proposed call; the
// model re-plans against the observation before anything else runs.
func (d *Dispatcher) runTools(ctx context.Context, session *models.Session) (string, error) {
	msgs, err := d.history.Recent(ctx, session.ID, d.config.HistoryWindow)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	transcript := deref(msgs)
	tools := d.providers.Schemas(ctx, session.Providers)

	for round := 0; round < d.config.MaxToolRounds; round++ {
		resp, err := d.complete(ctx, "tools", &gateway.Request{
			Model:     d.config.Model,
			System:    d.config.SystemPrompt,
			Messages:  transcript,
			Tools:     tools,
			MaxTokens: d.config.MaxTokens,
		})
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		call := resp.ToolCalls[0]
		if len(resp.ToolCalls) > 1 {
			d.logger.Debug("dropping extra tool proposals",
				"session_id", session.ID,
				"dropped", len(resp.ToolCalls)-1)
		}

		transcript = append(transcript, models.Message{
			Role:      models.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: []models.ToolCall{call},
		})

		result := d.pipeline.Execute(ctx, session, call)
		transcript = append(transcript, models.Message{
			Role:        models.RoleTool,
			ToolResults: []models.ToolResult{*result},
		})
	}

	// Round cap hit: close the turn without tools.
	resp, err := d.complete(ctx, "tools", &gateway.Request{
		Model:     d.config.Model,
		System:    d.config.SystemPrompt,
		Messages:  transcript,
		MaxTokens: d.config.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (d *Dispatcher) runAgent(ctx context.Context, session *models.Session, runtime *sessions.Runtime, goal string) (string, error) {
	result, err := d.loop.Run(ctx, session, runtime, goal)
	if err != nil {
		return "", err
	}
	if result.Suspended != nil {
		return result.Suspended.Question, nil
	}
	return result.Answer, nil
}

func (d *Dispatcher) resumeAgent(ctx context.Context, session *models.Session, runtime *sessions.Runtime, state *models.AgentState, answer string) (string, error) {
	result, err := d.loop.Resume(ctx, session, runtime, state, answer)
	if err != nil {
		return "", err
	}
	if result.Suspended != nil {
		return result.Suspended.Question, nil
	}
	return result.Answer, nil
}

func (d *Dispatcher) complete(ctx context.Context, mode string, req *gateway.Request) (*gateway.Response, error) {
	start := time.Now()
	resp, err := d.gw.Complete(ctx, req)
	if d.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		d.metrics.GatewayRequestCounter.WithLabelValues(d.gw.Name(), mode, status).Inc()
		d.metrics.GatewayRequestDuration.WithLabelValues(d.gw.Name(), mode).Observe(time.Since(start).Seconds())
	}
	return resp, err
}

func deref(msgs []*models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out
}
