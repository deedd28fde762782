package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parley-ai/parley/internal/gateway"
	"github.com/parley-ai/parley/internal/observability"
	"github.com/parley-ai/parley/internal/provider"
	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/internal/sessions"
	"github.com/parley-ai/parley/pkg/models"
)

// DefaultMaxSteps bounds an agent run when no cap is configured.
const DefaultMaxSteps = 10

const agentSystemPrompt = `You are an autonomous assistant working toward the user's goal in small steps.

Each step, either call one tool to make progress, or call the agent_control tool:
- action "continue" to keep working
- action "finish" with final_answer when the goal is met
- action "ask_user" with question when you are blocked on information only the user has

If you cannot call tools, reply with a line starting with "FINAL ANSWER:" or "QUESTION:".`

// LoopConfig configures the autonomous loop.
type LoopConfig struct {
	// MaxSteps caps reason-act-observe cycles per run. Default: 10.
	MaxSteps int

	// Model and MaxTokens are passed through to the gateway.
	Model     string
	MaxTokens int
}

// Loop runs the bounded reason-act-observe cycle for one session at a
// time. A run either completes, errors, or suspends waiting for the user.
type Loop struct {
	pipeline  *Pipeline
	gw        gateway.Gateway
	providers *provider.Manager
	events    *registry.Registry
	metrics   *observability.Metrics
	logger    *slog.Logger
	config    LoopConfig
}

// NewLoop wires an agent loop over the pipeline and gateway.
func NewLoop(
	pipeline *Pipeline,
	gw gateway.Gateway,
	providers *provider.Manager,
	events *registry.Registry,
	metrics *observability.Metrics,
	logger *slog.Logger,
	config LoopConfig,
) *Loop {
	if config.MaxSteps <= 0 {
		config.MaxSteps = DefaultMaxSteps
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		pipeline:  pipeline,
		gw:        gw,
		providers: providers,
		events:    events,
		metrics:   metrics,
		logger:    logger.With("component", "agent"),
		config:    config,
	}
}

// RunResult is the outcome of a run or resume. Exactly one of Answer and
// Suspended is meaningful: a suspended run has no answer yet.
type RunResult struct {
	Answer    string
	Steps     int
	Suspended *models.AgentState
}

// Run starts a fresh agent run toward goal.
func (l *Loop) Run(ctx context.Context, session *models.Session, runtime *sessions.Runtime, goal string) (*RunResult, error) {
	l.emit(ctx, session.ID, &models.AgentEvent{
		Type:     models.AgentEventStart,
		MaxSteps: l.config.MaxSteps,
		Strategy: "react",
		Message:  goal,
	})

	transcript := []models.Message{{Role: models.RoleUser, Content: goal}}
	return l.run(ctx, session, runtime, goal, transcript, 1, false)
}

// Resume continues a suspended run with the user's answer to its question.
func (l *Loop) Resume(ctx context.Context, session *models.Session, runtime *sessions.Runtime, state *models.AgentState, answer string) (*RunResult, error) {
	transcript := append(state.Transcript, models.Message{Role: models.RoleUser, Content: answer})
	// The suspended step did not run; it asked for input. Resume retries
	// that step with the answer in the transcript so the budget is unchanged.
	return l.run(ctx, session, runtime, state.Goal, transcript, state.Step, false)
}

func (l *Loop) run(ctx context.Context, session *models.Session, runtime *sessions.Runtime, goal string, transcript []models.Message, startStep int, observed bool) (*RunResult, error) {
	tools := append(l.providers.Schemas(ctx, session.Providers), gateway.ControlTool())

	step := startStep
	for ; step <= l.config.MaxSteps; step++ {
		// Cancellation is honored at step boundaries, never mid-call.
		if runtime != nil && runtime.Cancelled() {
			l.emit(ctx, session.ID, &models.AgentEvent{
				Type:    models.AgentEventError,
				Step:    step,
				Message: "run cancelled",
			})
			return nil, ErrCancelled
		}

		l.emit(ctx, session.ID, &models.AgentEvent{Type: models.AgentEventTurnStart, Step: step})

		resp, err := l.complete(ctx, &gateway.Request{
			Model:     l.config.Model,
			System:    agentSystemPrompt,
			Messages:  transcript,
			Tools:     tools,
			MaxTokens: l.config.MaxTokens,
		})
		if err != nil {
			// Gateway failures are terminal: without the model there is no
			// way to reason the run forward.
			l.emit(ctx, session.ID, &models.AgentEvent{
				Type:    models.AgentEventError,
				Step:    step,
				Message: err.Error(),
			})
			return nil, err
		}

		decision := gateway.ParseControl(resp)
		if decision.Message != "" {
			eventType := models.AgentEventReason
			if observed {
				eventType = models.AgentEventObserve
			}
			l.emit(ctx, session.ID, &models.AgentEvent{
				Type:    eventType,
				Step:    step,
				Message: decision.Message,
			})
		}
		observed = false

		transcript = append(transcript, assistantMessage(resp))

		switch {
		case decision.Action == gateway.ActionAskUser:
			question := decision.Question
			if question == "" {
				question = decision.Message
			}
			state := &models.AgentState{
				Step:       step,
				MaxSteps:   l.config.MaxSteps,
				Goal:       goal,
				Question:   question,
				Transcript: transcript,
				AskedAt:    time.Now(),
			}
			if runtime != nil {
				runtime.Suspend(state)
			}
			l.emit(ctx, session.ID, &models.AgentEvent{
				Type:     models.AgentEventRequestInput,
				Step:     step,
				Question: question,
			})
			return &RunResult{Steps: step, Suspended: state}, nil

		case decision.Action == gateway.ActionFinish:
			answer := decision.FinalAnswer
			if answer == "" {
				answer = decision.Message
			}
			l.finishMetrics(step)
			l.emit(ctx, session.ID, &models.AgentEvent{
				Type:    models.AgentEventCompletion,
				Step:    step,
				Steps:   step,
				Message: answer,
			})
			return &RunResult{Answer: answer, Steps: step}, nil

		case decision.ToolCall != nil:
			call := *decision.ToolCall
			l.emit(ctx, session.ID, &models.AgentEvent{
				Type:      models.AgentEventToolCall,
				Step:      step,
				Provider:  call.Provider,
				ToolName:  call.Name,
				Arguments: call.Arguments,
			})

			// Tool failures are observations for the model, not run errors.
			result := l.pipeline.Execute(ctx, session, call)
			l.emit(ctx, session.ID, &models.AgentEvent{
				Type:   models.AgentEventToolResult,
				Step:   step,
				Result: result,
			})
			transcript = append(transcript, models.Message{
				Role:        models.RoleTool,
				ToolResults: []models.ToolResult{*result},
			})
			observed = true
		}
		// A bare continue with no tool call loops back to reasoning; the
		// step cap bounds it.
	}

	return l.bestEffortAnswer(ctx, session, transcript)
}

// bestEffortAnswer asks the model to wrap up with whatever progress the
// capped run made. A failing wrap-up call still ends the run cleanly.
func (l *Loop) bestEffortAnswer(ctx context.Context, session *models.Session, transcript []models.Message) (*RunResult, error) {
	transcript = append(transcript, models.Message{
		Role:    models.RoleUser,
		Content: "Step limit reached. Give your best final answer based on the work so far.",
	})

	answer := "Step limit reached before the goal was completed."
	resp, err := l.complete(ctx, &gateway.Request{
		Model:     l.config.Model,
		System:    agentSystemPrompt,
		Messages:  transcript,
		MaxTokens: l.config.MaxTokens,
	})
	if err != nil {
		l.logger.Warn("best-effort completion failed",
			"session_id", session.ID,
			"error", err)
	} else if resp.Text != "" {
		answer = resp.Text
	}

	l.finishMetrics(l.config.MaxSteps)
	l.emit(ctx, session.ID, &models.AgentEvent{
		Type:     models.AgentEventMaxSteps,
		Step:     l.config.MaxSteps,
		Steps:    l.config.MaxSteps,
		MaxSteps: l.config.MaxSteps,
		Message:  answer,
	})
	return &RunResult{Answer: answer, Steps: l.config.MaxSteps}, nil
}

func (l *Loop) complete(ctx context.Context, req *gateway.Request) (*gateway.Response, error) {
	if l.gw == nil {
		return nil, fmt.Errorf("no gateway configured")
	}
	start := time.Now()
	resp, err := l.gw.Complete(ctx, req)
	if l.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		l.metrics.GatewayRequestCounter.WithLabelValues(l.gw.Name(), "agent", status).Inc()
		l.metrics.GatewayRequestDuration.WithLabelValues(l.gw.Name(), "agent").Observe(time.Since(start).Seconds())
	}
	return resp, err
}

func (l *Loop) finishMetrics(steps int) {
	if l.metrics != nil {
		l.metrics.AgentSteps.Observe(float64(steps))
	}
}

func (l *Loop) emit(ctx context.Context, sessionID string, ae *models.AgentEvent) {
	if l.events == nil {
		return
	}
	ae.Time = time.Now()
	e := models.NewEvent(models.EventAgent, sessionID)
	e.Agent = ae
	l.events.Emit(ctx, e)
}

// assistantMessage records the model's turn, text and tool proposal both,
// so resumed transcripts replay faithfully.
func assistantMessage(resp *gateway.Response) models.Message {
	msg := models.Message{Role: models.RoleAssistant, Content: resp.Text}
	if len(resp.ToolCalls) > 0 {
		msg.ToolCalls = resp.ToolCalls[:1]
	}
	return msg
}
