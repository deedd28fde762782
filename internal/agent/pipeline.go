// Package agent executes tool calls and runs the bounded autonomous loop.
//
// The Pipeline is the single path every tool call takes: identity
// injection, schema filtering, approval, routed invocation, and result
// normalization. Callers receive a ToolResult for every call; failures at
// any stage become failed results, never errors.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/parley-ai/parley/internal/approval"
	"github.com/parley-ai/parley/internal/gateway"
	"github.com/parley-ai/parley/internal/observability"
	"github.com/parley-ai/parley/internal/prompt"
	"github.com/parley-ai/parley/internal/provider"
	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/internal/routing"
	"github.com/parley-ai/parley/pkg/models"
)

// PipelineConfig configures tool execution behavior.
type PipelineConfig struct {
	// InvokeTimeout bounds a single provider invocation. Default: 120s.
	InvokeTimeout time.Duration

	// ForceApproval gates every call regardless of what the capability
	// declares.
	ForceApproval bool

	// AllowEdits lets the approving user modify proposed arguments.
	AllowEdits bool

	// ForceApprovalTools always gates the listed tools, matched by bare
	// name or qualified provider__name.
	ForceApprovalTools []string

	// AdminTools require an administrator decision. They are always gated
	// and their arguments may not be edited.
	AdminTools []string
}

// Pipeline executes tool calls end to end.
type Pipeline struct {
	providers *provider.Manager
	gate      *approval.Gate
	table     *routing.Table
	prompts   *prompt.Broker
	gw        gateway.Gateway
	events    *registry.Registry
	metrics   *observability.Metrics
	logger    *slog.Logger
	config    PipelineConfig
}

// NewPipeline wires the execution pipeline. gw may be nil when no backend
// is configured; mid-call completion requests are then answered cancelled.
func NewPipeline(
	providers *provider.Manager,
	gate *approval.Gate,
	table *routing.Table,
	prompts *prompt.Broker,
	gw gateway.Gateway,
	events *registry.Registry,
	metrics *observability.Metrics,
	logger *slog.Logger,
	config PipelineConfig,
) *Pipeline {
	if config.InvokeTimeout <= 0 {
		config.InvokeTimeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		providers: providers,
		gate:      gate,
		table:     table,
		prompts:   prompts,
		gw:        gw,
		events:    events,
		metrics:   metrics,
		logger:    logger.With("component", "pipeline"),
		config:    config,
	}
}

// Execute runs one tool call for a session and always returns a result.
// Any stage failure is normalized into a failed ToolResult with a stable
// reason; errors never propagate to the caller.
func (p *Pipeline) Execute(ctx context.Context, session *models.Session, call models.ToolCall) *models.ToolResult {
	start := time.Now()
	ctx = observability.AddToolCallID(ctx, call.ID)

	p.emitTool(ctx, session.ID, models.EventToolStart, &call, nil)

	result, err := p.run(ctx, session, &call)
	elapsed := time.Since(start)

	if err != nil {
		reason := reasonOf(err)
		p.logger.Warn("tool call failed",
			"session_id", session.ID,
			"provider", call.Provider,
			"tool", call.Name,
			"call_id", call.ID,
			"reason", reason,
			"error", err)
		result = &models.ToolResult{
			ToolCallID: call.ID,
			Success:    false,
			Content:    failureContent(reason),
			Reason:     string(reason),
		}
	}
	result.Elapsed = elapsed

	status := "success"
	eventType := models.EventToolComplete
	if !result.Success {
		status = "error"
		eventType = models.EventToolError
	}
	if p.metrics != nil {
		p.metrics.ToolExecutionCounter.WithLabelValues(call.Provider, call.Name, status).Inc()
		p.metrics.ToolExecutionDuration.WithLabelValues(call.Provider, call.Name).Observe(elapsed.Seconds())
	}
	p.emitTool(ctx, session.ID, eventType, &call, result)

	return result
}

func (p *Pipeline) run(ctx context.Context, session *models.Session, call *models.ToolCall) (*models.ToolResult, error) {
	capability, err := p.lookup(ctx, call)
	if err != nil {
		return nil, err
	}

	// The arguments shown to the approving user are exactly the arguments
	// that will execute, identity included.
	args, err := p.prepareArgs(capability, call.Arguments, session.Owner.Subject)
	if err != nil {
		return nil, err
	}
	call.Arguments = args

	adminRequired := toolListed(p.config.AdminTools, call)
	forced := p.config.ForceApproval || adminRequired || toolListed(p.config.ForceApprovalTools, call)
	if forced || capability.RequiresApproval {
		args, err = p.approve(ctx, session, call, capability, adminRequired)
		if err != nil {
			return nil, err
		}
		call.Arguments = args
	}

	return p.invoke(ctx, session, call)
}

// toolListed reports whether a policy list names the call, either by its
// bare capability name or its qualified provider__name wire name.
func toolListed(list []string, call *models.ToolCall) bool {
	if len(list) == 0 {
		return false
	}
	qualified := gateway.WireName(models.ToolSchema{Provider: call.Provider, Name: call.Name})
	for _, name := range list {
		if name == call.Name || name == qualified {
			return true
		}
	}
	return false
}

func (p *Pipeline) lookup(ctx context.Context, call *models.ToolCall) (*provider.Capability, error) {
	capability, err := p.providers.Capability(ctx, call.Provider, call.Name)
	if err != nil {
		reason := FailureExecution
		var te *provider.TransportError
		if errors.As(err, &te) {
			reason = FailureTransport
		}
		return nil, &PipelineError{Reason: reason, Stage: "lookup", Err: err}
	}
	return capability, nil
}

// prepareArgs filters the proposal down to the capability's declared keys
// and stamps the caller identity. It runs on the model's proposal and
// again on any user edit: edited arguments are as untrusted as proposed
// ones, and neither may carry a spoofed identity.
func (p *Pipeline) prepareArgs(capability *provider.Capability, proposed map[string]any, subject string) (map[string]any, error) {
	declared := map[string]bool{}
	for _, k := range capability.DeclaredKeys() {
		declared[k] = true
	}

	args := make(map[string]any, len(proposed))
	for k, v := range proposed {
		if declared[k] {
			args[k] = v
		}
	}

	if capability.DeclaresIdentity() {
		args[provider.IdentityParam] = subject
	}

	if err := validateArgs(capability, args); err != nil {
		return nil, &PipelineError{Reason: FailureSchema, Stage: "validate", Err: err}
	}
	return args, nil
}

func validateArgs(capability *provider.Capability, args map[string]any) error {
	if len(capability.InputSchema) == 0 {
		return nil
	}
	schema, err := jsonschema.CompileString(capability.Name+".json", string(capability.InputSchema))
	if err != nil {
		// An undeclarable schema filters to declared keys only; do not
		// fail calls the provider itself will validate.
		return nil
	}
	// Validate wants decoded JSON values.
	doc := make(map[string]any, len(args))
	for k, v := range args {
		doc[k] = v
	}
	return schema.Validate(doc)
}

func (p *Pipeline) approve(ctx context.Context, session *models.Session, call *models.ToolCall, capability *provider.Capability, adminRequired bool) (map[string]any, error) {
	editAllowed := p.config.AllowEdits && !adminRequired
	pending, err := p.gate.Request(ctx, session.ID, *call, editAllowed, adminRequired)
	if err != nil {
		return nil, &PipelineError{Reason: FailureUnknown, Stage: "approval", Err: err}
	}

	decision := pending.Wait(ctx)

	outcome := "approved"
	switch {
	case !decision.Approved && decision.Reason == models.ApprovalReasonTimeout:
		outcome = "timeout"
	case !decision.Approved:
		outcome = "rejected"
	case decision.Edited:
		outcome = "edited"
	}
	if p.metrics != nil {
		p.metrics.ApprovalCounter.WithLabelValues(outcome).Inc()
	}

	if !decision.Approved {
		reason := FailureRejected
		if decision.Reason == models.ApprovalReasonTimeout {
			reason = FailureTimeout
		}
		return nil, &PipelineError{Reason: reason, Stage: "approval", Err: fmt.Errorf("approval %s", decision.Reason)}
	}

	if !decision.Edited {
		return call.Arguments, nil
	}
	return p.prepareArgs(capability, decision.Arguments, session.Owner.Subject)
}

func (p *Pipeline) invoke(ctx context.Context, session *models.Session, call *models.ToolCall) (*models.ToolResult, error) {
	entry := &routing.Entry{
		Provider:  call.Provider,
		SessionID: session.ID,
		Call:      call,
		PromptUser: func(ctx context.Context, question string) (string, error) {
			return p.prompts.Ask(ctx, session.ID, call.Provider, question)
		},
		Complete: func(ctx context.Context, system string, messages []models.Message) (string, error) {
			if p.gw == nil {
				return "", fmt.Errorf("no gateway configured")
			}
			resp, err := p.gw.Complete(ctx, &gateway.Request{System: system, Messages: messages})
			if err != nil {
				return "", err
			}
			return resp.Text, nil
		},
	}
	if sink, ok := p.events.Sink(session.ID); ok {
		entry.Sink = sink
	}

	if err := p.table.Install(entry); err != nil {
		return nil, &PipelineError{Reason: FailureUnknown, Stage: "route", Err: err}
	}
	defer p.table.Remove(call.Provider)

	invokeCtx, cancel := context.WithTimeout(ctx, p.config.InvokeTimeout)
	defer cancel()

	res, err := p.providers.Invoke(invokeCtx, call.Provider, call.Name, call.Arguments)
	if err != nil {
		reason := FailureExecution
		var te *provider.TransportError
		if errors.As(err, &te) {
			reason = FailureTransport
		}
		return nil, &PipelineError{Reason: reason, Stage: "invoke", Err: err}
	}

	if res.IsError {
		return &models.ToolResult{
			ToolCallID: call.ID,
			Success:    false,
			Content:    res.Content,
			Reason:     string(FailureExecution),
		}, nil
	}
	return &models.ToolResult{
		ToolCallID: call.ID,
		Success:    true,
		Content:    res.Content,
	}, nil
}

func (p *Pipeline) emitTool(ctx context.Context, sessionID string, t models.EventType, call *models.ToolCall, result *models.ToolResult) {
	if p.events == nil {
		return
	}
	e := models.NewEvent(t, sessionID)
	e.Tool = &models.ToolEvent{
		CallID:   call.ID,
		Provider: call.Provider,
		Name:     call.Name,
	}
	if result != nil {
		e.Tool.Success = result.Success
		e.Tool.Result = result.Content
		if !result.Success {
			e.Tool.Message = result.Reason
		}
	}
	p.events.Emit(ctx, e)
}

// failureContent renders a stable, client-safe description of a failure.
func failureContent(reason FailureReason) string {
	switch reason {
	case FailureRejected:
		return "tool call rejected by user"
	case FailureTimeout:
		return "approval request timed out"
	case FailureSchema:
		return "arguments rejected by capability schema"
	case FailureTransport:
		return "provider connection failed"
	case FailureExecution:
		return "capability reported a failure"
	default:
		return "tool call failed"
	}
}
