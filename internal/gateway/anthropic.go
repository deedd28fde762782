package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/parley-ai/parley/internal/retry"
	"github.com/parley-ai/parley/pkg/models"
)

// AnthropicConfig holds the settings for the Anthropic adapter.
type AnthropicConfig struct {
	// APIKey is required. Format: sk-ant-api03-...
	APIKey string
	// BaseURL overrides the default API endpoint.
	BaseURL string
	// DefaultModel is used when a request does not name one.
	DefaultModel string
	// MaxTokens caps responses when a request does not set a limit.
	MaxTokens int
}

// Anthropic adapts the Anthropic Messages API to the Gateway interface.
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
}

// NewAnthropic creates an Anthropic gateway adapter.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &Anthropic{
		client:       anthropic.NewClient(options...),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

// Name returns "anthropic".
func (g *Anthropic) Name() string {
	return "anthropic"
}

// Complete runs one non-streaming completion.
func (g *Anthropic) Complete(ctx context.Context, req *Request) (*Response, error) {
	messages, err := g.convertMessages(req.Messages)
	if err != nil {
		return nil, &Error{Backend: g.Name(), Err: err}
	}

	model := req.Model
	if model == "" {
		model = g.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: req.System,
			},
		}
	}
	if len(req.Tools) > 0 {
		tools, err := g.convertTools(req.Tools)
		if err != nil {
			return nil, &Error{Backend: g.Name(), Err: err}
		}
		params.Tools = tools
	}

	var message *anthropic.Message
	err = retry.Do(ctx, retry.Config{Retryable: anthropicRetryable}, func(ctx context.Context) error {
		var callErr error
		message, callErr = g.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, &Error{Backend: g.Name(), Err: err}
	}

	resp := &Response{}
	var text strings.Builder
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			var args map[string]any
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &args); err != nil {
					return nil, &Error{Backend: g.Name(),
						Err: fmt.Errorf("invalid tool input for %s: %w", b.Name, err)}
				}
			}
			providerID, capability := ParseWireName(b.Name)
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:        b.ID,
				Provider:  providerID,
				Name:      capability,
				Arguments: args,
			})
		}
	}
	resp.Text = text.String()
	return resp, nil
}

// anthropicRetryable reports whether an API error is worth retrying.
// Rate limits and server errors are transient; everything else is not.
func anthropicRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

// convertMessages translates history into Anthropic message params.
// System messages are handled separately in params.System.
func (g *Anthropic) convertMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			body := tr.Content
			if !tr.Success && body == "" {
				body = tr.Reason
			}
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, body, !tr.Success))
		}
		for _, tc := range msg.ToolCalls {
			input := tc.Arguments
			if input == nil {
				input = map[string]any{}
			}
			content = append(content, anthropic.NewToolUseBlock(
				tc.ID,
				input,
				WireName(models.ToolSchema{Provider: tc.Provider, Name: tc.Name}),
			))
		}

		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			// User and tool roles both map to user messages.
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

// convertTools translates tool schemas to Anthropic tool params.
func (g *Anthropic) convertTools(tools []models.ToolSchema) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam

	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, WireName(tool))
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)

		result = append(result, toolParam)
	}

	return result, nil
}
