package gateway

import (
	"context"
	"encoding/json"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/parley-ai/parley/internal/retry"
	"github.com/parley-ai/parley/pkg/models"
)

// OpenAIConfig holds the settings for the OpenAI adapter.
type OpenAIConfig struct {
	// APIKey is required.
	APIKey string
	// BaseURL overrides the default API endpoint (for compatible backends).
	BaseURL string
	// DefaultModel is used when a request does not name one.
	DefaultModel string
	// MaxTokens caps responses when a request does not set a limit.
	MaxTokens int
}

// OpenAI adapts the chat completions API to the Gateway interface.
type OpenAI struct {
	client       *openai.Client
	defaultModel string
	maxTokens    int
}

// NewOpenAI creates an OpenAI gateway adapter.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

// Name returns "openai".
func (g *OpenAI) Name() string {
	return "openai"
}

// Complete runs one non-streaming chat completion.
func (g *OpenAI) Complete(ctx context.Context, req *Request) (*Response, error) {
	messages, err := g.convertMessages(req.Messages, req.System)
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

	chatReq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = g.convertTools(req.Tools)
	}

	var completion openai.ChatCompletionResponse
	err = retry.Do(ctx, retry.Config{Retryable: openaiRetryable}, func(ctx context.Context) error {
		var callErr error
		completion, callErr = g.client.CreateChatCompletion(ctx, chatReq)
		return callErr
	})
	if err != nil {
		return nil, &Error{Backend: g.Name(), Err: err}
	}
	if len(completion.Choices) == 0 {
		return nil, &Error{Backend: g.Name(), Err: errors.New("empty completion")}
	}

	choice := completion.Choices[0]
	resp := &Response{Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, &Error{Backend: g.Name(), Err: err}
			}
		}
		providerID, capability := ParseWireName(tc.Function.Name)
		resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Provider:  providerID,
			Name:      capability,
			Arguments: args,
		})
	}
	return resp, nil
}

// openaiRetryable reports whether an API error is worth retrying.
func openaiRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	return false
}

// convertMessages translates history into OpenAI chat messages, injecting
// the system prompt as the first message.
func (g *OpenAI) convertMessages(messages []models.Message, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleTool:
			// OpenAI requires one message per tool result.
			for _, tr := range msg.ToolResults {
				body := tr.Content
				if !tr.Success && body == "" {
					body = tr.Reason
				}
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    body,
					ToolCallID: tr.ToolCallID,
				})
			}

		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					return nil, err
				}
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      WireName(models.ToolSchema{Provider: tc.Provider, Name: tc.Name}),
						Arguments: string(args),
					},
				})
			}
			result = append(result, oaiMsg)

		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
		}
	}

	return result, nil
}

// convertTools translates tool schemas to OpenAI function definitions.
// A schema that fails to parse degrades to an empty object schema so one
// bad tool cannot break function calling for the rest.
func (g *OpenAI) convertTools(tools []models.ToolSchema) []openai.Tool {
	result := make([]openai.Tool, len(tools))

	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema, &schemaMap); err != nil {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}

		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        WireName(tool),
				Description: tool.Description,
				Parameters:  schemaMap,
			},
		}
	}

	return result
}
