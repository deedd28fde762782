// Package models provides domain types for the Parley orchestration core.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// RunMode selects how a conversational turn is processed.
type RunMode string

const (
	// ModePlain is a straight completion with no tools or retrieval.
	ModePlain RunMode = "plain"
	// ModeRAG augments the completion with retrieved context.
	ModeRAG RunMode = "rag"
	// ModeTools exposes capability-provider tools to the model.
	ModeTools RunMode = "tools"
	// ModeAgent runs the bounded autonomous reason-act-observe loop.
	ModeAgent RunMode = "agent"
)

// Message is a single entry in a session's conversation history.
type Message struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id,omitempty"`
	Role        Role           `json:"role"`
	Content     string         `json:"content,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ToolCall is the model's request to invoke a capability on a provider.
// ID is the correlation id tying the call to its result, approval request,
// and lifecycle events.
type ToolCall struct {
	ID        string         `json:"id"`
	Provider  string         `json:"provider"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the normalized outcome of a tool invocation.
type ToolResult struct {
	ToolCallID string        `json:"tool_call_id"`
	Success    bool          `json:"success"`
	Content    string        `json:"content,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
}

// Identity is the authenticated owner of a session. Subject is the value
// injected into identity-aware tool arguments; it is never taken from
// model output or user edits.
type Identity struct {
	Subject string `json:"subject"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Session is the durable description of a conversation.
type Session struct {
	ID        string    `json:"id"`
	Owner     Identity  `json:"owner"`
	Providers []string  `json:"providers,omitempty"`
	Sources   []string  `json:"sources,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToolSchema describes one capability a provider exposes, in the shape
// handed to the LLM gateway as a callable tool.
type ToolSchema struct {
	Provider    string `json:"provider"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Schema is the JSON Schema for the capability's arguments.
	Schema json.RawMessage `json:"schema,omitempty"`
}
