package models

import (
	"time"
)

// AgentEventType identifies the kind of agent loop event.
type AgentEventType string

const (
	// AgentEventStart opens an agent run.
	AgentEventStart AgentEventType = "start"
	// AgentEventTurnStart opens one reason-act-observe step.
	AgentEventTurnStart AgentEventType = "turn_start"
	// AgentEventReason carries the model's reasoning for a step.
	AgentEventReason AgentEventType = "reason"
	// AgentEventRequestInput suspends the run pending a user answer.
	AgentEventRequestInput AgentEventType = "request_input"
	// AgentEventToolCall announces the single tool call of a step.
	AgentEventToolCall AgentEventType = "tool_call"
	// AgentEventToolResult carries the normalized result of that call.
	AgentEventToolResult AgentEventType = "tool_result"
	// AgentEventObserve carries the model's interpretation of a result.
	AgentEventObserve AgentEventType = "observe"
	// AgentEventCompletion closes the run with a final answer.
	AgentEventCompletion AgentEventType = "completion"
	// AgentEventError closes the run with a terminal error.
	AgentEventError AgentEventType = "error"
	// AgentEventMaxSteps closes the run at the step cap with a
	// best-effort answer.
	AgentEventMaxSteps AgentEventType = "max_steps"
)

// AgentState is the saved position of a suspended agent run. It exists
// only between a request_input event and the next user message on the
// session; the answer resumes the run at Step with the recorded
// transcript.
type AgentState struct {
	Step       int       `json:"step"`
	MaxSteps   int       `json:"max_steps"`
	Goal       string    `json:"goal"`
	Question   string    `json:"question"`
	Transcript []Message `json:"transcript"`
	AskedAt    time.Time `json:"asked_at"`
}

// AgentEvent is one entry in the agent loop's event stream. Exactly the
// fields relevant to Type are populated.
type AgentEvent struct {
	Type AgentEventType `json:"type"`
	Step int            `json:"step"`
	Time time.Time      `json:"time"`

	// Start fields.
	MaxSteps int    `json:"max_steps,omitempty"`
	Strategy string `json:"strategy,omitempty"`

	// Reason, observe, completion, error and max-steps text.
	Message string `json:"message,omitempty"`

	// RequestInput fields.
	Question string `json:"question,omitempty"`

	// ToolCall fields.
	ToolName  string         `json:"tool_name,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`

	// ToolResult payload.
	Result *ToolResult `json:"result,omitempty"`

	// Completion fields.
	Steps int `json:"steps,omitempty"`
}
