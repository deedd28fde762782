package models

import (
	"time"
)

// EventType identifies the kind of outbound session event.
type EventType string

const (
	// Chat lifecycle for a turn.
	EventChatCompletion EventType = "chat.completion"
	EventChatError      EventType = "chat.error"

	// Tool call lifecycle. Events for a single call are ordered; events
	// across concurrent calls are correlated by Tool.CallID only.
	EventToolStart    EventType = "tool.start"
	EventToolProgress EventType = "tool.progress"
	EventToolComplete EventType = "tool.complete"
	EventToolError    EventType = "tool.error"

	// Approval flow.
	EventApprovalWaiting EventType = "approval.waiting"
	EventApprovalRequest EventType = "approval.request"

	// Agent loop stream.
	EventAgent EventType = "agent.event"

	// A provider asked the user a question mid-call.
	EventInputRequest EventType = "input.request"
)

// Event is the envelope pushed to a session's connected client. Exactly
// one payload pointer is non-nil for a given Type.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Time      time.Time `json:"time"`

	Text     string           `json:"text,omitempty"`
	Error    string           `json:"error,omitempty"`
	Tool     *ToolEvent       `json:"tool,omitempty"`
	Approval *ApprovalRequest `json:"approval,omitempty"`
	Agent    *AgentEvent      `json:"agent,omitempty"`
	Input    *InputRequest    `json:"input,omitempty"`
}

// ToolEvent describes the lifecycle of one tool invocation.
type ToolEvent struct {
	CallID   string `json:"call_id"`
	Provider string `json:"provider,omitempty"`
	Name     string `json:"name,omitempty"`

	// Progress fields.
	Percent *int   `json:"percent,omitempty"`
	Message string `json:"message,omitempty"`

	// Completion fields.
	Success bool   `json:"success,omitempty"`
	Result  string `json:"result,omitempty"`
}

// InputRequest asks the session owner a question on behalf of a provider
// that is mid-call. CorrelationID identifies the prompt, not the tool call.
type InputRequest struct {
	CorrelationID string `json:"correlation_id"`
	Provider      string `json:"provider"`
	Question      string `json:"question"`
}

// NewEvent builds an event envelope stamped with the current time.
func NewEvent(t EventType, sessionID string) Event {
	return Event{Type: t, SessionID: sessionID, Time: time.Now()}
}
