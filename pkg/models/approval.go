package models

import (
	"time"
)

// Approval outcome reasons surfaced in ToolResult.Reason when a call does
// not execute.
const (
	// ApprovalReasonRejected marks an explicit user denial.
	ApprovalReasonRejected = "rejected"
	// ApprovalReasonTimeout marks a request that expired unanswered.
	ApprovalReasonTimeout = "timeout"
)

// ApprovalRequest is presented to the session owner before a gated tool
// call may execute. CorrelationID matches the pending ToolCall.
type ApprovalRequest struct {
	CorrelationID string         `json:"correlation_id"`
	Provider      string         `json:"provider"`
	ToolName      string         `json:"tool_name"`
	Arguments     map[string]any `json:"arguments"`
	EditAllowed   bool           `json:"edit_allowed"`
	AdminRequired bool           `json:"admin_required"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

// ApprovalResponse is the client's decision for a pending request.
// Arguments, when present and edits are allowed, replace the proposed
// arguments (subject to re-filtering before execution).
type ApprovalResponse struct {
	CorrelationID string         `json:"correlation_id"`
	Approved      bool           `json:"approved"`
	Arguments     map[string]any `json:"arguments,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}
