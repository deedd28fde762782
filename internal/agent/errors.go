package agent

import (
	"errors"
	"fmt"
)

// ErrCancelled indicates the session's cancellation flag stopped a run.
var ErrCancelled = errors.New("run cancelled")

// FailureReason categorizes why a tool call produced no usable output.
// Reasons are stable strings surfaced in ToolResult.Reason and events.
type FailureReason string

const (
	// FailureRejected covers explicit user rejection.
	FailureRejected FailureReason = "rejected"

	// FailureTimeout covers approval requests that expired unanswered.
	FailureTimeout FailureReason = "timeout"

	// FailureSchema covers arguments the capability schema refused.
	FailureSchema FailureReason = "schema"

	// FailureTransport covers provider connection failures.
	FailureTransport FailureReason = "transport"

	// FailureExecution covers errors the capability itself reported.
	FailureExecution FailureReason = "execution"

	// FailureUnknown covers anything unclassified.
	FailureUnknown FailureReason = "unknown"
)

// PipelineError carries the failure reason for one stage of tool
// execution. The pipeline converts it to a failed ToolResult; it never
// escapes to callers.
type PipelineError struct {
	Reason FailureReason
	Stage  string
	Err    error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return e.Stage
}

func (e *PipelineError) Unwrap() error { return e.Err }

// reasonOf extracts the failure reason from an error chain, defaulting
// to unknown.
func reasonOf(err error) FailureReason {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return FailureUnknown
}
