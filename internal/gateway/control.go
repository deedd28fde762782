package gateway

import (
	"encoding/json"
	"strings"

	"github.com/parley-ai/parley/pkg/models"
)

// ControlToolName is the reserved tool the agent loop hands the model for
// signalling loop decisions. It carries no provider id on the wire.
const ControlToolName = "agent_control"

// ControlAction is the decision the model signals through the control tool.
type ControlAction string

const (
	ActionContinue ControlAction = "continue"
	ActionFinish   ControlAction = "finish"
	ActionAskUser  ControlAction = "ask_user"
)

// ControlDecision is the parsed outcome of a reason or observe call.
type ControlDecision struct {
	Action      ControlAction
	Message     string
	Question    string
	FinalAnswer string
	// ToolCall is the first provider tool the model proposed alongside
	// (or instead of) a control signal. Further proposals are dropped;
	// the model gets another chance after the observation.
	ToolCall *models.ToolCall
}

const controlSchema = `{
  "type": "object",
  "properties": {
    "action": {
      "type": "string",
      "enum": ["continue", "finish", "ask_user"],
      "description": "continue working, finish with a final answer, or ask the user a question"
    },
    "message": {
      "type": "string",
      "description": "brief reasoning for this step"
    },
    "question": {
      "type": "string",
      "description": "the question to ask the user (action=ask_user)"
    },
    "final_answer": {
      "type": "string",
      "description": "the final answer (action=finish)"
    }
  },
  "required": ["action"]
}`

// ControlTool returns the control tool schema to append to a reason or
// observe request.
func ControlTool() models.ToolSchema {
	return models.ToolSchema{
		Name:        ControlToolName,
		Description: "Signal whether to continue, finish, or ask the user something.",
		Schema:      json.RawMessage(controlSchema),
	}
}

// ParseControl extracts the loop decision from a gateway response.
//
// Preference order: an explicit control tool call, then a provider tool
// proposal (implies continue), then a best-effort read of the plain text.
// Models that ignore the control schema entirely default to continue so
// the loop's step cap, not a parse failure, bounds the run.
func ParseControl(resp *Response) *ControlDecision {
	d := &ControlDecision{Action: ActionContinue, Message: strings.TrimSpace(resp.Text)}

	for i := range resp.ToolCalls {
		tc := resp.ToolCalls[i]
		if tc.Provider == "" && tc.Name == ControlToolName {
			applyControlArgs(d, tc.Arguments)
			continue
		}
		if d.ToolCall == nil {
			call := tc
			d.ToolCall = &call
		}
	}

	if d.ToolCall == nil && len(resp.ToolCalls) == 0 {
		parseControlText(d, resp.Text)
	}
	return d
}

func applyControlArgs(d *ControlDecision, args map[string]any) {
	if action, ok := args["action"].(string); ok {
		switch ControlAction(action) {
		case ActionContinue, ActionFinish, ActionAskUser:
			d.Action = ControlAction(action)
		}
	}
	if msg, ok := args["message"].(string); ok && msg != "" {
		d.Message = msg
	}
	if q, ok := args["question"].(string); ok {
		d.Question = q
	}
	if a, ok := args["final_answer"].(string); ok {
		d.FinalAnswer = a
	}
}

// parseControlText is the plain-text fallback for models that answer in
// prose instead of calling the control tool.
func parseControlText(d *ControlDecision, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "FINAL ANSWER:"):
			d.Action = ActionFinish
			d.FinalAnswer = strings.TrimSpace(line[len("FINAL ANSWER:"):])
			return
		case strings.HasPrefix(upper, "QUESTION:"):
			d.Action = ActionAskUser
			d.Question = strings.TrimSpace(line[len("QUESTION:"):])
			return
		}
	}
	// No recognizable marker: keep going.
	d.Action = ActionContinue
}
