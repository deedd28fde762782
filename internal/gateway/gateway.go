// Package gateway is the seam to the LLM backends. The orchestration core
// talks to a Gateway; the adapters in this package translate to and from
// the Anthropic and OpenAI APIs.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/parley-ai/parley/pkg/models"
)

// Request is one completion call: conversation so far plus the tool
// schemas the model may call.
type Request struct {
	Model     string
	System    string
	Messages  []models.Message
	Tools     []models.ToolSchema
	MaxTokens int
}

// Response is either a plain completion, a set of proposed tool calls, or
// both (text accompanying the proposal).
type Response struct {
	Text      string
	ToolCalls []models.ToolCall
}

// Gateway is implemented by each LLM backend adapter.
// Implementations must be safe for concurrent use.
type Gateway interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Name() string
}

// Error wraps a backend failure. Gateway errors are terminal for the turn
// that issued them.
type Error struct {
	Backend string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wireSeparator joins provider id and capability name into the single
// tool name the model sees. Provider ids must not contain it.
const wireSeparator = "__"

// WireName returns the tool name presented to the model for a capability.
func WireName(ts models.ToolSchema) string {
	if ts.Provider == "" {
		return ts.Name
	}
	return ts.Provider + wireSeparator + ts.Name
}

// ParseWireName splits a model-facing tool name back into provider id and
// capability name. Names without a separator have no provider (control
// tools).
func ParseWireName(name string) (providerID, capability string) {
	if i := strings.Index(name, wireSeparator); i >= 0 {
		return name[:i], name[i+len(wireSeparator):]
	}
	return "", name
}
