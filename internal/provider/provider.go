// Package provider defines the capability-provider connection seam: the
// contract the orchestration core invokes tools through, plus the manager
// that owns connection lifecycles. Wire transports live behind the
// Connection interface and are not this package's concern.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// IdentityParam is the reserved argument name for the caller's
// authenticated identity. When a capability declares it, the pipeline
// overwrites it unconditionally; providers must not trust any other source.
const IdentityParam = "identity"

// Capability is one named operation a provider exposes.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// InputSchema is the JSON Schema for the capability's arguments.
	InputSchema json.RawMessage `json:"input_schema"`
	// RequiresApproval marks the capability as gated by provider policy,
	// in addition to any server-side forced-approval configuration.
	RequiresApproval bool `json:"requires_approval,omitempty"`
}

// DeclaredKeys returns the argument names the capability's schema declares.
// A schema that cannot be parsed declares nothing.
func (c *Capability) DeclaredKeys() []string {
	var schema struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(c.InputSchema, &schema); err != nil {
		return nil
	}
	keys := make([]string, 0, len(schema.Properties))
	for k := range schema.Properties {
		keys = append(keys, k)
	}
	return keys
}

// DeclaresIdentity reports whether the capability accepts the identity
// parameter.
func (c *Capability) DeclaresIdentity() bool {
	for _, k := range c.DeclaredKeys() {
		if k == IdentityParam {
			return true
		}
	}
	return false
}

// Result is the raw outcome of a capability invocation before the pipeline
// normalizes it.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Connection is a live link to one capability provider. Implementations
// run their own receive loop and must be safe for use by a single session
// at a time; connections are never shared across sessions.
type Connection interface {
	// ID returns the provider identifier this connection serves.
	ID() string

	// Discover lists the provider's capabilities.
	Discover(ctx context.Context) ([]Capability, error)

	// Invoke executes a capability. Transport and provider failures are
	// returned as errors; the caller normalizes them.
	Invoke(ctx context.Context, capability string, args map[string]any) (*Result, error)

	// Close tears the connection down.
	Close() error
}

// TransportError wraps a connection-level failure talking to a provider.
type TransportError struct {
	Provider string
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
