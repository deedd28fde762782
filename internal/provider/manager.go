package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/parley-ai/parley/pkg/models"
)

// Manager owns the set of live provider connections, keyed by provider id.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]Connection
	logger      *slog.Logger
}

// NewManager creates an empty connection manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		connections: make(map[string]Connection),
		logger:      logger.With("component", "provider"),
	}
}

// Add registers a connection under its provider id, replacing and closing
// any previous connection for the same id.
func (m *Manager) Add(conn Connection) {
	m.mu.Lock()
	previous := m.connections[conn.ID()]
	m.connections[conn.ID()] = conn
	m.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			m.logger.Error("failed to close replaced provider connection",
				"provider", conn.ID(),
				"error", err)
		}
	}
}

// Connection returns the live connection for a provider id.
func (m *Manager) Connection(providerID string) (Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[providerID]
	return conn, ok
}

// Remove closes and forgets the connection for a provider id.
func (m *Manager) Remove(providerID string) {
	m.mu.Lock()
	conn, ok := m.connections[providerID]
	delete(m.connections, providerID)
	m.mu.Unlock()

	if ok {
		if err := conn.Close(); err != nil {
			m.logger.Error("failed to close provider connection",
				"provider", providerID,
				"error", err)
		}
	}
}

// Close tears down all connections.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, conn := range m.connections {
		if err := conn.Close(); err != nil {
			m.logger.Error("failed to close provider connection",
				"provider", id,
				"error", err)
		}
		delete(m.connections, id)
	}
	return nil
}

// Capability looks up one capability's declaration on a provider.
func (m *Manager) Capability(ctx context.Context, providerID, name string) (*Capability, error) {
	conn, ok := m.Connection(providerID)
	if !ok {
		return nil, fmt.Errorf("provider %q not connected", providerID)
	}

	caps, err := conn.Discover(ctx)
	if err != nil {
		return nil, &TransportError{Provider: providerID, Op: "discover", Err: err}
	}
	for i := range caps {
		if caps[i].Name == name {
			return &caps[i], nil
		}
	}
	return nil, fmt.Errorf("provider %q has no capability %q", providerID, name)
}

// Invoke executes a capability on a provider.
func (m *Manager) Invoke(ctx context.Context, providerID, capability string, args map[string]any) (*Result, error) {
	conn, ok := m.Connection(providerID)
	if !ok {
		return nil, fmt.Errorf("provider %q not connected", providerID)
	}
	return conn.Invoke(ctx, capability, args)
}

// Schemas returns the tool schemas of the selected providers, shaped for
// the LLM gateway. Providers that fail discovery are skipped with a log;
// one broken provider must not hide the rest.
func (m *Manager) Schemas(ctx context.Context, providerIDs []string) []models.ToolSchema {
	var schemas []models.ToolSchema
	for _, id := range providerIDs {
		conn, ok := m.Connection(id)
		if !ok {
			m.logger.Warn("selected provider not connected", "provider", id)
			continue
		}
		caps, err := conn.Discover(ctx)
		if err != nil {
			m.logger.Warn("provider discovery failed",
				"provider", id,
				"error", err)
			continue
		}
		for _, c := range caps {
			schemas = append(schemas, models.ToolSchema{
				Provider:    id,
				Name:        c.Name,
				Description: c.Description,
				Schema:      c.InputSchema,
			})
		}
	}
	return schemas
}
