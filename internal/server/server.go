// Package server exposes the orchestration core over a websocket control
// plane: clients send user messages, approval decisions, and input
// answers; the server pushes session events.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parley-ai/parley/internal/approval"
	"github.com/parley-ai/parley/internal/auth"
	"github.com/parley-ai/parley/internal/dispatch"
	"github.com/parley-ai/parley/internal/prompt"
	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/internal/sessions"
	"github.com/parley-ai/parley/pkg/models"
)

// Core bundles the orchestration components the server fronts.
type Core struct {
	Dispatcher *dispatch.Dispatcher
	Gate       *approval.Gate
	Prompts    *prompt.Broker
	Store      sessions.Store
	Tracker    *sessions.Tracker
	Events     *registry.Registry
	Verifier   auth.Verifier
}

// Server is the websocket front door.
type Server struct {
	core     *Core
	logger   *slog.Logger
	upgrader websocket.Upgrader
	http     *http.Server
}

// New builds a server for the given core.
func New(core *Core, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		core:   core,
		logger: logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks serving connections until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown drains connections and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(s.core, identity, conn, s.logger)
	go c.writePump()
	c.readLoop(r.Context())
}

// authenticate resolves the connecting user from the Authorization header
// or, for browser clients that cannot set headers on upgrade, the token
// query parameter.
func (s *Server) authenticate(r *http.Request) (models.Identity, error) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return models.Identity{}, auth.ErrInvalidToken
	}
	return s.core.Verifier.Verify(token)
}
