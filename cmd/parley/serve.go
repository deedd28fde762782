package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/agent"
	"github.com/parley-ai/parley/internal/approval"
	"github.com/parley-ai/parley/internal/auth"
	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/dispatch"
	"github.com/parley-ai/parley/internal/gateway"
	"github.com/parley-ai/parley/internal/history"
	"github.com/parley-ai/parley/internal/observability"
	"github.com/parley-ai/parley/internal/prompt"
	"github.com/parley-ai/parley/internal/provider"
	"github.com/parley-ai/parley/internal/rag"
	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/internal/routing"
	"github.com/parley-ai/parley/internal/server"
	"github.com/parley-ai/parley/internal/sessions"
	"github.com/parley-ai/parley/pkg/models"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	metrics := observability.NewMetrics()

	gw, err := buildGateway(cfg)
	if err != nil {
		return err
	}

	backing, err := buildHistory(cfg)
	if err != nil {
		return err
	}
	defer backing.Close()

	// Appends flow through the retriever index so rag turns can search
	// recorded conversations.
	retriever := rag.NewKeywordRetriever()
	hist := rag.NewIndexingStore(backing, retriever)

	events := registry.New(logger)
	events.SetActiveGauge(metrics.ActiveSessions)
	events.SetTap(registry.NewCallbackSink(func(_ context.Context, e models.Event) {
		logger.Debug("event", "type", e.Type, "session_id", e.SessionID)
	}))
	gate := approval.New(events, cfg.Tools.ApprovalTimeout, logger)
	table := routing.NewTable(logger)
	prompts := prompt.New(events, cfg.Tools.ApprovalTimeout, logger)
	providers := provider.NewManager(logger)
	defer providers.Close()
	for _, pc := range cfg.Providers {
		// validate() only admits the loopback type today.
		providers.Add(builtinLoopback(pc.ID, table))
	}
	tracker := sessions.NewTracker()
	store := sessions.NewMemoryStore()

	pipeline := agent.NewPipeline(providers, gate, table, prompts, gw, events, metrics, logger, agent.PipelineConfig{
		InvokeTimeout:      cfg.Tools.InvokeTimeout,
		ForceApproval:      cfg.Tools.ForceApproval,
		AllowEdits:         cfg.Tools.AllowEdits,
		ForceApprovalTools: cfg.Tools.ForceApprovalTools,
		AdminTools:         cfg.Tools.AdminTools,
	})
	loop := agent.NewLoop(pipeline, gw, providers, events, metrics, logger, agent.LoopConfig{
		MaxSteps:  cfg.Agent.MaxSteps,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	dispatcher := dispatch.New(gw, providers, pipeline, loop, retriever, hist, tracker, events, metrics, logger, dispatch.Config{
		Model:         cfg.LLM.Model,
		MaxTokens:     cfg.LLM.MaxTokens,
		MaxToolRounds: cfg.Tools.MaxRounds,
		HistoryWindow: cfg.History.Window,
	})

	core := &server.Core{
		Dispatcher: dispatcher,
		Gate:       gate,
		Prompts:    prompts,
		Store:      store,
		Tracker:    tracker,
		Events:     events,
		Verifier:   buildVerifier(cfg),
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(core, addr, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("shutting down", "reason", "context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildGateway(cfg *config.Config) (gateway.Gateway, error) {
	switch cfg.LLM.Backend {
	case "anthropic":
		return gateway.NewAnthropic(gateway.AnthropicConfig{
			APIKey:       cfg.LLM.APIKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.Model,
			MaxTokens:    cfg.LLM.MaxTokens,
		})
	case "openai":
		return gateway.NewOpenAI(gateway.OpenAIConfig{
			APIKey:       cfg.LLM.APIKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.Model,
			MaxTokens:    cfg.LLM.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.LLM.Backend)
	}
}

func buildHistory(cfg *config.Config) (history.Store, error) {
	switch cfg.History.Backend {
	case "sqlite":
		return history.NewSQLiteStore(cfg.History.Path)
	default:
		return history.NewMemoryStore(), nil
	}
}

// builtinLoopback wires an in-process provider for local runs: an echo
// capability and a capability that asks the user mid-call.
func builtinLoopback(id string, table *routing.Table) *provider.LoopbackConnection {
	conn := provider.NewLoopback(id, table.Dispatch)

	conn.Register(provider.Capability{
		Name:        "echo",
		Description: "Echo the supplied text back to the caller.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"},"identity":{"type":"string"}},"required":["text"]}`),
	}, func(ctx context.Context, args map[string]any, oob provider.OutOfBand) (*provider.Result, error) {
		text, _ := args["text"].(string)
		return &provider.Result{Content: text}, nil
	})

	conn.Register(provider.Capability{
		Name:             "ask",
		Description:      "Ask the session owner a question and return the answer.",
		RequiresApproval: true,
		InputSchema:      json.RawMessage(`{"type":"object","properties":{"question":{"type":"string"}},"required":["question"]}`),
	}, func(ctx context.Context, args map[string]any, oob provider.OutOfBand) (*provider.Result, error) {
		question, _ := args["question"].(string)
		answer, ok := oob.AskUser(ctx, question)
		if !ok {
			return &provider.Result{Content: "the user did not answer", IsError: true}, nil
		}
		return &provider.Result{Content: answer}, nil
	})

	return conn
}

func buildVerifier(cfg *config.Config) auth.Verifier {
	if cfg.Auth.JWTSecret != "" {
		return auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	}
	tokens := map[string]models.Identity{}
	for token, subject := range cfg.Auth.StaticTokens {
		tokens[token] = models.Identity{Subject: subject}
	}
	return auth.NewStaticVerifier(tokens)
}
