// Package main is the CLI entry point for the Parley orchestration server.
//
// Start the server:
//
//	parley serve --config parley.yaml
//
// Issue a client token:
//
//	parley token --subject alice
//
// Configuration values support environment expansion; API keys are
// typically supplied via ANTHROPIC_API_KEY or OPENAI_API_KEY references
// in the config file.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/auth"
	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/pkg/models"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:          "parley",
		Short:        "Tool execution orchestration server for LLM conversations",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newTokenCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("parley %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		configPath string
		subject    string
		name       string
		email      string
		expiry     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed client token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			if expiry == 0 {
				expiry = cfg.Auth.TokenExpiry
			}

			svc := auth.NewJWTService(cfg.Auth.JWTSecret, expiry)
			token, err := svc.Generate(models.Identity{Subject: subject, Name: name, Email: email})
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&subject, "subject", "", "identity subject (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "token lifetime (default from config)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("PARLEY_CONFIG")
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
