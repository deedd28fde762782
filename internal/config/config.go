// Package config loads server configuration from YAML with environment
// variable expansion and sane defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for Parley.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Auth      AuthConfig       `yaml:"auth"`
	LLM       LLMConfig        `yaml:"llm"`
	Tools     ToolsConfig      `yaml:"tools"`
	Agent     AgentConfig      `yaml:"agent"`
	History   HistoryConfig    `yaml:"history"`
	Providers []ProviderConfig `yaml:"providers"`
	Logging   LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
	// StaticTokens maps fixed tokens to identity subjects for local runs.
	StaticTokens map[string]string `yaml:"static_tokens"`
}

type LLMConfig struct {
	// Backend selects the gateway adapter: "anthropic" or "openai".
	Backend   string `yaml:"backend"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type ToolsConfig struct {
	// ApprovalTimeout bounds how long an approval request may wait.
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
	// InvokeTimeout bounds a single provider invocation.
	InvokeTimeout time.Duration `yaml:"invoke_timeout"`
	// ForceApproval gates every call regardless of capability policy.
	ForceApproval bool `yaml:"force_approval"`
	// AllowEdits lets approving users modify proposed arguments.
	AllowEdits bool `yaml:"allow_edits"`
	// ForceApprovalTools always gates the listed tools, by bare name or
	// qualified provider__name, even when the capability does not ask.
	ForceApprovalTools []string `yaml:"force_approval_tools"`
	// AdminTools require an administrator decision. Listed tools are
	// always gated and their arguments may not be edited.
	AdminTools []string `yaml:"admin_tools"`
	// MaxRounds caps tool rounds per turn in tools mode.
	MaxRounds int `yaml:"max_rounds"`
}

type AgentConfig struct {
	// MaxSteps caps reason-act-observe cycles per run.
	MaxSteps int `yaml:"max_steps"`
}

type HistoryConfig struct {
	// Backend selects the store: "memory" or "sqlite".
	Backend string `yaml:"backend"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
	// Window is how many recent messages feed the model.
	Window int `yaml:"window"`
}

type ProviderConfig struct {
	// ID keys the connection in the routing table and in tool names.
	ID string `yaml:"id"`
	// Type selects the connection transport. "loopback" runs the built-in
	// in-process capabilities.
	Type string `yaml:"type"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, expands, and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8757
	}
	if cfg.Auth.TokenExpiry == 0 {
		cfg.Auth.TokenExpiry = 24 * time.Hour
	}
	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = "anthropic"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.Tools.ApprovalTimeout == 0 {
		cfg.Tools.ApprovalTimeout = 300 * time.Second
	}
	if cfg.Tools.InvokeTimeout == 0 {
		cfg.Tools.InvokeTimeout = 120 * time.Second
	}
	if cfg.Tools.MaxRounds == 0 {
		cfg.Tools.MaxRounds = 8
	}
	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = 10
	}
	if cfg.History.Backend == "" {
		cfg.History.Backend = "memory"
	}
	if cfg.History.Window == 0 {
		cfg.History.Window = 50
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.LLM.Backend {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown llm backend %q", c.LLM.Backend)
	}
	switch c.History.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	if c.History.Backend == "sqlite" && c.History.Path == "" {
		return fmt.Errorf("history.path required for sqlite backend")
	}
	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider without an id")
		}
		if p.Type != "loopback" {
			return fmt.Errorf("unknown provider type %q for %s", p.Type, p.ID)
		}
	}
	return nil
}
