package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  backend: openai
  api_key: sk-test
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Backend != "openai" {
		t.Fatalf("backend = %q", cfg.LLM.Backend)
	}
	if cfg.Server.Port != 8757 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Tools.ApprovalTimeout != 300*time.Second {
		t.Fatalf("approval timeout = %v", cfg.Tools.ApprovalTimeout)
	}
	if cfg.Agent.MaxSteps != 10 {
		t.Fatalf("max steps = %d", cfg.Agent.MaxSteps)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("PARLEY_TEST_KEY", "sk-from-env")
	path := writeConfig(t, `
llm:
  api_key: ${PARLEY_TEST_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-from-env" {
		t.Fatalf("api key = %q", cfg.LLM.APIKey)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
llm:
  backend: cohere
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadRequiresSQLitePath(t *testing.T) {
	path := writeConfig(t, `
history:
  backend: sqlite
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadProviders(t *testing.T) {
	path := writeConfig(t, `
providers:
  - id: local
    type: loopback
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].ID != "local" {
		t.Fatalf("providers = %+v", cfg.Providers)
	}
}

func TestLoadRejectsUnknownProviderType(t *testing.T) {
	path := writeConfig(t, `
providers:
  - id: remote
    type: grpc
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadToolPolicyLists(t *testing.T) {
	path := writeConfig(t, `
tools:
  force_approval_tools:
    - shell__run
  admin_tools:
    - delete_data
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Tools.ForceApprovalTools) != 1 || cfg.Tools.ForceApprovalTools[0] != "shell__run" {
		t.Fatalf("force approval tools = %v", cfg.Tools.ForceApprovalTools)
	}
	if len(cfg.Tools.AdminTools) != 1 || cfg.Tools.AdminTools[0] != "delete_data" {
		t.Fatalf("admin tools = %v", cfg.Tools.AdminTools)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.LLM.Backend != "anthropic" {
		t.Fatalf("backend = %q", cfg.LLM.Backend)
	}
	if cfg.History.Backend != "memory" {
		t.Fatalf("history backend = %q", cfg.History.Backend)
	}
}
