package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("RELAY_TEST_KEY", "sk-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	data := `
provider:
  name: anthropic
  api_key: ${RELAY_TEST_KEY}
  model: claude-sonnet-4-20250514
agent:
  max_steps: 12
context:
  max_tokens: 8000
  strategy: summarize
approval:
  enabled: true
  timeout: 45s
storage:
  sqlite_path: /tmp/relay.db
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider.APIKey != "sk-secret" {
		t.Errorf("api_key = %q, want env expansion", cfg.Provider.APIKey)
	}
	if cfg.Provider.Name != "anthropic" || cfg.Provider.Model != "claude-sonnet-4-20250514" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Agent.MaxSteps != 12 {
		t.Errorf("max_steps = %d", cfg.Agent.MaxSteps)
	}
	if cfg.Context.MaxTokens != 8000 || cfg.Context.Strategy != "summarize" {
		t.Errorf("context = %+v", cfg.Context)
	}
	if !cfg.Approval.Enabled || cfg.Approval.Timeout != 45*time.Second {
		t.Errorf("approval = %+v", cfg.Approval)
	}
	if cfg.Storage.SQLitePath != "/tmp/relay.db" {
		t.Errorf("sqlite_path = %q", cfg.Storage.SQLitePath)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("provider:\n  api_key: test\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Provider.Name != "openai" {
		t.Errorf("provider name default = %q", cfg.Provider.Name)
	}
	if cfg.Agent.MaxSteps != 30 || cfg.Agent.MaxTokens != 4096 || cfg.Agent.MaxAttempts != 3 {
		t.Errorf("agent defaults = %+v", cfg.Agent)
	}
	if cfg.Approval.Strategy != "confirmation_code" || cfg.Approval.CodeLength != 6 {
		t.Errorf("approval defaults = %+v", cfg.Approval)
	}
	if cfg.Approval.Timeout != 2*time.Minute {
		t.Errorf("approval timeout default = %v", cfg.Approval.Timeout)
	}
	if cfg.Delivery.SegmentLimit != 4000 || cfg.Delivery.Depth != 128 {
		t.Errorf("delivery defaults = %+v", cfg.Delivery)
	}
	if cfg.Delivery.Pacing.Method == "" {
		t.Error("pacing method default missing")
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("metrics addr default = %q", cfg.Metrics.Addr)
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("provider: [unclosed")); err == nil {
		t.Fatal("want error for malformed yaml")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("want error for missing file")
	}
}
