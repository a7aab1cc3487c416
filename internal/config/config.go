// Package config loads the runtime configuration from a YAML file.
// Environment variables in the file are expanded before parsing, so secrets
// can be referenced as ${OPENAI_API_KEY} instead of inlined.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/relay/internal/delivery"
	"github.com/haasonsaas/relay/internal/observability"
)

// Config is the full runtime configuration.
type Config struct {
	Provider ProviderConfig          `yaml:"provider"`
	Agent    AgentConfig             `yaml:"agent"`
	Context  ContextConfig           `yaml:"context"`
	Approval ApprovalConfig          `yaml:"approval"`
	Delivery DeliveryConfig          `yaml:"delivery"`
	Storage  StorageConfig           `yaml:"storage"`
	Metrics  MetricsConfig           `yaml:"metrics"`
	Logging  observability.LogConfig `yaml:"logging"`
}

// ProviderConfig selects and configures the model backend.
type ProviderConfig struct {
	// Name is "openai" or "anthropic".
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// AgentConfig configures the run loop and driver.
type AgentConfig struct {
	System      string `yaml:"system"`
	MaxTokens   int    `yaml:"max_tokens"`
	MaxSteps    int    `yaml:"max_steps"`
	MaxAttempts int    `yaml:"max_attempts"`
	Buffered    bool   `yaml:"buffered"`

	// RequireApproval lists tool names gated on human confirmation.
	RequireApproval []string `yaml:"require_approval"`
}

// ContextConfig configures the context window manager.
type ContextConfig struct {
	// MaxTokens is the context budget; zero disables management.
	MaxTokens int `yaml:"max_tokens"`

	// Strategy is "identity", "truncate", or "summarize".
	Strategy string `yaml:"strategy"`

	// TurnsToDiscard is how many turns truncation drops per pass.
	TurnsToDiscard int `yaml:"turns_to_discard"`

	// KeepRecent is the number of recent messages kept verbatim.
	KeepRecent int `yaml:"keep_recent"`
}

// ApprovalConfig configures the human approval gate.
type ApprovalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Strategy      string        `yaml:"strategy"`
	CodeLength    int           `yaml:"code_length"`
	Timeout       time.Duration `yaml:"timeout"`
	CaseSensitive bool          `yaml:"case_sensitive"`
}

// DeliveryConfig configures the outbound queue.
type DeliveryConfig struct {
	Pacing       delivery.Pacing `yaml:"pacing"`
	SegmentLimit int             `yaml:"segment_limit"`
	IdleWindow   time.Duration   `yaml:"idle_window"`
	Depth        int             `yaml:"depth"`
}

// StorageConfig configures conversation persistence.
type StorageConfig struct {
	// SQLitePath is the database file; empty means in-memory only.
	SQLitePath string `yaml:"sqlite_path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads, expands, and parses the config file, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes config bytes. Environment variables are expanded first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "openai"
	}
	if cfg.Agent.MaxTokens <= 0 {
		cfg.Agent.MaxTokens = 4096
	}
	if cfg.Agent.MaxSteps <= 0 {
		cfg.Agent.MaxSteps = 30
	}
	if cfg.Agent.MaxAttempts <= 0 {
		cfg.Agent.MaxAttempts = 3
	}
	if cfg.Context.Strategy == "" {
		cfg.Context.Strategy = "truncate"
	}
	if cfg.Context.TurnsToDiscard <= 0 {
		cfg.Context.TurnsToDiscard = 1
	}
	if cfg.Context.KeepRecent <= 0 {
		cfg.Context.KeepRecent = 4
	}
	if cfg.Approval.Strategy == "" {
		cfg.Approval.Strategy = "confirmation_code"
	}
	if cfg.Approval.CodeLength <= 0 {
		cfg.Approval.CodeLength = 6
	}
	if cfg.Approval.Timeout <= 0 {
		cfg.Approval.Timeout = 2 * time.Minute
	}
	if cfg.Delivery.Pacing.Method == "" {
		cfg.Delivery.Pacing = delivery.DefaultPacing()
	}
	if cfg.Delivery.SegmentLimit <= 0 {
		cfg.Delivery.SegmentLimit = delivery.DefaultSegmentLimit
	}
	if cfg.Delivery.IdleWindow <= 0 {
		cfg.Delivery.IdleWindow = 30 * time.Second
	}
	if cfg.Delivery.Depth <= 0 {
		cfg.Delivery.Depth = 128
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
