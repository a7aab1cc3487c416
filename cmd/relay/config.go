package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/relay/internal/config"
)

const starterConfig = `# relay configuration
provider:
  name: openai
  api_key: ${OPENAI_API_KEY}
  model: gpt-4o

agent:
  system: "You are a helpful assistant."
  max_steps: 30
  require_approval: []

context:
  max_tokens: 100000
  strategy: truncate

approval:
  enabled: true
  timeout: 2m

delivery:
  pacing:
    method: fixed
    min_delay: 500ms
    max_delay: 1500ms

storage:
  sqlite_path: relay.db

logging:
  level: info
  format: text
`

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the relay configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := "relay.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	checkCmd := &cobra.Command{
		Use:   "check <path>",
		Short: "Parse a configuration file and report the effective settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("provider: %s (model %q)\n", cfg.Provider.Name, cfg.Provider.Model)
			fmt.Printf("context:  %d tokens, strategy %s\n", cfg.Context.MaxTokens, cfg.Context.Strategy)
			fmt.Printf("agent:    %d steps max\n", cfg.Agent.MaxSteps)
			fmt.Printf("approval: enabled=%v timeout=%s\n", cfg.Approval.Enabled, cfg.Approval.Timeout)
			fmt.Printf("storage:  %s\n", storageLabel(cfg))
			return nil
		},
	}

	cmd.AddCommand(initCmd, checkCmd)
	return cmd
}

func storageLabel(cfg *config.Config) string {
	if cfg.Storage.SQLitePath == "" {
		return "in-memory"
	}
	return "sqlite " + cfg.Storage.SQLitePath
}
