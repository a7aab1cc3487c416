// Package main provides the relay CLI.
//
// Relay is a chat-bot runtime core: it keeps conversation context inside a
// token budget, drives a multi-step LLM/tool agent loop with optional human
// approval of sensitive tool calls, and paces replies through an ordered
// per-conversation delivery queue.
//
// Start a console session:
//
//	relay serve --config relay.yaml
//
// API keys are read from the config file, which may reference environment
// variables such as ${OPENAI_API_KEY} or ${ANTHROPIC_API_KEY}.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := &cobra.Command{
		Use:   "relay",
		Short: "Conversation runtime for LLM agents",
		Long: `Relay drives multi-step LLM agent runs over persisted conversations,
with context-window management, human approval of sensitive tools, and
paced ordered delivery of replies.`,
		SilenceUsage: true,
	}
	root.Version = fmt.Sprintf("%s (%s)", version, commit)

	root.AddCommand(newServeCommand())
	root.AddCommand(newConfigCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
