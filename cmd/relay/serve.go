package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/relay/internal/agent"
	agentctx "github.com/haasonsaas/relay/internal/agent/context"
	"github.com/haasonsaas/relay/internal/agent/providers"
	"github.com/haasonsaas/relay/internal/approval"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/delivery"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/runtime"
	"github.com/haasonsaas/relay/internal/sessions"
	"github.com/haasonsaas/relay/internal/tools"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an interactive console session against the configured provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default relay.yaml if present)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat("relay.yaml"); err == nil {
			path = "relay.yaml"
		}
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	logger.Info("provider ready", "name", provider.Name(), "model", cfg.Provider.Model)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
		go serveMetrics(cfg.Metrics.Addr, registry, logger)
	} else {
		metrics = observability.NewMetrics(nil)
	}

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := agent.NewRegistry()
	if err := registry.Register(tools.CurrentTime{}); err != nil {
		return fmt.Errorf("register builtin tools: %w", err)
	}
	registry.RequireApproval(cfg.Agent.RequireApproval...)

	var waiter *approval.Waiter
	if cfg.Approval.Enabled {
		waiter = approval.NewWaiter(approval.Options{
			Strategy:      cfg.Approval.Strategy,
			CodeLength:    cfg.Approval.CodeLength,
			Timeout:       cfg.Approval.Timeout,
			CaseSensitive: cfg.Approval.CaseSensitive,
		}, logger)
	}

	kv := sessions.NewScopedStore()
	queue := delivery.New(consoleSender(), delivery.Options{
		Pacing:       cfg.Delivery.Pacing,
		SegmentLimit: cfg.Delivery.SegmentLimit,
		IdleWindow:   cfg.Delivery.IdleWindow,
		Depth:        cfg.Delivery.Depth,
		Logger:       logger,
		Metrics:      metrics,
		OnRetire:     kv.Clear,
	})

	engine, err := runtime.NewEngine(runtime.Options{
		Provider: provider,
		Registry: registry,
		Store:    store,
		Waiter:   waiter,
		Queue:    queue,
		KV:       kv,
		LoopConfig: &agent.LoopConfig{
			Model:     cfg.Provider.Model,
			System:    cfg.Agent.System,
			MaxTokens: cfg.Agent.MaxTokens,
			Budget: agentctx.Budget{
				MaxTokens:      cfg.Context.MaxTokens,
				TurnsToDiscard: cfg.Context.TurnsToDiscard,
				KeepRecent:     cfg.Context.KeepRecent,
			},
			Manager: buildManager(cfg, provider, logger),
		},
		RunnerConfig: &agent.RunnerConfig{
			MaxSteps:    cfg.Agent.MaxSteps,
			MaxAttempts: cfg.Agent.MaxAttempts,
			Buffered:    cfg.Agent.Buffered,
			Logger:      logger,
			Metrics:     metrics,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	engine.StartMaintenance()
	defer engine.Close()

	return consoleLoop(ctx, engine, logger)
}

// consoleLoop reads lines from stdin and feeds them to the engine as inbound
// messages for a single console conversation.
func consoleLoop(ctx context.Context, engine *runtime.Engine, logger *slog.Logger) error {
	conversationID := "console"
	fmt.Println("relay console. Type a message, Ctrl-D or Ctrl-C to exit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := engine.HandleInbound(ctx, runtime.Inbound{
				ConversationID: conversationID,
				Text:           text,
			}); err != nil {
				logger.Error("inbound handling failed", "error", err)
			}
		}
	}
}

func consoleSender() delivery.Sender {
	return delivery.SenderFunc(func(_ context.Context, _, content string) error {
		_, err := fmt.Fprintln(os.Stdout, content)
		return err
	})
}

func buildProvider(cfg *config.Config) (agent.Provider, error) {
	switch cfg.Provider.Name {
	case "openai":
		p, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       cfg.Provider.APIKey,
			BaseURL:      cfg.Provider.BaseURL,
			DefaultModel: cfg.Provider.Model,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "anthropic":
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.Provider.APIKey,
			BaseURL:      cfg.Provider.BaseURL,
			DefaultModel: cfg.Provider.Model,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}

func buildManager(cfg *config.Config, provider agent.Provider, logger *slog.Logger) *agentctx.Manager {
	if cfg.Context.MaxTokens <= 0 {
		return nil
	}
	var compressor agentctx.Compressor
	switch cfg.Context.Strategy {
	case "identity":
		compressor = agentctx.Identity{}
	case "summarize":
		compressor = agentctx.NewSummarizer(provider)
	default:
		compressor = agentctx.TurnTruncation{}
	}
	return agentctx.NewManager(compressor, logger)
}

func buildStore(cfg *config.Config) (sessions.Store, func(), error) {
	if cfg.Storage.SQLitePath == "" {
		return sessions.NewMemoryStore(), func() {}, nil
	}
	store, err := sessions.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics endpoint failed", "error", err)
	}
}
