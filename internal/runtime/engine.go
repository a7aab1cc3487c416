// Package runtime ties the pieces together: it serializes inbound messages
// per conversation, diverts approval replies to the waiter, drives the agent
// loop over persisted history, and hands replies to the delivery queue.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/relay/internal/agent"
	agentctx "github.com/haasonsaas/relay/internal/agent/context"
	"github.com/haasonsaas/relay/internal/approval"
	"github.com/haasonsaas/relay/internal/backoff"
	"github.com/haasonsaas/relay/internal/delivery"
	"github.com/haasonsaas/relay/internal/sessions"
	"github.com/haasonsaas/relay/pkg/models"
)

// Inbound is one message arriving from a platform adapter.
type Inbound struct {
	ConversationID string
	Channel        models.ChannelType
	Text           string
}

// Options wires an Engine. Provider, Store, and Queue are required; the rest
// default to working zero-dependency components.
type Options struct {
	Provider agent.Provider
	Registry *agent.Registry
	Store    sessions.Store
	Locker   *sessions.Locker
	Waiter   *approval.Waiter
	Queue    *delivery.Queue

	// KV holds conversation-scoped runtime state, such as the channel a
	// conversation was last seen on. Defaults to an in-memory scoped store.
	KV sessions.KV

	// LoopConfig is the per-run template. The engine fills in the approval
	// notifier on each run.
	LoopConfig *agent.LoopConfig

	// RunnerConfig controls the step ceiling and retry policy.
	RunnerConfig *agent.RunnerConfig

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Engine runs conversations end to end.
type Engine struct {
	provider agent.Provider
	registry *agent.Registry
	store    sessions.Store
	locker   *sessions.Locker
	waiter   *approval.Waiter
	queue    *delivery.Queue
	kv       sessions.KV
	runner   *agent.Runner
	loopCfg  *agent.LoopConfig
	saves    backoff.Policy
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewEngine creates an engine. It does not start background maintenance;
// call StartMaintenance for that.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("runtime: %w", agent.ErrNoProvider)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("runtime: store is required")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("runtime: delivery queue is required")
	}
	if opts.Registry == nil {
		opts.Registry = agent.NewRegistry()
	}
	if opts.Locker == nil {
		opts.Locker = sessions.NewLocker()
	}
	if opts.KV == nil {
		opts.KV = sessions.NewScopedStore()
	}
	if opts.LoopConfig == nil {
		opts.LoopConfig = agent.DefaultLoopConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		provider: opts.Provider,
		registry: opts.Registry,
		store:    opts.Store,
		locker:   opts.Locker,
		waiter:   opts.Waiter,
		queue:    opts.Queue,
		kv:       opts.KV,
		runner:   agent.NewRunner(opts.RunnerConfig),
		loopCfg:  opts.LoopConfig,
		saves:    backoff.DefaultPolicy(),
		logger:   opts.Logger,
	}, nil
}

// HandleInbound processes one inbound message to completion: the agent run
// finishes and the reply is enqueued before it returns. Callers typically
// invoke it from a per-message goroutine; the session lock serializes runs
// for the same conversation.
func (e *Engine) HandleInbound(ctx context.Context, msg Inbound) error {
	// A conversation waiting on an approval code consumes the next inbound
	// message as the approval reply instead of starting a new run.
	if e.waiter != nil && e.waiter.Offer(msg.ConversationID, msg.Text) {
		e.logger.Debug("inbound message consumed as approval reply",
			"conversation_id", msg.ConversationID)
		return nil
	}

	channel := e.rememberChannel(msg)

	release, err := e.locker.Acquire(ctx, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	defer release()

	history, err := e.store.LoadHistory(ctx, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	history = agentctx.RepairToolPairing(history)
	history = append(history, models.Message{
		Role:      models.RoleUser,
		Content:   msg.Text,
		CreatedAt: time.Now(),
	})

	runID := uuid.NewString()
	logger := e.logger.With("conversation_id", msg.ConversationID, "run_id", runID)

	cfg := *e.loopCfg
	cfg.Logger = logger
	cfg.Waiter = e.waiter
	cfg.Notify = e.notifier(channel)

	loop := agent.NewLoop(e.provider, e.registry, msg.ConversationID, history, &cfg)
	for event := range e.runner.Run(ctx, loop) {
		switch event.Kind {
		case agent.EventFinal, agent.EventError:
			if event.Text == "" {
				continue
			}
			if err := e.enqueueReply(msg.ConversationID, channel, event.Text); err != nil {
				logger.Error("failed to enqueue reply", "error", err)
			}
		}
	}

	// History is the source of truth for the next turn; retry transient
	// write failures before giving up.
	_, err = backoff.Retry(ctx, e.saves, 3, func(int) (struct{}, error) {
		return struct{}{}, e.store.SaveHistory(ctx, msg.ConversationID, loop.Messages(), loop.Usage())
	})
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	logger.Info("run finished",
		"state", loop.State(), "steps", loop.StepCount(),
		"input_tokens", loop.Usage().InputTokens, "output_tokens", loop.Usage().OutputTokens)
	return nil
}

// notifier delivers approval confirmation codes through the normal delivery
// queue with no pacing delay so the prompt reaches the user promptly.
func (e *Engine) notifier(channel models.ChannelType) agent.ApprovalNotifier {
	return func(_ context.Context, conversationID, code string) error {
		prompt := fmt.Sprintf("This action needs your approval. Reply %s to approve, or anything else to reject.", code)
		for _, seg := range delivery.Segment(prompt, delivery.LimitFor(channel)) {
			if err := e.queue.EnqueueItem(conversationID, delivery.Item{Content: seg, Delay: -1}); err != nil {
				return err
			}
		}
		return nil
	}
}

func (e *Engine) enqueueReply(conversationID string, channel models.ChannelType, text string) error {
	limit := delivery.LimitFor(channel)
	for _, seg := range delivery.Segment(text, limit) {
		if err := e.queue.Enqueue(conversationID, seg); err != nil {
			return err
		}
	}
	return nil
}

// rememberChannel records the channel a conversation arrives on and falls
// back to the remembered one when an adapter omits it.
func (e *Engine) rememberChannel(msg Inbound) models.ChannelType {
	if msg.Channel != "" {
		e.kv.Set(msg.ConversationID, "channel", msg.Channel)
		return msg.Channel
	}
	if v, ok := e.kv.Get(msg.ConversationID, "channel"); ok {
		if channel, ok := v.(models.ChannelType); ok {
			return channel
		}
	}
	return ""
}

// StartMaintenance schedules expired approval-ticket pruning. The delivery
// queue runs its own idle sweep internally.
func (e *Engine) StartMaintenance() {
	if e.cron != nil {
		return
	}
	e.cron = cron.New()
	if e.waiter != nil {
		e.cron.AddFunc("@every 1m", func() {
			if n := e.waiter.PruneExpired(time.Now()); n > 0 {
				e.logger.Info("pruned expired approval tickets", "count", n)
			}
		})
	}
	e.cron.Start()
}

// Close stops maintenance and drains the delivery queue.
func (e *Engine) Close() {
	if e.cron != nil {
		e.cron.Stop()
	}
	e.queue.Close()
}
