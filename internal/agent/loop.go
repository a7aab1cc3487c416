package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	agentctx "github.com/haasonsaas/relay/internal/agent/context"
	"github.com/haasonsaas/relay/internal/approval"
	"github.com/haasonsaas/relay/pkg/models"
)

// State is the run loop's lifecycle state.
//
//	Idle ──▶ Running ──▶ Done
//	              │
//	              └─────▶ Error
//
// Idle is entry. The first Step call fires the begin hook and moves to
// Running. Each Step performs one model round; a round without tool calls
// ends the run in Done. Error is terminal; the loop never re-enters Running.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

// finalStepInstruction is injected on the last permitted step, with tools
// detached from the request, to force termination on that round.
const finalStepInstruction = "Do not call any more tools. Summarize what you have done so far and answer the user directly."

// ApprovalNotifier delivers a confirmation code to the user before the run
// suspends waiting for their reply.
type ApprovalNotifier func(ctx context.Context, conversationID, code string) error

// Hooks are optional lifecycle callbacks.
type Hooks struct {
	// OnBegin fires when the run leaves Idle.
	OnBegin func(conversationID string)
	// OnComplete fires when the run reaches Done.
	OnComplete func(conversationID string, usage models.TokenUsage)
}

// LoopConfig configures a run loop.
type LoopConfig struct {
	// Model overrides the provider's default model when set.
	Model string

	// System is the system prompt for completion requests.
	System string

	// MaxTokens limits response length per model round.
	// Default: 4096
	MaxTokens int

	// Budget is the context window budget applied before each round.
	Budget agentctx.Budget

	// Manager compresses history against Budget. Nil disables management.
	Manager *agentctx.Manager

	// Waiter gates sensitive tool calls on human approval. Nil means
	// flagged tools are refused.
	Waiter *approval.Waiter

	// Notify sends the approval confirmation code to the user.
	Notify ApprovalNotifier

	// Hooks are optional lifecycle callbacks.
	Hooks Hooks

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{MaxTokens: 4096}
}

func sanitizeLoopConfig(config *LoopConfig) *LoopConfig {
	if config == nil {
		return DefaultLoopConfig()
	}
	cfg := *config
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &cfg
}

// Loop is a single agent run: one conversation turn driven through one or
// more model rounds. A Loop is built per run and driven by a Runner; it is
// not safe for concurrent Step calls, which the per-conversation session
// lock already prevents.
type Loop struct {
	provider Provider
	registry *Registry
	config   *LoopConfig

	conversationID string
	state          State
	step           int
	messages       []models.Message
	usage          models.TokenUsage
}

// NewLoop creates a run loop over the given history. The history should
// already include the inbound user message; it is cloned so the caller's
// slice is never mutated.
func NewLoop(provider Provider, registry *Registry, conversationID string, history []models.Message, config *LoopConfig) *Loop {
	if registry == nil {
		registry = NewRegistry()
	}
	msgs := make([]models.Message, len(history))
	for i := range history {
		msgs[i] = history[i].Clone()
	}
	return &Loop{
		provider:       provider,
		registry:       registry,
		config:         sanitizeLoopConfig(config),
		conversationID: conversationID,
		state:          StateIdle,
		messages:       msgs,
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State { return l.state }

// StepCount returns the number of completed model rounds.
func (l *Loop) StepCount() int { return l.step }

// Usage returns the token usage accumulated so far.
func (l *Loop) Usage() models.TokenUsage { return l.usage }

// Messages returns the run's message history including everything appended
// during the run. Callers persist this after the run finishes.
func (l *Loop) Messages() []models.Message {
	out := make([]models.Message, len(l.messages))
	for i := range l.messages {
		out[i] = l.messages[i].Clone()
	}
	return out
}

// Step performs one model round: send the managed history plus tool
// descriptors, stream the response, and execute any returned tool calls in
// order. It returns done=true when the run reached a terminal state.
//
// A non-nil error is a provider failure before the round took effect; the
// loop stays in Running and the caller may retry the step. Panics inside
// the round are caught here and end the run in Error.
func (l *Loop) Step(ctx context.Context, finalStep bool, emit func(Event)) (done bool, err error) {
	switch l.state {
	case StateDone, StateError:
		return true, ErrRunFinished
	case StateIdle:
		if l.config.Hooks.OnBegin != nil {
			l.config.Hooks.OnBegin(l.conversationID)
		}
		l.state = StateRunning
	}

	l.step++
	defer func() {
		if r := recover(); r != nil {
			l.config.Logger.Error("panic inside agent step",
				"conversation_id", l.conversationID,
				"step", l.step,
				"panic", r,
				"stack", string(debug.Stack()))
			l.fail(fmt.Errorf("panic: %v", r), emit)
			done, err = true, nil
		}
	}()

	chunks, err := l.provider.Complete(ctx, l.buildRequest(ctx, finalStep))
	if err != nil {
		l.step--
		return false, err
	}

	var text strings.Builder
	var calls []models.ToolCall
	for chunk := range chunks {
		if chunk.Error != nil {
			l.step--
			return false, chunk.Error
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			emit(Event{Kind: EventDelta, Text: chunk.Text})
		}
		if chunk.ToolCall != nil {
			calls = append(calls, *chunk.ToolCall)
		}
		if chunk.Done {
			l.usage.Add(models.TokenUsage{
				InputTokens:  chunk.InputTokens,
				OutputTokens: chunk.OutputTokens,
			})
		}
	}

	if len(calls) == 0 || finalStep {
		if len(calls) > 0 {
			// Tools were stripped from the request; a model that calls
			// them anyway does not get another round.
			l.config.Logger.Warn("model returned tool calls on final step, forcing termination",
				"conversation_id", l.conversationID,
				"step", l.step,
				"tool_calls", len(calls))
		}
		final := text.String()
		l.messages = append(l.messages, models.Message{
			Role:      models.RoleAssistant,
			Content:   final,
			CreatedAt: time.Now(),
		})
		l.state = StateDone
		if l.config.Hooks.OnComplete != nil {
			l.config.Hooks.OnComplete(l.conversationID, l.usage)
		}
		emit(Event{Kind: EventFinal, Text: final, Usage: l.usage})
		return true, nil
	}

	l.messages = append(l.messages, models.Message{
		Role:      models.RoleAssistant,
		Content:   text.String(),
		ToolCalls: calls,
		CreatedAt: time.Now(),
	})
	for i := range calls {
		call := calls[i]
		emit(Event{Kind: EventToolCall, ToolCall: &call})
		result, isErr := l.executeCall(ctx, call)
		l.messages = append(l.messages, models.Message{
			Role:       models.RoleTool,
			Content:    result,
			ToolCallID: call.ID,
			CreatedAt:  time.Now(),
		})
		emit(Event{Kind: EventToolResult, ToolCall: &call, ToolResult: result, ToolIsError: isErr})
	}
	return false, nil
}

// Fail ends the run in Error with a user-facing reply. The Runner calls
// this after provider retries are exhausted.
func (l *Loop) Fail(cause error, emit func(Event)) {
	if l.state == StateDone || l.state == StateError {
		return
	}
	l.fail(cause, emit)
}

func (l *Loop) fail(cause error, emit func(Event)) {
	l.config.Logger.Error("agent run failed",
		"conversation_id", l.conversationID,
		"step", l.step,
		"error", cause)
	l.state = StateError
	l.messages = append(l.messages, models.Message{
		Role:      models.RoleAssistant,
		Content:   errorReply,
		CreatedAt: time.Now(),
	})
	emit(Event{
		Kind: EventError,
		Text: errorReply,
		Err:  &LoopError{State: StateRunning, Step: l.step, Cause: cause},
	})
}

func (l *Loop) buildRequest(ctx context.Context, finalStep bool) *CompletionRequest {
	if l.config.Manager != nil {
		// The managed history becomes canonical so later rounds and the
		// persisted transcript agree with what the model saw.
		l.messages = l.config.Manager.Manage(ctx, l.messages, l.config.Budget)
	}

	req := &CompletionRequest{
		Model:     l.config.Model,
		System:    l.config.System,
		Messages:  l.messages,
		MaxTokens: l.config.MaxTokens,
	}
	if finalStep {
		msgs := make([]models.Message, 0, len(l.messages)+1)
		msgs = append(msgs, l.messages...)
		msgs = append(msgs, models.Message{Role: models.RoleSystem, Content: finalStepInstruction})
		req.Messages = msgs
	} else {
		req.Tools = l.registry.Descriptors()
	}
	return req
}

func (l *Loop) executeCall(ctx context.Context, call models.ToolCall) (string, bool) {
	if l.registry.RequiresApproval(call.Name) {
		if outcome := l.awaitApproval(ctx, call); outcome != approval.OutcomeApproved {
			return outcome.ToolResult(), true
		}
	}
	return l.registry.Execute(ctx, call)
}

func (l *Loop) awaitApproval(ctx context.Context, call models.ToolCall) approval.Outcome {
	if l.config.Waiter == nil || l.config.Notify == nil {
		l.config.Logger.Warn("tool requires approval but no waiter is configured",
			"conversation_id", l.conversationID,
			"tool", call.Name)
		return approval.OutcomeError
	}

	ticket, err := l.config.Waiter.NewTicket(l.conversationID, call.Name, call.Arguments)
	if err != nil {
		l.config.Logger.Error("failed to create approval ticket",
			"conversation_id", l.conversationID,
			"tool", call.Name,
			"error", err)
		return approval.OutcomeError
	}
	if err := l.config.Notify(ctx, l.conversationID, ticket.Code); err != nil {
		l.config.Waiter.Cancel(ticket)
		l.config.Logger.Error("failed to deliver confirmation code",
			"conversation_id", l.conversationID,
			"tool", call.Name,
			"error", err)
		return approval.OutcomeError
	}

	outcome := l.config.Waiter.Await(ctx, ticket)
	l.config.Logger.Info("approval resolved",
		"conversation_id", l.conversationID,
		"tool", call.Name,
		"outcome", string(outcome))
	return outcome
}
