// Package approval implements the human-in-the-loop gate for sensitive tool
// calls. A run that hits a flagged tool generates a short confirmation code,
// sends it to the user, and suspends until the next inbound message for the
// conversation either matches the code or does not.
package approval

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"
)

// Outcome is the terminal result of an approval round-trip. Every wait ends
// in exactly one of these.
type Outcome string

const (
	// OutcomeApproved means the user replied with the confirmation code.
	OutcomeApproved Outcome = "approved"
	// OutcomeRejected means the user replied with anything else.
	OutcomeRejected Outcome = "rejected"
	// OutcomeTimeout means no reply arrived before the deadline.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeUnsupportedStrategy means the configured strategy is unknown.
	OutcomeUnsupportedStrategy Outcome = "unsupported_strategy"
	// OutcomeError means the wait was interrupted before a decision.
	OutcomeError Outcome = "error"
)

// StrategyConfirmationCode is the only wait strategy currently implemented.
const StrategyConfirmationCode = "confirmation_code"

const defaultCodeLength = 6

// ToolResult renders a non-approved outcome as the string fed back to the
// model as the tool's result. Approved outcomes execute the tool instead.
func (o Outcome) ToolResult() string {
	switch o {
	case OutcomeRejected:
		return "cancelled: rejected by user"
	case OutcomeTimeout:
		return "cancelled: timed out"
	case OutcomeUnsupportedStrategy:
		return "cancelled: approval strategy not supported"
	default:
		return "cancelled: approval failed"
	}
}

// Options configures the waiter.
type Options struct {
	// Strategy selects how approval is obtained. Only
	// StrategyConfirmationCode is supported.
	Strategy string
	// CodeLength is the number of digits in generated codes.
	CodeLength int
	// Timeout bounds how long a run waits for the user's reply.
	Timeout time.Duration
	// CaseSensitive controls code comparison. Off by default so codes
	// containing letters survive phone keyboards.
	CaseSensitive bool
}

// DefaultOptions returns the standard approval configuration.
func DefaultOptions() Options {
	return Options{
		Strategy:   StrategyConfirmationCode,
		CodeLength: defaultCodeLength,
		Timeout:    2 * time.Minute,
	}
}

func (o Options) sanitized() Options {
	if o.Strategy == "" {
		o.Strategy = StrategyConfirmationCode
	}
	if o.CodeLength <= 0 {
		o.CodeLength = defaultCodeLength
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
	return o
}

// Ticket tracks one pending confirmation request. Tickets live only while
// the request is pending; they are removed on any outcome or by pruning.
type Ticket struct {
	ConversationID string
	ToolName       string
	Arguments      json.RawMessage
	Code           string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

type pendingTicket struct {
	ticket *Ticket
	reply  chan string
}

// Waiter suspends agent runs until a matching follow-up message arrives for
// their conversation. At most one ticket is pending per conversation; runs
// for the same conversation are serialized upstream so this never contends.
//
// Thread Safety:
// Waiter is safe for concurrent use.
type Waiter struct {
	mu      sync.Mutex
	opts    Options
	pending map[string]*pendingTicket
	logger  *slog.Logger
}

// NewWaiter creates a waiter with the given options. A nil logger discards.
func NewWaiter(opts Options, logger *slog.Logger) *Waiter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Waiter{
		opts:    opts.sanitized(),
		pending: make(map[string]*pendingTicket),
		logger:  logger,
	}
}

// GenerateCode returns a random numeric confirmation code of the given
// length, read from crypto/rand.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = defaultCodeLength
	}
	digits := make([]byte, length)
	ten := big.NewInt(10)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate confirmation code: %w", err)
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits), nil
}

// NewTicket creates and registers a pending ticket for a conversation. The
// returned ticket's code should be sent to the user before calling Await.
// A second ticket for a conversation with one already pending is an error.
func (w *Waiter) NewTicket(conversationID, toolName string, arguments json.RawMessage) (*Ticket, error) {
	code, err := GenerateCode(w.opts.CodeLength)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	t := &Ticket{
		ConversationID: conversationID,
		ToolName:       toolName,
		Arguments:      arguments,
		Code:           code,
		CreatedAt:      now,
		ExpiresAt:      now.Add(w.opts.Timeout),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.pending[conversationID]; exists {
		return nil, fmt.Errorf("approval already pending for conversation %s", conversationID)
	}
	w.pending[conversationID] = &pendingTicket{
		ticket: t,
		reply:  make(chan string, 1),
	}
	return t, nil
}

// Pending reports whether a conversation has a ticket waiting for a reply.
// Inbound routing uses this to divert the next message into Offer instead of
// starting a new run.
func (w *Waiter) Pending(conversationID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.pending[conversationID]
	return ok
}

// Offer routes an inbound message to the conversation's pending ticket. It
// returns true when the message was consumed by a waiting run.
func (w *Waiter) Offer(conversationID, text string) bool {
	w.mu.Lock()
	p, ok := w.pending[conversationID]
	w.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case p.reply <- text:
		return true
	default:
		// A reply is already buffered; the waiter will pick it up.
		return false
	}
}

// Await suspends until the user's reply, the ticket's deadline, or context
// cancellation. The ticket is always removed from the registry before
// returning.
func (w *Waiter) Await(ctx context.Context, t *Ticket) Outcome {
	defer w.remove(t.ConversationID)

	if w.opts.Strategy != StrategyConfirmationCode {
		w.logger.Warn("unsupported approval strategy",
			"strategy", w.opts.Strategy,
			"conversation_id", t.ConversationID)
		return OutcomeUnsupportedStrategy
	}

	w.mu.Lock()
	p, ok := w.pending[t.ConversationID]
	w.mu.Unlock()
	if !ok || p.ticket != t {
		w.logger.Error("await called for unregistered approval ticket",
			"conversation_id", t.ConversationID)
		return OutcomeError
	}

	timer := time.NewTimer(time.Until(t.ExpiresAt))
	defer timer.Stop()

	select {
	case text := <-p.reply:
		if w.matches(t.Code, text) {
			return OutcomeApproved
		}
		return OutcomeRejected
	case <-timer.C:
		return OutcomeTimeout
	case <-ctx.Done():
		return OutcomeError
	}
}

func (w *Waiter) matches(code, text string) bool {
	text = strings.TrimSpace(text)
	if w.opts.CaseSensitive {
		return text == code
	}
	return strings.EqualFold(text, code)
}

// Cancel withdraws a ticket that will never be awaited, such as when the
// confirmation code could not be delivered to the user.
func (w *Waiter) Cancel(t *Ticket) {
	w.remove(t.ConversationID)
}

func (w *Waiter) remove(conversationID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, conversationID)
}

// PruneExpired removes tickets whose deadline passed without an active wait,
// which happens when a run dies between issuing the code and awaiting it.
// It returns the number of tickets removed.
func (w *Waiter) PruneExpired(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	pruned := 0
	for id, p := range w.pending {
		if now.After(p.ticket.ExpiresAt) {
			delete(w.pending, id)
			pruned++
		}
	}
	if pruned > 0 {
		w.logger.Debug("pruned expired approval tickets", "count", pruned)
	}
	return pruned
}
