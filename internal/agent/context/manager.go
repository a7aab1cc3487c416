package context

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/relay/pkg/models"
)

// Compressor shrinks a message sequence's estimated token footprint while
// preserving enough information for the model to continue the conversation.
type Compressor interface {
	Compress(ctx context.Context, msgs []models.Message, budget Budget) ([]models.Message, error)
}

// Identity is a no-op compressor. With Identity configured the manager
// relies entirely on the halving fallback.
type Identity struct{}

// Compress returns the input unchanged.
func (Identity) Compress(_ context.Context, msgs []models.Message, _ Budget) ([]models.Message, error) {
	return msgs, nil
}

// TurnTruncation drops the oldest complete turns per pass.
type TurnTruncation struct{}

// Compress removes Budget.TurnsToDiscard complete turns from the front of
// the sequence. When no complete turn exists the input is returned
// unchanged and the manager falls through to the halving fallback.
func (TurnTruncation) Compress(_ context.Context, msgs []models.Message, budget Budget) ([]models.Message, error) {
	budget = budget.sanitized()
	out, _ := DropOldestTurns(msgs, budget.TurnsToDiscard, budget.KeepRecent)
	return out, nil
}

// Manager orchestrates estimation, compression, and the halving fallback
// against a configured token budget. It is stateless and reentrant; each
// call operates only on the slice handed to it.
type Manager struct {
	compressor Compressor
	logger     *slog.Logger
}

// NewManager creates a context manager. A nil compressor defaults to
// Identity; a nil logger defaults to slog.Default.
func NewManager(compressor Compressor, logger *slog.Logger) *Manager {
	if compressor == nil {
		compressor = Identity{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{compressor: compressor, logger: logger}
}

// Manage returns a sequence that satisfies the budget while remaining
// structurally valid. It always terminates in one pass: after the primary
// compressor runs, at most one halving pass is applied, and the result is
// accepted even if still above threshold.
func (m *Manager) Manage(ctx context.Context, msgs []models.Message, budget Budget) []models.Message {
	if budget.MaxTokens <= 0 {
		return msgs
	}
	budget = budget.sanitized()

	total := EstimateMessages(msgs)
	if ratio(total, budget.MaxTokens) <= CompressionThreshold {
		return msgs
	}

	out, err := m.compressor.Compress(ctx, msgs, budget)
	if err != nil {
		m.logger.Warn("context compression failed, keeping original history", "error", err)
		out = msgs
	}

	if ratio(EstimateMessages(out), budget.MaxTokens) > CompressionThreshold {
		before := len(out)
		out = Halve(out)
		m.logger.Debug("context halving fallback applied",
			"messages_before", before,
			"messages_after", len(out),
			"estimated_tokens", EstimateMessages(out),
		)
	}

	return RepairToolPairing(out)
}

func ratio(tokens, maxTokens int) float64 {
	return float64(tokens) / float64(maxTokens)
}
