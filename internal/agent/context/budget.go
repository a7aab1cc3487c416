package context

// CompressionThreshold is the fraction of the token budget that triggers
// compression. Below this ratio the history is passed through untouched.
const CompressionThreshold = 0.82

// Budget is the per-conversation context window configuration.
type Budget struct {
	// MaxTokens is the token ceiling for the conversation context.
	// Zero or negative disables compression entirely.
	MaxTokens int

	// TurnsToDiscard is how many complete turns the turn-truncation
	// compressor drops per pass. Default: 1.
	TurnsToDiscard int

	// KeepRecent is the minimum number of trailing messages kept verbatim
	// by truncation. Default: 4.
	KeepRecent int
}

// DefaultBudget returns the baseline budget configuration.
func DefaultBudget() Budget {
	return Budget{
		MaxTokens:      0,
		TurnsToDiscard: 1,
		KeepRecent:     4,
	}
}

func (b Budget) sanitized() Budget {
	if b.TurnsToDiscard <= 0 {
		b.TurnsToDiscard = 1
	}
	if b.KeepRecent <= 0 {
		b.KeepRecent = 4
	}
	return b
}
