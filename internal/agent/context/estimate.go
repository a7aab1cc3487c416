// Package context provides context window management for agent conversations.
//
// This package handles:
//   - Token estimation: a cheap heuristic over message content
//   - Truncation: structure-preserving transforms that shrink history
//   - Compression: turn-truncation or LLM summarization of old history
//   - Budget management: staying within a configured token window
package context

import (
	"math"
	"unicode"

	"github.com/haasonsaas/relay/pkg/models"
)

// cjkWeight and defaultWeight are the per-character token weights of the
// estimation heuristic. The estimate does not need to match any real
// tokenizer, only be monotonic and stable.
const (
	cjkWeight     = 0.6
	defaultWeight = 0.3
)

// EstimateText approximates the token count of a plain text string.
func EstimateText(text string) int {
	var total float64
	for _, r := range text {
		if isCJK(r) {
			total += cjkWeight
		} else {
			total += defaultWeight
		}
	}
	return int(math.Ceil(total))
}

// EstimateMessage approximates the token count of a single message,
// including serialized tool-call payloads.
func EstimateMessage(m *models.Message) int {
	if m == nil {
		return 0
	}
	total := EstimateText(m.Text())
	for _, tc := range m.ToolCalls {
		total += EstimateText(tc.Name)
		total += EstimateText(string(tc.Arguments))
	}
	return total
}

// EstimateMessages approximates the token count of a message sequence.
func EstimateMessages(msgs []models.Message) int {
	total := 0
	for i := range msgs {
		total += EstimateMessage(&msgs[i])
	}
	return total
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
