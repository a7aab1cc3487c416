package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/relay/pkg/models"
)

// summarizeInstruction is the fixed instruction appended to the messages
// sent to the summarization model.
const summarizeInstruction = "Summarize the conversation above concisely. " +
	"Preserve key facts, decisions, pending tasks, and tool outcomes so the " +
	"assistant can continue the conversation coherently."

// SummaryProvider generates a summary of a message sequence. Injecting a
// fake provider keeps the compressor testable without a live model.
type SummaryProvider interface {
	Summarize(ctx context.Context, messages []models.Message, instruction string) (string, error)
}

// Summarizer compresses old history into one synthetic system message using
// the configured summarization model. It fails open: on any provider error
// the original sequence is returned unchanged.
type Summarizer struct {
	provider SummaryProvider
}

// NewSummarizer creates an LLM-backed compressor.
func NewSummarizer(provider SummaryProvider) *Summarizer {
	return &Summarizer{provider: provider}
}

// Compress splits the sequence into (system, toSummarize, recent) such that
// recent always starts on a user message, replaces toSummarize with one
// synthetic system summary message, and returns the recombined sequence.
func (s *Summarizer) Compress(ctx context.Context, msgs []models.Message, budget Budget) ([]models.Message, error) {
	if s.provider == nil {
		return msgs, nil
	}
	budget = budget.sanitized()

	system, rest := splitSystemPrefix(msgs)
	if len(rest) <= budget.KeepRecent {
		return msgs, nil
	}

	cut := len(rest) - budget.KeepRecent
	// Extend the recent portion backward until it starts on a user
	// message; a cut inside an assistant/tool block would orphan results.
	for cut > 0 && rest[cut].Role != models.RoleUser {
		cut--
	}
	if cut <= 0 {
		return msgs, nil
	}

	toSummarize := rest[:cut]
	recent := rest[cut:]

	summary, err := s.provider.Summarize(ctx, toSummarize, summarizeInstruction)
	if err != nil {
		// Fail open: a broken summarizer must not lose history.
		return msgs, nil
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return msgs, nil
	}

	out := make([]models.Message, 0, len(system)+1+len(recent))
	out = append(out, system...)
	out = append(out, models.Message{
		Role:    models.RoleSystem,
		Content: fmt.Sprintf("Conversation summary: %s", summary),
	})
	out = append(out, recent...)
	return out, nil
}

// BuildSummaryPrompt renders messages into the plain-text transcript that
// LLM-backed summary providers send to the model.
func BuildSummaryPrompt(messages []models.Message, instruction string) string {
	var sb strings.Builder
	for i := range messages {
		m := &messages[i]
		sb.WriteString("[")
		sb.WriteString(string(m.Role))
		sb.WriteString("]: ")
		sb.WriteString(m.Text())
		for _, tc := range m.ToolCalls {
			sb.WriteString(fmt.Sprintf("\n  [called tool: %s]", tc.Name))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(instruction)
	return sb.String()
}
