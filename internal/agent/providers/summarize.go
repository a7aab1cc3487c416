package providers

import (
	"context"
	"strings"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/pkg/models"
)

// completeToText runs one buffered completion with the instruction appended
// as the final user message and returns the concatenated response text.
// Both providers implement Summarize with this.
func completeToText(ctx context.Context, p agent.Provider, messages []models.Message, instruction string) (string, error) {
	msgs := make([]models.Message, 0, len(messages)+1)
	msgs = append(msgs, messages...)
	msgs = append(msgs, models.Message{Role: models.RoleUser, Content: instruction})

	chunks, err := p.Complete(ctx, &agent.CompletionRequest{
		Messages:  msgs,
		MaxTokens: 1024,
	})
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		text.WriteString(chunk.Text)
	}
	return strings.TrimSpace(text.String()), nil
}
