// Package sessions provides conversation persistence, per-conversation
// locking, and conversation-scoped key-value state.
package sessions

import (
	"context"

	"github.com/haasonsaas/relay/pkg/models"
)

// Store is the narrow persistence interface the runtime consumes. The
// canonical history lives behind this interface; the agent loop operates on
// an in-memory copy for one turn and hands back a possibly-shrunk copy.
type Store interface {
	// LoadHistory returns the ordered message history for a conversation.
	// A conversation that has never been seen yields an empty history, not
	// an error.
	LoadHistory(ctx context.Context, conversationID string) ([]models.Message, error)

	// SaveHistory replaces the stored history for a conversation and
	// accumulates token usage.
	SaveHistory(ctx context.Context, conversationID string, msgs []models.Message, usage models.TokenUsage) error
}

// KV is a conversation-scoped key-value store, passed explicitly into the
// components that need cross-call memory instead of hiding it in a
// process-wide singleton.
type KV interface {
	Get(conversationID, key string) (any, bool)
	Set(conversationID, key string, value any)
	Delete(conversationID, key string)
	Clear(conversationID string)
}
