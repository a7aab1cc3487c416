package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

// MemoryStore is a thread-safe in-memory Store for tests and
// single-process deployments without persistence.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*models.Conversation)}
}

// LoadHistory returns a copy of the stored history; callers may mutate the
// result freely.
func (s *MemoryStore) LoadHistory(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	out := make([]models.Message, len(conv.Messages))
	for i := range conv.Messages {
		out[i] = conv.Messages[i].Clone()
	}
	return out, nil
}

// SaveHistory replaces the conversation history and accumulates usage.
func (s *MemoryStore) SaveHistory(_ context.Context, conversationID string, msgs []models.Message, usage models.TokenUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = &models.Conversation{ID: conversationID}
		s.conversations[conversationID] = conv
	}
	conv.Messages = make([]models.Message, len(msgs))
	for i := range msgs {
		conv.Messages[i] = msgs[i].Clone()
	}
	conv.Usage.Add(usage)
	conv.UpdatedAt = time.Now()
	return nil
}

// Usage returns the accumulated token usage for a conversation.
func (s *MemoryStore) Usage(conversationID string) models.TokenUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if conv, ok := s.conversations[conversationID]; ok {
		return conv.Usage
	}
	return models.TokenUsage{}
}
