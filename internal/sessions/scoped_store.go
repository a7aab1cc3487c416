package sessions

import "sync"

// ScopedStore is an in-memory KV keyed by conversation. Components that
// need cross-call memory receive this explicitly; entries are cleaned up
// per conversation rather than living in a hidden global.
//
// Thread Safety:
// ScopedStore is safe for concurrent use.
type ScopedStore struct {
	mu   sync.RWMutex
	data map[string]map[string]any
}

// NewScopedStore creates an empty scoped store.
func NewScopedStore() *ScopedStore {
	return &ScopedStore{data: make(map[string]map[string]any)}
}

// Get returns the value for a key within a conversation scope.
func (s *ScopedStore) Get(conversationID, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope, ok := s.data[conversationID]
	if !ok {
		return nil, false
	}
	value, ok := scope[key]
	return value, ok
}

// Set stores a value under a conversation scope, creating it on first use.
func (s *ScopedStore) Set(conversationID, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope, ok := s.data[conversationID]
	if !ok {
		scope = make(map[string]any)
		s.data[conversationID] = scope
	}
	scope[key] = value
}

// Delete removes one key from a conversation scope.
func (s *ScopedStore) Delete(conversationID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scope, ok := s.data[conversationID]; ok {
		delete(scope, key)
		if len(scope) == 0 {
			delete(s.data, conversationID)
		}
	}
}

// Clear removes an entire conversation scope.
func (s *ScopedStore) Clear(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, conversationID)
}
