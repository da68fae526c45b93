package store

import (
	"context"
	"sync"

	"github.com/kart-io/docchat/internal/docchat/model"
)

// memoryContextStore is the in-process fallback used when Redis is
// unavailable. State is lost on restart.
type memoryContextStore struct {
	mu       sync.RWMutex
	contexts map[string]model.ConversationContext
}

// NewMemoryContextStore creates an in-memory ContextStore.
func NewMemoryContextStore() ContextStore {
	return &memoryContextStore{
		contexts: make(map[string]model.ConversationContext),
	}
}

// Get loads the viewing state for a conversation. A missing entry
// yields a fresh context.
func (s *memoryContextStore) Get(_ context.Context, conversationID string) (*model.ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cc, ok := s.contexts[conversationID]; ok {
		copied := cc
		return &copied, nil
	}
	return &model.ConversationContext{ConversationID: conversationID}, nil
}

// Set stores the viewing state for a conversation.
func (s *memoryContextStore) Set(_ context.Context, cc *model.ConversationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contexts[cc.ConversationID] = *cc
	return nil
}

// Delete removes the viewing state for a conversation.
func (s *memoryContextStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.contexts, conversationID)
	return nil
}
