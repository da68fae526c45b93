package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docchat/internal/docchat/model"
	"github.com/kart-io/docchat/pkg/utils/json"
)

const contextKeyPrefix = "docchat:context:"

// redisContextStore keeps conversation viewing state in Redis so it
// survives process restarts and is shared between replicas.
type redisContextStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisContextStore wraps a Redis client as a ContextStore.
// Entries expire after ttl; zero means no expiry.
func NewRedisContextStore(client *goredis.Client, ttl time.Duration) ContextStore {
	return &redisContextStore{client: client, ttl: ttl}
}

// Get loads the viewing state for a conversation. A missing key yields
// a fresh context rather than an error.
func (s *redisContextStore) Get(ctx context.Context, conversationID string) (*model.ConversationContext, error) {
	data, err := s.client.Get(ctx, contextKeyPrefix+conversationID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return &model.ConversationContext{ConversationID: conversationID}, nil
		}
		return nil, fmt.Errorf("failed to load conversation context: %w", err)
	}

	var cc model.ConversationContext
	if err := json.Unmarshal(data, &cc); err != nil {
		return nil, fmt.Errorf("failed to decode conversation context: %w", err)
	}
	cc.ConversationID = conversationID
	return &cc, nil
}

// Set stores the viewing state for a conversation.
func (s *redisContextStore) Set(ctx context.Context, cc *model.ConversationContext) error {
	data, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("failed to encode conversation context: %w", err)
	}
	return s.client.Set(ctx, contextKeyPrefix+cc.ConversationID, data, s.ttl).Err()
}

// Delete removes the viewing state for a conversation.
func (s *redisContextStore) Delete(ctx context.Context, conversationID string) error {
	return s.client.Del(ctx, contextKeyPrefix+conversationID).Err()
}
