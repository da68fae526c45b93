// Package store provides persistence for documents, chats, and
// conversation viewing state.
package store

import (
	"context"
	"errors"

	"github.com/kart-io/docchat/internal/docchat/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Factory defines the factory interface for creating stores.
type Factory interface {
	Documents() DocumentStore
	Chats() ChatStore
	Close() error
}

// DocumentStore defines document metadata storage.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Update(ctx context.Context, doc *model.Document) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context, offset, limit int) (int64, []*model.Document, error)
	ListByChat(ctx context.Context, chatID string) ([]*model.Document, error)
}

// ChatStore defines conversation transcript storage.
type ChatStore interface {
	Create(ctx context.Context, chat *model.Chat) error
	Update(ctx context.Context, chat *model.Chat) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*model.Chat, error)
}

// ContextStore holds per-conversation viewing state. Implementations
// may expire entries; a missing entry means a fresh context.
type ContextStore interface {
	Get(ctx context.Context, conversationID string) (*model.ConversationContext, error)
	Set(ctx context.Context, cc *model.ConversationContext) error
	Delete(ctx context.Context, conversationID string) error
}
