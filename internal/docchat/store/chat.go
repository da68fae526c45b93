package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kart-io/docchat/internal/docchat/model"
)

type chats struct {
	db *gorm.DB
}

func newChats(db *gorm.DB) *chats {
	return &chats{db}
}

// Create creates a new chat record.
func (c *chats) Create(ctx context.Context, chat *model.Chat) error {
	return c.db.WithContext(ctx).Create(chat).Error
}

// Update updates an existing chat record.
func (c *chats) Update(ctx context.Context, chat *model.Chat) error {
	return c.db.WithContext(ctx).Save(chat).Error
}

// Delete deletes a chat by id.
func (c *chats) Delete(ctx context.Context, id string) error {
	return c.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Chat{}).Error
}

// Get retrieves a chat by id.
func (c *chats) Get(ctx context.Context, id string) (*model.Chat, error) {
	var chat model.Chat
	if err := c.db.WithContext(ctx).Where("id = ?", id).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &chat, nil
}
