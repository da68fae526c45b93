package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kart-io/docchat/internal/docchat/model"
)

type documents struct {
	db *gorm.DB
}

func newDocuments(db *gorm.DB) *documents {
	return &documents{db}
}

// Create creates a new document record.
func (d *documents) Create(ctx context.Context, doc *model.Document) error {
	return d.db.WithContext(ctx).Create(doc).Error
}

// Update updates an existing document record.
func (d *documents) Update(ctx context.Context, doc *model.Document) error {
	return d.db.WithContext(ctx).Save(doc).Error
}

// Delete deletes a document by id.
func (d *documents) Delete(ctx context.Context, id string) error {
	return d.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{}).Error
}

// Get retrieves a document by id.
func (d *documents) Get(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// List lists documents with pagination, newest first.
func (d *documents) List(ctx context.Context, offset, limit int) (int64, []*model.Document, error) {
	var count int64
	var docs []*model.Document

	if err := d.db.WithContext(ctx).Model(&model.Document{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}

	if err := d.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&docs).Error; err != nil {
		return 0, nil, err
	}

	return count, docs, nil
}

// ListByChat lists documents associated with a conversation.
func (d *documents) ListByChat(ctx context.Context, chatID string) ([]*model.Document, error) {
	var docs []*model.Document
	if err := d.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}
