// Package model provides data models for the docchat service.
package model

import (
	"time"
)

// Document describes an uploaded PDF known to the metadata store.
// The binary itself lives outside this service; the record carries the
// upload-time metadata the answer pipeline needs.
type Document struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Filename    string    `json:"filename" gorm:"type:varchar(512);not null"`
	DisplayName string    `json:"display_name" gorm:"type:varchar(255)"`
	PageCount   int       `json:"page_count" gorm:"default:1"`
	Text        string    `json:"-" gorm:"type:longtext"` // extracted text, pages joined by \f
	ChatID      string    `json:"chat_id,omitempty" gorm:"type:varchar(64);index"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Document.
func (Document) TableName() string {
	return "docchat_documents"
}

// Chunk is a page-aligned slice of a document's extracted text.
// Chunks are produced fresh for every request and never persisted.
type Chunk struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// RankedSnippet is a scored, truncated chunk returned as retrieval
// evidence. Score is internal; callers only rely on ordering.
type RankedSnippet struct {
	Page    int     `json:"page"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"-"`
}

// Message is one role-tagged entry of a conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat is a stored conversation transcript.
type Chat struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Messages  string    `json:"-" gorm:"type:longtext"` // JSON-encoded []Message
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Chat.
func (Chat) TableName() string {
	return "docchat_chats"
}

// ConversationContext is the per-conversation viewing state read at
// orchestration start and written by navigation capabilities.
type ConversationContext struct {
	ConversationID   string `json:"conversation_id"`
	ActiveDocumentID string `json:"active_document_id,omitempty"`
	CurrentPage      int    `json:"current_page,omitempty"`
}

// AskResult is the artifact produced for the calling layer. Message is
// always non-empty.
type AskResult struct {
	Message   string       `json:"message"`
	ToolCalls []ToolRecord `json:"tool_calls"`
}

// ToolRecord is the observability view of one tool call made during a
// turn.
type ToolRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}
