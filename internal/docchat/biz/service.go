package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"

	"github.com/kart-io/docchat/internal/docchat/metrics"
	"github.com/kart-io/docchat/internal/docchat/model"
	"github.com/kart-io/docchat/internal/docchat/store"
	"github.com/kart-io/docchat/pkg/extractor"
	"github.com/kart-io/docchat/pkg/llm"
	"github.com/kart-io/docchat/pkg/utils/id"
	"github.com/kart-io/docchat/pkg/utils/json"
)

// ServiceConfig tunes the answer pipeline.
type ServiceConfig struct {
	// TopK is the default snippet count for retrieval.
	TopK int

	// HistoryLimit caps how many transcript messages are replayed to
	// the model per turn. Zero means no cap.
	HistoryLimit int
}

// Service wires documents, conversations, and the answer pipeline
// together. It is the entry point the transport layer talks to.
type Service struct {
	factory   store.Factory
	contexts  store.ContextStore
	extractor extractor.Extractor
	chat      llm.ChatProvider
	ranker    *Ranker
	orch      *Orchestrator
	guard     *Guardrail
	metrics   *metrics.Metrics
	cfg       *ServiceConfig
}

// NewService assembles the pipeline. The embedding provider may be
// nil, which pins ranking to the lexical path. The pool is optional.
func NewService(
	factory store.Factory,
	contexts store.ContextStore,
	ext extractor.Extractor,
	chat llm.ChatProvider,
	embedder llm.EmbeddingProvider,
	pool *ants.Pool,
	cfg *ServiceConfig,
) *Service {
	if cfg == nil {
		cfg = &ServiceConfig{}
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}

	ranker := NewRanker(embedder)
	executor := NewToolExecutor(factory.Documents(), contexts, ranker, cfg.TopK)

	return &Service{
		factory:   factory,
		contexts:  contexts,
		extractor: ext,
		chat:      chat,
		ranker:    ranker,
		orch:      NewOrchestrator(chat, executor, pool),
		guard:     NewGuardrail(chat, ranker, cfg.TopK),
		metrics:   metrics.Get(),
		cfg:       cfg,
	}
}

// RegisterDocument extracts text from an uploaded PDF payload and
// stores the document record. Extraction failure still registers the
// document; questions against it resolve to the not-found sentence.
func (s *Service) RegisterDocument(ctx context.Context, filename, displayName string, data []byte) (*model.Document, error) {
	result := s.extractor.Extract(ctx, data)
	if !result.Success {
		s.metrics.RecordExtractionError()
		logger.Warnw("text extraction failed, registering document without content",
			"filename", filename, "reason", result.Reason)
	}

	pageCount := result.PageCount
	if pageCount < 1 {
		pageCount = 1
	}
	if displayName == "" {
		displayName = filename
	}

	doc := &model.Document{
		ID:          id.NewULID(),
		Filename:    filename,
		DisplayName: displayName,
		PageCount:   pageCount,
		Text:        result.Text,
	}
	if err := s.factory.Documents().Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	s.metrics.RecordDocumentRegistered()
	logger.Infow("document registered",
		"document_id", doc.ID, "filename", filename, "pages", pageCount, "extracted", result.Success)
	return doc, nil
}

// AssociateDocument attaches a document to a conversation and makes it
// the active document for that conversation.
func (s *Service) AssociateDocument(ctx context.Context, documentID, conversationID string) (*model.Document, error) {
	doc, err := s.factory.Documents().Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	doc.ChatID = conversationID
	if err := s.factory.Documents().Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to associate document: %w", err)
	}

	cc, err := s.contexts.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	cc.ActiveDocumentID = doc.ID
	if cc.CurrentPage < 1 {
		cc.CurrentPage = 1
	}
	if err := s.contexts.Set(ctx, cc); err != nil {
		return nil, err
	}

	return doc, nil
}

// GetDocument returns a document's metadata.
func (s *Service) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	return s.factory.Documents().Get(ctx, documentID)
}

// ListDocuments lists registered documents with pagination.
func (s *Service) ListDocuments(ctx context.Context, offset, limit int) (int64, []*model.Document, error) {
	if limit <= 0 {
		limit = listDocumentsLimit
	}
	return s.factory.Documents().List(ctx, offset, limit)
}

// DeleteDocument removes a document record.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	return s.factory.Documents().Delete(ctx, documentID)
}

// GetContext returns the viewing state for a conversation.
func (s *Service) GetContext(ctx context.Context, conversationID string) (*model.ConversationContext, error) {
	return s.contexts.Get(ctx, conversationID)
}

// SetPage updates the viewing state directly, applying the same page
// bounds the navigation tools enforce.
func (s *Service) SetPage(ctx context.Context, conversationID, documentID string, page int) error {
	doc, err := s.factory.Documents().Get(ctx, documentID)
	if err != nil {
		return err
	}
	maxPages := doc.PageCount
	if maxPages < 1 {
		maxPages = 1
	}
	if page < 1 || page > maxPages {
		return fmt.Errorf("Page %d does not exist. This PDF has only %d pages.", page, maxPages)
	}
	return s.contexts.Set(ctx, &model.ConversationContext{
		ConversationID:   conversationID,
		ActiveDocumentID: doc.ID,
		CurrentPage:      page,
	})
}

// History returns the stored transcript of a conversation. A missing
// conversation yields an empty transcript.
func (s *Service) History(ctx context.Context, conversationID string) ([]model.Message, error) {
	chat, err := s.factory.Chats().Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []model.Message{}, nil
		}
		return nil, err
	}
	return decodeMessages(chat.Messages)
}

// DeleteConversation removes a conversation's transcript and viewing
// state.
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.factory.Chats().Delete(ctx, conversationID); err != nil {
		return err
	}
	return s.contexts.Delete(ctx, conversationID)
}

// Stats returns the service's business counters.
func (s *Service) Stats() map[string]interface{} {
	return s.metrics.Stats()
}

// Ask answers one question. The turn reads viewing state, runs the
// forced tool-calling orchestration, applies the citation guardrail,
// and persists the transcript. The returned message is never empty.
func (s *Service) Ask(ctx context.Context, conversationID, documentID, question string) (*model.AskResult, error) {
	cc, err := s.contexts.Get(ctx, conversationID)
	if err != nil {
		s.metrics.RecordQuestion(err)
		return nil, err
	}

	// An explicitly named document becomes the active one.
	if documentID == "" {
		documentID = cc.ActiveDocumentID
	}

	var doc *model.Document
	if documentID != "" {
		doc, err = s.factory.Documents().Get(ctx, documentID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.metrics.RecordQuestion(err)
				return nil, err
			}
			// Unknown document: answer without an active document.
			doc = nil
			documentID = ""
		}
	}

	if doc != nil && cc.ActiveDocumentID != doc.ID {
		cc.ActiveDocumentID = doc.ID
		if cc.CurrentPage < 1 {
			cc.CurrentPage = 1
		}
		if err := s.contexts.Set(ctx, cc); err != nil {
			logger.Warnw("failed to persist active document", "conversation_id", conversationID, "error", err.Error())
		}
	}

	history, err := s.loadHistory(ctx, conversationID)
	if err != nil {
		s.metrics.RecordQuestion(err)
		return nil, err
	}
	history = append(history, model.Message{Role: model.RoleUser, Content: question})

	rc := RequestContext{
		ConversationID:   conversationID,
		ActiveDocumentID: documentID,
		CurrentPage:      cc.CurrentPage,
		History:          s.trimHistory(history),
	}
	if doc != nil {
		rc.DocumentName = doc.DisplayName
		rc.PageCount = doc.PageCount
	}

	result := s.orch.Run(ctx, rc)
	result.Message = s.guard.Verify(ctx, result.Message, doc, question)
	if strings.TrimSpace(result.Message) == "" {
		result.Message = ApologyAnswer
	}

	history = append(history, model.Message{Role: model.RoleAssistant, Content: result.Message})
	if err := s.saveHistory(ctx, conversationID, history); err != nil {
		logger.Warnw("failed to persist transcript", "conversation_id", conversationID, "error", err.Error())
	}

	s.metrics.RecordQuestion(nil)
	return result, nil
}

func (s *Service) loadHistory(ctx context.Context, conversationID string) ([]model.Message, error) {
	chat, err := s.factory.Chats().Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []model.Message{}, nil
		}
		return nil, err
	}
	return decodeMessages(chat.Messages)
}

func (s *Service) saveHistory(ctx context.Context, conversationID string, messages []model.Message) error {
	encoded, err := json.Marshal(messages)
	if err != nil {
		return err
	}

	chats := s.factory.Chats()
	existing, err := chats.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return chats.Create(ctx, &model.Chat{ID: conversationID, Messages: string(encoded)})
		}
		return err
	}
	existing.Messages = string(encoded)
	return chats.Update(ctx, existing)
}

// trimHistory keeps the most recent messages when a cap is set.
func (s *Service) trimHistory(messages []model.Message) []model.Message {
	if s.cfg.HistoryLimit <= 0 || len(messages) <= s.cfg.HistoryLimit {
		return messages
	}
	return messages[len(messages)-s.cfg.HistoryLimit:]
}

func decodeMessages(encoded string) ([]model.Message, error) {
	if encoded == "" {
		return []model.Message{}, nil
	}
	var messages []model.Message
	if err := json.Unmarshal([]byte(encoded), &messages); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return messages, nil
}
