// Package handler provides HTTP handlers for the docchat service.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docchat/internal/docchat/biz"
	"github.com/kart-io/docchat/internal/docchat/store"
)

// maxUploadSize caps PDF uploads at 32 MiB.
const maxUploadSize = 32 << 20

// askTimeout bounds one question turn end to end.
const askTimeout = 60 * time.Second

// DocChatHandler handles docchat HTTP requests.
type DocChatHandler struct {
	service *biz.Service
}

// NewDocChatHandler creates a new DocChatHandler.
func NewDocChatHandler(service *biz.Service) *DocChatHandler {
	return &DocChatHandler{service: service}
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// UploadDocument registers an uploaded PDF.
func (h *DocChatHandler) UploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "missing file field: " + err.Error()})
		return
	}
	if fileHeader.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Code: 413, Message: "file exceeds the 32 MiB upload limit"})
		return
	}
	if ext := strings.ToLower(filepath.Ext(fileHeader.Filename)); ext != ".pdf" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "only PDF files are accepted"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	doc, err := h.service.RegisterDocument(c.Request.Context(), fileHeader.Filename, c.PostForm("display_name"), data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Document registered successfully", Data: doc})
}

// ListDocuments lists registered documents.
func (h *DocChatHandler) ListDocuments(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	total, docs, err := h.service.ListDocuments(c.Request.Context(), offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: gin.H{
		"total":     total,
		"documents": docs,
	}})
}

// GetDocument returns a document's metadata.
func (h *DocChatHandler) GetDocument(c *gin.Context) {
	doc, err := h.service.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Code: 404, Message: "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: doc})
}

// DeleteDocument removes a document.
func (h *DocChatHandler) DeleteDocument(c *gin.Context) {
	if err := h.service.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Document deleted successfully"})
}

// AssociateRequest attaches a document to a conversation.
type AssociateRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
}

// AssociateDocument makes a document the conversation's active one.
func (h *DocChatHandler) AssociateDocument(c *gin.Context) {
	var req AssociateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	doc, err := h.service.AssociateDocument(c.Request.Context(), req.DocumentID, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Code: 404, Message: "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Document associated successfully", Data: doc})
}

// AskRequest represents a question about a document.
type AskRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	DocumentID     string `json:"document_id,omitempty"`
	Question       string `json:"question" binding:"required"`
}

// Ask answers a question about the conversation's document.
func (h *DocChatHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), askTimeout)
	defer cancel()

	result, err := h.service.Ask(ctx, req.ConversationID, req.DocumentID, req.Question)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.JSON(http.StatusRequestTimeout, ErrorResponse{
				Code:    408,
				Message: "Ask timeout: the request took too long to process. Please try again or simplify your question.",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: result})
}

// ContextResponse is the viewing state with the active document's
// metadata resolved.
type ContextResponse struct {
	ConversationID   string `json:"conversation_id"`
	ActiveDocumentID string `json:"active_document_id,omitempty"`
	CurrentPage      int    `json:"current_page,omitempty"`
	TotalPages       int    `json:"total_pages,omitempty"`
	Filename         string `json:"filename,omitempty"`
}

// GetContext returns the conversation's viewing state.
func (h *DocChatHandler) GetContext(c *gin.Context) {
	cc, err := h.service.GetContext(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	resp := ContextResponse{
		ConversationID:   cc.ConversationID,
		ActiveDocumentID: cc.ActiveDocumentID,
		CurrentPage:      cc.CurrentPage,
	}
	if cc.ActiveDocumentID != "" {
		if doc, err := h.service.GetDocument(c.Request.Context(), cc.ActiveDocumentID); err == nil {
			resp.TotalPages = doc.PageCount
			resp.Filename = doc.Filename
		}
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: resp})
}

// SetPageRequest moves the viewing position.
type SetPageRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
	Page       int    `json:"page" binding:"required"`
}

// SetPage updates the page the user is viewing.
func (h *DocChatHandler) SetPage(c *gin.Context) {
	var req SetPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	if err := h.service.SetPage(c.Request.Context(), c.Param("id"), req.DocumentID, req.Page); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Code: 404, Message: "document not found"})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Page updated successfully"})
}

// History returns the conversation transcript.
func (h *DocChatHandler) History(c *gin.Context) {
	messages, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: gin.H{
		"conversation_id": c.Param("id"),
		"messages":        messages,
	}})
}

// DeleteConversation removes a conversation and its viewing state.
func (h *DocChatHandler) DeleteConversation(c *gin.Context) {
	if err := h.service.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Code: 404, Message: "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Conversation deleted successfully"})
}

// Stats returns the service's business counters.
func (h *DocChatHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: h.service.Stats()})
}
