package handler_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docchat/internal/docchat/biz"
	"github.com/kart-io/docchat/internal/docchat/handler"
	"github.com/kart-io/docchat/internal/docchat/router"
	"github.com/kart-io/docchat/internal/docchat/store"
	"github.com/kart-io/docchat/pkg/extractor"
	"github.com/kart-io/docchat/pkg/llm"
	"github.com/kart-io/docchat/pkg/utils/json"
)

type stubExtractor struct {
	result extractor.Result
}

func (s *stubExtractor) Extract(_ context.Context, _ []byte) extractor.Result {
	return s.result
}

type stubChat struct {
	text string
}

func (s *stubChat) Chat(_ context.Context, _ llm.ChatRequest) (*llm.ChatResult, error) {
	return &llm.ChatResult{Text: s.text}, nil
}

func (s *stubChat) Generate(_ context.Context, _, _ string) (string, error) {
	return s.text, nil
}

func (s *stubChat) Name() string { return "stub" }

func newTestRouter(t *testing.T, chatText string, ext extractor.Result) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	factory, err := store.NewSQLiteFactory(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = factory.Close() })

	service := biz.NewService(
		factory,
		store.NewMemoryContextStore(),
		&stubExtractor{result: ext},
		&stubChat{text: chatText},
		nil,
		nil,
		&biz.ServiceConfig{TopK: 3},
	)

	engine := gin.New()
	router.Register(engine, handler.NewDocChatHandler(service))
	return engine
}

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func uploadPDF(t *testing.T, engine *gin.Engine, filename string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.7 test payload"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/docchat/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestUploadDocument(t *testing.T) {
	engine := newTestRouter(t, "ok (p. 1).", extractor.Result{Success: true, Text: "page one\fpage two", PageCount: 2})

	w, resp := uploadPDF(t, engine, "report.pdf")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, resp.Code)
	assert.NotEmpty(t, resp.Data["id"])
	assert.Equal(t, float64(2), resp.Data["page_count"])
	// Extracted text never leaves the service.
	assert.NotContains(t, w.Body.String(), "page one")
}

func TestUploadDocumentRejectsNonPDF(t *testing.T) {
	engine := newTestRouter(t, "", extractor.Result{Success: true, Text: "x", PageCount: 1})

	w, resp := uploadPDF(t, engine, "notes.txt")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 400, resp.Code)
}

func TestUploadDocumentMissingFile(t *testing.T) {
	engine := newTestRouter(t, "", extractor.Result{Success: true, Text: "x", PageCount: 1})

	w, _ := doJSON(t, engine, http.MethodPost, "/v1/docchat/documents", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	engine := newTestRouter(t, "ok (p. 1).", extractor.Result{Success: true, Text: "hello world", PageCount: 1})

	_, created := uploadPDF(t, engine, "a.pdf")
	id := created.Data["id"].(string)

	w, resp := doJSON(t, engine, http.MethodGet, "/v1/docchat/documents/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a.pdf", resp.Data["filename"])

	w, resp = doJSON(t, engine, http.MethodGet, "/v1/docchat/documents", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), resp.Data["total"])

	w, _ = doJSON(t, engine, http.MethodDelete, "/v1/docchat/documents/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, engine, http.MethodGet, "/v1/docchat/documents/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetDocumentNotFound(t *testing.T) {
	engine := newTestRouter(t, "", extractor.Result{Success: true, Text: "x", PageCount: 1})

	w, resp := doJSON(t, engine, http.MethodGet, "/v1/docchat/documents/missing", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 404, resp.Code)
}

func TestAskFlow(t *testing.T) {
	engine := newTestRouter(t, "The answer is on the first page (p. 1).",
		extractor.Result{Success: true, Text: "hello world", PageCount: 1})

	_, created := uploadPDF(t, engine, "a.pdf")
	id := created.Data["id"].(string)

	w, _ := doJSON(t, engine, http.MethodPost, "/v1/docchat/conversations/conv-1/documents",
		`{"document_id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, resp := doJSON(t, engine, http.MethodPost, "/v1/docchat/ask",
		`{"conversation_id":"conv-1","question":"what does it say?"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "The answer is on the first page (p. 1).", resp.Data["message"])

	w, resp = doJSON(t, engine, http.MethodGet, "/v1/docchat/conversations/conv-1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	messages := resp.Data["messages"].([]any)
	require.Len(t, messages, 2)
}

func TestAskValidation(t *testing.T) {
	engine := newTestRouter(t, "", extractor.Result{Success: true, Text: "x", PageCount: 1})

	w, _ := doJSON(t, engine, http.MethodPost, "/v1/docchat/ask", `{"question":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, engine, http.MethodPost, "/v1/docchat/ask", `{"conversation_id":"c1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetPageAndContext(t *testing.T) {
	engine := newTestRouter(t, "ok (p. 1).", extractor.Result{Success: true, Text: "a\fb\fc", PageCount: 3})

	_, created := uploadPDF(t, engine, "a.pdf")
	id := created.Data["id"].(string)

	w, _ := doJSON(t, engine, http.MethodPut, "/v1/docchat/conversations/conv-1/page",
		`{"document_id":"`+id+`","page":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, resp := doJSON(t, engine, http.MethodGet, "/v1/docchat/conversations/conv-1/context", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, resp.Data["active_document_id"])
	assert.Equal(t, float64(2), resp.Data["current_page"])
	assert.Equal(t, float64(3), resp.Data["total_pages"])
	assert.Equal(t, "a.pdf", resp.Data["filename"])

	// Out of range pages are rejected with the document's bound.
	w, errResp := doJSON(t, engine, http.MethodPut, "/v1/docchat/conversations/conv-1/page",
		`{"document_id":"`+id+`","page":9}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Page 9 does not exist. This PDF has only 3 pages.", errResp.Message)
}

func TestDeleteConversation(t *testing.T) {
	engine := newTestRouter(t, "hi (p. 1).", extractor.Result{Success: true, Text: "hello", PageCount: 1})

	_, created := uploadPDF(t, engine, "a.pdf")
	id := created.Data["id"].(string)

	doJSON(t, engine, http.MethodPost, "/v1/docchat/conversations/conv-1/documents", `{"document_id":"`+id+`"}`)
	doJSON(t, engine, http.MethodPost, "/v1/docchat/ask", `{"conversation_id":"conv-1","question":"hi"}`)

	w, _ := doJSON(t, engine, http.MethodDelete, "/v1/docchat/conversations/conv-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := doJSON(t, engine, http.MethodGet, "/v1/docchat/conversations/conv-1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp.Data["messages"])
}

func TestStatsAndHealth(t *testing.T) {
	engine := newTestRouter(t, "", extractor.Result{Success: true, Text: "x", PageCount: 1})

	w, resp := doJSON(t, engine, http.MethodGet, "/v1/docchat/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, resp.Data)

	w, _ = doJSON(t, engine, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docchat_service_")
}
