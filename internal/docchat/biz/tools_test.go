package biz

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docchat/internal/docchat/model"
	"github.com/kart-io/docchat/internal/docchat/store"
	"github.com/kart-io/docchat/pkg/llm"
)

func newTestExecutor(t *testing.T) (*ToolExecutor, store.Factory, store.ContextStore) {
	t.Helper()

	factory, err := store.NewSQLiteFactory(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = factory.Close() })

	contexts := store.NewMemoryContextStore()
	return NewToolExecutor(factory.Documents(), contexts, NewRanker(nil), DefaultTopK), factory, contexts
}

func seedDocument(t *testing.T, factory store.Factory, doc *model.Document) {
	t.Helper()
	require.NoError(t, factory.Documents().Create(context.Background(), doc))
}

func TestParseCall(t *testing.T) {
	tests := []struct {
		name    string
		call    llm.ToolCall
		want    Call
		wantErr string
	}{
		{
			name: "get_context",
			call: llm.ToolCall{Name: ToolGetContext},
			want: GetContextCall{},
		},
		{
			name: "set_page with float page",
			call: llm.ToolCall{Name: ToolSetPage, Arguments: map[string]any{"page": float64(4)}},
			want: SetPageCall{Page: 4},
		},
		{
			name:    "set_page missing page",
			call:    llm.ToolCall{Name: ToolSetPage, Arguments: map[string]any{}},
			wantErr: "missing required argument: page",
		},
		{
			name: "search with all arguments",
			call: llm.ToolCall{Name: ToolSearchDocument, Arguments: map[string]any{
				"document_id": "doc-1", "query": "revenue", "top_k": float64(5),
			}},
			want: SearchCall{DocumentID: "doc-1", Query: "revenue", TopK: 5},
		},
		{
			name:    "search missing query",
			call:    llm.ToolCall{Name: ToolSearchDocument, Arguments: map[string]any{"document_id": "doc-1"}},
			wantErr: "missing required argument: query",
		},
		{
			name: "navigate_search optional query",
			call: llm.ToolCall{Name: ToolNavigateSearch, Arguments: map[string]any{"page": float64(2)}},
			want: NavigateSearchCall{Page: 2},
		},
		{
			name:    "unknown tool",
			call:    llm.ToolCall{Name: "delete_everything"},
			wantErr: "unknown tool",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCall(tt.call)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCatalogCoversAllTools(t *testing.T) {
	names := map[string]bool{}
	for _, tool := range Catalog() {
		names[tool.Name] = true
		require.NotNil(t, tool.Parameters)
		assert.Equal(t, "object", tool.Parameters["type"])
	}
	for _, want := range []string{
		ToolGetContext, ToolListDocuments, ToolGetDocument, ToolSetPage,
		ToolSearchDocument, ToolReadDocument, ToolNavigateSearch,
	} {
		assert.True(t, names[want], "catalog missing %s", want)
	}
}

func TestExecuteRejectsMalformedCall(t *testing.T) {
	executor, _, _ := newTestExecutor(t)

	result := executor.Execute(context.Background(), RequestContext{}, llm.ToolCall{
		ID: "call_1", Name: "shred_document",
	})

	assert.False(t, result.Success)
	assert.Equal(t, "call_1", result.ToolCallID)
	assert.Contains(t, result.Reason, "unknown tool")
}

func TestSetPageRejectsOutOfBounds(t *testing.T) {
	executor, factory, contexts := newTestExecutor(t)
	seedDocument(t, factory, &model.Document{ID: "doc-1", Filename: "report.pdf", PageCount: 5})

	before := &model.ConversationContext{ConversationID: "conv-1", ActiveDocumentID: "doc-1", CurrentPage: 2}
	require.NoError(t, contexts.Set(context.Background(), before))

	rc := RequestContext{ConversationID: "conv-1", ActiveDocumentID: "doc-1"}
	result := executor.Execute(context.Background(), rc, llm.ToolCall{
		ID: "call_1", Name: ToolSetPage, Arguments: map[string]any{"page": float64(99)},
	})

	assert.False(t, result.Success)
	assert.Equal(t, "Page 99 does not exist. This PDF has only 5 pages.", result.Reason)
	assert.Equal(t, PageBoundPayload{MaxPages: 5}, result.Payload)

	// Rejected navigation must leave stored state untouched.
	after, err := contexts.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 2, after.CurrentPage)
}

func TestSetPageUpdatesContext(t *testing.T) {
	executor, factory, contexts := newTestExecutor(t)
	seedDocument(t, factory, &model.Document{ID: "doc-1", Filename: "report.pdf", PageCount: 5})

	rc := RequestContext{ConversationID: "conv-1"}
	result := executor.Execute(context.Background(), rc, llm.ToolCall{
		Name: ToolSetPage, Arguments: map[string]any{"document_id": "doc-1", "page": float64(3)},
	})

	require.True(t, result.Success, result.Reason)
	assert.Equal(t, NavigatePayload{DocumentID: "doc-1", Page: 3}, result.Payload)

	cc, err := contexts.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", cc.ActiveDocumentID)
	assert.Equal(t, 3, cc.CurrentPage)
}

func TestSearchDocument(t *testing.T) {
	executor, factory, _ := newTestExecutor(t)
	seedDocument(t, factory, &model.Document{
		ID:        "doc-1",
		Filename:  "pets.pdf",
		PageCount: 3,
		Text:      "the cat sat\fdogs bark loudly\fcat food is tasty",
	})

	rc := RequestContext{ConversationID: "conv-1", ActiveDocumentID: "doc-1"}
	result := executor.Execute(context.Background(), rc, llm.ToolCall{
		Name: ToolSearchDocument, Arguments: map[string]any{"query": "cat food", "top_k": float64(2)},
	})

	require.True(t, result.Success, result.Reason)
	payload, ok := result.Payload.(SearchPayload)
	require.True(t, ok)
	assert.Equal(t, "doc-1", payload.DocumentID)
	require.Len(t, payload.Results, 2)
	assert.Equal(t, 3, payload.Results[0].Page)
	assert.Equal(t, "cat food is tasty", payload.Results[0].Snippet)
}

func TestSearchUsesConfiguredTopK(t *testing.T) {
	factory, err := store.NewSQLiteFactory(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = factory.Close() })
	contexts := store.NewMemoryContextStore()
	executor := NewToolExecutor(factory.Documents(), contexts, NewRanker(nil), 1)

	seedDocument(t, factory, &model.Document{
		ID:        "doc-1",
		Filename:  "pets.pdf",
		PageCount: 3,
		Text:      "the cat sat\fdogs bark loudly\fcat food is tasty",
	})

	rc := RequestContext{ConversationID: "conv-1", ActiveDocumentID: "doc-1"}

	// No top_k argument: the configured default of 1 bounds the hits.
	result := executor.Execute(context.Background(), rc, llm.ToolCall{
		Name: ToolSearchDocument, Arguments: map[string]any{"query": "cat"},
	})
	require.True(t, result.Success, result.Reason)
	payload, ok := result.Payload.(SearchPayload)
	require.True(t, ok)
	assert.Len(t, payload.Results, 1)

	// An explicit top_k from the model still wins.
	result = executor.Execute(context.Background(), rc, llm.ToolCall{
		Name: ToolSearchDocument, Arguments: map[string]any{"query": "cat", "top_k": float64(2)},
	})
	require.True(t, result.Success, result.Reason)
	payload, ok = result.Payload.(SearchPayload)
	require.True(t, ok)
	assert.Len(t, payload.Results, 2)
}

func TestSearchWithoutDocument(t *testing.T) {
	executor, _, _ := newTestExecutor(t)

	result := executor.Execute(context.Background(), RequestContext{ConversationID: "conv-1"}, llm.ToolCall{
		Name: ToolSearchDocument, Arguments: map[string]any{"query": "anything"},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Reason, "no active document")
}

func TestSearchUnknownDocument(t *testing.T) {
	executor, _, _ := newTestExecutor(t)

	result := executor.Execute(context.Background(), RequestContext{ConversationID: "conv-1"}, llm.ToolCall{
		Name: ToolSearchDocument, Arguments: map[string]any{"document_id": "missing", "query": "anything"},
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.Reason, "document not found: missing")
}

func TestReadDocumentTruncates(t *testing.T) {
	executor, factory, _ := newTestExecutor(t)
	seedDocument(t, factory, &model.Document{
		ID:        "doc-1",
		Filename:  "long.pdf",
		PageCount: 1,
		Text:      strings.Repeat("x", readDocumentMaxLen+500),
	})

	rc := RequestContext{ActiveDocumentID: "doc-1"}
	result := executor.Execute(context.Background(), rc, llm.ToolCall{Name: ToolReadDocument})

	require.True(t, result.Success, result.Reason)
	payload, ok := result.Payload.(ReadPayload)
	require.True(t, ok)
	assert.Len(t, payload.Text, readDocumentMaxLen)
}

func TestNavigateSearchRunsQuery(t *testing.T) {
	executor, factory, contexts := newTestExecutor(t)
	seedDocument(t, factory, &model.Document{
		ID:        "doc-1",
		Filename:  "pets.pdf",
		PageCount: 3,
		Text:      "the cat sat\fdogs bark loudly\fcat food is tasty",
	})

	rc := RequestContext{ConversationID: "conv-1", ActiveDocumentID: "doc-1"}
	result := executor.Execute(context.Background(), rc, llm.ToolCall{
		Name: ToolNavigateSearch, Arguments: map[string]any{"page": float64(2), "query": "cat food"},
	})

	require.True(t, result.Success, result.Reason)
	payload, ok := result.Payload.(NavigatePayload)
	require.True(t, ok)
	assert.Equal(t, 2, payload.Page)
	require.NotEmpty(t, payload.Results)
	assert.Equal(t, 3, payload.Results[0].Page)

	cc, err := contexts.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 2, cc.CurrentPage)
}

func TestListDocumentsPrefersChatScope(t *testing.T) {
	executor, factory, _ := newTestExecutor(t)
	seedDocument(t, factory, &model.Document{ID: "doc-1", Filename: "a.pdf", ChatID: "conv-1"})
	seedDocument(t, factory, &model.Document{ID: "doc-2", Filename: "b.pdf", ChatID: "conv-2"})

	result := executor.Execute(context.Background(), RequestContext{ConversationID: "conv-1"}, llm.ToolCall{
		Name: ToolListDocuments,
	})

	require.True(t, result.Success, result.Reason)
	payload, ok := result.Payload.([]DocumentPayload)
	require.True(t, ok)
	require.Len(t, payload, 1)
	assert.Equal(t, "doc-1", payload[0].ID)
}

func TestGetContextReflectsStoredState(t *testing.T) {
	executor, _, contexts := newTestExecutor(t)
	require.NoError(t, contexts.Set(context.Background(), &model.ConversationContext{
		ConversationID:   "conv-1",
		ActiveDocumentID: "doc-9",
		CurrentPage:      7,
	}))

	result := executor.Execute(context.Background(), RequestContext{ConversationID: "conv-1"}, llm.ToolCall{
		Name: ToolGetContext,
	})

	require.True(t, result.Success, result.Reason)
	assert.Equal(t, ContextPayload{ActiveDocumentID: "doc-9", CurrentPage: 7}, result.Payload)
}
