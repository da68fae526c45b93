package biz

import (
	"context"
	"errors"
	"fmt"

	"github.com/kart-io/docchat/internal/docchat/metrics"
	"github.com/kart-io/docchat/internal/docchat/model"
	"github.com/kart-io/docchat/internal/docchat/store"
	"github.com/kart-io/docchat/pkg/llm"
)

// Tool names form the closed capability catalog offered to the model.
const (
	ToolGetContext     = "get_context"
	ToolListDocuments  = "list_documents"
	ToolGetDocument    = "get_document"
	ToolSetPage        = "set_page"
	ToolSearchDocument = "search_document"
	ToolReadDocument   = "read_document"
	ToolNavigateSearch = "navigate_search"
)

// listDocumentsLimit bounds how many documents the model can see.
const listDocumentsLimit = 50

// readDocumentMaxLen caps the text returned by read_document so a
// large PDF cannot blow up the follow-up prompt.
const readDocumentMaxLen = 8000

// RequestContext is the immutable per-request view threaded through
// orchestration. Mutations of viewing state go through the context
// store, never through this value.
type RequestContext struct {
	ConversationID   string
	ActiveDocumentID string
	DocumentName     string
	PageCount        int
	CurrentPage      int
	History          []model.Message
}

// Catalog returns the tool definitions for one orchestration turn.
func Catalog() []llm.Tool {
	docIDProp := map[string]any{
		"type":        "string",
		"description": "Document id. Defaults to the active document.",
	}

	return []llm.Tool{
		{
			Name:        ToolGetContext,
			Description: "Get the current conversation context: active document and current page.",
			Parameters:  objectSchema(nil, nil),
		},
		{
			Name:        ToolListDocuments,
			Description: "List the documents available in this conversation.",
			Parameters:  objectSchema(nil, nil),
		},
		{
			Name:        ToolGetDocument,
			Description: "Get metadata for a document: display name, filename, page count.",
			Parameters: objectSchema(map[string]any{
				"document_id": docIDProp,
			}, nil),
		},
		{
			Name:        ToolSetPage,
			Description: "Set the page the user is currently viewing.",
			Parameters: objectSchema(map[string]any{
				"document_id": docIDProp,
				"page": map[string]any{
					"type":        "integer",
					"description": "Target page number, 1-based.",
				},
			}, []string{"page"}),
		},
		{
			Name:        ToolSearchDocument,
			Description: "Search a document for passages relevant to a query. Returns page-cited snippets.",
			Parameters: objectSchema(map[string]any{
				"document_id": docIDProp,
				"query": map[string]any{
					"type":        "string",
					"description": "What to look for.",
				},
				"top_k": map[string]any{
					"type":        "integer",
					"description": "How many snippets to return. Default 3.",
				},
			}, []string{"query"}),
		},
		{
			Name:        ToolReadDocument,
			Description: "Read the extracted text of a document.",
			Parameters: objectSchema(map[string]any{
				"document_id": docIDProp,
			}, nil),
		},
		{
			Name:        ToolNavigateSearch,
			Description: "Navigate to a page and optionally run a search in one step.",
			Parameters: objectSchema(map[string]any{
				"document_id": docIDProp,
				"page": map[string]any{
					"type":        "integer",
					"description": "Target page number, 1-based.",
				},
				"query": map[string]any{
					"type":        "string",
					"description": "Optional search query to run after navigating.",
				},
			}, []string{"page"}),
		},
	}
}

func objectSchema(properties map[string]any, required []string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Call is the closed set of capability invocations. Each variant
// carries its own typed arguments so dispatch is an exhaustive type
// switch instead of a string-keyed lookup.
type Call interface {
	name() string
}

// GetContextCall reads the conversation viewing state.
type GetContextCall struct{}

// ListDocumentsCall lists available documents.
type ListDocumentsCall struct{}

// GetDocumentCall fetches document metadata.
type GetDocumentCall struct {
	DocumentID string
}

// SetPageCall moves the viewing position.
type SetPageCall struct {
	DocumentID string
	Page       int
}

// SearchCall runs ranked retrieval over a document.
type SearchCall struct {
	DocumentID string
	Query      string
	TopK       int
}

// ReadDocumentCall returns the document's extracted text.
type ReadDocumentCall struct {
	DocumentID string
}

// NavigateSearchCall moves the viewing position and optionally
// searches in the same step.
type NavigateSearchCall struct {
	DocumentID string
	Page       int
	Query      string
}

func (GetContextCall) name() string     { return ToolGetContext }
func (ListDocumentsCall) name() string  { return ToolListDocuments }
func (GetDocumentCall) name() string    { return ToolGetDocument }
func (SetPageCall) name() string        { return ToolSetPage }
func (SearchCall) name() string         { return ToolSearchDocument }
func (ReadDocumentCall) name() string   { return ToolReadDocument }
func (NavigateSearchCall) name() string { return ToolNavigateSearch }

// ParseCall converts a model-emitted tool call into its typed variant.
// Unknown names and missing required arguments are errors; optional
// arguments default to zero values.
func ParseCall(tc llm.ToolCall) (Call, error) {
	args := tc.Arguments
	switch tc.Name {
	case ToolGetContext:
		return GetContextCall{}, nil
	case ToolListDocuments:
		return ListDocumentsCall{}, nil
	case ToolGetDocument:
		return GetDocumentCall{DocumentID: stringArg(args, "document_id")}, nil
	case ToolSetPage:
		page, ok := intArg(args, "page")
		if !ok {
			return nil, fmt.Errorf("%s: missing required argument: page", tc.Name)
		}
		return SetPageCall{DocumentID: stringArg(args, "document_id"), Page: page}, nil
	case ToolSearchDocument:
		query := stringArg(args, "query")
		if query == "" {
			return nil, fmt.Errorf("%s: missing required argument: query", tc.Name)
		}
		topK, _ := intArg(args, "top_k")
		return SearchCall{DocumentID: stringArg(args, "document_id"), Query: query, TopK: topK}, nil
	case ToolReadDocument:
		return ReadDocumentCall{DocumentID: stringArg(args, "document_id")}, nil
	case ToolNavigateSearch:
		page, ok := intArg(args, "page")
		if !ok {
			return nil, fmt.Errorf("%s: missing required argument: page", tc.Name)
		}
		return NavigateSearchCall{
			DocumentID: stringArg(args, "document_id"),
			Page:       page,
			Query:      stringArg(args, "query"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown tool: %s", tc.Name)
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// ToolResult is the outcome of executing one tool call. Failures are
// values, consumed by synthesis the same way successes are.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Success    bool   `json:"success"`
	Reason     string `json:"reason,omitempty"`
	Payload    any    `json:"payload,omitempty"`
}

// ContextPayload is the get_context result.
type ContextPayload struct {
	ActiveDocumentID string `json:"active_document_id,omitempty"`
	CurrentPage      int    `json:"current_page,omitempty"`
}

// DocumentPayload is the get_document / list_documents entry.
type DocumentPayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Filename    string `json:"filename"`
	PageCount   int    `json:"page_count"`
}

// SearchPayload is the search_document result.
type SearchPayload struct {
	DocumentID string                `json:"document_id"`
	Query      string                `json:"query"`
	Results    []model.RankedSnippet `json:"results"`
}

// NavigatePayload is the set_page / navigate_search result. Results is
// populated only when navigate_search carried a query.
type NavigatePayload struct {
	DocumentID string                `json:"document_id"`
	Page       int                   `json:"page"`
	Results    []model.RankedSnippet `json:"results,omitempty"`
}

// PageBoundPayload explains a rejected navigation.
type PageBoundPayload struct {
	MaxPages int `json:"max_pages"`
}

// ReadPayload is the read_document result.
type ReadPayload struct {
	DocumentID string `json:"document_id"`
	PageCount  int    `json:"page_count"`
	Text       string `json:"text"`
}

// ToolExecutor executes typed capability calls against the stores and
// the ranking pipeline.
type ToolExecutor struct {
	docs     store.DocumentStore
	contexts store.ContextStore
	ranker   *Ranker
	topK     int
	metrics  *metrics.Metrics
}

// NewToolExecutor creates a ToolExecutor. topK is the snippet count
// used when a call does not ask for a specific one.
func NewToolExecutor(docs store.DocumentStore, contexts store.ContextStore, ranker *Ranker, topK int) *ToolExecutor {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &ToolExecutor{
		docs:     docs,
		contexts: contexts,
		ranker:   ranker,
		topK:     topK,
		metrics:  metrics.Get(),
	}
}

// Execute runs one tool call. It never returns an error: every failure
// becomes a failure-tagged ToolResult.
func (e *ToolExecutor) Execute(ctx context.Context, rc RequestContext, tc llm.ToolCall) ToolResult {
	call, err := ParseCall(tc)
	if err != nil {
		e.metrics.RecordToolCall(true, nil)
		return ToolResult{ToolCallID: tc.ID, Name: tc.Name, Reason: err.Error()}
	}

	result := e.dispatch(ctx, rc, call)
	result.ToolCallID = tc.ID
	result.Name = tc.Name

	if result.Success {
		e.metrics.RecordToolCall(false, nil)
	} else {
		e.metrics.RecordToolCall(false, errors.New(result.Reason))
	}
	return result
}

func (e *ToolExecutor) dispatch(ctx context.Context, rc RequestContext, call Call) ToolResult {
	switch v := call.(type) {
	case GetContextCall:
		return e.getContext(ctx, rc)
	case ListDocumentsCall:
		return e.listDocuments(ctx, rc)
	case GetDocumentCall:
		return e.getDocument(ctx, rc, v)
	case SetPageCall:
		return e.setPage(ctx, rc, v)
	case SearchCall:
		return e.search(ctx, rc, v)
	case ReadDocumentCall:
		return e.readDocument(ctx, rc, v)
	case NavigateSearchCall:
		return e.navigateSearch(ctx, rc, v)
	default:
		// Unreachable with the closed Call set.
		return ToolResult{Reason: fmt.Sprintf("unhandled capability: %s", call.name())}
	}
}

func (e *ToolExecutor) getContext(ctx context.Context, rc RequestContext) ToolResult {
	cc, err := e.contexts.Get(ctx, rc.ConversationID)
	if err != nil {
		return ToolResult{Reason: err.Error()}
	}
	return ToolResult{Success: true, Payload: ContextPayload{
		ActiveDocumentID: cc.ActiveDocumentID,
		CurrentPage:      cc.CurrentPage,
	}}
}

func (e *ToolExecutor) listDocuments(ctx context.Context, rc RequestContext) ToolResult {
	var docs []*model.Document
	var err error

	if rc.ConversationID != "" {
		docs, err = e.docs.ListByChat(ctx, rc.ConversationID)
	}
	if err == nil && len(docs) == 0 {
		_, docs, err = e.docs.List(ctx, 0, listDocumentsLimit)
	}
	if err != nil {
		return ToolResult{Reason: err.Error()}
	}

	payload := make([]DocumentPayload, 0, len(docs))
	for _, d := range docs {
		payload = append(payload, DocumentPayload{
			ID:          d.ID,
			DisplayName: d.DisplayName,
			Filename:    d.Filename,
			PageCount:   d.PageCount,
		})
	}
	return ToolResult{Success: true, Payload: payload}
}

func (e *ToolExecutor) getDocument(ctx context.Context, rc RequestContext, call GetDocumentCall) ToolResult {
	doc, result := e.resolveDocument(ctx, rc, call.DocumentID)
	if doc == nil {
		return result
	}
	return ToolResult{Success: true, Payload: DocumentPayload{
		ID:          doc.ID,
		DisplayName: doc.DisplayName,
		Filename:    doc.Filename,
		PageCount:   doc.PageCount,
	}}
}

func (e *ToolExecutor) setPage(ctx context.Context, rc RequestContext, call SetPageCall) ToolResult {
	doc, result := e.resolveDocument(ctx, rc, call.DocumentID)
	if doc == nil {
		return result
	}

	if rejected, ok := e.checkPageBounds(doc, call.Page); !ok {
		return rejected
	}

	if err := e.contexts.Set(ctx, &model.ConversationContext{
		ConversationID:   rc.ConversationID,
		ActiveDocumentID: doc.ID,
		CurrentPage:      call.Page,
	}); err != nil {
		return ToolResult{Reason: err.Error()}
	}

	return ToolResult{Success: true, Payload: NavigatePayload{DocumentID: doc.ID, Page: call.Page}}
}

func (e *ToolExecutor) search(ctx context.Context, rc RequestContext, call SearchCall) ToolResult {
	doc, result := e.resolveDocument(ctx, rc, call.DocumentID)
	if doc == nil {
		return result
	}
	if doc.Text == "" {
		return ToolResult{Reason: "document has no extractable text"}
	}

	topK := call.TopK
	if topK <= 0 {
		topK = e.topK
	}
	chunks := Segment(doc.Text, doc.PageCount)
	snippets := e.ranker.Rank(ctx, call.Query, chunks, topK)
	return ToolResult{Success: true, Payload: SearchPayload{
		DocumentID: doc.ID,
		Query:      call.Query,
		Results:    snippets,
	}}
}

func (e *ToolExecutor) readDocument(ctx context.Context, rc RequestContext, call ReadDocumentCall) ToolResult {
	doc, result := e.resolveDocument(ctx, rc, call.DocumentID)
	if doc == nil {
		return result
	}
	if doc.Text == "" {
		return ToolResult{Reason: "document has no extractable text"}
	}

	text := doc.Text
	if len(text) > readDocumentMaxLen {
		text = text[:readDocumentMaxLen]
	}
	return ToolResult{Success: true, Payload: ReadPayload{
		DocumentID: doc.ID,
		PageCount:  doc.PageCount,
		Text:       text,
	}}
}

func (e *ToolExecutor) navigateSearch(ctx context.Context, rc RequestContext, call NavigateSearchCall) ToolResult {
	doc, result := e.resolveDocument(ctx, rc, call.DocumentID)
	if doc == nil {
		return result
	}

	if rejected, ok := e.checkPageBounds(doc, call.Page); !ok {
		return rejected
	}

	if err := e.contexts.Set(ctx, &model.ConversationContext{
		ConversationID:   rc.ConversationID,
		ActiveDocumentID: doc.ID,
		CurrentPage:      call.Page,
	}); err != nil {
		return ToolResult{Reason: err.Error()}
	}

	payload := NavigatePayload{DocumentID: doc.ID, Page: call.Page}
	if call.Query != "" && doc.Text != "" {
		chunks := Segment(doc.Text, doc.PageCount)
		payload.Results = e.ranker.Rank(ctx, call.Query, chunks, e.topK)
	}
	return ToolResult{Success: true, Payload: payload}
}

// resolveDocument loads the call's document, falling back to the
// active document. A nil document means the returned ToolResult is the
// failure to hand back.
func (e *ToolExecutor) resolveDocument(ctx context.Context, rc RequestContext, documentID string) (*model.Document, ToolResult) {
	if documentID == "" {
		documentID = rc.ActiveDocumentID
	}
	if documentID == "" {
		return nil, ToolResult{Reason: "no document specified and no active document"}
	}

	doc, err := e.docs.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ToolResult{Reason: fmt.Sprintf("document not found: %s", documentID)}
		}
		return nil, ToolResult{Reason: err.Error()}
	}
	return doc, ToolResult{}
}

// checkPageBounds rejects navigation outside [1, PageCount] without
// touching stored state. The bool reports whether the page is valid.
func (e *ToolExecutor) checkPageBounds(doc *model.Document, page int) (ToolResult, bool) {
	maxPages := doc.PageCount
	if maxPages < 1 {
		maxPages = 1
	}
	if page < 1 || page > maxPages {
		return ToolResult{
			Reason:  fmt.Sprintf("Page %d does not exist. This PDF has only %d pages.", page, maxPages),
			Payload: PageBoundPayload{MaxPages: maxPages},
		}, false
	}
	return ToolResult{}, true
}
