package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"

	"github.com/kart-io/docchat/internal/docchat/metrics"
	"github.com/kart-io/docchat/internal/docchat/model"
	"github.com/kart-io/docchat/internal/pkg/textutil"
	"github.com/kart-io/docchat/pkg/llm"
)

// The two fixed terminal sentences. Every failure path in the pipeline
// resolves to a degraded answer or one of these.
const (
	// NotFoundAnswer is returned when the document yields no usable
	// evidence for the question.
	NotFoundAnswer = "I couldn't find this in the PDF."

	// ApologyAnswer is the last-resort reply when every pathway
	// produced emptiness.
	ApologyAnswer = "I apologize, but I couldn't generate a response. Please try again."
)

// recoverSnippetLen caps the snippet quoted in a synthesized answer.
const recoverSnippetLen = 200

const systemPolicy = `You are an assistant that answers questions about the user's PDF documents.
Always use the provided tools to look up document content before answering; never answer from memory.
Ground every claim in the document and include inline page citations like (p. N).
If the document does not contain the answer, reply: I couldn't find this in the PDF.`

// buildSystemPrompt appends the active document's identity and page
// bound to the base policy so the model cites within range.
func buildSystemPrompt(rc RequestContext) string {
	if rc.ActiveDocumentID == "" {
		return systemPolicy
	}

	pages := rc.PageCount
	if pages < 1 {
		pages = 1
	}
	name := rc.DocumentName
	if name == "" {
		name = rc.ActiveDocumentID
	}
	prompt := systemPolicy + fmt.Sprintf("\nThe active document is %q. This PDF has %d pages; never cite a page outside 1-%d.", name, pages, pages)
	if rc.CurrentPage >= 1 {
		prompt += fmt.Sprintf(" The reader is currently viewing page %d.", rc.CurrentPage)
	}
	return prompt
}

// Orchestrator runs one forced tool-calling turn and guarantees a
// non-empty answer even when the model produces no text.
type Orchestrator struct {
	chat     llm.ChatProvider
	executor *ToolExecutor
	pool     *ants.Pool
	metrics  *metrics.Metrics
}

// NewOrchestrator creates an Orchestrator. The pool is optional; tool
// calls run inline without it.
func NewOrchestrator(chat llm.ChatProvider, executor *ToolExecutor, pool *ants.Pool) *Orchestrator {
	return &Orchestrator{
		chat:     chat,
		executor: executor,
		pool:     pool,
		metrics:  metrics.Get(),
	}
}

// Run drives one turn: invoke the model with the capability catalog,
// inspect its output, recover by executing tools when it returned
// calls but no text, and finish with a guaranteed non-empty candidate.
func (o *Orchestrator) Run(ctx context.Context, rc RequestContext) *model.AskResult {
	messages := make([]llm.Message, 0, len(rc.History))
	for _, msg := range rc.History {
		messages = append(messages, llm.Message{Role: llm.Role(msg.Role), Content: msg.Content})
	}

	start := time.Now()
	resp, err := o.chat.Chat(ctx, llm.ChatRequest{
		System:      buildSystemPrompt(rc),
		Messages:    messages,
		Tools:       Catalog(),
		ForceTools:  true,
		Temperature: 0,
	})
	o.metrics.RecordLLMCall(time.Since(start), err)
	if err != nil {
		logger.Errorw("model invocation failed", "conversation_id", rc.ConversationID, "error", err.Error())
		o.metrics.RecordFallback()
		return &model.AskResult{Message: ApologyAnswer, ToolCalls: []model.ToolRecord{}}
	}

	records := toolRecords(resp.ToolCalls)

	// Inspect: direct text wins and tool results are not needed for
	// the answer, but navigation calls still move the viewing state.
	candidate := strings.TrimSpace(resp.Text)
	if candidate != "" {
		o.applyNavigation(ctx, rc, resp.ToolCalls)
	}

	// Recover: no text but tool calls means we execute them and
	// synthesize an answer from the results.
	if candidate == "" && len(resp.ToolCalls) > 0 {
		results := o.executeAll(ctx, rc, resp.ToolCalls)
		candidate = o.synthesize(results)
	}

	// Terminal: nothing at all from the model.
	if candidate == "" {
		o.metrics.RecordFallback()
		candidate = ApologyAnswer
	}

	return &model.AskResult{Message: candidate, ToolCalls: records}
}

// applyNavigation executes the navigation-bearing calls from a turn
// that also produced text. Their page moves persist even though the
// results are discarded.
func (o *Orchestrator) applyNavigation(ctx context.Context, rc RequestContext, calls []llm.ToolCall) {
	for _, tc := range calls {
		if tc.Name != ToolSetPage && tc.Name != ToolNavigateSearch {
			continue
		}
		if result := o.executor.Execute(ctx, rc, tc); !result.Success {
			logger.Warnw("navigation alongside direct answer failed",
				"conversation_id", rc.ConversationID, "tool", tc.Name, "reason", result.Reason)
		}
	}
}

// executeAll runs every tool call concurrently. Each call's failure is
// isolated; the turn proceeds once all complete.
func (o *Orchestrator) executeAll(ctx context.Context, rc RequestContext, calls []llm.ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, tc := range calls {
		i, tc := i, tc
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = o.executor.Execute(ctx, rc, tc)
		}
		if o.pool != nil && o.pool.Submit(task) == nil {
			continue
		}
		task()
	}
	wg.Wait()

	return results
}

// synthesize builds a candidate answer directly from tool results
// without a second model call. Search evidence wins, then navigation
// evidence, then the fixed not-found sentence.
func (o *Orchestrator) synthesize(results []ToolResult) string {
	for _, result := range results {
		if !result.Success {
			continue
		}
		if payload, ok := result.Payload.(SearchPayload); ok && len(payload.Results) > 0 {
			return quoteSnippet(payload.Results[0])
		}
	}

	for _, result := range results {
		if !result.Success {
			continue
		}
		if payload, ok := result.Payload.(NavigatePayload); ok && len(payload.Results) > 0 {
			return quoteSnippet(payload.Results[0])
		}
	}

	o.metrics.RecordFallback()
	return NotFoundAnswer
}

// quoteSnippet renders one retrieval hit as a cited answer.
func quoteSnippet(snippet model.RankedSnippet) string {
	text := textutil.TruncateRunes(snippet.Snippet, recoverSnippetLen)
	return fmt.Sprintf("Based on the PDF content: %s... (p. %d).", text, snippet.Page)
}

func toolRecords(calls []llm.ToolCall) []model.ToolRecord {
	records := make([]model.ToolRecord, 0, len(calls))
	for _, tc := range calls {
		records = append(records, model.ToolRecord{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}
	return records
}
