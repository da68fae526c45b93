package biz

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docchat/internal/docchat/metrics"
	"github.com/kart-io/docchat/internal/docchat/model"
	"github.com/kart-io/docchat/pkg/llm"
)

// citationPattern matches an inline page citation like "(p. 7)".
var citationPattern = regexp.MustCompile(`(?i)\(p\.\s*\d+\)`)

const regenSystemPrompt = `Answer strictly using the provided PDF snippets. Do not describe your process or your tools.
Include inline page citations like (p. N).
If the snippets do not contain the answer, reply: I couldn't find this in the PDF.`

// Guardrail enforces that answers about an active document carry a
// page citation. It makes at most one corrective generation pass.
type Guardrail struct {
	chat    llm.ChatProvider
	ranker  *Ranker
	topK    int
	metrics *metrics.Metrics
}

// NewGuardrail creates a Guardrail sharing the pipeline's ranker.
// topK bounds the evidence snippets fed to the corrective pass.
func NewGuardrail(chat llm.ChatProvider, ranker *Ranker, topK int) *Guardrail {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Guardrail{
		chat:    chat,
		ranker:  ranker,
		topK:    topK,
		metrics: metrics.Get(),
	}
}

// Verify returns the final answer for a candidate. With no active
// document, or a candidate that already cites a page, the candidate
// passes through untouched with no extra calls. Otherwise ranking is
// re-run and one constrained regeneration is attempted; any failure
// keeps the candidate.
func (g *Guardrail) Verify(ctx context.Context, candidate string, doc *model.Document, lastQuery string) string {
	if doc == nil {
		return candidate
	}
	if citationPattern.MatchString(candidate) {
		return candidate
	}
	if strings.TrimSpace(doc.Text) == "" {
		return candidate
	}

	chunks := Segment(doc.Text, doc.PageCount)
	snippets := g.ranker.Rank(ctx, lastQuery, chunks, g.topK)
	if len(snippets) == 0 {
		return candidate
	}

	g.metrics.RecordGuardrailRegen()

	regenerated, err := g.chat.Generate(ctx, regenPrompt(snippets, lastQuery), regenSystemPrompt)
	if err != nil {
		logger.Warnw("guardrail regeneration failed, keeping candidate",
			"document_id", doc.ID, "error", err.Error())
		return candidate
	}
	if strings.TrimSpace(regenerated) == "" {
		return candidate
	}
	return regenerated
}

// regenPrompt lays out the evidence snippets and the question for the
// constrained pass.
func regenPrompt(snippets []model.RankedSnippet, question string) string {
	blocks := make([]string, 0, len(snippets)+1)
	for _, s := range snippets {
		blocks = append(blocks, fmt.Sprintf("Page %d: %s", s.Page, s.Snippet))
	}
	blocks = append(blocks, "Question: "+question)
	return strings.Join(blocks, "\n\n")
}
