package biz

import (
	"context"
	"sort"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docchat/internal/docchat/metrics"
	"github.com/kart-io/docchat/internal/docchat/model"
	"github.com/kart-io/docchat/internal/pkg/textutil"
	"github.com/kart-io/docchat/pkg/llm"
)

const (
	// DefaultTopK is the number of snippets returned when the caller
	// does not ask for a specific count.
	DefaultTopK = 3

	// snippetMaxLen caps snippet length. Ranking always sees the full
	// chunk text; truncation happens on the way out.
	snippetMaxLen = 1200
)

// Ranker scores chunks against a query. The semantic path is tried
// first when an embedding provider is configured; the lexical path
// always produces a result and serves as the fallback.
type Ranker struct {
	embedder llm.EmbeddingProvider
	metrics  *metrics.Metrics
}

// NewRanker creates a Ranker. A nil embedder disables the semantic
// path entirely.
func NewRanker(embedder llm.EmbeddingProvider) *Ranker {
	return &Ranker{
		embedder: embedder,
		metrics:  metrics.Get(),
	}
}

type scoredChunk struct {
	chunk model.Chunk
	score float64
}

// Rank returns the topK most relevant chunks as trimmed, truncated
// snippets in descending relevance order. Embedding unavailability is
// a routing signal, not an error: the lexical path answers instead.
func (r *Ranker) Rank(ctx context.Context, query string, chunks []model.Chunk, topK int) []model.RankedSnippet {
	if len(chunks) == 0 {
		return nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > len(chunks) {
		topK = len(chunks)
	}

	scored, semantic := r.rankSemantic(ctx, query, chunks)
	if !semantic {
		scored = rankLexical(query, chunks)
	}
	r.metrics.RecordSearch(semantic)

	// Stable sort keeps original page order on ties.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	snippets := make([]model.RankedSnippet, 0, topK)
	for _, sc := range scored[:topK] {
		snippets = append(snippets, model.RankedSnippet{
			Page:    sc.chunk.Page,
			Snippet: textutil.TruncateRunes(strings.TrimSpace(sc.chunk.Text), snippetMaxLen),
			Score:   sc.score,
		})
	}
	return snippets
}

// rankSemantic scores chunks by cosine similarity to the query
// embedding. The bool reports availability: false means the caller
// must use the lexical path.
func (r *Ranker) rankSemantic(ctx context.Context, query string, chunks []model.Chunk) ([]scoredChunk, bool) {
	if r.embedder == nil {
		return nil, false
	}

	texts := make([]string, 0, len(chunks)+1)
	texts = append(texts, query)
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}

	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		logger.Warnw("embedding request failed, falling back to lexical ranking", "error", err.Error())
		return nil, false
	}
	if len(vectors) != len(texts) || len(vectors[0]) == 0 {
		logger.Warnw("embedding response incomplete, falling back to lexical ranking",
			"expected", len(texts), "got", len(vectors))
		return nil, false
	}

	queryVec := vectors[0]
	scored := make([]scoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = scoredChunk{
			chunk: c,
			score: textutil.CosineSimilarity(queryVec, vectors[i+1]),
		}
	}
	return scored, true
}

// rankLexical scores chunks by query-token hit rate.
func rankLexical(query string, chunks []model.Chunk) []scoredChunk {
	scored := make([]scoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = scoredChunk{
			chunk: c,
			score: textutil.LexicalScore(query, c.Text),
		}
	}
	return scored
}
