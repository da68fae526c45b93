package biz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docchat/internal/docchat/model"
)

type fakeEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		return f.vectors, nil
	}
	return make([][]float32, len(texts)), nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) Name() string { return "fake" }

func testChunks() []model.Chunk {
	return []model.Chunk{
		{Page: 1, Text: "the cat sat"},
		{Page: 2, Text: "dogs bark loudly"},
		{Page: 3, Text: "cat food is tasty"},
	}
}

func TestRankLexical(t *testing.T) {
	ranker := NewRanker(nil)

	results := ranker.Rank(context.Background(), "cat food", testChunks(), 2)

	require.Len(t, results, 2)
	// "cat food is tasty" scores 2/4 = 0.5, "the cat sat" 1/3.
	assert.Equal(t, 3, results[0].Page)
	assert.Equal(t, "cat food is tasty", results[0].Snippet)
	assert.Equal(t, 1, results[1].Page)
}

func TestRankLexicalDeterministic(t *testing.T) {
	ranker := NewRanker(nil)

	first := ranker.Rank(context.Background(), "cat food", testChunks(), 3)
	second := ranker.Rank(context.Background(), "cat food", testChunks(), 3)
	assert.Equal(t, first, second)
}

func TestRankTiesKeepPageOrder(t *testing.T) {
	ranker := NewRanker(nil)
	chunks := []model.Chunk{
		{Page: 1, Text: "alpha beta"},
		{Page: 2, Text: "alpha beta"},
		{Page: 3, Text: "gamma delta"},
	}

	results := ranker.Rank(context.Background(), "alpha", chunks, 2)

	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Page)
	assert.Equal(t, 2, results[1].Page)
}

func TestRankTopKClamped(t *testing.T) {
	ranker := NewRanker(nil)

	results := ranker.Rank(context.Background(), "cat", testChunks(), 10)
	assert.Len(t, results, 3)

	results = ranker.Rank(context.Background(), "cat", testChunks(), 0)
	assert.Len(t, results, DefaultTopK)

	assert.Nil(t, ranker.Rank(context.Background(), "cat", nil, 3))
}

func TestRankSemantic(t *testing.T) {
	embedder := &fakeEmbedder{
		vectors: [][]float32{
			{1, 0},     // query
			{0, 1},     // page 1, orthogonal
			{1, 0},     // page 2, identical
			{0.7, 0.7}, // page 3, halfway
		},
	}
	ranker := NewRanker(embedder)

	results := ranker.Rank(context.Background(), "anything", testChunks(), 2)

	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Page)
	assert.Equal(t, 3, results[1].Page)
	assert.Equal(t, 1, embedder.calls)
}

func TestRankDegradesSilently(t *testing.T) {
	tests := []struct {
		name     string
		embedder *fakeEmbedder
	}{
		{name: "provider error", embedder: &fakeEmbedder{err: errors.New("connection refused")}},
		{name: "empty vectors", embedder: &fakeEmbedder{vectors: [][]float32{{}, {}, {}, {}}}},
		{name: "wrong count", embedder: &fakeEmbedder{vectors: [][]float32{{1, 0}}}},
	}

	lexical := NewRanker(nil).Rank(context.Background(), "cat food", testChunks(), 2)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranker := NewRanker(tt.embedder)
			results := ranker.Rank(context.Background(), "cat food", testChunks(), 2)
			// Degraded output must match the lexical path exactly.
			assert.Equal(t, lexical, results)
		})
	}
}

func TestRankSnippetTruncation(t *testing.T) {
	long := "  " + strings.Repeat("word ", 400) // well past the snippet cap
	ranker := NewRanker(nil)

	results := ranker.Rank(context.Background(), "word", []model.Chunk{{Page: 1, Text: long}}, 1)

	require.Len(t, results, 1)
	assert.LessOrEqual(t, len(results[0].Snippet), 1200)
	assert.False(t, strings.HasPrefix(results[0].Snippet, " "))
}
