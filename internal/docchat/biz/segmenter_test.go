package biz

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentWithMarkers(t *testing.T) {
	chunks := Segment("A\fB\fC", 99)

	require.Len(t, chunks, 3)
	assert.Equal(t, "A", chunks[0].Text)
	assert.Equal(t, "B", chunks[1].Text)
	assert.Equal(t, "C", chunks[2].Text)
	for i, c := range chunks {
		assert.Equal(t, i+1, c.Page)
	}
}

func TestSegmentWithoutMarkers(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		pageCount int
	}{
		{
			name:      "plain prose",
			text:      strings.Repeat("The quick brown fox jumps over the lazy dog. ", 120),
			pageCount: 5,
		},
		{
			name:      "paragraph breaks only",
			text:      strings.Repeat("lorem ipsum dolor sit amet\n\n", 80),
			pageCount: 4,
		},
		{
			name:      "no break characters at all",
			text:      strings.Repeat("x", 3000),
			pageCount: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Segment(tt.text, tt.pageCount)

			require.Len(t, chunks, tt.pageCount)
			var rebuilt strings.Builder
			for i, c := range chunks {
				assert.Equal(t, i+1, c.Page)
				rebuilt.WriteString(c.Text)
			}
			// The chunks partition the text with nothing dropped.
			assert.Equal(t, tt.text, rebuilt.String())
		})
	}
}

func TestSegmentPrefersSentenceBoundary(t *testing.T) {
	// Two sentences of equal length: the boundary near the midpoint
	// should land right after the period, not mid-word.
	text := strings.Repeat("a", 95) + ". " + strings.Repeat("b", 95)
	chunks := Segment(text, 2)

	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "."))
	assert.True(t, strings.HasPrefix(chunks[1].Text, " b"))
}

func TestSegmentEdgeCases(t *testing.T) {
	t.Run("zero page count treated as one", func(t *testing.T) {
		chunks := Segment("hello", 0)
		require.Len(t, chunks, 1)
		assert.Equal(t, 1, chunks[0].Page)
		assert.Equal(t, "hello", chunks[0].Text)
	})

	t.Run("negative page count treated as one", func(t *testing.T) {
		chunks := Segment("hello", -3)
		require.Len(t, chunks, 1)
	})

	t.Run("empty text yields single empty chunk", func(t *testing.T) {
		chunks := Segment("", 7)
		require.Len(t, chunks, 1)
		assert.Equal(t, 1, chunks[0].Page)
		assert.Equal(t, "", chunks[0].Text)
	})

	t.Run("page count larger than text length", func(t *testing.T) {
		chunks := Segment("ab", 10)
		require.Len(t, chunks, 10)
		var rebuilt strings.Builder
		for _, c := range chunks {
			rebuilt.WriteString(c.Text)
		}
		assert.Equal(t, "ab", rebuilt.String())
	})
}
