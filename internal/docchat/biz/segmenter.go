package biz

import (
	"strings"

	"github.com/kart-io/docchat/internal/docchat/model"
	"github.com/kart-io/docchat/pkg/extractor"
)

// boundaryWindow is how far segmentation looks around an estimated
// page boundary for a sentence or paragraph break.
const boundaryWindow = 200

// Segment splits extracted text into page-aligned chunks.
//
// When the text carries explicit page separators the split is exact
// and the segment count overrides declaredPageCount. Otherwise page
// boundaries are estimated from the average page length, nudged to the
// nearest sentence terminator or paragraph break within the window.
// The chunks partition the input: concatenating their texts yields the
// original text.
func Segment(text string, declaredPageCount int) []model.Chunk {
	if strings.Contains(text, extractor.PageSeparator) {
		parts := strings.Split(text, extractor.PageSeparator)
		chunks := make([]model.Chunk, len(parts))
		for i, part := range parts {
			chunks[i] = model.Chunk{Page: i + 1, Text: strings.TrimSpace(part)}
		}
		return chunks
	}

	if declaredPageCount <= 0 {
		declaredPageCount = 1
	}
	if text == "" {
		return []model.Chunk{{Page: 1, Text: ""}}
	}

	avg := len(text) / declaredPageCount
	if avg == 0 {
		avg = 1
	}

	chunks := make([]model.Chunk, 0, declaredPageCount)
	start := 0
	for page := 1; page <= declaredPageCount; page++ {
		if page == declaredPageCount {
			// The last page absorbs whatever remains.
			chunks = append(chunks, model.Chunk{Page: page, Text: text[start:]})
			break
		}

		end := page * avg
		if end < start {
			end = start
		}
		if end > len(text) {
			end = len(text)
		}
		if end > start && end < len(text) {
			end = refineBoundary(text, start, end)
		}

		chunks = append(chunks, model.Chunk{Page: page, Text: text[start:end]})
		start = end
	}

	return chunks
}

// refineBoundary moves an estimated boundary to the nearest sentence
// terminator, or failing that a paragraph break, within the search
// window. The naive boundary is kept when neither is found.
func refineBoundary(text string, start, naiveEnd int) int {
	searchStart := naiveEnd - boundaryWindow
	if searchStart < start {
		searchStart = start
	}
	searchEnd := naiveEnd + boundaryWindow
	if searchEnd > len(text) {
		searchEnd = len(text)
	}

	window := text[searchStart:searchEnd]

	if idx := strings.LastIndex(window, ". "); idx >= 0 {
		if cut := searchStart + idx + 1; cut > start {
			return cut
		}
	}
	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
		if cut := searchStart + idx + 2; cut > start {
			return cut
		}
	}
	return naiveEnd
}
