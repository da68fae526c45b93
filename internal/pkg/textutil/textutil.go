// Package textutil provides text processing helpers shared by the
// retrieval pipeline.
package textutil

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Tokenize lowercases s, replaces every rune outside [a-z0-9], the CJK
// unified block and whitespace with a space, and splits on whitespace.
// Empty tokens are dropped.
func Tokenize(s string) []string {
	lowered := strings.ToLower(s)
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r >= '一' && r <= '龥':
			return r
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			return r
		default:
			return ' '
		}
	}, lowered)
	return strings.Fields(mapped)
}

// LexicalScore scores text against a query as the fraction of the
// text's tokens that appear in the query's token set. A hit-rate, not a
// normalized similarity: shorter texts with proportionally more query
// terms score higher.
func LexicalScore(query, text string) float64 {
	querySet := make(map[string]struct{})
	for _, tok := range Tokenize(query) {
		querySet[tok] = struct{}{}
	}

	tokens := Tokenize(text)
	hits := 0
	for _, tok := range tokens {
		if _, ok := querySet[tok]; ok {
			hits++
		}
	}

	denom := len(tokens)
	if denom < 1 {
		denom = 1
	}
	return float64(hits) / float64(denom)
}

// minNorm floors the norm product in CosineSimilarity so degenerate
// all-zero vectors divide cleanly to zero.
const minNorm = 1e-9

// CosineSimilarity computes dot(a,b) / (|a|*|b|). Mismatched or empty
// vectors score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	norm := math.Sqrt(normA) * math.Sqrt(normB)
	if norm < minNorm {
		return 0
	}
	return dot / norm
}

// TruncateRunes truncates s to at most maxLen Unicode characters.
func TruncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}
