// Package extractor turns uploaded PDF bytes into text suitable for
// page-aligned chunking.
package extractor

import (
	"bytes"
	"context"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageSeparator joins per-page text in Result.Text so downstream
// segmentation can recover exact page boundaries.
const PageSeparator = "\f"

// Result is the outcome of one extraction attempt. Failures are
// reported as a value, not an error: the caller decides whether a
// document without text is still usable.
type Result struct {
	// Success reports whether any text was recovered.
	Success bool

	// Text is the full document text with pages joined by
	// PageSeparator. Empty when Success is false.
	Text string

	// PageCount is the number of pages in the document, when known.
	// It can be non-zero even when Success is false.
	PageCount int

	// Reason describes why extraction produced no text.
	Reason string
}

// Extractor parses PDF payloads.
type Extractor interface {
	// Extract parses raw PDF bytes into per-page text.
	Extract(ctx context.Context, data []byte) Result
}

type pdfExtractor struct{}

// NewPDF returns the ledongthuc/pdf backed extractor.
func NewPDF() Extractor {
	return &pdfExtractor{}
}

// Extract parses raw PDF bytes. Pages that cannot be decoded are kept
// as empty strings so page numbering stays aligned with the source
// document. A parse panic from malformed input is converted into a
// failed Result.
func (e *pdfExtractor) Extract(ctx context.Context, data []byte) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Reason: "malformed PDF payload"}
		}
	}()

	if len(data) == 0 {
		return Result{Reason: "empty payload"}
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{Reason: "failed to parse PDF: " + err.Error()}
	}

	pageCount := reader.NumPage()
	if pageCount == 0 {
		return Result{Reason: "PDF has no pages"}
	}

	pages := make([]string, 0, pageCount)
	hasText := false

	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return Result{PageCount: pageCount, Reason: err.Error()}
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Keep the slot so later pages keep their numbers.
			pages = append(pages, "")
			continue
		}

		text = strings.TrimSpace(text)
		if text != "" {
			hasText = true
		}
		pages = append(pages, text)
	}

	if !hasText {
		return Result{PageCount: pageCount, Reason: "no extractable text"}
	}

	return Result{
		Success:   true,
		Text:      strings.Join(pages, PageSeparator),
		PageCount: pageCount,
	}
}
