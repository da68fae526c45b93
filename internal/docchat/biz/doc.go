// Package biz implements the document question-answering pipeline:
// page-aligned segmentation, relevance ranking, tool-driven
// orchestration, and the citation guardrail.
package biz
