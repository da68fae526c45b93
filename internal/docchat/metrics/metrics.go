// Package metrics collects business metrics for the docchat service.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks docchat business counters.
type Metrics struct {
	// question answering
	questionsTotal  uint64
	questionsErrors uint64
	fallbacksTotal  uint64 // fixed-sentence terminal answers

	// tool execution
	toolCallsTotal    uint64
	toolCallsRejected uint64 // unknown tool or invalid arguments
	toolCallsErrors   uint64

	// retrieval
	searchesTotal    uint64
	searchesSemantic uint64 // served by the embedding path
	searchesLexical  uint64 // served by the token-overlap path

	// LLM calls
	llmCallsTotal    uint64
	llmCallsDuration float64 // seconds
	llmCallsErrors   uint64

	// citation guardrail
	guardrailRegens uint64 // regenerations triggered by missing citations

	// document intake
	documentsRegistered uint64
	extractionErrors    uint64

	startTime  time.Time
	durationMu sync.Mutex
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Get returns the global metrics instance.
func Get() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			startTime: time.Now(),
		}
	})
	return globalMetrics
}

// RecordQuestion records one answered question.
func (m *Metrics) RecordQuestion(err error) {
	atomic.AddUint64(&m.questionsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.questionsErrors, 1)
	}
}

// RecordFallback records a fixed-sentence terminal answer.
func (m *Metrics) RecordFallback() {
	atomic.AddUint64(&m.fallbacksTotal, 1)
}

// RecordToolCall records one tool execution.
func (m *Metrics) RecordToolCall(rejected bool, err error) {
	atomic.AddUint64(&m.toolCallsTotal, 1)
	if rejected {
		atomic.AddUint64(&m.toolCallsRejected, 1)
		return
	}
	if err != nil {
		atomic.AddUint64(&m.toolCallsErrors, 1)
	}
}

// RecordSearch records one retrieval, tagged by which ranking path
// served it.
func (m *Metrics) RecordSearch(semantic bool) {
	atomic.AddUint64(&m.searchesTotal, 1)
	if semantic {
		atomic.AddUint64(&m.searchesSemantic, 1)
	} else {
		atomic.AddUint64(&m.searchesLexical, 1)
	}
}

// RecordLLMCall records one model invocation.
func (m *Metrics) RecordLLMCall(duration time.Duration, err error) {
	atomic.AddUint64(&m.llmCallsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.llmCallsErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.llmCallsDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordGuardrailRegen records a citation-triggered regeneration.
func (m *Metrics) RecordGuardrailRegen() {
	atomic.AddUint64(&m.guardrailRegens, 1)
}

// RecordDocumentRegistered records a successful document intake.
func (m *Metrics) RecordDocumentRegistered() {
	atomic.AddUint64(&m.documentsRegistered, 1)
}

// RecordExtractionError records a failed text extraction.
func (m *Metrics) RecordExtractionError() {
	atomic.AddUint64(&m.extractionErrors, 1)
}

// Export renders the counters in Prometheus text format.
func (m *Metrics) Export(namespace, subsystem string) string {
	var sb strings.Builder
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	counter := func(name, help string, value uint64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s counter\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %d\n\n", prefix, name, value))
	}

	counter("questions_total", "Total questions answered.", atomic.LoadUint64(&m.questionsTotal))
	counter("questions_errors_total", "Number of failed questions.", atomic.LoadUint64(&m.questionsErrors))
	counter("fallbacks_total", "Number of fixed-sentence answers.", atomic.LoadUint64(&m.fallbacksTotal))
	counter("tool_calls_total", "Total tool executions.", atomic.LoadUint64(&m.toolCallsTotal))
	counter("tool_calls_rejected_total", "Tool calls rejected before execution.", atomic.LoadUint64(&m.toolCallsRejected))
	counter("tool_calls_errors_total", "Tool executions that failed.", atomic.LoadUint64(&m.toolCallsErrors))
	counter("searches_total", "Total retrievals.", atomic.LoadUint64(&m.searchesTotal))
	counter("searches_semantic_total", "Retrievals served by embeddings.", atomic.LoadUint64(&m.searchesSemantic))
	counter("searches_lexical_total", "Retrievals served by token overlap.", atomic.LoadUint64(&m.searchesLexical))
	counter("llm_calls_total", "Total LLM calls.", atomic.LoadUint64(&m.llmCallsTotal))
	counter("llm_calls_errors_total", "Number of LLM call errors.", atomic.LoadUint64(&m.llmCallsErrors))
	counter("guardrail_regens_total", "Citation-triggered regenerations.", atomic.LoadUint64(&m.guardrailRegens))
	counter("documents_registered_total", "Documents registered.", atomic.LoadUint64(&m.documentsRegistered))
	counter("extraction_errors_total", "Failed text extractions.", atomic.LoadUint64(&m.extractionErrors))

	m.durationMu.Lock()
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()

	sb.WriteString(fmt.Sprintf("# HELP %s_llm_calls_duration_seconds_total Total LLM call duration.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_llm_calls_duration_seconds_total counter\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_llm_calls_duration_seconds_total %.6f\n\n", prefix, llmDuration))

	uptime := time.Since(m.startTime).Seconds()
	sb.WriteString(fmt.Sprintf("# HELP %s_uptime_seconds Service uptime in seconds.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_uptime_seconds gauge\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_uptime_seconds %.2f\n\n", prefix, uptime))

	return sb.String()
}

// Stats returns the current counters for the stats API.
func (m *Metrics) Stats() map[string]interface{} {
	m.durationMu.Lock()
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()

	llmTotal := atomic.LoadUint64(&m.llmCallsTotal)
	avgLLMDuration := 0.0
	if llmTotal > 0 {
		avgLLMDuration = llmDuration / float64(llmTotal)
	}

	searchesTotal := atomic.LoadUint64(&m.searchesTotal)
	semantic := atomic.LoadUint64(&m.searchesSemantic)
	semanticRate := 0.0
	if searchesTotal > 0 {
		semanticRate = float64(semantic) / float64(searchesTotal)
	}

	return map[string]interface{}{
		"questions": map[string]interface{}{
			"total":     atomic.LoadUint64(&m.questionsTotal),
			"errors":    atomic.LoadUint64(&m.questionsErrors),
			"fallbacks": atomic.LoadUint64(&m.fallbacksTotal),
		},
		"tools": map[string]interface{}{
			"calls_total": atomic.LoadUint64(&m.toolCallsTotal),
			"rejected":    atomic.LoadUint64(&m.toolCallsRejected),
			"errors":      atomic.LoadUint64(&m.toolCallsErrors),
		},
		"searches": map[string]interface{}{
			"total":         searchesTotal,
			"semantic":      semantic,
			"lexical":       atomic.LoadUint64(&m.searchesLexical),
			"semantic_rate": semanticRate,
		},
		"llm": map[string]interface{}{
			"calls_total":         llmTotal,
			"total_duration_secs": llmDuration,
			"avg_duration_secs":   avgLLMDuration,
			"errors":              atomic.LoadUint64(&m.llmCallsErrors),
		},
		"guardrail": map[string]interface{}{
			"regens": atomic.LoadUint64(&m.guardrailRegens),
		},
		"documents": map[string]interface{}{
			"registered":        atomic.LoadUint64(&m.documentsRegistered),
			"extraction_errors": atomic.LoadUint64(&m.extractionErrors),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset clears all counters. Intended for tests.
func (m *Metrics) Reset() {
	atomic.StoreUint64(&m.questionsTotal, 0)
	atomic.StoreUint64(&m.questionsErrors, 0)
	atomic.StoreUint64(&m.fallbacksTotal, 0)
	atomic.StoreUint64(&m.toolCallsTotal, 0)
	atomic.StoreUint64(&m.toolCallsRejected, 0)
	atomic.StoreUint64(&m.toolCallsErrors, 0)
	atomic.StoreUint64(&m.searchesTotal, 0)
	atomic.StoreUint64(&m.searchesSemantic, 0)
	atomic.StoreUint64(&m.searchesLexical, 0)
	atomic.StoreUint64(&m.llmCallsTotal, 0)
	atomic.StoreUint64(&m.llmCallsErrors, 0)
	atomic.StoreUint64(&m.guardrailRegens, 0)
	atomic.StoreUint64(&m.documentsRegistered, 0)
	atomic.StoreUint64(&m.extractionErrors, 0)

	m.durationMu.Lock()
	m.llmCallsDuration = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
