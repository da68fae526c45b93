package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsSingleton(t *testing.T) {
	m1 := Get()
	m2 := Get()
	assert.Same(t, m1, m2)
}

func TestRecordAndStats(t *testing.T) {
	m := Get()
	m.Reset()

	m.RecordQuestion(nil)
	m.RecordQuestion(errors.New("boom"))
	m.RecordFallback()
	m.RecordToolCall(false, nil)
	m.RecordToolCall(true, nil)
	m.RecordToolCall(false, errors.New("page out of range"))
	m.RecordSearch(true)
	m.RecordSearch(false)
	m.RecordSearch(false)
	m.RecordLLMCall(200*time.Millisecond, nil)
	m.RecordLLMCall(0, errors.New("timeout"))
	m.RecordGuardrailRegen()
	m.RecordDocumentRegistered()
	m.RecordExtractionError()

	stats := m.Stats()

	questions := stats["questions"].(map[string]interface{})
	assert.Equal(t, uint64(2), questions["total"])
	assert.Equal(t, uint64(1), questions["errors"])
	assert.Equal(t, uint64(1), questions["fallbacks"])

	tools := stats["tools"].(map[string]interface{})
	assert.Equal(t, uint64(3), tools["calls_total"])
	assert.Equal(t, uint64(1), tools["rejected"])
	assert.Equal(t, uint64(1), tools["errors"])

	searches := stats["searches"].(map[string]interface{})
	assert.Equal(t, uint64(3), searches["total"])
	assert.Equal(t, uint64(1), searches["semantic"])
	assert.Equal(t, uint64(2), searches["lexical"])
	assert.InDelta(t, 1.0/3.0, searches["semantic_rate"].(float64), 0.001)

	llm := stats["llm"].(map[string]interface{})
	assert.Equal(t, uint64(2), llm["calls_total"])
	assert.Equal(t, uint64(1), llm["errors"])

	guardrail := stats["guardrail"].(map[string]interface{})
	assert.Equal(t, uint64(1), guardrail["regens"])
}

func TestExportFormat(t *testing.T) {
	m := Get()
	m.Reset()

	m.RecordQuestion(nil)
	m.RecordGuardrailRegen()

	out := m.Export("docchat", "biz")
	assert.Contains(t, out, "# TYPE docchat_biz_questions_total counter")
	assert.Contains(t, out, "docchat_biz_questions_total 1")
	assert.Contains(t, out, "docchat_biz_guardrail_regens_total 1")
	assert.Contains(t, out, "# TYPE docchat_biz_uptime_seconds gauge")
}

func TestConcurrentRecording(t *testing.T) {
	m := Get()
	m.Reset()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordQuestion(nil)
			m.RecordToolCall(false, nil)
			m.RecordLLMCall(time.Millisecond, nil)
		}()
	}
	wg.Wait()

	stats := m.Stats()
	questions := stats["questions"].(map[string]interface{})
	assert.Equal(t, uint64(50), questions["total"])
	tools := stats["tools"].(map[string]interface{})
	assert.Equal(t, uint64(50), tools["calls_total"])
}
