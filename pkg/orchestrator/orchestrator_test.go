package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kejora-ai/orchestrator/pkg/gateway"
	"github.com/kejora-ai/orchestrator/pkg/pipeline"
	"github.com/kejora-ai/orchestrator/pkg/reasoning"
	"github.com/kejora-ai/orchestrator/pkg/streamproto"
	"github.com/kejora-ai/orchestrator/pkg/tools"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// dualCallModel mirrors pkg/pipeline's test fake: the Reasoner turn first
// (structured JSON, no tool calls), the Synthesizer turn second.
type dualCallModel struct {
	id      string
	calls   int
	results []gateway.ModelResult
}

func (m *dualCallModel) ID() string { return m.id }

func (m *dualCallModel) Send(ctx context.Context, messages []gateway.Message, schemas []gateway.ToolSchema) (gateway.ModelResult, error) {
	idx := m.calls
	if idx >= len(m.results) {
		idx = len(m.results) - 1
	}
	m.calls++
	return m.results[idx], nil
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	model := &dualCallModel{
		id: "m1",
		results: []gateway.ModelResult{
			{Text: `{"key_points":["PT PMA setup requires BKPM registration"],"warnings":[],"cost_estimates":[],"timeline_estimates":[],"suggestions":[]}`},
			{Text: "Setting up a PT PMA requires registering with BKPM and obtaining the required business licenses before operations can begin."},
		},
	}
	gw, err := gateway.New(&gateway.Config{
		Chains:           map[gateway.Tier][]gateway.Model{"default": {model}},
		CostCapUSD:       1.0,
		MaxFallbackDepth: 3,
		PerCallTimeout:   time.Second,
	})
	require.NoError(t, err)

	reasoner, err := pipeline.NewReasoner(gw, tools.NewRegistry(), reasoning.Config{SystemPrompt: "be precise", Tier: "default", MaxSteps: 1}, nil)
	require.NoError(t, err)

	calibrator := pipeline.NewCalibrator(nil, nil, nil)
	synthesizer := pipeline.NewSynthesizer(gw, pipeline.SynthesizerConfig{Tier: "default", MinChars: 1, MaxChars: 5000})

	p := pipeline.New(reasoner, calibrator, synthesizer)

	return New(Config{Pipeline: p})
}

// readSSEEvents parses `data: {...}\n\n` frames back into typed events.
func readSSEEvents(t *testing.T, raw []byte) []map[string]any {
	t.Helper()

	var events []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var parsed map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &parsed))
		events = append(events, parsed)
	}
	return events
}

// TestOrchestrator_StreamQuery_EventOrder verifies Testable Property 2: a
// status event opens the stream, a done event closes it, and no event
// type appears after done.
func TestOrchestrator_StreamQuery_EventOrder(t *testing.T) {
	o := newTestOrchestrator(t)

	envelope, err := types.NewQueryEnvelope(
		"what do I need to set up a PT PMA in Indonesia",
		"user-1", 1, "conv-1", "sess-1", "corr-1", nil,
	)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	sink, err := streamproto.NewSink(rec)
	require.NoError(t, err)

	err = o.StreamQuery(context.Background(), envelope, sink)
	require.NoError(t, err)

	events := readSSEEvents(t, rec.Body.Bytes())
	require.NotEmpty(t, events)

	assert.Equal(t, "status", events[0]["type"])
	assert.Equal(t, "done", events[len(events)-1]["type"], "the done event must be the terminal frame")

	for i, e := range events[:len(events)-1] {
		assert.NotEqual(t, "done", e["type"], "done must not appear before the final frame (index %d)", i)
	}
}

// TestOrchestrator_StreamQuery_Terminality verifies Testable Property 1:
// exactly one done event is ever emitted, and it is always the last frame
// on the stream.
func TestOrchestrator_StreamQuery_Terminality(t *testing.T) {
	o := newTestOrchestrator(t)

	envelope, err := types.NewQueryEnvelope(
		"what licenses does a PT PMA need before it can hire staff",
		"user-2", 1, "conv-2", "sess-2", "corr-2", nil,
	)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	sink, err := streamproto.NewSink(rec)
	require.NoError(t, err)

	require.NoError(t, o.StreamQuery(context.Background(), envelope, sink))

	events := readSSEEvents(t, rec.Body.Bytes())
	doneCount := 0
	for _, e := range events {
		if e["type"] == "done" {
			doneCount++
		}
	}
	assert.Equal(t, 1, doneCount, "exactly one done event must be emitted per stream")
	assert.Equal(t, "done", events[len(events)-1]["type"])
}

// TestOrchestrator_Query_SynchronousPathReturnsAnswer exercises the
// non-streaming surface end to end.
func TestOrchestrator_Query_SynchronousPathReturnsAnswer(t *testing.T) {
	o := newTestOrchestrator(t)

	envelope, err := types.NewQueryEnvelope(
		"what do I need to set up a PT PMA in Indonesia",
		"user-3", 1, "conv-3", "sess-3", "corr-3", nil,
	)
	require.NoError(t, err)

	answer, err := o.Query(context.Background(), envelope)
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Text)
}

func TestDetectAnswerLanguage(t *testing.T) {
	assert.Equal(t, "id", detectAnswerLanguage("apa yang dibutuhkan untuk membuat PT PMA dan bagaimana prosesnya"))
	assert.Equal(t, "en", detectAnswerLanguage("what do I need for a PT PMA"))
}

func TestRedactArgs(t *testing.T) {
	redacted := redactArgs(map[string]any{"api_key": "secret123", "query": "visa rules"})
	assert.Equal(t, "[redacted]", redacted["api_key"])
	assert.Equal(t, "visa rules", redacted["query"])
}

// TestOrchestrator_TruncateToTokenBudget_DropsOldestFirst verifies the
// oldest non-pinned messages are dropped first and the estimator's own
// budget is respected afterward.
func TestOrchestrator_TruncateToTokenBudget_DropsOldestFirst(t *testing.T) {
	tokenizer, err := gateway.NewCL100KTokenEstimator()
	require.NoError(t, err)

	o := New(Config{Tokenizer: tokenizer})

	long := strings.Repeat("PT PMA registration requires BKPM approval and a local sponsor. ", 400)
	history := []gateway.Message{
		{Role: "system", Content: "known facts about this user: prefers Bahasa Indonesia"},
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
		{Role: "user", Content: "what's the latest KITAS fee"},
	}

	out := o.truncateToTokenBudget(history)
	require.NotEmpty(t, out)
	assert.Equal(t, history[0], out[0], "the pinned lead message must survive truncation")
	assert.LessOrEqual(t, tokenizer.EstimateMessages(out), MaxHistoryTokens)
	assert.Less(t, len(out), len(history), "at least one oldest message should have been dropped")
}

// TestOrchestrator_TruncateToTokenBudget_NoTokenizerPassesThrough verifies
// history is left untouched when no TokenEstimator is wired.
func TestOrchestrator_TruncateToTokenBudget_NoTokenizerPassesThrough(t *testing.T) {
	o := New(Config{})
	history := []gateway.Message{{Role: "user", Content: strings.Repeat("x", 100000)}}
	assert.Equal(t, history, o.truncateToTokenBudget(history))
}
