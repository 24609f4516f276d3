package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kejora-ai/orchestrator/pkg/types"
)

// fakeModel is a scriptable Model used across gateway tests.
type fakeModel struct {
	id    string
	calls atomic.Int32
	send  func(n int32) (ModelResult, error)
}

func (f *fakeModel) ID() string { return f.id }

func (f *fakeModel) Send(ctx context.Context, messages []Message, tools []ToolSchema) (ModelResult, error) {
	n := f.calls.Add(1)
	return f.send(n)
}

func alwaysFails(kind ErrorKind, msg string) func(int32) (ModelResult, error) {
	return func(int32) (ModelResult, error) {
		return ModelResult{}, NewClassifiedError(kind, errors.New(msg))
	}
}

func alwaysSucceeds(modelID string) func(int32) (ModelResult, error) {
	return func(int32) (ModelResult, error) {
		return ModelResult{Text: "answer from " + modelID, Usage: types.TokenUsage{PromptTokens: 10, CompletionTokens: 5, Cost: 0.01, ModelID: modelID}}, nil
	}
}

func testConfig(chain []Model) *Config {
	return &Config{
		Chains:           map[Tier][]Model{"default": chain},
		CostCapUSD:       0.10,
		MaxFallbackDepth: 3,
		PerCallTimeout:   2 * time.Second,
		Breaker: BreakerConfig{
			FailureThreshold:         3,
			CooldownWindow:           50 * time.Millisecond,
			HalfOpenSuccessesToClose: 2,
		},
	}
}

func TestSendMessage_FallsOverToNextModelOnServiceUnavailable(t *testing.T) {
	failing := &fakeModel{id: "flash", send: alwaysFails(KindServiceUnavailable, "boom")}
	backup := &fakeModel{id: "lite", send: alwaysSucceeds("lite")}

	gw, err := New(testConfig([]Model{failing, backup}))
	require.NoError(t, err)

	var cost float64
	res, err := gw.SendMessage(context.Background(), []Message{{Role: "user", Content: "hi"}}, false, nil, "default", &cost)
	require.NoError(t, err)
	assert.Equal(t, "lite", res.ModelUsed)
	assert.Equal(t, int32(1), failing.calls.Load())
}

func TestSendMessage_InvalidRequestStopsCascadeWithoutTryingNextModel(t *testing.T) {
	bad := &fakeModel{id: "flash", send: alwaysFails(KindInvalidRequest, "bad request")}
	backup := &fakeModel{id: "lite", send: alwaysSucceeds("lite")}

	gw, err := New(testConfig([]Model{bad, backup}))
	require.NoError(t, err)

	var cost float64
	_, err = gw.SendMessage(context.Background(), nil, false, nil, "default", &cost)
	require.Error(t, err)
	assert.Equal(t, int32(0), backup.calls.Load())
}

// TestCircuitBreaker_SkipsModelAfterThresholdFailures is Testable Property 3:
// after N >= threshold consecutive failures on model M, the next request
// skips M without calling it again.
func TestCircuitBreaker_SkipsModelAfterThresholdFailures(t *testing.T) {
	failing := &fakeModel{id: "flash", send: alwaysFails(KindServiceUnavailable, "down")}
	backup := &fakeModel{id: "lite", send: alwaysSucceeds("lite")}

	gw, err := New(testConfig([]Model{failing, backup}))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		var cost float64
		_, _ = gw.SendMessage(context.Background(), nil, false, nil, "default", &cost)
	}
	require.Equal(t, int32(3), failing.calls.Load())

	snap := gw.BreakerSnapshot("flash")
	assert.Equal(t, types.BreakerOpen, snap.State)

	var cost float64
	res, err := gw.SendMessage(context.Background(), nil, false, nil, "default", &cost)
	require.NoError(t, err)
	assert.Equal(t, "lite", res.ModelUsed)
	assert.Equal(t, int32(3), failing.calls.Load(), "breaker-open model must not be called again")
}

// TestCostCap_AbortsCascadeOnBreach is Testable Property 4.
func TestCostCap_AbortsCascadeOnBreach(t *testing.T) {
	expensive := &fakeModel{id: "flash", send: alwaysSucceeds("flash")}

	cfg := testConfig([]Model{expensive})
	cfg.CostCapUSD = 0.005

	gw, err := New(cfg)
	require.NoError(t, err)

	cost := 0.005
	_, err = gw.SendMessage(context.Background(), nil, false, nil, "default", &cost)
	require.ErrorIs(t, err, ErrCostCapExceeded)
	assert.Equal(t, int32(0), expensive.calls.Load())
}

func TestSendMessage_UnknownTierIsAnError(t *testing.T) {
	gw, err := New(testConfig([]Model{&fakeModel{id: "m", send: alwaysSucceeds("m")}}))
	require.NoError(t, err)

	var cost float64
	_, err = gw.SendMessage(context.Background(), nil, false, nil, "nonexistent", &cost)
	assert.ErrorIs(t, err, ErrNoModelsConfigured)
}
