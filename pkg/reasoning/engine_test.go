package reasoning

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kejora-ai/orchestrator/pkg/gateway"
	"github.com/kejora-ai/orchestrator/pkg/intent"
	"github.com/kejora-ai/orchestrator/pkg/tools"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

type scriptedModel struct {
	id    string
	calls int
	turns []gateway.ModelResult
}

func (m *scriptedModel) ID() string { return m.id }

func (m *scriptedModel) Send(ctx context.Context, messages []gateway.Message, schemas []gateway.ToolSchema) (gateway.ModelResult, error) {
	turn := m.turns[m.calls]
	if m.calls < len(m.turns)-1 {
		m.calls++
	}
	return turn, nil
}

type echoTool struct {
	def  *tools.Definition
	text string
}

func newEchoTool(name, text string) *echoTool {
	def, _ := tools.NewDefinition(name, "echoes a fixed string", `{"type":"object"}`)
	return &echoTool{def: def, text: text}
}

func (t *echoTool) Definition() *tools.Definition { return t.def }

func (t *echoTool) Invoke(ctx context.Context, args map[string]any, state *types.AgentState) (tools.Result, error) {
	return tools.Result{Text: t.text}, nil
}

func buildEngine(t *testing.T, model gateway.Model, registry *tools.Registry) *Engine {
	t.Helper()
	gw, err := gateway.New(&gateway.Config{
		Chains:           map[gateway.Tier][]gateway.Model{"default": {model}},
		CostCapUSD:       1.0,
		MaxFallbackDepth: 3,
		PerCallTimeout:   time.Second,
	})
	require.NoError(t, err)
	return New(gw, registry, Config{SystemPrompt: "be helpful", Tier: "default"}, nil)
}

func TestEngine_EarlyExitsOnLongVectorSearchForSimpleIntent(t *testing.T) {
	longText := strings.Repeat("a", 600)
	registry := tools.NewRegistry().Register(newEchoTool("vector_search", longText))

	model := &scriptedModel{
		id: "m1",
		turns: []gateway.ModelResult{
			{ToolCalls: []gateway.ToolCall{{ToolName: "vector_search", Args: map[string]any{"query": "x"}}}},
		},
	}

	engine := buildEngine(t, model, registry)
	state, err := engine.Run(context.Background(), "what is a simple visa question", nil, intent.BusinessSimple, 1)
	require.NoError(t, err)
	assert.True(t, state.EarlyExit)
	assert.Equal(t, 1, state.Step)
}

func TestEngine_ComplexIntentNeverEarlyExitsAfterSingleRetrieval(t *testing.T) {
	longText := strings.Repeat("a", 600)
	registry := tools.NewRegistry().Register(newEchoTool("vector_search", longText))

	model := &scriptedModel{
		id: "m1",
		turns: []gateway.ModelResult{
			{ToolCalls: []gateway.ToolCall{{ToolName: "vector_search", Args: map[string]any{"query": "x"}}}},
			{Text: "final answer"},
		},
	}

	engine := buildEngine(t, model, registry)
	state, err := engine.Run(context.Background(), "PT PMA cross-border merger compliance", nil, intent.BusinessComplex, 2)
	require.NoError(t, err)
	assert.False(t, state.EarlyExit, "complex intents must not early-exit after a single retrieval")
	assert.Equal(t, "final answer", state.FinalText)
}

func TestEngine_StopsAtMaxSteps(t *testing.T) {
	registry := tools.NewRegistry().Register(newEchoTool("vector_search", "short"))

	model := &scriptedModel{
		id: "m1",
		turns: []gateway.ModelResult{
			{ToolCalls: []gateway.ToolCall{{ToolName: "vector_search", Args: map[string]any{"query": "x"}}}},
		},
	}

	gw, err := gateway.New(&gateway.Config{
		Chains:           map[gateway.Tier][]gateway.Model{"default": {model}},
		CostCapUSD:       1.0,
		MaxFallbackDepth: 3,
		PerCallTimeout:   time.Second,
	})
	require.NoError(t, err)
	engine := New(gw, registry, Config{SystemPrompt: "be helpful", Tier: "default", MaxSteps: 3}, nil)

	state, err := engine.Run(context.Background(), "complex strategic expansion plan", nil, intent.BusinessStrategic, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, state.Step)
}

func TestEngine_GreetingIntentUsesStepBudgetWhenMaxStepsUnset(t *testing.T) {
	registry := tools.NewRegistry().Register(newEchoTool("vector_search", "short"))

	model := &scriptedModel{
		id: "m1",
		turns: []gateway.ModelResult{
			{ToolCalls: []gateway.ToolCall{{ToolName: "vector_search", Args: map[string]any{"query": "x"}}}},
		},
	}

	engine := buildEngine(t, model, registry)
	state, err := engine.Run(context.Background(), "hi there", nil, intent.Greeting, 0)
	require.NoError(t, err)
	assert.Equal(t, intent.StepBudget(intent.Greeting), state.Step)
}

func TestEngine_ToolFailureIsObservableNotFatal(t *testing.T) {
	registry := tools.NewRegistry()

	model := &scriptedModel{
		id: "m1",
		turns: []gateway.ModelResult{
			{ToolCalls: []gateway.ToolCall{{ToolName: "unregistered_tool", Args: nil}}},
			{Text: "final answer after tool failure"},
		},
	}

	engine := buildEngine(t, model, registry)
	state, err := engine.Run(context.Background(), "complex strategic holding restructure", nil, intent.BusinessStrategic, 2)
	require.NoError(t, err)
	require.Len(t, state.Observations, 1)
	assert.Contains(t, state.Observations[0].ResultText, "failed")
	assert.Equal(t, "final answer after tool failure", state.FinalText)
}

func TestContextQuality_EmptyObservationsScoreZero(t *testing.T) {
	state := types.NewAgentState("business_simple", 1)
	assert.Equal(t, 0.0, ContextQuality(state))
}

func TestContextQuality_FiveNonEmptyObservationsScoreMax(t *testing.T) {
	state := types.NewAgentState("business_simple", 1)
	for i := 0; i < 5; i++ {
		state.AddObservation(types.Observation{ToolName: "vector_search", ResultText: "something relevant"})
	}
	assert.InDelta(t, 1.0, ContextQuality(state), 0.001)
}
