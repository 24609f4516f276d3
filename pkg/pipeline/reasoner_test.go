package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kejora-ai/orchestrator/pkg/gateway"
	"github.com/kejora-ai/orchestrator/pkg/intent"
	"github.com/kejora-ai/orchestrator/pkg/reasoning"
	"github.com/kejora-ai/orchestrator/pkg/tools"
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

func buildTestGateway(t *testing.T, model gateway.Model) *gateway.Gateway {
	t.Helper()
	gw, err := gateway.New(&gateway.Config{
		Chains:           map[gateway.Tier][]gateway.Model{"default": {model}},
		CostCapUSD:       1.0,
		MaxFallbackDepth: 3,
		PerCallTimeout:   time.Second,
	})
	require.NoError(t, err)
	return gw
}

func TestReasoner_ParsesWellFormedJSONArtifact(t *testing.T) {
	model := &scriptedModel{
		id: "m1",
		turns: []gateway.ModelResult{
			{Text: `{"key_points":["PT PMA requires 10 billion IDR capital"],"warnings":[],"cost_estimates":[],"timeline_estimates":[],"suggestions":[]}`},
		},
	}
	gw := buildTestGateway(t, model)
	registry := tools.NewRegistry()

	reasoner, err := NewReasoner(gw, registry, reasoning.Config{SystemPrompt: "be precise", Tier: "default"}, nil)
	require.NoError(t, err)

	artifact, state, err := reasoner.Run(context.Background(), "PT PMA capital requirement", nil, intent.BusinessSimple, 1)
	require.NoError(t, err)
	require.Len(t, artifact.KeyPoints, 1)
	assert.Equal(t, "PT PMA requires 10 billion IDR capital", artifact.KeyPoints[0])
	assert.NotNil(t, state)
}

func TestReasoner_ParsesArtifactWrappedInMarkdownFence(t *testing.T) {
	model := &scriptedModel{
		id: "m1",
		turns: []gateway.ModelResult{
			{Text: "```json\n{\"key_points\":[\"fact one\"],\"warnings\":[\"watch out\"],\"cost_estimates\":[],\"timeline_estimates\":[],\"suggestions\":[]}\n```"},
		},
	}
	gw := buildTestGateway(t, model)
	registry := tools.NewRegistry()

	reasoner, err := NewReasoner(gw, registry, reasoning.Config{SystemPrompt: "be precise", Tier: "default"}, nil)
	require.NoError(t, err)

	artifact, _, err := reasoner.Run(context.Background(), "some question", nil, intent.BusinessSimple, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"fact one"}, artifact.KeyPoints)
	assert.Equal(t, []string{"watch out"}, artifact.Warnings)
}

func TestReasoner_NonJSONFinalTextDegradesToSingleKeyPoint(t *testing.T) {
	model := &scriptedModel{
		id: "m1",
		turns: []gateway.ModelResult{
			{Text: "this is not json at all"},
		},
	}
	gw := buildTestGateway(t, model)
	registry := tools.NewRegistry()

	reasoner, err := NewReasoner(gw, registry, reasoning.Config{SystemPrompt: "be precise", Tier: "default"}, nil)
	require.NoError(t, err)

	artifact, _, err := reasoner.Run(context.Background(), "some question", nil, intent.BusinessSimple, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"this is not json at all"}, artifact.KeyPoints)
}
