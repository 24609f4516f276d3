// Package pipeline implements the Three-Phase Pipeline (§4.M3): Reasoner,
// Calibrator, Synthesizer, run in sequence — the user only ever sees the
// Synthesizer's output.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kejora-ai/orchestrator/pkg/gateway"
	"github.com/kejora-ai/orchestrator/pkg/intent"
	pkgjson "github.com/kejora-ai/orchestrator/pkg/json"
	"github.com/kejora-ai/orchestrator/pkg/metrics"
	"github.com/kejora-ai/orchestrator/pkg/reasoning"
	"github.com/kejora-ai/orchestrator/pkg/tools"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// reasonerSystemPromptTemplate instructs the model to reason freely without
// presenting a user-facing answer, then emit a structured artifact. Modeled
// on the teacher's converter.StructOutputConverter format-instruction
// pattern (ai/model/converter/struct.go): schema first, strict
// no-markdown-wrapper instruction last.
const reasonerSystemPromptTemplate = `You are a domain expert reasoning engine for Indonesian
immigration, tax, and corporate law questions. Use vector_search before
knowledge_graph_search. Gather enough context to answer the user's question,
but do not present a final user-facing answer.

When you are done reasoning, respond with a JSON object only — no
explanations, no markdown code fences — matching this schema:
%s`

// Reasoner is Phase 1 ("the Giant"): it runs the Reasoning Engine to gather
// context, then asks the model to structure its reasoning into a
// ReasonerArtifact.
type Reasoner struct {
	engine *reasoning.Engine
}

// NewReasoner builds a Reasoner, wrapping cfg.SystemPrompt with the
// artifact-structuring instructions before constructing its own Reasoning
// Engine. cfg.SystemPrompt should carry only the domain persona; the
// schema and tool-ordering instructions are appended here.
func NewReasoner(gw *gateway.Gateway, registry *tools.Registry, cfg reasoning.Config, m *metrics.Registry) (*Reasoner, error) {
	schema, err := pkgjson.StringDefSchemaOf(types.ReasonerArtifact{})
	if err != nil {
		return nil, fmt.Errorf("pipeline: reasoner schema: %w", err)
	}

	cfg.SystemPrompt = cfg.SystemPrompt + "\n\n" + fmt.Sprintf(reasonerSystemPromptTemplate, schema)
	return &Reasoner{engine: reasoning.New(gw, registry, cfg, m)}, nil
}

// Run drives the Reasoning Engine and parses its FinalText into a
// ReasonerArtifact. A parse failure degrades gracefully: the raw text
// becomes the sole key point rather than failing the whole pipeline.
func (r *Reasoner) Run(ctx context.Context, query string, history []gateway.Message, in intent.Intent, userTier int) (types.ReasonerArtifact, *types.AgentState, error) {
	return r.RunWithObserver(ctx, query, history, in, userTier, nil)
}

// RunWithObserver is Run, additionally notifying obs of every THINK/ACT/
// OBSERVE step as it happens — used by the streaming Orchestrator.
func (r *Reasoner) RunWithObserver(ctx context.Context, query string, history []gateway.Message, in intent.Intent, userTier int, obs reasoning.Observer) (types.ReasonerArtifact, *types.AgentState, error) {
	state, err := r.engine.RunWithObserver(ctx, query, history, in, userTier, obs)
	if err != nil {
		return types.ReasonerArtifact{}, nil, fmt.Errorf("pipeline: reasoner: %w", err)
	}

	artifact, parseErr := parseReasonerArtifact(state.FinalText)
	if parseErr != nil {
		artifact = types.ReasonerArtifact{KeyPoints: []string{strings.TrimSpace(state.FinalText)}}
	}

	return artifact, state, nil
}

// parseReasonerArtifact strips a markdown code fence if present (models
// frequently wrap JSON in one despite instructions) and decodes it.
func parseReasonerArtifact(raw string) (types.ReasonerArtifact, error) {
	content := stripMarkdownCodeBlock(raw)
	var artifact types.ReasonerArtifact
	if err := json.Unmarshal([]byte(content), &artifact); err != nil {
		return types.ReasonerArtifact{}, fmt.Errorf("pipeline: parse reasoner artifact: %w", err)
	}
	return artifact, nil
}

// stripMarkdownCodeBlock removes a leading/trailing ```json ... ``` fence,
// matching the teacher's converter.stripMarkdownCodeBlock behavior.
func stripMarkdownCodeBlock(raw string) string {
	content := strings.TrimSpace(raw)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
