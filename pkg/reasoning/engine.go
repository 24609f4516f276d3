// Package reasoning implements the Reasoning Engine (§4.M2): a ReAct-style
// state machine — START → THINK → (ACT | FINISH | EXIT_EARLY) → OBSERVE →
// THINK → … → FINISH — that drives the Tool Registry from inside the
// Three-Phase Pipeline's Reasoner phase.
package reasoning

import (
	"context"
	"fmt"
	"time"

	"github.com/kejora-ai/orchestrator/pkg/gateway"
	"github.com/kejora-ai/orchestrator/pkg/intent"
	"github.com/kejora-ai/orchestrator/pkg/metrics"
	"github.com/kejora-ai/orchestrator/pkg/tools"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// DefaultToolTimeout bounds a single tool invocation.
const DefaultToolTimeout = 10 * time.Second

// noEarlyExitIntents are the intents that never early-exit after a single
// retrieval, because they need to combine vector search with
// knowledge-graph search (§4.M2).
var noEarlyExitIntents = map[intent.Intent]bool{
	intent.BusinessComplex:   true,
	intent.BusinessStrategic: true,
	intent.DevAICode:         true,
}

// earlyExitMinObservationChars is the vector_search payload length above
// which an eligible intent may early-exit (§4.M2).
const earlyExitMinObservationChars = 500

// contextQualityThreshold is the weighted-mean quality score below which
// FINISH instead runs one additional retrieval step, when steps remain
// (§4.M2).
const contextQualityThreshold = 0.3

// Config tunes one Engine's loop. SystemPrompt must itself enforce the
// prompt-level tool-ordering policy (vector_search before
// knowledge_graph_search) described in §4.M2 — the engine does not enforce
// ordering in code.
type Config struct {
	SystemPrompt string
	Tier         gateway.Tier
	// MaxSteps overrides the step budget for every query this Engine runs,
	// regardless of classified intent. Leave at 0 to let each query fall
	// back to intent.StepBudget (§4.T1) instead of a flat ceiling.
	MaxSteps    int
	ToolTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ToolTimeout <= 0 {
		out.ToolTimeout = DefaultToolTimeout
	}
	return out
}

// maxStepsFor resolves the effective step budget for one query: an
// explicitly configured Config.MaxSteps always wins (tests and callers that
// pin a ceiling must get exactly that ceiling); otherwise the budget varies
// by classified intent (§4.T1) via intent.StepBudget.
func (e *Engine) maxStepsFor(in intent.Intent) int {
	if e.cfg.MaxSteps > 0 {
		return e.cfg.MaxSteps
	}
	return intent.StepBudget(in)
}

// Observer receives step-by-step notifications as the Engine runs, used by
// the streaming Orchestrator to emit `thinking`/`tool_call`/`observation`
// Stream Events as they occur rather than only at the end (§4.T2 step 4).
// A nil Observer is valid; every call site checks before invoking it.
type Observer interface {
	OnThinking(text string)
	OnToolCall(toolName string, args map[string]any)
	OnObservation(toolName, preview string, length int)
}

// Engine runs the ReAct loop against a Model Gateway and a Tool Registry.
type Engine struct {
	gateway  *gateway.Gateway
	registry *tools.Registry
	cfg      Config
	metrics  *metrics.Registry
}

// New constructs an Engine.
func New(gw *gateway.Gateway, registry *tools.Registry, cfg Config, m *metrics.Registry) *Engine {
	return &Engine{gateway: gw, registry: registry, cfg: cfg.withDefaults(), metrics: m}
}

// Run drives the state machine for one query, returning the accumulated
// AgentState at FINISH. It is equivalent to RunWithObserver(..., nil).
func (e *Engine) Run(ctx context.Context, query string, history []gateway.Message, in intent.Intent, userTier int) (*types.AgentState, error) {
	return e.RunWithObserver(ctx, query, history, in, userTier, nil)
}

// RunWithObserver drives the state machine for one query, notifying obs of
// each THINK/ACT/OBSERVE transition as it happens. obs may be nil. userTier
// is carried on the AgentState so tier-scoped tools (vector_search) read the
// caller's access ceiling per request rather than at construction time.
func (e *Engine) RunWithObserver(ctx context.Context, query string, history []gateway.Message, in intent.Intent, userTier int, obs Observer) (*types.AgentState, error) {
	state := types.NewAgentState(string(in), userTier)
	cumCost := 0.0

	messages := make([]gateway.Message, 0, len(history)+2)
	messages = append(messages, gateway.Message{Role: "system", Content: e.cfg.SystemPrompt})
	messages = append(messages, history...)
	messages = append(messages, gateway.Message{Role: "user", Content: query})

	schemas := e.registry.Schemas()
	maxSteps := e.maxStepsFor(in)

	// thinkSteps counts every THINK call, independent of state.Step (which
	// only counts observations). A FINISH turn that never calls a tool would
	// otherwise leave state.Step at 0 forever and the context-quality gate
	// would retry indefinitely.
	thinkSteps := 0

	for {
		if state.Step >= maxSteps || thinkSteps >= maxSteps {
			return state, nil
		}
		thinkSteps++

		result, err := e.gateway.SendMessage(ctx, messages, true, schemas, e.cfg.Tier, &cumCost)
		if err != nil {
			return state, fmt.Errorf("reasoning: think step failed: %w", err)
		}
		state.AddUsage(result.Usage)

		if obs != nil && result.Text != "" {
			obs.OnThinking(result.Text)
		}

		if len(result.ToolCalls) == 0 {
			state.FinalText = result.Text
			if thinkSteps < maxSteps && e.shouldRunAdditionalRetrieval(state, maxSteps) {
				messages = append(messages, gateway.Message{Role: "assistant", Content: result.Text})
				messages = append(messages, gateway.Message{
					Role:    "user",
					Content: "the gathered context is too thin; run another retrieval before finishing.",
				})
				continue
			}
			return state, nil
		}

		call := result.ToolCalls[0]
		if obs != nil {
			obs.OnToolCall(call.ToolName, call.Args)
		}

		obsText, obsData := e.act(ctx, call, state)
		if obs != nil {
			obs.OnObservation(call.ToolName, previewOf(obsText), len(obsText))
		}

		state.AddObservation(types.Observation{
			ToolName:   call.ToolName,
			ResultText: obsText,
			ResultData: obsData,
		})

		messages = append(messages, gateway.Message{
			Role:    "assistant",
			Content: fmt.Sprintf("calling tool %s", call.ToolName),
		})
		messages = append(messages, gateway.Message{
			Role:    "tool",
			Content: obsText,
		})

		if e.shouldEarlyExit(in, state) {
			state.EarlyExit = true
			if e.metrics != nil {
				e.metrics.EarlyExits.WithLabelValues(string(in)).Inc()
			}
			return state, nil
		}
	}
}

// previewMaxChars bounds the preview text attached to an observation event.
const previewMaxChars = 200

// previewOf truncates text to previewMaxChars for Stream Event payloads.
func previewOf(text string) string {
	if len(text) <= previewMaxChars {
		return text
	}
	return text[:previewMaxChars]
}

// act dispatches one tool call under its own timeout. A tool failure is
// observable (the error text becomes the observation) but never fatal to
// the loop (§4.M2).
func (e *Engine) act(ctx context.Context, call gateway.ToolCall, state *types.AgentState) (string, map[string]any) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout)
	defer cancel()

	res, err := e.registry.Invoke(callCtx, call.ToolName, call.Args, state)
	if err != nil {
		return fmt.Sprintf("tool %s failed: %v", call.ToolName, err), nil
	}
	return res.Text, res.Data
}

// shouldEarlyExit implements §4.M2's early-exit rule.
func (e *Engine) shouldEarlyExit(in intent.Intent, state *types.AgentState) bool {
	if noEarlyExitIntents[in] {
		return false
	}
	last, ok := state.LastObservation()
	if !ok {
		return false
	}
	return last.ToolName == "vector_search" && last.ByteLength > earlyExitMinObservationChars
}

// shouldRunAdditionalRetrieval implements §4.M2's context-quality gate: at
// FINISH, if accumulated context scores below threshold and steps remain,
// run one more retrieval instead of finishing.
func (e *Engine) shouldRunAdditionalRetrieval(state *types.AgentState, maxSteps int) bool {
	if state.Step >= maxSteps {
		return false
	}
	return ContextQuality(state) < contextQualityThreshold
}

// ContextQuality scores accumulated observations as 0.7 × the share of
// observations with non-empty result text plus 0.3 × min(|items|/5, 1).
// Keyword overlap between an observation and the query is not measured.
func ContextQuality(state *types.AgentState) float64 {
	n := len(state.Observations)
	if n == 0 {
		return 0
	}

	var overlapSum float64
	for _, obs := range state.Observations {
		if len(obs.ResultText) > 0 {
			overlapSum += 1
		}
	}
	overlapScore := overlapSum / float64(n)

	volumeScore := float64(n) / 5
	if volumeScore > 1 {
		volumeScore = 1
	}

	return overlapScore*0.7 + volumeScore*0.3
}
