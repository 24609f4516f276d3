package pipeline

import (
	"context"
	"fmt"

	"github.com/kejora-ai/orchestrator/pkg/gateway"
	"github.com/kejora-ai/orchestrator/pkg/intent"
	"github.com/kejora-ai/orchestrator/pkg/reasoning"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// BypassCalibratorIntents holds the intents for which the Calibrator stage
// is skipped, per the Open Question resolution in DESIGN.md: the
// three-phase pipeline is canonical for every intent, with a bypass for
// greeting/casual where domain corrections add nothing.
var BypassCalibratorIntents = map[intent.Intent]bool{
	intent.Greeting: true,
	intent.Casual:   true,
}

// Outcome is everything the Pipeline produced for one query, handed to the
// Orchestrator for event emission and persistence.
type Outcome struct {
	Answer      string
	Artifact    types.ReasonerArtifact
	Calibration types.CalibrationResult
	AgentState  *types.AgentState
}

// Pipeline runs the Reasoner, Calibrator, and Synthesizer in sequence
// (§4.M3). The user only ever sees the Synthesizer's output.
type Pipeline struct {
	reasoner    *Reasoner
	calibrator  *Calibrator
	synthesizer *Synthesizer
}

// New builds a Pipeline from its three phases.
func New(reasoner *Reasoner, calibrator *Calibrator, synthesizer *Synthesizer) *Pipeline {
	return &Pipeline{reasoner: reasoner, calibrator: calibrator, synthesizer: synthesizer}
}

// Run executes all three phases for one query and returns the Outcome.
// cumCost accumulates spend across both the Reasoner's tool-driven model
// calls and the Synthesizer's single call, for the Orchestrator's
// per-query cost reporting.
func (p *Pipeline) Run(ctx context.Context, sessionID, query string, history []gateway.Message, in intent.Intent, userTier int, cumCost *float64) (Outcome, error) {
	return p.run(ctx, sessionID, query, history, in, userTier, cumCost, nil, nil)
}

// CorrectionObserver is notified once per applied correction, used by the
// streaming Orchestrator to emit `correction` Stream Events as the
// Calibrator attaches them (§4.T2 step 4, §6).
type CorrectionObserver func(types.AppliedCorrection)

// RunWithObservers is Run, additionally streaming Reasoning Engine steps
// through reasonObs and Calibrator corrections through corrObs as they
// happen. Either observer may be nil.
func (p *Pipeline) RunWithObservers(ctx context.Context, sessionID, query string, history []gateway.Message, in intent.Intent, userTier int, cumCost *float64, reasonObs reasoning.Observer, corrObs CorrectionObserver) (Outcome, error) {
	return p.run(ctx, sessionID, query, history, in, userTier, cumCost, reasonObs, corrObs)
}

func (p *Pipeline) run(ctx context.Context, sessionID, query string, history []gateway.Message, in intent.Intent, userTier int, cumCost *float64, reasonObs reasoning.Observer, corrObs CorrectionObserver) (Outcome, error) {
	artifact, state, err := p.reasoner.RunWithObserver(ctx, query, history, in, userTier, reasonObs)
	if err != nil {
		return Outcome{}, fmt.Errorf("pipeline: %w", err)
	}
	if cumCost != nil && state != nil {
		*cumCost += state.CumulativeCost
	}

	var calibration types.CalibrationResult
	if !BypassCalibratorIntents[in] {
		calibration = p.calibrator.Run(query, artifact)
		if corrObs != nil {
			for _, c := range calibration.Corrections {
				corrObs(c)
			}
		}
	}

	answer := p.synthesizer.Run(ctx, sessionID, query, history, artifact, calibration, cumCost)

	return Outcome{
		Answer:      answer,
		Artifact:    artifact,
		Calibration: calibration,
		AgentState:  state,
	}, nil
}
