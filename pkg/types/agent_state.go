package types

import "time"

// Observation is one self-contained tool-result record. Because each
// Observation carries everything needed to interpret it, the ordered
// sequence on an AgentState can be replayed or resumed without re-deriving
// context from prior steps (Testable Property 9).
type Observation struct {
	ToolName      string
	RedactedInput string
	ResultText    string
	ResultData    map[string]any
	ByteLength    int
	Latency       time.Duration
}

// AgentState is the mutable per-query scratchpad the Reasoning Engine
// threads through its state machine. It is created per query and discarded
// on return; it is never shared across queries.
type AgentState struct {
	Step   int
	Intent string
	// UserTier is the requesting user's access-control ceiling (§4.T1),
	// threaded through from the QueryEnvelope so tier-scoped tools (e.g.
	// vector_search) read it per request instead of at construction time.
	UserTier         int
	Observations     []Observation
	PromptTokens     int
	CompletionTokens int
	CumulativeCost   float64
	EarlyExit        bool
	// FinalText is the model's free-form reasoning text from the step that
	// transitioned the engine to FINISH. The Reasoner phase structures this
	// into key_points/warnings/cost_estimates/timeline_estimates/suggestions.
	FinalText string
}

// NewAgentState creates a scratchpad seeded with the classified intent and
// the requesting user's tier.
func NewAgentState(intent string, userTier int) *AgentState {
	return &AgentState{Intent: intent, UserTier: userTier}
}

// AddObservation appends an observation and advances the step counter. The
// byte length is derived from ResultText when the caller does not set it
// explicitly, keeping Observation self-describing.
func (s *AgentState) AddObservation(obs Observation) {
	if obs.ByteLength == 0 {
		obs.ByteLength = len(obs.ResultText)
	}
	s.Observations = append(s.Observations, obs)
	s.Step++
}

// LastObservation returns the most recent observation, or the zero value and
// false if none has been recorded yet.
func (s *AgentState) LastObservation() (Observation, bool) {
	if len(s.Observations) == 0 {
		return Observation{}, false
	}
	return s.Observations[len(s.Observations)-1], true
}

// AddUsage accumulates token usage and cost onto the running totals, the
// additive definition required by §3's TokenUsage invariant.
func (s *AgentState) AddUsage(u TokenUsage) {
	s.PromptTokens += u.PromptTokens
	s.CompletionTokens += u.CompletionTokens
	s.CumulativeCost += u.Cost
}

// Snapshot is the JSON-serializable projection of AgentState used for the
// round-trip property (Testable Property 9): encoding then decoding a
// Snapshot reproduces an equivalent continuation — same observation count,
// last intent, and step index.
type Snapshot struct {
	Step             int           `json:"step"`
	Intent           string        `json:"intent"`
	UserTier         int           `json:"user_tier"`
	Observations     []Observation `json:"observations"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	CumulativeCost   float64       `json:"cumulative_cost"`
	EarlyExit        bool          `json:"early_exit"`
	FinalText        string        `json:"final_text"`
}

// ToSnapshot converts the live state into its serializable form.
func (s *AgentState) ToSnapshot() Snapshot {
	obs := make([]Observation, len(s.Observations))
	copy(obs, s.Observations)
	return Snapshot{
		Step:             s.Step,
		Intent:           s.Intent,
		UserTier:         s.UserTier,
		Observations:     obs,
		PromptTokens:     s.PromptTokens,
		CompletionTokens: s.CompletionTokens,
		CumulativeCost:   s.CumulativeCost,
		EarlyExit:        s.EarlyExit,
		FinalText:        s.FinalText,
	}
}

// FromSnapshot reconstructs an AgentState from a previously serialized
// Snapshot, restoring the exact continuation point.
func FromSnapshot(s Snapshot) *AgentState {
	obs := make([]Observation, len(s.Observations))
	copy(obs, s.Observations)
	return &AgentState{
		Step:             s.Step,
		Intent:           s.Intent,
		UserTier:         s.UserTier,
		Observations:     obs,
		PromptTokens:     s.PromptTokens,
		CompletionTokens: s.CompletionTokens,
		CumulativeCost:   s.CumulativeCost,
		EarlyExit:        s.EarlyExit,
		FinalText:        s.FinalText,
	}
}
