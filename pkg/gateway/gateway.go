package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kejora-ai/orchestrator/pkg/metrics"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// Tier names a fallback chain ("tier_hint" in §4.L1), e.g. "default",
// "cheap", "reasoning".
type Tier string

// Config holds the gateway's fallback chains and guard thresholds. It
// follows the teacher's Config+validate() convention
// (ai/rag/pipeline.go PipelineConfig).
type Config struct {
	// Chains maps a tier hint to its ordered fallback chain of models,
	// first entry tried first.
	Chains map[Tier][]Model
	// CostCapUSD is the per-query cumulative cost ceiling. Defaults to 0.10.
	CostCapUSD float64
	// MaxFallbackDepth bounds how many models may be tried in one cascade.
	// Defaults to 3.
	MaxFallbackDepth int
	// PerCallTimeout bounds a single model attempt. Defaults to 30s.
	PerCallTimeout time.Duration
	// Breaker tunes every model's circuit breaker.
	Breaker BreakerConfig
	// Metrics is optional; when nil, metrics are not recorded.
	Metrics *metrics.Registry
}

func (c *Config) validate() error {
	if c == nil {
		return errors.New("gateway: config cannot be nil")
	}
	if len(c.Chains) == 0 {
		return errors.New("gateway: at least one tier chain is required")
	}
	for tier, chain := range c.Chains {
		if len(chain) == 0 {
			return fmt.Errorf("gateway: tier %q has an empty fallback chain", tier)
		}
	}
	if c.CostCapUSD <= 0 {
		c.CostCapUSD = 0.10
	}
	if c.MaxFallbackDepth <= 0 {
		c.MaxFallbackDepth = 3
	}
	if c.PerCallTimeout <= 0 {
		c.PerCallTimeout = 30 * time.Second
	}
	if c.Breaker == (BreakerConfig{}) {
		c.Breaker = DefaultBreakerConfig()
	}
	return nil
}

// Gateway is the unified send-message interface over the fallback chain.
type Gateway struct {
	chains   map[Tier][]Model
	costCap  float64
	maxDepth int
	timeout  time.Duration
	breakers *breakerRegistry
	metrics  *metrics.Registry
}

// New constructs a Gateway from Config, applying defaults and validating
// that every tier has a non-empty chain.
func New(cfg *Config) (*Gateway, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Gateway{
		chains:   cfg.Chains,
		costCap:  cfg.CostCapUSD,
		maxDepth: cfg.MaxFallbackDepth,
		timeout:  cfg.PerCallTimeout,
		breakers: newBreakerRegistry(cfg.Breaker, cfg.Metrics),
		metrics:  cfg.Metrics,
	}, nil
}

// Result is what SendMessage returns on success.
type Result struct {
	Text      string
	ModelUsed string
	ToolCalls []ToolCall
	Usage     types.TokenUsage
}

// SendMessage iterates the fallback chain for tierHint under the four
// guards from §4.L1, stopping at the first model that succeeds. cumCost is
// the caller's running cost for this query so far; SendMessage adds each
// successful call's cost to it and refuses to start a call once it has
// reached the cap. A call's cost is known only after it returns, so the
// call that crosses the cap is not prevented and the total can end above it.
func (g *Gateway) SendMessage(ctx context.Context, messages []Message, toolsEnabled bool, tools []ToolSchema, tierHint Tier, cumCost *float64) (Result, error) {
	chain, ok := g.chains[tierHint]
	if !ok || len(chain) == 0 {
		return Result{}, ErrNoModelsConfigured
	}

	var lastErr error

	for depth, model := range chain {
		if depth >= g.maxDepth {
			return Result{}, ErrFallbackDepthExceeded
		}

		modelID := model.ID()

		if !g.breakerAllows(modelID) {
			continue
		}

		if *cumCost >= g.costCap {
			return Result{}, ErrCostCapExceeded
		}

		res, err := g.attempt(ctx, model, messages, toolsEnabled, tools)
		if err == nil {
			*cumCost += res.Usage.Cost
			g.recordUsage(modelID, res.Usage)
			return Result{
				Text:      res.Text,
				ModelUsed: modelID,
				ToolCalls: res.ToolCalls,
				Usage:     res.Usage,
			}, nil
		}

		lastErr = err
		kind := classify(err)
		if !kind.CountsAgainstBreaker() {
			// Permanent client error: stop the cascade rather than burn
			// through the remaining models (§4.L1 "invalid-request ...
			// permanent, stop cascade").
			return Result{}, fmt.Errorf("gateway: invalid request to %s: %w", modelID, err)
		}
	}

	if lastErr != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAllModelsFailed, lastErr)
	}
	return Result{}, ErrAllModelsFailed
}

// breakerAllows reports whether modelID's breaker permits a call right now.
// gobreaker's Execute already enforces this internally (it returns
// gobreaker.ErrOpenState when the breaker is open and the cooldown has not
// elapsed), so this is a cheap pre-check used only to choose whether to
// bother attempting the call at all, avoiding building a request payload
// for a model we already know will be skipped.
func (g *Gateway) breakerAllows(modelID string) bool {
	snap := g.breakers.snapshot(modelID)
	return snap.State != types.BreakerOpen
}

// attempt executes one model call through its circuit breaker with a
// per-call deadline. Invalid-request failures are reported to the breaker
// as a success (so they never trip it) while still being surfaced to the
// caller as an error.
func (g *Gateway) attempt(ctx context.Context, model Model, messages []Message, toolsEnabled bool, tools []ToolSchema) (ModelResult, error) {
	breaker := g.breakers.get(model.ID())

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()

	var schemas []ToolSchema
	if toolsEnabled {
		schemas = tools
	}

	var outerErr error
	result, breakerErr := breaker.Execute(func() (ModelResult, error) {
		res, err := model.Send(callCtx, messages, schemas)
		if err != nil {
			if classify(err) == KindInvalidRequest {
				// Do not let a permanent client error count as a breaker
				// failure; surface it via outerErr instead.
				outerErr = err
				return ModelResult{}, nil
			}
			return ModelResult{}, err
		}
		return res, nil
	})

	if g.metrics != nil {
		g.metrics.ModelLatency.WithLabelValues(model.ID()).Observe(time.Since(start).Seconds())
	}

	if outerErr != nil {
		return ModelResult{}, outerErr
	}

	if breakerErr != nil {
		if errors.Is(breakerErr, gobreaker.ErrOpenState) || errors.Is(breakerErr, gobreaker.ErrTooManyRequests) {
			return ModelResult{}, NewClassifiedError(KindServiceUnavailable, breakerErr)
		}
		if callCtx.Err() != nil {
			return ModelResult{}, NewClassifiedError(KindServiceUnavailable, fmt.Errorf("model call timed out: %w", callCtx.Err()))
		}
		return ModelResult{}, breakerErr
	}

	return result, nil
}

func (g *Gateway) recordUsage(modelID string, usage types.TokenUsage) {
	if g.metrics == nil {
		return
	}
	g.metrics.ModelTokens.WithLabelValues(modelID, "prompt").Add(float64(usage.PromptTokens))
	g.metrics.ModelTokens.WithLabelValues(modelID, "completion").Add(float64(usage.CompletionTokens))
}

// BreakerSnapshot exposes a model's circuit-breaker state for health/metrics
// surfaces.
func (g *Gateway) BreakerSnapshot(modelID string) types.CircuitBreakerSnapshot {
	return g.breakers.snapshot(modelID)
}
