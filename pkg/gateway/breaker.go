package gateway

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kejora-ai/orchestrator/pkg/metrics"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// BreakerConfig tunes the per-model circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker open.
	FailureThreshold uint32
	// CooldownWindow is how long the breaker stays open before allowing a
	// half-open trial request.
	CooldownWindow time.Duration
	// HalfOpenSuccessesToClose is how many consecutive half-open successes
	// are required to close the breaker again (§4.L1: "two consecutive
	// successes close it").
	HalfOpenSuccessesToClose uint32
}

// DefaultBreakerConfig matches the §4.L1 defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:         5,
		CooldownWindow:           30 * time.Second,
		HalfOpenSuccessesToClose: 2,
	}
}

// breakerRegistry holds one gobreaker.CircuitBreaker per model id. The map
// itself is process-local and guarded by a sync.Mutex, matching §3's
// CircuitBreakerState invariant ("process-local").
type breakerRegistry struct {
	cfg     BreakerConfig
	metrics *metrics.Registry
	mu      sync.Mutex
	byModel map[string]*gobreaker.CircuitBreaker[ModelResult]
}

func newBreakerRegistry(cfg BreakerConfig, m *metrics.Registry) *breakerRegistry {
	return &breakerRegistry{
		cfg:     cfg,
		metrics: m,
		byModel: make(map[string]*gobreaker.CircuitBreaker[ModelResult]),
	}
}

func (r *breakerRegistry) get(modelID string) *gobreaker.CircuitBreaker[ModelResult] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.byModel[modelID]; ok {
		return b
	}

	// MaxRequests: half-open admits HalfOpenSuccessesToClose trial calls and
	// closes after as many consecutive successes.
	b := gobreaker.NewCircuitBreaker[ModelResult](gobreaker.Settings{
		Name:        modelID,
		MaxRequests: r.cfg.HalfOpenSuccessesToClose,
		Interval:    0, // counts never reset on a timer; only on state change
		Timeout:     r.cfg.CooldownWindow,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if r.metrics != nil {
				r.metrics.BreakerTransitions.WithLabelValues(name, to.String()).Inc()
			}
		},
	})

	r.byModel[modelID] = b
	return b
}

// snapshot returns a read-only projection of the breaker's current state for
// health/metrics surfaces.
func (r *breakerRegistry) snapshot(modelID string) types.CircuitBreakerSnapshot {
	r.mu.Lock()
	b, ok := r.byModel[modelID]
	r.mu.Unlock()

	if !ok {
		return types.CircuitBreakerSnapshot{ModelID: modelID, State: types.BreakerClosed}
	}

	counts := b.Counts()
	var state types.BreakerState
	switch b.State() {
	case gobreaker.StateClosed:
		state = types.BreakerClosed
	case gobreaker.StateOpen:
		state = types.BreakerOpen
	default:
		state = types.BreakerHalfOpen
	}

	return types.CircuitBreakerSnapshot{
		ModelID:                modelID,
		State:                  state,
		ConsecutiveFailures:    counts.ConsecutiveFailures,
		ConsecutiveSuccessesHO: counts.ConsecutiveSuccesses,
	}
}
