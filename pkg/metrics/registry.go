// Package metrics implements the Metrics & Health component (§4.T4): a
// process-wide prometheus registry plus a health-status map, replacing the
// "global singleton" pattern called out in §9 with an explicit context
// object constructed at startup and threaded by injection.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the counters and histograms every error path and model
// call increments. It is constructed once at process startup and injected
// into components — never imported as a package-level global.
type Registry struct {
	reg *prometheus.Registry

	ErrorsTotal              *prometheus.CounterVec
	ModelLatency             *prometheus.HistogramVec
	ModelTokens              *prometheus.CounterVec
	BreakerTransitions       *prometheus.CounterVec
	LockTimeouts             *prometheus.CounterVec
	DegradedModeActivations  *prometheus.CounterVec
	EarlyExits               *prometheus.CounterVec
	CacheDBInconsistencies   prometheus.Counter
	PromotionsTotal          prometheus.Counter
	DuplicatesDetectedTotal  *prometheus.CounterVec
}

// New constructs a Registry with all series registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kejora_errors_total",
			Help: "Count of errors by component and kind.",
		}, []string{"component", "kind"}),
		ModelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kejora_model_call_latency_seconds",
			Help:    "Latency of model gateway calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		ModelTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kejora_model_tokens_total",
			Help: "Prompt/completion tokens consumed by model.",
		}, []string{"model", "kind"}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kejora_breaker_transitions_total",
			Help: "Circuit breaker state transitions by model and target state.",
		}, []string{"model", "state"}),
		LockTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kejora_lock_timeouts_total",
			Help: "Per-user mutex/semaphore acquisition timeouts.",
		}, []string{"resource"}),
		DegradedModeActivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kejora_degraded_mode_total",
			Help: "Activations of a degraded-mode fallback path.",
		}, []string{"component"}),
		EarlyExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kejora_early_exits_total",
			Help: "Reasoning engine early-exit decisions by intent.",
		}, []string{"intent"}),
		CacheDBInconsistencies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kejora_cache_db_inconsistencies_total",
			Help: "Two-phase conversation saves where cache and DB diverged after retries.",
		}),
		PromotionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kejora_collective_fact_promotions_total",
			Help: "Collective facts that transitioned to promoted.",
		}),
		DuplicatesDetectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kejora_duplicates_detected_total",
			Help: "Duplicate filter detections by layer.",
		}, []string{"layer"}),
	}

	reg.MustRegister(
		r.ErrorsTotal,
		r.ModelLatency,
		r.ModelTokens,
		r.BreakerTransitions,
		r.LockTimeouts,
		r.DegradedModeActivations,
		r.EarlyExits,
		r.CacheDBInconsistencies,
		r.PromotionsTotal,
		r.DuplicatesDetectedTotal,
	)

	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for the /metrics HTTP
// handler without leaking the concrete *prometheus.Registry type.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Status is a component's health classification.
type Status string

const (
	StatusHealthy     Status = "HEALTHY"
	StatusDegraded    Status = "DEGRADED"
	StatusUnavailable Status = "UNAVAILABLE"
)

// HealthRegistry exposes {component -> Status} for the liveness endpoint.
// Writes are infrequent (component transitions); reads happen on every
// /health poll, so a RWMutex matches the access pattern.
type HealthRegistry struct {
	mu         sync.RWMutex
	components map[string]Status
}

// NewHealthRegistry returns an empty registry; components register their
// initial status during startup.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{components: make(map[string]Status)}
}

// Set records the current status of a component.
func (h *HealthRegistry) Set(component string, status Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[component] = status
}

// Snapshot returns a copy of the full {component -> Status} map.
func (h *HealthRegistry) Snapshot() map[string]Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]Status, len(h.components))
	for k, v := range h.components {
		out[k] = v
	}
	return out
}
