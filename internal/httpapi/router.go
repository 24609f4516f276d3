// Package httpapi wires the Orchestrator (§4.T2), the Hybrid Retriever
// (§4.L2), and the Duplicate Filter (§4.L5) onto an HTTP surface, modeled on
// the teacher's sse.WithSSE flush loop for the streaming endpoint and on the
// pack's go-chi/chi/v5 router convention (jordigilh-kubernaut's gateway
// middleware tests) for routing and middleware composition.
package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kejora-ai/orchestrator/pkg/dedup"
	"github.com/kejora-ai/orchestrator/pkg/metrics"
	"github.com/kejora-ai/orchestrator/pkg/orchestrator"
	"github.com/kejora-ai/orchestrator/pkg/retriever"
)

// Config bundles everything a Handler needs to serve requests.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Retriever    *retriever.Retriever
	Dedup        *dedup.Filter
	Health       *metrics.HealthRegistry
	Metrics      *metrics.Registry
}

// Handler holds the dependencies behind every route.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	retriever    *retriever.Retriever
	dedup        *dedup.Filter
	health       *metrics.HealthRegistry
	metrics      *metrics.Registry
}

// NewHandler builds a Handler from Config.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		orchestrator: cfg.Orchestrator,
		retriever:    cfg.Retriever,
		dedup:        cfg.Dedup,
		health:       cfg.Health,
		metrics:      cfg.Metrics,
	}
}

// NewRouter builds the chi.Mux exposing every endpoint named in §6.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))

	r.Get("/health", h.Health)
	if h.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.metrics.Gatherer(), promhttp.HandlerOpts{}))
	}

	r.Post("/query", h.Query)
	r.Post("/stream", h.Stream)
	r.Post("/ingest/items", h.IngestItems)

	return r
}
