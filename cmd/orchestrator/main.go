// Command orchestrator boots the Agentic RAG Orchestrator process: it loads
// configuration, wires every component (§4), starts the HTTP surface
// (§6), and shuts down gracefully on signal — the same start/wait/stop
// shape as the teacher's core/lynx.Lynx lifecycle, adapted from a job-list
// to a single http.Server since this domain has no job/broker/worker system.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"

	"github.com/kejora-ai/orchestrator/internal/config"
	"github.com/kejora-ai/orchestrator/internal/httpapi"
	"github.com/kejora-ai/orchestrator/pkg/dedup"
	"github.com/kejora-ai/orchestrator/pkg/gateway"
	"github.com/kejora-ai/orchestrator/pkg/kg"
	"github.com/kejora-ai/orchestrator/pkg/memory"
	"github.com/kejora-ai/orchestrator/pkg/metrics"
	"github.com/kejora-ai/orchestrator/pkg/orchestrator"
	"github.com/kejora-ai/orchestrator/pkg/pipeline"
	"github.com/kejora-ai/orchestrator/pkg/reasoning"
	"github.com/kejora-ai/orchestrator/pkg/retriever"
	"github.com/kejora-ai/orchestrator/pkg/tools"
)

func main() {
	if err := run(); err != nil {
		slog.Error("orchestrator exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := newApp(cfg)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	if err := app.start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	app.wait()
	return app.stop()
}

// app bundles every process-lifetime resource so start/wait/stop can close
// them down in the right order, mirroring core/lynx.Lynx.
type app struct {
	httpServer *http.Server
	stopChan   chan os.Signal
}

func newApp(cfg *config.Config) (*app, error) {
	m := metrics.New()
	health := metrics.NewHealthRegistry()

	db, err := sqlx.Connect("postgres", cfg.PostgresDSN)
	if err != nil {
		health.Set("postgres", metrics.StatusUnavailable)
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	health.Set("postgres", metrics.StatusHealthy)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		slog.Warn("redis unavailable at startup; conversation cache runs degraded", "error", err)
		health.Set("redis", metrics.StatusDegraded)
	} else {
		health.Set("redis", metrics.StatusHealthy)
	}

	qdrantHost, qdrantPort, err := splitHostPort(cfg.QdrantAddr)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant address: %w", err)
	}
	qdrantClient, err := qdrant.NewClient(&qdrant.Config{Host: qdrantHost, Port: qdrantPort})
	if err != nil {
		health.Set("qdrant", metrics.StatusUnavailable)
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	health.Set("qdrant", metrics.StatusHealthy)

	providers, err := newProviders(cfg)
	if err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}

	gwCfg := cfg.GatewayConfig()
	gwCfg.Chains = providers.chains
	gwCfg.Metrics = m
	gw, err := gateway.New(&gwCfg)
	if err != nil {
		return nil, fmt.Errorf("build gateway: %w", err)
	}

	collections := map[string]retriever.CollectionIndex{
		"immigration_rules": retriever.NewQdrantIndex(qdrantClient, "immigration_rules", true),
		"tax_rules":         retriever.NewQdrantIndex(qdrantClient, "tax_rules", true),
		"corporate_rules":   retriever.NewQdrantIndex(qdrantClient, "corporate_rules", true),
	}
	retr, err := retriever.New(providers.embedder, providers.sparse, m, collections)
	if err != nil {
		return nil, fmt.Errorf("build retriever: %w", err)
	}

	dedupFilter, err := dedup.New(providers.embedder, cfg.DedupPersistPath)
	if err != nil {
		return nil, fmt.Errorf("build dedup filter: %w", err)
	}

	memStore, err := memory.New(db, providers.extractor, m, cfg.CollectiveEnabled)
	if err != nil {
		slog.Error("memory store unavailable at startup", "error", err)
		health.Set("memory", metrics.StatusUnavailable)
		return nil, fmt.Errorf("build memory store: %w", err)
	}
	health.Set("memory", metrics.StatusHealthy)
	if memStore.Collective != nil {
		memStore.Collective.WithThreshold(cfg.PromotionThreshold)
	}

	graph := kg.New()
	if err := kg.Seed(graph); err != nil {
		return nil, fmt.Errorf("seed knowledge graph: %w", err)
	}

	registry := tools.NewRegistry()
	if vs, err := tools.NewVectorSearchTool(retr); err == nil {
		registry.Register(vs)
	}
	if calc, err := tools.NewCalculatorTool(); err == nil {
		registry.Register(calc)
	}
	if kgTool, err := tools.NewKnowledgeGraphSearchTool(graph); err == nil {
		registry.Register(kgTool)
	}
	pricingCatalog := tools.NewDefaultPricingCatalog()
	if pricingTool, err := tools.NewStructuredPricingLookupTool(pricingCatalog); err == nil {
		registry.Register(pricingTool)
	}

	// MaxSteps is left unset so each query's step budget varies by classified
	// intent (intent.StepBudget, via reasoning.Engine.maxStepsFor) rather than
	// a flat ceiling.
	reasonerCfg := reasoning.Config{
		SystemPrompt: "You are a precise legal research assistant for Indonesian immigration, tax, and corporate law. Use tools before answering.",
		Tier:         "default",
		ToolTimeout:  cfg.ToolTimeout,
	}
	reasoner, err := pipeline.NewReasoner(gw, registry, reasonerCfg, m)
	if err != nil {
		return nil, fmt.Errorf("build reasoner: %w", err)
	}
	calibrator := pipeline.NewCalibrator(pipeline.DefaultKnownCorrections, pricingCatalog, nil)
	synthesizer := pipeline.NewSynthesizer(gw, pipeline.SynthesizerConfig{Tier: "default"})
	p := pipeline.New(reasoner, calibrator, synthesizer)

	conversations := orchestrator.NewConversationStore(redisClient, db, m)
	followups := orchestrator.NewFollowupGenerator(gw, "default")

	tokenizer, err := gateway.NewCL100KTokenEstimator()
	if err != nil {
		slog.Warn("token estimator unavailable; history truncation disabled", "error", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		Pipeline:      p,
		Memory:        memStore,
		Conversations: conversations,
		Followups:     followups,
		Metrics:       m,
		Tokenizer:     tokenizer,
	})

	handler := httpapi.NewHandler(httpapi.Config{
		Orchestrator: orch,
		Retriever:    retr,
		Dedup:        dedupFilter,
		Health:       health,
		Metrics:      m,
	})
	router := httpapi.NewRouter(handler)

	return &app{
		httpServer: &http.Server{Addr: cfg.HTTPAddr, Handler: router},
		stopChan:   make(chan os.Signal, 1),
	}, nil
}

func (a *app) start() error {
	slog.Info("-----------------")
	slog.Info("------- orchestrator start --------")
	slog.Info("-----------------")

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		slog.Info("listening", "addr", a.httpServer.Addr)
		return nil
	}
}

func (a *app) wait() {
	slog.Info("-----------------")
	slog.Info("------- orchestrator wait --------")
	slog.Info("-----------------")
	signal.Notify(a.stopChan, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	<-a.stopChan
	close(a.stopChan)
}

func (a *app) stop() error {
	slog.Info("-----------------")
	slog.Info("------- orchestrator stop --------")
	slog.Info("-----------------")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.httpServer.Shutdown(ctx)
}

// providers bundles the collaborators this module deliberately leaves as
// interfaces rather than concrete implementations (§1 "out of scope":
// concrete LLM and embedding providers). newProviders is the single seam an
// operator wires a real backend into; see DESIGN.md.
type providers struct {
	chains    map[gateway.Tier][]gateway.Model
	embedder  retriever.Embedder
	sparse    retriever.SparseEncoder
	extractor memory.Extractor
}

func newProviders(cfg *config.Config) (*providers, error) {
	return nil, errProvidersNotConfigured
}

var errProvidersNotConfigured = errors.New(
	"orchestrator: no concrete model/embedding provider wired; " +
		"implement gateway.Model, retriever.Embedder, retriever.SparseEncoder, " +
		"and memory.Extractor for your chosen LLM/embedding vendor and construct " +
		"them in newProviders (cmd/orchestrator/main.go) before starting the process",
)

// splitHostPort parses a "host:port" address into Qdrant's separate
// Host/Port fields.
func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}
