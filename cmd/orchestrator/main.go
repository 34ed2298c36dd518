package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/contractpilot/orchestrator/internal/agents"
	"github.com/contractpilot/orchestrator/internal/circuitbreaker"
	"github.com/contractpilot/orchestrator/internal/config"
	"github.com/contractpilot/orchestrator/internal/health"
	"github.com/contractpilot/orchestrator/internal/memory"
	"github.com/contractpilot/orchestrator/internal/models"
	"github.com/contractpilot/orchestrator/internal/pricing"
	"github.com/contractpilot/orchestrator/internal/router"
	"github.com/contractpilot/orchestrator/internal/tools"
	"github.com/contractpilot/orchestrator/internal/tracing"
	"github.com/contractpilot/orchestrator/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing := func(context.Context) error { return nil }
	if cfg.Tracing.Enabled {
		shutdownTracing, err = tracing.Initialize(cfg.Tracing, logger)
		if err != nil {
			logger.Warn("Tracing disabled", zap.Error(err))
			shutdownTracing = func(context.Context) error { return nil }
		}
	}

	table := loadPricing(logger)

	var peer circuitbreaker.PeerClient
	if cfg.Memory.PeerURL != "" {
		wrapper, err := circuitbreaker.DialPeer(cfg.Memory.PeerURL, cfg.Memory.PeerPassword, cfg.Memory.PeerTimeout, logger)
		if err != nil {
			logger.Warn("Durable peer unreachable, running cache-only",
				zap.String("peer_url", cfg.Memory.PeerURL), zap.Error(err))
		} else {
			peer = wrapper
		}
	}

	store := memory.NewStore(cfg.Memory, peer, logger)
	store.Start()

	modelRouter := router.New(cfg.Router, table, logger)
	registerAdapters(modelRouter, logger)
	registerModels(modelRouter, logger)

	registry := tools.NewRegistry(store, logger)
	registry.Register(tools.NewDocumentSplitter())
	registry.Register(tools.NewFieldExtractor())
	registry.Register(tools.NewContractAssembler())
	registry.Register(tools.NewComplianceChecklist())
	registry.Register(tools.NewSignatureStatus(store))
	registry.Register(tools.NewSummaryWriter(modelRouter))
	registry.Register(tools.NewKnowledgeLookup(store))

	toolExists := func(name string) bool {
		_, ok := registry.Get(name)
		return ok
	}
	orchestrator := workflow.New(cfg.Orchestrator, store, toolExists, logger)
	registry.Register(tools.NewWorkflowStatus(orchestrator))

	for _, role := range agents.AllRoles() {
		runtime, err := agents.NewRuntime(role, modelRouter, registry, store, logger)
		if err != nil {
			logger.Fatal("Failed to build agent runtime", zap.String("role", string(role)), zap.Error(err))
		}
		orchestrator.RegisterExecutor(role, runtime)
	}
	orchestrator.Start()

	var loader *workflow.DefinitionLoader
	if cfg.Orchestrator.DefinitionsDir != "" {
		loader, err = workflow.NewDefinitionLoader(cfg.Orchestrator.DefinitionsDir, orchestrator, logger)
		if err != nil {
			logger.Fatal("Failed to build definition loader", zap.Error(err))
		}
		loaded, err := loader.Start()
		if err != nil {
			logger.Fatal("Failed to load workflow definitions", zap.Error(err))
		}
		logger.Info("Workflow definitions loaded",
			zap.String("dir", cfg.Orchestrator.DefinitionsDir),
			zap.Int("count", loaded))
	}

	healthManager := health.NewManager(15*time.Second, logger)
	healthManager.Register(&health.StoreChecker{Store: store, PeerConfigured: cfg.Memory.PeerURL != ""})
	healthManager.Register(&health.RouterChecker{Router: modelRouter})
	healthManager.Start()

	mux := http.NewServeMux()
	mux.Handle("/healthz", healthManager.Handler())
	mux.Handle("/readyz", healthManager.Handler())
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)
	if loader != nil {
		_ = loader.Close()
	}
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Orchestrator shutdown timed out", zap.Error(err))
	}
	healthManager.Stop()
	store.Close()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// loadPricing reads the model pricing table. A missing file falls back to
// flat default pricing.
func loadPricing(logger *zap.Logger) *pricing.Table {
	path := os.Getenv("PRICING_PATH")
	if path == "" {
		path = "./config/models.yaml"
	}
	table, err := pricing.LoadFile(path)
	if err != nil {
		logger.Warn("Pricing table not loaded, using defaults",
			zap.String("path", path), zap.Error(err))
		return pricing.NewTable()
	}
	logger.Info("Pricing table loaded", zap.String("path", path))
	return table
}

// registerAdapters wires one adapter per provider whose credentials are
// present in the environment.
func registerAdapters(r *router.Router, logger *zap.Logger) {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		base := envOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1")
		r.RegisterAdapter(router.NewAggregatorAdapter(base, key))
		logger.Info("Provider adapter registered", zap.String("provider", "openrouter"))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		base := envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
		r.RegisterAdapter(router.NewOpenAIAdapter(base, key))
		logger.Info("Provider adapter registered", zap.String("provider", "openai"))
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		base := envOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com")
		r.RegisterAdapter(router.NewAnthropicAdapter(base, key))
		logger.Info("Provider adapter registered", zap.String("provider", "anthropic"))
	}
	if base := os.Getenv("OLLAMA_BASE_URL"); base != "" {
		r.RegisterAdapter(router.NewLocalAdapter(base))
		logger.Info("Provider adapter registered", zap.String("provider", "local"))
	}
}

// registerModels reads MODELS, a comma-separated list of entries shaped
// model_id[:performance_score], and registers each with its detected
// provider. Cost comes from the pricing table.
func registerModels(r *router.Router, logger *zap.Logger) {
	raw := os.Getenv("MODELS")
	if raw == "" {
		logger.Warn("MODELS is empty; no models registered at startup")
		return
	}

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		id := entry
		score := 0.5
		if name, rawScore, ok := strings.Cut(entry, ":"); ok {
			if parsed, err := strconv.ParseFloat(rawScore, 64); err == nil && parsed >= 0 && parsed <= 1 {
				id = name
				score = parsed
			}
		}

		info := models.ModelInfo{
			ID:               id,
			Name:             id,
			Provider:         models.DetectProvider(id),
			PerformanceScore: score,
			IsAvailable:      true,
		}
		if err := r.RegisterModel(info); err != nil {
			logger.Warn("Skipping model without a provider adapter",
				zap.String("model", id), zap.Error(err))
			continue
		}
		logger.Info("Model registered",
			zap.String("model", id),
			zap.String("provider", string(info.Provider)),
			zap.Float64("performance_score", score))
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
