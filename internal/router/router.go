package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/contractpilot/orchestrator/internal/config"
	"github.com/contractpilot/orchestrator/internal/metrics"
	"github.com/contractpilot/orchestrator/internal/models"
	"github.com/contractpilot/orchestrator/internal/pricing"
	"github.com/contractpilot/orchestrator/internal/tracing"
)

// ErrNoModelAvailable is returned when no registered model is available and
// fallback is exhausted.
var ErrNoModelAvailable = errors.New("no model available")

// ErrUnknownProvider is returned when a model references a provider with no
// registered adapter.
var ErrUnknownProvider = errors.New("no adapter registered for provider")

// Router is the single entry point for all LLM calls. It owns the model
// registry, the selection policy, provider health, and token/cost accounting.
// The registry is read-mostly; availability flips use compare-and-set so two
// concurrent failures produce a single transition. No provider call ever runs
// inside a lock.
type Router struct {
	cfg     config.RouterConfig
	logger  *zap.Logger
	pricing *pricing.Table

	mu       sync.RWMutex
	registry map[string]*models.ModelInfo
	adapters map[models.Provider]Adapter
	limiters map[models.Provider]*rate.Limiter

	healthMu        sync.Mutex
	lastHealthCheck time.Time
}

// New builds a router. The pricing table may be empty; registered models with
// explicit CostPerToken take precedence over table lookups.
func New(cfg config.RouterConfig, table *pricing.Table, logger *zap.Logger) *Router {
	if table == nil {
		table = pricing.NewTable()
	}
	return &Router{
		cfg:      cfg,
		logger:   logger,
		pricing:  table,
		registry: make(map[string]*models.ModelInfo),
		adapters: make(map[models.Provider]Adapter),
		limiters: make(map[models.Provider]*rate.Limiter),
	}
}

// RegisterAdapter installs the adapter for its provider, replacing any prior
// registration.
func (r *Router) RegisterAdapter(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Provider()] = a
	if r.cfg.RateLimitRPS > 0 {
		r.limiters[a.Provider()] = rate.NewLimiter(rate.Limit(r.cfg.RateLimitRPS), 1)
	}
}

// RegisterModel adds a model to the registry. Zero CostPerToken is resolved
// from the pricing table; unset provider is inferred from the model name.
func (r *Router) RegisterModel(info models.ModelInfo) error {
	if info.ID == "" {
		return fmt.Errorf("model id is required")
	}
	if info.Name == "" {
		info.Name = info.ID
	}
	if info.Provider == "" {
		info.Provider = models.DetectProvider(info.Name)
	}
	if info.CostPerToken == 0 && info.Provider != models.ProviderLocal {
		info.CostPerToken = r.pricing.CostPerToken(info.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[info.Provider]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, info.Provider)
	}
	copied := info
	r.registry[info.ID] = &copied
	r.updateAvailableGaugeLocked()
	return nil
}

// GetModel returns a snapshot of one registry entry.
func (r *Router) GetModel(id string) (models.ModelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.registry[id]
	if !ok {
		return models.ModelInfo{}, false
	}
	return *m, true
}

// ListModels returns registry snapshots sorted by id.
func (r *Router) ListModels() []models.ModelInfo {
	r.mu.RLock()
	out := make([]models.ModelInfo, 0, len(r.registry))
	for _, m := range r.registry {
		out = append(out, *m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GenerateResponse selects a model, dispatches to its provider adapter, and
// falls over to the next candidate on provider error. Bounded by the
// configured retry count; concludes with either a response or
// ErrNoModelAvailable.
func (r *Router) GenerateResponse(ctx context.Context, req *models.ModelRequest) (*models.ModelResponse, error) {
	r.maybeHealthCheck(ctx)

	started := time.Now()
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		selected := r.selectModel(req.ModelPreference)
		if selected == nil {
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrNoModelAvailable, lastErr)
			}
			return nil, ErrNoModelAvailable
		}

		adapter := r.adapterFor(selected.Provider)
		if adapter == nil {
			// Registration guards against this; a missing adapter here is
			// a programmer error on the registry.
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, selected.Provider)
		}

		if err := r.waitRateLimit(ctx, selected.Provider); err != nil {
			return nil, err
		}

		callCtx, span := tracing.StartModelSpan(ctx, selected.ID, string(selected.Provider))
		result, err := adapter.Invoke(callCtx, selected, req)
		span.End()

		if err != nil {
			lastErr = err
			metrics.ModelRequests.WithLabelValues(string(selected.Provider), "error").Inc()
			r.markUnavailable(selected.ID)
			r.logger.Warn("Model invocation failed",
				zap.String("model_id", selected.ID),
				zap.String("provider", string(selected.Provider)),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if !r.cfg.FallbackEnabled {
				return nil, fmt.Errorf("%w: %v", ErrNoModelAvailable, err)
			}
			metrics.ModelFallbacks.Inc()
			continue
		}

		cost := r.costFor(selected, result.Usage)
		metrics.ModelRequests.WithLabelValues(string(selected.Provider), "success").Inc()
		metrics.ModelTokensUsed.Observe(float64(result.Usage.TotalTokens))
		metrics.ModelCostUSD.Observe(cost)

		return &models.ModelResponse{
			Content:        result.Content,
			ModelUsed:      selected.ID,
			Provider:       selected.Provider,
			Cost:           cost,
			ProcessingTime: time.Since(started),
			TokenUsage:     result.Usage,
			Metadata:       result.Metadata,
		}, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: retries exhausted: %v", ErrNoModelAvailable, lastErr)
	}
	return nil, ErrNoModelAvailable
}

// selectModel returns a snapshot of the chosen model, or nil when none is
// available. A valid, available preference short-circuits the policy.
func (r *Router) selectModel(preference string) *models.ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if preference != "" {
		if m, ok := r.registry[preference]; ok && m.IsAvailable {
			copied := *m
			return &copied
		}
	}

	var best *models.ModelInfo
	for _, m := range r.registry {
		if !m.IsAvailable {
			continue
		}
		if best == nil || r.better(m, best) {
			best = m
		}
	}
	if best == nil {
		return nil
	}
	copied := *best
	return &copied
}

// better reports whether a beats b under the configured strategy.
func (r *Router) better(a, b *models.ModelInfo) bool {
	switch r.cfg.Strategy {
	case config.StrategyCostOptimized:
		return a.CostPerToken < b.CostPerToken
	case config.StrategyPerformance:
		return a.PerformanceScore > b.PerformanceScore
	default: // balanced: minimize cost per unit of performance
		return balancedScore(a) < balancedScore(b)
	}
}

func balancedScore(m *models.ModelInfo) float64 {
	perf := m.PerformanceScore
	if perf <= 0 {
		perf = 0.01
	}
	return m.CostPerToken / perf
}

func (r *Router) adapterFor(p models.Provider) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[p]
}

func (r *Router) waitRateLimit(ctx context.Context, p models.Provider) error {
	r.mu.RLock()
	limiter := r.limiters[p]
	r.mu.RUnlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// markUnavailable flips a model unavailable. Compare-and-set: a concurrent
// flip that already happened is left alone.
func (r *Router) markUnavailable(modelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.registry[modelID]
	if !ok || !m.IsAvailable {
		return
	}
	m.IsAvailable = false
	r.updateAvailableGaugeLocked()
}

func (r *Router) costFor(m *models.ModelInfo, usage models.TokenUsage) float64 {
	if m.Provider == models.ProviderLocal {
		return 0
	}
	perToken := m.CostPerToken
	if perToken == 0 {
		perToken = r.pricing.CostPerToken(m.Name)
	}
	return float64(usage.TotalTokens) * perToken
}

func (r *Router) updateAvailableGaugeLocked() {
	available := 0
	for _, m := range r.registry {
		if m.IsAvailable {
			available++
		}
	}
	metrics.ModelsAvailable.Set(float64(available))
}
