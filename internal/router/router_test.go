package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contractpilot/orchestrator/internal/config"
	"github.com/contractpilot/orchestrator/internal/models"
	"github.com/contractpilot/orchestrator/internal/pricing"
)

// fakeAdapter scripts per-model outcomes and records invocations.
type fakeAdapter struct {
	provider models.Provider

	mu         sync.Mutex
	invoked    []string
	failFor    map[string]error
	content    string
	healthErr  error
	healthRuns int
}

func newFakeAdapter(p models.Provider) *fakeAdapter {
	return &fakeAdapter{
		provider: p,
		failFor:  make(map[string]error),
		content:  "ok",
	}
}

func (f *fakeAdapter) Provider() models.Provider { return f.provider }

func (f *fakeAdapter) Invoke(ctx context.Context, model *models.ModelInfo, req *models.ModelRequest) (*AdapterResult, error) {
	f.mu.Lock()
	f.invoked = append(f.invoked, model.ID)
	err := f.failFor[model.ID]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &AdapterResult{
		Content: f.content,
		Usage:   models.TokenUsage{PromptTokens: 70, CompletionTokens: 30, TotalTokens: 100},
	}, nil
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthRuns++
	return f.healthErr
}

func (f *fakeAdapter) invocations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.invoked...)
}

func testRouterConfig(strategy config.RouterStrategy) config.RouterConfig {
	return config.RouterConfig{
		Strategy:            strategy,
		FallbackEnabled:     true,
		MaxRetries:          3,
		HealthCheckInterval: time.Hour,
	}
}

func newTestRouter(t *testing.T, strategy config.RouterStrategy, adapters ...Adapter) *Router {
	t.Helper()
	r := New(testRouterConfig(strategy), pricing.NewTable(), zap.NewNop())
	for _, a := range adapters {
		r.RegisterAdapter(a)
	}
	return r
}

func registerModel(t *testing.T, r *Router, id string, p models.Provider, cost, perf float64) {
	t.Helper()
	require.NoError(t, r.RegisterModel(models.ModelInfo{
		ID:               id,
		Name:             id,
		Provider:         p,
		CostPerToken:     cost,
		PerformanceScore: perf,
		IsAvailable:      true,
	}))
}

func TestFallbackToNextModel(t *testing.T) {
	adapter := newFakeAdapter(models.ProviderOpenAI)
	r := newTestRouter(t, config.StrategyCostOptimized, adapter)

	registerModel(t, r, "m1-cheap", models.ProviderOpenAI, 0.000001, 0.5)
	registerModel(t, r, "m2-pricey", models.ProviderOpenAI, 0.00001, 0.9)
	adapter.failFor["m1-cheap"] = errors.New("provider 502")

	resp, err := r.GenerateResponse(context.Background(), &models.ModelRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	// Cheapest first, then exactly one fallback to the pricier model.
	assert.Equal(t, []string{"m1-cheap", "m2-pricey"}, adapter.invocations())
	assert.Equal(t, "m2-pricey", resp.ModelUsed)

	m1, ok := r.GetModel("m1-cheap")
	require.True(t, ok)
	assert.False(t, m1.IsAvailable)
}

func TestFallbackDisabledFailsFast(t *testing.T) {
	adapter := newFakeAdapter(models.ProviderOpenAI)
	cfg := testRouterConfig(config.StrategyCostOptimized)
	cfg.FallbackEnabled = false
	r := New(cfg, pricing.NewTable(), zap.NewNop())
	r.RegisterAdapter(adapter)

	registerModel(t, r, "m1", models.ProviderOpenAI, 0.000001, 0.5)
	registerModel(t, r, "m2", models.ProviderOpenAI, 0.00001, 0.9)
	adapter.failFor["m1"] = errors.New("boom")

	_, err := r.GenerateResponse(context.Background(), &models.ModelRequest{})
	require.ErrorIs(t, err, ErrNoModelAvailable)
	assert.Equal(t, []string{"m1"}, adapter.invocations())
}

func TestNoModelAvailable(t *testing.T) {
	r := newTestRouter(t, config.StrategyBalanced, newFakeAdapter(models.ProviderOpenAI))
	_, err := r.GenerateResponse(context.Background(), &models.ModelRequest{})
	assert.ErrorIs(t, err, ErrNoModelAvailable)
}

func TestNeverSelectsUnavailableModel(t *testing.T) {
	adapter := newFakeAdapter(models.ProviderOpenAI)
	r := newTestRouter(t, config.StrategyCostOptimized, adapter)

	require.NoError(t, r.RegisterModel(models.ModelInfo{
		ID: "down", Provider: models.ProviderOpenAI,
		CostPerToken: 0.0000001, IsAvailable: false,
	}))
	registerModel(t, r, "up", models.ProviderOpenAI, 0.001, 0.5)

	resp, err := r.GenerateResponse(context.Background(), &models.ModelRequest{})
	require.NoError(t, err)
	assert.Equal(t, "up", resp.ModelUsed)
}

func TestPreferenceOverridesPolicy(t *testing.T) {
	adapter := newFakeAdapter(models.ProviderOpenAI)
	r := newTestRouter(t, config.StrategyCostOptimized, adapter)

	registerModel(t, r, "cheap", models.ProviderOpenAI, 0.000001, 0.2)
	registerModel(t, r, "preferred", models.ProviderOpenAI, 0.01, 0.9)

	resp, err := r.GenerateResponse(context.Background(), &models.ModelRequest{
		ModelPreference: "preferred",
	})
	require.NoError(t, err)
	assert.Equal(t, "preferred", resp.ModelUsed)
}

func TestUnavailablePreferenceFallsBackToPolicy(t *testing.T) {
	adapter := newFakeAdapter(models.ProviderOpenAI)
	r := newTestRouter(t, config.StrategyCostOptimized, adapter)

	require.NoError(t, r.RegisterModel(models.ModelInfo{
		ID: "preferred", Provider: models.ProviderOpenAI, IsAvailable: false,
	}))
	registerModel(t, r, "cheap", models.ProviderOpenAI, 0.000001, 0.2)

	resp, err := r.GenerateResponse(context.Background(), &models.ModelRequest{
		ModelPreference: "preferred",
	})
	require.NoError(t, err)
	assert.Equal(t, "cheap", resp.ModelUsed)
}

func TestSelectionStrategies(t *testing.T) {
	setup := func(strategy config.RouterStrategy) (*Router, *fakeAdapter) {
		adapter := newFakeAdapter(models.ProviderOpenAI)
		r := newTestRouter(t, strategy, adapter)
		// cheap-weak: cheapest; strong-pricey: best performance;
		// mid: best cost/performance ratio.
		registerModel(t, r, "cheap-weak", models.ProviderOpenAI, 0.000001, 0.1)
		registerModel(t, r, "strong-pricey", models.ProviderOpenAI, 0.0001, 0.95)
		registerModel(t, r, "mid", models.ProviderOpenAI, 0.000002, 0.8)
		return r, adapter
	}

	cases := []struct {
		strategy config.RouterStrategy
		want     string
	}{
		{config.StrategyCostOptimized, "cheap-weak"},
		{config.StrategyPerformance, "strong-pricey"},
		{config.StrategyBalanced, "mid"},
	}
	for _, tc := range cases {
		t.Run(string(tc.strategy), func(t *testing.T) {
			r, _ := setup(tc.strategy)
			resp, err := r.GenerateResponse(context.Background(), &models.ModelRequest{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.ModelUsed)
		})
	}
}

func TestTokenUsageSumsAndCost(t *testing.T) {
	adapter := newFakeAdapter(models.ProviderOpenAI)
	r := newTestRouter(t, config.StrategyBalanced, adapter)
	registerModel(t, r, "m", models.ProviderOpenAI, 0.00001, 0.9)

	resp, err := r.GenerateResponse(context.Background(), &models.ModelRequest{})
	require.NoError(t, err)

	u := resp.TokenUsage
	assert.Equal(t, u.TotalTokens, u.PromptTokens+u.CompletionTokens)
	assert.InDelta(t, float64(u.TotalTokens)*0.00001, resp.Cost, 1e-12)
	assert.Greater(t, resp.ProcessingTime, time.Duration(0))
}

func TestLocalModelCostsNothing(t *testing.T) {
	adapter := newFakeAdapter(models.ProviderLocal)
	r := newTestRouter(t, config.StrategyBalanced, adapter)
	registerModel(t, r, "llama3", models.ProviderLocal, 0, 0.6)

	resp, err := r.GenerateResponse(context.Background(), &models.ModelRequest{})
	require.NoError(t, err)
	assert.Zero(t, resp.Cost)
}

func TestHealthCheckRestoresProvider(t *testing.T) {
	adapter := newFakeAdapter(models.ProviderOpenAI)
	r := newTestRouter(t, config.StrategyBalanced, adapter)
	registerModel(t, r, "m1", models.ProviderOpenAI, 0.00001, 0.9)
	registerModel(t, r, "m2", models.ProviderOpenAI, 0.00002, 0.8)

	r.markUnavailable("m1")
	r.markUnavailable("m2")
	require.False(t, r.Healthy())

	r.CheckHealth(context.Background())

	require.True(t, r.Healthy())
	m1, _ := r.GetModel("m1")
	m2, _ := r.GetModel("m2")
	assert.True(t, m1.IsAvailable)
	assert.True(t, m2.IsAvailable)
	assert.False(t, m1.LastHealthCheck.IsZero())
}

func TestHealthCheckFailureDisablesProvider(t *testing.T) {
	adapter := newFakeAdapter(models.ProviderOpenAI)
	adapter.healthErr = errors.New("connection refused")
	r := newTestRouter(t, config.StrategyBalanced, adapter)
	registerModel(t, r, "m1", models.ProviderOpenAI, 0.00001, 0.9)

	r.CheckHealth(context.Background())

	m1, _ := r.GetModel("m1")
	assert.False(t, m1.IsAvailable)
	assert.False(t, r.Healthy())
}

func TestRegisterModelRequiresAdapter(t *testing.T) {
	r := New(testRouterConfig(config.StrategyBalanced), pricing.NewTable(), zap.NewNop())
	err := r.RegisterModel(models.ModelInfo{ID: "m", Provider: models.ProviderAnthropic})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestConcurrentGenerateResponses(t *testing.T) {
	adapter := newFakeAdapter(models.ProviderOpenAI)
	r := newTestRouter(t, config.StrategyBalanced, adapter)
	registerModel(t, r, "m", models.ProviderOpenAI, 0.00001, 0.9)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.GenerateResponse(context.Background(), &models.ModelRequest{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, adapter.invocations(), 16)
}
