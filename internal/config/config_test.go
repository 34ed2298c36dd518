package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Orchestrator.WorkerCount)
	assert.Equal(t, 10*time.Second, cfg.Orchestrator.MonitorInterval)
	assert.Equal(t, 1024, cfg.Orchestrator.ReadyQueueCapacity)
	assert.Equal(t, 3, cfg.Orchestrator.DefaultTaskMaxRetries)
	assert.False(t, cfg.Orchestrator.SkipOnDependencyFailed)

	assert.Equal(t, StrategyBalanced, cfg.Router.Strategy)
	assert.True(t, cfg.Router.FallbackEnabled)
	assert.Equal(t, 3, cfg.Router.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Router.HealthCheckInterval)

	assert.Empty(t, cfg.Memory.PeerURL)
	assert.Equal(t, 2*time.Second, cfg.Memory.PeerTimeout)
	assert.Equal(t, time.Hour, cfg.Memory.ShortTermTTL)
	assert.Equal(t, 24*time.Hour, cfg.Memory.WorkflowTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Memory.SharedTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Memory.LongTermTTL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Orchestrator.WorkerCount = 0 }},
		{"negative retries", func(c *Config) { c.Orchestrator.DefaultTaskMaxRetries = -1 }},
		{"zero queue", func(c *Config) { c.Orchestrator.ReadyQueueCapacity = 0 }},
		{"unknown strategy", func(c *Config) { c.Router.Strategy = "cheapest" }},
		{"zero health interval", func(c *Config) { c.Router.HealthCheckInterval = 0 }},
		{"zero peer timeout", func(c *Config) { c.Memory.PeerTimeout = 0 }},
		{"zero ttl", func(c *Config) { c.Memory.SharedTTL = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("ORCHESTRATOR_ORCHESTRATOR_WORKER_COUNT", "5")
	t.Setenv("ORCHESTRATOR_ROUTER_STRATEGY", "performance")
	t.Setenv("CONFIG_PATH", "/nonexistent/orchestrator.yaml")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Orchestrator.WorkerCount)
	assert.Equal(t, StrategyPerformance, cfg.Router.Strategy)
}
