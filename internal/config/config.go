package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RouterStrategy selects how the model router picks among available models.
type RouterStrategy string

const (
	StrategyCostOptimized RouterStrategy = "cost_optimized"
	StrategyPerformance   RouterStrategy = "performance"
	StrategyBalanced      RouterStrategy = "balanced"
)

// Config is the immutable orchestrator configuration, resolved once at startup.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Router       RouterConfig       `mapstructure:"router"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// OrchestratorConfig holds scheduling knobs for the workflow engine.
type OrchestratorConfig struct {
	WorkerCount            int           `mapstructure:"worker_count"`
	MonitorInterval        time.Duration `mapstructure:"monitor_interval"`
	ReadyQueueCapacity     int           `mapstructure:"ready_queue_capacity"`
	DefaultTaskMaxRetries  int           `mapstructure:"default_task_max_retries"`
	SkipOnDependencyFailed bool          `mapstructure:"skip_on_dependency_failure"`
	// DefinitionsDir, when set, is scanned for workflow definition YAML
	// files at startup and watched for changes.
	DefinitionsDir string `mapstructure:"definitions_dir"`
}

// RouterConfig holds model router knobs.
type RouterConfig struct {
	Strategy            RouterStrategy `mapstructure:"strategy"`
	FallbackEnabled     bool           `mapstructure:"fallback_enabled"`
	MaxRetries          int            `mapstructure:"max_retries"`
	HealthCheckInterval time.Duration  `mapstructure:"health_check_interval"`
	// RateLimitRPS throttles calls per provider when > 0.
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
}

// MemoryConfig holds memory store knobs. PeerURL empty means in-memory only.
type MemoryConfig struct {
	PeerURL       string        `mapstructure:"peer_url"`
	PeerPassword  string        `mapstructure:"peer_password"`
	PeerTimeout   time.Duration `mapstructure:"peer_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	ShortTermTTL  time.Duration `mapstructure:"short_term_ttl"`
	WorkflowTTL   time.Duration `mapstructure:"workflow_ttl"`
	SharedTTL     time.Duration `mapstructure:"shared_ttl"`
	LongTermTTL   time.Duration `mapstructure:"long_term_ttl"`
}

// LoggingConfig controls the zap logger built in cmd.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig controls optional OTLP tracing.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("orchestrator.worker_count", 3)
	v.SetDefault("orchestrator.monitor_interval", "10s")
	v.SetDefault("orchestrator.ready_queue_capacity", 1024)
	v.SetDefault("orchestrator.default_task_max_retries", 3)
	v.SetDefault("orchestrator.skip_on_dependency_failure", false)
	v.SetDefault("orchestrator.definitions_dir", "")

	v.SetDefault("router.strategy", string(StrategyBalanced))
	v.SetDefault("router.fallback_enabled", true)
	v.SetDefault("router.max_retries", 3)
	v.SetDefault("router.health_check_interval", "5m")
	v.SetDefault("router.rate_limit_rps", 0)

	v.SetDefault("memory.peer_url", "")
	v.SetDefault("memory.peer_timeout", "2s")
	v.SetDefault("memory.sweep_interval", "1m")
	v.SetDefault("memory.short_term_ttl", "1h")
	v.SetDefault("memory.workflow_ttl", "24h")
	v.SetDefault("memory.shared_ttl", "168h")
	v.SetDefault("memory.long_term_ttl", "720h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "contractpilot-orchestrator")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// Load reads configuration from CONFIG_PATH (or ./config/orchestrator.yaml),
// applies ORCHESTRATOR_* environment overrides, and validates the result.
// A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config/orchestrator.yaml"
	}
	if _, err := os.Stat(cfgPath); err == nil {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that would otherwise surface as runtime faults.
func (c *Config) Validate() error {
	if c.Orchestrator.WorkerCount <= 0 {
		return fmt.Errorf("orchestrator.worker_count must be positive, got %d", c.Orchestrator.WorkerCount)
	}
	if c.Orchestrator.ReadyQueueCapacity <= 0 {
		return fmt.Errorf("orchestrator.ready_queue_capacity must be positive, got %d", c.Orchestrator.ReadyQueueCapacity)
	}
	if c.Orchestrator.DefaultTaskMaxRetries < 0 {
		return fmt.Errorf("orchestrator.default_task_max_retries cannot be negative")
	}
	if c.Orchestrator.MonitorInterval <= 0 {
		return fmt.Errorf("orchestrator.monitor_interval must be positive")
	}
	switch c.Router.Strategy {
	case StrategyCostOptimized, StrategyPerformance, StrategyBalanced:
	default:
		return fmt.Errorf("router.strategy must be one of cost_optimized, performance, balanced; got %q", c.Router.Strategy)
	}
	if c.Router.MaxRetries < 0 {
		return fmt.Errorf("router.max_retries cannot be negative")
	}
	if c.Router.HealthCheckInterval <= 0 {
		return fmt.Errorf("router.health_check_interval must be positive")
	}
	if c.Memory.PeerTimeout <= 0 {
		return fmt.Errorf("memory.peer_timeout must be positive")
	}
	for name, ttl := range map[string]time.Duration{
		"memory.short_term_ttl": c.Memory.ShortTermTTL,
		"memory.workflow_ttl":   c.Memory.WorkflowTTL,
		"memory.shared_ttl":     c.Memory.SharedTTL,
		"memory.long_term_ttl":  c.Memory.LongTermTTL,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// Default returns the configuration used when no file or env overrides exist.
// Tests and embedded callers use this instead of Load.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are statically known-good; Unmarshal cannot fail on them.
	_ = v.Unmarshal(&cfg)
	return &cfg
}
