package health

import (
	"context"
	"fmt"

	"github.com/contractpilot/orchestrator/internal/memory"
	"github.com/contractpilot/orchestrator/internal/router"
)

// StoreChecker reports memory store health. The cache always serves, so a
// lost durable peer degrades rather than fails.
type StoreChecker struct {
	Store          *memory.Store
	PeerConfigured bool
}

func (c *StoreChecker) Name() string     { return "memory_store" }
func (c *StoreChecker) IsCritical() bool { return false }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	stats := c.Store.Stats()
	result := CheckResult{
		Status: StatusHealthy,
		Details: map[string]any{
			"entries":           stats.Total,
			"durable_connected": stats.DurableConnected,
		},
	}
	if c.PeerConfigured && !stats.DurableConnected {
		result.Status = StatusDegraded
		result.Message = "durable peer unreachable, serving from cache only"
	}
	return result
}

// RouterChecker reports model availability. No available model means no task
// can run, so this checker is critical.
type RouterChecker struct {
	Router *router.Router
}

func (c *RouterChecker) Name() string     { return "model_router" }
func (c *RouterChecker) IsCritical() bool { return true }

func (c *RouterChecker) Check(ctx context.Context) CheckResult {
	available := 0
	models := c.Router.ListModels()
	for _, m := range models {
		if m.IsAvailable {
			available++
		}
	}

	result := CheckResult{
		Status: StatusHealthy,
		Details: map[string]any{
			"models_registered": len(models),
			"models_available":  available,
		},
	}
	switch {
	case available == 0:
		result.Status = StatusUnhealthy
		result.Message = "no model available"
	case available < len(models):
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("%d of %d models available", available, len(models))
	}
	return result
}

// CheckerFunc adapts a closure into a non-critical checker.
type CheckerFunc struct {
	CheckName string
	Fn        func(ctx context.Context) CheckResult
}

func (c *CheckerFunc) Name() string     { return c.CheckName }
func (c *CheckerFunc) IsCritical() bool { return false }

func (c *CheckerFunc) Check(ctx context.Context) CheckResult { return c.Fn(ctx) }
