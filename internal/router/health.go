package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/contractpilot/orchestrator/internal/models"
)

// maybeHealthCheck runs a provider sweep when the last one is older than the
// configured interval. Serialized so concurrent workers don't stampede the
// providers; late arrivals observe the refreshed timestamp and return.
func (r *Router) maybeHealthCheck(ctx context.Context) {
	r.healthMu.Lock()
	if time.Since(r.lastHealthCheck) < r.cfg.HealthCheckInterval {
		r.healthMu.Unlock()
		return
	}
	r.lastHealthCheck = time.Now()
	r.healthMu.Unlock()

	r.CheckHealth(ctx)
}

// CheckHealth pings every registered provider and flips availability for all
// of that provider's models accordingly.
func (r *Router) CheckHealth(ctx context.Context) {
	r.mu.RLock()
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		adapters = append(adapters, a)
	}
	r.mu.RUnlock()

	now := time.Now()
	for _, adapter := range adapters {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := adapter.HealthCheck(checkCtx)
		cancel()

		r.setProviderAvailability(adapter.Provider(), err == nil, now)
		if err != nil {
			r.logger.Warn("Provider health check failed",
				zap.String("provider", string(adapter.Provider())),
				zap.Error(err),
			)
		}
	}
}

// setProviderAvailability flips every model of one provider. Compare-and-set
// per model: already-matching entries only get their check timestamp bumped.
func (r *Router) setProviderAvailability(p models.Provider, available bool, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.registry {
		if m.Provider != p {
			continue
		}
		m.IsAvailable = available
		m.LastHealthCheck = at
	}
	r.updateAvailableGaugeLocked()
}

// Healthy reports whether at least one model is currently available. Used by
// the health manager's router checker.
func (r *Router) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.registry {
		if m.IsAvailable {
			return true
		}
	}
	return false
}
