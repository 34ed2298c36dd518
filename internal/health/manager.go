package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const checkTimeout = 5 * time.Second

// Manager runs registered checkers on an interval and serves cached results.
// Handlers never trigger probes inline; a slow dependency cannot slow a
// readiness poll.
type Manager struct {
	logger   *zap.Logger
	interval time.Duration

	mu       sync.RWMutex
	checkers map[string]Checker
	results  map[string]CheckResult

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewManager builds a manager polling at the given interval (default 15s).
func NewManager(interval time.Duration, logger *zap.Logger) *Manager {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Manager{
		logger:   logger,
		interval: interval,
		checkers: make(map[string]Checker),
		results:  make(map[string]CheckResult),
		stopCh:   make(chan struct{}),
	}
}

// Register adds a checker. Duplicate names replace the prior one.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	m.checkers[c.Name()] = c
	m.mu.Unlock()
}

// Start runs an immediate pass then polls in the background.
func (m *Manager) Start() {
	m.runChecks()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.runChecks()
			}
		}
	}()
}

// Stop halts background polling.
func (m *Manager) Stop() {
	m.once.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Manager) runChecks() {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	for _, c := range checkers {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		started := time.Now()
		result := c.Check(ctx)
		cancel()

		result.Component = c.Name()
		result.Critical = c.IsCritical()
		result.Duration = time.Since(started)
		result.Timestamp = time.Now()

		if result.Status != StatusHealthy {
			m.logger.Warn("Health check not healthy",
				zap.String("component", c.Name()),
				zap.String("status", result.Status.String()),
				zap.String("message", result.Message))
		}

		m.mu.Lock()
		m.results[c.Name()] = result
		m.mu.Unlock()
	}
}

// Report returns the aggregated snapshot. Unhealthy criticals dominate;
// anything else non-healthy degrades.
func (m *Manager) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := Report{
		Status:     StatusHealthy,
		Ready:      true,
		Components: make(map[string]CheckResult, len(m.results)),
		Timestamp:  time.Now(),
	}
	for name, result := range m.results {
		report.Components[name] = result
		switch {
		case result.Status == StatusUnhealthy && result.Critical:
			report.Status = StatusUnhealthy
			report.Ready = false
		case result.Status != StatusHealthy && report.Status == StatusHealthy:
			report.Status = StatusDegraded
		}
	}
	return report
}

// Handler serves the full report on /healthz and a readiness bit on /readyz.
func (m *Manager) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		report := m.Report()
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if m.Report().Ready {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})
	return mux
}
