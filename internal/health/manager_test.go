package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticChecker struct {
	name     string
	status   CheckStatus
	critical bool
}

func (c *staticChecker) Name() string     { return c.name }
func (c *staticChecker) IsCritical() bool { return c.critical }

func (c *staticChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{Status: c.status}
}

func newStartedManager(t *testing.T, checkers ...Checker) *Manager {
	t.Helper()
	m := NewManager(time.Hour, zap.NewNop())
	for _, c := range checkers {
		m.Register(c)
	}
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func TestReportAllHealthy(t *testing.T) {
	m := newStartedManager(t,
		&staticChecker{name: "a", status: StatusHealthy, critical: true},
		&staticChecker{name: "b", status: StatusHealthy},
	)

	report := m.Report()
	assert.Equal(t, StatusHealthy, report.Status)
	assert.True(t, report.Ready)
	assert.Len(t, report.Components, 2)
}

func TestCriticalFailureMarksUnhealthy(t *testing.T) {
	m := newStartedManager(t,
		&staticChecker{name: "models", status: StatusUnhealthy, critical: true},
		&staticChecker{name: "peer", status: StatusHealthy},
	)

	report := m.Report()
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.False(t, report.Ready)
}

func TestNonCriticalFailureOnlyDegrades(t *testing.T) {
	m := newStartedManager(t,
		&staticChecker{name: "models", status: StatusHealthy, critical: true},
		&staticChecker{name: "peer", status: StatusUnhealthy},
	)

	report := m.Report()
	assert.Equal(t, StatusDegraded, report.Status)
	assert.True(t, report.Ready)
}

func TestHandlerEndpoints(t *testing.T) {
	m := newStartedManager(t, &staticChecker{name: "ok", status: StatusHealthy, critical: true})
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestHandlerNotReadyWhenCriticalDown(t *testing.T) {
	m := newStartedManager(t, &staticChecker{name: "down", status: StatusUnhealthy, critical: true})
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
