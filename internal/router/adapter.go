package router

import (
	"context"
	"net/http"
	"time"

	"github.com/contractpilot/orchestrator/internal/models"
)

// AdapterResult is what a provider adapter returns: content and raw token
// accounting. Cost and timing are the router's concern.
type AdapterResult struct {
	Content  string
	Usage    models.TokenUsage
	Metadata map[string]any
}

// Adapter converts the common ModelRequest to one provider's wire shape.
// Invoke must be safe for concurrent use; adapters hold no per-call state.
type Adapter interface {
	Provider() models.Provider
	Invoke(ctx context.Context, model *models.ModelInfo, req *models.ModelRequest) (*AdapterResult, error)
	// HealthCheck pings the provider's lightweight endpoint. A nil error
	// marks every model of this provider available.
	HealthCheck(ctx context.Context) error
}

// httpDoer lets tests stub the transport.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}
