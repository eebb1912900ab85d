package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/Sentinel-Gate/ratelog/internal/domain/scope"
	"github.com/Sentinel-Gate/ratelog/internal/service"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// Pinger is implemented by remote dependencies that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker verifies component health.
type HealthChecker struct {
	limiter     *service.LimiterService
	statsStore  Pinger
	version     string
	pingTimeout time.Duration
}

// NewHealthChecker creates a HealthChecker. limiter and statsStore may be nil.
func NewHealthChecker(limiter *service.LimiterService, statsStore Pinger, version string) *HealthChecker {
	return &HealthChecker{
		limiter:     limiter,
		statsStore:  statsStore,
		version:     version,
		pingTimeout: 2 * time.Second,
	}
}

// Check performs health checks on all components. Only an unreachable stats
// store makes the process unhealthy; limiter state is informational.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.limiter != nil {
		s := h.limiter.StoreSizes()
		checks["limiter"] = fmt.Sprintf("ok: %d count, %d duration, %d sampling, %d token, %d skip",
			s.Count, s.Duration, s.Sampling, s.Token, s.Skip)
	} else {
		checks["limiter"] = "not configured"
	}

	if h.statsStore != nil {
		pctx, cancel := context.WithTimeout(ctx, h.pingTimeout)
		err := h.statsStore.Ping(pctx)
		cancel()
		if err != nil {
			checks["stats_store"] = "unreachable: " + err.Error()
			healthy = false
		} else {
			checks["stats_store"] = "ok"
		}
	} else {
		checks["stats_store"] = "not configured"
	}

	st := scope.LoadStats()
	checks["scopes"] = fmt.Sprintf("%d open, %d closed", st.Open(), st.Closed)
	checks["goroutines"] = strconv.Itoa(runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
