package server

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// DefaultCheckTimeout bounds each readiness check.
const DefaultCheckTimeout = 2 * time.Second

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// HealthChecker provides health check endpoints for Kubernetes probes.
type HealthChecker struct {
	// ready is cleared when the server starts shutting down
	ready     atomic.Bool
	startTime time.Time
	mode      Mode

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewHealthChecker creates a ready HealthChecker.
func NewHealthChecker(mode Mode) *HealthChecker {
	h := &HealthChecker{
		startTime: time.Now(),
		mode:      mode,
		checks:    make(map[string]CheckFunc),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// AddCheck registers a dependency check run by /readyz.
func (h *HealthChecker) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status string   `json:"status"`
	Mode   string   `json:"mode"`
	Uptime string   `json:"uptime"`
	Checks []string `json:"checks,omitempty"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// It only reports that the process is serving requests.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks := h.runChecks(r.Context())
		allOk := true
		for _, status := range checks {
			if status != healthStatusOK {
				allOk = false
			}
		}

		response := HealthResponse{Status: healthStatusOK, Checks: checks}
		code := http.StatusOK
		if !allOk {
			response.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, response)
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed
// endpoint.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response := DetailedHealthResponse{
			Status: healthStatusOK,
			Mode:   string(h.mode),
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
			Checks: h.checkNames(),
		}

		code := http.StatusOK
		if !h.ready.Load() {
			response.Status = healthStatusShuttingDown
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, response)
	})
}

func (h *HealthChecker) runChecks(ctx context.Context) map[string]string {
	results := make(map[string]string)
	if h.ready.Load() {
		results["ready"] = healthStatusOK
	} else {
		results["ready"] = healthStatusShuttingDown
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for name, check := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, DefaultCheckTimeout)
		if err := check(checkCtx); err != nil {
			results[name] = err.Error()
		} else {
			results[name] = healthStatusOK
		}
		cancel()
	}
	return results
}

func (h *HealthChecker) checkNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
