// Package http provides the HTTP-facing adapters for the proxy: health and
// metrics endpoints, served alongside the ws transport's upgrade handler.
package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status string            `json:"status"` // "healthy" or "unhealthy"
	Checks map[string]string `json:"checks"`
}

// ConnectionCounter reports the coordinator's live connection count, so the
// health check can surface load without depending on the service package
// directly (keeping this adapter narrowly scoped).
type ConnectionCounter interface {
	ActiveConnections() int
}

// HealthChecker verifies component health for the /health endpoint.
type HealthChecker struct {
	connections ConnectionCounter
	maxConns    int
}

// NewHealthChecker creates a HealthChecker. maxConns is proxy.max_connections
// (0 means unlimited); once active connections reach it the check reports
// degraded, since new clients will be rejected with close code 1008.
func NewHealthChecker(connections ConnectionCounter, maxConns int) *HealthChecker {
	return &HealthChecker{connections: connections, maxConns: maxConns}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	active := h.connections.ActiveConnections()
	if h.maxConns > 0 && active >= h.maxConns {
		checks["connections"] = fmt.Sprintf("at capacity: %d/%d", active, h.maxConns)
		healthy = false
	} else {
		checks["connections"] = fmt.Sprintf("ok: %d active", active)
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	return HealthResponse{Status: status, Checks: checks}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(health)
	})
}
