package http

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

type fakeCounter struct {
	active int
}

func (f fakeCounter) ActiveConnections() int { return f.active }

func TestHealthChecker_Healthy(t *testing.T) {
	h := NewHealthChecker(fakeCounter{active: 3}, 100)
	resp := h.Check()
	if resp.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", resp.Status)
	}
}

func TestHealthChecker_AtCapacity(t *testing.T) {
	h := NewHealthChecker(fakeCounter{active: 100}, 100)
	resp := h.Check()
	if resp.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy", resp.Status)
	}
}

func TestHealthChecker_UnlimitedWhenMaxConnsZero(t *testing.T) {
	h := NewHealthChecker(fakeCounter{active: 1000000}, 0)
	resp := h.Check()
	if resp.Status != "healthy" {
		t.Errorf("Status = %q, want healthy (maxConns=0 means unlimited)", resp.Status)
	}
}

func TestHealthChecker_Handler(t *testing.T) {
	h := NewHealthChecker(fakeCounter{active: 200}, 100)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	h.Handler().ServeHTTP(rec, req)

	if rec.Code != 503 {
		t.Errorf("status code = %d, want 503", rec.Code)
	}
	var body HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Status != "unhealthy" {
		t.Errorf("body.Status = %q, want unhealthy", body.Status)
	}
}
