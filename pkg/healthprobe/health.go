// Package healthprobe provides liveness and readiness HTTP handlers.
package healthprobe

import (
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// HealthChecker tracks process readiness. Liveness is implicit: if the
// process answers, it is alive.
type HealthChecker struct {
	startTime time.Time

	mu     sync.RWMutex
	ready  bool
	reason string
}

// New creates a HealthChecker that reports not ready until SetReady is
// called.
func New() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		reason:    "starting",
	}
}

// SetReady marks the application as ready to serve traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ready = ready
	if ready {
		h.reason = ""
	}
}

// SetNotReady marks the application not ready with a reason that shows
// up in the probe response, e.g. during shutdown.
func (h *HealthChecker) SetNotReady(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ready = false
	h.reason = reason
}

// Uptime reports how long the process has been running.
func (h *HealthChecker) Uptime() time.Duration {
	return time.Since(h.startTime)
}

// HealthResponse is the probe response payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Message string `json:"message,omitempty"`
}

// Health returns an HTTP handler for liveness checks. Always 200 while
// the process runs.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeProbe(w, http.StatusOK, HealthResponse{
			Status: "healthy",
			Uptime: h.Uptime().String(),
		})
	}
}

// Ready returns an HTTP handler for readiness checks: 200 when ready,
// 503 otherwise.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		ready, reason := h.ready, h.reason
		h.mu.RUnlock()

		if !ready {
			writeProbe(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "not_ready",
				Message: reason,
			})
			return
		}

		writeProbe(w, http.StatusOK, HealthResponse{
			Status: "ready",
			Uptime: h.Uptime().String(),
		})
	}
}

func writeProbe(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
