package handlers

import (
	"context"
	"net/http"
	"time"
)

// Check reports whether a dependency is usable
type Check func(ctx context.Context) error

// HealthHandlers serves the health, liveness and readiness endpoints.
// Critical checks gate readiness; every check is reported by /api/health.
type HealthHandlers struct {
	checks   map[string]Check
	critical map[string]bool
	timeout  time.Duration
}

// NewHealthHandlers creates health handlers with no checks registered
func NewHealthHandlers() *HealthHandlers {
	return &HealthHandlers{
		checks:   make(map[string]Check),
		critical: make(map[string]bool),
		timeout:  3 * time.Second,
	}
}

// Register adds a named check. Critical checks also fail readiness.
func (h *HealthHandlers) Register(name string, check Check, critical bool) {
	h.checks[name] = check
	h.critical[name] = critical
}

// Health reports every registered check
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{}, len(h.checks))

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			checks[name] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
			continue
		}
		checks[name] = map[string]interface{}{"status": "healthy"}
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// Liveness returns 200 while the process is running
func (h *HealthHandlers) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

// Readiness returns 503 when any critical dependency is down
func (h *HealthHandlers) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	for name, check := range h.checks {
		if !h.critical[name] {
			continue
		}
		if err := check(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":    "not_ready",
				"reason":    name + "_unavailable",
				"timestamp": time.Now().Unix(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().Unix(),
	})
}
