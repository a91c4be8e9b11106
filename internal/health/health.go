// Package health provides liveness and readiness handlers for the gateway.
package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// CheckFunc reports whether a readiness condition currently holds.
type CheckFunc func() bool

// Checker serves liveness and readiness state. The gateway registers a
// readiness check that reflects a non-empty proxy pool.
type Checker struct {
	version   string
	startTime time.Time
	checks    map[string]CheckFunc
}

// NewChecker creates a health checker.
func NewChecker(version string) *Checker {
	return &Checker{
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]CheckFunc),
	}
}

// AddReadinessCheck registers a named readiness condition.
func (c *Checker) AddReadinessCheck(name string, fn CheckFunc) {
	c.checks[name] = fn
}

// Uptime returns the process uptime.
func (c *Checker) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// LivenessHandler always reports alive while the process serves requests.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"version": c.version,
			"uptime":  c.Uptime().String(),
		})
	}
}

// ReadinessHandler reports ready only when every registered check passes.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failed := make([]string, 0)
		for name, fn := range c.checks {
			if !fn() {
				failed = append(failed, name)
			}
		}

		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "not ready",
				"failed": failed,
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ready",
		})
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
