// Package healthprobe tracks liveness and per-subsystem readiness for the
// matching service. Subsystems are registered at construction and marked
// ready as they start; the readiness probe stays 503 until every registered
// subsystem is up and the overall gate is open.
package healthprobe

import (
	"net/http"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// HealthChecker answers the /health and /ready probes.
type HealthChecker struct {
	startTime time.Time

	mu         sync.RWMutex
	accepting  bool
	subsystems map[string]bool
}

// New creates a HealthChecker. Any subsystem names given start out not ready
// and must be flipped with SetSubsystemReady before the service reports ready.
func New(subsystems ...string) *HealthChecker {
	h := &HealthChecker{
		startTime:  time.Now(),
		subsystems: make(map[string]bool, len(subsystems)),
	}
	for _, name := range subsystems {
		h.subsystems[name] = false
	}
	return h
}

// SetReady opens or closes the overall traffic gate. Registered subsystems
// still have to be ready individually for the readiness probe to pass.
func (h *HealthChecker) SetReady(ready bool) {
	h.mu.Lock()
	h.accepting = ready
	h.mu.Unlock()
}

// SetSubsystemReady records that a named subsystem has started or stopped.
// Unregistered names are added on first use.
func (h *HealthChecker) SetSubsystemReady(name string, ready bool) {
	h.mu.Lock()
	h.subsystems[name] = ready
	h.mu.Unlock()
}

// waitingOn returns the sorted names of subsystems that are not ready yet.
func (h *HealthChecker) waitingOn() []string {
	var pending []string
	for name, ready := range h.subsystems {
		if !ready {
			pending = append(pending, name)
		}
	}
	sort.Strings(pending)
	return pending
}

type healthStatus struct {
	Status    string   `json:"status"`
	Uptime    string   `json:"uptime"`
	WaitingOn []string `json:"waiting_on,omitempty"`
}

func writeStatus(w http.ResponseWriter, code int, resp healthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// Health is the liveness handler. It answers 200 for as long as the process
// can serve HTTP at all, regardless of subsystem state.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, healthStatus{
			Status: "healthy",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}

// Ready is the readiness handler. It answers 200 only once the traffic gate
// is open and every registered subsystem reports ready; otherwise 503 with
// the names still pending.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		accepting := h.accepting
		pending := h.waitingOn()
		h.mu.RUnlock()

		if !accepting || len(pending) > 0 {
			writeStatus(w, http.StatusServiceUnavailable, healthStatus{
				Status:    "not_ready",
				Uptime:    time.Since(h.startTime).String(),
				WaitingOn: pending,
			})
			return
		}

		writeStatus(w, http.StatusOK, healthStatus{
			Status: "ready",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}
