// Package health provides readiness state tracking and the /healthz and
// /readyz handlers.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
)

// State constants for the readiness state machine.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Checker tracks the readiness state of the server and reports live
// counters such as open connections alongside it.
// It is safe for concurrent use.
type Checker struct {
	state atomic.Int32

	mu       sync.RWMutex
	counters map[string]func() int
}

// NewChecker creates a Checker in the Starting state.
func NewChecker() *Checker {
	return &Checker{}
}

// SetReady transitions to the Ready state.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the Draining state.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// Report adds a named counter to readiness responses. Registering a name
// twice replaces the earlier counter.
func (c *Checker) Report(name string, fn func() int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counters == nil {
		c.counters = make(map[string]func() int)
	}
	c.counters[name] = fn
}

// Counts evaluates every registered counter.
func (c *Checker) Counts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.counters) == 0 {
		return nil
	}
	out := make(map[string]int, len(c.counters))
	for name, fn := range c.counters {
		out[name] = fn()
	}
	return out
}

// IsReady returns true when the state is Ready.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// State returns the current state as a human-readable string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

// healthResponse is the JSON body returned by health endpoints.
type healthResponse struct {
	Status string         `json:"status"`
	Counts map[string]int `json:"counts,omitempty"`
}

// LivenessHandler returns an http.HandlerFunc that always responds 200 OK.
// Use this for the Kubernetes liveness check on /healthz.
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// ReadinessHandler returns an http.HandlerFunc that responds 200 when ready
// and 503 when starting or draining. The body carries the registered counts.
// Use this for the Kubernetes readiness check on /readyz.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: c.State(), Counts: c.Counts()}
		if c.IsReady() {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, v healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
