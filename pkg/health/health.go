// Package health tracks console readiness and serves the liveness and
// readiness probes.
package health

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Readiness states.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Checker tracks the readiness state of the console. It is safe for
// concurrent use.
type Checker struct {
	state   atomic.Int32
	started time.Time
	version string
}

// NewChecker creates a Checker in the starting state.
func NewChecker(version string) *Checker {
	return &Checker{started: time.Now(), version: version}
}

// SetReady transitions to the ready state once startup wiring completes.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the draining state during shutdown so load
// balancers stop routing new sessions here.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady returns true when the state is ready.
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

type probeResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// LivenessHandler always responds 200; the process is alive if it can answer.
// Wire to /healthz.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, probeResponse{Status: "ok"})
	}
}

// ReadinessHandler responds 200 when ready and 503 while starting or
// draining. Wire to /readyz.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := probeResponse{
			Status:  c.State(),
			Version: c.version,
			Uptime:  time.Since(c.started).Round(time.Second).String(),
		}
		if c.IsReady() {
			writeProbe(w, http.StatusOK, resp)
			return
		}
		writeProbe(w, http.StatusServiceUnavailable, resp)
	}
}

func writeProbe(w http.ResponseWriter, code int, v probeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
