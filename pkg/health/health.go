// Package health serves the /livez and /readyz probe endpoints.
//
// Registered checks tick on background goroutines. Consecutive-failure and
// consecutive-success thresholds damp flapping: a check turns unhealthy only
// after failureThreshold failures in a row, and recovers only after
// successThreshold passes in a row.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. A nil return means healthy; an error
// describes what is wrong.
type CheckFunc func(ctx context.Context) error

// checkConfig is one registered check plus its runtime state.
//
// run() executes on a single ticker goroutine, so the consecutive counters
// need no synchronization. The healthy flag and lastErr are also read by
// HTTP handlers and therefore go through atomics.
type checkConfig struct {
	name             string
	timeout          time.Duration
	check            CheckFunc
	failureThreshold int
	successThreshold int

	healthy atomic.Bool

	// lastErr holds the outcome of the most recent run().
	lastErr atomic.Pointer[error]

	// Touched only from the run() goroutine.
	consecutiveFails int
	consecutiveOK    int
}

func (c *checkConfig) isHealthy() bool {
	return c.healthy.Load()
}

func (c *checkConfig) getLastError() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// run executes the check once and applies the thresholds. Single-goroutine
// only.
func (c *checkConfig) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.check(checkCtx)
	c.lastErr.Store(&err)

	if err != nil {
		c.consecutiveOK = 0
		c.consecutiveFails++
		if c.consecutiveFails >= c.failureThreshold {
			c.healthy.Store(false)
		}
	} else {
		c.consecutiveFails = 0
		c.consecutiveOK++
		if c.consecutiveOK >= c.successThreshold {
			c.healthy.Store(true)
		}
	}
}

// Health holds the liveness and readiness check sets for one service.
type Health struct {
	ready atomic.Bool

	// mu guards the check slices and cancel. Registration happens before
	// Start; handlers take a short RLock to snapshot the slices and never
	// touch per-check state under it.
	mu              sync.RWMutex
	livenessChecks  []*checkConfig
	readinessChecks []*checkConfig
	cancel          context.CancelFunc
}

// New returns an empty Health. The service starts not-ready; call
// SetReady(true) once initialization is done.
func New() *Health {
	return &Health{}
}

func newCheck(name string, timeout time.Duration, check CheckFunc) *checkConfig {
	c := &checkConfig{
		name:             name,
		timeout:          timeout,
		check:            check,
		failureThreshold: 3,
		successThreshold: 1,
	}
	// Healthy until the failure threshold is breached.
	c.healthy.Store(true)
	return c
}

// AddLivenessCheck registers a check for /livez. Liveness answers "is the
// process still functioning": goroutine counts, GC pauses, deadlocks.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessChecks = append(h.livenessChecks, newCheck(name, timeout, check))
}

// AddReadinessCheck registers a check for /readyz. Readiness answers "can
// this instance take traffic": database connectivity, warmed caches,
// reachable dependencies.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks = append(h.readinessChecks, newCheck(name, timeout, check))
}

// Start launches one goroutine per registered check, each ticking at
// interval. Call it once, after registration.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := make([]*checkConfig, 0, len(h.livenessChecks)+len(h.readinessChecks))
	checks = append(checks, h.livenessChecks...)
	checks = append(checks, h.readinessChecks...)
	h.mu.Unlock()

	for _, c := range checks {
		go runCheck(ctx, c, interval)
	}
}

func runCheck(ctx context.Context, c *checkConfig, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First run happens immediately, not one interval in.
	c.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

// SetReady flips the manual readiness gate. The server calls it with true
// after wiring completes and with false at the start of graceful shutdown so
// load balancers drain the instance.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the instance should take traffic: the manual gate
// must be open and every readiness check passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	checks := h.readinessChecks
	h.mu.RUnlock()

	for _, c := range checks {
		if !c.isHealthy() {
			return false
		}
	}
	return true
}

// Stop cancels the check goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// statusResponse is the probe endpoints' JSON body.
type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} while every liveness check
// passes, otherwise 503 with the failing checks listed.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := make([]*checkConfig, len(h.livenessChecks))
	copy(checks, h.livenessChecks)
	h.mu.RUnlock()

	writeResponse(w, collectFailures(checks))
}

// ReadyEndpoint serves /readyz: 200 only when the manual gate is open and
// every readiness check passes, otherwise 503 with details.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	ready := h.ready.Load()

	h.mu.RLock()
	checks := make([]*checkConfig, len(h.readinessChecks))
	copy(checks, h.readinessChecks)
	h.mu.RUnlock()

	failures := collectFailures(checks)
	if !ready {
		failures["_readiness"] = "service is not ready"
	}
	writeResponse(w, failures)
}

// collectFailures maps each unhealthy check's name to its stored last error.
// Checks are never re-executed on the request path.
func collectFailures(checks []*checkConfig) map[string]string {
	failures := make(map[string]string)
	for _, c := range checks {
		if !c.isHealthy() {
			if err := c.getLastError(); err != nil {
				failures[c.name] = err.Error()
			} else {
				failures[c.name] = "check is unhealthy"
			}
		}
	}
	return failures
}

func writeResponse(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	status := http.StatusOK

	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)

	// Encode errors here mean the client went away; the status line is
	// already out.
	_ = json.NewEncoder(w).Encode(resp)
}
