// Package health aggregates dependency probes into liveness and readiness
// endpoints.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

// Status represents the health status of a component
type Status string

const (
	StatusUp      Status = "UP"
	StatusDown    Status = "DOWN"
	StatusUnknown Status = "UNKNOWN"
)

// CheckResult is one component's probe outcome
type CheckResult struct {
	Status    Status            `json:"status"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// HealthResponse is the body of the readiness endpoint
type HealthResponse struct {
	Status     Status                  `json:"status"`
	Timestamp  time.Time               `json:"timestamp"`
	Components map[string]*CheckResult `json:"components,omitempty"`
}

// Checker probes one component. A nil result counts as UNKNOWN.
type Checker func(ctx context.Context) *CheckResult

type namedChecker struct {
	name  string
	check Checker
}

// Health runs registered probes concurrently, each bounded by timeout.
type Health struct {
	mu       sync.RWMutex
	checkers []namedChecker
	timeout  time.Duration
}

func New(timeout time.Duration) *Health {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Health{timeout: timeout}
}

// Register adds or replaces the probe for name
func (h *Health) Register(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.checkers {
		if h.checkers[i].name == name {
			h.checkers[i].check = checker
			return
		}
	}
	h.checkers = append(h.checkers, namedChecker{name: name, check: checker})
	sort.Slice(h.checkers, func(i, j int) bool { return h.checkers[i].name < h.checkers[j].name })
}

// Check runs every probe and reports DOWN unless all of them are UP
func (h *Health) Check(ctx context.Context) *HealthResponse {
	h.mu.RLock()
	checkers := append([]namedChecker(nil), h.checkers...)
	h.mu.RUnlock()

	results := make([]*CheckResult, len(checkers))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checkers {
		i, c := i, c
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, h.timeout)
			defer cancel()
			results[i] = c.check(probeCtx)
			return nil
		})
	}
	_ = g.Wait()

	response := &HealthResponse{
		Status:     StatusUp,
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]*CheckResult, len(checkers)),
	}
	for i, c := range checkers {
		result := results[i]
		if result == nil {
			result = &CheckResult{Status: StatusUnknown, Timestamp: response.Timestamp}
		}
		if result.Status != StatusUp {
			response.Status = StatusDown
		}
		response.Components[c.name] = result
	}
	return response
}

func (h *Health) IsReady(ctx context.Context) bool {
	return h.Check(ctx).Status == StatusUp
}

// Live answers as long as the process serves requests
func (h *Health) Live(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    StatusUp,
		"timestamp": time.Now().UTC(),
	})
}

// Ready answers 503 while any dependency probe is not UP
func (h *Health) Ready(c echo.Context) error {
	response := h.Check(c.Request().Context())
	code := http.StatusOK
	if response.Status != StatusUp {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, response)
}

// PingChecker reports the component DOWN when ping fails, with the latency
// of the attempt either way.
func PingChecker(component string, ping func(ctx context.Context) error) Checker {
	return func(ctx context.Context) *CheckResult {
		start := time.Now()
		err := ping(ctx)
		result := &CheckResult{
			Status:    StatusUp,
			Timestamp: time.Now().UTC(),
			Details:   map[string]string{"latency": time.Since(start).String()},
		}
		if err != nil {
			result.Status = StatusDown
			result.Message = component + " connection failed"
			result.Details["error"] = err.Error()
		}
		return result
	}
}

func BrokerChecker(ping func(ctx context.Context) error) Checker {
	return PingChecker("Broker", ping)
}

func RedisChecker(ping func(ctx context.Context) error) Checker {
	return PingChecker("Redis", ping)
}

// CircuitBreakerChecker reports DOWN while any breaker is open
func CircuitBreakerChecker(healthy func() bool, status func() map[string]string) Checker {
	return func(ctx context.Context) *CheckResult {
		result := &CheckResult{
			Status:    StatusUp,
			Timestamp: time.Now().UTC(),
			Details:   status(),
		}
		if !healthy() {
			result.Status = StatusDown
			result.Message = "circuit breaker open"
		}
		return result
	}
}
