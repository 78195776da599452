// Package resilience guards the service's remote dependencies (the reference
// broker and the redis country cache) with circuit breakers and provides the
// read-through strategy the country loader uses.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker errors
var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// CircuitBreakerSettings holds configuration for a circuit breaker
type CircuitBreakerSettings struct {
	Name         string
	MaxRequests  uint32        // probes allowed while half-open
	Interval     time.Duration // closed-state counting window
	Timeout      time.Duration // open duration before probing
	FailureRatio float64
	MinRequests  uint32
}

// DefaultSettings trips at half the calls failing once five were seen in a minute
func DefaultSettings(name string) CircuitBreakerSettings {
	return CircuitBreakerSettings{
		Name:         name,
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      15 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// CircuitBreaker wraps gobreaker. A caller whose context is already done is
// rejected before reaching the breaker so abandoned requests do not count as
// dependency failures.
type CircuitBreaker struct {
	cb      *gobreaker.CircuitBreaker
	name    string
	onOpen  func(name string)
	onClose func(name string)
}

// NewCircuitBreaker creates a breaker from settings
func NewCircuitBreaker(settings CircuitBreakerSettings) *CircuitBreaker {
	c := &CircuitBreaker{name: settings.Name}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, _ gobreaker.State, to gobreaker.State) {
			switch {
			case to == gobreaker.StateOpen && c.onOpen != nil:
				c.onOpen(name)
			case to == gobreaker.StateClosed && c.onClose != nil:
				c.onClose(name)
			}
		},
	})
	return c
}

// OnStateChange sets callbacks for the open and closed transitions
func (c *CircuitBreaker) OnStateChange(onOpen, onClose func(name string)) {
	c.onOpen = onOpen
	c.onClose = onClose
}

// Execute runs fn through the breaker
func (c *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := c.cb.Execute(fn)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return nil, ErrCircuitOpen
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, ErrTooManyRequests
	}
	return result, err
}

// ExecuteContext runs fn through the breaker unless ctx is already done
func (c *CircuitBreaker) ExecuteContext(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
}

// State returns the breaker state name
func (c *CircuitBreaker) State() string {
	return c.cb.State().String()
}

// IsOpen reports whether calls are currently rejected
func (c *CircuitBreaker) IsOpen() bool {
	return c.cb.State() == gobreaker.StateOpen
}

// Name returns the breaker name
func (c *CircuitBreaker) Name() string {
	return c.name
}

// CircuitBreakers holds the breakers guarding the remote dependencies
type CircuitBreakers struct {
	Broker *CircuitBreaker
	Redis  *CircuitBreaker
}

// NewCircuitBreakers creates one breaker per dependency with default settings
func NewCircuitBreakers(brokerName, redisName string) *CircuitBreakers {
	return &CircuitBreakers{
		Broker: NewCircuitBreaker(DefaultSettings(brokerName)),
		Redis:  NewCircuitBreaker(DefaultSettings(redisName)),
	}
}

func (cb *CircuitBreakers) all() []*CircuitBreaker {
	return []*CircuitBreaker{cb.Broker, cb.Redis}
}

// OnStateChange installs the same callbacks on every breaker
func (cb *CircuitBreakers) OnStateChange(onOpen, onClose func(name string)) {
	for _, b := range cb.all() {
		b.OnStateChange(onOpen, onClose)
	}
}

// AllHealthy returns true if no breaker is open
func (cb *CircuitBreakers) AllHealthy() bool {
	for _, b := range cb.all() {
		if b.IsOpen() {
			return false
		}
	}
	return true
}

// Status maps breaker names to their state
func (cb *CircuitBreakers) Status() map[string]string {
	status := make(map[string]string, 2)
	for _, b := range cb.all() {
		status[b.Name()] = b.State()
	}
	return status
}
