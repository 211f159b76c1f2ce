// ABOUTME: Circuit breaker guarding the upstream catalog API
// ABOUTME: Fails fast during refresh storms instead of piling onto a dead upstream

package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Default circuit breaker configuration values.
const (
	DefaultMaxFailures      = 5
	DefaultResetTimeout     = 30 * time.Second
	DefaultHalfOpenMaxCalls = 3
)

// Circuit breaker states.
type State int

const (
	// StateClosed allows requests through normally.
	StateClosed State = iota

	// StateOpen rejects all requests immediately.
	StateOpen

	// StateHalfOpen allows limited test requests.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its string form so status payloads
// stay readable.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxFailures is the threshold to open the circuit.
	// Zero uses DefaultMaxFailures.
	MaxFailures int

	// ResetTimeout is how long to wait before transitioning to half-open.
	// Zero uses DefaultResetTimeout.
	ResetTimeout time.Duration

	// HalfOpenMaxCalls is the number of test calls allowed in half-open state.
	// Zero uses DefaultHalfOpenMaxCalls.
	HalfOpenMaxCalls int

	// Name identifies this circuit breaker in logs and status payloads.
	Name string

	// Logger receives state transition events. Nil uses slog.Default.
	Logger *slog.Logger
}

// Statistics holds circuit breaker metrics, shaped for the status
// endpoint.
type Statistics struct {
	Name                string    `json:"name"`
	State               State     `json:"state"`
	TotalRequests       int64     `json:"total_requests"`
	Successes           int64     `json:"successes"`
	Failures            int64     `json:"failures"`
	Rejections          int64     `json:"rejections"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureTime     time.Time `json:"last_failure_time"`
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	mu     sync.RWMutex
	config CircuitBreakerConfig
	logger *slog.Logger

	state               State
	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenCalls       int

	// Statistics counters.
	totalRequests atomic.Int64
	successes     atomic.Int64
	failures      atomic.Int64
	rejections    atomic.Int64
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = DefaultMaxFailures
	}
	if config.ResetTimeout == 0 {
		config.ResetTimeout = DefaultResetTimeout
	}
	if config.HalfOpenMaxCalls == 0 {
		config.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CircuitBreaker{
		config: config,
		logger: logger,
		state:  StateClosed,
	}
}

// Execute runs the function through the circuit breaker. A context
// cancellation from the caller's side is passed through without being
// held against the upstream; deadline expiry still counts as a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	cb.totalRequests.Add(1)

	if !cb.allowRequest() {
		cb.rejections.Add(1)
		return ErrCircuitOpen
	}

	err := fn(ctx)

	if errors.Is(err, context.Canceled) {
		return err
	}

	cb.recordResult(err == nil)

	return err
}

// ExecuteWithFallback runs the function with a fallback if the circuit is open.
func (cb *CircuitBreaker) ExecuteWithFallback(
	ctx context.Context,
	fn func(ctx context.Context) error,
	fallback func(ctx context.Context, err error) error,
) error {
	err := cb.Execute(ctx, fn)
	if errors.Is(err, ErrCircuitOpen) {
		return fallback(ctx, err)
	}
	return err
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	state := cb.state
	lastFailure := cb.lastFailureTime
	cb.mu.RUnlock()

	// Check for automatic transition to half-open.
	if state == StateOpen && !lastFailure.IsZero() {
		if time.Since(lastFailure) >= cb.config.ResetTimeout {
			cb.mu.Lock()
			if cb.state == StateOpen {
				cb.setState(StateHalfOpen)
				cb.halfOpenCalls = 0
			}
			state = cb.state
			cb.mu.Unlock()
		}
	}

	return state
}

// Statistics returns current circuit breaker statistics.
func (cb *CircuitBreaker) Statistics() Statistics {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return Statistics{
		Name:                cb.config.Name,
		State:               cb.state,
		TotalRequests:       cb.totalRequests.Load(),
		Successes:           cb.successes.Load(),
		Failures:            cb.failures.Load(),
		Rejections:          cb.rejections.Load(),
		ConsecutiveFailures: cb.consecutiveFailures,
		LastFailureTime:     cb.lastFailureTime,
	}
}

// Reset manually resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.consecutiveFailures = 0
	cb.lastFailureTime = time.Time{}
	cb.halfOpenCalls = 0
}

// setState performs a state transition and logs it. Must be called
// with mu held for writing.
func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.logger.Info("circuit breaker state changed",
		slog.String("breaker", cb.config.Name),
		slog.String("from", prev.String()),
		slog.String("to", next.String()),
	)
}

// allowRequest checks if a request should be allowed.
func (cb *CircuitBreaker) allowRequest() bool {
	state := cb.State() // This handles auto-transition to half-open.

	switch state {
	case StateClosed:
		return true

	case StateOpen:
		return false

	case StateHalfOpen:
		cb.mu.Lock()
		defer cb.mu.Unlock()

		if cb.halfOpenCalls < cb.config.HalfOpenMaxCalls {
			cb.halfOpenCalls++
			return true
		}
		return false

	default:
		return false
	}
}

// recordResult records the result of an operation.
func (cb *CircuitBreaker) recordResult(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.successes.Add(1)
		cb.consecutiveFailures = 0

		// In half-open, success closes the circuit.
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
			cb.halfOpenCalls = 0
		}
	} else {
		cb.failures.Add(1)
		cb.consecutiveFailures++
		cb.lastFailureTime = time.Now()

		switch cb.state {
		case StateClosed:
			if cb.consecutiveFailures >= cb.config.MaxFailures {
				cb.setState(StateOpen)
			}
		case StateHalfOpen:
			// Any failure in half-open reopens the circuit.
			cb.setState(StateOpen)
			cb.halfOpenCalls = 0
		}
	}
}
