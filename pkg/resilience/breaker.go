// Package resilience guards calls to flaky downstream services.
package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/metrics"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

// ErrCircuitOpen is returned without calling the operation while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker open")

// Config tunes a CircuitBreaker
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a trial request is let through
	Cooldown time.Duration
	// Timeout bounds a single operation
	Timeout time.Duration
}

// DefaultConfig opens after 3 consecutive failures and retries after 10s
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		Cooldown:         10 * time.Second,
		Timeout:          5 * time.Second,
	}
}

// CircuitBreaker fails fast once a dependency keeps failing.
// In the half-open state exactly one trial request runs; its outcome closes or reopens the circuit.
type CircuitBreaker struct {
	name    string
	cfg     Config
	metrics *metrics.Metrics
	now     func() time.Time

	mu                  sync.Mutex
	state               CircuitBreakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

// NewCircuitBreaker creates a closed breaker. Zero config fields take DefaultConfig values.
func NewCircuitBreaker(name string, cfg Config, m *metrics.Metrics) *CircuitBreaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &CircuitBreaker{
		name:    name,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
		state:   CircuitBreakerClosed,
	}
}

// Execute runs fn unless the circuit is open
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	trial, err := b.acquire()
	if err != nil {
		b.metrics.RecordCircuitBreakerRequest(b.name, "rejected")
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	err = fn(opCtx)
	b.release(trial, err)
	if err != nil {
		b.metrics.RecordCircuitBreakerRequest(b.name, classifyError(err))
		return err
	}
	b.metrics.RecordCircuitBreakerRequest(b.name, "success")
	return nil
}

// State returns the current circuit breaker state
func (b *CircuitBreaker) State() CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) acquire() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitBreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrCircuitOpen
		}
		b.setStateLocked(CircuitBreakerHalfOpen)
		b.trialInFlight = true
		return true, nil
	case CircuitBreakerHalfOpen:
		if b.trialInFlight {
			return false, ErrCircuitOpen
		}
		b.trialInFlight = true
		return true, nil
	default:
		return false, nil
	}
}

func (b *CircuitBreaker) release(trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trialInFlight = false
	}

	if err == nil {
		b.consecutiveFailures = 0
		if b.state != CircuitBreakerClosed {
			b.setStateLocked(CircuitBreakerClosed)
			logger.Info("Circuit breaker closed", zap.String("breaker", b.name))
		}
		return
	}

	b.consecutiveFailures++
	if trial || b.consecutiveFailures >= b.cfg.FailureThreshold {
		if b.state != CircuitBreakerOpen {
			logger.Warn("Circuit breaker opened",
				zap.String("breaker", b.name),
				zap.Int("consecutive_failures", b.consecutiveFailures),
				zap.Error(err))
		}
		b.openedAt = b.now()
		b.setStateLocked(CircuitBreakerOpen)
	}
}

func (b *CircuitBreaker) setStateLocked(state CircuitBreakerState) {
	b.state = state
	switch state {
	case CircuitBreakerOpen:
		b.metrics.SetCircuitBreakerState(b.name, 2)
	case CircuitBreakerHalfOpen:
		b.metrics.SetCircuitBreakerState(b.name, 1)
	default:
		b.metrics.SetCircuitBreakerState(b.name, 0)
	}
}

// classifyError classifies errors for better metrics
func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "network unreachable"):
		return "network"
	case strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "dns"):
		return "dns"
	case strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "forbidden"):
		return "auth"
	default:
		return "failure"
	}
}
