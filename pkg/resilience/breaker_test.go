package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-backend/pkg/metrics"
)

var errUpstream = errors.New("connection refused")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestBreaker(t *testing.T) (*CircuitBreaker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	b := NewCircuitBreaker("push", Config{FailureThreshold: 2, Cooldown: time.Minute}, metrics.NewMetrics("test"))
	b.now = clock.Now
	return b, clock
}

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(t)

	assert.ErrorIs(t, b.Execute(context.Background(), fail), errUpstream)
	assert.Equal(t, CircuitBreakerClosed, b.State())

	assert.ErrorIs(t, b.Execute(context.Background(), fail), errUpstream)
	assert.Equal(t, CircuitBreakerOpen, b.State())

	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(t)

	require.Error(t, b.Execute(context.Background(), fail))
	require.NoError(t, b.Execute(context.Background(), succeed))
	require.Error(t, b.Execute(context.Background(), fail))

	assert.Equal(t, CircuitBreakerClosed, b.State())
}

func TestCircuitBreaker_TrialAfterCooldown(t *testing.T) {
	t.Run("successful trial closes the circuit", func(t *testing.T) {
		b, clock := newTestBreaker(t)
		_ = b.Execute(context.Background(), fail)
		_ = b.Execute(context.Background(), fail)

		clock.now = clock.now.Add(time.Minute)
		require.NoError(t, b.Execute(context.Background(), succeed))
		assert.Equal(t, CircuitBreakerClosed, b.State())
	})

	t.Run("failed trial reopens the circuit", func(t *testing.T) {
		b, clock := newTestBreaker(t)
		_ = b.Execute(context.Background(), fail)
		_ = b.Execute(context.Background(), fail)

		clock.now = clock.now.Add(time.Minute)
		require.ErrorIs(t, b.Execute(context.Background(), fail), errUpstream)
		assert.Equal(t, CircuitBreakerOpen, b.State())

		assert.ErrorIs(t, b.Execute(context.Background(), succeed), ErrCircuitOpen)
	})
}

func TestCircuitBreaker_SingleTrialInHalfOpen(t *testing.T) {
	b, clock := newTestBreaker(t)
	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	clock.now = clock.now.Add(time.Minute)

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(context.Background(), func(context.Context) error {
			<-release
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		return b.State() == CircuitBreakerHalfOpen
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, b.Execute(context.Background(), succeed), ErrCircuitOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, CircuitBreakerClosed, b.State())
}

func TestCircuitBreaker_AppliesTimeout(t *testing.T) {
	b := NewCircuitBreaker("push", Config{Timeout: 10 * time.Millisecond}, nil)

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "network", classifyError(errUpstream))
	assert.Equal(t, "auth", classifyError(errors.New("403 Forbidden")))
	assert.Equal(t, "failure", classifyError(errors.New("boom")))
}
