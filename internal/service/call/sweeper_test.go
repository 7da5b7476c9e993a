package call

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

func TestSweeper_DisabledReturnsImmediately(t *testing.T) {
	f := newFixture()
	done := make(chan struct{})

	go func() {
		NewSweeper(f.service, 0).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper did not return")
	}
	f.calls.AssertNotCalled(t, "ExpireAllPending", mock.Anything, mock.Anything)
}

func TestSweeper_ExpiresStaleCallsUntilCancelled(t *testing.T) {
	f := newFixture()
	swept := make(chan struct{}, 1)
	f.calls.On("ExpireAllPending", mock.Anything, 20*time.Second).
		Run(func(mock.Arguments) {
			select {
			case swept <- struct{}{}:
			default:
			}
		}).
		Return(int64(2), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(f.service, 10*time.Millisecond).Run(ctx)
		close(done)
	}()

	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
