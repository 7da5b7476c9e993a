package call

import (
	"context"
	"time"

	"go.uber.org/zap"

	"learnhub-backend/pkg/logger"
)

// Sweeper periodically marks unanswered calls older than the ring window as missed
type Sweeper struct {
	service  *Service
	interval time.Duration
}

// NewSweeper creates a sweeper. An interval of 0 disables it.
func NewSweeper(service *Service, interval time.Duration) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
	}
}

// Run sweeps every interval until ctx is done
func (sw *Sweeper) Run(ctx context.Context) {
	if sw.interval <= 0 {
		logger.Info("Stale call sweeper disabled")
		return
	}

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := sw.service.SweepStale(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("Stale call sweep failed", zap.Error(err))
				continue
			}
			if count > 0 {
				logger.Info("Stale calls marked missed", zap.Int64("count", count))
			}
		}
	}
}
