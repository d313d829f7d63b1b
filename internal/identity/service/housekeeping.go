package service

import (
	"context"
	"log/slog"
	"time"
)

const defaultSweepInterval = 15 * time.Minute

// Sweeper is anything housekeeping can purge expired state from.
type Sweeper interface {
	Name() string
	SweepExpired(ctx context.Context) int
}

// HousekeepingService periodically sweeps expired in-memory state from the
// registered sweepers. One goroutine, one ticker.
type HousekeepingService struct {
	logger   *slog.Logger
	interval time.Duration
	sweepers []Sweeper

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewHousekeepingService(logger *slog.Logger, interval time.Duration, sweepers ...Sweeper) *HousekeepingService {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &HousekeepingService{
		logger:   logger,
		interval: interval,
		sweepers: sweepers,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop. An initial sweep runs immediately so a
// restart doesn't wait a full interval to clear stale state.
func (s *HousekeepingService) Start(ctx context.Context) {
	go func() {
		defer close(s.doneCh)

		s.sweepAll(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweepAll(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Info("housekeeping started", slog.Duration("interval", s.interval))
}

// Stop halts the sweep loop and waits for it to exit.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) sweepAll(ctx context.Context) {
	for _, sweeper := range s.sweepers {
		removed := sweeper.SweepExpired(ctx)
		if removed > 0 {
			s.logger.Info("swept expired entries",
				slog.String("sweeper", sweeper.Name()),
				slog.Int("removed", removed),
			)
		}
	}
}
