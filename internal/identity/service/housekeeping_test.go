package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	sweeps atomic.Int64
}

func (s *countingSweeper) Name() string { return "counting" }

func (s *countingSweeper) SweepExpired(_ context.Context) int {
	s.sweeps.Add(1)
	return 1
}

func TestHousekeepingSweeps(t *testing.T) {
	sweeper := &countingSweeper{}
	svc := NewHousekeepingService(slog.Default(), 10*time.Millisecond, sweeper)

	svc.Start(context.Background())

	// Initial sweep plus at least one ticker-driven sweep.
	assert.Eventually(t, func() bool {
		return sweeper.sweeps.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	svc.Stop()
	after := sweeper.sweeps.Load()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, sweeper.sweeps.Load(), "sweeps continued after Stop")
}
