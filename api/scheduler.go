/*
scheduler.go - Automated overdue sweep

PURPOSE:
  Periodically flips PENDING payable obligations whose due date has passed
  to OVERDUE, so the payables screen does not depend on someone pressing
  the sweep button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick calls payables.Generator.MarkOverdue as of "now"
  - The sweep is idempotent; already OVERDUE obligations are not touched

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: false)

USAGE:
  scheduler := NewOverdueScheduler(generator, logger)
  scheduler.Enabled = true
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: MarkOverdue endpoint (manual sweep)
  - payables/generator.go: MarkOverdue
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/salon-ledger/payables"
)

// OverdueScheduler runs the overdue sweep on a ticker.
type OverdueScheduler struct {
	Payables      *payables.Generator
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewOverdueScheduler creates a disabled scheduler with a one hour interval.
func NewOverdueScheduler(gen *payables.Generator, logger *zap.Logger) *OverdueScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueScheduler{
		Payables:      gen,
		Logger:        logger,
		CheckInterval: time.Hour,
	}
}

// Start begins the scheduler.
func (s *OverdueScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("overdue scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker.C, s.stop)

	s.Logger.Info("overdue scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler.
func (s *OverdueScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("overdue scheduler stopped")
	}
}

func (s *OverdueScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-tick:
			s.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one sweep and returns the number of obligations updated.
func (s *OverdueScheduler) RunNow(ctx context.Context) int {
	n, err := s.Payables.MarkOverdue(ctx, time.Time{})
	if err != nil {
		s.Logger.Error("overdue sweep failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		s.Logger.Info("overdue sweep completed", zap.Int("updated", n))
	}
	return n
}

// NextRunTime returns when the next scheduled check will occur.
func (s *OverdueScheduler) NextRunTime() time.Time {
	return time.Now().Add(s.CheckInterval)
}
