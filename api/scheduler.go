/*
scheduler.go - Automated carry-over expiry

PURPOSE:
  Periodically sweeps balances that still hold carried-over days and lets
  the ledger expire those past their expiry date.

DESIGN:
  - Runs a background goroutine driven by a clock.Ticker
  - Runs once immediately on Start, then every CheckInterval
  - The ledger decides what is due; a sweep that finds nothing is a no-op,
    so overlapping or repeated runs are harmless

USAGE:
  scheduler := NewExpiryScheduler(ledger, clk, logger)
  scheduler.Start(ctx)
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: POST /api/balances/expire (manual sweep)
  - ledger/maintenance.go: ExpireDueCarryOvers
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/attendance-ledger/clock"
)

// CarryOverExpirer is the ledger operation the scheduler drives.
type CarryOverExpirer interface {
	ExpireDueCarryOvers(ctx context.Context) (int, error)
}

// ExpiryScheduler handles automated carry-over expiry.
type ExpiryScheduler struct {
	Expirer       CarryOverExpirer
	Clock         clock.Clock
	Logger        *slog.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *clock.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewExpiryScheduler(expirer CarryOverExpirer, clk clock.Clock, logger *slog.Logger) *ExpiryScheduler {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiryScheduler{
		Expirer:       expirer,
		Clock:         clk,
		Logger:        logger,
		CheckInterval: time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *ExpiryScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled || s.CheckInterval <= 0 {
		s.Logger.Info("carry-over expiry scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = s.Clock.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(ctx, s.ticker, s.stop)

	s.Logger.Info("carry-over expiry scheduler started", "interval", s.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (s *ExpiryScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("carry-over expiry scheduler stopped")
}

func (s *ExpiryScheduler) run(ctx context.Context, ticker *clock.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	s.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunNow performs one sweep and returns how many balances lapsed days.
func (s *ExpiryScheduler) RunNow(ctx context.Context) int {
	n, err := s.Expirer.ExpireDueCarryOvers(ctx)
	if err != nil {
		s.Logger.Error("carry-over expiry sweep failed", "err", err, "expired", n)
		return n
	}
	if n > 0 {
		s.Logger.Info("carry-over expiry sweep completed", "expired", n)
	}
	return n
}

// NextRunTime returns when the next scheduled check will occur.
func (s *ExpiryScheduler) NextRunTime() time.Time {
	return s.Clock.Now().Add(s.CheckInterval)
}
