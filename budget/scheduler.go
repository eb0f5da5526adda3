/*
scheduler.go - Automated spend reconciliation scheduler

PURPOSE:
  SpentCache is a cache: it silently diverges from the ledger whenever
  records are ingested without a follow-up recalc. This scheduler runs
  RecalcAll on a fixed interval so every budget's cached spend converges
  to the ledger without manual /budgets/recalc calls.

DESIGN:
  - Background goroutine with a configurable interval
  - Runs one recalculation immediately on start
  - Recalculation is idempotent, so overlapping manual recalcs are safe

USAGE:
  sched := budget.NewScheduler(reconciler, time.Hour, log)
  sched.Start()
  // ... later
  sched.Stop()
*/
package budget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/finops-engine/audit"
)

// Scheduler periodically reconciles every budget against the ledger.
type Scheduler struct {
	reconciler *Reconciler
	interval   time.Duration
	log        *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a scheduler. A nil logger falls back to
// slog.Default.
func NewScheduler(reconciler *Reconciler, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		reconciler: reconciler,
		interval:   interval,
		log:        log.With("component", "recalc-scheduler"),
		stop:       make(chan struct{}),
	}
}

// Start begins the background loop. A non-positive interval disables
// the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interval <= 0 {
		s.log.Info("disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.interval)
	s.wg.Add(1)
	go s.run()

	s.log.Info("started", "interval", s.interval)
}

// Stop halts the loop and waits for an in-flight recalculation.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.log.Info("stopped")
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Converge once on start rather than waiting a full interval
	s.recalc()

	for {
		select {
		case <-s.ticker.C:
			s.recalc()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) recalc() {
	result, err := s.reconciler.RecalcAll(context.Background(), audit.Actor{})
	if err != nil {
		s.log.Error("scheduled recalc failed", "error", err)
		return
	}
	if len(result.Failures) > 0 {
		s.log.Warn("scheduled recalc completed with failures",
			"count", result.Count, "failures", len(result.Failures))
		return
	}
	s.log.Debug("scheduled recalc completed", "count", result.Count)
}
