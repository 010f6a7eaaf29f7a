/*
scheduler.go - Periodic employer risk review

PURPOSE:
  Employers are re-assessed at least once per review interval. The scheduler
  periodically flags every active employer whose latest assessment is older
  than that as review_due. Review-due employers keep serving existing
  advances; an admin assessment returns them to active.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Each pass is recorded as a ReviewRun for audit and UI display

CONFIGURATION:
  - CheckInterval: How often to check (risk.review_check_interval, default 1h)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReviewScheduler(employers)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunReview endpoint (manual pass)
  - employer/service.go: MarkReviewsDue
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eaziwage/advance-engine/employer"
)

// ReviewScheduler flags employers whose risk assessment has gone stale.
type ReviewScheduler struct {
	Employers     *employer.Service
	CheckInterval time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun time.Time
}

// NewReviewScheduler creates a new scheduler.
func NewReviewScheduler(employers *employer.Service) *ReviewScheduler {
	return &ReviewScheduler{
		Employers:     employers,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

func (rs *ReviewScheduler) log() *zap.Logger {
	return zap.L().With(zap.String("component", "review_scheduler"))
}

// Start begins the scheduler.
func (rs *ReviewScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log().Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker.C, rs.stop)

	rs.log().Info("started", zap.Duration("check_interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for a running pass to finish.
func (rs *ReviewScheduler) Stop() {
	rs.mu.Lock()
	ticker, stop := rs.ticker, rs.stop
	rs.ticker = nil
	rs.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(stop)
		rs.wg.Wait()
		rs.log().Info("stopped")
	}
}

func (rs *ReviewScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.check()

	for {
		select {
		case <-tick:
			rs.check()
		case <-stop:
			return
		}
	}
}

func (rs *ReviewScheduler) check() {
	ctx, cancel := context.WithTimeout(context.Background(), rs.CheckInterval)
	defer cancel()

	if _, err := rs.RunNow(ctx); err != nil {
		rs.log().Error("review pass failed", zap.Error(err))
	}
}

// RunNow performs one review pass synchronously.
func (rs *ReviewScheduler) RunNow(ctx context.Context) (*employer.ReviewRun, error) {
	run, err := rs.Employers.MarkReviewsDue(ctx)

	rs.mu.Lock()
	rs.lastRun = time.Now()
	rs.mu.Unlock()

	if err != nil {
		return run, err
	}
	rs.log().Info("review pass complete",
		zap.String("run_id", run.ID),
		zap.Int("checked", run.Checked),
		zap.Int("marked_due", run.MarkedDue),
	)
	return run, nil
}

// NextRunTime returns when the next scheduled pass is due, zero before the
// first pass.
func (rs *ReviewScheduler) NextRunTime() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.lastRun.IsZero() {
		return time.Time{}
	}
	return rs.lastRun.Add(rs.CheckInterval)
}
