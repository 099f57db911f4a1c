/*
scheduler.go - Periodic probation scan

PURPOSE:
  Runs the probation scanner for every configured company on a fixed
  interval. Each run is safe to repeat: milestone notifications are keyed, so
  a second run on the same day writes nothing new.

DESIGN:
  - One background goroutine with a ticker
  - Runs immediately on start, then every Interval
  - A failing company is logged and does not stop the others

USAGE:
  scheduler := NewProbationScheduler(scanner, companies, time.Hour, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - probation/scanner.go: the scan itself
  - handlers.go: ScanProbation endpoint (manual run)
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/hr-engine/probation"
)

// ProbationScheduler triggers probation scans periodically.
type ProbationScheduler struct {
	Scanner   *probation.Scanner
	Companies []string
	Interval  time.Duration
	Logger    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewProbationScheduler(scanner *probation.Scanner, companies []string, interval time.Duration, logger *zap.Logger) *ProbationScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ProbationScheduler{
		Scanner:   scanner,
		Companies: companies,
		Interval:  interval,
		Logger:    logger.Named("scheduler"),
	}
}

// Start launches the loop. Calling Start on a running scheduler is a no-op.
func (ps *ProbationScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps.cancel = cancel
	ps.done = make(chan struct{})
	go ps.run(ctx, ps.done)

	ps.Logger.Info("probation scheduler started",
		zap.Duration("interval", ps.Interval),
		zap.Strings("companies", ps.Companies),
	)
}

// Stop cancels a run in progress and waits for the loop to exit.
func (ps *ProbationScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.cancel == nil {
		return
	}
	ps.cancel()
	<-ps.done
	ps.cancel = nil
	ps.Logger.Info("probation scheduler stopped")
}

func (ps *ProbationScheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(ps.Interval)
	defer ticker.Stop()

	ps.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			ps.RunNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow scans every configured company once and returns the per-company
// results of the scans that completed.
func (ps *ProbationScheduler) RunNow(ctx context.Context) map[string]probation.Result {
	results := make(map[string]probation.Result, len(ps.Companies))
	for _, company := range ps.Companies {
		if ctx.Err() != nil {
			break
		}
		res, err := ps.Scanner.Scan(ctx, company)
		if err != nil {
			ps.Logger.Error("probation scan failed", zap.String("company_id", company), zap.Error(err))
			continue
		}
		results[company] = res
		if res.Sent > 0 || res.Failed > 0 {
			ps.Logger.Info("probation scan completed",
				zap.String("company_id", company),
				zap.Int("scanned", res.Scanned),
				zap.Int("sent", res.Sent),
				zap.Int("failed", res.Failed),
			)
		}
	}
	return results
}
