package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/kaptiv/sequencer/internal/metrics"
	"github.com/kaptiv/sequencer/internal/repository"
)

// Reaper returns jobs stuck in claimed (worker crashed between send and
// status update) to scheduled. Off by default: reclaiming a job whose send
// already reached the provider produces a duplicate email, so operators opt
// in per deployment.
type Reaper struct {
	jobs     repository.JobRepository
	logger   *slog.Logger
	interval time.Duration
	staleAge time.Duration
}

func NewReaper(jobs repository.JobRepository, logger *slog.Logger, interval, staleAge time.Duration) *Reaper {
	return &Reaper{
		jobs:     jobs,
		logger:   logger.With("component", "reaper"),
		interval: interval,
		staleAge: staleAge,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "stale_age", r.staleAge)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shut down")
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

func (r *Reaper) reap(ctx context.Context) {
	cutoff := time.Now().Add(-r.staleAge)

	reclaimed, err := r.jobs.ReclaimStale(ctx, cutoff, 100)
	if err != nil {
		r.logger.Error("reclaim stale jobs", "error", err)
		return
	}
	if reclaimed > 0 {
		metrics.ReaperReclaimedTotal.Add(float64(reclaimed))
		r.logger.Warn("reclaimed stale claimed jobs, duplicates possible", "count", reclaimed)
	}
}
