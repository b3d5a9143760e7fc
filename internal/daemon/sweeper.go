package daemon

import (
	"context"
	"time"

	"pastiche/internal/jobs"
	"pastiche/internal/logging"
)

// journalRetention is how long finished jobs stay listed.
const journalRetention = 7 * 24 * time.Hour

// SweepResult counts what one sweep pass removed.
type SweepResult struct {
	Artifacts int   `json:"artifacts"`
	Jobs      int   `json:"jobs"`
	Journal   int64 `json:"journal"`
}

func (d *Daemon) sweepLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ttl := d.cfg.WorkingTTL()
	interval := d.cfg.SweepInterval()
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Sweep(ctx); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(d.logger, "working area sweep failed", "sweep_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check permissions on paths.work_dir"),
					logging.String(logging.FieldImpact, "stale working artifacts remain until the next pass"),
				)
			}
		}
	}
}

// Sweep removes working artifacts and tracked jobs older than the working
// TTL, and journal entries older than a week.
func (d *Daemon) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	ttl := d.cfg.WorkingTTL()
	if ttl <= 0 {
		return res, nil
	}
	removed, err := d.artifacts.Sweep(ctx, ttl)
	res.Artifacts = removed
	if d.metrics != nil {
		d.metrics.ArtifactsSwept(removed)
	}
	if err != nil {
		return res, err
	}
	res.Jobs = d.pool.Prune(ttl)
	res.Journal, err = d.index.PruneJobs(ctx, time.Now().Add(-journalRetention),
		string(jobs.StatusDone), string(jobs.StatusFailed))
	if err != nil {
		return res, err
	}
	if res.Artifacts > 0 || res.Jobs > 0 || res.Journal > 0 {
		d.logger.Info("working area swept",
			logging.Int("artifacts", res.Artifacts),
			logging.Int("jobs", res.Jobs),
			logging.Int64("journal", res.Journal),
			logging.String(logging.FieldEventType, "sweep_completed"),
		)
	}
	return res, nil
}
