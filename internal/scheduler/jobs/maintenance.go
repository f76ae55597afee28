package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/tradable-universe/pkg/logger"
)

// SnapshotPruner deletes snapshots older than a date
type SnapshotPruner interface {
	DeleteBefore(ctx context.Context, date time.Time) (int64, error)
}

// SnapshotCleanupJob removes universe snapshots past the retention period
type SnapshotCleanupJob struct {
	pruner    SnapshotPruner
	retention time.Duration
	logger    *logger.Logger

	now func() time.Time
}

// NewSnapshotCleanupJob creates a new cleanup job
func NewSnapshotCleanupJob(pruner SnapshotPruner, retention time.Duration, log *logger.Logger) *SnapshotCleanupJob {
	return &SnapshotCleanupJob{
		pruner:    pruner,
		retention: retention,
		logger:    log,
		now:       time.Now,
	}
}

// Name returns the job name
func (j *SnapshotCleanupJob) Name() string {
	return "snapshot_cleanup"
}

// Schedule returns the cron schedule (Sundays at 3 AM)
func (j *SnapshotCleanupJob) Schedule() string {
	return "0 0 3 * * 0"
}

// Run executes the snapshot cleanup
func (j *SnapshotCleanupJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled snapshot cleanup")

	cutoff := j.now().Add(-j.retention)
	count, err := j.pruner.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete snapshots before %s: %w", cutoff.Format("2006-01-02"), err)
	}

	if count > 0 {
		j.logger.WithField("removed", count).Info("Snapshot cleanup completed")
	}

	return nil
}
