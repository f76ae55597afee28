package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/tradable-universe/internal/contracts"
	"github.com/wonny/tradable-universe/internal/marketdata"
	"github.com/wonny/tradable-universe/internal/universe"
	"github.com/wonny/tradable-universe/pkg/logger"
)

// SessionSource lists trading sessions
type SessionSource interface {
	Sessions(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// QualityChecker reports market data coverage for a session
type QualityChecker interface {
	Check(ctx context.Context, date time.Time) (*marketdata.QualitySnapshot, error)
}

// UniverseJob builds and saves the universe for recent sessions
// ⭐ SSOT: 유니버스 스냅샷 스케줄은 이 Job에서만
type UniverseJob struct {
	builder      contracts.UniverseBuilder
	repo         contracts.UniverseRepository
	sessions     SessionSource
	schedule     string
	lookbackDays int
	quality      QualityChecker // nil: 품질 검증 생략
	logger       *logger.Logger

	now func() time.Time
}

// NewUniverseJob creates a new universe job.
// lookbackDays > 0 backfills sessions in the last lookbackDays calendar days that have no snapshot yet.
func NewUniverseJob(builder contracts.UniverseBuilder, repo contracts.UniverseRepository, sessions SessionSource, schedule string, lookbackDays int, log *logger.Logger) *UniverseJob {
	return &UniverseJob{
		builder:      builder,
		repo:         repo,
		sessions:     sessions,
		schedule:     schedule,
		lookbackDays: lookbackDays,
		logger:       log,
		now:          time.Now,
	}
}

// WithQualityGate skips sessions whose data coverage is below threshold.
// Skipped sessions stay unsaved, so the next run inside the lookback retries them.
func (j *UniverseJob) WithQualityGate(q QualityChecker) *UniverseJob {
	j.quality = q
	return j
}

// Name returns the job name
func (j *UniverseJob) Name() string {
	return "universe_snapshot"
}

// Schedule returns the cron schedule (weekdays after the US close by default)
func (j *UniverseJob) Schedule() string {
	if j.schedule == "" {
		return "0 30 18 * * 1-5"
	}
	return j.schedule
}

// Run builds every missing snapshot in the lookback range
func (j *UniverseJob) Run(ctx context.Context) error {
	today := j.now()
	from := today.AddDate(0, 0, -j.lookbackDays)

	sessions, err := j.sessions.Sessions(ctx, from, today)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	if len(sessions) == 0 {
		j.logger.Info("No trading session in range, skipping universe snapshot")
		return nil
	}

	built := 0
	for _, date := range sessions {
		_, err := j.repo.GetUniverseByDate(ctx, date)
		if err == nil {
			continue
		}
		if !errors.Is(err, universe.ErrNotFound) {
			return fmt.Errorf("check snapshot %s: %w", date.Format("2006-01-02"), err)
		}

		if j.quality != nil {
			snapshot, err := j.quality.Check(ctx, date)
			if err != nil {
				return fmt.Errorf("quality validation %s: %w", date.Format("2006-01-02"), err)
			}
			if !snapshot.IsValid() {
				j.logger.WithSession(date).WithFields(map[string]interface{}{
					"quality_score": snapshot.QualityScore,
					"total_stocks":  snapshot.TotalStocks,
					"failed":        snapshot.Failed,
				}).Warn("Data quality below threshold, skipping snapshot")
				continue
			}
		}

		u, err := j.builder.Build(ctx, date)
		if err != nil {
			return fmt.Errorf("build universe %s: %w", date.Format("2006-01-02"), err)
		}
		if err := j.repo.SaveUniverse(ctx, u); err != nil {
			return fmt.Errorf("save universe %s: %w", date.Format("2006-01-02"), err)
		}
		built++

		j.logger.WithSession(date).WithFields(map[string]interface{}{
			"run_id":         u.RunID,
			"total_count":    u.TotalCount,
			"included_count": len(u.Stocks),
			"excluded_count": len(u.Excluded),
		}).Info("Universe snapshot saved")
	}

	j.logger.WithField("built", built).Info("Universe snapshot job finished")
	return nil
}
