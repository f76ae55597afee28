package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradable-universe/internal/contracts"
	"github.com/wonny/tradable-universe/internal/marketdata"
	"github.com/wonny/tradable-universe/internal/pipeline"
	"github.com/wonny/tradable-universe/internal/universe"
	"github.com/wonny/tradable-universe/pkg/logger"
)

// memRepo is an in-memory contracts.UniverseRepository
type memRepo struct {
	mu        sync.Mutex
	snapshots map[time.Time]*contracts.Universe
	saveErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{snapshots: make(map[time.Time]*contracts.Universe)}
}

func (r *memRepo) SaveUniverse(ctx context.Context, u *contracts.Universe) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.snapshots[u.Date] = u
	return nil
}

func (r *memRepo) GetLatestUniverse(ctx context.Context) (*contracts.Universe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *contracts.Universe
	for _, u := range r.snapshots {
		if latest == nil || u.Date.After(latest.Date) {
			latest = u
		}
	}
	if latest == nil {
		return nil, universe.ErrNotFound
	}
	return latest, nil
}

func (r *memRepo) GetUniverseByDate(ctx context.Context, date time.Time) (*contracts.Universe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.snapshots[date]; ok {
		return u, nil
	}
	return nil, universe.ErrNotFound
}

func (r *memRepo) DeleteBefore(ctx context.Context, date time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for d := range r.snapshots {
		if d.Before(date) {
			delete(r.snapshots, d)
			n++
		}
	}
	return n, nil
}

func newLoader() *pipeline.InMemoryLoader {
	sessions := pipeline.WeekdaySessions(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC))
	l := pipeline.NewInMemoryLoader(sessions)
	l.AddAsset(pipeline.Asset{Sid: 1, Symbol: "AAA"})
	l.SetString(1, pipeline.SecuritiesMaster.SecurityType2, pipeline.StringValue{Value: "Common Stock", Valid: true})
	for _, d := range sessions {
		l.SetValue(1, pipeline.EquityPricing.Close, d, 20)
		l.SetValue(1, pipeline.EquityPricing.Volume, d, 1_000_000)
	}
	return l
}

func newJob(t *testing.T, repo *memRepo, lookback int) *UniverseJob {
	t.Helper()
	loader := newLoader()
	builder, err := universe.NewBuilder(loader, universe.DefaultCriteria(), nil)
	require.NoError(t, err)

	job := NewUniverseJob(builder, repo, loader, "", lookback, logger.NewNop())
	// 금요일 저녁
	job.now = func() time.Time { return time.Date(2023, 12, 29, 23, 0, 0, 0, time.UTC) }
	return job
}

func TestUniverseJob_BackfillsMissingSessions(t *testing.T) {
	repo := newMemRepo()
	job := newJob(t, repo, 7)

	// 12/26 스냅샷은 이미 존재
	existing := &contracts.Universe{Date: time.Date(2023, 12, 26, 0, 0, 0, 0, time.UTC), RunID: "old"}
	require.NoError(t, repo.SaveUniverse(context.Background(), existing))

	require.NoError(t, job.Run(context.Background()))

	// 12/22 ~ 12/29 평일 6개 세션
	assert.Len(t, repo.snapshots, 6)
	kept, err := repo.GetUniverseByDate(context.Background(), existing.Date)
	require.NoError(t, err)
	assert.Equal(t, "old", kept.RunID)

	latest, err := repo.GetLatestUniverse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA"}, latest.Stocks)

	// 두 번째 실행은 새로 만들지 않음
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, repo.snapshots, 6)
}

// stubQuality fails the listed dates
type stubQuality struct {
	low map[time.Time]bool
	err error
}

func (q stubQuality) Check(ctx context.Context, date time.Time) (*marketdata.QualitySnapshot, error) {
	if q.err != nil {
		return nil, q.err
	}
	s := &marketdata.QualitySnapshot{Date: date, TotalStocks: 1, QualityScore: 1}
	if q.low[date] {
		s.QualityScore = 0.2
		s.Failed = []string{"price"}
	}
	return s, nil
}

func TestUniverseJob_QualityGate(t *testing.T) {
	lateDay := time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC)

	t.Run("skips low coverage session", func(t *testing.T) {
		repo := newMemRepo()
		job := newJob(t, repo, 7).WithQualityGate(stubQuality{low: map[time.Time]bool{lateDay: true}})

		require.NoError(t, job.Run(context.Background()))

		assert.Len(t, repo.snapshots, 5)
		_, err := repo.GetUniverseByDate(context.Background(), lateDay)
		assert.ErrorIs(t, err, universe.ErrNotFound)
	})

	t.Run("check error fails the run", func(t *testing.T) {
		repo := newMemRepo()
		job := newJob(t, repo, 0).WithQualityGate(stubQuality{err: errors.New("db down")})

		err := job.Run(context.Background())
		assert.ErrorContains(t, err, "db down")
		assert.Empty(t, repo.snapshots)
	})
}

func TestUniverseJob_SaveError(t *testing.T) {
	repo := newMemRepo()
	repo.saveErr = errors.New("disk full")
	job := newJob(t, repo, 0)

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "disk full")
}

func TestUniverseJob_NoSession(t *testing.T) {
	repo := newMemRepo()
	job := newJob(t, repo, 0)
	job.now = func() time.Time { return time.Date(2023, 12, 30, 12, 0, 0, 0, time.UTC) } // 토요일

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, repo.snapshots)
	assert.Equal(t, "universe_snapshot", job.Name())
	assert.Equal(t, "0 30 18 * * 1-5", job.Schedule())
}

func TestSnapshotCleanupJob(t *testing.T) {
	repo := newMemRepo()
	for _, d := range []int{1, 10, 20} {
		u := &contracts.Universe{Date: time.Date(2023, 12, d, 0, 0, 0, 0, time.UTC)}
		require.NoError(t, repo.SaveUniverse(context.Background(), u))
	}

	job := NewSnapshotCleanupJob(repo, 20*24*time.Hour, logger.NewNop())
	job.now = func() time.Time { return time.Date(2023, 12, 26, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, repo.snapshots, 2)
}
