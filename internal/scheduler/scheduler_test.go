package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradable-universe/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	failures int32 // 처음 n번 실패
	calls    int32
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }
func (j *fakeJob) Run(ctx context.Context) error {
	n := atomic.AddInt32(&j.calls, 1)
	if n <= j.failures {
		return errors.New("transient failure")
	}
	return nil
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(logger.NewNop())

	require.NoError(t, s.AddJob(&fakeJob{name: "b", schedule: "0 30 18 * * 1-5"}))
	require.NoError(t, s.AddJob(&fakeJob{name: "a", schedule: "@daily"}))

	assert.Error(t, s.AddJob(&fakeJob{name: "a", schedule: "@daily"}), "duplicate name")
	assert.Error(t, s.AddJob(&fakeJob{name: "c", schedule: "not a cron"}))

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("a"))
}

func TestScheduler_RunJobSync_Retries(t *testing.T) {
	s := New(logger.NewNop(), WithRetry(2, time.Millisecond))
	job := &fakeJob{name: "flaky", schedule: "@daily", failures: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobSync(context.Background(), "flaky")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&job.calls))

	stats := s.GetJobStats()["flaky"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1.0, stats.SuccessRate)
	assert.NotNil(t, stats.LastSuccess)
	assert.Nil(t, stats.LastFailure)
	assert.Equal(t, 0, stats.ConsecutiveFailures)
}

func TestScheduler_RunJobSync_Fails(t *testing.T) {
	s := New(logger.NewNop(), WithRetry(1, time.Millisecond))
	job := &fakeJob{name: "broken", schedule: "@daily", failures: 10}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobSync(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "transient failure", result.Error)
	assert.Equal(t, int32(2), atomic.LoadInt32(&job.calls))

	history, err := s.GetJobHistory("broken")
	require.NoError(t, err)
	assert.Len(t, history.GetFailedResults(), 1)
	assert.Equal(t, 1, s.GetJobStats()["broken"].ConsecutiveFailures)

	_, err = s.RunJobSync(context.Background(), "missing")
	assert.Error(t, err)
}

func TestScheduler_RetryStopsOnCancel(t *testing.T) {
	s := New(logger.NewNop(), WithRetry(5, time.Hour))
	job := &fakeJob{name: "slow", schedule: "@daily", failures: 10}
	require.NoError(t, s.AddJob(job))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.RunJobSync(ctx, "slow")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, context.Canceled.Error(), result.Error)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))
}

func TestScheduler_NextRun(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s := New(logger.NewNop(), WithLocation(loc))
	require.NoError(t, s.AddJob(&fakeJob{name: "close", schedule: "0 30 18 * * *"}))

	s.Start()
	defer s.Stop()

	next, ok := s.NextRun("close")
	require.True(t, ok)
	next = next.In(loc)
	assert.Equal(t, 18, next.Hour())
	assert.Equal(t, 30, next.Minute())

	_, ok = s.NextRun("missing")
	assert.False(t, ok)
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < 105; i++ {
		h.AddResult(JobResult{JobName: "x", Success: i%5 != 0})
	}

	assert.Equal(t, 100, h.Len())
	assert.Len(t, h.GetLatestResults(3), 3)
	assert.Len(t, h.GetFailedResults(), 20)
	assert.InDelta(t, 0.8, h.GetSuccessRate(), 1e-9)
	assert.Empty(t, (&JobHistory{}).GetLatestResults(5))
}

func TestJobHistory_LastAndConsecutive(t *testing.T) {
	h := &JobHistory{}
	_, ok := h.LastSuccess()
	assert.False(t, ok)

	base := time.Date(2024, 1, 2, 18, 30, 0, 0, time.UTC)
	for i, success := range []bool{true, false, true, false, false} {
		h.AddResult(JobResult{JobName: "x", StartTime: base.AddDate(0, 0, i), Success: success})
	}

	last, ok := h.LastSuccess()
	require.True(t, ok)
	assert.Equal(t, base.AddDate(0, 0, 2), last.StartTime)

	failed, ok := h.LastFailure()
	require.True(t, ok)
	assert.Equal(t, base.AddDate(0, 0, 4), failed.StartTime)

	assert.Equal(t, 2, h.ConsecutiveFailures())
}
