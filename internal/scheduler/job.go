package scheduler

import (
	"context"
	"sync"
	"time"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes the job
	Run(ctx context.Context) error

	// Schedule returns a six-field cron expression with seconds ("0 30 18 * * 1-5")
	// or a descriptor such as "@daily"
	Schedule() string
}

// JobResult is one execution of a job, including its retries
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// historyLimit bounds the results kept per job
const historyLimit = 100

// JobHistory keeps the most recent results of a job. Safe for concurrent use.
type JobHistory struct {
	mu      sync.RWMutex
	results []JobResult
}

// AddResult appends a result, dropping the oldest past historyLimit
func (h *JobHistory) AddResult(result JobResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.results = append(h.results, result)
	if len(h.results) > historyLimit {
		h.results = append([]JobResult(nil), h.results[len(h.results)-historyLimit:]...)
	}
}

// Len returns the number of stored results
func (h *JobHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.results)
}

// GetLatestResults returns a copy of the latest n results, oldest first
func (h *JobHistory) GetLatestResults(n int) []JobResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > len(h.results) {
		n = len(h.results)
	}
	out := make([]JobResult, n)
	copy(out, h.results[len(h.results)-n:])
	return out
}

// GetFailedResults returns all failed results
func (h *JobHistory) GetFailedResults() []JobResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	failed := make([]JobResult, 0)
	for _, result := range h.results {
		if !result.Success {
			failed = append(failed, result)
		}
	}
	return failed
}

// GetSuccessRate returns the success rate (0.0 - 1.0)
func (h *JobHistory) GetSuccessRate() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.results) == 0 {
		return 0.0
	}

	successCount := 0
	for _, result := range h.results {
		if result.Success {
			successCount++
		}
	}
	return float64(successCount) / float64(len(h.results))
}

// LastSuccess returns the most recent successful result
func (h *JobHistory) LastSuccess() (JobResult, bool) {
	return h.last(true)
}

// LastFailure returns the most recent failed result
func (h *JobHistory) LastFailure() (JobResult, bool) {
	return h.last(false)
}

func (h *JobHistory) last(success bool) (JobResult, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := len(h.results) - 1; i >= 0; i-- {
		if h.results[i].Success == success {
			return h.results[i], true
		}
	}
	return JobResult{}, false
}

// ConsecutiveFailures counts failures since the last success.
// 스냅샷 누락 알림 기준으로 사용
func (h *JobHistory) ConsecutiveFailures() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for i := len(h.results) - 1; i >= 0 && !h.results[i].Success; i-- {
		n++
	}
	return n
}
