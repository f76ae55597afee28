package contracts

import (
	"sort"
	"time"
)

// Universe is the tradable stock list for one session
// ⭐ SSOT: 유니버스 빌드 결과 전달
type Universe struct {
	Date            time.Time         `json:"date"`
	RunID           string            `json:"run_id"`
	CriteriaHash    string            `json:"criteria_hash"`
	MarketCapFilter bool              `json:"market_cap_filter"`
	Stocks          []string          `json:"stocks"`                 // 거래 가능 종목 심볼
	Excluded        map[string]string `json:"excluded"`               // 제외 종목: 첫 탈락 단계
	StageCounts     map[string]int    `json:"stage_counts,omitempty"` // 단계별 통과 종목 수
	TotalCount      int               `json:"total_count,omitempty"`  // 전체 상장 종목 수
}

// Contains checks if a symbol is in the universe
func (u *Universe) Contains(symbol string) bool {
	for _, stock := range u.Stocks {
		if stock == symbol {
			return true
		}
	}
	return false
}

// IsExcluded checks if a symbol is excluded with reason
func (u *Universe) IsExcluded(symbol string) (bool, string) {
	reason, exists := u.Excluded[symbol]
	return exists, reason
}

// Count returns the number of tradable stocks
func (u *Universe) Count() int {
	return len(u.Stocks)
}

// ExclusionSummary counts excluded symbols per reason
func (u *Universe) ExclusionSummary() map[string]int {
	out := make(map[string]int)
	for _, reason := range u.Excluded {
		out[reason]++
	}
	return out
}

// SortedReasons returns the exclusion reasons ordered by count (desc), then name
func (u *Universe) SortedReasons() []string {
	summary := u.ExclusionSummary()
	reasons := make([]string, 0, len(summary))
	for r := range summary {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if summary[reasons[i]] != summary[reasons[j]] {
			return summary[reasons[i]] > summary[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	return reasons
}
