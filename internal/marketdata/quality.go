package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/tradable-universe/internal/pipeline"
)

// QualityConfig holds coverage thresholds (0..1) checked before a snapshot
type QualityConfig struct {
	MinPriceCoverage        float64 `json:"min_price_coverage"`        // 종가 존재 비율
	MinVolumeCoverage       float64 `json:"min_volume_coverage"`       // 거래량 > 0 비율
	MinFundamentalsCoverage float64 `json:"min_fundamentals_coverage"` // 최근 재무 보고 비율
}

// DefaultQualityConfig returns the thresholds used by the scheduler
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		MinPriceCoverage:        0.95,
		MinVolumeCoverage:       0.90,
		MinFundamentalsCoverage: 0.0, // 시가총액 필터 사용 시에만 의미 있음
	}
}

// QualitySnapshot is the data coverage for one session
type QualitySnapshot struct {
	Date         time.Time          `json:"date"`
	TotalStocks  int                `json:"total_stocks"`
	Coverage     map[string]float64 `json:"coverage"`
	QualityScore float64            `json:"quality_score"`
	Failed       []string           `json:"failed,omitempty"` // 임계치 미달 항목
}

// IsValid reports whether every coverage met its threshold
func (s *QualitySnapshot) IsValid() bool {
	return s.TotalStocks > 0 && len(s.Failed) == 0
}

// QualityGate validates market data coverage before the universe is built
// ⭐ SSOT: 데이터 → 유니버스 품질 검증
type QualityGate struct {
	db     *pgxpool.Pool
	config QualityConfig
}

// NewQualityGate creates a new QualityGate instance
func NewQualityGate(db *pgxpool.Pool, config QualityConfig) *QualityGate {
	return &QualityGate{
		db:     db,
		config: config,
	}
}

// fundamentalsLookback bounds how old a filing may be to count as covered
const fundamentalsLookback = 120

// Check computes coverage of securities listed on date
func (g *QualityGate) Check(ctx context.Context, date time.Time) (*QualitySnapshot, error) {
	date = pipeline.Day(date)

	var total, priced, traded, reported int
	err := g.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(dp.close),
			COUNT(*) FILTER (WHERE dp.volume > 0),
			COUNT(*) FILTER (WHERE EXISTS (
				SELECT 1 FROM data.fundamentals f
				WHERE f.sid = s.sid
				  AND f.marketcap IS NOT NULL
				  AND f.report_date <= $1
				  AND f.report_date > $1::date - $2::int
			))
		FROM data.securities s
		LEFT JOIN data.daily_prices dp ON dp.sid = s.sid AND dp.trade_date = $1
		WHERE s.listed_date <= $1
		  AND (s.delisted_date IS NULL OR s.delisted_date > $1)
	`, date, fundamentalsLookback).Scan(&total, &priced, &traded, &reported)
	if err != nil {
		return nil, fmt.Errorf("query coverage: %w", err)
	}

	return evaluate(date, total, map[string]int{
		"price":        priced,
		"volume":       traded,
		"fundamentals": reported,
	}, g.config), nil
}

// evaluate turns raw counts into coverage ratios and threshold failures
func evaluate(date time.Time, total int, counts map[string]int, cfg QualityConfig) *QualitySnapshot {
	snapshot := &QualitySnapshot{
		Date:        date,
		TotalStocks: total,
		Coverage:    make(map[string]float64, len(counts)),
	}

	for key, n := range counts {
		if total > 0 {
			snapshot.Coverage[key] = float64(n) / float64(total)
		} else {
			snapshot.Coverage[key] = 0
		}
	}

	// 가중치 (합계 = 1.0)
	weights := map[string]float64{
		"price":        0.40,
		"volume":       0.40,
		"fundamentals": 0.20,
	}
	for key, weight := range weights {
		snapshot.QualityScore += snapshot.Coverage[key] * weight
	}

	for _, th := range []struct {
		key string
		min float64
	}{
		{"price", cfg.MinPriceCoverage},
		{"volume", cfg.MinVolumeCoverage},
		{"fundamentals", cfg.MinFundamentalsCoverage},
	} {
		if snapshot.Coverage[th.key] < th.min {
			snapshot.Failed = append(snapshot.Failed, th.key)
		}
	}

	return snapshot
}
