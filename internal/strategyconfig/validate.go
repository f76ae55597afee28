package strategyconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // meta.timezone 검증용 (zoneinfo 없는 컨테이너)

	"github.com/robfig/cron/v3"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

var validDimensions = map[string]bool{
	"ARQ": true, "ARY": true, "ART": true,
	"MRQ": true, "MRY": true, "MRT": true,
}

// 스케줄러와 동일한 6필드 파서
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}
	if cfg.Meta.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Meta.Timezone); err != nil {
			return ValidationError{"meta.timezone", err.Error()}
		}
	}

	// === Universe ===
	u := cfg.Universe
	if strings.TrimSpace(u.SecurityType) == "" {
		return ValidationError{"universe.security_type", "required"}
	}
	if u.DollarVolume.WindowDays <= 0 {
		return ValidationError{"universe.dollar_volume.window_days", "must be > 0"}
	}
	if u.DollarVolume.MinUSD <= 0 {
		return ValidationError{"universe.dollar_volume.min_usd", "must be > 0"}
	}
	if u.Price.MinUSD <= 0 {
		return ValidationError{"universe.price.min_usd", "must be > 0"}
	}
	if u.Completeness.WindowDays <= 0 {
		return ValidationError{"universe.completeness.window_days", "must be > 0"}
	}

	// market_cap은 비활성이어도 빌드 시 override 가능하므로 항상 검증
	if u.MarketCap.MinUSD <= 0 {
		return ValidationError{"universe.market_cap.min_usd", "must be > 0"}
	}
	if !validDimensions[strings.ToUpper(u.MarketCap.Dimension)] {
		return ValidationError{"universe.market_cap.dimension", "must be one of ARQ, ARY, ART, MRQ, MRY, MRT"}
	}
	if u.MarketCap.PeriodOffset > 0 {
		return ValidationError{"universe.market_cap.period_offset", "must be <= 0"}
	}

	// === Schedule ===
	if cfg.Schedule.Cron != "" {
		if err := validateCron(cfg.Schedule.Cron); err != nil {
			return ValidationError{"schedule.cron", err.Error()}
		}
	}
	if cfg.Schedule.LookbackDays < 0 {
		return ValidationError{"schedule.lookback_days", "must be >= 0"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning
	u := cfg.Universe

	// 짧은 window → 유동성 추정 불안정
	if u.DollarVolume.WindowDays < 20 {
		warnings = append(warnings, Warning{
			Code:    "SHORT_ADV_WINDOW",
			Message: "dollar_volume.window_days < 20: 평균 거래대금이 노이즈에 민감",
		})
	}
	if u.Completeness.WindowDays < u.DollarVolume.WindowDays {
		warnings = append(warnings, Warning{
			Code:    "SHORT_COMPLETENESS_WINDOW",
			Message: "completeness.window_days < dollar_volume.window_days: 결측일이 평균에서 조용히 빠짐",
		})
	}

	// 페니스톡 경고
	if u.Price.MinUSD < 1 {
		warnings = append(warnings, Warning{
			Code:    "PENNY_STOCKS",
			Message: "price.min_usd < 1: 페니스톡 포함",
		})
	}

	if u.MarketCap.Enabled && u.MarketCap.PeriodOffset < 0 {
		warnings = append(warnings, Warning{
			Code:    "STALE_MARKET_CAP",
			Message: "market_cap.period_offset < 0: 직전 분기 이전 시가총액 사용",
		})
	}

	return warnings
}

// === Helper Functions ===

func validateCron(spec string) error {
	if len(strings.Fields(spec)) != 6 {
		return errors.New("must have 6 fields (sec min hour dom month dow)")
	}
	_, err := cronParser.Parse(spec)
	return err
}
