// Package universe builds the daily tradable US stock universe.
package universe

import (
	"fmt"
	"strings"

	"github.com/wonny/tradable-universe/internal/pipeline"
	"github.com/wonny/tradable-universe/internal/strategyconfig"
)

// Stage labels, in evaluation order.
// 제외 사유(Excluded)와 단계별 통과 수(StageCounts)의 키로 사용
const (
	StageCommonStock    = "common_stock"
	StagePrimaryShare   = "primary_share"
	StageDollarVolume   = "dollar_volume"
	StagePrice          = "price"
	StageClosePresent   = "close_present"
	StageVolumePositive = "volume_positive"
	StageMarketCap      = "market_cap"
)

// Criteria holds the thresholds of the tradable universe
type Criteria struct {
	SecurityType       string  `json:"security_type"`
	DollarVolumeWindow int     `json:"dollar_volume_window"`
	MinDollarVolume    float64 `json:"min_dollar_volume"` // >=
	MinPrice           float64 `json:"min_price"`         // >
	CompletenessWindow int     `json:"completeness_window"`

	MarketCapFilter       bool    `json:"market_cap_filter"`
	MinMarketCap          float64 `json:"min_market_cap"` // >=
	MarketCapDimension    string  `json:"market_cap_dimension"`
	MarketCapPeriodOffset int     `json:"market_cap_period_offset"`
}

// DefaultCriteria returns the standard TradableStocksUS thresholds
func DefaultCriteria() Criteria {
	return Criteria{
		SecurityType:          "Common Stock",
		DollarVolumeWindow:    200,
		MinDollarVolume:       2_500_000,
		MinPrice:              5,
		CompletenessWindow:    200,
		MarketCapFilter:       false,
		MinMarketCap:          500_000_000,
		MarketCapDimension:    "ARQ",
		MarketCapPeriodOffset: 0,
	}
}

// CriteriaFromStrategy maps the strategy file onto Criteria
func CriteriaFromStrategy(cfg *strategyconfig.Config) Criteria {
	u := cfg.Universe
	return Criteria{
		SecurityType:          u.SecurityType,
		DollarVolumeWindow:    u.DollarVolume.WindowDays,
		MinDollarVolume:       u.DollarVolume.MinUSD,
		MinPrice:              u.Price.MinUSD,
		CompletenessWindow:    u.Completeness.WindowDays,
		MarketCapFilter:       u.MarketCap.Enabled,
		MinMarketCap:          u.MarketCap.MinUSD,
		MarketCapDimension:    strings.ToUpper(u.MarketCap.Dimension),
		MarketCapPeriodOffset: u.MarketCap.PeriodOffset,
	}
}

// WithMarketCapFilter returns a copy with the market cap stage toggled
func (c Criteria) WithMarketCapFilter(on bool) Criteria {
	c.MarketCapFilter = on
	return c
}

// Stages returns the stage labels this criteria produces, in order
func (c Criteria) Stages() []string {
	stages := []string{
		StageCommonStock,
		StagePrimaryShare,
		StageDollarVolume,
		StagePrice,
		StageClosePresent,
		StageVolumePositive,
	}
	if c.MarketCapFilter {
		stages = append(stages, StageMarketCap)
	}
	return stages
}

// Filter composes the universe expression.
// Each stage is masked by the one before it, so windowed statistics are only
// computed for assets that survived every earlier stage.
func (c Criteria) Filter() (pipeline.Filter, error) {
	// 1~3. 보통주 & primary share (PrimaryShareSid가 null이면 primary)
	securityType, err := pipeline.LatestClassifier(pipeline.SecuritiesMaster.SecurityType2, nil)
	if err != nil {
		return nil, err
	}
	primaryShareSid, err := pipeline.LatestClassifier(pipeline.SecuritiesMaster.PrimaryShareSid, nil)
	if err != nil {
		return nil, err
	}
	common := pipeline.Named(pipeline.Eq(securityType, c.SecurityType), StageCommonStock)
	primary := pipeline.Named(pipeline.IsNull(primaryShareSid), StagePrimaryShare)
	base := pipeline.And(common, primary)

	// 4. 평균 거래대금
	adv, err := pipeline.AverageDollarVolume(c.DollarVolumeWindow, base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageDollarVolume, err)
	}
	dollarVolume := pipeline.Named(pipeline.GE(adv, c.MinDollarVolume), StageDollarVolume)

	// 5. 최근 종가
	closePrice, err := pipeline.Latest(pipeline.EquityPricing.Close, dollarVolume)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StagePrice, err)
	}
	price := pipeline.Named(pipeline.GT(closePrice, c.MinPrice), StagePrice)

	// 6. 종가 결측 없음
	present, err := pipeline.AllPresent(pipeline.EquityPricing.Close, c.CompletenessWindow, price)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageClosePresent, err)
	}
	present = pipeline.Named(present, StageClosePresent)

	// 7. 매일 거래량 > 0
	volume, err := pipeline.Latest(pipeline.EquityPricing.Volume, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageVolumePositive, err)
	}
	traded, err := pipeline.All(pipeline.GT(volume, 0), c.CompletenessWindow, present)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageVolumePositive, err)
	}
	tradable := pipeline.Named(traded, StageVolumePositive)

	if !c.MarketCapFilter {
		return tradable, nil
	}

	// 8. 시가총액 (선택)
	fundamentals, err := pipeline.Fundamentals(c.MarketCapDimension, c.MarketCapPeriodOffset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageMarketCap, err)
	}
	marketCap, err := pipeline.Latest(fundamentals.MarketCap, tradable)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", StageMarketCap, err)
	}
	return pipeline.Named(pipeline.GE(marketCap, c.MinMarketCap), StageMarketCap), nil
}

// TradableStocksUS returns the filter for liquid, primary-share US common stocks
// with a complete price history. marketCapFilter adds a minimum market cap of
// 500M USD from the most recent quarterly fundamentals.
func TradableStocksUS(marketCapFilter bool) pipeline.Filter {
	f, err := DefaultCriteria().WithMarketCapFilter(marketCapFilter).Filter()
	if err != nil {
		// 기본값은 항상 유효
		panic(err)
	}
	return f
}
