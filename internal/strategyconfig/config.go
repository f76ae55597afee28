package strategyconfig

// Config는 거래 가능 유니버스 전략의 전체 설정
type Config struct {
	Meta     Meta     `yaml:"meta" json:"meta"`
	Universe Universe `yaml:"universe" json:"universe"`
	Schedule Schedule `yaml:"schedule" json:"schedule"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
	Timezone   string `yaml:"timezone" json:"timezone"`
}

// Universe 필터 단계 (순서 고정, 각 단계는 이전 단계를 mask로 사용)
type Universe struct {
	SecurityType string       `yaml:"security_type" json:"security_type"`
	DollarVolume DollarVolume `yaml:"dollar_volume" json:"dollar_volume"`
	Price        Price        `yaml:"price" json:"price"`
	Completeness Completeness `yaml:"completeness" json:"completeness"`
	MarketCap    MarketCap    `yaml:"market_cap" json:"market_cap"`
}

type DollarVolume struct {
	WindowDays int     `yaml:"window_days" json:"window_days"`
	MinUSD     float64 `yaml:"min_usd" json:"min_usd"` // >= (경계 포함)
}

type Price struct {
	MinUSD float64 `yaml:"min_usd" json:"min_usd"` // > (경계 제외)
}

// Completeness 종가 결측 없음 + 거래량 > 0 기간
type Completeness struct {
	WindowDays int `yaml:"window_days" json:"window_days"`
}

type MarketCap struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	MinUSD       float64 `yaml:"min_usd" json:"min_usd"`
	Dimension    string  `yaml:"dimension" json:"dimension"`         // ARQ, ARY, ART, MRQ, MRY, MRT
	PeriodOffset int     `yaml:"period_offset" json:"period_offset"` // 0 = 최신, -1 = 직전
}

// Schedule 일일 스냅샷 작업
type Schedule struct {
	Cron          string `yaml:"cron" json:"cron"` // 6필드 (초 포함)
	LookbackDays  int    `yaml:"lookback_days" json:"lookback_days"`
	SaveSnapshots bool   `yaml:"save_snapshots" json:"save_snapshots"`
}

// Default returns the built-in TradableStocksUS settings
func Default() *Config {
	return &Config{
		Meta: Meta{
			StrategyID: "tradable_stocks_us",
			Version:    "1",
			Timezone:   "America/New_York",
		},
		Universe: Universe{
			SecurityType: "Common Stock",
			DollarVolume: DollarVolume{WindowDays: 200, MinUSD: 2_500_000},
			Price:        Price{MinUSD: 5},
			Completeness: Completeness{WindowDays: 200},
			MarketCap: MarketCap{
				Enabled:      false,
				MinUSD:       500_000_000,
				Dimension:    "ARQ",
				PeriodOffset: 0,
			},
		},
		Schedule: Schedule{
			Cron:          "0 30 18 * * 1-5",
			LookbackDays:  7,
			SaveSnapshots: true,
		},
	}
}
