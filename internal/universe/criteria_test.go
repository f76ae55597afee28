package universe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradable-universe/internal/pipeline"
	"github.com/wonny/tradable-universe/internal/strategyconfig"
)

func stageLabels(f pipeline.Filter) []string {
	var out []string
	for _, s := range pipeline.Stages(f) {
		out = append(out, s.Label())
	}
	return out
}

func TestTradableStocksUS_Composition(t *testing.T) {
	tests := []struct {
		name            string
		marketCapFilter bool
		want            []string
	}{
		{
			name: "without market cap",
			want: []string{"", StageDollarVolume, StagePrice, StageClosePresent, StageVolumePositive},
		},
		{
			name:            "with market cap",
			marketCapFilter: true,
			want:            []string{"", StageDollarVolume, StagePrice, StageClosePresent, StageVolumePositive, StageMarketCap},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := TradableStocksUS(tt.marketCapFilter)
			assert.Equal(t, tt.want, stageLabels(f))

			// 첫 단계는 common_stock & primary_share
			base := pipeline.Stages(f)[0]
			assert.Equal(t, pipeline.KindAnd, base.Kind())
			require.Len(t, base.Inputs(), 2)
			assert.Equal(t, StageCommonStock, base.Inputs()[0].Label())
			assert.Equal(t, StagePrimaryShare, base.Inputs()[1].Label())
		})
	}
}

func TestTradableStocksUS_Render(t *testing.T) {
	out := pipeline.Render(TradableStocksUS(true))

	for _, want := range []string{
		`classifier_eq == "Common Stock" [common_stock]`,
		`is_null [primary_share]`,
		`average_dollar_volume`,
		`compare >= 2500000 [dollar_volume]`,
		`compare > 5 [price]`,
		`all_present EquityPricing.close window=200 [close_present]`,
		`all window=200 [volume_positive]`,
		`latest Fundamentals[ARQ,0].MARKETCAP`,
		`compare >= 500000000 [market_cap]`,
	} {
		assert.True(t, strings.Contains(out, want), "render missing %q\n%s", want, out)
	}
}

func TestCriteria_Filter_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Criteria)
	}{
		{"zero adv window", func(c *Criteria) { c.DollarVolumeWindow = 0 }},
		{"negative completeness window", func(c *Criteria) { c.CompletenessWindow = -5 }},
		{"bad dimension", func(c *Criteria) { c.MarketCapFilter = true; c.MarketCapDimension = "QTR" }},
		{"future period", func(c *Criteria) { c.MarketCapFilter = true; c.MarketCapPeriodOffset = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultCriteria()
			tt.mutate(&c)
			_, err := c.Filter()
			assert.Error(t, err)
		})
	}

	// market cap 비활성 시 dimension은 사용되지 않음
	c := DefaultCriteria()
	c.MarketCapDimension = "QTR"
	_, err := c.Filter()
	assert.NoError(t, err)
}

func TestCriteriaFromStrategy(t *testing.T) {
	assert.Equal(t, DefaultCriteria(), CriteriaFromStrategy(strategyconfig.Default()))

	cfg := strategyconfig.Default()
	cfg.Universe.MarketCap.Enabled = true
	cfg.Universe.MarketCap.Dimension = "mrq"
	c := CriteriaFromStrategy(cfg)
	assert.True(t, c.MarketCapFilter)
	assert.Equal(t, "MRQ", c.MarketCapDimension)
	assert.Equal(t, append(DefaultCriteria().Stages(), StageMarketCap), c.Stages())
}

func TestCriteria_Hash(t *testing.T) {
	a, err := DefaultCriteria().Hash()
	require.NoError(t, err)
	b, err := DefaultCriteria().Hash()
	require.NoError(t, err)
	c, err := DefaultCriteria().WithMarketCapFilter(true).Hash()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
