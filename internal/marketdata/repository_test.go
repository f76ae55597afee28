package marketdata

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradable-universe/internal/pipeline"
	"github.com/wonny/tradable-universe/pkg/config"
	"github.com/wonny/tradable-universe/pkg/database"
)

func TestAsOf(t *testing.T) {
	filings := []filing{
		{date: day(2024, 2, 15), value: 1},
		{date: day(2024, 5, 15), value: 2},
		{date: day(2024, 8, 15), value: 3},
	}

	tests := []struct {
		name   string
		date   time.Time
		offset int
		want   float64
	}{
		{"before first filing", day(2024, 1, 31), 0, math.NaN()},
		{"on filing date", day(2024, 5, 15), 0, 2},
		{"between filings", day(2024, 7, 1), 0, 2},
		{"previous period", day(2024, 9, 1), -1, 2},
		{"two periods back", day(2024, 9, 1), -2, 1},
		{"not enough history", day(2024, 3, 1), -1, math.NaN()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := asOf(filings, tt.date, tt.offset)
			if math.IsNaN(tt.want) {
				assert.True(t, math.IsNaN(got), "got %v", got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnknownColumns(t *testing.T) {
	r := NewRepository(nil)
	ctx := context.Background()

	_, err := r.LoadLatestStrings(ctx, pipeline.EquityPricing.Close, []pipeline.Sid{1}, day(2024, 1, 2))
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = r.LoadWindow(ctx, pipeline.EquityPricing.Close, []pipeline.Sid{1}, day(2024, 1, 2), 0)
	assert.ErrorIs(t, err, pipeline.ErrInvalidWindow)
}

func TestRepository_Loader(t *testing.T) {
	if testing.Short() || os.Getenv("DATABASE_URL") == "" {
		t.Skip("skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	db, err := database.New(cfg)
	require.NoError(t, err, "database connection failed")
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, db.Migrate(ctx, Schema))

	// 실제 데이터와 겹치지 않는 음수 sid, 1999년 세션 사용
	cleanup := func() {
		for _, stmt := range []string{
			`DELETE FROM data.fundamentals WHERE sid IN (-101, -102)`,
			`DELETE FROM data.daily_prices WHERE sid IN (-101, -102)`,
			`DELETE FROM data.securities WHERE sid IN (-101, -102)`,
			`DELETE FROM data.sessions WHERE session_date BETWEEN '1999-01-04' AND '1999-01-06'`,
		} {
			_, _ = db.Pool.Exec(context.Background(), stmt)
		}
	}
	cleanup()
	defer cleanup()

	for _, stmt := range []string{
		`INSERT INTO data.sessions VALUES ('1999-01-04'), ('1999-01-05'), ('1999-01-06')`,
		`INSERT INTO data.securities (sid, symbol, security_type, primary_share_sid, listed_date)
		 VALUES (-101, 'TST1', 'Common Stock', NULL, '1990-01-01'),
		        (-102, 'TST2', 'Common Stock', -101, '1990-01-01')`,
		`INSERT INTO data.daily_prices (sid, trade_date, close, volume)
		 VALUES (-101, '1999-01-04', 10, 100), (-101, '1999-01-06', 12, NULL)`,
		`INSERT INTO data.fundamentals (sid, dimension, report_date, marketcap)
		 VALUES (-101, 'ARQ', '1998-11-15', 5e8)`,
	} {
		_, err := db.Pool.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	repo := NewRepository(db.Pool)
	sids := []pipeline.Sid{-101, -102}

	sessions, err := repo.Sessions(ctx, day(1999, 1, 4), day(1999, 1, 6))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(1999, 1, 4), day(1999, 1, 5), day(1999, 1, 6)}, sessions)

	w, err := repo.LoadWindow(ctx, pipeline.EquityPricing.Close, sids, day(1999, 1, 6), 5)
	require.NoError(t, err)
	require.GreaterOrEqual(t, w.Rows(), 3)
	last := w.Rows() - 1
	assert.Equal(t, 12.0, w.Values[last][0])
	assert.True(t, math.IsNaN(w.Values[last-1][0]), "no bar on 1999-01-05")
	assert.True(t, math.IsNaN(w.Values[last][1]))

	mcap, err := repo.LoadWindow(ctx, pipeline.MustFundamentals("ARQ", 0).MarketCap, sids, day(1999, 1, 6), 1)
	require.NoError(t, err)
	assert.Equal(t, 5e8, mcap.Values[0][0])

	primary, err := repo.LoadLatestStrings(ctx, pipeline.SecuritiesMaster.PrimaryShareSid, sids, day(1999, 1, 6))
	require.NoError(t, err)
	assert.False(t, primary[0].Valid)
	assert.Equal(t, pipeline.StringValue{Value: "-101", Valid: true}, primary[1])
}
