// Package marketdata serves point-in-time market data to the pipeline engine.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/tradable-universe/internal/pipeline"
)

// ErrUnknownColumn is returned for a column with no backing table column
var ErrUnknownColumn = errors.New("unknown column")

// Repository implements pipeline.Loader on Postgres
// ⭐ SSOT: 시세/기준정보/재무 조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new market data repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Sessions returns trading sessions in [start, end]
func (r *Repository) Sessions(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_date FROM data.sessions
		WHERE session_date BETWEEN $1 AND $2
		ORDER BY session_date
	`, pipeline.Day(start), pipeline.Day(end))
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	sessions, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return sessions, nil
}

// Assets returns every security listed on date
func (r *Repository) Assets(ctx context.Context, date time.Time) ([]pipeline.Asset, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sid, symbol FROM data.securities
		WHERE listed_date <= $1
		  AND (delisted_date IS NULL OR delisted_date > $1)
		ORDER BY sid
	`, pipeline.Day(date))
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	assets := make([]pipeline.Asset, 0)
	for rows.Next() {
		var sid int64
		var a pipeline.Asset
		if err := rows.Scan(&sid, &a.Symbol); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		a.Sid = pipeline.Sid(sid)
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}

	return assets, nil
}

// LoadWindow returns up to window trailing sessions of col ending at end
func (r *Repository) LoadWindow(ctx context.Context, col pipeline.Column, sids []pipeline.Sid, end time.Time, window int) (pipeline.Window, error) {
	if window <= 0 {
		return pipeline.Window{}, pipeline.ErrInvalidWindow
	}

	dates, err := r.trailingSessions(ctx, pipeline.Day(end), window)
	if err != nil {
		return pipeline.Window{}, err
	}

	w := newWindow(dates, len(sids))
	if len(dates) == 0 || len(sids) == 0 {
		return w, nil
	}

	if col.IsFundamental() {
		err = r.fillFundamentals(ctx, w, col, sids)
	} else {
		err = r.fillPrices(ctx, w, col, sids)
	}
	if err != nil {
		return pipeline.Window{}, err
	}
	return w, nil
}

// LoadLatestStrings returns reference values from the securities master.
// The master is not versioned; the current value is used for every date.
func (r *Repository) LoadLatestStrings(ctx context.Context, col pipeline.Column, sids []pipeline.Sid, date time.Time) ([]pipeline.StringValue, error) {
	sqlCol, ok := referenceColumns[col.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, col.Key())
	}

	out := make([]pipeline.StringValue, len(sids))
	if len(sids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT sid, `+sqlCol+` FROM data.securities WHERE sid = ANY($1)`,
		toInt64s(sids),
	)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", col.Key(), err)
	}
	defer rows.Close()

	index := indexOf(sids)
	for rows.Next() {
		var sid int64
		var value *string
		if err := rows.Scan(&sid, &value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", col.Key(), err)
		}
		if value == nil {
			continue
		}
		for _, i := range index[pipeline.Sid(sid)] {
			out[i] = pipeline.StringValue{Value: *value, Valid: true}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", col.Key(), err)
	}

	return out, nil
}

func (r *Repository) trailingSessions(ctx context.Context, end time.Time, window int) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_date FROM (
			SELECT session_date FROM data.sessions
			WHERE session_date <= $1
			ORDER BY session_date DESC
			LIMIT $2
		) w
		ORDER BY session_date
	`, end, window)
	if err != nil {
		return nil, fmt.Errorf("query window sessions: %w", err)
	}

	dates, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("scan window sessions: %w", err)
	}
	return dates, nil
}

func (r *Repository) fillPrices(ctx context.Context, w pipeline.Window, col pipeline.Column, sids []pipeline.Sid) error {
	sqlCol, ok := priceColumns[col.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, col.Key())
	}

	rows, err := r.pool.Query(ctx, `
		SELECT sid, trade_date, `+sqlCol+`
		FROM data.daily_prices
		WHERE sid = ANY($1)
		  AND trade_date BETWEEN $2 AND $3
	`, toInt64s(sids), w.Dates[0], w.Dates[len(w.Dates)-1])
	if err != nil {
		return fmt.Errorf("query %s: %w", col.Key(), err)
	}
	defer rows.Close()

	rowOf := make(map[time.Time]int, len(w.Dates))
	for i, d := range w.Dates {
		rowOf[pipeline.Day(d)] = i
	}
	index := indexOf(sids)

	for rows.Next() {
		var sid int64
		var date time.Time
		var value *float64
		if err := rows.Scan(&sid, &date, &value); err != nil {
			return fmt.Errorf("scan %s: %w", col.Key(), err)
		}
		if value == nil {
			continue
		}
		row, ok := rowOf[pipeline.Day(date)]
		if !ok {
			continue
		}
		for _, c := range index[pipeline.Sid(sid)] {
			w.Values[row][c] = *value
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", col.Key(), err)
	}
	return nil
}

type filing struct {
	date  time.Time
	value float64
}

// fillFundamentals picks, for every window date, the filing at PeriodOffset
// counted back from the latest filing on or before that date
func (r *Repository) fillFundamentals(ctx context.Context, w pipeline.Window, col pipeline.Column, sids []pipeline.Sid) error {
	sqlCol, ok := fundamentalColumns[col.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, col.Key())
	}

	rows, err := r.pool.Query(ctx, `
		SELECT sid, report_date, `+sqlCol+`
		FROM data.fundamentals
		WHERE sid = ANY($1)
		  AND dimension = $2
		  AND report_date <= $3
		ORDER BY sid, report_date
	`, toInt64s(sids), col.Dimension, w.Dates[len(w.Dates)-1])
	if err != nil {
		return fmt.Errorf("query %s: %w", col.Key(), err)
	}
	defer rows.Close()

	filings := make(map[pipeline.Sid][]filing)
	for rows.Next() {
		var sid int64
		var date time.Time
		var value *float64
		if err := rows.Scan(&sid, &date, &value); err != nil {
			return fmt.Errorf("scan %s: %w", col.Key(), err)
		}
		v := math.NaN()
		if value != nil {
			v = *value
		}
		filings[pipeline.Sid(sid)] = append(filings[pipeline.Sid(sid)], filing{date: pipeline.Day(date), value: v})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", col.Key(), err)
	}

	for c, sid := range sids {
		for row, d := range w.Dates {
			w.Values[row][c] = asOf(filings[sid], d, col.PeriodOffset)
		}
	}
	return nil
}

// asOf returns the value of the filing offset periods before the latest one on or before date.
// filings must be sorted by date.
func asOf(filings []filing, date time.Time, offset int) float64 {
	n := sort.Search(len(filings), func(i int) bool { return filings[i].date.After(date) })
	k := n - 1 + offset
	if k < 0 || k >= n {
		return math.NaN()
	}
	return filings[k].value
}

func newWindow(dates []time.Time, cols int) pipeline.Window {
	w := pipeline.Window{Dates: dates, Values: make([][]float64, len(dates))}
	for i := range w.Values {
		row := make([]float64, cols)
		for c := range row {
			row[c] = math.NaN()
		}
		w.Values[i] = row
	}
	return w
}

func toInt64s(sids []pipeline.Sid) []int64 {
	out := make([]int64, len(sids))
	for i, s := range sids {
		out[i] = int64(s)
	}
	return out
}

// indexOf maps each sid to its positions in sids
func indexOf(sids []pipeline.Sid) map[pipeline.Sid][]int {
	out := make(map[pipeline.Sid][]int, len(sids))
	for i, s := range sids {
		out[s] = append(out[s], i)
	}
	return out
}
