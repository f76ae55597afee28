package universe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/tradable-universe/internal/contracts"
)

// ErrNotFound is returned when no snapshot matches
var ErrNotFound = errors.New("universe snapshot not found")

// Schema creates the snapshot table
var Schema = []string{
	`CREATE SCHEMA IF NOT EXISTS data`,
	`CREATE TABLE IF NOT EXISTS data.universe_snapshots (
		snapshot_date     DATE PRIMARY KEY,
		run_id            TEXT NOT NULL,
		criteria_hash     TEXT NOT NULL,
		market_cap_filter BOOLEAN NOT NULL DEFAULT FALSE,
		eligible_stocks   TEXT[] NOT NULL,
		excluded          JSONB NOT NULL DEFAULT '{}'::jsonb,
		stage_counts      JSONB NOT NULL DEFAULT '{}'::jsonb,
		total_count       INTEGER NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Repository handles universe snapshot persistence
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// SaveUniverse saves a universe snapshot, replacing any snapshot for the same date
func (r *Repository) SaveUniverse(ctx context.Context, universe *contracts.Universe) error {
	excludedJSON, err := json.Marshal(universe.Excluded)
	if err != nil {
		return fmt.Errorf("marshal excluded: %w", err)
	}
	countsJSON, err := json.Marshal(universe.StageCounts)
	if err != nil {
		return fmt.Errorf("marshal stage counts: %w", err)
	}

	query := `
		INSERT INTO data.universe_snapshots (
			snapshot_date,
			run_id,
			criteria_hash,
			market_cap_filter,
			eligible_stocks,
			excluded,
			stage_counts,
			total_count,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (snapshot_date) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			criteria_hash = EXCLUDED.criteria_hash,
			market_cap_filter = EXCLUDED.market_cap_filter,
			eligible_stocks = EXCLUDED.eligible_stocks,
			excluded = EXCLUDED.excluded,
			stage_counts = EXCLUDED.stage_counts,
			total_count = EXCLUDED.total_count,
			created_at = NOW()
	`

	// nil slice는 NULL로 인코딩됨
	stocks := universe.Stocks
	if stocks == nil {
		stocks = []string{}
	}

	_, err = r.db.Exec(ctx, query,
		universe.Date,
		universe.RunID,
		universe.CriteriaHash,
		universe.MarketCapFilter,
		stocks,
		excludedJSON,
		countsJSON,
		universe.TotalCount,
	)
	if err != nil {
		return fmt.Errorf("insert universe: %w", err)
	}

	return nil
}

const selectUniverse = `
	SELECT
		snapshot_date,
		run_id,
		criteria_hash,
		market_cap_filter,
		eligible_stocks,
		excluded,
		stage_counts,
		total_count
	FROM data.universe_snapshots
`

// GetLatestUniverse retrieves the most recent universe snapshot
func (r *Repository) GetLatestUniverse(ctx context.Context) (*contracts.Universe, error) {
	row := r.db.QueryRow(ctx, selectUniverse+` ORDER BY snapshot_date DESC LIMIT 1`)
	u, err := scanUniverse(row)
	if err != nil {
		return nil, fmt.Errorf("query latest universe: %w", err)
	}
	return u, nil
}

// GetUniverseByDate retrieves the snapshot for one session
func (r *Repository) GetUniverseByDate(ctx context.Context, date time.Time) (*contracts.Universe, error) {
	row := r.db.QueryRow(ctx, selectUniverse+` WHERE snapshot_date = $1`, date)
	u, err := scanUniverse(row)
	if err != nil {
		return nil, fmt.Errorf("query universe %s: %w", date.Format("2006-01-02"), err)
	}
	return u, nil
}

// ListDates returns the most recent snapshot dates, newest first
func (r *Repository) ListDates(ctx context.Context, limit int) ([]time.Time, error) {
	rows, err := r.db.Query(ctx, `
		SELECT snapshot_date FROM data.universe_snapshots
		ORDER BY snapshot_date DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshot dates: %w", err)
	}

	dates, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("scan snapshot dates: %w", err)
	}
	return dates, nil
}

// DeleteBefore removes snapshots dated before date
func (r *Repository) DeleteBefore(ctx context.Context, date time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM data.universe_snapshots WHERE snapshot_date < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanUniverse(row pgx.Row) (*contracts.Universe, error) {
	universe := &contracts.Universe{
		Excluded:    make(map[string]string),
		StageCounts: make(map[string]int),
	}

	var excludedJSON, countsJSON []byte
	err := row.Scan(
		&universe.Date,
		&universe.RunID,
		&universe.CriteriaHash,
		&universe.MarketCapFilter,
		&universe.Stocks,
		&excludedJSON,
		&countsJSON,
		&universe.TotalCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(excludedJSON) > 0 {
		if err := json.Unmarshal(excludedJSON, &universe.Excluded); err != nil {
			return nil, fmt.Errorf("unmarshal excluded: %w", err)
		}
	}
	if len(countsJSON) > 0 {
		if err := json.Unmarshal(countsJSON, &universe.StageCounts); err != nil {
			return nil, fmt.Errorf("unmarshal stage counts: %w", err)
		}
	}

	return universe, nil
}
