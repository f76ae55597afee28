package commands

import (
	"fmt"

	"github.com/wonny/tradable-universe/internal/marketdata"
	"github.com/wonny/tradable-universe/internal/pipeline"
	"github.com/wonny/tradable-universe/internal/strategyconfig"
	"github.com/wonny/tradable-universe/internal/universe"
	"github.com/wonny/tradable-universe/pkg/config"
	"github.com/wonny/tradable-universe/pkg/database"
	"github.com/wonny/tradable-universe/pkg/logger"
	"github.com/wonny/tradable-universe/pkg/redis"
)

// deps holds the wired runtime shared by commands
type deps struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	cache    *redis.Cache
	strategy *strategyconfig.Config
	criteria universe.Criteria
	loader   pipeline.Loader
	repo     *universe.Repository
}

// Close releases connections
func (d *deps) Close() {
	if d.redis != nil {
		d.redis.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
}

// loadStrategy reads the strategy YAML from --strategy or STRATEGY_CONFIG
func loadStrategy(fallback string) (*strategyconfig.Config, error) {
	path := strategyFile
	if path == "" {
		path = fallback
	}

	strategy, err := strategyconfig.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load strategy %s: %w", path, err)
	}
	return strategy, nil
}

// initDeps loads config and connects to PostgreSQL and (optionally) Redis
func initDeps() (*deps, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Strategy
	strategy, err := loadStrategy(cfg.StrategyPath)
	if err != nil {
		return nil, err
	}
	for _, w := range strategyconfig.Warn(strategy) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	// 4. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 5. Redis (disabled client when REDIS_ENABLED=false)
	rc, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	cache := redis.NewCache(rc, logger.ServiceName)

	// 6. Loader: PostgreSQL + 캐시된 캘린더/종목 목록
	market := marketdata.NewRepository(db.Pool)

	return &deps{
		cfg:      cfg,
		log:      log,
		db:       db,
		redis:    rc,
		cache:    cache,
		strategy: strategy,
		criteria: universe.CriteriaFromStrategy(strategy),
		loader:   marketdata.NewCachedLoader(market, cache, log),
		repo:     universe.NewRepository(db.Pool),
	}, nil
}
