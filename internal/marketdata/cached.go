package marketdata

import (
	"context"
	"time"

	"github.com/wonny/tradable-universe/internal/pipeline"
	"github.com/wonny/tradable-universe/pkg/logger"
	"github.com/wonny/tradable-universe/pkg/redis"
)

// CachedLoader caches the session calendar and listings in Redis.
// Window and reference loads depend on the requested sids and go straight through.
// Only settled ranges are cached: empty results and ranges reaching today or later
// are read from the loader every time, since the day's rows may not be loaded yet.
type CachedLoader struct {
	pipeline.Loader

	cache  *redis.Cache
	ttl    time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// NewCachedLoader wraps loader. A disabled cache makes every call pass through.
func NewCachedLoader(loader pipeline.Loader, cache *redis.Cache, log *logger.Logger) *CachedLoader {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedLoader{
		Loader: loader,
		cache:  cache,
		ttl:    redis.TTLDaily,
		logger: log,
		now:    time.Now,
	}
}

// settled reports whether data up to end can no longer change
func (l *CachedLoader) settled(end time.Time) bool {
	return pipeline.Day(end).Before(pipeline.Day(l.now().UTC()))
}

// Sessions implements pipeline.Loader
func (l *CachedLoader) Sessions(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	key := redis.SessionsKey(start.Format("2006-01-02"), end.Format("2006-01-02"))

	var sessions []time.Time
	if l.get(ctx, key, &sessions) {
		return sessions, nil
	}

	sessions, err := l.Loader.Sessions(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if len(sessions) > 0 && l.settled(end) {
		l.set(ctx, key, sessions)
	}
	return sessions, nil
}

// Assets implements pipeline.Loader
func (l *CachedLoader) Assets(ctx context.Context, date time.Time) ([]pipeline.Asset, error) {
	key := redis.AssetsKey(date.Format("2006-01-02"))

	var assets []pipeline.Asset
	if l.get(ctx, key, &assets) {
		return assets, nil
	}

	assets, err := l.Loader.Assets(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(assets) > 0 && l.settled(date) {
		l.set(ctx, key, assets)
	}
	return assets, nil
}

// 캐시 장애는 조회 실패로 이어지지 않음
func (l *CachedLoader) get(ctx context.Context, key string, dest interface{}) bool {
	found, err := l.cache.Get(ctx, key, dest)
	if err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
		return false
	}
	return found
}

func (l *CachedLoader) set(ctx context.Context, key string, value interface{}) {
	if err := l.cache.Set(ctx, key, value, l.ttl); err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}
