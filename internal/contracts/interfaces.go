package contracts

import (
	"context"
	"time"
)

// UniverseBuilder creates the tradable universe for a session
// ⭐ SSOT: 유니버스 생성 인터페이스
type UniverseBuilder interface {
	Build(ctx context.Context, date time.Time) (*Universe, error)
}

// UniverseRepository persists universe snapshots
// ⭐ SSOT: 유니버스 저장소 인터페이스
type UniverseRepository interface {
	SaveUniverse(ctx context.Context, universe *Universe) error
	GetLatestUniverse(ctx context.Context) (*Universe, error)
	GetUniverseByDate(ctx context.Context, date time.Time) (*Universe, error)
}
