package universe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/tradable-universe/internal/contracts"
	"github.com/wonny/tradable-universe/internal/pipeline"
	"github.com/wonny/tradable-universe/pkg/logger"
)

// Builder constructs the tradable universe
type Builder struct {
	engine   *pipeline.Engine
	criteria Criteria
	filter   pipeline.Filter
	hash     string
	logger   *logger.Logger
}

// NewBuilder creates a new universe Builder.
// The filter is composed once; an invalid Criteria fails here, not at build time.
func NewBuilder(loader pipeline.Loader, criteria Criteria, log *logger.Logger) (*Builder, error) {
	if log == nil {
		log = logger.NewNop()
	}

	filter, err := criteria.Filter()
	if err != nil {
		return nil, fmt.Errorf("compose universe filter: %w", err)
	}

	hash, err := criteria.Hash()
	if err != nil {
		return nil, err
	}

	return &Builder{
		engine:   pipeline.NewEngine(loader, log),
		criteria: criteria,
		filter:   filter,
		hash:     hash,
		logger:   log,
	}, nil
}

// Criteria returns the criteria the builder was created with
func (b *Builder) Criteria() Criteria {
	return b.criteria
}

// Filter returns the composed expression
func (b *Builder) Filter() pipeline.Filter {
	return b.filter
}

// Build constructs the universe for the session on date
// ⭐ SSOT: 유니버스 생성
func (b *Builder) Build(ctx context.Context, date time.Time) (*contracts.Universe, error) {
	universes, err := b.BuildRange(ctx, date, date)
	if err != nil {
		return nil, err
	}
	return universes[0], nil
}

// BuildRange constructs one universe per session in [start, end]
func (b *Builder) BuildRange(ctx context.Context, start, end time.Time) ([]*contracts.Universe, error) {
	runID := uuid.NewString()
	log := b.logger.WithRunID(runID)
	started := time.Now()

	result, err := b.engine.Run(ctx, b.filter, start, end)
	if err != nil {
		return nil, fmt.Errorf("run universe pipeline: %w", err)
	}

	universes := make([]*contracts.Universe, 0, len(result.Days))
	for _, day := range result.Days {
		u := b.universe(day, runID)
		universes = append(universes, u)

		log.WithSession(u.Date).WithFields(map[string]interface{}{
			"total":    u.TotalCount,
			"tradable": u.Count(),
			"excluded": len(u.Excluded),
		}).Info("Universe built")
	}

	log.WithField("elapsed_ms", time.Since(started).Milliseconds()).Debug("Universe build finished")
	return universes, nil
}

func (b *Builder) universe(day *pipeline.DayResult, runID string) *contracts.Universe {
	u := &contracts.Universe{
		Date:            day.Date,
		RunID:           runID,
		CriteriaHash:    b.hash,
		MarketCapFilter: b.criteria.MarketCapFilter,
		Stocks:          make([]string, 0),
		Excluded:        make(map[string]string),
		StageCounts:     stageCounts(day, b.filter),
		TotalCount:      len(day.Assets),
	}

	names := snapshotNames(day.Assets)
	for _, a := range day.Selected() {
		u.Stocks = append(u.Stocks, names[a.Sid])
	}
	sort.Strings(u.Stocks)

	reasons := day.Explain(b.filter)
	for _, a := range day.Assets {
		if reason, ok := reasons[a.Sid]; ok {
			u.Excluded[names[a.Sid]] = reason
		}
	}

	return u
}

// stageCounts counts the assets still alive after each stage.
// An unlabeled And stage is split into its inputs.
func stageCounts(day *pipeline.DayResult, f pipeline.Filter) map[string]int {
	alive := make([]bool, len(day.Assets))
	for i := range alive {
		alive[i] = true
	}

	counts := make(map[string]int)
	for _, stage := range pipeline.Stages(f) {
		parts := []pipeline.Filter{stage}
		if stage.Kind() == pipeline.KindAnd && stage.Label() == "" {
			parts = parts[:0]
			for _, in := range stage.Inputs() {
				if pf, ok := in.(pipeline.Filter); ok {
					parts = append(parts, pf)
				}
			}
		}

		for _, p := range parts {
			outcome, ok := day.Outcome(p)
			if !ok {
				continue
			}
			n := 0
			for i := range alive {
				alive[i] = alive[i] && outcome[i]
				if alive[i] {
					n++
				}
			}
			counts[stageName(p)] = n
		}
	}
	return counts
}

func stageName(f pipeline.Filter) string {
	if f.Label() != "" {
		return f.Label()
	}
	return f.String()
}

func symbolOf(a pipeline.Asset) string {
	if a.Symbol != "" {
		return a.Symbol
	}
	return "SID:" + strconv.FormatInt(int64(a.Sid), 10)
}

// snapshotNames keys each asset in a snapshot. A symbol shared by several listed
// sids gets the sid appended (SYM#sid) so no asset overwrites another.
func snapshotNames(assets []pipeline.Asset) map[pipeline.Sid]string {
	seen := make(map[string]int, len(assets))
	for _, a := range assets {
		seen[symbolOf(a)]++
	}

	names := make(map[pipeline.Sid]string, len(assets))
	for _, a := range assets {
		name := symbolOf(a)
		if seen[name] > 1 {
			name += "#" + strconv.FormatInt(int64(a.Sid), 10)
		}
		names[a.Sid] = name
	}
	return names
}

// Hash generates SHA256 hash from Criteria (canonical JSON)
func (c Criteria) Hash() (string, error) {
	jsonBytes, err := json.Marshal(c)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
