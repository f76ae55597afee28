package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/wonny/tradable-universe/pkg/logger"
)

var (
	ErrNoSessions      = errors.New("no trading sessions in range")
	ErrUnsupportedTerm = errors.New("unsupported term")
)

// Engine evaluates expression trees against a Loader.
// A term is computed only for the assets that pass its mask; windowed data is
// requested for those assets alone.
type Engine struct {
	loader Loader
	logger *logger.Logger
}

// NewEngine creates a new Engine
func NewEngine(loader Loader, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{loader: loader, logger: log}
}

// Result holds the evaluation of one filter over a session range
type Result struct {
	Filter Filter
	Days   []*DayResult
}

// Day returns the result for the session on date
func (r *Result) Day(date time.Time) (*DayResult, bool) {
	date = Day(date)
	for _, d := range r.Days {
		if d.Date.Equal(date) {
			return d, true
		}
	}
	return nil, false
}

// DayResult is the outcome for one session. Passed is aligned with Assets.
type DayResult struct {
	Date    time.Time
	Assets  []Asset
	Passed  []bool
	filters map[Term][]bool
}

// Selected returns the assets passing the filter, ordered by sid
func (d *DayResult) Selected() []Asset {
	out := make([]Asset, 0)
	for i, a := range d.Assets {
		if d.Passed[i] {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sid < out[j].Sid })
	return out
}

// Outcome returns the per-asset values of a filter evaluated on this session
func (d *DayResult) Outcome(f Filter) ([]bool, bool) {
	v, ok := d.filters[f]
	return v, ok
}

// Explain maps each rejected asset to the label of the first stage it failed.
// Stages follow the mask chain of the evaluated filter; an And stage reports
// its first failing input.
func (d *DayResult) Explain(f Filter) map[Sid]string {
	stages := Stages(f)
	out := make(map[Sid]string)

	for i, a := range d.Assets {
		if d.Passed[i] {
			continue
		}
		for _, s := range stages {
			v, ok := d.filters[s]
			if !ok || v[i] {
				continue
			}
			out[a.Sid] = d.reason(s, i)
			break
		}
		if _, ok := out[a.Sid]; !ok {
			out[a.Sid] = ref(f)
		}
	}
	return out
}

func (d *DayResult) reason(s Filter, i int) string {
	if and, ok := s.(*andFilter); ok {
		for _, in := range and.inputs {
			if v, ok := d.filters[in]; ok && !v[i] {
				return ref(in)
			}
		}
	}
	return ref(s)
}

// Run evaluates f on every session in [start, end]
func (e *Engine) Run(ctx context.Context, f Filter, start, end time.Time) (*Result, error) {
	sessions, err := e.loader.Sessions(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("%w: %s ~ %s", ErrNoSessions, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	e.logger.WithFields(map[string]interface{}{
		"sessions": len(sessions),
		"start":    sessions[0].Format("2006-01-02"),
		"end":      sessions[len(sessions)-1].Format("2006-01-02"),
	}).Debug("Pipeline run started")

	result := &Result{Filter: f, Days: make([]*DayResult, 0, len(sessions))}
	for _, date := range sessions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		day, err := e.runDay(ctx, f, date)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", date.Format("2006-01-02"), err)
		}
		result.Days = append(result.Days, day)
	}

	e.logger.WithField("sessions", len(result.Days)).Debug("Pipeline run completed")
	return result, nil
}

func (e *Engine) runDay(ctx context.Context, f Filter, date time.Time) (*DayResult, error) {
	assets, err := e.loader.Assets(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}

	ev := &dayEval{
		ctx:     ctx,
		loader:  e.loader,
		date:    date,
		sids:    make([]Sid, len(assets)),
		filters: make(map[Term][]bool),
		factors: make(map[Term][]float64),
		classes: make(map[Term][]classValue),
	}
	for i, a := range assets {
		ev.sids[i] = a.Sid
	}

	passed, err := ev.filter(f)
	if err != nil {
		return nil, err
	}

	count := 0
	for _, p := range passed {
		if p {
			count++
		}
	}
	e.logger.WithSession(date).WithFields(map[string]interface{}{
		"assets": len(assets),
		"passed": count,
	}).Debug("Pipeline session evaluated")

	return &DayResult{
		Date:    date,
		Assets:  assets,
		Passed:  passed,
		filters: ev.filters,
	}, nil
}

type classValue struct {
	StringValue
	computed bool
}

// dayEval memoizes term outputs for one session. Outputs are aligned with sids.
type dayEval struct {
	ctx     context.Context
	loader  Loader
	date    time.Time
	sids    []Sid
	filters map[Term][]bool
	factors map[Term][]float64
	classes map[Term][]classValue
}

func (ev *dayEval) mask(t Term) ([]bool, error) {
	if t.Mask() == nil {
		out := make([]bool, len(ev.sids))
		for i := range out {
			out[i] = true
		}
		return out, nil
	}
	return ev.filter(t.Mask())
}

// domain returns the indices and sids passing mask
func (ev *dayEval) domain(mask []bool) ([]int, []Sid) {
	var idx []int
	var sids []Sid
	for i, ok := range mask {
		if ok {
			idx = append(idx, i)
			sids = append(sids, ev.sids[i])
		}
	}
	return idx, sids
}

func (ev *dayEval) filter(f Filter) ([]bool, error) {
	if v, ok := ev.filters[f]; ok {
		return v, nil
	}

	m, err := ev.mask(f)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(ev.sids))

	switch t := f.(type) {
	case *classifierEq:
		c, err := ev.classifier(t.input)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = m[i] && c[i].computed && c[i].Valid && c[i].Value == t.value
		}

	case *isNull:
		c, err := ev.classifier(t.input)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = m[i] && c[i].computed && !c[i].Valid
		}

	case *compare:
		v, err := ev.factor(t.input)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = m[i] && t.op.apply(v[i], t.value)
		}

	case *andFilter:
		copy(out, m)
		for _, in := range t.inputs {
			v, err := ev.filter(in)
			if err != nil {
				return nil, err
			}
			for i := range out {
				out[i] = out[i] && v[i]
			}
		}

	case *allPresent:
		idx, sids := ev.domain(m)
		if len(sids) > 0 {
			w, err := ev.loader.LoadWindow(ev.ctx, t.col, sids, ev.date, t.window)
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", t.col.Key(), err)
			}
			if w.Rows() >= t.window {
				for c, i := range idx {
					out[i] = allRows(w.Rows(), func(r int) bool { return !math.IsNaN(w.Values[r][c]) })
				}
			}
		}

	case *allFilter:
		idx, sids := ev.domain(m)
		if len(sids) > 0 {
			rows, err := ev.windowFilter(t.input, sids, t.window)
			if err != nil {
				return nil, err
			}
			if len(rows) >= t.window {
				for c, i := range idx {
					out[i] = allRows(len(rows), func(r int) bool { return rows[r][c] })
				}
			}
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTerm, f)
	}

	ev.filters[f] = out
	return out, nil
}

func (ev *dayEval) factor(f Factor) ([]float64, error) {
	if v, ok := ev.factors[f]; ok {
		return v, nil
	}

	m, err := ev.mask(f)
	if err != nil {
		return nil, err
	}
	out := nanSlice(len(ev.sids))
	idx, sids := ev.domain(m)

	switch t := f.(type) {
	case *latestFactor:
		if len(sids) > 0 {
			w, err := ev.loader.LoadWindow(ev.ctx, t.col, sids, ev.date, 1)
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", t.col.Key(), err)
			}
			if w.Rows() > 0 {
				last := w.Last(len(sids))
				for c, i := range idx {
					out[i] = last[c]
				}
			}
		}

	case *averageDollarVolume:
		if len(sids) > 0 {
			closes, err := ev.loader.LoadWindow(ev.ctx, EquityPricing.Close, sids, ev.date, t.window)
			if err != nil {
				return nil, fmt.Errorf("load close: %w", err)
			}
			volumes, err := ev.loader.LoadWindow(ev.ctx, EquityPricing.Volume, sids, ev.date, t.window)
			if err != nil {
				return nil, fmt.Errorf("load volume: %w", err)
			}
			// 이력이 window보다 짧으면 NaN 유지
			if closes.Rows() >= t.window && volumes.Rows() >= t.window {
				for c, i := range idx {
					out[i] = meanDollarVolume(closes.Column(c), volumes.Column(c), t.window)
				}
			}
		}

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTerm, f)
	}

	ev.factors[f] = out
	return out, nil
}

func (ev *dayEval) classifier(c Classifier) ([]classValue, error) {
	if v, ok := ev.classes[c]; ok {
		return v, nil
	}

	t, ok := c.(*latestClassifier)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTerm, c)
	}

	m, err := ev.mask(c)
	if err != nil {
		return nil, err
	}
	out := make([]classValue, len(ev.sids))
	idx, sids := ev.domain(m)

	if len(sids) > 0 {
		vals, err := ev.loader.LoadLatestStrings(ev.ctx, t.col, sids, ev.date)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", t.col.Key(), err)
		}
		for j, i := range idx {
			out[i] = classValue{StringValue: vals[j], computed: true}
		}
	}

	ev.classes[c] = out
	return out, nil
}

// windowFilter evaluates a window-safe filter on each trailing session for sids.
// rows[r][c] is the value on session r for sids[c].
func (ev *dayEval) windowFilter(f Filter, sids []Sid, window int) ([][]bool, error) {
	switch t := f.(type) {
	case *compare:
		lf, ok := t.input.(*latestFactor)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotWindowSafe, f)
		}
		w, err := ev.loader.LoadWindow(ev.ctx, lf.col, sids, ev.date, window)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", lf.col.Key(), err)
		}
		rows := make([][]bool, w.Rows())
		for r := range rows {
			rows[r] = make([]bool, len(sids))
			for c := range sids {
				rows[r][c] = t.op.apply(w.Values[r][c], t.value)
			}
		}
		return rows, nil

	case *andFilter:
		var acc [][]bool
		for _, in := range t.inputs {
			rows, err := ev.windowFilter(in, sids, window)
			if err != nil {
				return nil, err
			}
			if acc == nil {
				acc = rows
				continue
			}
			if len(rows) < len(acc) {
				acc = acc[len(acc)-len(rows):]
			}
			offset := len(rows) - len(acc)
			for r := range acc {
				for c := range acc[r] {
					acc[r][c] = acc[r][c] && rows[r+offset][c]
				}
			}
		}
		return acc, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrNotWindowSafe, f)
	}
}

// meanDollarVolume sums close*volume over valid days and divides by the full window.
// 결측일은 0으로 계산 (nansum / window)
func meanDollarVolume(closes, volumes []float64, window int) float64 {
	values := make([]float64, 0, len(closes))
	for r := range closes {
		if math.IsNaN(closes[r]) || math.IsNaN(volumes[r]) {
			continue
		}
		values = append(values, closes[r]*volumes[r])
	}
	return floats.Sum(values) / float64(window)
}

func allRows(n int, pred func(r int) bool) bool {
	if n == 0 {
		return false
	}
	for r := 0; r < n; r++ {
		if !pred(r) {
			return false
		}
	}
	return true
}
