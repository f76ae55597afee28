package pipeline

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// Report is one fundamentals filing for an asset
type Report struct {
	Date      time.Time
	Dimension string
	Values    map[string]float64
}

type memAsset struct {
	asset   Asset
	strs    map[string]StringValue
	series  map[string]map[time.Time]float64
	reports []Report
}

// InMemoryLoader is a Loader backed by maps. It serves tests, fixtures and the CLI demo.
type InMemoryLoader struct {
	mu       sync.RWMutex
	sessions []time.Time
	assets   map[Sid]*memAsset
	order    []Sid
}

// NewInMemoryLoader creates a loader with the given session calendar
func NewInMemoryLoader(sessions []time.Time) *InMemoryLoader {
	days := make([]time.Time, len(sessions))
	for i, s := range sessions {
		days[i] = Day(s)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	return &InMemoryLoader{
		sessions: days,
		assets:   make(map[Sid]*memAsset),
	}
}

// AddAsset registers an asset. Re-adding a sid replaces its symbol only.
func (l *InMemoryLoader) AddAsset(a Asset) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.assets[a.Sid]; ok {
		m.asset = a
		return
	}
	l.assets[a.Sid] = &memAsset{
		asset:  a,
		strs:   make(map[string]StringValue),
		series: make(map[string]map[time.Time]float64),
	}
	l.order = append(l.order, a.Sid)
}

// SetString sets a reference value (security type, primary share pointer)
func (l *InMemoryLoader) SetString(sid Sid, col Column, v StringValue) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.assets[sid]; ok {
		m.strs[col.Key()] = v
	}
}

// SetValue sets one daily value of a pricing column
func (l *InMemoryLoader) SetValue(sid Sid, col Column, date time.Time, v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.assets[sid]
	if !ok {
		return
	}
	s, ok := m.series[col.Key()]
	if !ok {
		s = make(map[time.Time]float64)
		m.series[col.Key()] = s
	}
	s[Day(date)] = v
}

// AddReport appends a fundamentals filing
func (l *InMemoryLoader) AddReport(sid Sid, r Report) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.assets[sid]
	if !ok {
		return
	}
	r.Date = Day(r.Date)
	m.reports = append(m.reports, r)
	sort.SliceStable(m.reports, func(i, j int) bool { return m.reports[i].Date.Before(m.reports[j].Date) })
}

// Sessions implements Loader
func (l *InMemoryLoader) Sessions(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start, end = Day(start), Day(end)
	var out []time.Time
	for _, s := range l.sessions {
		if s.Before(start) || s.After(end) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Assets implements Loader
func (l *InMemoryLoader) Assets(ctx context.Context, date time.Time) ([]Asset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Asset, 0, len(l.order))
	for _, sid := range l.order {
		out = append(out, l.assets[sid].asset)
	}
	return out, nil
}

// LoadWindow implements Loader
func (l *InMemoryLoader) LoadWindow(ctx context.Context, col Column, sids []Sid, end time.Time, window int) (Window, error) {
	if window <= 0 {
		return Window{}, ErrInvalidWindow
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	dates := trailing(l.sessions, Day(end), window)
	w := Window{Dates: dates, Values: make([][]float64, len(dates))}
	for r, date := range dates {
		row := make([]float64, len(sids))
		for c, sid := range sids {
			row[c] = l.value(sid, col, date)
		}
		w.Values[r] = row
	}
	return w, nil
}

// LoadLatestStrings implements Loader
func (l *InMemoryLoader) LoadLatestStrings(ctx context.Context, col Column, sids []Sid, date time.Time) ([]StringValue, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]StringValue, len(sids))
	for i, sid := range sids {
		if m, ok := l.assets[sid]; ok {
			out[i] = m.strs[col.Key()]
		}
	}
	return out, nil
}

func (l *InMemoryLoader) value(sid Sid, col Column, date time.Time) float64 {
	m, ok := l.assets[sid]
	if !ok {
		return math.NaN()
	}

	if col.IsFundamental() {
		// period offset 0 → 해당 날짜 기준 최신 보고서
		var asOf []Report
		for _, r := range m.reports {
			if r.Dimension == col.Dimension && !r.Date.After(date) {
				asOf = append(asOf, r)
			}
		}
		k := len(asOf) - 1 + col.PeriodOffset
		if k < 0 {
			return math.NaN()
		}
		if v, ok := asOf[k].Values[col.Name]; ok {
			return v
		}
		return math.NaN()
	}

	if v, ok := m.series[col.Key()][date]; ok {
		return v
	}
	return math.NaN()
}

// trailing returns at most n sessions ending at the last session <= end
func trailing(sessions []time.Time, end time.Time, n int) []time.Time {
	idx := sort.Search(len(sessions), func(i int) bool { return sessions[i].After(end) }) - 1
	if idx < 0 {
		return nil
	}
	from := idx - n + 1
	if from < 0 {
		from = 0
	}
	out := make([]time.Time, idx-from+1)
	copy(out, sessions[from:idx+1])
	return out
}

// Day truncates t to a UTC calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekdaySessions returns every Monday-Friday date in [start, end]
func WeekdaySessions(start, end time.Time) []time.Time {
	var out []time.Time
	for d := Day(start); !d.After(Day(end)); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, d)
	}
	return out
}
