package pipeline

import (
	"context"
	"math"
	"time"
)

// Sid is a stable security identifier
type Sid int64

// Asset is one listed security on a given session
type Asset struct {
	Sid    Sid    `json:"sid"`
	Symbol string `json:"symbol"`
}

// Window is a trailing block of numeric values.
// Values[row][col]: rows are sessions in ascending order, cols follow the requested sids.
type Window struct {
	Dates  []time.Time
	Values [][]float64
}

// Rows returns the number of sessions in the window
func (w Window) Rows() int {
	return len(w.Dates)
}

// Column returns the values for the i-th requested sid
func (w Window) Column(i int) []float64 {
	out := make([]float64, len(w.Values))
	for r, row := range w.Values {
		out[r] = row[i]
	}
	return out
}

// Last returns the most recent row, or NaNs when the window is empty
func (w Window) Last(n int) []float64 {
	if len(w.Values) == 0 {
		return nanSlice(n)
	}
	return w.Values[len(w.Values)-1]
}

// StringValue is a classifier value; Valid is false for null
type StringValue struct {
	Value string
	Valid bool
}

// Loader supplies point-in-time data to the Engine.
// Implementations must only return data for the sids they are asked for.
type Loader interface {
	// Sessions returns trading sessions in [start, end], ascending
	Sessions(ctx context.Context, start, end time.Time) ([]time.Time, error)
	// Assets returns every asset listed on date
	Assets(ctx context.Context, date time.Time) ([]Asset, error)
	// LoadWindow returns up to window trailing sessions ending at end (inclusive).
	// Fewer rows mean insufficient history; missing values are NaN.
	LoadWindow(ctx context.Context, col Column, sids []Sid, end time.Time, window int) (Window, error)
	// LoadLatestStrings returns the value of a string or sid column as of date
	LoadLatestStrings(ctx context.Context, col Column, sids []Sid, date time.Time) ([]StringValue, error)
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
