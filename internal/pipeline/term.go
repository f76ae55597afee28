// Package pipeline models point-in-time screening expressions over equities.
//
// Expressions are trees of terms (filters, factors, classifiers). Building a term
// never touches data; an Engine evaluates the tree later, per session and asset.
// Every derived term takes an explicit mask, and the engine only computes a term
// for assets that pass its mask.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrInvalidWindow       = errors.New("window length must be positive")
	ErrInvalidDimension    = errors.New("invalid fundamentals dimension")
	ErrInvalidPeriodOffset = errors.New("period offset must be <= 0")
	ErrDTypeMismatch       = errors.New("column dtype mismatch")
	ErrNotWindowSafe       = errors.New("input is not window safe")
)

// Kind tags the variant of a term
type Kind int

const (
	KindLatest Kind = iota
	KindClassifierEq
	KindIsNull
	KindAverageDollarVolume
	KindAllPresent
	KindAll
	KindAnd
	KindCompare
)

var kindNames = map[Kind]string{
	KindLatest:              "latest",
	KindClassifierEq:        "classifier_eq",
	KindIsNull:              "is_null",
	KindAverageDollarVolume: "average_dollar_volume",
	KindAllPresent:          "all_present",
	KindAll:                 "all",
	KindAnd:                 "and",
	KindCompare:             "compare",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Term is a node of an expression tree
type Term interface {
	Kind() Kind
	// Label is a short name used in exclusion reasons; empty when unnamed
	Label() string
	// Mask restricts the assets this term is computed for; nil means all assets
	Mask() Filter
	WindowLength() int
	Inputs() []Term
	String() string

	relabel(label string) Term
}

// Filter is a boolean-valued term
type Filter interface {
	Term
	isFilter()
}

// Factor is a numeric term. Missing or masked-out values are NaN.
type Factor interface {
	Term
	isFactor()
}

// Classifier is a categorical term (string label or nullable sid reference)
type Classifier interface {
	Term
	isClassifier()
}

// Op is a comparison operator producing a Filter from a Factor
type Op string

const (
	OpGT Op = ">"
	OpGE Op = ">="
	OpLT Op = "<"
	OpLE Op = "<="
	OpEQ Op = "=="
)

// apply compares a to b. NaN never satisfies a comparison.
func (o Op) apply(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	switch o {
	case OpGT:
		return a > b
	case OpGE:
		return a >= b
	case OpLT:
		return a < b
	case OpLE:
		return a <= b
	case OpEQ:
		return a == b
	default:
		return false
	}
}

type base struct {
	label  string
	mask   Filter
	window int
}

func (b base) Label() string     { return b.label }
func (b base) Mask() Filter      { return b.mask }
func (b base) WindowLength() int { return b.window }

// latestFactor is the most recent value of a numeric column
type latestFactor struct {
	base
	col Column
}

func (t *latestFactor) Kind() Kind     { return KindLatest }
func (t *latestFactor) Inputs() []Term { return nil }
func (t *latestFactor) isFactor()      {}
func (t *latestFactor) String() string {
	return fmt.Sprintf("Latest(%s%s)", t.col.Key(), maskSuffix(t.mask))
}
func (t *latestFactor) relabel(label string) Term {
	c := *t
	c.label = label
	return &c
}

// latestClassifier is the most recent value of a string or sid column
type latestClassifier struct {
	base
	col Column
}

func (t *latestClassifier) Kind() Kind     { return KindLatest }
func (t *latestClassifier) Inputs() []Term { return nil }
func (t *latestClassifier) isClassifier()  {}
func (t *latestClassifier) String() string {
	return fmt.Sprintf("%s.latest%s", t.col.Key(), maskSuffix(t.mask))
}
func (t *latestClassifier) relabel(label string) Term {
	c := *t
	c.label = label
	return &c
}

type classifierEq struct {
	base
	input Classifier
	value string
}

func (t *classifierEq) Kind() Kind     { return KindClassifierEq }
func (t *classifierEq) Inputs() []Term { return []Term{t.input} }
func (t *classifierEq) isFilter()      {}
func (t *classifierEq) String() string {
	return fmt.Sprintf("%s == %q", t.input, t.value)
}
func (t *classifierEq) relabel(label string) Term {
	c := *t
	c.label = label
	return &c
}

type isNull struct {
	base
	input Classifier
}

func (t *isNull) Kind() Kind     { return KindIsNull }
func (t *isNull) Inputs() []Term { return []Term{t.input} }
func (t *isNull) isFilter()      {}
func (t *isNull) String() string {
	return fmt.Sprintf("%s is null", t.input)
}
func (t *isNull) relabel(label string) Term {
	c := *t
	c.label = label
	return &c
}

// averageDollarVolume is the trailing mean of close * volume
type averageDollarVolume struct {
	base
}

func (t *averageDollarVolume) Kind() Kind     { return KindAverageDollarVolume }
func (t *averageDollarVolume) Inputs() []Term { return nil }
func (t *averageDollarVolume) isFactor()      {}
func (t *averageDollarVolume) String() string {
	return fmt.Sprintf("AverageDollarVolume(window=%d%s)", t.window, maskSuffix(t.mask))
}
func (t *averageDollarVolume) relabel(label string) Term {
	c := *t
	c.label = label
	return &c
}

// allPresent is true when the column has a value on every day of the window
type allPresent struct {
	base
	col Column
}

func (t *allPresent) Kind() Kind     { return KindAllPresent }
func (t *allPresent) Inputs() []Term { return nil }
func (t *allPresent) isFilter()      {}
func (t *allPresent) String() string {
	return fmt.Sprintf("%s.all_present(window=%d%s)", t.col.Key(), t.window, maskSuffix(t.mask))
}
func (t *allPresent) relabel(label string) Term {
	c := *t
	c.label = label
	return &c
}

// allFilter is true when its input held on every day of the window
type allFilter struct {
	base
	input Filter
}

func (t *allFilter) Kind() Kind     { return KindAll }
func (t *allFilter) Inputs() []Term { return []Term{t.input} }
func (t *allFilter) isFilter()      {}
func (t *allFilter) String() string {
	return fmt.Sprintf("(%s).all(window=%d%s)", t.input, t.window, maskSuffix(t.mask))
}
func (t *allFilter) relabel(label string) Term {
	c := *t
	c.label = label
	return &c
}

type andFilter struct {
	base
	inputs []Filter
}

func (t *andFilter) Kind() Kind { return KindAnd }
func (t *andFilter) Inputs() []Term {
	out := make([]Term, len(t.inputs))
	for i, f := range t.inputs {
		out[i] = f
	}
	return out
}
func (t *andFilter) isFilter() {}
func (t *andFilter) String() string {
	parts := make([]string, len(t.inputs))
	for i, f := range t.inputs {
		parts[i] = "(" + ref(f) + ")"
	}
	return strings.Join(parts, " & ")
}
func (t *andFilter) relabel(label string) Term {
	c := *t
	c.label = label
	return &c
}

type compare struct {
	base
	input Factor
	op    Op
	value float64
}

func (t *compare) Kind() Kind     { return KindCompare }
func (t *compare) Inputs() []Term { return []Term{t.input} }
func (t *compare) isFilter()      {}
func (t *compare) String() string {
	return fmt.Sprintf("%s %s %s", t.input, t.op, strconv.FormatFloat(t.value, 'f', -1, 64))
}
func (t *compare) relabel(label string) Term {
	c := *t
	c.label = label
	return &c
}

// Latest returns the most recent value of a numeric column, computed only where mask passes
func Latest(col Column, mask Filter) (Factor, error) {
	if col.DType != Float64 {
		return nil, fmt.Errorf("%w: Latest factor needs float64, %s is %s", ErrDTypeMismatch, col.Key(), col.DType)
	}
	return &latestFactor{base: base{mask: mask, window: 1}, col: col}, nil
}

// LatestClassifier returns the most recent value of a string or sid column
func LatestClassifier(col Column, mask Filter) (Classifier, error) {
	if col.DType == Float64 {
		return nil, fmt.Errorf("%w: classifier needs string or sid, %s is %s", ErrDTypeMismatch, col.Key(), col.DType)
	}
	return &latestClassifier{base: base{mask: mask, window: 1}, col: col}, nil
}

// AverageDollarVolume returns the trailing window mean of close * volume.
// Days with a missing close or volume are skipped; the value is NaN when
// the window has fewer sessions than requested or no valid day.
func AverageDollarVolume(window int, mask Filter) (Factor, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, window)
	}
	return &averageDollarVolume{base: base{mask: mask, window: window}}, nil
}

// AllPresent is true where col has a non-missing value on each of the trailing window sessions
func AllPresent(col Column, window int, mask Filter) (Filter, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, window)
	}
	if col.DType != Float64 {
		return nil, fmt.Errorf("%w: all_present needs float64, %s is %s", ErrDTypeMismatch, col.Key(), col.DType)
	}
	return &allPresent{base: base{mask: mask, window: window}, col: col}, nil
}

// All is true where input was true on each of the trailing window sessions.
// input must be window safe: an unmasked comparison on a Latest factor, or an And of those.
func All(input Filter, window int, mask Filter) (Filter, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindow, window)
	}
	if !windowSafe(input) {
		return nil, fmt.Errorf("%w: %s", ErrNotWindowSafe, input)
	}
	return &allFilter{base: base{mask: mask, window: window}, input: input}, nil
}

// And is the conjunction of its inputs
func And(first, second Filter, more ...Filter) Filter {
	inputs := append([]Filter{first, second}, more...)
	return &andFilter{inputs: inputs}
}

// Eq is true where the classifier equals value. Null values never match.
func Eq(c Classifier, value string) Filter {
	return &classifierEq{input: c, value: value}
}

// IsNull is true where the classifier was computed and holds no value
func IsNull(c Classifier) Filter {
	return &isNull{input: c}
}

// Compare applies op between factor and a constant
func Compare(f Factor, op Op, value float64) Filter {
	return &compare{input: f, op: op, value: value}
}

func GT(f Factor, value float64) Filter { return Compare(f, OpGT, value) }
func GE(f Factor, value float64) Filter { return Compare(f, OpGE, value) }
func LT(f Factor, value float64) Filter { return Compare(f, OpLT, value) }
func LE(f Factor, value float64) Filter { return Compare(f, OpLE, value) }

// Named returns a copy of t carrying label
func Named[T Term](t T, label string) T {
	return t.relabel(label).(T)
}

// Upstream returns the filter that gates t: its own mask or, failing that,
// the first mask found among its inputs
func Upstream(t Term) Filter {
	if m := t.Mask(); m != nil {
		return m
	}
	for _, in := range t.Inputs() {
		if u := Upstream(in); u != nil {
			return u
		}
	}
	return nil
}

// Stages unrolls the mask chain ending at f, from the root stage to f itself
func Stages(f Filter) []Filter {
	var chain []Filter
	for cur := f; cur != nil; cur = Upstream(cur) {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func windowSafe(f Filter) bool {
	if f == nil || f.Mask() != nil {
		return false
	}
	switch t := f.(type) {
	case *compare:
		lf, ok := t.input.(*latestFactor)
		return ok && lf.mask == nil
	case *andFilter:
		for _, in := range t.inputs {
			if !windowSafe(in) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func ref(t Term) string {
	if t.Label() != "" {
		return t.Label()
	}
	return t.String()
}

func maskSuffix(mask Filter) string {
	if mask == nil {
		return ""
	}
	return ", mask=" + ref(mask)
}
