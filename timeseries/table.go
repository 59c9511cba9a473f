// Package timeseries provides the columnar, time-indexed table every detector
// reads from and writes to.
//
// A Table is indexed by epoch-millisecond timestamps kept sorted ascending and
// unique. Float columns use NaN as null; flag columns use the tri-state Bool.
package timeseries

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Well-known column names.
const (
	ColValue          = "value"
	ColCurrent        = "current"
	ColBaseline       = "baseline"
	ColUpperBound     = "upperBound"
	ColLowerBound     = "lowerBound"
	ColErrorBound     = "errorBound"
	ColDiff           = "diff"
	ColPatternMatch   = "patternMatch"
	ColBoundViolation = "boundViolation"
	ColAnomaly        = "anomaly"
)

var (
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
	ErrLengthMismatch     = errors.New("column length does not match index")
	ErrUnknownColumn      = errors.New("unknown column")
)

// Bool is a nullable flag.
type Bool int8

const (
	Null Bool = iota
	False
	True
)

// BoolOf converts a plain bool.
func BoolOf(b bool) Bool {
	if b {
		return True
	}
	return False
}

func (b Bool) Valid() bool { return b != Null }

// IsTrue reports whether the flag is set; Null counts as false.
func (b Bool) IsTrue() bool { return b == True }

func (b Bool) String() string {
	switch b {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "null"
	}
}

// Point is a single observation.
type Point struct {
	Timestamp int64
	Value     float64
}

type Table struct {
	index  []int64
	floats map[string][]float64
	flags  map[string][]Bool
	order  []string
}

// New builds a table with a "value" column. Rows are sorted by timestamp;
// duplicate timestamps are rejected.
func New(timestamps []int64, values []float64) (*Table, error) {
	if len(timestamps) != len(values) {
		return nil, fmt.Errorf("%w: %d timestamps, %d values", ErrLengthMismatch, len(timestamps), len(values))
	}
	points := make([]Point, len(timestamps))
	for i := range timestamps {
		points[i] = Point{Timestamp: timestamps[i], Value: values[i]}
	}
	return FromPoints(points)
}

// FromPoints builds a table with a "value" column from unordered points.
func FromPoints(points []Point) (*Table, error) {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	index := make([]int64, len(sorted))
	values := make([]float64, len(sorted))
	for i, p := range sorted {
		if i > 0 && p.Timestamp == sorted[i-1].Timestamp {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateTimestamp, p.Timestamp)
		}
		index[i] = p.Timestamp
		values[i] = p.Value
	}

	t := newIndexed(index)
	t.setFloats(ColValue, values)
	return t, nil
}

// NewIndex builds a table without columns over an already sorted, unique index.
func NewIndex(timestamps []int64) (*Table, error) {
	for i := 1; i < len(timestamps); i++ {
		if timestamps[i] == timestamps[i-1] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateTimestamp, timestamps[i])
		}
		if timestamps[i] < timestamps[i-1] {
			return nil, fmt.Errorf("index is not sorted at position %d", i)
		}
	}
	index := make([]int64, len(timestamps))
	copy(index, timestamps)
	return newIndexed(index), nil
}

func newIndexed(index []int64) *Table {
	return &Table{
		index:  index,
		floats: make(map[string][]float64),
		flags:  make(map[string][]Bool),
	}
}

func (t *Table) Len() int { return len(t.index) }

// Timestamps returns the index. Callers must not modify it.
func (t *Table) Timestamps() []int64 { return t.index }

func (t *Table) Timestamp(i int) int64 { return t.index[i] }

// Columns lists column names in insertion order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func (t *Table) HasColumn(name string) bool {
	if _, ok := t.floats[name]; ok {
		return true
	}
	_, ok := t.flags[name]
	return ok
}

// Floats returns the named float column. Callers must not modify it.
func (t *Table) Floats(name string) ([]float64, error) {
	col, ok := t.floats[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	return col, nil
}

// Values is shorthand for the "value" column; nil when absent.
func (t *Table) Values() []float64 {
	return t.floats[ColValue]
}

// Bools returns the named flag column. Callers must not modify it.
func (t *Table) Bools(name string) ([]Bool, error) {
	col, ok := t.flags[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	return col, nil
}

// SetFloats adds or replaces a float column. The slice is copied.
func (t *Table) SetFloats(name string, col []float64) error {
	if len(col) != len(t.index) {
		return fmt.Errorf("%w: column %s has %d rows, index has %d", ErrLengthMismatch, name, len(col), len(t.index))
	}
	cp := make([]float64, len(col))
	copy(cp, col)
	t.setFloats(name, cp)
	return nil
}

// SetBools adds or replaces a flag column. The slice is copied.
func (t *Table) SetBools(name string, col []Bool) error {
	if len(col) != len(t.index) {
		return fmt.Errorf("%w: column %s has %d rows, index has %d", ErrLengthMismatch, name, len(col), len(t.index))
	}
	cp := make([]Bool, len(col))
	copy(cp, col)
	if _, ok := t.floats[name]; ok {
		delete(t.floats, name)
	} else if _, ok := t.flags[name]; !ok {
		t.order = append(t.order, name)
	}
	t.flags[name] = cp
	return nil
}

func (t *Table) setFloats(name string, col []float64) {
	if _, ok := t.flags[name]; ok {
		delete(t.flags, name)
	} else if _, ok := t.floats[name]; !ok {
		t.order = append(t.order, name)
	}
	t.floats[name] = col
}

// IndexOf finds the row holding ts.
func (t *Table) IndexOf(ts int64) (int, bool) {
	i := sort.Search(len(t.index), func(i int) bool { return t.index[i] >= ts })
	if i < len(t.index) && t.index[i] == ts {
		return i, true
	}
	return i, false
}

// Lookup returns the non-null value of a float column at ts.
func (t *Table) Lookup(name string, ts int64) (float64, bool) {
	col, ok := t.floats[name]
	if !ok {
		return math.NaN(), false
	}
	i, found := t.IndexOf(ts)
	if !found || math.IsNaN(col[i]) {
		return math.NaN(), false
	}
	return col[i], true
}

// Slice returns rows [i, j) as a new table.
func (t *Table) Slice(i, j int) *Table {
	if i < 0 {
		i = 0
	}
	if j > len(t.index) {
		j = len(t.index)
	}
	if j < i {
		j = i
	}
	out := newIndexed(append([]int64(nil), t.index[i:j]...))
	for _, name := range t.order {
		if col, ok := t.floats[name]; ok {
			out.setFloats(name, append([]float64(nil), col[i:j]...))
			continue
		}
		out.flags[name] = append([]Bool(nil), t.flags[name][i:j]...)
		out.order = append(out.order, name)
	}
	return out
}

// Between returns the rows with start <= timestamp < end.
func (t *Table) Between(start, end int64) *Table {
	i, _ := t.IndexOf(start)
	j, _ := t.IndexOf(end)
	return t.Slice(i, j)
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	return t.Slice(0, len(t.index))
}

// LeftJoin copies the named columns of other onto t's index. Rows of t with
// no matching timestamp in other get null. With no names, every column of
// other is joined. The result is a new table; t is left untouched.
func (t *Table) LeftJoin(other *Table, names ...string) (*Table, error) {
	if len(names) == 0 {
		names = other.order
	}
	out := t.Clone()
	positions := make([]int, len(t.index))
	for i, ts := range t.index {
		j, ok := other.IndexOf(ts)
		if !ok {
			j = -1
		}
		positions[i] = j
	}

	for _, name := range names {
		if src, ok := other.floats[name]; ok {
			col := make([]float64, len(t.index))
			for i, j := range positions {
				if j < 0 {
					col[i] = math.NaN()
				} else {
					col[i] = src[j]
				}
			}
			out.setFloats(name, col)
			continue
		}
		src, ok := other.flags[name]
		if !ok {
			return nil, fmt.Errorf("join: %w: %s", ErrUnknownColumn, name)
		}
		col := make([]Bool, len(t.index))
		for i, j := range positions {
			if j >= 0 {
				col[i] = src[j]
			}
		}
		if err := out.SetBools(name, col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Equal compares index, column set and contents; NaN equals NaN.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.index) != len(o.index) || len(t.floats) != len(o.floats) || len(t.flags) != len(o.flags) {
		return false
	}
	for i := range t.index {
		if t.index[i] != o.index[i] {
			return false
		}
	}
	for name, a := range t.floats {
		b, ok := o.floats[name]
		if !ok {
			return false
		}
		for i := range a {
			if a[i] != b[i] && !(math.IsNaN(a[i]) && math.IsNaN(b[i])) {
				return false
			}
		}
	}
	for name, a := range t.flags {
		b, ok := o.flags[name]
		if !ok {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}

// NullFloats returns a column of n nulls.
func NullFloats(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}
