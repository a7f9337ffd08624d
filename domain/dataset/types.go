package dataset

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the storage type of a column
type ColumnType string

const (
	TypeNumeric     ColumnType = "numeric"
	TypeDatetime    ColumnType = "datetime"
	TypeCategorical ColumnType = "categorical"
)

// Column is an immutable, typed, nullable column. Exactly one of the value
// slices is populated, matching ctype.
type Column struct {
	name  string
	ctype ColumnType
	nums  []float64
	times []time.Time
	cats  []string
	valid []bool
}

// NewNumericColumn creates a numeric column; NaN marks a null
func NewNumericColumn(name string, values []float64) *Column {
	c := &Column{name: name, ctype: TypeNumeric, nums: make([]float64, len(values)), valid: make([]bool, len(values))}
	copy(c.nums, values)
	for i, v := range values {
		c.valid[i] = !math.IsNaN(v)
	}
	return c
}

// NewDatetimeColumn creates a datetime column; the zero time marks a null
func NewDatetimeColumn(name string, values []time.Time) *Column {
	c := &Column{name: name, ctype: TypeDatetime, times: make([]time.Time, len(values)), valid: make([]bool, len(values))}
	copy(c.times, values)
	for i, v := range values {
		c.valid[i] = !v.IsZero()
	}
	return c
}

// NewCategoricalColumn creates a categorical column; the empty string marks a null
func NewCategoricalColumn(name string, values []string) *Column {
	c := &Column{name: name, ctype: TypeCategorical, cats: make([]string, len(values)), valid: make([]bool, len(values))}
	copy(c.cats, values)
	for i, v := range values {
		c.valid[i] = strings.TrimSpace(v) != ""
	}
	return c
}

// Name returns the column name
func (c *Column) Name() string { return c.name }

// Type returns the storage type
func (c *Column) Type() ColumnType { return c.ctype }

// Len returns the number of rows
func (c *Column) Len() int { return len(c.valid) }

// IsNull reports whether row i is null
func (c *Column) IsNull(i int) bool { return !c.valid[i] }

// NullCount returns the number of null rows
func (c *Column) NullCount() int {
	n := 0
	for _, ok := range c.valid {
		if !ok {
			n++
		}
	}
	return n
}

// Float returns row i as a number. Datetimes are converted to Unix seconds;
// categorical values never convert.
func (c *Column) Float(i int) (float64, bool) {
	if !c.valid[i] {
		return math.NaN(), false
	}
	switch c.ctype {
	case TypeNumeric:
		return c.nums[i], true
	case TypeDatetime:
		return float64(c.times[i].UnixNano()) / 1e9, true
	}
	return math.NaN(), false
}

// Time returns row i of a datetime column
func (c *Column) Time(i int) (time.Time, bool) {
	if c.ctype != TypeDatetime || !c.valid[i] {
		return time.Time{}, false
	}
	return c.times[i], true
}

// Key returns a canonical string for row i, usable for grouping regardless of type
func (c *Column) Key(i int) (string, bool) {
	if !c.valid[i] {
		return "", false
	}
	switch c.ctype {
	case TypeNumeric:
		return strconv.FormatFloat(c.nums[i], 'g', -1, 64), true
	case TypeDatetime:
		return c.times[i].UTC().Format(time.RFC3339Nano), true
	default:
		return c.cats[i], true
	}
}

// Floats returns a copy of the column as numbers (NaN for nulls), or nil for
// categorical columns
func (c *Column) Floats() []float64 {
	if c.ctype == TypeCategorical {
		return nil
	}
	out := make([]float64, c.Len())
	for i := range out {
		out[i], _ = c.Float(i)
	}
	return out
}

// Keys returns the canonical keys of every row ("" for nulls)
func (c *Column) Keys() []string {
	out := make([]string, c.Len())
	for i := range out {
		out[i], _ = c.Key(i)
	}
	return out
}

// Distinct returns the number of distinct non-null values
func (c *Column) Distinct() int {
	seen := make(map[string]struct{})
	for i := 0; i < c.Len(); i++ {
		if k, ok := c.Key(i); ok {
			seen[k] = struct{}{}
		}
	}
	return len(seen)
}

// Levels returns the sorted distinct non-null keys
func (c *Column) Levels() []string {
	seen := make(map[string]struct{})
	for i := 0; i < c.Len(); i++ {
		if k, ok := c.Key(i); ok {
			seen[k] = struct{}{}
		}
	}
	levels := make([]string, 0, len(seen))
	for k := range seen {
		levels = append(levels, k)
	}
	sort.Strings(levels)
	return levels
}

var truthyLevels = map[string]bool{
	"1": true, "true": true, "yes": true, "y": true, "t": true,
	"event": true, "dead": true, "died": true, "death": true,
	"treated": true, "treatment": true, "churned": true, "failed": true,
}

// Indicator returns the column as a 0/1 vector (NaN for nulls) when it is
// binary: numeric values within {0, 1}, or at most two categorical levels.
// For categoricals the truthy level wins, otherwise the lexically larger one.
func (c *Column) Indicator() ([]float64, bool) {
	out := make([]float64, c.Len())
	switch c.ctype {
	case TypeNumeric:
		for i := range out {
			if !c.valid[i] {
				out[i] = math.NaN()
				continue
			}
			v := c.nums[i]
			if v != 0 && v != 1 {
				return nil, false
			}
			out[i] = v
		}
		return out, true
	case TypeCategorical:
		levels := c.Levels()
		if len(levels) == 0 || len(levels) > 2 {
			return nil, false
		}
		positive := levels[len(levels)-1]
		for _, l := range levels {
			if truthyLevels[strings.ToLower(l)] {
				positive = l
				break
			}
		}
		if len(levels) == 1 && !truthyLevels[strings.ToLower(positive)] {
			positive = ""
		}
		for i := range out {
			if !c.valid[i] {
				out[i] = math.NaN()
				continue
			}
			if c.cats[i] == positive {
				out[i] = 1
			}
		}
		return out, true
	}
	return nil, false
}
