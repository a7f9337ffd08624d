package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"statsuite/domain/core"
)

// RoleMapping assigns statistical roles to columns. Non-empty entries
// override auto-detection.
type RoleMapping struct {
	Entity     string   `json:"entity,omitempty"`
	Time       string   `json:"time,omitempty"`
	Duration   string   `json:"duration,omitempty"`
	Event      string   `json:"event,omitempty"`
	Treatment  string   `json:"treatment,omitempty"`
	Outcome    string   `json:"outcome,omitempty"`
	Covariates []string `json:"covariates,omitempty"`
}

// IsZero reports whether no role is set
func (r RoleMapping) IsZero() bool {
	return r.Entity == "" && r.Time == "" && r.Duration == "" && r.Event == "" &&
		r.Treatment == "" && r.Outcome == "" && len(r.Covariates) == 0
}

// Merge returns r with every non-empty role of override applied on top
func (r RoleMapping) Merge(override RoleMapping) RoleMapping {
	out := r
	if override.Entity != "" {
		out.Entity = override.Entity
	}
	if override.Time != "" {
		out.Time = override.Time
	}
	if override.Duration != "" {
		out.Duration = override.Duration
	}
	if override.Event != "" {
		out.Event = override.Event
	}
	if override.Treatment != "" {
		out.Treatment = override.Treatment
	}
	if override.Outcome != "" {
		out.Outcome = override.Outcome
	}
	if len(override.Covariates) > 0 {
		out.Covariates = append([]string(nil), override.Covariates...)
	}
	return out
}

// Columns returns every column name referenced by the mapping
func (r RoleMapping) Columns() []string {
	var names []string
	for _, n := range []string{r.Entity, r.Time, r.Duration, r.Event, r.Treatment, r.Outcome} {
		if n != "" {
			names = append(names, n)
		}
	}
	return append(names, r.Covariates...)
}

// Dataset is a read-only, column-oriented table. Nothing reachable from a
// Dataset can be mutated, so it is safe to share across concurrent fits.
type Dataset struct {
	name    string
	columns []*Column
	index   map[string]int
	roles   RoleMapping
	nrows   int

	fpOnce      sync.Once
	fingerprint core.Hash
}

// New builds a dataset from equal-length columns with unique names
func New(name string, columns ...*Column) (*Dataset, error) {
	ds := &Dataset{name: name, index: make(map[string]int, len(columns))}
	for i, c := range columns {
		if c == nil {
			return nil, fmt.Errorf("%w: column %d is nil", core.ErrInvalidDataset, i)
		}
		if strings.TrimSpace(c.Name()) == "" {
			return nil, fmt.Errorf("%w: column %d has no name", core.ErrInvalidDataset, i)
		}
		if _, dup := ds.index[c.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", core.ErrInvalidDataset, c.Name())
		}
		if i == 0 {
			ds.nrows = c.Len()
		} else if c.Len() != ds.nrows {
			return nil, fmt.Errorf("%w: column %q has %d rows, expected %d", core.ErrInvalidDataset, c.Name(), c.Len(), ds.nrows)
		}
		ds.index[c.Name()] = i
		ds.columns = append(ds.columns, c)
	}
	return ds, nil
}

// MustNew is New for fixtures; it panics on invalid input
func MustNew(name string, columns ...*Column) *Dataset {
	ds, err := New(name, columns...)
	if err != nil {
		panic(err)
	}
	return ds
}

// Name returns the dataset name
func (d *Dataset) Name() string { return d.name }

// NRows returns the row count
func (d *Dataset) NRows() int { return d.nrows }

// NCols returns the column count
func (d *Dataset) NCols() int { return len(d.columns) }

// ColumnNames returns column names in schema order
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name()
	}
	return names
}

// Column looks up a column by name
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.columns[i], true
}

// HasColumn reports whether a column exists
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Columns returns the columns in schema order
func (d *Dataset) Columns() []*Column {
	out := make([]*Column, len(d.columns))
	copy(out, d.columns)
	return out
}

// Roles returns the explicit role mapping
func (d *Dataset) Roles() RoleMapping {
	r := d.roles
	r.Covariates = append([]string(nil), d.roles.Covariates...)
	return r
}

// WithRoles returns a dataset sharing the same columns with roles merged on
// top of the current mapping. Every named column must exist.
func (d *Dataset) WithRoles(roles RoleMapping) (*Dataset, error) {
	for _, name := range roles.Columns() {
		if !d.HasColumn(name) {
			return nil, fmt.Errorf("%w: role refers to %q", core.ErrColumnNotFound, name)
		}
	}
	return &Dataset{
		name:    d.name,
		columns: d.columns,
		index:   d.index,
		roles:   d.roles.Merge(roles),
		nrows:   d.nrows,
	}, nil
}

// Numeric returns a copy of a numeric or datetime column as float64 values
func (d *Dataset) Numeric(name string) ([]float64, error) {
	c, ok := d.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrColumnNotFound, name)
	}
	if c.Type() == TypeCategorical {
		return nil, fmt.Errorf("column %q is categorical, expected numeric", name)
	}
	return c.Floats(), nil
}

// Fingerprint hashes schema, roles and values. It identifies the dataset in
// provenance records.
func (d *Dataset) Fingerprint() core.Hash {
	d.fpOnce.Do(func() {
		var b strings.Builder
		b.WriteString(d.name)
		b.WriteString("|")
		for _, c := range d.columns {
			b.WriteString(c.Name())
			b.WriteString(":")
			b.WriteString(string(c.Type()))
			b.WriteString("[")
			for i := 0; i < c.Len(); i++ {
				if k, ok := c.Key(i); ok {
					b.WriteString(k)
				} else {
					b.WriteString("\x00")
				}
				b.WriteString(",")
			}
			b.WriteString("]")
		}
		b.WriteString(fmt.Sprintf("%+v", d.roles))
		d.fingerprint = core.NewHash([]byte(b.String()))
	})
	return d.fingerprint
}

// ParseNumber parses a cell as float64, treating empty and NA markers as null
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "n/a", "nan", "null", "none", "-":
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
