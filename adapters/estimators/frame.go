// Package estimators holds the reference method adapters registered by
// RegisterBuiltins. They are textbook estimators over gonum.
package estimators

import (
	"fmt"
	"math"
	"sort"

	"statsuite/domain/core"
	"statsuite/domain/dataset"
	"statsuite/domain/structure"
)

func column(data *dataset.Dataset, methodName, role, name string) (*dataset.Column, error) {
	if name == "" {
		return nil, core.NewMissingRoleError(methodName, role)
	}
	c, ok := data.Column(name)
	if !ok {
		return nil, &core.PreconditionError{Method: methodName, Column: name, Reason: fmt.Sprintf("%s column not found", role)}
	}
	return c, nil
}

func numeric(data *dataset.Dataset, methodName, role, name string) ([]float64, error) {
	c, err := column(data, methodName, role, name)
	if err != nil {
		return nil, err
	}
	if c.Type() != dataset.TypeNumeric {
		return nil, &core.PreconditionError{Method: methodName, Column: name, Reason: fmt.Sprintf("%s column must be numeric, got %s", role, c.Type())}
	}
	return c.Floats(), nil
}

func covariates(data *dataset.Dataset, methodName string, st structure.DataStructure) ([][]float64, error) {
	cols := make([][]float64, 0, len(st.Covariates))
	for _, name := range st.Covariates {
		v, err := numeric(data, methodName, "covariate", name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, v)
	}
	return cols, nil
}

// ordering maps a time column to sortable values. Categorical periods sort by
// their level order.
func ordering(c *dataset.Column) []float64 {
	if c.Type() != dataset.TypeCategorical {
		return c.Floats()
	}
	rank := make(map[string]float64)
	for i, l := range c.Levels() {
		rank[l] = float64(i)
	}
	out := make([]float64, c.Len())
	for i := range out {
		if k, ok := c.Key(i); ok {
			out[i] = rank[k]
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// complete returns the rows where every slice holds a finite value
func complete(n int, cols ...[]float64) []int {
	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ok := true
		for _, c := range cols {
			if math.IsNaN(c[i]) || math.IsInf(c[i], 0) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, i)
		}
	}
	return rows
}

func take(v []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = v[r]
	}
	return out
}

func takeAll(cols [][]float64, rows []int) [][]float64 {
	out := make([][]float64, len(cols))
	for j, c := range cols {
		out[j] = take(c, rows)
	}
	return out
}

// series is an outcome ordered by time
type series struct {
	y []float64
}

func buildSeries(methodName string, data *dataset.Dataset, st structure.DataStructure, minLen int) (*series, error) {
	tc, err := column(data, methodName, "time", st.TimeCol)
	if err != nil {
		return nil, err
	}
	y, err := numeric(data, methodName, "outcome", st.OutcomeCol)
	if err != nil {
		return nil, err
	}
	order := ordering(tc)
	rows := complete(data.NRows(), order, y)
	sort.SliceStable(rows, func(a, b int) bool { return order[rows[a]] < order[rows[b]] })
	if len(rows) < minLen {
		return nil, &core.PreconditionError{
			Method: methodName,
			Column: st.OutcomeCol,
			Reason: fmt.Sprintf("needs at least %d ordered observations, got %d", minLen, len(rows)),
		}
	}
	return &series{y: take(y, rows)}, nil
}

// panelFrame holds complete panel rows sorted by entity then period
type panelFrame struct {
	groups    [][]int // row positions per entity, in period order
	entityKey []string
	period    []float64
	y         []float64
	x         [][]float64
	names     []string
}

func (p *panelFrame) n() int { return len(p.y) }

const trendName = "trend"

// buildPanel extracts a panel. Without covariates and with trend set, the
// period rank is used as the single regressor.
func buildPanel(methodName string, data *dataset.Dataset, st structure.DataStructure, trend bool) (*panelFrame, error) {
	ec, err := column(data, methodName, "entity", st.EntityCol)
	if err != nil {
		return nil, err
	}
	tc, err := column(data, methodName, "time", st.TimeCol)
	if err != nil {
		return nil, err
	}
	y, err := numeric(data, methodName, "outcome", st.OutcomeCol)
	if err != nil {
		return nil, err
	}
	xs, err := covariates(data, methodName, st)
	if err != nil {
		return nil, err
	}
	names := append([]string(nil), st.Covariates...)

	order := ordering(tc)
	entityNull := make([]float64, data.NRows())
	for i := range entityNull {
		if ec.IsNull(i) {
			entityNull[i] = math.NaN()
		}
	}
	rows := complete(data.NRows(), append([][]float64{order, y, entityNull}, xs...)...)
	keys := ec.Keys()
	sort.SliceStable(rows, func(a, b int) bool {
		ka, kb := keys[rows[a]], keys[rows[b]]
		if ka != kb {
			return ka < kb
		}
		return order[rows[a]] < order[rows[b]]
	})

	f := &panelFrame{period: take(order, rows), y: take(y, rows), x: takeAll(xs, rows), names: names}
	if len(xs) == 0 && trend {
		f.x = [][]float64{periodRank(f.period)}
		f.names = []string{trendName}
	}
	f.group(keys, rows)
	if err := f.validate(methodName); err != nil {
		return nil, err
	}
	return f, nil
}

func (p *panelFrame) group(keys []string, rows []int) {
	for pos, r := range rows {
		k := keys[r]
		if len(p.entityKey) == 0 || p.entityKey[len(p.entityKey)-1] != k {
			p.entityKey = append(p.entityKey, k)
			p.groups = append(p.groups, nil)
		}
		last := len(p.groups) - 1
		p.groups[last] = append(p.groups[last], pos)
	}
}

func (p *panelFrame) validate(methodName string) error {
	if len(p.groups) < 2 {
		return core.NewPreconditionError(methodName, fmt.Sprintf("needs at least 2 entities, got %d", len(p.groups)))
	}
	for _, g := range p.groups {
		if len(g) >= 2 {
			return nil
		}
	}
	return core.NewPreconditionError(methodName, "needs at least one entity observed in two periods")
}

// means returns the per-entity mean of v
func (p *panelFrame) means(v []float64) []float64 {
	out := make([]float64, len(p.groups))
	for g, rows := range p.groups {
		sum := 0.0
		for _, r := range rows {
			sum += v[r]
		}
		out[g] = sum / float64(len(rows))
	}
	return out
}

func periodRank(period []float64) []float64 {
	distinct := append([]float64(nil), period...)
	sort.Float64s(distinct)
	rank := make(map[float64]float64)
	next := 0.0
	for i, v := range distinct {
		if i > 0 && v == distinct[i-1] {
			continue
		}
		rank[v] = next
		next++
	}
	out := make([]float64, len(period))
	for i, v := range period {
		out[i] = rank[v]
	}
	return out
}
