package classifier

import (
	"github.com/montanaflynn/stats"

	"statsuite/domain/dataset"
	"statsuite/domain/structure"
)

// checklist is the evaluated heuristics for one kind. The kind fires when
// every required check holds.
type checklist struct {
	kind   structure.Kind
	checks []structure.Check
}

func (l *checklist) add(name string, ok, required bool) bool {
	l.checks = append(l.checks, structure.Check{Name: name, Satisfied: ok, Required: required})
	return ok
}

func (l *checklist) fires() bool {
	for _, c := range l.checks {
		if c.Required && !c.Satisfied {
			return false
		}
	}
	return len(l.checks) > 0
}

func (l *checklist) confidence() float64 {
	if len(l.checks) == 0 {
		return 0
	}
	satisfied := 0
	for _, c := range l.checks {
		if c.Satisfied {
			satisfied++
		}
	}
	return float64(satisfied) / float64(len(l.checks))
}

func (l *checklist) failedRequired() []string {
	var names []string
	for _, c := range l.checks {
		if c.Required && !c.Satisfied {
			names = append(names, c.Name)
		}
	}
	return names
}

func column(data *dataset.Dataset, name string) *dataset.Column {
	if name == "" {
		return nil
	}
	c, _ := data.Column(name)
	return c
}

func survivalChecks(data *dataset.Dataset, r dataset.RoleMapping) *checklist {
	l := &checklist{kind: structure.KindSurvival}
	duration := column(data, r.Duration)
	event := column(data, r.Event)

	l.add("duration_present", duration != nil, true)
	l.add("duration_non_negative", duration != nil && validDurations(duration), true)
	l.add("event_present", event != nil, true)

	var indicator []float64
	binary := false
	if event != nil {
		indicator, binary = event.Indicator()
	}
	l.add("event_binary", binary, true)

	observed := false
	if binary {
		for _, v := range indicator {
			if v == 1 {
				observed = true
				break
			}
		}
	}
	l.add("events_observed", observed, false)
	return l
}

func validDurations(c *dataset.Column) bool {
	if c.Type() != dataset.TypeNumeric || c.NullCount() > 0 || c.Len() == 0 {
		return false
	}
	lowest, err := stats.Min(stats.Float64Data(c.Floats()))
	return err == nil && lowest >= 0
}

func panelChecks(data *dataset.Dataset, r dataset.RoleMapping) *checklist {
	l := &checklist{kind: structure.KindPanel}
	entity := column(data, r.Entity)
	tcol := column(data, r.Time)

	l.add("entity_present", entity != nil, true)
	l.add("multiple_entities", entity != nil && entity.Distinct() >= 2, true)
	l.add("time_present", tcol != nil, true)

	repeated, unique := false, false
	if entity != nil && tcol != nil {
		repeated, unique = panelShape(entity, tcol)
	}
	l.add("repeated_observations", repeated, true)
	l.add("unique_entity_time", unique, false)
	return l
}

// panelShape reports whether every entity is observed at least twice and
// whether (entity, time) pairs are unique
func panelShape(entity, tcol *dataset.Column) (repeated, unique bool) {
	counts := make(map[string]int)
	pairs := make(map[[2]string]bool)
	unique = true
	for i := 0; i < entity.Len(); i++ {
		e, ok := entity.Key(i)
		if !ok {
			continue
		}
		counts[e]++
		t, ok := tcol.Key(i)
		if !ok {
			continue
		}
		key := [2]string{e, t}
		if pairs[key] {
			unique = false
		}
		pairs[key] = true
	}
	if len(counts) == 0 {
		return false, false
	}
	repeated = true
	for _, n := range counts {
		if n < 2 {
			repeated = false
			break
		}
	}
	return repeated, unique
}

func timeSeriesChecks(data *dataset.Dataset, r dataset.RoleMapping, minLength int) *checklist {
	l := &checklist{kind: structure.KindTimeSeries}
	entity := column(data, r.Entity)
	tcol := column(data, r.Time)

	l.add("time_present", tcol != nil, true)
	l.add("single_entity", entity == nil || entity.Distinct() <= 1, true)
	l.add("time_increasing", tcol != nil && strictlyIncreasing(tcol), true)
	l.add("time_complete", tcol != nil && tcol.NullCount() == 0, true)
	l.add("min_length", data.NRows() >= minLength, false)
	return l
}

func strictlyIncreasing(c *dataset.Column) bool {
	if c.Len() < 2 {
		return false
	}
	prev, ok := c.Float(0)
	if !ok {
		return false
	}
	for i := 1; i < c.Len(); i++ {
		v, ok := c.Float(i)
		if !ok || v <= prev {
			return false
		}
		prev = v
	}
	return true
}

func causalChecks(data *dataset.Dataset, r dataset.RoleMapping) *checklist {
	l := &checklist{kind: structure.KindCrossSectionalCausal}
	treatment := column(data, r.Treatment)
	outcome := column(data, r.Outcome)

	l.add("treatment_present", treatment != nil, true)
	l.add("outcome_present", outcome != nil && outcome.Type() == dataset.TypeNumeric, true)
	l.add("no_temporal_structure", column(data, r.Time) == nil, true)

	var indicator []float64
	binary := false
	if treatment != nil {
		indicator, binary = treatment.Indicator()
	}
	l.add("treatment_binary", binary, false)

	treated, control := 0, 0
	for _, v := range indicator {
		switch v {
		case 1:
			treated++
		case 0:
			control++
		}
	}
	l.add("both_arms_populated", treated > 0 && control > 0, false)
	return l
}
