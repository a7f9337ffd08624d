package classifier

import (
	"strings"
	"unicode"

	"statsuite/domain/dataset"
)

// Name hints per role, matched against lower-cased name tokens
var (
	entityHints    = tokenSet("id", "entity", "subject", "player", "firm", "country", "unit", "patient", "customer", "company", "individual", "store", "user", "person", "team", "region")
	timeHints      = tokenSet("time", "date", "year", "season", "period", "month", "week", "quarter", "day", "t", "timestamp", "wave")
	durationHints  = tokenSet("duration", "tenure", "followup", "futime", "stime", "lifetime")
	eventHints     = tokenSet("event", "status", "died", "death", "dead", "churned", "churn", "failed", "failure", "censored", "censor", "observed")
	treatmentHints = tokenSet("treatment", "treated", "treat", "intervention", "arm", "assigned", "exposed", "exposure")
	outcomeHints   = tokenSet("outcome", "target", "response", "y", "label")

	durationPhrases = []string{"survival_time", "time_to_event", "time_to", "follow_up"}
)

func tokenSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func tokens(name string) []string {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func matches(name string, hints map[string]bool) bool {
	for _, tok := range tokens(name) {
		if hints[tok] {
			return true
		}
	}
	return false
}

func isDurationName(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range durationPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return matches(name, durationHints)
}

// resolveRoles fills every role the dataset's explicit mapping leaves empty.
// A column takes at most one role. Roles are assigned in the order duration,
// event, entity, time, treatment, outcome so that "time_to_event" is never
// read as a time index.
func resolveRoles(data *dataset.Dataset) dataset.RoleMapping {
	r := data.Roles()
	taken := make(map[string]bool)
	for _, name := range r.Columns() {
		taken[name] = true
	}

	pick := func(current *string, accept func(c *dataset.Column) bool) {
		if *current != "" {
			return
		}
		for _, c := range data.Columns() {
			if taken[c.Name()] || !accept(c) {
				continue
			}
			*current = c.Name()
			taken[c.Name()] = true
			return
		}
	}

	pick(&r.Duration, func(c *dataset.Column) bool {
		return c.Type() == dataset.TypeNumeric && isDurationName(c.Name())
	})
	pick(&r.Event, func(c *dataset.Column) bool { return matches(c.Name(), eventHints) })
	if r.Entity == "" {
		for _, c := range data.Columns() {
			if taken[c.Name()] || c.Type() == dataset.TypeDatetime || !matches(c.Name(), entityHints) {
				continue
			}
			taken[c.Name()] = true
			// A value per row is a record key, not an entity
			if data.NRows() > 1 && c.Distinct() == data.NRows() {
				continue
			}
			r.Entity = c.Name()
			break
		}
	}
	// R-style survival data names its duration "time" next to a "status"
	// event; without an entity that column is read as the duration
	if r.Event != "" && r.Entity == "" && binaryColumn(data, r.Event) {
		pick(&r.Duration, func(c *dataset.Column) bool {
			return c.Type() == dataset.TypeNumeric && matches(c.Name(), timeHints) && nonNegative(c)
		})
	}
	pick(&r.Time, func(c *dataset.Column) bool { return c.Type() == dataset.TypeDatetime })
	pick(&r.Time, func(c *dataset.Column) bool { return matches(c.Name(), timeHints) })
	pick(&r.Treatment, func(c *dataset.Column) bool { return matches(c.Name(), treatmentHints) })
	pick(&r.Outcome, func(c *dataset.Column) bool {
		return c.Type() == dataset.TypeNumeric && matches(c.Name(), outcomeHints)
	})

	var remaining []string
	for _, c := range data.Columns() {
		if !taken[c.Name()] && c.Type() == dataset.TypeNumeric {
			remaining = append(remaining, c.Name())
		}
	}
	// Without a hint the rightmost free numeric column is the response
	if r.Outcome == "" && len(remaining) > 0 {
		r.Outcome = remaining[len(remaining)-1]
		taken[r.Outcome] = true
		remaining = remaining[:len(remaining)-1]
	}
	if len(r.Covariates) == 0 {
		for _, name := range remaining {
			if !taken[name] {
				r.Covariates = append(r.Covariates, name)
			}
		}
	}
	return r
}

func binaryColumn(data *dataset.Dataset, name string) bool {
	c, ok := data.Column(name)
	if !ok {
		return false
	}
	_, binary := c.Indicator()
	return binary
}

func nonNegative(c *dataset.Column) bool {
	if c.NullCount() > 0 {
		return false
	}
	for _, v := range c.Floats() {
		if v < 0 {
			return false
		}
	}
	return true
}
