// Package classifier infers the statistical paradigm of a dataset from its
// column roles and shape.
package classifier

import (
	"fmt"
	"strings"

	"statsuite/domain/core"
	"statsuite/domain/dataset"
	"statsuite/domain/structure"
	"statsuite/internal"
)

// DefaultMinSeriesLength is the soft minimum length of a time series
const DefaultMinSeriesLength = 8

// Classifier is stateless apart from its thresholds; Detect is safe for
// concurrent use and deterministic for a given dataset.
type Classifier struct {
	minSeriesLength int
	logger          *internal.Logger
}

// New creates a classifier. A non-positive minSeriesLength uses the default.
func New(minSeriesLength int, logger *internal.Logger) *Classifier {
	if minSeriesLength <= 0 {
		minSeriesLength = DefaultMinSeriesLength
	}
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Classifier{minSeriesLength: minSeriesLength, logger: logger}
}

// Detect classifies the dataset. It never fails: data that matches no
// paradigm yields KindUnknown with zero confidence.
func (c *Classifier) Detect(data *dataset.Dataset) (st structure.DataStructure) {
	if data == nil {
		return structure.Unknown(0)
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("classification of %s panicked: %v", data.Name(), r)
			st = structure.Unknown(data.NRows())
		}
	}()

	roles := resolveRoles(data)
	lists := c.evaluate(data, roles)

	var fired []*checklist
	for _, l := range lists {
		if l.fires() {
			fired = append(fired, l)
		}
	}
	if len(fired) == 0 {
		c.logger.Debug("dataset %s matched no structure", data.Name())
		st = structure.Unknown(data.NRows())
		st.OutcomeCol = roles.Outcome
		return st
	}

	chosen := fired[0]
	st = c.build(data, roles, chosen)
	if len(fired) > 1 {
		kinds := make([]string, len(fired))
		for i, l := range fired {
			kinds[i] = string(l.kind)
		}
		st.Warnings = append(st.Warnings, structure.Warning{
			Code:    core.WarnClassificationAmbiguous,
			Message: fmt.Sprintf("dataset matches %s; chose %s by precedence", strings.Join(kinds, ", "), chosen.kind),
		})
	}
	c.logger.Debug("dataset %s classified as %s (confidence %.2f)", data.Name(), st.Kind, st.Confidence)
	return st
}

// Describe builds the structure for a caller-chosen kind, bypassing kind
// selection. Roles are resolved as in Detect and confidence comes from the
// same checklist, so a forced kind that does not fit has low confidence.
func (c *Classifier) Describe(data *dataset.Dataset, kind structure.Kind) structure.DataStructure {
	if data == nil {
		return structure.Unknown(0)
	}
	roles := resolveRoles(data)
	var chosen *checklist
	for _, l := range c.evaluate(data, roles) {
		if l.kind == kind {
			chosen = l
			break
		}
	}
	if chosen == nil {
		st := structure.Unknown(data.NRows())
		st.Overridden = true
		return st
	}

	st := c.build(data, roles, chosen)
	st.Overridden = true
	if failed := chosen.failedRequired(); len(failed) > 0 {
		st.Warnings = append(st.Warnings, structure.Warning{
			Code:    core.WarnLowConfidence,
			Message: fmt.Sprintf("forced kind %s fails checks: %s", kind, strings.Join(failed, ", ")),
		})
	}
	return st
}

func (c *Classifier) evaluate(data *dataset.Dataset, roles dataset.RoleMapping) []*checklist {
	return []*checklist{
		survivalChecks(data, roles),
		panelChecks(data, roles),
		timeSeriesChecks(data, roles, c.minSeriesLength),
		causalChecks(data, roles),
	}
}

func (c *Classifier) build(data *dataset.Dataset, roles dataset.RoleMapping, l *checklist) structure.DataStructure {
	st := structure.DataStructure{
		Kind:       l.kind,
		NRows:      data.NRows(),
		Confidence: l.confidence(),
		Checks:     append([]structure.Check(nil), l.checks...),
		Covariates: append([]string(nil), roles.Covariates...),
		OutcomeCol: roles.Outcome,
	}

	switch l.kind {
	case structure.KindSurvival:
		st.DurationCol = roles.Duration
		st.EventCol = roles.Event
		st.EntityCol = roles.Entity
		// An inferred outcome on survival data is just another covariate
		if data.Roles().Outcome == "" && st.OutcomeCol != "" {
			st.Covariates = append(st.Covariates, st.OutcomeCol)
			st.OutcomeCol = ""
		}
		st.NEntities = data.NRows()
	case structure.KindPanel:
		st.EntityCol = roles.Entity
		st.TimeCol = roles.Time
		st.NEntities = distinct(data, roles.Entity)
		st.NPeriods = distinct(data, roles.Time)
	case structure.KindTimeSeries:
		st.EntityCol = roles.Entity
		st.TimeCol = roles.Time
		st.NEntities = 1
		st.NPeriods = data.NRows()
	case structure.KindCrossSectionalCausal:
		st.TreatmentCol = roles.Treatment
		st.NEntities = data.NRows()
	}
	return st
}

func distinct(data *dataset.Dataset, name string) int {
	if col := column(data, name); col != nil {
		return col.Distinct()
	}
	return 0
}
