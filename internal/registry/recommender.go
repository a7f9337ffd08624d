package registry

import (
	"fmt"

	"statsuite/domain/core"
	"statsuite/domain/dataset"
	"statsuite/domain/structure"
	"statsuite/internal"
)

// Rejection records why a method was filtered out of a recommendation
type Rejection struct {
	Method string
	Reason error
}

// Recommender ranks registered methods for a classified dataset
type Recommender struct {
	registry *Registry
	logger   *internal.Logger
}

// NewRecommender creates a recommender over reg
func NewRecommender(reg *Registry, logger *internal.Logger) *Recommender {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Recommender{registry: reg, logger: logger}
}

// Recommend returns the applicable methods for st, ordered by cost tier
// ascending, then suitability, then registration order. Methods whose
// precondition check fails are dropped.
func (r *Recommender) Recommend(data *dataset.Dataset, st structure.DataStructure) []MethodDescriptor {
	accepted, _ := r.Explain(data, st)
	return accepted
}

// Explain is Recommend that also returns the rejected methods with reasons
func (r *Recommender) Explain(data *dataset.Dataset, st structure.DataStructure) ([]MethodDescriptor, []Rejection) {
	if !st.IsKnown() {
		return nil, nil
	}

	var accepted []MethodDescriptor
	var rejected []Rejection
	for _, e := range r.registry.ranked(st.Kind) {
		if err := e.desc.Check(data, st); err != nil {
			r.logger.Debug("recommend: %s rejected for %s: %v", e.desc.Name, st.Kind, err)
			rejected = append(rejected, Rejection{Method: e.desc.Name, Reason: err})
			continue
		}
		accepted = append(accepted, e.desc)
	}
	return accepted, rejected
}

// Check runs the adapter's precondition check. A panicking check counts as a
// rejection.
func (d MethodDescriptor) Check(data *dataset.Dataset, st structure.DataStructure) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = core.NewPreconditionError(d.Name, fmt.Sprintf("precondition check panicked: %v", p))
		}
	}()
	return d.Adapter.CheckPreconditions(data, st)
}
