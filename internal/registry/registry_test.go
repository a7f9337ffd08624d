package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"statsuite/domain/core"
	"statsuite/domain/dataset"
	"statsuite/domain/method"
	"statsuite/domain/structure"
)

// MockAdapter implements ports.MethodAdapter
type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error {
	args := m.Called(data, st)
	return args.Error(0)
}

func (m *MockAdapter) Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, params method.Params) (method.NativeResult, error) {
	args := m.Called(ctx, data, st, params)
	return args.Get(0), args.Error(1)
}

func (m *MockAdapter) ExtractMetrics(native method.NativeResult) (method.Metrics, error) {
	args := m.Called(native)
	return args.Get(0).(method.Metrics), args.Error(1)
}

func accepting() *MockAdapter {
	a := &MockAdapter{}
	a.On("CheckPreconditions", mock.Anything, mock.Anything).Return(nil)
	return a
}

func panelDescriptor(name string, tier method.CostTier, suitability int, a *MockAdapter) MethodDescriptor {
	return MethodDescriptor{
		Name:        name,
		Category:    method.CategoryPanel,
		Kinds:       []structure.Kind{structure.KindPanel},
		CostTier:    tier,
		Suitability: suitability,
		Adapter:     a,
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		desc MethodDescriptor
	}{
		{"missing name", MethodDescriptor{Kinds: []structure.Kind{structure.KindPanel}, CostTier: method.TierClosedForm, Adapter: accepting()}},
		{"missing adapter", MethodDescriptor{Name: "x", Kinds: []structure.Kind{structure.KindPanel}, CostTier: method.TierClosedForm}},
		{"no kinds", MethodDescriptor{Name: "x", CostTier: method.TierClosedForm, Adapter: accepting()}},
		{"unknown kind", MethodDescriptor{Name: "x", Kinds: []structure.Kind{structure.KindUnknown}, CostTier: method.TierClosedForm, Adapter: accepting()}},
		{"bad tier", MethodDescriptor{Name: "x", Kinds: []structure.Kind{structure.KindPanel}, Adapter: accepting()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Register(tt.desc)
			assert.ErrorIs(t, err, core.ErrInvalidMethod)
		})
	}
}

func TestRegister_DuplicateAndSealed(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register(panelDescriptor("pooled", method.TierClosedForm, 1, accepting())))

	err := reg.Register(panelDescriptor("pooled", method.TierClosedForm, 1, accepting()))
	assert.ErrorIs(t, err, core.ErrDuplicateMethod)

	reg.Seal()
	assert.True(t, reg.Sealed())
	err = reg.Register(panelDescriptor("fixed_effects", method.TierClosedForm, 2, accepting()))
	assert.ErrorIs(t, err, core.ErrRegistrySealed)
}

func TestLookup(t *testing.T) {
	reg := New()
	reg.MustRegister(panelDescriptor("pooled", method.TierClosedForm, 1, accepting()))

	desc, err := reg.Lookup("pooled")
	require.NoError(t, err)
	assert.Equal(t, "pooled", desc.Name)

	_, err = reg.Lookup("missing")
	assert.ErrorIs(t, err, core.ErrMethodNotFound)
	assert.True(t, core.IsNotFoundError(err))
}

func TestRecommend_OrdersByTierSuitabilityRegistration(t *testing.T) {
	reg := New()
	reg.MustRegister(panelDescriptor("bayes_hier", method.TierSimulation, 1, accepting()))
	reg.MustRegister(panelDescriptor("random_effects", method.TierClosedForm, 3, accepting()))
	reg.MustRegister(panelDescriptor("pooled", method.TierClosedForm, 1, accepting()))
	reg.MustRegister(panelDescriptor("gmm", method.TierIterative, 1, accepting()))
	reg.MustRegister(panelDescriptor("fixed_effects", method.TierClosedForm, 2, accepting()))
	reg.MustRegister(panelDescriptor("first_difference", method.TierClosedForm, 3, accepting()))

	st := structure.DataStructure{Kind: structure.KindPanel}
	got := NewRecommender(reg, nil).Recommend(nil, st)

	names := make([]string, len(got))
	for i, d := range got {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"pooled", "fixed_effects", "random_effects", "first_difference", "gmm", "bayes_hier"}, names)
}

func TestRecommend_FiltersPreconditions(t *testing.T) {
	rejecting := &MockAdapter{}
	rejecting.On("CheckPreconditions", mock.Anything, mock.Anything).
		Return(core.NewMissingRoleError("fixed_effects", "entity"))

	reg := New()
	reg.MustRegister(panelDescriptor("pooled", method.TierClosedForm, 1, accepting()))
	reg.MustRegister(panelDescriptor("fixed_effects", method.TierClosedForm, 2, rejecting))

	accepted, rejected := NewRecommender(reg, nil).Explain(nil, structure.DataStructure{Kind: structure.KindPanel})

	require.Len(t, accepted, 1)
	assert.Equal(t, "pooled", accepted[0].Name)
	require.Len(t, rejected, 1)
	assert.Equal(t, "fixed_effects", rejected[0].Method)
	assert.True(t, core.IsPreconditionError(rejected[0].Reason))
}

func TestRecommend_PanickingCheckIsRejected(t *testing.T) {
	panicking := &MockAdapter{}
	panicking.On("CheckPreconditions", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("boom")
	})

	reg := New()
	reg.MustRegister(panelDescriptor("pooled", method.TierClosedForm, 1, panicking))

	accepted, rejected := NewRecommender(reg, nil).Explain(nil, structure.DataStructure{Kind: structure.KindPanel})
	assert.Empty(t, accepted)
	require.Len(t, rejected, 1)
	assert.True(t, core.IsPreconditionError(rejected[0].Reason))
}

func TestRecommend_UnknownKind(t *testing.T) {
	reg := New()
	reg.MustRegister(panelDescriptor("pooled", method.TierClosedForm, 1, accepting()))
	assert.Empty(t, NewRecommender(reg, nil).Recommend(nil, structure.Unknown(10)))
}

func TestForKindAndAll(t *testing.T) {
	reg := New()
	reg.MustRegister(panelDescriptor("pooled", method.TierClosedForm, 1, accepting()))
	reg.MustRegister(MethodDescriptor{
		Name:     "ar1",
		Category: method.CategoryTimeSeries,
		Kinds:    []structure.Kind{structure.KindTimeSeries},
		CostTier: method.TierClosedForm,
		Adapter:  accepting(),
	})

	assert.Len(t, reg.All(), 2)
	assert.Len(t, reg.ForKind(structure.KindTimeSeries), 1)
	assert.Empty(t, reg.ForKind(structure.KindSurvival))

	info := reg.All()[1].Info()
	assert.Equal(t, "closed_form", info.CostTier)
	assert.Equal(t, []structure.Kind{structure.KindTimeSeries}, info.Kinds)
}
