package estimators

import (
	"fmt"

	"statsuite/domain/method"
	"statsuite/domain/structure"
	"statsuite/internal/registry"
)

// Builtins returns the descriptors of every reference adapter
func Builtins() []registry.MethodDescriptor {
	panel := []structure.Kind{structure.KindPanel}
	series := []structure.Kind{structure.KindTimeSeries}
	survival := []structure.Kind{structure.KindSurvival}
	causal := []structure.Kind{structure.KindCrossSectionalCausal}

	return []registry.MethodDescriptor{
		{Name: NamePooled, Category: method.CategoryPanel, Kinds: panel, CostTier: method.TierClosedForm, Suitability: 1, Adapter: NewPooledOLS()},
		{Name: NameFixedEffects, Category: method.CategoryPanel, Kinds: panel, CostTier: method.TierClosedForm, Suitability: 2, Adapter: NewFixedEffects()},
		{Name: NameRandomEffects, Category: method.CategoryPanel, Kinds: panel, CostTier: method.TierClosedForm, Suitability: 3, Adapter: NewRandomEffects()},
		{Name: NameFirstDifference, Category: method.CategoryPanel, Kinds: panel, CostTier: method.TierClosedForm, Suitability: 4, Adapter: NewFirstDifference()},

		{Name: NameAR1, Category: method.CategoryTimeSeries, Kinds: series, CostTier: method.TierClosedForm, Suitability: 1, Adapter: NewAR1()},
		{Name: NameRandomWalk, Category: method.CategoryTimeSeries, Kinds: series, CostTier: method.TierClosedForm, Suitability: 2, Adapter: NewRandomWalk()},
		{Name: NameAR2, Category: method.CategoryTimeSeries, Kinds: series, CostTier: method.TierClosedForm, Suitability: 3, Adapter: NewAR2()},
		{Name: NameBayesianAR1, Category: method.CategoryBayesian, Kinds: series, CostTier: method.TierSimulation, Suitability: 1, Adapter: NewBayesianAR1()},

		{Name: NameKaplanMeier, Category: method.CategorySurvival, Kinds: survival, CostTier: method.TierClosedForm, Suitability: 1, Adapter: NewKaplanMeier()},
		{Name: NameExponential, Category: method.CategorySurvival, Kinds: survival, CostTier: method.TierClosedForm, Suitability: 2, Adapter: NewExponential()},
		{Name: NameWeibull, Category: method.CategorySurvival, Kinds: survival, CostTier: method.TierIterative, Suitability: 1, Adapter: NewWeibull()},

		{Name: NameDifferenceInMeans, Category: method.CategoryCausal, Kinds: causal, CostTier: method.TierClosedForm, Suitability: 1, Adapter: NewDifferenceInMeans()},
		{Name: NameRegressionAdjustment, Category: method.CategoryCausal, Kinds: causal, CostTier: method.TierClosedForm, Suitability: 2, Adapter: NewRegressionAdjustment()},
	}
}

// RegisterBuiltins adds every reference adapter to reg
func RegisterBuiltins(reg *registry.Registry) error {
	for _, desc := range Builtins() {
		if err := reg.Register(desc); err != nil {
			return fmt.Errorf("register %s: %w", desc.Name, err)
		}
	}
	return nil
}
