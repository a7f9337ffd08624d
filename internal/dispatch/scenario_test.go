package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statsuite/adapters/estimators"
	"statsuite/domain/core"
	"statsuite/domain/dataset"
	"statsuite/domain/result"
	"statsuite/domain/run"
	"statsuite/domain/structure"
	"statsuite/internal/compare"
	"statsuite/internal/provenance"
	"statsuite/internal/registry"
)

func builtinSuite(t *testing.T) *Suite {
	t.Helper()
	reg := registry.New()
	require.NoError(t, estimators.RegisterBuiltins(reg))
	return New(reg, nil, provenance.NewTracker(nil, 0, nil), defaultConfig(), nil)
}

// noisyPlayers is the player_id x season panel with small deterministic noise
// so that no estimator fits exactly
func noisyPlayers() *dataset.Dataset {
	noise := []float64{0.12, -0.08, 0.05, -0.11, 0.07, -0.04, 0.09, -0.13, 0.02, 0.06, -0.07, 0.1, -0.02, 0.04, -0.09}
	var ids []string
	var seasons, points []float64
	k := 0
	for p, id := range []string{"p1", "p2", "p3"} {
		for s := 0; s < 5; s++ {
			ids = append(ids, id)
			seasons = append(seasons, float64(2019+s))
			points = append(points, 18+2*float64(p)+0.4*float64(s)+noise[k])
			k++
		}
	}
	return dataset.MustNew("players",
		dataset.NewCategoricalColumn("player_id", ids),
		dataset.NewNumericColumn("season", seasons),
		dataset.NewNumericColumn("points_per_game", points),
	)
}

func TestScenario_PlayerPanelAuto(t *testing.T) {
	s := builtinSuite(t)
	data := noisyPlayers()

	st := s.Classifier().Detect(data)
	assert.Equal(t, structure.KindPanel, st.Kind)
	assert.Equal(t, "player_id", st.EntityCol)
	assert.Equal(t, "season", st.TimeCol)
	assert.Equal(t, 3, st.NEntities)
	assert.Equal(t, 5, st.NPeriods)
	assert.Equal(t, 1.0, st.Confidence)

	var names []string
	for _, d := range s.Recommend(data, st) {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"pooled", "fixed_effects", "random_effects", "first_difference"}, names)

	a, err := s.Analyze(context.Background(), data, AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "pooled", a.Result.MethodUsed)
	require.NotNil(t, a.Result.AIC)
	assert.Equal(t, "points_per_game", a.Result.Response)
	assert.NotEmpty(t, a.Result.Predictions)
	assert.False(t, a.Result.Timestamp.IsZero())
}

func TestScenario_PlayerPanelAllAndAverage(t *testing.T) {
	s := builtinSuite(t)

	a, err := s.Analyze(context.Background(), noisyPlayers(), AnalyzeOptions{Method: MethodAll})
	require.NoError(t, err)
	require.Len(t, a.Table.Entries, 4)

	best, ok := a.Table.Best()
	require.True(t, ok)
	assert.NotEqual(t, "pooled", best.Result.MethodUsed)

	total := 0.0
	for _, e := range a.Table.Entries {
		require.NotNil(t, e.Weight)
		total += *e.Weight
	}
	assert.InDelta(t, 1.0, total, 1e-9)

	results := make([]*result.SuiteResult, len(a.Table.Entries))
	for i, e := range a.Table.Entries {
		results[i] = e.Result
	}
	pred, err := compare.Average(results, result.MetricAIC)
	require.NoError(t, err)
	assert.Len(t, pred.Values, 15)
	assert.Len(t, s.Tracker().Query(run.Filter{Outcome: run.OutcomeSuccess}), 4)
}

func TestScenario_PlayerPanelCriteriaOnOneScale(t *testing.T) {
	s := builtinSuite(t)

	a, err := s.Analyze(context.Background(), noisyPlayers(), AnalyzeOptions{Method: MethodAll})
	require.NoError(t, err)

	weights := map[string]float64{}
	for _, e := range a.Table.Entries {
		require.NotNil(t, e.Result.AIC, e.Result.MethodUsed)
		assert.Equal(t, 15, e.Result.NObs, e.Result.MethodUsed)
		weights[e.Result.MethodUsed] = *e.Weight
	}

	// Player effects are large relative to the noise, so the marginal
	// likelihood of random effects falls well short of the dummies
	best, ok := a.Table.Best()
	require.True(t, ok)
	assert.Equal(t, "fixed_effects", best.Result.MethodUsed)
	assert.Greater(t, weights["fixed_effects"], 0.99)
	assert.Less(t, weights["random_effects"], weights["fixed_effects"])
}

func TestScenario_SurvivalMixesKaplanMeierAndParametric(t *testing.T) {
	s := builtinSuite(t)
	data := dataset.MustNew("trial",
		dataset.NewNumericColumn("survival_time", []float64{2, 3, 3, 5, 6, 8, 9, 11, 12, 15, 18, 21}),
		dataset.NewNumericColumn("event", []float64{1, 1, 0, 1, 1, 1, 0, 1, 1, 1, 0, 1}),
	)

	auto, err := s.Analyze(context.Background(), data, AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, structure.KindSurvival, auto.Structure.Kind)
	assert.Equal(t, "kaplan_meier", auto.Result.MethodUsed)
	assert.Nil(t, auto.Result.AIC)

	all, err := s.Analyze(context.Background(), data, AnalyzeOptions{Method: MethodAll})
	require.NoError(t, err)
	assert.Equal(t, "Surv(survival_time,event)", all.Table.Response)
	require.Len(t, all.Table.Entries, 3)
	assert.Equal(t, "kaplan_meier", all.Table.Entries[2].Result.MethodUsed)
	assert.Zero(t, all.Table.Entries[2].Rank)
}

func TestScenario_ExplicitMethodOnWrongShape(t *testing.T) {
	s := builtinSuite(t)

	_, err := s.Analyze(context.Background(), noisyPlayers(), AnalyzeOptions{Method: "kaplan_meier"})

	assert.True(t, core.IsPreconditionError(err))
	assert.Equal(t, 0, len(s.Tracker().Query(run.Filter{Outcome: run.OutcomeSuccess})))
}
