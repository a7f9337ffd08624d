package estimators

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statsuite/domain/core"
	"statsuite/domain/dataset"
	"statsuite/domain/method"
	"statsuite/domain/structure"
	"statsuite/internal/classifier"
	"statsuite/internal/registry"
	"statsuite/ports"
)

var panelNoise = []float64{0.12, -0.08, 0.05, -0.11, 0.07, -0.04, 0.09, -0.13, 0.02, 0.06, -0.07, 0.1, -0.02, 0.04, -0.09}

// playerPanel is 3 players over 5 seasons with player effects of 3 points
// and a 0.5 point seasonal trend
func playerPanel() *dataset.Dataset {
	var ids []string
	var seasons, points []float64
	k := 0
	for p, id := range []string{"p1", "p2", "p3"} {
		for s := 0; s < 5; s++ {
			ids = append(ids, id)
			seasons = append(seasons, float64(2019+s))
			points = append(points, 10+3*float64(p)+0.5*float64(s)+panelNoise[k])
			k++
		}
	}
	return dataset.MustNew("players",
		dataset.NewCategoricalColumn("player_id", ids),
		dataset.NewNumericColumn("season", seasons),
		dataset.NewNumericColumn("points_per_game", points),
	)
}

func panelStructure() structure.DataStructure {
	return structure.DataStructure{Kind: structure.KindPanel, EntityCol: "player_id", TimeCol: "season", OutcomeCol: "points_per_game"}
}

var seriesNoise = []float64{0.2, -0.1, 0.15, -0.25, 0.05, 0.1, -0.2, 0.3, -0.05, 0.0, 0.12, -0.18, 0.22, -0.08, 0.04}

// ar1Series follows y_t = 2 + 0.6 y_{t-1} + e_t from y_0 = 0
func ar1Series(n int) *dataset.Dataset {
	months := make([]float64, n)
	sales := make([]float64, n)
	for i := 0; i < n; i++ {
		months[i] = float64(i + 1)
		if i > 0 {
			sales[i] = 2 + 0.6*sales[i-1] + seriesNoise[i%len(seriesNoise)]
		}
	}
	return dataset.MustNew("sales",
		dataset.NewNumericColumn("month", months),
		dataset.NewNumericColumn("sales", sales),
	)
}

func seriesStructure() structure.DataStructure {
	return structure.DataStructure{Kind: structure.KindTimeSeries, TimeCol: "month", OutcomeCol: "sales"}
}

func lifetimeData(durations, events []float64) *dataset.Dataset {
	return dataset.MustNew("trial",
		dataset.NewNumericColumn("duration", durations),
		dataset.NewNumericColumn("event", events),
	)
}

func survivalStructure() structure.DataStructure {
	return structure.DataStructure{Kind: structure.KindSurvival, DurationCol: "duration", EventCol: "event"}
}

func experiment() *dataset.Dataset {
	return dataset.MustNew("experiment",
		dataset.NewNumericColumn("treatment", []float64{1, 1, 1, 1, 0, 0, 0, 0}),
		dataset.NewNumericColumn("outcome", []float64{5, 6, 7, 8, 1, 2, 3, 4}),
	)
}

func causalStructure() structure.DataStructure {
	return structure.DataStructure{Kind: structure.KindCrossSectionalCausal, TreatmentCol: "treatment", OutcomeCol: "outcome"}
}

func fit(t *testing.T, a ports.MethodAdapter, data *dataset.Dataset, st structure.DataStructure, params method.Params) (method.NativeResult, method.Metrics) {
	t.Helper()
	require.NoError(t, a.CheckPreconditions(data, st))
	native, err := a.Fit(context.Background(), data, st, params)
	require.NoError(t, err)
	m, err := a.ExtractMetrics(native)
	require.NoError(t, err)
	return native, m
}

func TestRegisterBuiltins(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterBuiltins(reg))
	assert.Len(t, reg.All(), len(Builtins()))

	err := RegisterBuiltins(reg)
	assert.ErrorIs(t, err, core.ErrDuplicateMethod)
}

func TestBuiltins_RecommendPanelOrder(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterBuiltins(reg))
	data := playerPanel()
	st := classifier.New(0, nil).Detect(data)
	require.Equal(t, structure.KindPanel, st.Kind)

	var names []string
	for _, d := range registry.NewRecommender(reg, nil).Recommend(data, st) {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{NamePooled, NameFixedEffects, NameRandomEffects, NameFirstDifference}, names)
}

func TestPooledOLS_Fit(t *testing.T) {
	native, m := fit(t, NewPooledOLS(), playerPanel(), panelStructure(), nil)

	require.NotNil(t, m.AIC)
	assert.False(t, math.IsInf(*m.AIC, 0))
	assert.Equal(t, 15, m.NObs)
	assert.InDelta(t, 0.5, m.Params[trendName], 0.2)
	assert.Equal(t, 3.0, m.Params["n_entities"])

	pred, err := NewPooledOLS().Predict(native)
	require.NoError(t, err)
	assert.Len(t, pred, 15)
}

func TestFixedEffects_AbsorbsEntityEffects(t *testing.T) {
	_, fe := fit(t, NewFixedEffects(), playerPanel(), panelStructure(), nil)
	_, pooled := fit(t, NewPooledOLS(), playerPanel(), panelStructure(), nil)

	assert.InDelta(t, 0.5, fe.Params[trendName], 0.05)
	assert.Less(t, *fe.AIC, *pooled.AIC)
	for k := range fe.Params {
		assert.False(t, strings.HasPrefix(k, "entity["), "dummy %s exported", k)
	}
}

func TestRandomEffects_VarianceComponents(t *testing.T) {
	_, m := fit(t, NewRandomEffects(), playerPanel(), panelStructure(), nil)

	assert.Greater(t, m.Params["sigma_u2"], 0.0)
	assert.Greater(t, m.Params["theta"], 0.5)
	assert.InDelta(t, 0.5, m.Params[trendName], 0.05)
}

// balancedNoEffects gives every player the same mean, so the between
// variance is zero
func balancedNoEffects() *dataset.Dataset {
	var ids []string
	var seasons, points []float64
	for id, values := range map[string][]float64{
		"p1": {1, 3, 2, 5},
		"p2": {3, 2, 5, 1},
		"p3": {5, 1, 3, 2},
	} {
		for s, v := range values {
			ids = append(ids, id)
			seasons = append(seasons, float64(2019+s))
			points = append(points, v)
		}
	}
	return dataset.MustNew("players",
		dataset.NewCategoricalColumn("player_id", ids),
		dataset.NewNumericColumn("season", seasons),
		dataset.NewNumericColumn("points_per_game", points),
	)
}

func TestRandomEffects_ZeroBetweenVarianceCostsOneParameter(t *testing.T) {
	native, re := fit(t, NewRandomEffects(), balancedNoEffects(), panelStructure(), nil)
	_, pooled := fit(t, NewPooledOLS(), balancedNoEffects(), panelStructure(), nil)

	assert.Equal(t, 0.0, re.Params["sigma_u2"])
	assert.Equal(t, 0.0, re.Params["theta"])
	assert.NotEmpty(t, native.(*LinearFit).Warnings)
	assert.InDelta(t, *pooled.LogLikelihood, *re.LogLikelihood, 1e-9)
	assert.InDelta(t, *pooled.AIC+2, *re.AIC, 1e-9)
	assert.Equal(t, pooled.NObs, re.NObs)
}

func TestRandomEffects_LikelihoodOnOutcomeScale(t *testing.T) {
	native, re := fit(t, NewRandomEffects(), playerPanel(), panelStructure(), nil)
	_, fe := fit(t, NewFixedEffects(), playerPanel(), panelStructure(), nil)

	// The marginal likelihood over entity effects never beats the best
	// fixed set of effects
	assert.LessOrEqual(t, *re.LogLikelihood, *fe.LogLikelihood)
	assert.Equal(t, fe.NObs, re.NObs)

	model := native.(*LinearFit).Model
	assert.Less(t, *re.LogLikelihood, model.LogLikelihood(), "jacobian of the quasi-demeaning applied")
}

func TestPanel_CriteriaShareTheSample(t *testing.T) {
	for _, a := range []ports.MethodAdapter{NewPooledOLS(), NewFixedEffects(), NewRandomEffects(), NewFirstDifference()} {
		_, m := fit(t, a, playerPanel(), panelStructure(), nil)
		require.NotNil(t, m.AIC)
		assert.Equal(t, 15, m.NObs)
	}
}

func TestFirstDifference_Drift(t *testing.T) {
	native, m := fit(t, NewFirstDifference(), playerPanel(), panelStructure(), nil)

	assert.InDelta(t, 0.5, m.Params["const"], 0.1)
	assert.Equal(t, 15, m.NObs)
	assert.Equal(t, 12.0, m.Params["n_diffs"])
	pred, err := NewFirstDifference().Predict(native)
	require.NoError(t, err)
	assert.Len(t, pred, 15)
}

func TestPanel_Preconditions(t *testing.T) {
	single := dataset.MustNew("one",
		dataset.NewCategoricalColumn("player_id", []string{"p1", "p1", "p1"}),
		dataset.NewNumericColumn("season", []float64{1, 2, 3}),
		dataset.NewNumericColumn("points_per_game", []float64{1, 2, 3}),
	)
	err := NewPooledOLS().CheckPreconditions(single, panelStructure())
	assert.True(t, core.IsPreconditionError(err))

	noEntity := panelStructure()
	noEntity.EntityCol = ""
	err = NewFixedEffects().CheckPreconditions(playerPanel(), noEntity)
	var pre *core.PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, "entity", pre.Column)
}

func TestAR1_RecoversPersistence(t *testing.T) {
	native, m := fit(t, NewAR1(), ar1Series(30), seriesStructure(), nil)

	assert.InDelta(t, 0.6, m.Params["phi1"], 0.1)
	assert.InDelta(t, 5.0, m.Params["mean"], 0.5)
	assert.Equal(t, 28, m.NObs)
	pred, err := NewAR1().Predict(native)
	require.NoError(t, err)
	assert.Len(t, pred, 30)
}

func TestAR2_NeedsLongerSeries(t *testing.T) {
	err := NewAR2().CheckPreconditions(ar1Series(5), seriesStructure())
	assert.True(t, core.IsPreconditionError(err))

	_, m := fit(t, NewAR2(), ar1Series(30), seriesStructure(), nil)
	assert.Contains(t, m.Params, "phi2")
}

func TestTimeSeries_CriteriaShareTheSample(t *testing.T) {
	data := ar1Series(30)
	_, ar1 := fit(t, NewAR1(), data, seriesStructure(), nil)
	_, ar2 := fit(t, NewAR2(), data, seriesStructure(), nil)
	_, rw := fit(t, NewRandomWalk(), data, seriesStructure(), nil)

	assert.Equal(t, ar1.NObs, ar2.NObs)
	assert.Equal(t, ar1.NObs, rw.NObs)
	// Nested models on one sample: the extra lag cannot lower the
	// likelihood and the unit root restriction cannot raise it
	assert.GreaterOrEqual(t, *ar2.LogLikelihood, *ar1.LogLikelihood)
	assert.LessOrEqual(t, *rw.LogLikelihood, *ar1.LogLikelihood)
}

func TestRandomWalk_Fit(t *testing.T) {
	native, m := fit(t, NewRandomWalk(), ar1Series(20), seriesStructure(), nil)

	assert.NotNil(t, m.AIC)
	assert.Contains(t, m.Params, "drift")
	pred, err := NewRandomWalk().Predict(native)
	require.NoError(t, err)
	assert.Len(t, pred, 20)
}

func TestBayesianAR1_SeededAndWithoutIC(t *testing.T) {
	params := method.Params{"draws": 1500, "burn_in": 300, "seed": 7}
	a := NewBayesianAR1()
	first, m := fit(t, a, ar1Series(30), seriesStructure(), params)
	second, _ := fit(t, a, ar1Series(30), seriesStructure(), params)

	assert.Equal(t, first.(*Posterior).Phi, second.(*Posterior).Phi)
	assert.InDelta(t, 0.6, m.Params["phi1"], 0.15)
	assert.Nil(t, m.AIC)
	assert.Nil(t, m.BIC)
	assert.Greater(t, m.Params["acceptance"], 0.0)
}

func TestBayesianAR1_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBayesianAR1().Fit(ctx, ar1Series(30), seriesStructure(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKaplanMeier_ProductLimit(t *testing.T) {
	data := lifetimeData([]float64{1, 2, 3, 4, 5}, []float64{1, 1, 0, 1, 1})
	a := NewKaplanMeier()
	native, m := fit(t, a, data, survivalStructure(), nil)

	curve := native.(*Curve)
	assert.Equal(t, []float64{1, 2, 4, 5}, curve.Times)
	assert.InDeltaSlice(t, []float64{0.8, 0.6, 0.3, 0}, curve.Survival, 1e-12)
	assert.Equal(t, 4.0, m.Params["median_survival"])
	assert.Nil(t, m.AIC)
	assert.Nil(t, m.LogLikelihood)

	pred, err := a.Predict(native)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.8, 0.6, 0.6, 0.3, 0}, pred, 1e-12)
}

func TestExponential_ClosedForm(t *testing.T) {
	data := lifetimeData([]float64{1, 2, 3, 4, 5}, []float64{1, 1, 0, 1, 1})
	_, m := fit(t, NewExponential(), data, survivalStructure(), nil)

	rate := 4.0 / 15.0
	assert.InDelta(t, rate, m.Params["rate"], 1e-12)
	assert.InDelta(t, 4*math.Log(rate)-4, *m.LogLikelihood, 1e-9)
	assert.InDelta(t, 2-2*(4*math.Log(rate)-4), *m.AIC, 1e-9)
}

func TestWeibull_NestsExponential(t *testing.T) {
	durations := []float64{2, 3, 3, 5, 6, 8, 9, 11, 12, 15, 18, 21}
	events := []float64{1, 1, 0, 1, 1, 1, 0, 1, 1, 1, 0, 1}
	data := lifetimeData(durations, events)

	native, wb := fit(t, NewWeibull(), data, survivalStructure(), nil)
	_, exp := fit(t, NewExponential(), data, survivalStructure(), nil)

	assert.GreaterOrEqual(t, *wb.LogLikelihood, *exp.LogLikelihood-1e-9)
	assert.Greater(t, wb.Params["shape"], 0.0)
	assert.Greater(t, wb.Params["iterations"], 0.0)

	pred, err := NewWeibull().Predict(native)
	require.NoError(t, err)
	for _, s := range pred {
		assert.True(t, s > 0 && s < 1)
	}
}

func TestWeibull_RejectsZeroDurations(t *testing.T) {
	data := lifetimeData([]float64{0, 2, 3}, []float64{1, 1, 1})
	err := NewWeibull().CheckPreconditions(data, survivalStructure())
	var pre *core.PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, "duration", pre.Column)

	assert.NoError(t, NewExponential().CheckPreconditions(data, survivalStructure()))
}

func TestSurvival_NoEvents(t *testing.T) {
	data := lifetimeData([]float64{1, 2, 3}, []float64{0, 0, 0})
	assert.True(t, core.IsPreconditionError(NewKaplanMeier().CheckPreconditions(data, survivalStructure())))
}

func TestDifferenceInMeans_Welch(t *testing.T) {
	a := NewDifferenceInMeans()
	native, m := fit(t, a, experiment(), causalStructure(), nil)

	assert.InDelta(t, 4.0, m.Params["ate"], 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/6.0), m.Params["se"], 1e-9)
	assert.InDelta(t, 6.0, m.Params["df"], 1e-9)
	assert.Less(t, m.Params["p_value"], 0.01)
	assert.Less(t, m.Params["ci_low"], 4.0)
	assert.Nil(t, m.AIC)

	pred, err := a.Predict(native)
	require.NoError(t, err)
	assert.Equal(t, []float64{6.5, 6.5, 6.5, 6.5, 2.5, 2.5, 2.5, 2.5}, pred)
}

func TestRegressionAdjustment_MatchesDifferenceWithoutCovariates(t *testing.T) {
	_, m := fit(t, NewRegressionAdjustment(), experiment(), causalStructure(), nil)

	assert.InDelta(t, 4.0, m.Params["ate"], 1e-9)
	assert.NotNil(t, m.AIC)
}

func TestCausal_NeedsBothArms(t *testing.T) {
	data := dataset.MustNew("one-arm",
		dataset.NewNumericColumn("treatment", []float64{1, 1, 1, 0}),
		dataset.NewNumericColumn("outcome", []float64{1, 2, 3, 4}),
	)
	err := NewDifferenceInMeans().CheckPreconditions(data, causalStructure())
	var pre *core.PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, "treatment", pre.Column)
}

func TestAdapters_RejectForeignNativeResults(t *testing.T) {
	for _, d := range Builtins() {
		_, err := d.Adapter.ExtractMetrics("not a model")
		assert.Error(t, err, d.Name)
	}
}
