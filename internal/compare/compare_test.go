package compare

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statsuite/domain/core"
	"statsuite/domain/method"
	"statsuite/domain/result"
)

func fitted(name string, aic *float64, preds ...float64) *result.SuiteResult {
	return &result.SuiteResult{MethodUsed: name, Response: "y", AIC: aic, Predictions: preds}
}

func TestCompare_RanksAscendingAIC(t *testing.T) {
	table, err := Compare([]*result.SuiteResult{
		fitted("c", method.Float(130)),
		fitted("a", method.Float(100)),
		fitted("b", method.Float(110)),
	}, result.MetricAIC)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, table.Methods())
	assert.Equal(t, "y", table.Response)
	for i, e := range table.Entries {
		assert.Equal(t, i+1, e.Rank)
		require.NotNil(t, e.Weight)
	}
	best, ok := table.Best()
	require.True(t, ok)
	assert.Equal(t, "a", best.Result.MethodUsed)

	// Lower AIC never ranks below higher AIC
	for i := 1; i < len(table.Entries); i++ {
		assert.LessOrEqual(t, *table.Entries[i-1].Result.AIC, *table.Entries[i].Result.AIC)
		assert.GreaterOrEqual(t, *table.Entries[i-1].Weight, *table.Entries[i].Weight)
	}
}

func TestCompare_TiesShareRank(t *testing.T) {
	table, err := Compare([]*result.SuiteResult{
		fitted("a", method.Float(100)),
		fitted("b", method.Float(100)),
		fitted("c", method.Float(104)),
	}, result.MetricAIC)
	require.NoError(t, err)

	ranks := []int{table.Entries[0].Rank, table.Entries[1].Rank, table.Entries[2].Rank}
	assert.Equal(t, []int{1, 1, 3}, ranks)
	assert.Equal(t, []string{"a", "b", "c"}, table.Methods())
}

func TestCompare_MissingMetricUnranked(t *testing.T) {
	table, err := Compare([]*result.SuiteResult{
		fitted("kaplan_meier", nil),
		fitted("weibull", method.Float(80)),
	}, result.MetricAIC)
	require.NoError(t, err)

	assert.Equal(t, []string{"weibull", "kaplan_meier"}, table.Methods())
	assert.Equal(t, 1, table.Entries[0].Rank)
	assert.Equal(t, 0, table.Entries[1].Rank)
	assert.Nil(t, table.Entries[1].Weight)
	assert.InDelta(t, 1.0, *table.Entries[0].Weight, 1e-12)
}

func TestCompare_HigherIsBetterMetrics(t *testing.T) {
	low := &result.SuiteResult{MethodUsed: "low", Response: "y", RSquared: method.Float(0.2)}
	high := &result.SuiteResult{MethodUsed: "high", Response: "y", RSquared: method.Float(0.9)}

	table, err := Compare([]*result.SuiteResult{low, high}, result.MetricRSquared)
	require.NoError(t, err)

	assert.Equal(t, []string{"high", "low"}, table.Methods())
	assert.Nil(t, table.Entries[0].Weight)
}

func TestCompare_IncomparableResponses(t *testing.T) {
	other := fitted("b", method.Float(1))
	other.Response = "z"

	_, err := Compare([]*result.SuiteResult{fitted("a", method.Float(1)), other}, result.MetricAIC)

	require.Error(t, err)
	assert.True(t, core.IsIncomparable(err))
}

func TestCompare_UnknownMetric(t *testing.T) {
	_, err := Compare(nil, result.Metric("mse"))
	assert.Error(t, err)
}

func TestAkaikeWeights_RatioLaw(t *testing.T) {
	tests := []struct {
		name string
		lo   float64
		hi   float64
	}{
		{"small gap", 100, 102},
		{"zero gap", 50, 50},
		{"large values", 1e6, 1e6 + 7.5},
		{"large gap", 0, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := AkaikeWeights([]float64{tt.lo, tt.hi})
			require.Len(t, w, 2)
			assert.InDelta(t, 1.0, w[0]+w[1], 1e-12)
			assert.InEpsilon(t, math.Exp(0.5*(tt.hi-tt.lo)), w[0]/w[1], 1e-9)
		})
	}
}

func TestAkaikeWeights_Empty(t *testing.T) {
	assert.Nil(t, AkaikeWeights(nil))
}

func TestAverage_WeightsPredictions(t *testing.T) {
	a := fitted("a", method.Float(100), 1, 2, 3)
	b := fitted("b", method.Float(102), 3, 4, 5)

	pred, err := Average([]*result.SuiteResult{a, b}, result.MetricAIC)
	require.NoError(t, err)

	wa := 1 / (1 + math.Exp(-1))
	wb := 1 - wa
	assert.InDelta(t, wa, pred.Weights["a"], 1e-12)
	assert.InDelta(t, wb, pred.Weights["b"], 1e-12)
	for i := range pred.Values {
		assert.InDelta(t, wa*a.Predictions[i]+wb*b.Predictions[i], pred.Values[i], 1e-12)
	}
	assert.Equal(t, "y", pred.Response)
}

func TestAverage_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		results []*result.SuiteResult
		metric  result.Metric
	}{
		{"r squared metric", []*result.SuiteResult{fitted("a", method.Float(1), 1)}, result.MetricRSquared},
		{"empty", nil, result.MetricAIC},
		{"missing metric", []*result.SuiteResult{fitted("a", nil, 1)}, result.MetricAIC},
		{"missing predictions", []*result.SuiteResult{fitted("a", method.Float(1))}, result.MetricAIC},
		{"length mismatch", []*result.SuiteResult{fitted("a", method.Float(1), 1, 2), fitted("b", method.Float(2), 1)}, result.MetricAIC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Average(tt.results, tt.metric)
			assert.Error(t, err)
		})
	}
}
