package ols

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noise = []float64{0.3, -0.2, 0.1, -0.4, 0.25, -0.05, 0.15, -0.3, 0.2, -0.1}

func linear(n int) (x, y []float64) {
	for i := 0; i < n; i++ {
		xi := float64(i)
		x = append(x, xi)
		y = append(y, 1+2*xi+noise[i%len(noise)])
	}
	return x, y
}

func TestFit_RecoversCoefficients(t *testing.T) {
	x, y := linear(20)
	m, err := Fit(y, Design(true, x), []string{Intercept, "x"})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.Coef[0], 0.3)
	assert.InDelta(t, 2.0, m.Coef[1], 0.05)
	assert.Greater(t, m.RSquared, 0.99)
	assert.Less(t, m.PValue[1], 1e-6)
	assert.Equal(t, 20, m.N)
	assert.Equal(t, 2, m.K)

	slope, ok := m.Coefficient("x")
	assert.True(t, ok)
	assert.Equal(t, m.Coef[1], slope)

	p := m.Params()
	assert.Contains(t, p, "se_x")
	assert.Contains(t, p, "sigma2")
}

func TestFit_InformationCriteria(t *testing.T) {
	x, y := linear(12)
	m, err := Fit(y, Design(true, x), []string{Intercept, "x"})
	require.NoError(t, err)

	ll := -0.5 * 12 * (math.Log(2*math.Pi) + math.Log(m.RSS/12) + 1)
	assert.InDelta(t, ll, m.LogLikelihood(), 1e-9)
	assert.InDelta(t, 6-2*ll, m.AIC(), 1e-9)
	assert.InDelta(t, 3*math.Log(12)-2*ll, m.BIC(), 1e-9)
}

func TestFit_ResidualsSumToZeroWithIntercept(t *testing.T) {
	x, y := linear(15)
	m, err := Fit(y, Design(true, x), []string{Intercept, "x"})
	require.NoError(t, err)

	sum := 0.0
	for _, r := range m.Residuals {
		sum += r
	}
	assert.InDelta(t, 0, sum, 1e-9)
}

func TestFit_Singular(t *testing.T) {
	x, y := linear(10)
	_, err := Fit(y, Design(true, x, x), []string{Intercept, "a", "b"})
	assert.ErrorIs(t, err, ErrSingular)
}

func TestFit_TooFewObservations(t *testing.T) {
	_, err := Fit([]float64{1, 2}, Design(true, []float64{1, 2}), []string{Intercept, "x"})
	assert.ErrorIs(t, err, ErrTooFewObs)
}

func TestFit_ShapeMismatch(t *testing.T) {
	_, err := Fit([]float64{1, 2, 3}, Constant(4), []string{Intercept})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestFit_InterceptOnly(t *testing.T) {
	y := []float64{2, 4, 6, 8}
	m, err := Fit(y, Constant(4), []string{Intercept})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, m.Coef[0], 1e-12)
	assert.InDelta(t, 20.0, m.RSS, 1e-9)
}
