// Package ols is the least-squares core shared by the linear reference
// estimators.
package ols

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Intercept is the coefficient name of the constant column
const Intercept = "const"

// maxCondition bounds the design condition number before the fit is refused
const maxCondition = 1e12

var (
	ErrSingular      = errors.New("design matrix is singular")
	ErrTooFewObs     = errors.New("fewer observations than parameters")
	ErrShapeMismatch = errors.New("response and design lengths differ")
)

// Model is a fitted linear regression
type Model struct {
	Names     []string
	Coef      []float64
	StdErr    []float64
	TStat     []float64
	PValue    []float64
	Fitted    []float64
	Residuals []float64
	N         int
	K         int
	RSS       float64
	TSS       float64
	Sigma2    float64
	RSquared  float64
}

// Design builds an n×k design matrix from columns, prepending a constant
// column when intercept is set
func Design(intercept bool, cols ...[]float64) *mat.Dense {
	k := len(cols)
	if intercept {
		k++
	}
	n := 0
	if len(cols) > 0 {
		n = len(cols[0])
	}
	if intercept && len(cols) == 0 {
		return nil
	}
	x := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		j := 0
		if intercept {
			x.Set(i, 0, 1)
			j = 1
		}
		for _, c := range cols {
			x.Set(i, j, c[i])
			j++
		}
	}
	return x
}

// Constant returns an n×1 design of ones
func Constant(n int) *mat.Dense {
	x := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
	}
	return x
}

// Fit regresses y on x by QR least squares. names labels the columns of x.
func Fit(y []float64, x *mat.Dense, names []string) (*Model, error) {
	if x == nil {
		return nil, ErrSingular
	}
	n, k := x.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrShapeMismatch, len(y), n)
	}
	if n <= k {
		return nil, fmt.Errorf("%w: n=%d k=%d", ErrTooFewObs, n, k)
	}

	var qr mat.QR
	qr.Factorize(x)
	if c := qr.Cond(); math.IsInf(c, 0) || c > maxCondition {
		return nil, fmt.Errorf("%w (condition number %.3g)", ErrSingular, c)
	}

	yv := mat.NewVecDense(n, append([]float64(nil), y...))
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, yv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	m := &Model{Names: names, N: n, K: k, Coef: make([]float64, k)}
	for j := 0; j < k; j++ {
		m.Coef[j] = beta.At(j, 0)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, mat.NewVecDense(k, m.Coef))
	m.Fitted = make([]float64, n)
	m.Residuals = make([]float64, n)
	mean := stat.Mean(y, nil)
	for i := 0; i < n; i++ {
		m.Fitted[i] = fitted.AtVec(i)
		m.Residuals[i] = y[i] - m.Fitted[i]
		d := y[i] - mean
		m.TSS += d * d
	}
	m.RSS = floats.Dot(m.Residuals, m.Residuals)
	m.Sigma2 = m.RSS / float64(n-k)
	if m.TSS > 0 {
		m.RSquared = stat.RSquaredFrom(m.Fitted, y, nil)
	}

	if err := m.inference(x); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) inference(x *mat.Dense) error {
	var xtx, inv mat.Dense
	xtx.Mul(x.T(), x)
	if err := inv.Inverse(&xtx); err != nil {
		return fmt.Errorf("%w: %v", ErrSingular, err)
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(m.N - m.K)}
	m.StdErr = make([]float64, m.K)
	m.TStat = make([]float64, m.K)
	m.PValue = make([]float64, m.K)
	for j := 0; j < m.K; j++ {
		m.StdErr[j] = math.Sqrt(m.Sigma2 * inv.At(j, j))
		if m.StdErr[j] > 0 {
			m.TStat[j] = m.Coef[j] / m.StdErr[j]
			m.PValue[j] = 2 * t.Survival(math.Abs(m.TStat[j]))
		} else {
			m.PValue[j] = math.NaN()
		}
	}
	return nil
}

// Coefficient returns the estimate for a named column
func (m *Model) Coefficient(name string) (float64, bool) {
	for i, n := range m.Names {
		if n == name {
			return m.Coef[i], true
		}
	}
	return 0, false
}

// LogLikelihood is the Gaussian log-likelihood at the MLE variance
func (m *Model) LogLikelihood() float64 {
	return GaussianLogLikelihood(m.RSS, m.N)
}

// AIC counts the coefficients plus the error variance
func (m *Model) AIC() float64 {
	aic, _ := InformationCriteria(m.LogLikelihood(), m.K+1, m.N)
	return aic
}

// BIC counts the coefficients plus the error variance
func (m *Model) BIC() float64 {
	_, bic := InformationCriteria(m.LogLikelihood(), m.K+1, m.N)
	return bic
}

// Params flattens the coefficients, keyed by column name, with their
// standard errors under "se_<name>"
func (m *Model) Params() map[string]float64 {
	out := make(map[string]float64, 2*m.K+1)
	for i, name := range m.Names {
		out[name] = m.Coef[i]
		out["se_"+name] = m.StdErr[i]
	}
	out["sigma2"] = m.Sigma2
	return out
}

// GaussianLogLikelihood returns the concentrated normal log-likelihood for a
// residual sum of squares over n observations
func GaussianLogLikelihood(rss float64, n int) float64 {
	nf := float64(n)
	return -0.5 * nf * (math.Log(2*math.Pi) + math.Log(rss/nf) + 1)
}

// InformationCriteria returns AIC and BIC for k free parameters
func InformationCriteria(ll float64, k, n int) (aic, bic float64) {
	aic = 2*float64(k) - 2*ll
	bic = float64(k)*math.Log(float64(n)) - 2*ll
	return aic, bic
}
