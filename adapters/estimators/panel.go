package estimators

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"statsuite/adapters/estimators/ols"
	"statsuite/domain/core"
	"statsuite/domain/dataset"
	"statsuite/domain/method"
	"statsuite/domain/structure"
)

// Panel method names
const (
	NamePooled          = "pooled"
	NameFixedEffects    = "fixed_effects"
	NameRandomEffects   = "random_effects"
	NameFirstDifference = "first_difference"
)

// withConstant builds a design with a constant column, or the constant alone
// when there are no regressors
func withConstant(n int, cols [][]float64) *mat.Dense {
	if len(cols) == 0 {
		return ols.Constant(n)
	}
	return ols.Design(true, cols...)
}

func regressorNames(names []string) []string {
	return append([]string{ols.Intercept}, names...)
}

// PooledOLS ignores the panel structure and regresses the outcome on the
// covariates, or on a period trend when there are none
type PooledOLS struct{ linear }

// NewPooledOLS creates the pooled OLS adapter
func NewPooledOLS() *PooledOLS { return &PooledOLS{} }

func (a *PooledOLS) CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error {
	_, err := buildPanel(NamePooled, data, st, true)
	return err
}

func (a *PooledOLS) Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, _ method.Params) (method.NativeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := buildPanel(NamePooled, data, st, true)
	if err != nil {
		return nil, err
	}
	model, err := ols.Fit(f.y, withConstant(f.n(), f.x), regressorNames(f.names))
	if err != nil {
		return nil, err
	}
	return &LinearFit{
		Method: NamePooled,
		Model:  model,
		Extra:  map[string]float64{"n_entities": float64(len(f.groups))},
	}, nil
}

// FixedEffects is the least-squares dummy variable estimator
type FixedEffects struct{ linear }

// NewFixedEffects creates the LSDV fixed-effects adapter
func NewFixedEffects() *FixedEffects { return &FixedEffects{} }

func (a *FixedEffects) CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error {
	_, err := buildPanel(NameFixedEffects, data, st, true)
	return err
}

func (a *FixedEffects) Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, _ method.Params) (method.NativeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := buildPanel(NameFixedEffects, data, st, true)
	if err != nil {
		return nil, err
	}
	model, err := lsdv(f)
	if err != nil {
		return nil, err
	}
	return &LinearFit{
		Method: NameFixedEffects,
		Model:  model,
		Extra:  map[string]float64{"n_entities": float64(len(f.groups))},
		keep:   keepNames(regressorNames(f.names)...),
	}, nil
}

// lsdv regresses the outcome on the regressors plus one dummy per entity
// after the first
func lsdv(f *panelFrame) (*ols.Model, error) {
	cols := append([][]float64(nil), f.x...)
	names := regressorNames(f.names)
	for g := 1; g < len(f.groups); g++ {
		d := make([]float64, f.n())
		for _, r := range f.groups[g] {
			d[r] = 1
		}
		cols = append(cols, d)
		names = append(names, fmt.Sprintf("entity[%s]", f.entityKey[g]))
	}
	return ols.Fit(f.y, ols.Design(true, cols...), names)
}

// RandomEffects is the Swamy-Arora feasible GLS estimator: the outcome and
// regressors are quasi-demeaned by theta_i = 1 - sqrt(se2 / (T_i su2 + se2))
type RandomEffects struct{ linear }

// NewRandomEffects creates the random-effects adapter
func NewRandomEffects() *RandomEffects { return &RandomEffects{} }

func (a *RandomEffects) CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error {
	f, err := buildPanel(NameRandomEffects, data, st, true)
	if err != nil {
		return err
	}
	if f.n()-len(f.groups)-len(f.x) <= 0 {
		return core.NewPreconditionError(NameRandomEffects, "not enough within-entity observations for the variance components")
	}
	return nil
}

func (a *RandomEffects) Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, _ method.Params) (method.NativeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := buildPanel(NameRandomEffects, data, st, true)
	if err != nil {
		return nil, err
	}

	within, err := lsdv(f)
	if err != nil {
		return nil, fmt.Errorf("within regression: %w", err)
	}
	dfWithin := f.n() - len(f.groups) - len(f.x)
	if dfWithin <= 0 {
		return nil, fmt.Errorf("within regression has %d degrees of freedom", dfWithin)
	}
	sigmaE2 := within.RSS / float64(dfWithin)

	ybar := f.means(f.y)
	xbar := make([][]float64, len(f.x))
	var between [][]float64
	for j, x := range f.x {
		xbar[j] = f.means(x)
		if stat.Variance(xbar[j], nil) > 1e-12 {
			between = append(between, xbar[j])
		}
	}
	bModel, err := ols.Fit(ybar, withConstant(len(ybar), between), nil)
	if err != nil {
		return nil, fmt.Errorf("between regression: %w", err)
	}
	sigmaB2 := bModel.RSS / float64(bModel.N-bModel.K)

	invT := 0.0
	for _, g := range f.groups {
		invT += 1 / float64(len(g))
	}
	tbar := float64(len(f.groups)) / invT
	sigmaU2 := sigmaB2 - sigmaE2/tbar
	if sigmaU2 < 0 {
		sigmaU2 = 0
	}

	n := f.n()
	yStar := make([]float64, n)
	cols := make([][]float64, len(f.x)+1)
	for j := range cols {
		cols[j] = make([]float64, n)
	}
	// The quasi-demeaning map has determinant 1 - theta_i per entity, so
	// the sum of their logs moves the likelihood back onto the outcome
	thetaSum, logJacobian := 0.0, 0.0
	for g, rows := range f.groups {
		theta := 1.0
		if denom := float64(len(rows))*sigmaU2 + sigmaE2; denom > 0 {
			theta = 1 - math.Sqrt(sigmaE2/denom)
		}
		if theta >= 1 {
			return nil, fmt.Errorf("entity %s has no within variance left after quasi-demeaning", f.entityKey[g])
		}
		thetaSum += theta
		logJacobian += math.Log(1 - theta)
		for _, r := range rows {
			yStar[r] = f.y[r] - theta*ybar[g]
			cols[0][r] = 1 - theta
			for j, x := range f.x {
				cols[j+1][r] = x[r] - theta*xbar[j][g]
			}
		}
	}
	model, err := ols.Fit(yStar, ols.Design(false, cols...), regressorNames(f.names))
	if err != nil {
		return nil, err
	}

	predicted := make([]float64, n)
	for r := 0; r < n; r++ {
		predicted[r] = model.Coef[0]
		for j, x := range f.x {
			predicted[r] += model.Coef[j+1] * x[r]
		}
	}
	fit := &LinearFit{
		Method:    NameRandomEffects,
		Model:     model,
		Predicted: predicted,
		score: &likelihood{
			ll:       model.LogLikelihood() + logJacobian,
			k:        model.K + 2,
			n:        n,
			rSquared: stat.RSquaredFrom(predicted, f.y, nil),
		},
		Extra: map[string]float64{
			"n_entities": float64(len(f.groups)),
			"sigma_u2":   sigmaU2,
			"sigma_e2":   sigmaE2,
			"theta":      thetaSum / float64(len(f.groups)),
		},
	}
	if sigmaU2 == 0 {
		fit.Warnings = append(fit.Warnings, "between-entity variance estimated at zero; estimates equal pooled OLS")
	}
	return fit, nil
}

// FirstDifference regresses within-entity changes of the outcome on changes
// of the covariates; the constant is the common drift
type FirstDifference struct{ linear }

// NewFirstDifference creates the first-difference adapter
func NewFirstDifference() *FirstDifference { return &FirstDifference{} }

func (a *FirstDifference) CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error {
	f, err := buildPanel(NameFirstDifference, data, st, false)
	if err != nil {
		return err
	}
	if diffs := f.n() - len(f.groups); diffs <= len(f.x)+1 {
		return core.NewPreconditionError(NameFirstDifference, fmt.Sprintf("only %d within-entity differences", diffs))
	}
	return nil
}

func (a *FirstDifference) Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, _ method.Params) (method.NativeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := buildPanel(NameFirstDifference, data, st, false)
	if err != nil {
		return nil, err
	}

	var dy []float64
	dx := make([][]float64, len(f.x))
	for _, rows := range f.groups {
		for i := 1; i < len(rows); i++ {
			cur, prev := rows[i], rows[i-1]
			dy = append(dy, f.y[cur]-f.y[prev])
			for j, x := range f.x {
				dx[j] = append(dx[j], x[cur]-x[prev])
			}
		}
	}
	model, err := ols.Fit(dy, withConstant(len(dy), dx), regressorNames(f.names))
	if err != nil {
		return nil, err
	}

	// Each entity's first level has no predecessor and is scored against
	// the normal fitted to all first levels. Later levels are predicted one
	// step ahead from the previous observation, whose density is that of
	// the difference.
	first := make([]float64, len(f.groups))
	for g, rows := range f.groups {
		first[g] = f.y[rows[0]]
	}
	firstMean := stat.Mean(first, nil)
	firstRSS := 0.0
	for _, v := range first {
		firstRSS += (v - firstMean) * (v - firstMean)
	}

	predicted := make([]float64, f.n())
	k := 0
	for _, rows := range f.groups {
		predicted[rows[0]] = firstMean
		for i := 1; i < len(rows); i++ {
			predicted[rows[i]] = f.y[rows[i-1]] + model.Fitted[k]
			k++
		}
	}
	return &LinearFit{
		Method:    NameFirstDifference,
		Model:     model,
		Predicted: predicted,
		Extra: map[string]float64{
			"n_entities": float64(len(f.groups)),
			"n_diffs":    float64(model.N),
			"first_mean": firstMean,
		},
		score: &likelihood{
			ll:       model.LogLikelihood() + ols.GaussianLogLikelihood(firstRSS, len(first)),
			k:        model.K + 3,
			n:        f.n(),
			rSquared: stat.RSquaredFrom(predicted, f.y, nil),
		},
	}, nil
}
