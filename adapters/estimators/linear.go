package estimators

import (
	"fmt"

	"statsuite/adapters/estimators/ols"
	"statsuite/domain/method"
)

// LinearFit is the native result of every regression-based adapter
type LinearFit struct {
	Method    string
	Model     *ols.Model
	Predicted []float64          // fitted response on the original scale
	Extra     map[string]float64 // method-specific estimates
	Warnings  []string
	keep      map[string]bool // coefficient names exported as params; nil keeps all
	score     *likelihood     // set when the regression ran on a transformed response
}

// likelihood restates a fit on the raw response so its criteria compare
// with the other methods of the same kind
type likelihood struct {
	ll       float64
	k        int // free parameters including variance components
	n        int
	rSquared float64
}

// linear implements ExtractMetrics and Predict for LinearFit results
type linear struct{}

func asLinear(native method.NativeResult) (*LinearFit, error) {
	fit, ok := native.(*LinearFit)
	if !ok || fit == nil || fit.Model == nil {
		return nil, fmt.Errorf("unexpected native result %T", native)
	}
	return fit, nil
}

func (linear) ExtractMetrics(native method.NativeResult) (method.Metrics, error) {
	fit, err := asLinear(native)
	if err != nil {
		return method.Metrics{}, err
	}
	m := fit.Model
	aic, bic, ll, rsq, nobs := m.AIC(), m.BIC(), m.LogLikelihood(), m.RSquared, m.N
	if sc := fit.score; sc != nil {
		ll, rsq, nobs = sc.ll, sc.rSquared, sc.n
		aic, bic = ols.InformationCriteria(ll, sc.k, sc.n)
	}
	params := m.Params()
	for _, name := range m.Names {
		if fit.keep != nil && !fit.keep[name] {
			delete(params, name)
			delete(params, "se_"+name)
		}
	}
	for k, v := range fit.Extra {
		params[k] = v
	}
	return method.Metrics{
		AIC:           method.Float(aic),
		BIC:           method.Float(bic),
		LogLikelihood: method.Float(ll),
		RSquared:      method.Float(rsq),
		NObs:          nobs,
		Params:        params,
		Convention:    method.LowerIsBetter,
		Warnings:      fit.Warnings,
	}, nil
}

func (linear) Predict(native method.NativeResult) ([]float64, error) {
	fit, err := asLinear(native)
	if err != nil {
		return nil, err
	}
	if fit.Predicted != nil {
		return append([]float64(nil), fit.Predicted...), nil
	}
	return append([]float64(nil), fit.Model.Fitted...), nil
}

func keepNames(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
