package estimators

import (
	"context"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"statsuite/adapters/estimators/ols"
	"statsuite/domain/core"
	"statsuite/domain/dataset"
	"statsuite/domain/method"
	"statsuite/domain/structure"
)

// Causal method names
const (
	NameDifferenceInMeans    = "difference_in_means"
	NameRegressionAdjustment = "regression_adjustment"
)

// arms holds a complete treatment indicator and outcome
type arms struct {
	treat   []float64
	y       []float64
	x       [][]float64
	treated []float64
	control []float64
}

func buildArms(methodName string, data *dataset.Dataset, st structure.DataStructure, withCovariates bool) (*arms, error) {
	tc, err := column(data, methodName, "treatment", st.TreatmentCol)
	if err != nil {
		return nil, err
	}
	treat, ok := tc.Indicator()
	if !ok {
		return nil, &core.PreconditionError{Method: methodName, Column: st.TreatmentCol, Reason: "treatment column must be binary"}
	}
	y, err := numeric(data, methodName, "outcome", st.OutcomeCol)
	if err != nil {
		return nil, err
	}
	var xs [][]float64
	if withCovariates {
		if xs, err = covariates(data, methodName, st); err != nil {
			return nil, err
		}
	}

	rows := complete(data.NRows(), append([][]float64{treat, y}, xs...)...)
	a := &arms{treat: take(treat, rows), y: take(y, rows), x: takeAll(xs, rows)}
	for i, t := range a.treat {
		if t == 1 {
			a.treated = append(a.treated, a.y[i])
		} else {
			a.control = append(a.control, a.y[i])
		}
	}
	if len(a.treated) < 2 || len(a.control) < 2 {
		return nil, &core.PreconditionError{
			Method: methodName,
			Column: st.TreatmentCol,
			Reason: fmt.Sprintf("each arm needs at least 2 observations, got %d treated and %d control", len(a.treated), len(a.control)),
		}
	}
	return a, nil
}

// DifferenceInMeans estimates the average treatment effect as the gap in arm
// means with a Welch standard error. It has no likelihood.
type DifferenceInMeans struct{}

// NewDifferenceInMeans creates the difference-in-means adapter
func NewDifferenceInMeans() *DifferenceInMeans { return &DifferenceInMeans{} }

// Effect is the native result of DifferenceInMeans
type Effect struct {
	ATE, SE, T, DF, P        float64
	CILow, CIHigh            float64
	MeanTreated, MeanControl float64
	NTreated, NControl       int
	treat                    []float64
}

func (a *DifferenceInMeans) CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error {
	_, err := buildArms(NameDifferenceInMeans, data, st, false)
	return err
}

// Fit honours param alpha (default 0.05) for the confidence interval
func (a *DifferenceInMeans) Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, params method.Params) (method.NativeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ar, err := buildArms(NameDifferenceInMeans, data, st, false)
	if err != nil {
		return nil, err
	}
	alpha := params.Float("alpha", 0.05)
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("alpha must be in (0, 1), got %g", alpha)
	}

	m1, _ := stats.Mean(ar.treated)
	m0, _ := stats.Mean(ar.control)
	v1, _ := stats.SampleVariance(ar.treated)
	v0, _ := stats.SampleVariance(ar.control)
	n1, n0 := float64(len(ar.treated)), float64(len(ar.control))

	q1, q0 := v1/n1, v0/n0
	se := math.Sqrt(q1 + q0)
	if se == 0 {
		return nil, fmt.Errorf("both arms have zero variance")
	}
	df := (q1 + q0) * (q1 + q0) / (q1*q1/(n1-1) + q0*q0/(n0-1))
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	e := &Effect{
		ATE:         m1 - m0,
		SE:          se,
		DF:          df,
		MeanTreated: m1,
		MeanControl: m0,
		NTreated:    len(ar.treated),
		NControl:    len(ar.control),
		treat:       ar.treat,
	}
	e.T = e.ATE / se
	e.P = 2 * t.Survival(math.Abs(e.T))
	crit := t.Quantile(1 - alpha/2)
	e.CILow, e.CIHigh = e.ATE-crit*se, e.ATE+crit*se
	return e, nil
}

func asEffect(native method.NativeResult) (*Effect, error) {
	e, ok := native.(*Effect)
	if !ok || e == nil {
		return nil, fmt.Errorf("unexpected native result %T", native)
	}
	return e, nil
}

func (a *DifferenceInMeans) ExtractMetrics(native method.NativeResult) (method.Metrics, error) {
	e, err := asEffect(native)
	if err != nil {
		return method.Metrics{}, err
	}
	return method.Metrics{
		NObs: e.NTreated + e.NControl,
		Params: map[string]float64{
			"ate":          e.ATE,
			"se":           e.SE,
			"t":            e.T,
			"df":           e.DF,
			"p_value":      e.P,
			"ci_low":       e.CILow,
			"ci_high":      e.CIHigh,
			"mean_treated": e.MeanTreated,
			"mean_control": e.MeanControl,
		},
		Convention: method.LowerIsBetter,
	}, nil
}

// Predict returns each row's arm mean
func (a *DifferenceInMeans) Predict(native method.NativeResult) ([]float64, error) {
	e, err := asEffect(native)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(e.treat))
	for i, t := range e.treat {
		if t == 1 {
			out[i] = e.MeanTreated
		} else {
			out[i] = e.MeanControl
		}
	}
	return out, nil
}

const treatmentCoef = "treatment"

// RegressionAdjustment regresses the outcome on the treatment indicator and
// the covariates; the treatment coefficient is the adjusted effect
type RegressionAdjustment struct{ linear }

// NewRegressionAdjustment creates the regression-adjustment adapter
func NewRegressionAdjustment() *RegressionAdjustment { return &RegressionAdjustment{} }

func (a *RegressionAdjustment) CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error {
	ar, err := buildArms(NameRegressionAdjustment, data, st, true)
	if err != nil {
		return err
	}
	if len(ar.y) <= len(ar.x)+3 {
		return core.NewPreconditionError(NameRegressionAdjustment, fmt.Sprintf("%d rows are too few for %d covariates", len(ar.y), len(ar.x)))
	}
	return nil
}

func (a *RegressionAdjustment) Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, _ method.Params) (method.NativeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ar, err := buildArms(NameRegressionAdjustment, data, st, true)
	if err != nil {
		return nil, err
	}
	cols := append([][]float64{ar.treat}, ar.x...)
	names := append([]string{ols.Intercept, treatmentCoef}, st.Covariates...)
	model, err := ols.Fit(ar.y, ols.Design(true, cols...), names)
	if err != nil {
		return nil, err
	}
	ate, _ := model.Coefficient(treatmentCoef)
	return &LinearFit{
		Method: NameRegressionAdjustment,
		Model:  model,
		Extra:  map[string]float64{"ate": ate, "se_ate": model.StdErr[1]},
	}, nil
}
