package estimators

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"statsuite/adapters/estimators/ols"
	"statsuite/domain/core"
	"statsuite/domain/dataset"
	"statsuite/domain/method"
	"statsuite/domain/structure"
)

// Survival method names
const (
	NameKaplanMeier = "kaplan_meier"
	NameExponential = "exponential"
	NameWeibull     = "weibull"
)

var errNotConverged = errors.New("newton iterations did not converge")

// lifetimes holds complete (duration, event) pairs
type lifetimes struct {
	t      []float64
	event  []float64
	events int
}

func buildLifetimes(methodName string, data *dataset.Dataset, st structure.DataStructure, positive bool) (*lifetimes, error) {
	t, err := numeric(data, methodName, "duration", st.DurationCol)
	if err != nil {
		return nil, err
	}
	ec, err := column(data, methodName, "event", st.EventCol)
	if err != nil {
		return nil, err
	}
	ev, ok := ec.Indicator()
	if !ok {
		return nil, &core.PreconditionError{Method: methodName, Column: st.EventCol, Reason: "event column must be binary"}
	}
	rows := complete(data.NRows(), t, ev)
	lt := &lifetimes{t: take(t, rows), event: take(ev, rows)}
	bound := "non-negative"
	if positive {
		bound = "positive"
	}
	for i, ti := range lt.t {
		if ti < 0 || (positive && ti == 0) {
			return nil, &core.PreconditionError{
				Method: methodName,
				Column: st.DurationCol,
				Reason: fmt.Sprintf("durations must be %s, row %d is %g", bound, rows[i], ti),
			}
		}
		if lt.event[i] == 1 {
			lt.events++
		}
	}
	if len(lt.t) < 2 {
		return nil, &core.PreconditionError{Method: methodName, Column: st.DurationCol, Reason: "needs at least 2 subjects"}
	}
	if lt.events == 0 {
		return nil, &core.PreconditionError{Method: methodName, Column: st.EventCol, Reason: "no observed events"}
	}
	return lt, nil
}

// KaplanMeier is the product-limit estimator. It has no likelihood, so its
// results never carry information criteria.
type KaplanMeier struct{}

// NewKaplanMeier creates the Kaplan-Meier adapter
func NewKaplanMeier() *KaplanMeier { return &KaplanMeier{} }

// Curve is the native result of KaplanMeier: S(t) just after each event time
type Curve struct {
	Times     []float64
	Survival  []float64
	AtRisk    []int
	Events    []int
	Median    float64 // NaN when S(t) never drops to 0.5
	FollowUp  float64
	durations []float64
}

// At evaluates the step function at t
func (c *Curve) At(t float64) float64 {
	i := sort.SearchFloat64s(c.Times, t)
	if i < len(c.Times) && c.Times[i] == t {
		return c.Survival[i]
	}
	if i == 0 {
		return 1
	}
	return c.Survival[i-1]
}

func (a *KaplanMeier) CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error {
	_, err := buildLifetimes(NameKaplanMeier, data, st, false)
	return err
}

func (a *KaplanMeier) Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, _ method.Params) (method.NativeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lt, err := buildLifetimes(NameKaplanMeier, data, st, false)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(lt.t))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return lt.t[order[a]] < lt.t[order[b]] })

	curve := &Curve{Median: math.NaN(), durations: lt.t}
	s := 1.0
	atRisk := len(order)
	for i := 0; i < len(order); {
		t := lt.t[order[i]]
		deaths, leaving := 0, 0
		for i < len(order) && lt.t[order[i]] == t {
			if lt.event[order[i]] == 1 {
				deaths++
			}
			leaving++
			i++
		}
		if deaths > 0 {
			s *= 1 - float64(deaths)/float64(atRisk)
			curve.Times = append(curve.Times, t)
			curve.Survival = append(curve.Survival, s)
			curve.AtRisk = append(curve.AtRisk, atRisk)
			curve.Events = append(curve.Events, deaths)
			if math.IsNaN(curve.Median) && s <= 0.5 {
				curve.Median = t
			}
		}
		atRisk -= leaving
	}
	curve.FollowUp, err = stats.Median(lt.t)
	if err != nil {
		return nil, err
	}
	return curve, nil
}

func asCurve(native method.NativeResult) (*Curve, error) {
	c, ok := native.(*Curve)
	if !ok || c == nil {
		return nil, fmt.Errorf("unexpected native result %T", native)
	}
	return c, nil
}

func (a *KaplanMeier) ExtractMetrics(native method.NativeResult) (method.Metrics, error) {
	c, err := asCurve(native)
	if err != nil {
		return method.Metrics{}, err
	}
	events := 0
	for _, e := range c.Events {
		events += e
	}
	m := method.Metrics{
		NObs: len(c.durations),
		Params: map[string]float64{
			"median_survival":  c.Median,
			"median_follow_up": c.FollowUp,
			"events":           float64(events),
		},
		Convention: method.LowerIsBetter,
	}
	if math.IsNaN(c.Median) {
		m.Warnings = append(m.Warnings, "survival never drops to 0.5; median not reached")
	}
	return m, nil
}

// Predict returns S(t_i) at each subject's duration
func (a *KaplanMeier) Predict(native method.NativeResult) ([]float64, error) {
	c, err := asCurve(native)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(c.durations))
	for i, t := range c.durations {
		out[i] = c.At(t)
	}
	return out, nil
}

// Parametric is a fitted parametric survival model, S(t) = exp(-(t/scale)^shape)
type Parametric struct {
	Family        string
	Shape, Scale  float64
	LogLikelihood float64
	K             int
	Iterations    int
	durations     []float64
}

// Survival evaluates S(t)
func (p *Parametric) Survival(t float64) float64 {
	return math.Exp(-math.Pow(t/p.Scale, p.Shape))
}

// parametric implements ExtractMetrics and Predict for Parametric results
type parametric struct{}

func asParametric(native method.NativeResult) (*Parametric, error) {
	p, ok := native.(*Parametric)
	if !ok || p == nil {
		return nil, fmt.Errorf("unexpected native result %T", native)
	}
	return p, nil
}

func (parametric) ExtractMetrics(native method.NativeResult) (method.Metrics, error) {
	p, err := asParametric(native)
	if err != nil {
		return method.Metrics{}, err
	}
	n := len(p.durations)
	aic, bic := ols.InformationCriteria(p.LogLikelihood, p.K, n)
	params := map[string]float64{"scale": p.Scale}
	if p.Family == NameExponential {
		params["rate"] = 1 / p.Scale
	} else {
		params["shape"] = p.Shape
		params["iterations"] = float64(p.Iterations)
	}
	params["median_survival"] = p.Scale * math.Pow(math.Ln2, 1/p.Shape)
	return method.Metrics{
		AIC:           method.Float(aic),
		BIC:           method.Float(bic),
		LogLikelihood: method.Float(p.LogLikelihood),
		NObs:          n,
		Params:        params,
		Convention:    method.LowerIsBetter,
	}, nil
}

// Predict returns S(t_i) at each subject's duration
func (parametric) Predict(native method.NativeResult) ([]float64, error) {
	p, err := asParametric(native)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(p.durations))
	for i, t := range p.durations {
		out[i] = p.Survival(t)
	}
	return out, nil
}

// Exponential is the constant-hazard model with closed-form MLE rate d / sum(t)
type Exponential struct{ parametric }

// NewExponential creates the exponential survival adapter
func NewExponential() *Exponential { return &Exponential{} }

func (a *Exponential) CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error {
	lt, err := buildLifetimes(NameExponential, data, st, false)
	if err != nil {
		return err
	}
	if total, _ := stats.Sum(lt.t); total <= 0 {
		return &core.PreconditionError{Method: NameExponential, Column: st.DurationCol, Reason: "total exposure is zero"}
	}
	return nil
}

func (a *Exponential) Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, _ method.Params) (method.NativeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lt, err := buildLifetimes(NameExponential, data, st, false)
	if err != nil {
		return nil, err
	}
	total, err := stats.Sum(lt.t)
	if err != nil {
		return nil, err
	}
	d := float64(lt.events)
	rate := d / total
	return &Parametric{
		Family:        NameExponential,
		Shape:         1,
		Scale:         1 / rate,
		LogLikelihood: d*math.Log(rate) - rate*total,
		K:             1,
		durations:     lt.t,
	}, nil
}

// Weibull fits shape by Newton-Raphson on the profile score; scale follows
// in closed form
type Weibull struct{ parametric }

// NewWeibull creates the Weibull survival adapter
func NewWeibull() *Weibull { return &Weibull{} }

func (a *Weibull) CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error {
	_, err := buildLifetimes(NameWeibull, data, st, true)
	return err
}

// Fit honours params max_iter (default 100) and tol (1e-9)
func (a *Weibull) Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, params method.Params) (method.NativeResult, error) {
	lt, err := buildLifetimes(NameWeibull, data, st, true)
	if err != nil {
		return nil, err
	}
	maxIter := params.Int("max_iter", 100)
	tol := params.Float("tol", 1e-9)

	// Durations are rescaled by their mean so t^k stays finite
	mean, err := stats.Mean(lt.t)
	if err != nil {
		return nil, err
	}
	t := make([]float64, len(lt.t))
	logT := make([]float64, len(lt.t))
	sumEventLog := 0.0
	for i, ti := range lt.t {
		t[i] = ti / mean
		logT[i] = math.Log(t[i])
		if lt.event[i] == 1 {
			sumEventLog += logT[i]
		}
	}
	d := float64(lt.events)
	a1 := sumEventLog / d

	// moments returns sum t^k, sum t^k ln t and sum t^k (ln t)^2
	moments := func(k float64) (c, b, dd float64) {
		for i := range t {
			tk := math.Pow(t[i], k)
			c += tk
			b += tk * logT[i]
			dd += tk * logT[i] * logT[i]
		}
		return c, b, dd
	}

	k := 1.0
	iter := 0
	converged := false
	for ; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, b, dd := moments(k)
		score := 1/k + a1 - b/c
		slope := -1/(k*k) - (dd*c-b*b)/(c*c)
		next := k - score/slope
		for next <= 0 {
			next = (next + k) / 2
			if next == k {
				break
			}
		}
		if math.Abs(next-k) < tol*math.Max(1, k) {
			k = next
			converged = true
			iter++
			break
		}
		k = next
	}
	if !converged || math.IsNaN(k) || k <= 0 {
		return nil, fmt.Errorf("%w after %d iterations (shape=%g)", errNotConverged, iter, k)
	}

	c, _, _ := moments(k)
	scaleK := c / d
	scale := math.Pow(scaleK, 1/k)
	ll := d*math.Log(k) - d*math.Log(scaleK) + (k-1)*sumEventLog - d - d*math.Log(mean)

	return &Parametric{
		Family:        NameWeibull,
		Shape:         k,
		Scale:         scale * mean,
		LogLikelihood: ll,
		K:             2,
		Iterations:    iter,
		durations:     lt.t,
	}, nil
}
