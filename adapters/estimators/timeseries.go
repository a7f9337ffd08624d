package estimators

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"statsuite/adapters/estimators/ols"
	"statsuite/domain/dataset"
	"statsuite/domain/method"
	"statsuite/domain/structure"
)

// Time series method names
const (
	NameAR1         = "ar1"
	NameAR2         = "ar2"
	NameRandomWalk  = "random_walk"
	NameBayesianAR1 = "bayesian_ar1"
)

// conditioning is the number of leading observations every conditional
// time series likelihood treats as fixed. It is the largest lag among the
// registered autoregressions, so ar1, ar2 and random_walk all score the same
// observations.
const conditioning = 2

// lagged returns y[from:] and its p lags as regressor columns; from >= p
func lagged(y []float64, p, from int) ([]float64, [][]float64, []string) {
	cols := make([][]float64, p)
	names := make([]string, p)
	for l := 1; l <= p; l++ {
		cols[l-1] = y[from-l : len(y)-l]
		names[l-1] = fmt.Sprintf("phi%d", l)
	}
	return y[from:], cols, names
}

// AutoRegressive is a conditional least-squares AR(p) with a constant
type AutoRegressive struct {
	linear
	name string
	lags int
}

// NewAR1 creates the AR(1) adapter
func NewAR1() *AutoRegressive { return &AutoRegressive{name: NameAR1, lags: 1} }

// NewAR2 creates the AR(2) adapter
func NewAR2() *AutoRegressive { return &AutoRegressive{name: NameAR2, lags: 2} }

// minLength leaves at least two residual degrees of freedom
func (a *AutoRegressive) minLength() int { return conditioning + a.lags + 3 }

func (a *AutoRegressive) CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error {
	_, err := buildSeries(a.name, data, st, a.minLength())
	return err
}

func (a *AutoRegressive) Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, _ method.Params) (method.NativeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := buildSeries(a.name, data, st, a.minLength())
	if err != nil {
		return nil, err
	}
	y, cols, names := lagged(s.y, a.lags, conditioning)
	model, err := ols.Fit(y, ols.Design(true, cols...), regressorNames(names))
	if err != nil {
		return nil, err
	}

	predicted := append(append([]float64(nil), s.y[:conditioning]...), model.Fitted...)
	fit := &LinearFit{Method: a.name, Model: model, Predicted: predicted, Extra: map[string]float64{}}
	if phi, ok := model.Coefficient("phi1"); ok && a.lags == 1 {
		if math.Abs(phi) >= 1 {
			fit.Warnings = append(fit.Warnings, fmt.Sprintf("phi1=%.3f is outside the stationary region", phi))
		} else {
			fit.Extra["mean"] = model.Coef[0] / (1 - phi)
		}
	}
	return fit, nil
}

// RandomWalk models first differences as drift plus noise
type RandomWalk struct{ linear }

// NewRandomWalk creates the random walk with drift adapter
func NewRandomWalk() *RandomWalk { return &RandomWalk{} }

func (a *RandomWalk) CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error {
	_, err := buildSeries(NameRandomWalk, data, st, conditioning+2)
	return err
}

func (a *RandomWalk) Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, _ method.Params) (method.NativeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := buildSeries(NameRandomWalk, data, st, conditioning+2)
	if err != nil {
		return nil, err
	}
	// y_t given y_{t-1} has the density of the difference, so the
	// likelihood already sits on the level scale
	dy := make([]float64, len(s.y)-conditioning)
	for i := range dy {
		t := i + conditioning
		dy[i] = s.y[t] - s.y[t-1]
	}
	model, err := ols.Fit(dy, ols.Constant(len(dy)), []string{"drift"})
	if err != nil {
		return nil, err
	}
	predicted := make([]float64, len(s.y))
	predicted[0] = s.y[0]
	for i := 1; i < len(s.y); i++ {
		predicted[i] = s.y[i-1] + model.Coef[0]
	}
	return &LinearFit{
		Method:    NameRandomWalk,
		Model:     model,
		Predicted: predicted,
		score: &likelihood{
			ll:       model.LogLikelihood(),
			k:        model.K + 1,
			n:        model.N,
			rSquared: stat.RSquaredFrom(predicted[conditioning:], s.y[conditioning:], nil),
		},
	}, nil
}

// BayesianAR1 is a Metropolis random-walk sampler for the AR(1) posterior
// under flat priors on (c, phi, log sigma)
type BayesianAR1 struct{}

// NewBayesianAR1 creates the Bayesian AR(1) adapter
func NewBayesianAR1() *BayesianAR1 { return &BayesianAR1{} }

// Posterior is the native result of BayesianAR1
type Posterior struct {
	Const, Phi, Sigma float64
	ConstSD, PhiSD    float64
	Acceptance        float64
	Draws             int
	Seed              uint64
	Predicted         []float64
}

const checkEvery = 100

func (a *BayesianAR1) CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error {
	_, err := buildSeries(NameBayesianAR1, data, st, 5)
	return err
}

// Fit honours params draws (default 2000), burn_in (500), step (0.05) and
// seed (1). Runs with the same seed are identical.
func (a *BayesianAR1) Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, params method.Params) (method.NativeResult, error) {
	s, err := buildSeries(NameBayesianAR1, data, st, 5)
	if err != nil {
		return nil, err
	}
	draws := params.Int("draws", 2000)
	burn := params.Int("burn_in", 500)
	step := params.Float("step", 0.05)
	seed := uint64(params.Int("seed", 1))
	if draws <= 0 || burn < 0 || step <= 0 {
		return nil, fmt.Errorf("invalid sampler settings draws=%d burn_in=%d step=%g", draws, burn, step)
	}

	y, cols, _ := lagged(s.y, 1, 1)
	start, err := ols.Fit(y, ols.Design(true, cols...), []string{ols.Intercept, "phi1"})
	if err != nil {
		return nil, fmt.Errorf("initial values: %w", err)
	}
	logPost := func(c, phi, logSigma float64) float64 {
		sigma := math.Exp(logSigma)
		ll := 0.0
		for i, yi := range y {
			ll += distuv.Normal{Mu: c + phi*cols[0][i], Sigma: sigma}.LogProb(yi)
		}
		return ll
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	cur := [3]float64{start.Coef[0], start.Coef[1], 0.5 * math.Log(math.Max(start.Sigma2, 1e-12))}
	scale := [3]float64{math.Max(start.StdErr[0], step), math.Max(start.StdErr[1], step), step}
	curLP := logPost(cur[0], cur[1], cur[2])

	cs := make([]float64, 0, draws)
	phis := make([]float64, 0, draws)
	sigmas := make([]float64, 0, draws)
	accepted := 0
	for it := 0; it < burn+draws; it++ {
		if it%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var prop [3]float64
		for j := range prop {
			prop[j] = cur[j] + scale[j]*rng.NormFloat64()
		}
		propLP := logPost(prop[0], prop[1], prop[2])
		if math.Log(rng.Float64()) < propLP-curLP {
			cur, curLP = prop, propLP
			if it >= burn {
				accepted++
			}
		}
		if it >= burn {
			cs = append(cs, cur[0])
			phis = append(phis, cur[1])
			sigmas = append(sigmas, math.Exp(cur[2]))
		}
	}

	post := &Posterior{
		Const:      stat.Mean(cs, nil),
		Phi:        stat.Mean(phis, nil),
		Sigma:      stat.Mean(sigmas, nil),
		ConstSD:    stat.StdDev(cs, nil),
		PhiSD:      stat.StdDev(phis, nil),
		Acceptance: float64(accepted) / float64(draws),
		Draws:      draws,
		Seed:       seed,
	}
	post.Predicted = make([]float64, len(s.y))
	post.Predicted[0] = s.y[0]
	for i := 1; i < len(s.y); i++ {
		post.Predicted[i] = post.Const + post.Phi*s.y[i-1]
	}
	return post, nil
}

func asPosterior(native method.NativeResult) (*Posterior, error) {
	post, ok := native.(*Posterior)
	if !ok || post == nil {
		return nil, fmt.Errorf("unexpected native result %T", native)
	}
	return post, nil
}

// ExtractMetrics reports posterior summaries only; the sampler has no
// information criterion
func (a *BayesianAR1) ExtractMetrics(native method.NativeResult) (method.Metrics, error) {
	post, err := asPosterior(native)
	if err != nil {
		return method.Metrics{}, err
	}
	m := method.Metrics{
		NObs: len(post.Predicted),
		Params: map[string]float64{
			ols.Intercept: post.Const,
			"phi1":        post.Phi,
			"sigma":       post.Sigma,
			"sd_const":    post.ConstSD,
			"sd_phi1":     post.PhiSD,
			"acceptance":  post.Acceptance,
		},
		Convention: method.LowerIsBetter,
	}
	if post.Acceptance < 0.05 || post.Acceptance > 0.9 {
		m.Warnings = append(m.Warnings, fmt.Sprintf("acceptance rate %.2f suggests a poorly tuned step", post.Acceptance))
	}
	return m, nil
}

func (a *BayesianAR1) Predict(native method.NativeResult) ([]float64, error) {
	post, err := asPosterior(native)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), post.Predicted...), nil
}
