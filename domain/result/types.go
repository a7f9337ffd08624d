package result

import (
	"statsuite/domain/core"
	"statsuite/domain/method"
	"statsuite/domain/structure"
)

// Warning is a low-severity issue attached to a result instead of raised
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Annotation records a transformation the normalizer applied, such as a sign flip
type Annotation struct {
	Key    string `json:"key"`
	Detail string `json:"detail"`
}

// SuiteResult is the uniform envelope for one successful fit. It is built by
// the normalizer and never mutated afterwards; refits produce new results.
type SuiteResult struct {
	ID            core.ResultID           `json:"id"`
	Structure     structure.DataStructure `json:"structure"`
	MethodUsed    string                  `json:"method_used"`
	Category      method.Category         `json:"category"`
	CostTier      string                  `json:"cost_tier"`
	Response      string                  `json:"response"`
	FittedModel   method.NativeResult     `json:"-"`
	ModelType     string                  `json:"model_type"`
	AIC           *float64                `json:"aic"`
	BIC           *float64                `json:"bic"`
	LogLikelihood *float64                `json:"log_likelihood"`
	RSquared      *float64                `json:"r_squared"`
	NObs          int                     `json:"n_obs"`
	Params        map[string]float64      `json:"params"`
	FitParams     method.Params           `json:"fit_params,omitempty"`
	Predictions   []float64               `json:"predictions,omitempty"`
	Warnings      []Warning               `json:"warnings"`
	Annotations   []Annotation            `json:"annotations,omitempty"`
	Timestamp     core.Timestamp          `json:"timestamp"`
}

// HasWarning reports whether a warning with the given code is attached
func (r *SuiteResult) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Annotation returns the annotation stored under key
func (r *SuiteResult) Annotation(key string) (Annotation, bool) {
	for _, a := range r.Annotations {
		if a.Key == key {
			return a, true
		}
	}
	return Annotation{}, false
}

// Metric names accepted by comparison and averaging
type Metric string

const (
	MetricAIC           Metric = "aic"
	MetricBIC           Metric = "bic"
	MetricLogLikelihood Metric = "log_likelihood"
	MetricRSquared      Metric = "r_squared"
)

// ParseMetric validates a metric name
func ParseMetric(s string) (Metric, bool) {
	switch Metric(s) {
	case MetricAIC, MetricBIC, MetricLogLikelihood, MetricRSquared:
		return Metric(s), true
	}
	return "", false
}

// IsInformationCriterion reports whether weights can be derived from the metric
func (m Metric) IsInformationCriterion() bool {
	return m == MetricAIC || m == MetricBIC
}

// Score returns the metric oriented so that lower is better, and false when
// the result has no such diagnostic
func (r *SuiteResult) Score(m Metric) (float64, bool) {
	switch m {
	case MetricAIC:
		if r.AIC != nil {
			return *r.AIC, true
		}
	case MetricBIC:
		if r.BIC != nil {
			return *r.BIC, true
		}
	case MetricLogLikelihood:
		if r.LogLikelihood != nil {
			return -*r.LogLikelihood, true
		}
	case MetricRSquared:
		if r.RSquared != nil {
			return -*r.RSquared, true
		}
	}
	return 0, false
}

// Entry is one ranked row of a comparison table. Rank 0 means unranked
// because the result lacks the comparison metric.
type Entry struct {
	Result *SuiteResult `json:"result"`
	Rank   int          `json:"rank"`
	Weight *float64     `json:"weight"`
}

// ComparisonTable orders results that share one response definition
type ComparisonTable struct {
	Metric    Metric         `json:"metric"`
	Response  string         `json:"response"`
	Entries   []Entry        `json:"entries"`
	CreatedAt core.Timestamp `json:"created_at"`
}

// Best returns the top-ranked entry
func (t *ComparisonTable) Best() (Entry, bool) {
	for _, e := range t.Entries {
		if e.Rank == 1 {
			return e, true
		}
	}
	return Entry{}, false
}

// Methods lists the methods in table order
func (t *ComparisonTable) Methods() []string {
	names := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		names[i] = e.Result.MethodUsed
	}
	return names
}

// Prediction is a model-averaged prediction
type Prediction struct {
	Metric   Metric             `json:"metric"`
	Response string             `json:"response"`
	Values   []float64          `json:"values"`
	Weights  map[string]float64 `json:"weights"`
}
