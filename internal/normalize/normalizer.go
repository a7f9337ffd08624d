// Package normalize converts native estimator output into SuiteResults
package normalize

import (
	"fmt"
	"math"

	"statsuite/domain/core"
	"statsuite/domain/method"
	"statsuite/domain/result"
	"statsuite/domain/structure"
	"statsuite/internal"
	"statsuite/internal/registry"
	"statsuite/ports"
)

// AnnotationSignFlip marks results whose information criteria were negated
// to the lower-is-better convention
const AnnotationSignFlip = "sign_flip"

// FitContext carries what the dispatcher knows about a fit
type FitContext struct {
	Structure structure.DataStructure
	Response  string
	Params    method.Params
	NObs      int
}

// Normalizer builds SuiteResults through each method's metric extractor
type Normalizer struct {
	logger *internal.Logger
}

// New creates a normalizer
func New(logger *internal.Logger) *Normalizer {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Normalizer{logger: logger}
}

// Normalize wraps native into a SuiteResult. Only a nil native model is an
// error; extraction problems degrade to warnings so that a fitted model is
// never lost.
func (n *Normalizer) Normalize(native method.NativeResult, desc registry.MethodDescriptor, fc FitContext) (*result.SuiteResult, error) {
	if native == nil {
		return nil, &core.FitError{Method: desc.Name, Reason: core.ReasonNoModel, Detail: "adapter returned no fitted model"}
	}

	res := &result.SuiteResult{
		ID:          core.NewResultID(),
		Structure:   fc.Structure.Clone(),
		MethodUsed:  desc.Name,
		Category:    desc.Category,
		CostTier:    desc.CostTier.String(),
		Response:    fc.Response,
		FittedModel: native,
		ModelType:   fmt.Sprintf("%T", native),
		NObs:        fc.NObs,
		Params:      map[string]float64{},
		FitParams:   fc.Params.Clone(),
		Timestamp:   core.Now(),
	}
	if res.Response == "" {
		res.Response = fc.Structure.Response()
	}
	for _, w := range fc.Structure.Warnings {
		res.Warnings = append(res.Warnings, result.Warning{Code: w.Code, Message: w.Message})
	}

	metrics, err := n.extract(desc, native)
	if err != nil {
		n.logger.Warn("metrics extraction for %s failed: %v", desc.Name, err)
		res.Warnings = append(res.Warnings, result.Warning{
			Code:    core.WarnMetricsUnavailable,
			Message: fmt.Sprintf("metric extraction failed: %v", err),
		})
	} else {
		n.apply(res, metrics)
	}

	if p, ok := desc.Adapter.(ports.Predictor); ok {
		predictions, err := predict(p, native)
		if err != nil {
			n.logger.Debug("predictions for %s unavailable: %v", desc.Name, err)
		} else {
			res.Predictions = predictions
		}
	}
	return res, nil
}

func (n *Normalizer) extract(desc registry.MethodDescriptor, native method.NativeResult) (m method.Metrics, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("extractor panicked: %v", p)
		}
	}()
	return desc.Adapter.ExtractMetrics(native)
}

func predict(p ports.Predictor, native method.NativeResult) (values []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("predictor panicked: %v", r)
		}
	}()
	return p.Predict(native)
}

func (n *Normalizer) apply(res *result.SuiteResult, m method.Metrics) {
	res.AIC = n.checked(res, "aic", m.AIC)
	res.BIC = n.checked(res, "bic", m.BIC)
	res.LogLikelihood = n.checked(res, "log_likelihood", m.LogLikelihood)
	res.RSquared = n.checked(res, "r_squared", m.RSquared)

	if m.Convention == method.HigherIsBetter && (res.AIC != nil || res.BIC != nil) {
		if res.AIC != nil {
			res.AIC = method.Float(-*res.AIC)
		}
		if res.BIC != nil {
			res.BIC = method.Float(-*res.BIC)
		}
		res.Annotations = append(res.Annotations, result.Annotation{
			Key:    AnnotationSignFlip,
			Detail: "information criteria negated from higher-is-better to lower-is-better",
		})
	}

	if m.NObs > 0 {
		res.NObs = m.NObs
	}
	for k, v := range m.Params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		res.Params[k] = v
	}
	for _, w := range m.Warnings {
		res.Warnings = append(res.Warnings, result.Warning{Code: core.WarnAdapter, Message: w})
	}
}

// checked drops non-finite values, leaving the metric absent
func (n *Normalizer) checked(res *result.SuiteResult, name string, v *float64) *float64 {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		res.Warnings = append(res.Warnings, result.Warning{
			Code:    core.WarnMetricInvalid,
			Message: fmt.Sprintf("%s was %v and has been dropped", name, *v),
		})
		return nil
	}
	return method.Float(*v)
}
