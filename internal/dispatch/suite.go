// Package dispatch runs estimation methods against classified datasets in
// auto, all and explicit modes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"statsuite/domain/core"
	"statsuite/domain/dataset"
	"statsuite/domain/method"
	"statsuite/domain/result"
	"statsuite/domain/run"
	"statsuite/domain/structure"
	"statsuite/internal"
	"statsuite/internal/classifier"
	"statsuite/internal/compare"
	"statsuite/internal/config"
	"statsuite/internal/normalize"
	"statsuite/internal/provenance"
	"statsuite/internal/registry"
)

// Method selectors understood by Analyze besides explicit method names
const (
	MethodAuto = "auto"
	MethodAll  = "all"
)

// AnalyzeOptions controls one dispatch
type AnalyzeOptions struct {
	Method       string                   // "auto" (default), "all" or a method name
	Kind         structure.Kind           // forces the structure kind, bypassing detection
	Roles        dataset.RoleMapping      // merged over the dataset's own roles
	Params       method.Params            // passed to every fit
	MethodParams map[string]method.Params // per-method overrides of Params
	Metric       result.Metric            // comparison metric for all mode
}

// Analysis is the outcome of a dispatch. Result is set in auto and explicit
// modes, Table in all mode.
type Analysis struct {
	Mode      run.Mode                `json:"mode"`
	Structure structure.DataStructure `json:"structure"`
	Result    *result.SuiteResult     `json:"result,omitempty"`
	Table     *result.ComparisonTable `json:"table,omitempty"`
	State     State                   `json:"state"`
	Trace     []Transition            `json:"trace"`
}

// Suite is the dispatcher. It is safe for concurrent use; each call runs its
// own state machine.
type Suite struct {
	registry    *registry.Registry
	recommender *registry.Recommender
	classifier  *classifier.Classifier
	normalizer  *normalize.Normalizer
	tracker     *provenance.Tracker
	cfg         config.SuiteConfig
	tiers       *semaphore.Weighted
	logger      *internal.Logger
}

// New builds a suite and seals reg
func New(reg *registry.Registry, cls *classifier.Classifier, tracker *provenance.Tracker, cfg config.SuiteConfig, logger *internal.Logger) *Suite {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	if cls == nil {
		cls = classifier.New(cfg.MinSeriesLength, logger)
	}
	if tracker == nil {
		tracker = provenance.NewTracker(nil, 0, logger)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.TierCapacity < method.TierSimulation.Weight() {
		cfg.TierCapacity = int64(cfg.Workers) * method.TierSimulation.Weight()
	}
	if cfg.DefaultMetric == "" {
		cfg.DefaultMetric = result.MetricAIC
	}
	reg.Seal()

	return &Suite{
		registry:    reg,
		recommender: registry.NewRecommender(reg, logger.Named("recommend")),
		classifier:  cls,
		normalizer:  normalize.New(logger.Named("normalize")),
		tracker:     tracker,
		cfg:         cfg,
		tiers:       semaphore.NewWeighted(cfg.TierCapacity),
		logger:      logger,
	}
}

// Registry returns the sealed method registry
func (s *Suite) Registry() *registry.Registry { return s.registry }

// Classifier returns the classifier used for detection
func (s *Suite) Classifier() *classifier.Classifier { return s.classifier }

// Tracker returns the provenance tracker
func (s *Suite) Tracker() *provenance.Tracker { return s.tracker }

// Recommend returns the ordered candidates for a dataset
func (s *Suite) Recommend(data *dataset.Dataset, st structure.DataStructure) []registry.MethodDescriptor {
	return s.recommender.Recommend(data, st)
}

// Analyze dispatches on opts.Method. On failure the returned Analysis, when
// non-nil, still carries the terminal state and trace.
func (s *Suite) Analyze(ctx context.Context, data *dataset.Dataset, opts AnalyzeOptions) (*Analysis, error) {
	switch opts.Method {
	case "", MethodAuto:
		return s.Auto(ctx, data, opts)
	case MethodAll:
		return s.All(ctx, data, opts)
	default:
		return s.Fit(ctx, data, opts.Method, opts)
	}
}

func (s *Suite) prepare(data *dataset.Dataset, opts AnalyzeOptions) (*dataset.Dataset, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: dataset is nil", core.ErrInvalidDataset)
	}
	if opts.Roles.IsZero() {
		return data, nil
	}
	return data.WithRoles(opts.Roles)
}

func (s *Suite) classify(data *dataset.Dataset, kind structure.Kind) structure.DataStructure {
	if kind != "" && kind != structure.KindUnknown {
		return s.classifier.Describe(data, kind)
	}
	return s.classifier.Detect(data)
}

func paramsFor(opts AnalyzeOptions, name string) method.Params {
	return opts.Params.Merge(opts.MethodParams[name])
}

// Auto tries candidates cheapest first and returns the first success. Fit
// failures never surface directly: exhaustion yields AllMethodsFailedError.
func (s *Suite) Auto(ctx context.Context, data *dataset.Dataset, opts AnalyzeOptions) (*Analysis, error) {
	data, err := s.prepare(data, opts)
	if err != nil {
		return nil, err
	}

	m := newMachine()
	m.step(StateClassifying)
	st := s.classify(data, opts.Kind)
	m.step(StateRecommending)
	candidates := s.recommender.Recommend(data, st)

	analysis := &Analysis{Mode: run.ModeAuto, Structure: st}
	finish := func(state State) *Analysis {
		if m.state != state {
			m.step(state)
		}
		analysis.State = m.state
		analysis.Trace = m.snapshot()
		return analysis
	}

	if len(candidates) == 0 {
		s.logger.Info("auto: no applicable methods for %s dataset %s", st.Kind, data.Name())
		return finish(StateAllFailed), &core.AllMethodsFailedError{Kind: string(st.Kind)}
	}

	var failures []*core.FitError
	for i, desc := range candidates {
		if err := ctx.Err(); err != nil {
			if i == 0 {
				m.to(StateFitting, desc.Name, i)
			}
			return finish(StateCancelled), err
		}
		m.to(StateFitting, desc.Name, i)

		params := paramsFor(opts, desc.Name)
		attempt := run.NewFitAttempt(st, desc.Name, params, run.ModeAuto)
		native, fitErr, _ := s.invoke(ctx, desc, data, st, params)
		if fitErr == nil {
			m.step(StateNormalizing)
			var res *result.SuiteResult
			res, fitErr = s.normalize(native, desc, st, params, data)
			if fitErr == nil {
				s.recordSuccess(attempt, data, res, time.Now())
				analysis.Result = res
				s.logger.Info("auto: %s fitted %s dataset %s", desc.Name, st.Kind, data.Name())
				return finish(StateDone), nil
			}
		}

		s.recordFailure(attempt, data, fitErr, time.Now())
		failures = append(failures, fitErr)
		s.logger.Warn("auto: %s failed (%s), %d candidates left", desc.Name, fitErr.Reason, len(candidates)-i-1)
		if fitErr.Reason == core.ReasonCancelled {
			return finish(StateCancelled), ctx.Err()
		}
	}
	return finish(StateAllFailed), &core.AllMethodsFailedError{Kind: string(st.Kind), Failures: failures}
}

type fitOutcome struct {
	desc     registry.MethodDescriptor
	attempt  run.FitAttempt
	params   method.Params
	native   method.NativeResult
	err      *core.FitError
	finished time.Time
}

// All fits every candidate on a bounded pool and ranks the successes.
// Cancelling ctx stops scheduling; fits already started run to completion
// and the partial table is returned with ctx's error.
func (s *Suite) All(ctx context.Context, data *dataset.Dataset, opts AnalyzeOptions) (*Analysis, error) {
	data, err := s.prepare(data, opts)
	if err != nil {
		return nil, err
	}
	metric := opts.Metric
	if metric == "" {
		metric = s.cfg.DefaultMetric
	}
	if _, ok := result.ParseMetric(string(metric)); !ok {
		return nil, fmt.Errorf("unknown comparison metric %q", metric)
	}

	m := newMachine()
	m.step(StateClassifying)
	st := s.classify(data, opts.Kind)
	m.step(StateRecommending)
	candidates := s.recommender.Recommend(data, st)

	analysis := &Analysis{Mode: run.ModeAll, Structure: st}
	finish := func(state State) *Analysis {
		m.step(state)
		analysis.State = m.state
		analysis.Trace = m.snapshot()
		return analysis
	}

	if len(candidates) == 0 {
		return finish(StateAllFailed), &core.AllMethodsFailedError{Kind: string(st.Kind)}
	}
	m.to(StateFitting, "", -1)

	// Started fits must drain, so they never see the caller's cancellation
	fitCtx := context.WithoutCancel(ctx)
	outcomes := make([]*fitOutcome, len(candidates))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)

	cancelled := false
	var skipped atomic.Bool
	for i, desc := range candidates {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		weight := desc.CostTier.Weight()
		if err := s.tiers.Acquire(ctx, weight); err != nil {
			cancelled = true
			break
		}
		params := paramsFor(opts, desc.Name)
		g.Go(func() error {
			if ctx.Err() != nil {
				s.tiers.Release(weight)
				skipped.Store(true)
				return nil
			}
			out := &fitOutcome{desc: desc, params: params, attempt: run.NewFitAttempt(st, desc.Name, params, run.ModeAll)}
			var settled <-chan struct{}
			out.native, out.err, settled = s.invoke(fitCtx, desc, data, st, params)
			out.finished = time.Now()
			outcomes[i] = out
			// A timed-out adapter may still be computing; its weight stays
			// taken until it returns
			s.releaseWhenSettled(weight, settled)
			return nil
		})
	}
	_ = g.Wait()
	cancelled = cancelled || skipped.Load()

	m.step(StateNormalizing)
	var results []*result.SuiteResult
	var failures []*core.FitError
	for _, out := range outcomes {
		if out == nil {
			continue
		}
		fitErr := out.err
		if fitErr == nil {
			var res *result.SuiteResult
			res, fitErr = s.normalize(out.native, out.desc, st, out.params, data)
			if fitErr == nil {
				s.recordSuccess(out.attempt, data, res, out.finished)
				results = append(results, res)
				continue
			}
		}
		s.recordFailure(out.attempt, data, fitErr, out.finished)
		failures = append(failures, fitErr)
	}
	s.logger.Info("all: %d of %d candidates fitted for %s dataset %s", len(results), len(candidates), st.Kind, data.Name())

	if len(results) == 0 && !cancelled {
		return finish(StateAllFailed), &core.AllMethodsFailedError{Kind: string(st.Kind), Failures: failures}
	}

	table, err := compare.Compare(results, metric)
	if err != nil {
		return finish(StateFailed), err
	}
	analysis.Table = table
	if cancelled {
		return finish(StateCancelled), ctx.Err()
	}
	return finish(StateDone), nil
}

// Fit runs one named method. Its precondition is checked before any fit, so
// a rejection costs no estimation.
func (s *Suite) Fit(ctx context.Context, data *dataset.Dataset, name string, opts AnalyzeOptions) (*Analysis, error) {
	desc, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	data, err = s.prepare(data, opts)
	if err != nil {
		return nil, err
	}

	st := s.explicitStructure(data, desc, opts.Kind)
	params := paramsFor(opts, desc.Name)
	attempt := run.NewFitAttempt(st, desc.Name, params, run.ModeExplicit)

	m := newMachine()
	analysis := &Analysis{Mode: run.ModeExplicit, Structure: st}
	finish := func(state State) *Analysis {
		if m.state != state {
			m.step(state)
		}
		analysis.State = m.state
		analysis.Trace = m.snapshot()
		return analysis
	}

	if err := desc.Check(data, st); err != nil {
		var pre *core.PreconditionError
		if !errors.As(err, &pre) {
			pre = core.NewPreconditionError(desc.Name, err.Error())
		}
		s.tracker.Record(run.NewRecord(attempt, data.Fingerprint(), run.OutcomePreconditionRejected, pre.Reason, time.Now()))
		s.logger.Info("explicit: %s rejected: %s", desc.Name, pre.Reason)
		return finish(StatePreconditionRejected), pre
	}

	m.to(StateFitting, desc.Name, 0)
	native, fitErr, _ := s.invoke(ctx, desc, data, st, params)
	if fitErr == nil {
		m.step(StateNormalizing)
		var res *result.SuiteResult
		res, fitErr = s.normalize(native, desc, st, params, data)
		if fitErr == nil {
			s.recordSuccess(attempt, data, res, time.Now())
			analysis.Result = res
			return finish(StateDone), nil
		}
	}
	s.recordFailure(attempt, data, fitErr, time.Now())
	if fitErr.Reason == core.ReasonCancelled {
		return finish(StateCancelled), ctx.Err()
	}
	return finish(StateFailed), fitErr
}

// explicitStructure uses the forced kind, else the detected kind when the
// method supports it, else the method's first declared kind
func (s *Suite) explicitStructure(data *dataset.Dataset, desc registry.MethodDescriptor, kind structure.Kind) structure.DataStructure {
	if kind != "" && kind != structure.KindUnknown {
		return s.classifier.Describe(data, kind)
	}
	st := s.classifier.Detect(data)
	if desc.Supports(st.Kind) {
		return st
	}
	return s.classifier.Describe(data, desc.Kinds[0])
}

func (s *Suite) normalize(native method.NativeResult, desc registry.MethodDescriptor, st structure.DataStructure, params method.Params, data *dataset.Dataset) (*result.SuiteResult, *core.FitError) {
	res, err := s.normalizer.Normalize(native, desc, normalize.FitContext{
		Structure: st,
		Response:  st.Response(),
		Params:    params,
		NObs:      data.NRows(),
	})
	if err != nil {
		var fitErr *core.FitError
		if errors.As(err, &fitErr) {
			return nil, fitErr
		}
		return nil, core.NewFitError(desc.Name, err)
	}
	return res, nil
}
