package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"statsuite/domain/core"
	"statsuite/domain/dataset"
	"statsuite/domain/method"
	"statsuite/domain/result"
	"statsuite/domain/run"
	"statsuite/domain/structure"
	"statsuite/internal/registry"
)

type nativeOutcome struct {
	native method.NativeResult
	err    error
}

// invoke runs one fit under its own deadline. Adapter errors and panics come
// back as *core.FitError. On timeout the fit goroutine is abandoned and its
// result discarded. The returned channel closes once that goroutine has
// returned.
func (s *Suite) invoke(ctx context.Context, desc registry.MethodDescriptor, data *dataset.Dataset, st structure.DataStructure, params method.Params) (method.NativeResult, *core.FitError, <-chan struct{}) {
	timeout := s.cfg.TimeoutFor(desc.Name, desc.CostTier, desc.Timeout)
	fitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	s.logger.Trace("fit %s started with timeout %s", desc.Name, timeout)

	started := time.Now()
	done := make(chan nativeOutcome, 1)
	settled := make(chan struct{})
	go func() {
		defer close(settled)
		defer func() {
			if r := recover(); r != nil {
				done <- nativeOutcome{err: &core.FitError{
					Method: desc.Name,
					Reason: core.ReasonPanic,
					Detail: fmt.Sprintf("adapter panicked: %v", r),
				}}
			}
		}()
		native, err := desc.Adapter.Fit(fitCtx, data, st, params)
		done <- nativeOutcome{native: native, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, s.fitFailure(ctx, fitCtx, desc, timeout, out.err), settled
		}
		if out.native == nil {
			return nil, &core.FitError{Method: desc.Name, Reason: core.ReasonNoModel, Detail: "adapter returned no fitted model"}, settled
		}
		return out.native, nil, settled
	case <-fitCtx.Done():
		s.watchAbandoned(desc.Name, started, settled)
		return nil, s.fitFailure(ctx, fitCtx, desc, timeout, fitCtx.Err()), settled
	}
}

// watchAbandoned logs a fit goroutine that outlived its deadline and again
// when it finally returns
func (s *Suite) watchAbandoned(name string, started time.Time, settled <-chan struct{}) {
	select {
	case <-settled:
		return
	default:
	}
	logger := s.logger.With("method", name)
	logger.Warn("fit abandoned after %s; adapter still running", time.Since(started).Round(time.Millisecond))
	go func() {
		<-settled
		logger.Debug("abandoned fit returned after %s", time.Since(started).Round(time.Millisecond))
	}()
}

// releaseWhenSettled returns weight to the tier pool once the fit goroutine
// has returned, so an abandoned fit keeps its share of the pool
func (s *Suite) releaseWhenSettled(weight int64, settled <-chan struct{}) {
	select {
	case <-settled:
		s.tiers.Release(weight)
	default:
		go func() {
			<-settled
			s.tiers.Release(weight)
		}()
	}
}

func (s *Suite) fitFailure(parent, fitCtx context.Context, desc registry.MethodDescriptor, timeout time.Duration, err error) *core.FitError {
	var fitErr *core.FitError
	if errors.As(err, &fitErr) && fitErr.Reason != core.ReasonError {
		return fitErr
	}
	switch {
	case parent.Err() != nil:
		return &core.FitError{Method: desc.Name, Reason: core.ReasonCancelled, Detail: parent.Err().Error(), Cause: err}
	case errors.Is(fitCtx.Err(), context.DeadlineExceeded):
		te := core.NewTimeoutError(desc.Name, err)
		te.Detail = fmt.Sprintf("exceeded %s", timeout)
		return te
	}
	if fitErr != nil {
		return fitErr
	}
	return core.NewFitError(desc.Name, err)
}

func (s *Suite) recordSuccess(a run.FitAttempt, data *dataset.Dataset, res *result.SuiteResult, finished time.Time) {
	rec := run.NewRecord(a, data.Fingerprint(), run.OutcomeSuccess, "", finished)
	rec.AIC = res.AIC
	rec.BIC = res.BIC
	rec.LogLikelihood = res.LogLikelihood
	rec.RSquared = res.RSquared
	s.tracker.Record(rec)
}

func (s *Suite) recordFailure(a run.FitAttempt, data *dataset.Dataset, fitErr *core.FitError, finished time.Time) {
	outcome := run.OutcomeFailure
	switch {
	case fitErr.Timeout:
		outcome = run.OutcomeTimeout
	case fitErr.Reason == core.ReasonCancelled:
		outcome = run.OutcomeCancelled
	}
	reason := fitErr.Reason
	if fitErr.Detail != "" {
		reason += ": " + fitErr.Detail
	}
	s.tracker.Record(run.NewRecord(a, data.Fingerprint(), outcome, reason, finished))
}
