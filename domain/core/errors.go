package core

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound       = errors.New("resource not found")
	ErrMethodNotFound = fmt.Errorf("%w: method", ErrNotFound)
	ErrColumnNotFound = fmt.Errorf("%w: column", ErrNotFound)

	// Registry errors
	ErrRegistrySealed  = errors.New("method registry is sealed")
	ErrDuplicateMethod = errors.New("method already registered")
	ErrInvalidMethod   = errors.New("invalid method descriptor")

	// Dataset errors
	ErrInvalidDataset   = errors.New("invalid dataset")
	ErrInsufficientData = errors.New("insufficient data for analysis")

	// Dispatch errors
	ErrPrecondition     = errors.New("method precondition not satisfied")
	ErrFit              = errors.New("method fit failed")
	ErrTimeout          = fmt.Errorf("%w: timeout", ErrFit)
	ErrAllMethodsFailed = errors.New("all candidate methods failed")
	ErrIncomparable     = errors.New("results are not comparable")
	ErrNoPredictions    = errors.New("result carries no predictions")
)

// Warning codes attached to results instead of being raised
const (
	WarnClassificationAmbiguous = "classification_ambiguous"
	WarnLowConfidence           = "low_confidence"
	WarnMetricsUnavailable      = "metrics_unavailable"
	WarnMetricInvalid           = "metric_invalid"
	WarnMetricMissing           = "metric_missing"
	WarnAdapter                 = "adapter"
)

// Failure reasons recorded for attempts
const (
	ReasonTimeout   = "timeout"
	ReasonPanic     = "panic"
	ReasonCancelled = "cancelled"
	ReasonError     = "error"
	ReasonNoModel   = "no_model"
)

// PreconditionError reports that a method cannot be applied to a dataset.
// The message is meant for the caller, so it names the missing piece.
type PreconditionError struct {
	Method string
	Column string // offending column or role, optional
	Reason string
}

func (e *PreconditionError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("method %s cannot be applied: %s (column %q)", e.Method, e.Reason, e.Column)
	}
	return fmt.Sprintf("method %s cannot be applied: %s", e.Method, e.Reason)
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// NewPreconditionError creates a precondition failure for a method
func NewPreconditionError(method, reason string) *PreconditionError {
	return &PreconditionError{Method: method, Reason: reason}
}

// NewMissingRoleError creates a precondition failure naming the role that has no column
func NewMissingRoleError(method, role string) *PreconditionError {
	return &PreconditionError{
		Method: method,
		Column: role,
		Reason: fmt.Sprintf("no %s column; set the %s role explicitly or add a column", role, role),
	}
}

// FitError reports a failure during estimation. Cause holds the adapter error
// and is never rendered beyond its message.
type FitError struct {
	Method  string
	Reason  string
	Detail  string
	Timeout bool
	Cause   error
}

func (e *FitError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("method %s failed (%s): %s", e.Method, e.Reason, e.Detail)
	}
	return fmt.Sprintf("method %s failed (%s)", e.Method, e.Reason)
}

func (e *FitError) Unwrap() error { return e.Cause }

// Is lets errors.Is match ErrFit for every FitError and ErrTimeout for timeouts
func (e *FitError) Is(target error) bool {
	if target == ErrFit {
		return true
	}
	return target == ErrTimeout && e.Timeout
}

// NewFitError wraps an adapter error as a FitError
func NewFitError(method string, cause error) *FitError {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &FitError{Method: method, Reason: ReasonError, Detail: detail, Cause: cause}
}

// NewTimeoutError creates the FitError recorded when a fit exceeds its deadline
func NewTimeoutError(method string, cause error) *FitError {
	return &FitError{Method: method, Reason: ReasonTimeout, Timeout: true, Cause: cause}
}

// AllMethodsFailedError aggregates every candidate failure of one dispatch
type AllMethodsFailedError struct {
	Kind     string
	Failures []*FitError
}

func (e *AllMethodsFailedError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("%s: no applicable methods for structure %s", ErrAllMethodsFailed, e.Kind)
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %s", f.Method, f.Reason)
		if f.Detail != "" {
			parts[i] += " (" + f.Detail + ")"
		}
	}
	return fmt.Sprintf("%s for structure %s: %s", ErrAllMethodsFailed, e.Kind, strings.Join(parts, "; "))
}

// Unwrap exposes the sentinel plus every constituent failure
func (e *AllMethodsFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrAllMethodsFailed)
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Methods lists the attempted methods in attempt order
func (e *AllMethodsFailedError) Methods() []string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Method
	}
	return names
}

// IncomparableResultsError reports results that target different responses
type IncomparableResultsError struct {
	Responses []string
	Reason    string
}

func (e *IncomparableResultsError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", ErrIncomparable, e.Reason)
	}
	return fmt.Sprintf("%s: response definitions differ (%s)", ErrIncomparable, strings.Join(e.Responses, ", "))
}

func (e *IncomparableResultsError) Unwrap() error { return ErrIncomparable }

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsPreconditionError(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

func IsFitError(err error) bool {
	return errors.Is(err, ErrFit)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsAllMethodsFailed(err error) bool {
	return errors.Is(err, ErrAllMethodsFailed)
}

func IsIncomparable(err error) bool {
	return errors.Is(err, ErrIncomparable)
}
