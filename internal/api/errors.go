package api

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"statsuite/domain/core"
	"statsuite/internal/errors"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error    string      `json:"error"`
	Code     string      `json:"code"`
	Failures []string    `json:"failures,omitempty"`
	Partial  interface{} `json:"partial,omitempty"`
}

// statusFor maps an error to its HTTP status and response code
func statusFor(err error) (int, string) {
	var allFailed *core.AllMethodsFailedError
	switch {
	case errors.IsAppError(err):
		switch code := errors.GetCode(err); code {
		case errors.CodeInvalidInput, errors.CodeValidationError:
			return http.StatusBadRequest, code
		case errors.CodeNotFound:
			return http.StatusNotFound, code
		default:
			return http.StatusInternalServerError, code
		}
	case stderrors.As(err, &allFailed):
		return http.StatusUnprocessableEntity, "ALL_METHODS_FAILED"
	case core.IsFitError(err):
		return http.StatusUnprocessableEntity, "FIT_FAILED"
	case core.IsPreconditionError(err):
		return http.StatusBadRequest, "PRECONDITION_FAILED"
	case stderrors.Is(err, core.ErrInvalidDataset), stderrors.Is(err, core.ErrColumnNotFound):
		return http.StatusBadRequest, errors.CodeInvalidInput
	case stderrors.Is(err, core.ErrMethodNotFound):
		return http.StatusNotFound, "METHOD_NOT_FOUND"
	case core.IsIncomparable(err):
		return http.StatusConflict, "INCOMPARABLE_RESULTS"
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "CANCELLED"
	}
	return http.StatusInternalServerError, errors.CodeInternalError
}

// abort writes err as JSON. partial, when non-nil, is attached so callers
// still see the trace or the partial comparison table.
func abort(c *gin.Context, err error, partial interface{}) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: code, Partial: partial}
	var allFailed *core.AllMethodsFailedError
	if stderrors.As(err, &allFailed) {
		resp.Failures = allFailed.Methods()
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}
