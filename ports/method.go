package ports

import (
	"context"

	"statsuite/domain/dataset"
	"statsuite/domain/method"
	"statsuite/domain/structure"
)

// MethodAdapter is the capability contract every statistical method
// implements once. The dispatcher only talks to methods through it.
type MethodAdapter interface {
	// CheckPreconditions returns nil when the method can be fit, or a
	// *core.PreconditionError naming what is missing
	CheckPreconditions(data *dataset.Dataset, st structure.DataStructure) error

	// Fit estimates the model. Implementations must treat data as read-only
	// and should return promptly once ctx is done.
	Fit(ctx context.Context, data *dataset.Dataset, st structure.DataStructure, params method.Params) (method.NativeResult, error)

	// ExtractMetrics reads diagnostics out of the native result
	ExtractMetrics(native method.NativeResult) (method.Metrics, error)
}

// Predictor is implemented by adapters whose native results can produce
// in-sample predictions of the response, enabling model averaging
type Predictor interface {
	Predict(native method.NativeResult) ([]float64, error)
}
