package ports

import (
	"context"

	"statsuite/domain/dataset"
)

// DatasetReader loads a tabular file into a dataset
type DatasetReader interface {
	Read(ctx context.Context) (*dataset.Dataset, error)
}
