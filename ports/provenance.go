package ports

import (
	"context"

	"statsuite/domain/run"
)

// ProvenanceSink receives every attempt record. It is fire-and-forget from
// the caller's point of view: the tracker logs and discards its errors.
type ProvenanceSink interface {
	Append(ctx context.Context, record run.Record) error
}

// ProvenanceReader provides read-only access to stored records
type ProvenanceReader interface {
	List(ctx context.Context, filter run.Filter) ([]run.Record, error)
}

// ProvenanceStore combines sink and reader for persistent backends
type ProvenanceStore interface {
	ProvenanceSink
	ProvenanceReader
	Migrate(ctx context.Context) error
	Close() error
}
