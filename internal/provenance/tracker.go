// Package provenance keeps the append-only log of every fit attempt
package provenance

import (
	"context"
	"sync"
	"time"

	"statsuite/domain/run"
	"statsuite/internal"
	"statsuite/ports"
)

// DefaultQueueSize bounds records waiting for the sink
const DefaultQueueSize = 1024

const sinkTimeout = 10 * time.Second

// Tracker records attempts in memory and forwards them to an optional sink.
// Record never blocks on the sink and never fails because of it.
type Tracker struct {
	mu      sync.RWMutex
	records []run.Record

	sink   ports.ProvenanceSink
	queue  chan run.Record
	done   chan struct{}
	closed bool
	logger *internal.Logger
}

// NewTracker creates a tracker. A nil sink keeps records in memory only.
func NewTracker(sink ports.ProvenanceSink, queueSize int, logger *internal.Logger) *Tracker {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	t := &Tracker{sink: sink, logger: logger, done: make(chan struct{})}
	if sink == nil {
		close(t.done)
		return t
	}
	t.queue = make(chan run.Record, queueSize)
	go t.drain()
	return t
}

// Record appends a record. Safe for concurrent use.
func (t *Tracker) Record(rec run.Record) {
	rec = clone(rec)

	t.mu.Lock()
	t.records = append(t.records, rec)
	closed := t.closed
	// Enqueue under the lock so Close cannot close the channel mid-send
	if t.queue != nil && !closed {
		select {
		case t.queue <- rec:
		default:
			t.logger.Warn("provenance queue full, record %s for %s kept in memory only", rec.ID, rec.Method)
		}
	}
	t.mu.Unlock()

	if closed && t.sink != nil {
		t.logger.Warn("provenance tracker closed, record %s not forwarded", rec.ID)
	}
}

// Query returns copies of the records matching filter in insertion order
func (t *Tracker) Query(filter run.Filter) []run.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []run.Record
	for _, r := range t.records {
		if !filter.Matches(r) {
			continue
		}
		out = append(out, clone(r))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// Len returns the number of records held in memory
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Close stops accepting sink writes and waits until queued records have
// been delivered or ctx ends
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		if t.queue != nil {
			close(t.queue)
		}
	}
	t.mu.Unlock()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) drain() {
	defer close(t.done)
	for rec := range t.queue {
		t.write(rec)
	}
}

// write is the single place sink failures are absorbed
func (t *Tracker) write(rec run.Record) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("provenance sink panicked on record %s: %v", rec.ID, r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := t.sink.Append(ctx, rec); err != nil {
		t.logger.Error("provenance sink rejected record %s: %v", rec.ID, err)
	}
}

func clone(r run.Record) run.Record {
	if r.Params != nil {
		params := make(map[string]interface{}, len(r.Params))
		for k, v := range r.Params {
			params[k] = v
		}
		r.Params = params
	}
	r.AIC = copyFloat(r.AIC)
	r.BIC = copyFloat(r.BIC)
	r.LogLikelihood = copyFloat(r.LogLikelihood)
	r.RSquared = copyFloat(r.RSquared)
	return r
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
