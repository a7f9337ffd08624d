package provenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statsuite/domain/core"
	"statsuite/domain/method"
	"statsuite/domain/run"
	"statsuite/domain/structure"
)

type recordingSink struct {
	mu      sync.Mutex
	records []run.Record
	err     error
	panics  bool
	block   chan struct{}
}

func (s *recordingSink) Append(_ context.Context, r run.Record) error {
	if s.block != nil {
		<-s.block
	}
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func record(name string, outcome run.Outcome) run.Record {
	attempt := run.NewFitAttempt(structure.DataStructure{Kind: structure.KindPanel}, name, method.Params{"lags": 1}, run.ModeAuto)
	rec := run.NewRecord(attempt, core.NewHash([]byte("data")), outcome, "", time.Now())
	rec.AIC = method.Float(10)
	return rec
}

func TestTracker_MemoryOnly(t *testing.T) {
	tr := NewTracker(nil, 0, nil)
	tr.Record(record("pooled", run.OutcomeSuccess))
	tr.Record(record("fixed_effects", run.OutcomeFailure))

	assert.Equal(t, 2, tr.Len())
	failures := tr.Query(run.Filter{Outcome: run.OutcomeFailure})
	require.Len(t, failures, 1)
	assert.Equal(t, "fixed_effects", failures[0].Method)
	require.NoError(t, tr.Close(context.Background()))
}

func TestTracker_QueryReturnsCopies(t *testing.T) {
	tr := NewTracker(nil, 0, nil)
	tr.Record(record("pooled", run.OutcomeSuccess))

	got := tr.Query(run.Filter{})
	*got[0].AIC = 999
	got[0].Params["lags"] = 7

	again := tr.Query(run.Filter{})
	assert.Equal(t, 10.0, *again[0].AIC)
	assert.Equal(t, 1, again[0].Params["lags"])
}

func TestTracker_QueryOrderAndLimit(t *testing.T) {
	tr := NewTracker(nil, 0, nil)
	for i := 0; i < 5; i++ {
		tr.Record(record(fmt.Sprintf("m%d", i), run.OutcomeSuccess))
	}

	got := tr.Query(run.Filter{Limit: 3})
	require.Len(t, got, 3)
	assert.Equal(t, "m0", got[0].Method)
	assert.Equal(t, "m2", got[2].Method)
}

func TestTracker_ForwardsToSink(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(sink, 8, nil)
	for i := 0; i < 5; i++ {
		tr.Record(record("pooled", run.OutcomeSuccess))
	}
	require.NoError(t, tr.Close(context.Background()))
	assert.Equal(t, 5, sink.count())
}

func TestTracker_SinkFailuresSwallowed(t *testing.T) {
	for name, sink := range map[string]*recordingSink{
		"error": {err: errors.New("disk full")},
		"panic": {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			tr := NewTracker(sink, 8, nil)
			assert.NotPanics(t, func() {
				tr.Record(record("pooled", run.OutcomeSuccess))
				tr.Record(record("pooled", run.OutcomeTimeout))
			})
			require.NoError(t, tr.Close(context.Background()))
			assert.Equal(t, 2, tr.Len())
		})
	}
}

func TestTracker_FullQueueNeverBlocks(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	tr := NewTracker(sink, 1, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			tr.Record(record("pooled", run.OutcomeSuccess))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a stalled sink")
	}
	assert.Equal(t, 20, tr.Len())

	close(sink.block)
	require.NoError(t, tr.Close(context.Background()))
	assert.Less(t, sink.count(), 20)
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	tr := NewTracker(&recordingSink{}, 512, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record(record("pooled", run.OutcomeSuccess))
		}()
	}
	wg.Wait()
	require.NoError(t, tr.Close(context.Background()))
	assert.Equal(t, 50, tr.Len())
}

func TestTracker_RecordAfterClose(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTracker(sink, 4, nil)
	require.NoError(t, tr.Close(context.Background()))

	assert.NotPanics(t, func() { tr.Record(record("pooled", run.OutcomeSuccess)) })
	assert.Equal(t, 1, tr.Len())
	assert.Zero(t, sink.count())
}
