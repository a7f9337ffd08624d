package container

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statsuite/app"
	"statsuite/domain/dataset"
	"statsuite/domain/run"
	"statsuite/internal/config"
	"statsuite/internal/errors"
)

func survival() *dataset.Dataset {
	return dataset.MustNew("trial",
		dataset.NewNumericColumn("survival_time", []float64{2, 3, 3, 5, 6, 8, 9, 11, 12, 15, 18, 21}),
		dataset.NewNumericColumn("event", []float64{1, 1, 0, 1, 1, 1, 0, 1, 1, 1, 0, 1}),
	)
}

func TestNew_MemoryDriver(t *testing.T) {
	c, err := New(context.Background(), config.Default())
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown(context.Background()) }) //nolint:errcheck

	assert.Nil(t, c.Store)
	assert.True(t, c.Registry.Sealed())
	assert.NotEmpty(t, c.Registry.All())
}

func TestNew_SQLiteDriverPersistsRecords(t *testing.T) {
	cfg := config.Default()
	cfg.Provenance.Driver = config.DriverSQLite
	cfg.Provenance.DSN = filepath.Join(t.TempDir(), "provenance.db")
	ctx := context.Background()

	c, err := New(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, c.Store)

	_, err = c.AnalysisService.Analyze(ctx, app.AnalyzeRequest{Dataset: survival()})
	require.NoError(t, err)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	// Drain the sink queue before reading the store
	require.NoError(t, c.Tracker.Close(shutdownCtx))

	recs, err := c.Store.List(ctx, run.Filter{Method: "kaplan_meier"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, run.OutcomeSuccess, recs[0].Outcome)
	require.NoError(t, c.Store.Close())
}

func TestNew_UnopenableStore(t *testing.T) {
	cfg := config.Default()
	cfg.Provenance.Driver = config.DriverSQLite
	cfg.Provenance.DSN = filepath.Join(t.TempDir(), "missing", "provenance.db")

	_, err := New(context.Background(), cfg)

	require.Error(t, err)
	assert.Equal(t, errors.CodeStoreError, errors.GetCode(err))
	assert.Contains(t, err.Error(), "sqlite provenance store")
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}
