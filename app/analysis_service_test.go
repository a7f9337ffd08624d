package app

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"statsuite/adapters/estimators"
	"statsuite/domain/dataset"
	"statsuite/domain/run"
	"statsuite/domain/structure"
	"statsuite/internal/config"
	"statsuite/internal/dispatch"
	"statsuite/internal/errors"
	"statsuite/internal/provenance"
	"statsuite/internal/registry"
)

type MockReader struct {
	mock.Mock
}

func (m *MockReader) List(ctx context.Context, filter run.Filter) ([]run.Record, error) {
	args := m.Called(ctx, filter)
	recs, _ := args.Get(0).([]run.Record)
	return recs, args.Error(1)
}

func newService(t *testing.T, store *MockReader) *AnalysisService {
	t.Helper()
	reg := registry.New()
	require.NoError(t, estimators.RegisterBuiltins(reg))
	suite := dispatch.New(reg, nil, provenance.NewTracker(nil, 0, nil), config.Default().Suite, nil)
	if store == nil {
		return NewAnalysisService(suite, nil, nil)
	}
	return NewAnalysisService(suite, store, nil)
}

func players() *dataset.Dataset {
	noise := []float64{0.12, -0.08, 0.05, -0.11, 0.07, -0.04, 0.09, -0.13, 0.02, 0.06, -0.07, 0.1, -0.02, 0.04, -0.09}
	var ids []string
	var seasons, points []float64
	for p, id := range []string{"p1", "p2", "p3"} {
		for s := 0; s < 5; s++ {
			ids = append(ids, id)
			seasons = append(seasons, float64(2019+s))
			points = append(points, 18+2*float64(p)+0.4*float64(s)+noise[p*5+s])
		}
	}
	return dataset.MustNew("players",
		dataset.NewCategoricalColumn("player_id", ids),
		dataset.NewNumericColumn("season", seasons),
		dataset.NewNumericColumn("points_per_game", points),
	)
}

func TestAnalysisService_AnalyzeAllWithAverage(t *testing.T) {
	svc := newService(t, nil)

	report, err := svc.Analyze(context.Background(), AnalyzeRequest{
		Dataset: players(),
		Options: dispatch.AnalyzeOptions{Method: dispatch.MethodAll},
		Average: true,
	})
	require.NoError(t, err)

	assert.Equal(t, players().Fingerprint(), report.Dataset)
	require.NotNil(t, report.Table)
	require.NotNil(t, report.Average)
	assert.Empty(t, report.AverageError)
	assert.Len(t, report.Average.Values, 15)
	assert.Len(t, report.Average.Weights, 4)
}

func TestAnalysisService_AverageRequiresAllMode(t *testing.T) {
	svc := newService(t, nil)

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{Dataset: players(), Average: true})

	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestAnalysisService_AnalyzeRequiresDataset(t *testing.T) {
	svc := newService(t, nil)

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{})

	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestAnalysisService_FailedAnalysisKeepsTrace(t *testing.T) {
	svc := newService(t, nil)
	data := dataset.MustNew("flat",
		dataset.NewNumericColumn("a", []float64{1, 2, 3}),
	)

	report, err := svc.Analyze(context.Background(), AnalyzeRequest{Dataset: data})

	require.Error(t, err)
	if report != nil {
		assert.NotEmpty(t, report.Trace)
	}
}

func TestAnalysisService_Classify(t *testing.T) {
	svc := newService(t, nil)

	c, err := svc.Classify(players(), "")
	require.NoError(t, err)
	assert.Equal(t, structure.KindPanel, c.Structure.Kind)
	require.Len(t, c.Candidates, 4)
	assert.Equal(t, "pooled", c.Candidates[0].Name)
	assert.Equal(t, 1, c.Candidates[0].Rank)

	forced, err := svc.Classify(players(), structure.KindTimeSeries)
	require.NoError(t, err)
	assert.Equal(t, structure.KindTimeSeries, forced.Structure.Kind)
}

func TestAnalysisService_Methods(t *testing.T) {
	svc := newService(t, nil)

	assert.Len(t, svc.Methods(""), len(estimators.Builtins()))

	var names []string
	for _, info := range svc.Methods(structure.KindSurvival) {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"kaplan_meier", "exponential", "weibull"}, names)
}

func TestAnalysisService_ProvenanceFromMemory(t *testing.T) {
	svc := newService(t, nil)
	_, err := svc.Analyze(context.Background(), AnalyzeRequest{Dataset: players()})
	require.NoError(t, err)

	recs, err := svc.Provenance(context.Background(), run.Filter{Outcome: run.OutcomeSuccess})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "pooled", recs[0].Method)
}

func TestAnalysisService_ProvenanceFromStore(t *testing.T) {
	store := new(MockReader)
	filter := run.Filter{Method: "weibull", Limit: 5}
	store.On("List", mock.Anything, filter).Return([]run.Record{{Method: "weibull"}}, nil).Once()
	svc := newService(t, store)

	recs, err := svc.Provenance(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	store.On("List", mock.Anything, run.Filter{}).Return(nil, stderrors.New("connection refused")).Once()
	_, err = svc.Provenance(context.Background(), run.Filter{})
	assert.ErrorContains(t, err, "connection refused")
	store.AssertExpectations(t)
}
