package app

import (
	"context"
	"fmt"

	"statsuite/domain/core"
	"statsuite/domain/dataset"
	"statsuite/domain/result"
	"statsuite/domain/run"
	"statsuite/domain/structure"
	"statsuite/internal"
	"statsuite/internal/compare"
	"statsuite/internal/dispatch"
	"statsuite/internal/errors"
	"statsuite/internal/registry"
	"statsuite/ports"
)

// AnalysisService is the request facade shared by the HTTP API and the CLI
type AnalysisService struct {
	suite       *dispatch.Suite
	recommender *registry.Recommender
	store       ports.ProvenanceReader // nil reads the in-memory log
	logger      *internal.Logger
}

// AnalyzeRequest defines one analysis
type AnalyzeRequest struct {
	Dataset *dataset.Dataset
	Options dispatch.AnalyzeOptions
	Average bool // model-average the comparison table; all mode only
}

// Report is the outcome of an analysis
type Report struct {
	*dispatch.Analysis
	Dataset      core.Hash          `json:"dataset"`
	Average      *result.Prediction `json:"average,omitempty"`
	AverageError string             `json:"average_error,omitempty"`
}

// Candidate is a recommended method
type Candidate struct {
	registry.Info
	Rank int `json:"rank"`
}

// RejectedMethod is a method filtered out by its precondition check
type RejectedMethod struct {
	Method string `json:"method"`
	Reason string `json:"reason"`
}

// Classification is the outcome of classifying a dataset
type Classification struct {
	Structure  structure.DataStructure `json:"structure"`
	Candidates []Candidate             `json:"candidates"`
	Rejected   []RejectedMethod        `json:"rejected,omitempty"`
}

// NewAnalysisService creates the facade. store may be nil.
func NewAnalysisService(suite *dispatch.Suite, store ports.ProvenanceReader, logger *internal.Logger) *AnalysisService {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &AnalysisService{
		suite:       suite,
		recommender: registry.NewRecommender(suite.Registry(), logger.Named("recommend")),
		store:       store,
		logger:      logger,
	}
}

// Analyze dispatches the request and optionally averages the fitted models.
// A failed average never fails the analysis; the reason is reported instead.
func (s *AnalysisService) Analyze(ctx context.Context, req AnalyzeRequest) (*Report, error) {
	if req.Dataset == nil {
		return nil, errors.InvalidInput("dataset is required")
	}
	if req.Average && req.Options.Method != dispatch.MethodAll {
		return nil, errors.InvalidInput("averaging requires method \"all\"")
	}

	analysis, err := s.suite.Analyze(ctx, req.Dataset, req.Options)
	report := &Report{Analysis: analysis, Dataset: req.Dataset.Fingerprint()}
	if err != nil {
		if analysis == nil {
			return nil, err
		}
		return report, err
	}

	if req.Average && analysis.Table != nil {
		results := make([]*result.SuiteResult, 0, len(analysis.Table.Entries))
		for _, e := range analysis.Table.Entries {
			if e.Rank > 0 {
				results = append(results, e.Result)
			}
		}
		pred, err := compare.Average(results, analysis.Table.Metric)
		if err != nil {
			s.logger.Warn("analysis: averaging skipped: %v", err)
			report.AverageError = err.Error()
		} else {
			report.Average = pred
		}
	}
	return report, nil
}

// Classify detects the structure, or describes it under a forced kind, and
// explains which methods apply
func (s *AnalysisService) Classify(data *dataset.Dataset, kind structure.Kind) (*Classification, error) {
	if data == nil {
		return nil, errors.InvalidInput("dataset is required")
	}
	var st structure.DataStructure
	if kind != "" && kind != structure.KindUnknown {
		st = s.suite.Classifier().Describe(data, kind)
	} else {
		st = s.suite.Classifier().Detect(data)
	}

	accepted, rejected := s.recommender.Explain(data, st)
	out := &Classification{Structure: st, Candidates: make([]Candidate, len(accepted))}
	for i, d := range accepted {
		out.Candidates[i] = Candidate{Info: d.Info(), Rank: i + 1}
	}
	for _, r := range rejected {
		out.Rejected = append(out.Rejected, RejectedMethod{Method: r.Method, Reason: r.Reason.Error()})
	}
	return out, nil
}

// Methods lists registered methods, optionally restricted to one kind
func (s *AnalysisService) Methods(kind structure.Kind) []registry.Info {
	var descs []registry.MethodDescriptor
	if kind == "" {
		descs = s.suite.Registry().All()
	} else {
		descs = s.suite.Registry().ForKind(kind)
	}
	out := make([]registry.Info, len(descs))
	for i, d := range descs {
		out[i] = d.Info()
	}
	return out
}

// Provenance queries stored records, falling back to the in-memory log
func (s *AnalysisService) Provenance(ctx context.Context, filter run.Filter) ([]run.Record, error) {
	if s.store == nil {
		return s.suite.Tracker().Query(filter), nil
	}
	records, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query provenance: %w", err)
	}
	return records, nil
}
