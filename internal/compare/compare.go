// Package compare ranks SuiteResults on a shared metric and forms
// Akaike-weighted model averages.
package compare

import (
	"fmt"
	"math"
	"sort"

	"statsuite/domain/core"
	"statsuite/domain/result"
)

// Compare ranks results by metric. Every result must share one response
// definition. Results lacking the metric are kept but unranked (rank 0) and
// placed after the ranked ones. Tied scores share a rank.
func Compare(results []*result.SuiteResult, metric result.Metric) (*result.ComparisonTable, error) {
	if _, ok := result.ParseMetric(string(metric)); !ok {
		return nil, fmt.Errorf("unknown comparison metric %q", metric)
	}
	response, err := sharedResponse(results)
	if err != nil {
		return nil, err
	}

	type scored struct {
		res   *result.SuiteResult
		score float64
	}
	var ranked []scored
	var unranked []*result.SuiteResult
	for _, r := range results {
		if s, ok := r.Score(metric); ok {
			ranked = append(ranked, scored{res: r, score: s})
		} else {
			unranked = append(unranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score < ranked[j].score })

	var weights []float64
	if metric.IsInformationCriterion() && len(ranked) > 0 {
		values := make([]float64, len(ranked))
		for i, s := range ranked {
			values[i] = s.score
		}
		weights = AkaikeWeights(values)
	}

	table := &result.ComparisonTable{
		Metric:    metric,
		Response:  response,
		Entries:   make([]result.Entry, 0, len(results)),
		CreatedAt: core.Now(),
	}
	rank := 0
	for i, s := range ranked {
		if i == 0 || s.score != ranked[i-1].score {
			rank = i + 1
		}
		entry := result.Entry{Result: s.res, Rank: rank}
		if weights != nil {
			w := weights[i]
			entry.Weight = &w
		}
		table.Entries = append(table.Entries, entry)
	}
	for _, r := range unranked {
		table.Entries = append(table.Entries, result.Entry{Result: r})
	}
	return table, nil
}

// AkaikeWeights returns w_i = exp(-0.5 (v_i - min v)) / sum over j. The
// minimum is subtracted before exponentiating so large criteria do not
// underflow.
func AkaikeWeights(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	lowest := math.Inf(1)
	for _, v := range values {
		if v < lowest {
			lowest = v
		}
	}
	weights := make([]float64, len(values))
	total := 0.0
	for i, v := range values {
		weights[i] = math.Exp(-0.5 * (v - lowest))
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

// Average combines the predictions of results weighted by their Akaike
// weights on metric. Only predictions are averaged; parameters from
// different families are never combined.
func Average(results []*result.SuiteResult, metric result.Metric) (*result.Prediction, error) {
	if !metric.IsInformationCriterion() {
		return nil, fmt.Errorf("model averaging requires aic or bic, got %q", metric)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no results to average", core.ErrNoPredictions)
	}
	response, err := sharedResponse(results)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(results))
	length := -1
	for i, r := range results {
		score, ok := r.Score(metric)
		if !ok {
			return nil, &core.IncomparableResultsError{Reason: fmt.Sprintf("%s has no %s", r.MethodUsed, metric)}
		}
		if len(r.Predictions) == 0 {
			return nil, fmt.Errorf("%w: %s", core.ErrNoPredictions, r.MethodUsed)
		}
		if length >= 0 && len(r.Predictions) != length {
			return nil, &core.IncomparableResultsError{
				Reason: fmt.Sprintf("%s has %d predictions, expected %d", r.MethodUsed, len(r.Predictions), length),
			}
		}
		length = len(r.Predictions)
		values[i] = score
	}

	weights := AkaikeWeights(values)
	out := &result.Prediction{
		Metric:   metric,
		Response: response,
		Values:   make([]float64, length),
		Weights:  make(map[string]float64, len(results)),
	}
	for i, r := range results {
		out.Weights[r.MethodUsed] += weights[i]
		for j, p := range r.Predictions {
			out.Values[j] += weights[i] * p
		}
	}
	return out, nil
}

func sharedResponse(results []*result.SuiteResult) (string, error) {
	if len(results) == 0 {
		return "", nil
	}
	seen := map[string]bool{}
	var responses []string
	for _, r := range results {
		if !seen[r.Response] {
			seen[r.Response] = true
			responses = append(responses, r.Response)
		}
	}
	if len(responses) > 1 {
		return "", &core.IncomparableResultsError{Responses: responses}
	}
	return responses[0], nil
}
