package main

import (
	"fmt"
	"sort"
	"strings"

	"statsuite/app"
	"statsuite/domain/result"
	"statsuite/domain/structure"
)

func printStructure(st structure.DataStructure) {
	fmt.Printf("Structure: %s (confidence %.2f)\n", st.Kind, st.Confidence)
	roles := []struct{ name, col string }{
		{"entity", st.EntityCol}, {"time", st.TimeCol}, {"duration", st.DurationCol},
		{"event", st.EventCol}, {"treatment", st.TreatmentCol}, {"outcome", st.OutcomeCol},
	}
	for _, r := range roles {
		if r.col != "" {
			fmt.Printf("  %-10s %s\n", r.name, r.col)
		}
	}
	if len(st.Covariates) > 0 {
		fmt.Printf("  %-10s %s\n", "covariates", strings.Join(st.Covariates, ", "))
	}
	if st.Kind == structure.KindPanel {
		fmt.Printf("  %d entities x %d periods\n", st.NEntities, st.NPeriods)
	}
	for _, w := range st.Warnings {
		fmt.Printf("  warning %s: %s\n", w.Code, w.Message)
	}
}

func printClassification(c *app.Classification) {
	printStructure(c.Structure)
	fmt.Println("\nCandidates:")
	for _, cand := range c.Candidates {
		fmt.Printf("  %d. %s (%s, %s)\n", cand.Rank, cand.Name, cand.Category, cand.CostTier)
	}
	if len(c.Rejected) > 0 {
		fmt.Println("\nRejected:")
		for _, r := range c.Rejected {
			fmt.Printf("  %s: %s\n", r.Method, r.Reason)
		}
	}
}

func metricString(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func printResult(r *result.SuiteResult) {
	fmt.Printf("Method: %s (%s)\n", r.MethodUsed, r.ModelType)
	fmt.Printf("  response %s, n=%d\n", r.Response, r.NObs)
	fmt.Printf("  AIC %s  BIC %s  logLik %s  R² %s\n", metricString(r.AIC), metricString(r.BIC), metricString(r.LogLikelihood), metricString(r.RSquared))

	names := make([]string, 0, len(r.Params))
	for k := range r.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Printf("  %-20s %12.6g\n", k, r.Params[k])
	}
	for _, w := range r.Warnings {
		fmt.Printf("  warning %s: %s\n", w.Code, w.Message)
	}
}

func printReport(rep *app.Report) {
	if rep.Analysis == nil {
		return
	}
	printStructure(rep.Structure)
	fmt.Printf("State: %s\n\n", rep.State)

	if rep.Result != nil {
		printResult(rep.Result)
	}
	if rep.Table != nil {
		fmt.Printf("Comparison by %s (response %s):\n", rep.Table.Metric, rep.Table.Response)
		for _, e := range rep.Table.Entries {
			rank, weight := "-", "-"
			if e.Rank > 0 {
				rank = fmt.Sprint(e.Rank)
			}
			if e.Weight != nil {
				weight = fmt.Sprintf("%.4f", *e.Weight)
			}
			score, _ := e.Result.Score(rep.Table.Metric)
			fmt.Printf("  %-3s %-22s weight %-8s score %.4f\n", rank, e.Result.MethodUsed, weight, score)
		}
	}
	if rep.Average != nil {
		fmt.Printf("\nModel-averaged predictions: %d values\n", len(rep.Average.Values))
	}
	if rep.AverageError != "" {
		fmt.Printf("\nAveraging skipped: %s\n", rep.AverageError)
	}
}
