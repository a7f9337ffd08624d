package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"statsuite/adapters/excel"
	"statsuite/app"
	"statsuite/domain/dataset"
	"statsuite/domain/method"
	"statsuite/domain/result"
	"statsuite/domain/run"
	"statsuite/domain/structure"
	"statsuite/internal/config"
	"statsuite/internal/container"
	"statsuite/internal/dispatch"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "statsuite",
		Short: "Detect dataset structure and fit the matching statistical methods",
	}
	rootCmd.PersistentFlags().Bool("json", false, "Print results as JSON")

	rootCmd.AddCommand(
		newAnalyzeCmd(),
		newClassifyCmd(),
		newMethodsCmd(),
		newProvenanceCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// readFlags are shared by every command that loads a file
type readFlags struct {
	sheet      string
	entity     string
	timeCol    string
	duration   string
	event      string
	treatment  string
	outcome    string
	covariates []string
}

func (f *readFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "Worksheet to read from an XLSX file (default: first sheet)")
	cmd.Flags().StringVar(&f.entity, "entity", "", "Entity column")
	cmd.Flags().StringVar(&f.timeCol, "time", "", "Time column")
	cmd.Flags().StringVar(&f.duration, "duration", "", "Duration column for survival data")
	cmd.Flags().StringVar(&f.event, "event", "", "Event indicator column for survival data")
	cmd.Flags().StringVar(&f.treatment, "treatment", "", "Treatment indicator column")
	cmd.Flags().StringVar(&f.outcome, "outcome", "", "Outcome column")
	cmd.Flags().StringSliceVar(&f.covariates, "covariates", nil, "Covariate columns")
}

func (f *readFlags) roles() dataset.RoleMapping {
	return dataset.RoleMapping{
		Entity:     f.entity,
		Time:       f.timeCol,
		Duration:   f.duration,
		Event:      f.event,
		Treatment:  f.treatment,
		Outcome:    f.outcome,
		Covariates: f.covariates,
	}
}

func (f *readFlags) load(ctx context.Context, path string) (*dataset.Dataset, error) {
	var opts []excel.Option
	if f.sheet != "" {
		opts = append(opts, excel.WithSheet(f.sheet))
	}
	ds, err := excel.NewDataReader(path, opts...).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if roles := f.roles(); !roles.IsZero() {
		return ds.WithRoles(roles)
	}
	return ds, nil
}

// withContainer loads configuration, builds the container and always shuts it down
func withContainer(ctx context.Context, fn func(*container.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	c, err := container.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.Shutdown(shutdownCtx)
	}()
	return fn(c)
}

func newAnalyzeCmd() *cobra.Command {
	var rf readFlags
	var methodName, kind, metric string
	var average bool
	var params []string

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Classify a CSV or XLSX file and fit methods",
		Long: `Classify a dataset and dispatch estimation methods.

--method selects the mode: "auto" fits the top candidate with fallback,
"all" fits every candidate and ranks them, any other value fits that method.

Example: statsuite analyze players.csv --method all --average --param seed=7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := rf.load(ctx, args[0])
			if err != nil {
				return err
			}
			opts := dispatch.AnalyzeOptions{Method: methodName}
			if opts.Params, err = parseParams(params); err != nil {
				return err
			}
			if kind != "" {
				k, ok := structure.ParseKind(kind)
				if !ok {
					return fmt.Errorf("unknown kind %q", kind)
				}
				opts.Kind = k
			}
			if metric != "" {
				m, ok := result.ParseMetric(metric)
				if !ok {
					return fmt.Errorf("unknown metric %q", metric)
				}
				opts.Metric = m
			}

			return withContainer(ctx, func(c *container.Container) error {
				report, err := c.AnalysisService.Analyze(ctx, app.AnalyzeRequest{Dataset: data, Options: opts, Average: average})
				if report != nil {
					if jsonOutput(cmd) {
						if perr := printJSON(report); perr != nil {
							return perr
						}
					} else {
						printReport(report)
					}
				}
				return err
			})
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVar(&methodName, "method", dispatch.MethodAuto, "auto, all, or a method name")
	cmd.Flags().StringVar(&kind, "kind", "", "Force the structure kind: time_series|panel|survival|cross_sectional_causal")
	cmd.Flags().StringVar(&metric, "metric", "", "Comparison metric for all mode: aic|bic|log_likelihood|r_squared")
	cmd.Flags().BoolVar(&average, "average", false, "Model-average predictions across the comparison table (all mode)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Fit parameter as key=value; repeatable")
	return cmd
}

func newClassifyCmd() *cobra.Command {
	var rf readFlags
	var kind string

	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Detect the structure of a file and list candidate methods",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := rf.load(ctx, args[0])
			if err != nil {
				return err
			}
			var k structure.Kind
			if kind != "" {
				var ok bool
				if k, ok = structure.ParseKind(kind); !ok {
					return fmt.Errorf("unknown kind %q", kind)
				}
			}
			return withContainer(ctx, func(c *container.Container) error {
				out, err := c.AnalysisService.Classify(data, k)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(out)
				}
				printClassification(out)
				return nil
			})
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", "", "Describe the file under a forced kind")
	return cmd
}

func newMethodsCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "methods",
		Short: "List registered methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var k structure.Kind
			if kind != "" {
				var ok bool
				if k, ok = structure.ParseKind(kind); !ok {
					return fmt.Errorf("unknown kind %q", kind)
				}
			}
			return withContainer(cmd.Context(), func(c *container.Container) error {
				infos := c.AnalysisService.Methods(k)
				if jsonOutput(cmd) {
					return printJSON(infos)
				}
				for _, info := range infos {
					kinds := make([]string, len(info.Kinds))
					for i, kk := range info.Kinds {
						kinds[i] = string(kk)
					}
					fmt.Printf("%-24s %-12s %-12s suitability=%d kinds=%s\n", info.Name, info.Category, info.CostTier, info.Suitability, strings.Join(kinds, ","))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only list methods for this kind")
	return cmd
}

func newProvenanceCmd() *cobra.Command {
	var filter run.Filter
	var kind, outcome, mode string

	cmd := &cobra.Command{
		Use:   "provenance",
		Short: "Query stored fit attempt records",
		Long: `Query provenance records from the configured store.

Requires PROVENANCE_DRIVER=sqlite|postgres and PROVENANCE_DSN; the memory
driver only holds records for the lifetime of one process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.StructureKind = structure.Kind(kind)
			filter.Outcome = run.Outcome(outcome)
			filter.Mode = run.Mode(mode)
			return withContainer(cmd.Context(), func(c *container.Container) error {
				records, err := c.AnalysisService.Provenance(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(records)
				}
				for _, r := range records {
					fmt.Printf("%s  %-22s %-9s %-22s %8s %s\n",
						r.StartedAt.Format(time.RFC3339), r.Method, r.Mode, r.Outcome, r.Duration.Round(time.Millisecond), r.Reason)
				}
				fmt.Printf("%d records\n", len(records))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.Method, "method", "", "Filter by method")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by structure kind")
	cmd.Flags().StringVar(&outcome, "outcome", "", "Filter by outcome")
	cmd.Flags().StringVar(&mode, "mode", "", "Filter by dispatch mode")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "Maximum records to return; 0 for all")
	return cmd
}

// parseParams turns key=value pairs into fit parameters. Numeric values
// become float64 like JSON numbers; everything else stays a string.
func parseParams(pairs []string) (method.Params, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := method.Params{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("param %q must be key=value", pair)
		}
		value = strings.TrimSpace(value)
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			out[key] = f
		} else {
			out[key] = value
		}
	}
	return out, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
