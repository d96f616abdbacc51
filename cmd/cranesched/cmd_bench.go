package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/elektrokombinacija/crane-mcts/internal/bench"
	"github.com/elektrokombinacija/crane-mcts/internal/gen"
	"github.com/elektrokombinacija/crane-mcts/internal/loader"
)

func newBenchCmd(a *app) *cobra.Command {
	var (
		input       string
		output      string
		workers     int
		solvers     []string
		metricsAddr string
		noRules     bool
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run every solver on a set of instances and write CSV results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := filepath.Glob(input)
			if err != nil {
				return fmt.Errorf("bad input pattern: %w", err)
			}
			if len(paths) == 0 {
				return fmt.Errorf("no instance files match %s", input)
			}

			opts := bench.Options{
				Workers: a.cfg.Bench.Workers,
				Solvers: a.cfg.Bench.Solvers,
				Search:  a.cfg.Search,
				Rules:   a.cfg.Rules,
				Logger:  a.logger,
			}
			if cmd.Flags().Changed("workers") {
				opts.Workers = workers
			}
			if cmd.Flags().Changed("solvers") {
				opts.Solvers = solvers
			}
			if noRules {
				opts.Rules.Enabled = false
			}

			addr := metricsAddr
			if addr == "" && a.cfg.Metrics.Enabled {
				addr = a.cfg.Metrics.Addr
			}
			ctx := cmd.Context()
			if addr != "" {
				var stop func()
				ctx, opts.Metrics, stop = a.serveMetrics(ctx, addr)
				defer stop()
			}

			rep, err := bench.Run(ctx, paths, opts)
			if err != nil {
				return err
			}
			if err := bench.WriteCSVFile(output, rep.Rows); err != nil {
				return fmt.Errorf("write results: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Run %s: %d instances x %d solvers\n", rep.RunID, len(paths), len(opts.Solvers))
			fmt.Fprintf(w, "Results written to: %s\n", output)
			bench.PrintSummary(w, bench.Summarize(rep.Rows))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&input, "input", "testdata/*.json", "glob of instance files")
	f.StringVar(&output, "output", "results/benchmark.csv", "CSV output file")
	f.IntVar(&workers, "workers", 0, "concurrent runs")
	f.StringSliceVar(&solvers, "solvers", nil, "solvers: earliest-ready, deadline-aware, mcts")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.BoolVar(&noRules, "no-rules", false, "disable precedence tightening rules")
	return cmd
}

func newGenCmd(a *app) *cobra.Command {
	var (
		count  int
		format string
		output string
	)
	p := gen.DefaultParams()
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate random crane instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch loader.Format(format) {
			case loader.FormatJSON, loader.FormatYAML:
			default:
				return fmt.Errorf("unsupported output format %q", format)
			}
			files, err := gen.Suite(p, count)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(output, 0o755); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, f := range files {
				path := filepath.Join(output, f.Name+"."+format)
				if err := f.Write(path); err != nil {
					return err
				}
				fmt.Fprintf(w, "Generated: %s\n", path)
			}
			a.logger.Info("instances generated", slog.Int("count", len(files)), slog.String("dir", output))
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&count, "count", 10, "number of instances")
	f.IntVar(&p.Tasks, "tasks", p.Tasks, "tasks per instance")
	f.IntVar(&p.Units, "units", p.Units, "units per instance")
	f.IntVar(&p.Tracks, "tracks", p.Tracks, "number of tracks")
	f.Int64Var(&p.Seed, "seed", p.Seed, "seed of the first instance")
	f.Float64Var(&p.PrecedenceProb, "precedence", p.PrecedenceProb, "probability of a precedence edge per task")
	f.StringVar(&format, "format", "json", "file format: json or yaml")
	f.StringVar(&output, "output", "testdata", "output directory")
	return cmd
}
