package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/elektrokombinacija/crane-mcts/internal/algo"
	"github.com/elektrokombinacija/crane-mcts/internal/core"
	"github.com/elektrokombinacija/crane-mcts/internal/loader"
	"github.com/elektrokombinacija/crane-mcts/internal/prep"
	"github.com/elektrokombinacija/crane-mcts/internal/sim"
	"github.com/elektrokombinacija/crane-mcts/internal/telemetry"
)

// loadInstance reads path with the configured rules, or none when noRules.
func (a *app) loadInstance(path string, noRules bool) (*core.Instance, prep.Report, error) {
	opts := a.cfg.Rules
	if noRules {
		opts.Enabled = false
	}
	inst, rep, err := loader.Load(path, opts)
	if err != nil {
		return nil, rep, err
	}
	a.logger.Debug("instance loaded",
		slog.String("instance", inst.Name),
		slog.Int("tasks", inst.NumTasks()),
		slog.Int("units", inst.NumUnits()),
		slog.Int("added_edges", rep.Total()))
	return inst, rep, nil
}

func newSolveCmd(a *app) *cobra.Command {
	var (
		sims         int
		exploration  float64
		final        string
		seed         int64
		rolloutLimit int
		noRules      bool
		out          string
	)
	cmd := &cobra.Command{
		Use:   "solve <instance>",
		Short: "Build a schedule with Monte Carlo tree search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			search := a.cfg.Search
			flags := cmd.Flags()
			if flags.Changed("sims") {
				search.Simulations = sims
			}
			if flags.Changed("c") {
				search.Exploration = exploration
			}
			if flags.Changed("final") {
				search.FinalAction = algo.FinalAction(final)
			}
			if flags.Changed("seed") {
				search.Seed = seed
			}
			if flags.Changed("rollout-limit") {
				search.RolloutLimit = rolloutLimit
			}

			inst, rep, err := a.loadInstance(args[0], noRules)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Instance: %s (%d tasks, %d units, %d added edges)\n",
				inst.Name, inst.NumTasks(), inst.NumUnits(), rep.Total())

			ctx := cmd.Context()
			obs := algo.Observers{&progress{logger: a.logger, total: inst.NumTasks()}}
			if a.cfg.Metrics.Enabled {
				var (
					m    *telemetry.Metrics
					stop func()
				)
				ctx, m, stop = a.serveMetrics(ctx, a.cfg.Metrics.Addr)
				defer stop()
				obs = append(obs, m)
			}

			res, runErr := algo.NewPlanner(search).WithLogger(a.logger).WithObserver(obs).Run(ctx, inst)
			if res == nil {
				return runErr
			}
			fmt.Fprintf(w, "Baseline (%s): objective=%.3f delay=%.3f\n",
				res.Baseline.Solver, res.Baseline.Objective, res.Baseline.Delay)
			fmt.Fprintf(w, "MCTS: objective=%.3f delay=%.3f decisions=%d time=%v\n",
				res.Solution.Objective, res.Solution.Delay, res.Decisions, res.Elapsed)
			fmt.Fprintf(w, "Improvement: %.2f%%\n", 100*res.Improvement())

			report := sim.Audit(inst, res.Solution)
			printAudit(w, report)

			if out != "" {
				if err := writeSolution(out, res.Solution); err != nil {
					return err
				}
				fmt.Fprintf(w, "Solution written to: %s\n", out)
			}
			if runErr != nil {
				return runErr
			}
			return report.Err()
		},
	}
	f := cmd.Flags()
	f.IntVar(&sims, "sims", 0, "simulations per decision")
	f.Float64Var(&exploration, "c", 0, "UCT exploration constant")
	f.StringVar(&final, "final", "", "final action rule: visits or q")
	f.Int64Var(&seed, "seed", 0, "random seed")
	f.IntVar(&rolloutLimit, "rollout-limit", 0, "maximum rollout steps (0 = unlimited)")
	f.BoolVar(&noRules, "no-rules", false, "disable precedence tightening rules")
	f.StringVar(&out, "out", "", "write the solution as JSON")
	return cmd
}

// progress logs every committed decision.
type progress struct {
	logger *slog.Logger
	total  int
	done   int
}

func (p *progress) OnNodeExpanded(core.Action, float64, int) {}

func (p *progress) OnRollout(algo.RolloutOutcome, float64) {}

func (p *progress) OnDecision(d algo.Decision, stats algo.SearchStats) {
	p.done++
	p.logger.Info("decision",
		slog.Int("step", p.done),
		slog.Int("of", p.total),
		slog.String("action", d.Action.String()),
		slog.Float64("start", d.Start),
		slog.Float64("best_reward", stats.BestReward),
		slog.Int("nodes", stats.Nodes),
		slog.Duration("elapsed", stats.Elapsed))
}

func newBaselineCmd(a *app) *cobra.Command {
	var noRules bool
	cmd := &cobra.Command{
		Use:   "baseline <instance>",
		Short: "Run both construction heuristics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, _, err := a.loadInstance(args[0], noRules)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			failed := 0
			for _, s := range []sim.Solver{
				algo.NewEarliestReady().WithLogger(a.logger),
				algo.NewDeadlineAware().WithLogger(a.logger),
			} {
				res, err := sim.Run(cmd.Context(), sim.Config{Instance: inst, Solver: s, Logger: a.logger})
				if res == nil {
					return err
				}
				if err != nil {
					failed++
				}
				fmt.Fprintf(w, "%-15s objective=%.3f delay=%.3f makespan=%.3f late=%d complete=%t time=%v\n",
					res.Solver, res.Solution.Objective, res.Solution.Delay,
					res.Report.Metrics.Makespan, res.Report.Metrics.LateTasks,
					res.Solution.Complete, res.Elapsed)
				if err != nil {
					fmt.Fprintf(w, "  error: %v\n", err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d heuristic(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noRules, "no-rules", false, "disable precedence tightening rules")
	return cmd
}

func newCalibrateCmd(a *app) *cobra.Command {
	var (
		noRules bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "calibrate <instance>",
		Short: "Compute the reward normalization references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, _, err := a.loadInstance(args[0], noRules)
			if err != nil {
				return err
			}
			refs, err := algo.Calibrate(inst)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(refs)
			}
			fmt.Fprintf(w, "obj_ref=%.3f dcap=%.3f eps=%g\n", refs.ObjRef, refs.DCap, refs.Eps)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noRules, "no-rules", false, "disable precedence tightening rules")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit <instance> <solution.json>",
		Short: "Check a schedule against the instance constraints",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Rule-added edges are not constraints of the instance itself.
			inst, _, err := a.loadInstance(args[0], true)
			if err != nil {
				return err
			}
			sol, err := readSolution(args[1])
			if err != nil {
				return err
			}
			report := sim.Audit(inst, sol)
			printAudit(cmd.OutOrStdout(), report)
			return report.Err()
		},
	}
	return cmd
}

func printAudit(w io.Writer, r sim.Report) {
	m := r.Metrics
	fmt.Fprintf(w, "Audit: scheduled=%d makespan=%.3f objective=%.3f late=%d delay=%.3f max_lateness=%.3f\n",
		m.Scheduled, m.Makespan, m.Objective, m.LateTasks, m.TotalDelay, m.MaxLateness)
	for _, u := range m.Units {
		fmt.Fprintf(w, "  unit %d: tasks=%d busy=%.3f travel=%.3f utilization=%.1f%%\n",
			u.Unit, u.Tasks, u.Busy, u.Travel, 100*u.Utilization)
	}
	if r.OK() {
		fmt.Fprintln(w, "Audit: OK")
		return
	}
	fmt.Fprintf(w, "Audit: %d violation(s)\n", len(r.Violations))
	for _, v := range r.Violations {
		fmt.Fprintf(w, "  %s\n", v)
	}
}

func writeSolution(path string, sol *core.Solution) error {
	data, err := json.MarshalIndent(sol, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readSolution(path string) (*core.Solution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read solution: %w", err)
	}
	var sol core.Solution
	if err := json.Unmarshal(data, &sol); err != nil {
		return nil, fmt.Errorf("parse solution %s: %w", path, err)
	}
	return &sol, nil
}
