// Package bench runs every configured solver on a set of instance files and
// collects per-run metrics.
package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/elektrokombinacija/crane-mcts/internal/algo"
	"github.com/elektrokombinacija/crane-mcts/internal/loader"
	"github.com/elektrokombinacija/crane-mcts/internal/prep"
	"github.com/elektrokombinacija/crane-mcts/internal/sim"
	"github.com/elektrokombinacija/crane-mcts/internal/telemetry"
)

// Solver names accepted by NewSolver.
const (
	SolverEarliestReady = "earliest-ready"
	SolverDeadlineAware = "deadline-aware"
	SolverMCTS          = "mcts"
)

// ErrUnknownSolver is returned for a solver name NewSolver does not know.
var ErrUnknownSolver = errors.New("unknown solver")

// Options configures a benchmark run.
type Options struct {
	Workers int
	Solvers []string
	Search  algo.MCTSConfig
	Rules   prep.Options
	Metrics *telemetry.Metrics // optional
	Logger  *slog.Logger
}

// Row is the result of one solver on one instance.
type Row struct {
	RunID      string
	Timestamp  time.Time
	GoVersion  string
	OS         string
	Arch       string
	Instance   string
	Tasks      int
	Units      int
	AddedEdges int
	Solver     string
	RuntimeMs  float64
	Success    bool
	Complete   bool
	Objective  float64
	Delay      float64
	Makespan   float64
	LateTasks  int
	Violations int
	Error      string
}

// Report holds every row of a run, in job order.
type Report struct {
	RunID string
	Rows  []Row
}

// NewSolver builds a solver by name. obs may be nil.
func NewSolver(name string, cfg algo.MCTSConfig, obs algo.Observer, logger *slog.Logger) (sim.Solver, error) {
	switch name {
	case SolverEarliestReady:
		return algo.NewEarliestReady().WithLogger(logger), nil
	case SolverDeadlineAware:
		return algo.NewDeadlineAware().WithLogger(logger), nil
	case SolverMCTS:
		p := algo.NewPlanner(cfg).WithLogger(logger)
		if obs != nil {
			p.WithObserver(obs)
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSolver, name)
}

// Run executes every (instance, solver) pair on a bounded worker pool.
// Solver failures are recorded in the rows; a file that cannot be loaded
// stops the run.
func Run(ctx context.Context, paths []string, opts Options) (*Report, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	for _, name := range opts.Solvers {
		if _, err := NewSolver(name, opts.Search, nil, opts.Logger); err != nil {
			return nil, err
		}
	}
	if err := opts.Search.Validate(); err != nil && slices.Contains(opts.Solvers, SolverMCTS) {
		return nil, fmt.Errorf("search config: %w", err)
	}

	rep := &Report{
		RunID: uuid.NewString(),
		Rows:  make([]Row, len(paths)*len(opts.Solvers)),
	}
	logger := opts.Logger.With(slog.String("run_id", rep.RunID))
	logger.Info("benchmark started",
		slog.Int("instances", len(paths)),
		slog.Int("solvers", len(opts.Solvers)),
		slog.Int("workers", opts.Workers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, path := range paths {
		for j, name := range opts.Solvers {
			path, name := path, name
			idx := i*len(opts.Solvers) + j
			g.Go(func() error {
				row, err := runOne(gctx, path, name, opts, logger)
				if err != nil {
					return err
				}
				row.RunID = rep.RunID
				rep.Rows[idx] = row
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Info("benchmark finished", slog.Int("runs", len(rep.Rows)))
	return rep, nil
}

func runOne(ctx context.Context, path, name string, opts Options, logger *slog.Logger) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	inst, prepRep, err := loader.Load(path, opts.Rules)
	if err != nil {
		return Row{}, fmt.Errorf("load %s: %w", path, err)
	}
	var obs algo.Observer
	if opts.Metrics != nil {
		obs = opts.Metrics
	}
	solver, err := NewSolver(name, opts.Search, obs, logger)
	if err != nil {
		return Row{}, err
	}

	row := Row{
		Timestamp:  time.Now().UTC(),
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Instance:   inst.Name,
		Tasks:      inst.NumTasks(),
		Units:      inst.NumUnits(),
		AddedEdges: prepRep.Total(),
		Solver:     name,
	}
	res, runErr := sim.Run(ctx, sim.Config{Instance: inst, Solver: solver, Logger: logger})
	if res == nil {
		return Row{}, runErr
	}

	sol := res.Solution
	row.RuntimeMs = float64(res.Elapsed.Microseconds()) / 1000.0
	row.Success = res.Success
	row.Complete = sol.Complete
	row.Objective = sol.Objective
	row.Delay = sol.Delay
	row.Makespan = res.Report.Metrics.Makespan
	row.LateTasks = res.Report.Metrics.LateTasks
	row.Violations = len(res.Report.Violations)
	if runErr != nil {
		row.Error = runErr.Error()
	}

	if opts.Metrics != nil {
		opts.Metrics.RecordSolve(name, row.Success, res.Elapsed, row.Complete, row.Delay)
		for _, v := range res.Report.Violations {
			opts.Metrics.RecordViolation(string(v.Kind))
		}
	}
	logger.Debug("benchmark run",
		slog.String("instance", row.Instance),
		slog.String("solver", name),
		slog.Bool("success", row.Success),
		slog.Float64("runtime_ms", row.RuntimeMs))
	return row, nil
}
