package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
)

// Solver builds a schedule for an instance.
type Solver interface {
	Solve(inst *core.Instance) (*core.Solution, error)
	Name() string
}

// Config configures one simulation run.
type Config struct {
	Instance *core.Instance
	Solver   Solver
	Logger   *slog.Logger
}

// Result is the output of a simulation run.
type Result struct {
	Instance string         `json:"instance"`
	Solver   string         `json:"solver"`
	Solution *core.Solution `json:"solution"`
	Report   Report         `json:"report"`
	Elapsed  time.Duration  `json:"elapsed_ns"`
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
}

// Run solves the instance and audits the schedule. A solver error still
// yields a result holding whatever partial schedule came back; the error is
// returned alongside it.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res := &Result{Instance: cfg.Instance.Name, Solver: cfg.Solver.Name()}
	begin := time.Now()
	sol, err := cfg.Solver.Solve(cfg.Instance)
	res.Elapsed = time.Since(begin)
	if sol == nil {
		sol = core.NewSolution(res.Solver)
		sol.MarkIncomplete()
	}
	res.Solution = sol
	res.Report = Audit(cfg.Instance, sol)

	if err == nil {
		err = res.Report.Err()
	}
	if err != nil {
		res.Error = err.Error()
		logger.Warn("run failed",
			slog.String("instance", res.Instance),
			slog.String("solver", res.Solver),
			slog.Any("error", err))
		return res, fmt.Errorf("%s on %s: %w", res.Solver, res.Instance, err)
	}
	res.Success = true
	logger.Debug("run finished",
		slog.String("instance", res.Instance),
		slog.String("solver", res.Solver),
		slog.Float64("objective", sol.Objective),
		slog.Float64("delay", sol.Delay),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}

// Export writes the result to a JSON file.
func (r *Result) Export(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
