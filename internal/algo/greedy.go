package algo

import (
	"fmt"
	"log/slog"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
	"github.com/elektrokombinacija/crane-mcts/internal/schedule"
)

// unitRule chooses the unit and start for an already selected task.
type unitRule func(eng *schedule.Engine, s *schedule.State, t core.TaskID) (core.UnitID, float64, error)

// Heuristic is a serial schedule generation scheme: repeatedly take the
// ready task with the smallest start bound and place it on the unit chosen
// by its rule.
type Heuristic struct {
	name   string
	rule   unitRule
	logger *slog.Logger
}

// NewEarliestReady creates the earliest-ready greedy. Units are compared by
// their unconstrained start, so deadlines never influence the choice.
func NewEarliestReady() *Heuristic {
	return &Heuristic{name: "EARLIEST-READY", rule: earliestReadyUnit, logger: slog.Default()}
}

// NewDeadlineAware creates the deadline-aware greedy. Units that keep the task
// inside its start window win; the unconstrained start is used only when no
// unit does.
func NewDeadlineAware() *Heuristic {
	return &Heuristic{name: "DEADLINE-AWARE", rule: deadlineAwareUnit, logger: slog.Default()}
}

func (h *Heuristic) Name() string { return h.name }

// WithLogger sets the logger.
func (h *Heuristic) WithLogger(l *slog.Logger) *Heuristic {
	h.logger = l
	return h
}

// Solve schedules every task of the instance.
func (h *Heuristic) Solve(inst *core.Instance) (*core.Solution, error) {
	eng, err := schedule.NewEngine(inst)
	if err != nil {
		return nil, err
	}
	s, err := h.Complete(eng, eng.Initial())
	sol := eng.Solution(s, h.name)
	if err != nil {
		return sol, err
	}
	h.logger.Debug("heuristic finished",
		slog.String("solver", h.name),
		slog.Float64("objective", sol.Objective),
		slog.Float64("delay", sol.Delay))
	return sol, nil
}

// Complete extends s until every task is scheduled. On error the last
// reachable state is returned alongside it.
func (h *Heuristic) Complete(eng *schedule.Engine, s *schedule.State) (*schedule.State, error) {
	for !s.Done() {
		d, err := h.Step(eng, s)
		if err != nil {
			return s, err
		}
		next, err := eng.Apply(s, d.Action.Task, d.Action.Unit, d.Start)
		if err != nil {
			return s, err
		}
		s = next
	}
	return s, nil
}

// Step returns the heuristic's next decision from s without applying it.
func (h *Heuristic) Step(eng *schedule.Engine, s *schedule.State) (Decision, error) {
	t, ok := SelectTask(s)
	if !ok {
		return Decision{}, fmt.Errorf("%d tasks left, none ready: %w", s.Unscheduled(), ErrNoLegalMove)
	}
	v, start, err := h.rule(eng, s, t)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Action: core.Action{Task: t, Unit: v}, Start: start}, nil
}

func earliestReadyUnit(eng *schedule.Engine, s *schedule.State, t core.TaskID) (core.UnitID, float64, error) {
	best, bestStart := core.NoUnit, 0.0
	for _, v := range eng.Instance().Tasks[t].Units {
		start := eng.UnconstrainedStart(s, t, v)
		if best == core.NoUnit || start < bestStart || (start == bestStart && v < best) {
			best, bestStart = v, start
		}
	}
	if best == core.NoUnit {
		return core.NoUnit, 0, fmt.Errorf("task %d: %w", t, core.ErrNoCompatibleUnit)
	}
	return best, bestStart, nil
}

func deadlineAwareUnit(eng *schedule.Engine, s *schedule.State, t core.TaskID) (core.UnitID, float64, error) {
	best, bestStart := core.NoUnit, 0.0
	units := eng.Instance().Tasks[t].Units
	for _, v := range units {
		start, ok := eng.Window(s, t, v)
		if !ok {
			continue
		}
		if best == core.NoUnit || start < bestStart || (start == bestStart && v < best) {
			best, bestStart = v, start
		}
	}
	if best != core.NoUnit {
		return best, bestStart, nil
	}
	// No unit keeps the task inside its window.
	return earliestReadyUnit(eng, s, t)
}
