// Package algo implements crane scheduling algorithms: construction
// heuristics, reward calibration and Monte Carlo tree search.
package algo

import (
	"errors"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
	"github.com/elektrokombinacija/crane-mcts/internal/schedule"
)

// Solver is the interface for crane scheduling algorithms.
type Solver interface {
	// Solve builds a schedule for the instance.
	// An incomplete solution is returned together with the error that stopped it.
	Solve(inst *core.Instance) (*core.Solution, error)

	// Name returns the algorithm name.
	Name() string
}

// ErrNoLegalMove is returned when a search root admits no action.
var ErrNoLegalMove = errors.New("no legal move")

// Decision is one committed assignment with its start time.
type Decision struct {
	Action core.Action
	Start  float64
}

// SelectTask returns the ready task with the smallest start bound, ties
// broken by smallest id. ok is false when nothing is ready.
func SelectTask(s *schedule.State) (t core.TaskID, ok bool) {
	for _, r := range s.ReadyTasks() {
		if !ok || s.Bound(r) < s.Bound(t) {
			t, ok = r, true
		}
	}
	return t, ok
}

// LegalActions lists every (ready task, compatible unit) pair.
func LegalActions(inst *core.Instance, s *schedule.State) []core.Action {
	var out []core.Action
	for _, t := range s.ReadyTasks() {
		for _, v := range inst.Tasks[t].Units {
			out = append(out, core.Action{Task: t, Unit: v})
		}
	}
	return out
}
