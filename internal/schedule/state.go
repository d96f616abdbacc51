// Package schedule holds partial crane schedules and the transition engine
// that extends them one assignment at a time.
package schedule

import (
	"errors"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
)

var (
	ErrTaskScheduled        = errors.New("task already scheduled")
	ErrTaskNotReady         = errors.New("task has unscheduled predecessors")
	ErrIncompatibleUnit     = errors.New("unit is not compatible with task")
	ErrStartBeforeAvailable = errors.New("start precedes unit availability")
	ErrIncomplete           = errors.New("schedule is incomplete")
)

// State is an immutable snapshot of a partial schedule.
// States are never modified after construction; Engine.Apply returns a new
// State that shares untouched per-unit task lists with its parent.
type State struct {
	start    []float64     // S; valid where unit != NoUnit
	unit     []core.UnitID // assigned unit per task
	bound    []float64     // ES: start lower bound
	pending  []int         // Q: unscheduled predecessors
	assigned [][]core.TaskID
	avail    []float64 // C: time each unit becomes free
	pos      []float64 // L: position each unit ends at
	left     int       // |U|
	seq      []core.Action
}

// Start returns the start time of t and whether t is scheduled.
func (s *State) Start(t core.TaskID) (float64, bool) {
	if s.unit[t] == core.NoUnit {
		return 0, false
	}
	return s.start[t], true
}

// UnitOf returns the unit carrying t, or core.NoUnit.
func (s *State) UnitOf(t core.TaskID) core.UnitID { return s.unit[t] }

// Scheduled reports whether t has been assigned.
func (s *State) Scheduled(t core.TaskID) bool { return s.unit[t] != core.NoUnit }

// Bound returns the current earliest-start lower bound of t.
func (s *State) Bound(t core.TaskID) float64 { return s.bound[t] }

// Pending returns the number of unscheduled direct predecessors of t.
func (s *State) Pending(t core.TaskID) int { return s.pending[t] }

// Available returns when unit v finishes its last assigned task.
func (s *State) Available(v core.UnitID) float64 { return s.avail[v] }

// Position returns where unit v currently is.
func (s *State) Position(v core.UnitID) float64 { return s.pos[v] }

// Assigned returns a copy of the tasks assigned to v in assignment order.
func (s *State) Assigned(v core.UnitID) []core.TaskID {
	out := make([]core.TaskID, len(s.assigned[v]))
	copy(out, s.assigned[v])
	return out
}

// Unscheduled returns |U|.
func (s *State) Unscheduled() int { return s.left }

// Sequence returns a copy of the applied actions in order.
func (s *State) Sequence() []core.Action {
	return append([]core.Action(nil), s.seq...)
}

// Done reports whether every task is scheduled.
func (s *State) Done() bool { return s.left == 0 }

// Ready reports whether t is unscheduled with all predecessors scheduled.
func (s *State) Ready(t core.TaskID) bool {
	return s.unit[t] == core.NoUnit && s.pending[t] == 0
}

// ReadyTasks returns the ready tasks in ascending id order.
func (s *State) ReadyTasks() []core.TaskID {
	var out []core.TaskID
	for t := range s.unit {
		if s.Ready(core.TaskID(t)) {
			out = append(out, core.TaskID(t))
		}
	}
	return out
}

func (s *State) clone() *State {
	c := &State{
		start:    make([]float64, len(s.start)),
		unit:     make([]core.UnitID, len(s.unit)),
		bound:    make([]float64, len(s.bound)),
		pending:  make([]int, len(s.pending)),
		assigned: make([][]core.TaskID, len(s.assigned)),
		avail:    make([]float64, len(s.avail)),
		pos:      make([]float64, len(s.pos)),
		left:     s.left,
		seq:      s.seq,
	}
	copy(c.start, s.start)
	copy(c.unit, s.unit)
	copy(c.bound, s.bound)
	copy(c.pending, s.pending)
	copy(c.assigned, s.assigned)
	copy(c.avail, s.avail)
	copy(c.pos, s.pos)
	return c
}
