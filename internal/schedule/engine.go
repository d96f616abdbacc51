package schedule

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
)

// Engine computes feasible starts and applies assignments for one instance.
// It never mutates the instance and may be shared between goroutines.
type Engine struct {
	inst *core.Instance
}

// NewEngine creates an engine, finalizing the instance first if needed.
func NewEngine(inst *core.Instance) (*Engine, error) {
	if !inst.Finalized() {
		if err := inst.Finalize(); err != nil {
			return nil, err
		}
	}
	return &Engine{inst: inst}, nil
}

// Instance returns the instance the engine schedules.
func (e *Engine) Instance() *core.Instance { return e.inst }

// Initial returns the empty schedule.
func (e *Engine) Initial() *State {
	n, m := e.inst.NumTasks(), e.inst.NumUnits()
	s := &State{
		start:    make([]float64, n),
		unit:     make([]core.UnitID, n),
		bound:    make([]float64, n),
		pending:  make([]int, n),
		assigned: make([][]core.TaskID, m),
		avail:    make([]float64, m),
		pos:      make([]float64, m),
		left:     n,
	}
	for i := range e.inst.Tasks {
		t := core.TaskID(i)
		s.unit[t] = core.NoUnit
		s.bound[t] = e.inst.Tasks[i].InitialBound()
		s.pending[t] = e.inst.PredecessorCount(t)
	}
	for i := range e.inst.Units {
		s.pos[i] = e.inst.Units[i].Start
	}
	return s
}

type interval struct{ lo, hi float64 }

// base is the start bound from precedence, unit availability and empty travel.
func (e *Engine) base(s *State, t core.TaskID, v core.UnitID) float64 {
	task := &e.inst.Tasks[t]
	return max(s.bound[t], s.avail[v]+e.inst.Travel(s.pos[v], task.Pickup))
}

// Window returns the earliest start of t on v that keeps t inside its start
// window and clears every interfering task already committed on another unit.
// ok is false when no such start exists.
//
// Rivals(v) is every unit sharing an interference tuple with v, including
// units t cannot run on, so a committed rival task is never overlooked.
func (e *Engine) Window(s *State, t core.TaskID, v core.UnitID) (start float64, ok bool) {
	task := &e.inst.Tasks[t]
	lo := e.base(s, t, v)
	if lo > task.LatestStart {
		return 0, false
	}
	set := []interval{{lo, task.LatestStart}}
	for _, v2 := range e.inst.Rivals(v) {
		for _, t2 := range s.assigned[v2] {
			after, found := e.inst.Offset(t2, t, v2, v)
			if !found {
				continue
			}
			before, _ := e.inst.Offset(t, t2, v, v2)
			s2 := s.start[t2]
			// t either finishes before t2 or starts after it.
			latest := s2 - before - task.Duration
			earliest := s2 + e.inst.Tasks[t2].Duration + after
			next := make([]interval, 0, len(set)+1)
			for _, iv := range set {
				if hi := min(iv.hi, latest); iv.lo <= hi {
					next = append(next, interval{iv.lo, hi})
				}
				// An after-part past iv.hi is empty; it must not leak its lower bound.
				if lo := max(iv.lo, earliest); lo <= iv.hi {
					next = append(next, interval{lo, iv.hi})
				}
			}
			if len(next) == 0 {
				return 0, false
			}
			set = merge(next)
		}
	}
	return set[0].lo, true
}

// merge sorts intervals and joins overlapping ones.
func merge(set []interval) []interval {
	slices.SortFunc(set, func(a, b interval) int { return cmp.Compare(a.lo, b.lo) })
	out := set[:1]
	for _, iv := range set[1:] {
		last := &out[len(out)-1]
		if iv.lo <= last.hi {
			last.hi = max(last.hi, iv.hi)
			continue
		}
		out = append(out, iv)
	}
	return out
}

// UnconstrainedStart returns the earliest start of t on v that follows every
// interfering task already committed on another unit, ignoring the deadline.
func (e *Engine) UnconstrainedStart(s *State, t core.TaskID, v core.UnitID) float64 {
	start := e.base(s, t, v)
	for _, v2 := range e.inst.Rivals(v) {
		for _, t2 := range s.assigned[v2] {
			if after, found := e.inst.Offset(t2, t, v2, v); found {
				start = max(start, s.start[t2]+e.inst.Tasks[t2].Duration+after)
			}
		}
	}
	return start
}

// FeasibleStart returns the window start when one exists and the
// unconstrained start otherwise. inWindow reports which one was used.
func (e *Engine) FeasibleStart(s *State, t core.TaskID, v core.UnitID) (start float64, inWindow bool) {
	if start, ok := e.Window(s, t, v); ok {
		return start, true
	}
	return e.UnconstrainedStart(s, t, v), false
}

// Apply assigns t to v at start and returns the successor state.
// The receiver state is left untouched.
func (e *Engine) Apply(s *State, t core.TaskID, v core.UnitID, start float64) (*State, error) {
	task := &e.inst.Tasks[t]
	switch {
	case s.unit[t] != core.NoUnit:
		return nil, fmt.Errorf("task %d: %w", t, ErrTaskScheduled)
	case s.pending[t] > 0:
		return nil, fmt.Errorf("task %d: %w", t, ErrTaskNotReady)
	case !task.CompatibleWith(v):
		return nil, fmt.Errorf("task %d on unit %d: %w", t, v, ErrIncompatibleUnit)
	case start < s.avail[v]:
		return nil, fmt.Errorf("task %d at %g on unit %d free at %g: %w", t, start, v, s.avail[v], ErrStartBeforeAvailable)
	}

	n := s.clone()
	n.start[t] = start
	n.unit[t] = v
	n.left--

	old := s.assigned[v]
	list := make([]core.TaskID, len(old), len(old)+1)
	copy(list, old)
	n.assigned[v] = append(list, t)

	n.seq = make([]core.Action, len(s.seq), len(s.seq)+1)
	copy(n.seq, s.seq)
	n.seq = append(n.seq, core.Action{Task: t, Unit: v})

	n.avail[v] = start + task.Duration
	n.pos[v] = task.Drop

	for _, edge := range e.inst.Successors(t) {
		n.pending[edge.To]--
		n.bound[edge.To] = max(n.bound[edge.To], start+edge.Lag)
	}
	return n, nil
}

// Evaluate returns the objective (sum over objective tasks of start+h-r) and
// the total delay (sum over all tasks of max(0, start-due)) of a complete state.
func (e *Engine) Evaluate(s *State) (objective, delay float64, err error) {
	if !s.Done() {
		return 0, 0, fmt.Errorf("%d tasks left: %w", s.left, ErrIncomplete)
	}
	for _, t := range e.inst.Objective {
		task := &e.inst.Tasks[t]
		objective += s.start[t] + task.Duration - task.Weight
	}
	for i := range e.inst.Tasks {
		delay += e.inst.Tasks[i].Lateness(s.start[i])
	}
	return objective, delay, nil
}

// Solution converts a state into a solution. Incomplete states produce an
// incomplete solution holding the partial assignment.
func (e *Engine) Solution(s *State, solver string) *core.Solution {
	sol := core.NewSolution(solver)
	sol.Sequence = s.Sequence()
	for i, v := range s.unit {
		if v == core.NoUnit {
			continue
		}
		sol.Assignment[core.TaskID(i)] = v
		sol.Schedule[core.TaskID(i)] = s.start[i]
	}
	sol.ComputeMakespan(e.inst)
	obj, delay, err := e.Evaluate(s)
	if err != nil {
		sol.MarkIncomplete()
		return sol
	}
	sol.Objective, sol.Delay, sol.Complete = obj, delay, true
	return sol
}
