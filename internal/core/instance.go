package core

import (
	"fmt"
	"math"
	"slices"
)

// Edge is a precedence relation: To may start no earlier than start(From)+Lag.
type Edge struct {
	From TaskID
	To   TaskID
	Lag  float64
}

// Interference keys an offset between two tasks executed on two different units.
// When Task2 follows Task1, start(Task2) >= start(Task1)+h(Task1)+offset.
type Interference struct {
	Task1 TaskID
	Task2 TaskID
	Unit1 UnitID
	Unit2 UnitID
}

// Instance represents a crane scheduling problem.
// I = (T, V, V_tau, Xi, Theta, T_obj)
type Instance struct {
	Name       string
	Tasks      []Task
	Units      []Unit
	Edges      []Edge
	Offsets    map[Interference]float64
	Objective  []TaskID // tasks counted in the objective
	TravelTime float64  // time per position unit

	// Distance[i][j] is the longest-path lower bound on start(j)-start(i)
	// implied by precedence lags and start windows. Optional; filled by
	// preprocessing.
	Distance [][]float64

	succ   [][]Edge
	npred  []int
	rivals [][]UnitID
	ready  bool
}

// NewInstance creates an empty instance.
func NewInstance(name string) *Instance {
	return &Instance{
		Name:       name,
		Offsets:    make(map[Interference]float64),
		TravelTime: 1,
	}
}

// AddTask appends a task and returns its ID.
func (inst *Instance) AddTask(t Task) TaskID {
	t.ID = TaskID(len(inst.Tasks))
	inst.Tasks = append(inst.Tasks, t)
	inst.ready = false
	return t.ID
}

// AddUnit appends a unit and returns its ID.
func (inst *Instance) AddUnit(u Unit) UnitID {
	u.ID = UnitID(len(inst.Units))
	inst.Units = append(inst.Units, u)
	inst.ready = false
	return u.ID
}

// AddEdge records a precedence edge, keeping the largest lag for duplicates.
func (inst *Instance) AddEdge(from, to TaskID, lag float64) {
	for i := range inst.Edges {
		e := &inst.Edges[i]
		if e.From == from && e.To == to {
			e.Lag = max(e.Lag, lag)
			inst.ready = false
			return
		}
	}
	inst.Edges = append(inst.Edges, Edge{From: from, To: to, Lag: lag})
	inst.ready = false
}

// SetOffset records the offset for an interference tuple.
func (inst *Instance) SetOffset(t1, t2 TaskID, v1, v2 UnitID, offset float64) {
	if inst.Offsets == nil {
		inst.Offsets = make(map[Interference]float64)
	}
	inst.Offsets[Interference{Task1: t1, Task2: t2, Unit1: v1, Unit2: v2}] = offset
	inst.ready = false
}

// Offset returns the offset for (t1 on v1) followed by (t2 on v2).
func (inst *Instance) Offset(t1, t2 TaskID, v1, v2 UnitID) (float64, bool) {
	d, ok := inst.Offsets[Interference{Task1: t1, Task2: t2, Unit1: v1, Unit2: v2}]
	return d, ok
}

// Travel is the empty-travel time between two positions.
func (inst *Instance) Travel(from, to float64) float64 {
	return math.Abs(from-to) * inst.TravelTime
}

// NumTasks returns |T|.
func (inst *Instance) NumTasks() int { return len(inst.Tasks) }

// NumUnits returns |V|.
func (inst *Instance) NumUnits() int { return len(inst.Units) }

// Successors returns outgoing precedence edges of t. Requires Finalize.
func (inst *Instance) Successors(t TaskID) []Edge { return inst.succ[t] }

// PredecessorCount returns the number of direct predecessors of t. Requires Finalize.
func (inst *Instance) PredecessorCount(t TaskID) int { return inst.npred[t] }

// Rivals returns the units that share at least one interference tuple with v.
// Requires Finalize.
func (inst *Instance) Rivals(v UnitID) []UnitID { return inst.rivals[v] }

// Finalized reports whether indexes are current.
func (inst *Instance) Finalized() bool { return inst.ready }

// Finalize checks references and acyclicity, then builds the adjacency indexes.
// It must be called after the last mutation and before scheduling.
func (inst *Instance) Finalize() error {
	n, m := len(inst.Tasks), len(inst.Units)
	for i := range inst.Tasks {
		t := &inst.Tasks[i]
		if t.ID != TaskID(i) {
			return fmt.Errorf("%w: task at index %d has id %d", ErrInvalidInstance, i, t.ID)
		}
		for _, v := range t.Units {
			if v < 0 || int(v) >= m {
				return fmt.Errorf("%w: task %d references unit %d", ErrInvalidInstance, i, v)
			}
		}
		if t.Duration < 0 {
			return fmt.Errorf("%w: task %d has negative duration", ErrInvalidInstance, i)
		}
	}
	for i := range inst.Units {
		if inst.Units[i].ID != UnitID(i) {
			return fmt.Errorf("%w: unit at index %d has id %d", ErrInvalidInstance, i, inst.Units[i].ID)
		}
	}

	succ := make([][]Edge, n)
	npred := make([]int, n)
	for _, e := range inst.Edges {
		if !inst.validTask(e.From) || !inst.validTask(e.To) {
			return fmt.Errorf("%w: edge %d->%d out of range", ErrInvalidInstance, e.From, e.To)
		}
		if e.From == e.To {
			return fmt.Errorf("%w: task %d precedes itself", ErrPrecedenceCycle, e.From)
		}
		succ[e.From] = append(succ[e.From], e)
		npred[e.To]++
	}
	if t, ok := findCycle(succ); ok {
		return fmt.Errorf("%w: through task %d", ErrPrecedenceCycle, t)
	}

	rivals := make([][]UnitID, m)
	for k := range inst.Offsets {
		if !inst.validTask(k.Task1) || !inst.validTask(k.Task2) ||
			k.Unit1 < 0 || int(k.Unit1) >= m || k.Unit2 < 0 || int(k.Unit2) >= m {
			return fmt.Errorf("%w: interference %+v out of range", ErrInvalidInstance, k)
		}
		if !slices.Contains(rivals[k.Unit2], k.Unit1) {
			rivals[k.Unit2] = append(rivals[k.Unit2], k.Unit1)
		}
	}
	for v := range rivals {
		slices.Sort(rivals[v])
	}

	for _, t := range inst.Objective {
		if !inst.validTask(t) {
			return fmt.Errorf("%w: objective task %d out of range", ErrInvalidInstance, t)
		}
	}

	inst.succ, inst.npred, inst.rivals = succ, npred, rivals
	inst.ready = true
	return nil
}

// Validate runs Finalize and additionally requires that every task has a
// compatible unit and every interference tuple has its mirror.
func (inst *Instance) Validate() error {
	if err := inst.Finalize(); err != nil {
		return err
	}
	for i := range inst.Tasks {
		if len(inst.Tasks[i].Units) == 0 {
			return fmt.Errorf("%w: task %d", ErrNoCompatibleUnit, i)
		}
	}
	for k := range inst.Offsets {
		if k.Unit1 == k.Unit2 || k.Task1 == k.Task2 {
			return fmt.Errorf("%w: degenerate interference %+v", ErrInvalidInstance, k)
		}
		if _, ok := inst.Offset(k.Task2, k.Task1, k.Unit2, k.Unit1); !ok {
			return fmt.Errorf("%w: interference %+v has no mirror", ErrInvalidInstance, k)
		}
	}
	return nil
}

func (inst *Instance) validTask(t TaskID) bool {
	return t >= 0 && int(t) < len(inst.Tasks)
}
