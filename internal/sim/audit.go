// Package sim replays crane schedules against their instance: it checks
// every constraint independently of the engine that built the schedule and
// collects lateness and utilization metrics.
package sim

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
)

// tolerance absorbs float noise in time comparisons.
const tolerance = 1e-9

// ErrInvalidSchedule is returned by Report.Err when violations were found.
var ErrInvalidSchedule = errors.New("schedule violates instance constraints")

// ViolationKind classifies a broken constraint.
type ViolationKind string

const (
	ViolationMissing      ViolationKind = "missing"
	ViolationIncompatible ViolationKind = "incompatible"
	ViolationRelease      ViolationKind = "release"
	ViolationPrecedence   ViolationKind = "precedence"
	ViolationSequencing   ViolationKind = "sequencing"
	ViolationInterference ViolationKind = "interference"
)

// Violation is one broken constraint.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Tasks  []core.TaskID `json:"tasks"`
	Detail string        `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %v: %s", v.Kind, v.Tasks, v.Detail)
}

// UnitMetrics describes the workload of one unit.
type UnitMetrics struct {
	Unit        core.UnitID `json:"unit"`
	Tasks       int         `json:"tasks"`
	Busy        float64     `json:"busy"`   // sum of durations
	Travel      float64     `json:"travel"` // empty travel time
	Utilization float64     `json:"utilization"`
}

// Metrics summarizes a schedule.
type Metrics struct {
	Scheduled   int           `json:"scheduled"`
	Makespan    float64       `json:"makespan"`
	Objective   float64       `json:"objective"`
	LateTasks   int           `json:"late_tasks"`
	TotalDelay  float64       `json:"total_delay"`
	MaxLateness float64       `json:"max_lateness"`
	Units       []UnitMetrics `json:"units"`
}

// Report is the outcome of an audit.
type Report struct {
	Violations []Violation `json:"violations"`
	Metrics    Metrics     `json:"metrics"`
}

// OK reports whether no constraint is violated.
func (r *Report) OK() bool { return len(r.Violations) == 0 }

// Count returns the number of violations of one kind.
func (r *Report) Count(kind ViolationKind) int {
	n := 0
	for _, v := range r.Violations {
		if v.Kind == kind {
			n++
		}
	}
	return n
}

// Err wraps ErrInvalidSchedule with the first violations, or returns nil.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	const shown = 3
	var parts []string
	for i, v := range r.Violations {
		if i == shown {
			parts = append(parts, fmt.Sprintf("and %d more", len(r.Violations)-shown))
			break
		}
		parts = append(parts, v.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidSchedule, strings.Join(parts, "; "))
}

// Audit checks sol against inst. Missing tasks are reported and skipped by
// every other check. inst must be finalized.
func Audit(inst *core.Instance, sol *core.Solution) Report {
	a := &auditor{inst: inst, sol: sol}
	a.coverage()
	a.precedence()
	order := a.sequencing()
	a.interference()
	a.metrics(order)
	return a.rep
}

type auditor struct {
	inst *core.Instance
	sol  *core.Solution
	rep  Report
}

func (a *auditor) add(kind ViolationKind, detail string, tasks ...core.TaskID) {
	a.rep.Violations = append(a.rep.Violations, Violation{Kind: kind, Tasks: tasks, Detail: detail})
}

// placed returns the start and unit of t when both are known.
func (a *auditor) placed(t core.TaskID) (float64, core.UnitID, bool) {
	s, ok1 := a.sol.Schedule[t]
	v, ok2 := a.sol.Assignment[t]
	return s, v, ok1 && ok2
}

func (a *auditor) coverage() {
	for i := range a.inst.Tasks {
		t := core.TaskID(i)
		task := &a.inst.Tasks[i]
		start, v, ok := a.placed(t)
		if !ok {
			a.add(ViolationMissing, "task not scheduled", t)
			continue
		}
		if v < 0 || int(v) >= a.inst.NumUnits() || !task.CompatibleWith(v) {
			a.add(ViolationIncompatible, fmt.Sprintf("unit %d cannot carry task", v), t)
		}
		if bound := task.InitialBound(); start < bound-tolerance {
			a.add(ViolationRelease, fmt.Sprintf("start %g before earliest start %g", start, bound), t)
		}
	}
}

func (a *auditor) precedence() {
	for _, e := range a.inst.Edges {
		s1, _, ok1 := a.placed(e.From)
		s2, _, ok2 := a.placed(e.To)
		if !ok1 || !ok2 {
			continue
		}
		if s2 < s1+e.Lag-tolerance {
			a.add(ViolationPrecedence, fmt.Sprintf("start %g, need %g + lag %g", s2, s1, e.Lag), e.From, e.To)
		}
	}
}

// sequencing checks that every unit finishes a task and travels to the next
// pickup before starting it. It returns the per-unit task order.
func (a *auditor) sequencing() [][]core.TaskID {
	order := unitOrder(a.inst, a.sol)
	for v, ts := range order {
		unit := &a.inst.Units[v]
		free, pos := 0.0, unit.Start
		for _, t := range ts {
			task := &a.inst.Tasks[t]
			start := a.sol.Schedule[t]
			if need := free + a.inst.Travel(pos, task.Pickup); start < need-tolerance {
				a.add(ViolationSequencing, fmt.Sprintf("unit %d starts at %g, reachable at %g", v, start, need), t)
			}
			free, pos = start+task.Duration, task.Drop
		}
	}
	return order
}

// unitOrder groups scheduled tasks by unit in execution order: by start,
// then by decision order, then by id.
func unitOrder(inst *core.Instance, sol *core.Solution) [][]core.TaskID {
	rank := make(map[core.TaskID]int, len(sol.Sequence))
	for i, act := range sol.Sequence {
		rank[act.Task] = i
	}
	rankOf := func(t core.TaskID) int {
		if r, ok := rank[t]; ok {
			return r
		}
		return math.MaxInt
	}
	order := make([][]core.TaskID, inst.NumUnits())
	for t, v := range sol.Assignment {
		if _, ok := sol.Schedule[t]; !ok || v < 0 || int(v) >= len(order) || int(t) >= inst.NumTasks() {
			continue
		}
		order[v] = append(order[v], t)
	}
	for _, ts := range order {
		slices.SortFunc(ts, func(x, y core.TaskID) int {
			if c := cmp.Compare(sol.Schedule[x], sol.Schedule[y]); c != 0 {
				return c
			}
			if c := cmp.Compare(rankOf(x), rankOf(y)); c != 0 {
				return c
			}
			return cmp.Compare(x, y)
		})
	}
	return order
}

// interference checks every interfering pair on two different units: one of
// the two must finish, plus its offset, before the other starts.
func (a *auditor) interference() {
	keys := make([]core.Interference, 0, len(a.inst.Offsets))
	for k := range a.inst.Offsets {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y core.Interference) int {
		if c := cmp.Compare(x.Task1, y.Task1); c != 0 {
			return c
		}
		if c := cmp.Compare(x.Task2, y.Task2); c != 0 {
			return c
		}
		if c := cmp.Compare(x.Unit1, y.Unit1); c != 0 {
			return c
		}
		return cmp.Compare(x.Unit2, y.Unit2)
	})
	checked := make(map[[2]core.TaskID]bool)
	for _, k := range keys {
		t1, t2 := k.Task1, k.Task2
		pair := [2]core.TaskID{min(t1, t2), max(t1, t2)}
		if checked[pair] {
			continue
		}
		s1, v1, ok1 := a.placed(t1)
		s2, v2, ok2 := a.placed(t2)
		if !ok1 || !ok2 || v1 != k.Unit1 || v2 != k.Unit2 {
			continue
		}
		checked[pair] = true
		d12, _ := a.inst.Offset(t1, t2, v1, v2)
		d21, _ := a.inst.Offset(t2, t1, v2, v1)
		h1, h2 := a.inst.Tasks[t1].Duration, a.inst.Tasks[t2].Duration
		if s2 >= s1+h1+d12-tolerance || s1 >= s2+h2+d21-tolerance {
			continue
		}
		a.add(ViolationInterference, fmt.Sprintf("units %d and %d overlap: starts %g and %g", v1, v2, s1, s2), pair[0], pair[1])
	}
}

func (a *auditor) metrics(order [][]core.TaskID) {
	m := &a.rep.Metrics
	for i := range a.inst.Tasks {
		t := core.TaskID(i)
		start, _, ok := a.placed(t)
		if !ok {
			continue
		}
		task := &a.inst.Tasks[i]
		m.Scheduled++
		m.Makespan = max(m.Makespan, start+task.Duration)
		if late := task.Lateness(start); late > tolerance {
			m.LateTasks++
			m.TotalDelay += late
			m.MaxLateness = max(m.MaxLateness, late)
		}
	}
	for _, t := range a.inst.Objective {
		if start, _, ok := a.placed(t); ok {
			task := &a.inst.Tasks[t]
			m.Objective += start + task.Duration - task.Weight
		}
	}
	for v, ts := range order {
		um := UnitMetrics{Unit: core.UnitID(v), Tasks: len(ts)}
		pos := a.inst.Units[v].Start
		for _, t := range ts {
			task := &a.inst.Tasks[t]
			um.Busy += task.Duration
			um.Travel += a.inst.Travel(pos, task.Pickup)
			pos = task.Drop
		}
		if m.Makespan > 0 {
			um.Utilization = um.Busy / m.Makespan
		}
		m.Units = append(m.Units, um)
	}
}
