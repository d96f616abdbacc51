package schedule

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
)

// twoTaskInstance: one unit, releases 0 and 5, durations 3 and 2, no travel.
func twoTaskInstance(t *testing.T) *core.Instance {
	t.Helper()
	inst := core.NewInstance("two")
	inst.TravelTime = 0
	u := inst.AddUnit(core.Unit{Label: 1})
	a := inst.AddTask(core.Task{Release: 0, Due: 50, LatestStart: 50, Duration: 3, Weight: 1, Units: []core.UnitID{u}})
	b := inst.AddTask(core.Task{Release: 5, Due: 50, LatestStart: 50, Duration: 2, Weight: 1, Units: []core.UnitID{u}})
	inst.Objective = []core.TaskID{a, b}
	require.NoError(t, inst.Validate())
	return inst
}

// crossingInstance: A only on unit 0 at position 10, B only on unit 1
// starting at B's pickup; A and B interfere with offset 1 both ways.
func crossingInstance(t *testing.T, bEarliest, bLatest float64) *core.Instance {
	t.Helper()
	inst := core.NewInstance("crossing")
	u0 := inst.AddUnit(core.Unit{Label: 1, Start: 0})
	u1 := inst.AddUnit(core.Unit{Label: 2, Start: 10})
	a := inst.AddTask(core.Task{Due: 100, LatestStart: 100, Duration: 1, Pickup: 10, Drop: 10, Units: []core.UnitID{u0}})
	b := inst.AddTask(core.Task{Release: bEarliest, EarliestStart: bEarliest, Due: bLatest, LatestStart: bLatest,
		Duration: 1, Pickup: 10, Drop: 10, Units: []core.UnitID{u1}})
	inst.SetOffset(a, b, u0, u1, 1)
	inst.SetOffset(b, a, u1, u0, 1)
	inst.Objective = []core.TaskID{a, b}
	require.NoError(t, inst.Validate())
	return inst
}

func mustEngine(t *testing.T, inst *core.Instance) *Engine {
	t.Helper()
	eng, err := NewEngine(inst)
	require.NoError(t, err)
	return eng
}

func TestTwoTasksOneUnit(t *testing.T) {
	eng := mustEngine(t, twoTaskInstance(t))
	s := eng.Initial()
	assert.Equal(t, []core.TaskID{0, 1}, s.ReadyTasks())

	start, inWindow := eng.FeasibleStart(s, 0, 0)
	require.True(t, inWindow)
	assert.Equal(t, 0.0, start)
	s, err := eng.Apply(s, 0, 0, start)
	require.NoError(t, err)
	assert.Equal(t, 3.0, s.Available(0))

	start, _ = eng.FeasibleStart(s, 1, 0)
	assert.Equal(t, 5.0, start)
	s, err = eng.Apply(s, 1, 0, start)
	require.NoError(t, err)
	require.True(t, s.Done())

	obj, delay, err := eng.Evaluate(s)
	require.NoError(t, err)
	assert.Equal(t, (0+3-1)+(5+2-1), int(obj))
	assert.Equal(t, 0.0, delay)

	// Evaluation is idempotent.
	obj2, delay2, err := eng.Evaluate(s)
	require.NoError(t, err)
	assert.Equal(t, obj, obj2)
	assert.Equal(t, delay, delay2)
}

func TestPrecedenceReadiness(t *testing.T) {
	inst := core.NewInstance("prec")
	u := inst.AddUnit(core.Unit{Label: 1})
	a := inst.AddTask(core.Task{Due: 50, LatestStart: 50, Duration: 2, Units: []core.UnitID{u}})
	b := inst.AddTask(core.Task{Due: 50, LatestStart: 50, Duration: 2, Units: []core.UnitID{u}})
	inst.AddEdge(a, b, 7)
	eng := mustEngine(t, inst)

	s := eng.Initial()
	assert.Equal(t, []core.TaskID{a}, s.ReadyTasks())
	assert.Equal(t, 1, s.Pending(b))

	_, err := eng.Apply(s, b, u, 0)
	assert.ErrorIs(t, err, ErrTaskNotReady)

	s, err = eng.Apply(s, a, u, 1)
	require.NoError(t, err)
	assert.Equal(t, []core.TaskID{b}, s.ReadyTasks())
	assert.Equal(t, 8.0, s.Bound(b))
	start, _ := eng.FeasibleStart(s, b, u)
	assert.Equal(t, 8.0, start)
}

func TestApplyDoesNotMutateParent(t *testing.T) {
	inst := core.NewInstance("siblings")
	u0 := inst.AddUnit(core.Unit{Label: 1})
	u1 := inst.AddUnit(core.Unit{Label: 2})
	for i := 0; i < 3; i++ {
		inst.AddTask(core.Task{Due: 50, LatestStart: 50, Duration: 1, Units: []core.UnitID{u0, u1}})
	}
	eng := mustEngine(t, inst)

	parent, err := eng.Apply(eng.Initial(), 0, u0, 0)
	require.NoError(t, err)
	before := snapshot(parent)

	left, err := eng.Apply(parent, 1, u0, 1)
	require.NoError(t, err)
	right, err := eng.Apply(parent, 2, u0, 1)
	require.NoError(t, err)
	other, err := eng.Apply(parent, 1, u1, 0)
	require.NoError(t, err)

	if diff := cmp.Diff(before, snapshot(parent)); diff != "" {
		t.Errorf("parent mutated (-before +after):\n%s", diff)
	}
	assert.Equal(t, []core.TaskID{0, 1}, left.Assigned(u0))
	assert.Equal(t, []core.TaskID{0, 2}, right.Assigned(u0))
	assert.Equal(t, []core.TaskID{1}, other.Assigned(u1))
	assert.Equal(t, 2, parent.Unscheduled())
	assert.Equal(t, []core.Action{{Task: 0, Unit: u0}, {Task: 1, Unit: u0}}, left.Sequence())
}

type stateSnapshot struct {
	Starts   []float64
	Units    []core.UnitID
	Bounds   []float64
	Assigned [][]core.TaskID
	Avail    []float64
	Left     int
}

func snapshot(s *State) stateSnapshot {
	snap := stateSnapshot{Left: s.Unscheduled()}
	for i := range s.unit {
		t := core.TaskID(i)
		st, _ := s.Start(t)
		snap.Starts = append(snap.Starts, st)
		snap.Units = append(snap.Units, s.UnitOf(t))
		snap.Bounds = append(snap.Bounds, s.Bound(t))
	}
	for v := range s.avail {
		snap.Assigned = append(snap.Assigned, s.Assigned(core.UnitID(v)))
		snap.Avail = append(snap.Avail, s.Available(core.UnitID(v)))
	}
	return snap
}

func TestApplyErrors(t *testing.T) {
	eng := mustEngine(t, crossingInstance(t, 1, 5))
	s, err := eng.Apply(eng.Initial(), 0, 0, 10)
	require.NoError(t, err)

	_, err = eng.Apply(s, 0, 0, 20)
	assert.ErrorIs(t, err, ErrTaskScheduled)
	_, err = eng.Apply(s, 1, 0, 20)
	assert.ErrorIs(t, err, ErrIncompatibleUnit)
	_, err = eng.Apply(s, 0, 0, 3)
	assert.ErrorIs(t, err, ErrTaskScheduled)

	s2, err := eng.Apply(s, 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, s2.Available(1))
}

func TestApplyRejectsStartBeforeAvailable(t *testing.T) {
	eng := mustEngine(t, twoTaskInstance(t))
	s, err := eng.Apply(eng.Initial(), 0, 0, 4)
	require.NoError(t, err)
	_, err = eng.Apply(s, 1, 0, 6)
	assert.ErrorIs(t, err, ErrStartBeforeAvailable)
}

func TestWindowBeforeInterferingTask(t *testing.T) {
	eng := mustEngine(t, crossingInstance(t, 1, 5))
	s := eng.Initial()
	start, ok := eng.Window(s, 0, 0)
	require.True(t, ok)
	assert.Equal(t, 10.0, start) // travel from 0 to 10
	s, err := eng.Apply(s, 0, 0, start)
	require.NoError(t, err)

	// B fits before A: 1 + h(B)=1 + offset 1 <= 10.
	start, ok = eng.Window(s, 1, 1)
	require.True(t, ok)
	assert.Equal(t, 1.0, start)

	// Ignoring the window, B must follow A: 10 + 1 + 1.
	assert.Equal(t, 12.0, eng.UnconstrainedStart(s, 1, 1))
}

func TestWindowAfterInterferingTask(t *testing.T) {
	eng := mustEngine(t, crossingInstance(t, 9, 20))
	s, err := eng.Apply(eng.Initial(), 0, 0, 10)
	require.NoError(t, err)

	start, ok := eng.Window(s, 1, 1)
	require.True(t, ok)
	assert.Equal(t, 12.0, start)
}

func TestWindowInfeasibleFallsBack(t *testing.T) {
	eng := mustEngine(t, crossingInstance(t, 9, 11))
	s, err := eng.Apply(eng.Initial(), 0, 0, 10)
	require.NoError(t, err)

	_, ok := eng.Window(s, 1, 1)
	assert.False(t, ok)
	start, inWindow := eng.FeasibleStart(s, 1, 1)
	assert.False(t, inWindow)
	assert.Equal(t, 12.0, start)
}

func TestWindowBaseAfterDeadline(t *testing.T) {
	eng := mustEngine(t, crossingInstance(t, 1, 5))
	s := eng.Initial()
	// Unit 0 needs 10 to reach A, but force a tight window on A.
	eng.inst.Tasks[0].LatestStart = 9
	_, ok := eng.Window(s, 0, 0)
	assert.False(t, ok)
	start, inWindow := eng.FeasibleStart(s, 0, 0)
	assert.False(t, inWindow)
	assert.Equal(t, 10.0, start)
}

// rival is a task committed on its own unit that interferes with the target.
type rival struct {
	start, dur    float64
	before, after float64 // offsets for target-then-rival and rival-then-target
}

// rivalState builds a target task 0 on unit 0 (release, h, ls) and commits
// each rival on units 1..n. Travel is free so the base start is release.
func rivalState(t *testing.T, release, h, ls float64, rivals []rival) (*Engine, *State) {
	t.Helper()
	inst := core.NewInstance("rivals")
	inst.TravelTime = 0
	u := inst.AddUnit(core.Unit{Label: 1})
	target := inst.AddTask(core.Task{Release: release, Due: ls, LatestStart: ls, Duration: h, Units: []core.UnitID{u}})
	for i, r := range rivals {
		v := inst.AddUnit(core.Unit{Label: i + 2})
		t2 := inst.AddTask(core.Task{Due: 100, LatestStart: 100, Duration: r.dur, Units: []core.UnitID{v}})
		inst.SetOffset(target, t2, u, v, r.before)
		inst.SetOffset(t2, target, v, u, r.after)
	}
	require.NoError(t, inst.Validate())

	eng := mustEngine(t, inst)
	s := eng.Initial()
	for i, r := range rivals {
		var err error
		s, err = eng.Apply(s, core.TaskID(i+1), core.UnitID(i+1), r.start)
		require.NoError(t, err)
	}
	return eng, s
}

// earliestClear scans integer starts in [release, ls] for the first one that
// clears every rival.
func earliestClear(release, h, ls float64, rivals []rival) (float64, bool) {
	for x := release; x <= ls; x++ {
		clear := true
		for _, r := range rivals {
			if x+h+r.before > r.start && x < r.start+r.dur+r.after {
				clear = false
				break
			}
		}
		if clear {
			return x, true
		}
	}
	return 0, false
}

func TestWindowDropsEmptyAfterPart(t *testing.T) {
	// Clearing the first rival leaves [0,2] and [7,10]. The second rival
	// pushes [0,2] to start at 4, past its end, so only [7,10] survives.
	eng, s := rivalState(t, 0, 3, 10, []rival{
		{start: 5, dur: 2},
		{start: 0, dur: 1, after: 3},
	})
	start, ok := eng.Window(s, 0, 0)
	require.True(t, ok)
	assert.Equal(t, 7.0, start)
}

func TestWindowSplitsAroundRivals(t *testing.T) {
	tests := []struct {
		name    string
		release float64
		h, ls   float64
		rivals  []rival
		want    float64
		ok      bool
	}{
		{"fits in the gap", 2, 2, 20, []rival{{start: 3, dur: 2}, {start: 8, dur: 1}}, 5, true},
		{"gap too small", 2, 3, 20, []rival{{start: 3, dur: 2}, {start: 7, dur: 1}}, 8, true},
		{"no room before deadline", 2, 3, 7, []rival{{start: 3, dur: 2}, {start: 7, dur: 1}}, 0, false},
		{"fits before both", 0, 1, 20, []rival{{start: 3, dur: 2}, {start: 8, dur: 1}}, 0, true},
		{"offsets widen the gap", 1, 1, 20, []rival{{start: 2, dur: 1, before: 1, after: 2}, {start: 7, dur: 1}}, 5, true},
		{"three rivals", 0, 3, 30, []rival{{start: 1, dur: 2}, {start: 5, dur: 2, after: 1}, {start: 10, dur: 1, before: 1}}, 11, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, s := rivalState(t, tt.release, tt.h, tt.ls, tt.rivals)
			start, ok := eng.Window(s, 0, 0)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, start)
			}
			want, wantOK := earliestClear(tt.release, tt.h, tt.ls, tt.rivals)
			assert.Equal(t, wantOK, ok)
			assert.Equal(t, want, start)
		})
	}
}

func TestWindowMatchesExhaustiveScan(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 300; i++ {
		release := float64(rng.Intn(11))
		h := float64(1 + rng.Intn(4))
		ls := release + float64(rng.Intn(21))
		rivals := make([]rival, 1+rng.Intn(4))
		for k := range rivals {
			rivals[k] = rival{
				start:  float64(rng.Intn(16)),
				dur:    float64(1 + rng.Intn(4)),
				before: float64(rng.Intn(4)),
				after:  float64(rng.Intn(4)),
			}
		}

		eng, s := rivalState(t, release, h, ls, rivals)
		want, wantOK := earliestClear(release, h, ls, rivals)
		start, ok := eng.Window(s, 0, 0)
		require.Equal(t, wantOK, ok, "case %d: release=%g h=%g ls=%g rivals=%+v", i, release, h, ls, rivals)
		if ok {
			require.Equal(t, want, start, "case %d: release=%g h=%g ls=%g rivals=%+v", i, release, h, ls, rivals)
		}
	}
}

func TestMerge(t *testing.T) {
	got := merge([]interval{{5, 7}, {1, 2}, {2, 3}, {6, 9}, {11, 12}})
	want := []interval{{1, 3}, {5, 9}, {11, 12}}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(interval{})); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateIncomplete(t *testing.T) {
	eng := mustEngine(t, twoTaskInstance(t))
	_, _, err := eng.Evaluate(eng.Initial())
	assert.ErrorIs(t, err, ErrIncomplete)

	sol := eng.Solution(eng.Initial(), "none")
	assert.False(t, sol.Complete)
}

func TestSolutionFromState(t *testing.T) {
	eng := mustEngine(t, twoTaskInstance(t))
	s, err := eng.Apply(eng.Initial(), 0, 0, 0)
	require.NoError(t, err)
	s, err = eng.Apply(s, 1, 0, 5)
	require.NoError(t, err)

	sol := eng.Solution(s, "manual")
	assert.True(t, sol.Complete)
	assert.Equal(t, core.Schedule{0: 0, 1: 5}, sol.Schedule)
	assert.Equal(t, core.Assignment{0: 0, 1: 0}, sol.Assignment)
	assert.Equal(t, 7.0, sol.Makespan)
	assert.Equal(t, 8.0, sol.Objective)
}

func TestDelayCounted(t *testing.T) {
	inst := twoTaskInstance(t)
	inst.Tasks[1].Due = 4
	eng := mustEngine(t, inst)
	s, err := eng.Apply(eng.Initial(), 0, 0, 0)
	require.NoError(t, err)
	s, err = eng.Apply(s, 1, 0, 5)
	require.NoError(t, err)
	_, delay, err := eng.Evaluate(s)
	require.NoError(t, err)
	assert.Equal(t, 1.0, delay)
}
