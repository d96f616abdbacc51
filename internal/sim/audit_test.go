package sim

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/crane-mcts/internal/algo"
	"github.com/elektrokombinacija/crane-mcts/internal/core"
	"github.com/elektrokombinacija/crane-mcts/internal/gen"
	"github.com/elektrokombinacija/crane-mcts/internal/loader"
	"github.com/elektrokombinacija/crane-mcts/internal/prep"
)

// createAuditInstance: A and C on unit 0, B on unit 1. A and B interfere
// with offset 1 both ways; C follows A with lag 2.
func createAuditInstance(t *testing.T) *core.Instance {
	t.Helper()
	inst := core.NewInstance("audit")
	u0 := inst.AddUnit(core.Unit{Label: 1, Start: 0})
	u1 := inst.AddUnit(core.Unit{Label: 2, Start: 10})
	a := inst.AddTask(core.Task{Due: 100, LatestStart: 100, Duration: 1, Pickup: 10, Drop: 10, Units: []core.UnitID{u0}})
	b := inst.AddTask(core.Task{Release: 1, EarliestStart: 1, Due: 5, LatestStart: 5,
		Duration: 1, Pickup: 10, Drop: 10, Units: []core.UnitID{u1}})
	c := inst.AddTask(core.Task{Due: 100, LatestStart: 100, Duration: 2, Pickup: 12, Drop: 14, Units: []core.UnitID{u0}})
	inst.SetOffset(a, b, u0, u1, 1)
	inst.SetOffset(b, a, u1, u0, 1)
	inst.AddEdge(a, c, 2)
	inst.Objective = []core.TaskID{a, b, c}
	require.NoError(t, inst.Validate())
	return inst
}

func validSolution() *core.Solution {
	sol := core.NewSolution("manual")
	sol.Schedule = core.Schedule{0: 10, 1: 1, 2: 13}
	sol.Assignment = core.Assignment{0: 0, 1: 1, 2: 0}
	sol.Sequence = []core.Action{{Task: 0, Unit: 0}, {Task: 1, Unit: 1}, {Task: 2, Unit: 0}}
	return sol
}

func TestAuditValidSchedule(t *testing.T) {
	inst := createAuditInstance(t)
	rep := Audit(inst, validSolution())
	require.True(t, rep.OK(), "violations: %v", rep.Violations)
	assert.NoError(t, rep.Err())

	m := rep.Metrics
	assert.Equal(t, 3, m.Scheduled)
	assert.Equal(t, 15.0, m.Makespan)
	assert.Equal(t, 28.0, m.Objective)
	assert.Zero(t, m.LateTasks)
	require.Len(t, m.Units, 2)
	assert.Equal(t, UnitMetrics{Unit: 0, Tasks: 2, Busy: 3, Travel: 12, Utilization: 0.2}, m.Units[0])
	assert.Equal(t, UnitMetrics{Unit: 1, Tasks: 1, Busy: 1, Travel: 0, Utilization: 1.0 / 15}, m.Units[1])
}

func TestAuditViolations(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*core.Solution)
		kind   ViolationKind
	}{
		{"missing", func(s *core.Solution) { delete(s.Schedule, 2); delete(s.Assignment, 2) }, ViolationMissing},
		{"incompatible", func(s *core.Solution) { s.Assignment[1] = 0 }, ViolationIncompatible},
		{"release", func(s *core.Solution) { s.Schedule[1] = 0 }, ViolationRelease},
		{"precedence", func(s *core.Solution) { s.Schedule[2] = 11 }, ViolationPrecedence},
		{"sequencing", func(s *core.Solution) { s.Schedule[0] = 5 }, ViolationSequencing},
		{"interference", func(s *core.Solution) { s.Schedule[1] = 9.5 }, ViolationInterference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sol := validSolution()
			tt.modify(sol)
			rep := Audit(createAuditInstance(t), sol)
			assert.Equal(t, 1, rep.Count(tt.kind), "violations: %v", rep.Violations)
			assert.ErrorIs(t, rep.Err(), ErrInvalidSchedule)
		})
	}
}

func TestAuditLateness(t *testing.T) {
	sol := validSolution()
	sol.Schedule[1] = 9.5
	rep := Audit(createAuditInstance(t), sol)
	assert.Equal(t, 1, rep.Metrics.LateTasks)
	assert.Equal(t, 4.5, rep.Metrics.TotalDelay)
	assert.Equal(t, 4.5, rep.Metrics.MaxLateness)
}

func TestHeuristicSchedulesPassAudit(t *testing.T) {
	p := gen.DefaultParams()
	p.PrecedenceProb = 0.5
	files, err := gen.Suite(p, 5)
	require.NoError(t, err)

	solvers := []Solver{algo.NewEarliestReady(), algo.NewDeadlineAware()}
	for _, f := range files {
		inst, _, err := loader.FromFile(f, prep.DefaultOptions())
		require.NoError(t, err)
		for _, s := range solvers {
			sol, err := s.Solve(inst)
			require.NoError(t, err)
			rep := Audit(inst, sol)
			assert.True(t, rep.OK(), "%s on %s: %v", s.Name(), f.Name, rep.Violations)
			assert.Equal(t, sol.Makespan, rep.Metrics.Makespan)
			assert.InDelta(t, sol.Objective, rep.Metrics.Objective, 1e-6)
			assert.InDelta(t, sol.Delay, rep.Metrics.TotalDelay, 1e-6)
		}
	}
}

func TestPlannerSchedulesPassAudit(t *testing.T) {
	p := gen.DefaultParams()
	p.Tasks = 8
	files, err := gen.Suite(p, 3)
	require.NoError(t, err)

	cfg := algo.DefaultMCTSConfig()
	cfg.Simulations = 20
	for _, f := range files {
		inst, _, err := loader.FromFile(f, prep.DefaultOptions())
		require.NoError(t, err)
		res, err := Run(context.Background(), Config{Instance: inst, Solver: algo.NewPlanner(cfg)})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.True(t, res.Solution.Complete)
		assert.True(t, res.Report.OK(), "%s: %v", f.Name, res.Report.Violations)
	}
}

type failingSolver struct{}

func (failingSolver) Name() string { return "failing" }

func (failingSolver) Solve(*core.Instance) (*core.Solution, error) {
	return nil, errors.New("boom")
}

func TestRunReportsSolverError(t *testing.T) {
	inst := createAuditInstance(t)
	res, err := Run(context.Background(), Config{Instance: inst, Solver: failingSolver{}})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)
	assert.Equal(t, 3, res.Report.Count(ViolationMissing))

	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, res.Export(path))
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, Config{Instance: createAuditInstance(t), Solver: failingSolver{}})
	assert.ErrorIs(t, err, context.Canceled)
}
