package bench

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/crane-mcts/internal/algo"
	"github.com/elektrokombinacija/crane-mcts/internal/gen"
	"github.com/elektrokombinacija/crane-mcts/internal/prep"
	"github.com/elektrokombinacija/crane-mcts/internal/telemetry"
)

func writeSuite(t *testing.T, count int) []string {
	t.Helper()
	p := gen.DefaultParams()
	p.Tasks = 8
	files, err := gen.Suite(p, count)
	require.NoError(t, err)

	dir := t.TempDir()
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(dir, f.Name+".json")
		require.NoError(t, f.Write(paths[i]))
	}
	return paths
}

func testOptions() Options {
	search := algo.DefaultMCTSConfig()
	search.Simulations = 10
	return Options{
		Workers: 3,
		Solvers: []string{SolverEarliestReady, SolverDeadlineAware, SolverMCTS},
		Search:  search,
		Rules:   prep.DefaultOptions(),
	}
}

func TestRunAllPairs(t *testing.T) {
	paths := writeSuite(t, 3)
	opts := testOptions()
	reg := prometheus.NewRegistry()
	opts.Metrics = telemetry.New(reg)

	rep, err := Run(context.Background(), paths, opts)
	require.NoError(t, err)
	_, err = uuid.Parse(rep.RunID)
	require.NoError(t, err)
	require.Len(t, rep.Rows, 9)

	for i, r := range rep.Rows {
		assert.Equal(t, rep.RunID, r.RunID)
		assert.Equal(t, opts.Solvers[i%3], r.Solver, "rows keep job order")
		assert.Equal(t, 8, r.Tasks)
		assert.True(t, r.Success, "%s on %s: %s", r.Solver, r.Instance, r.Error)
		assert.True(t, r.Complete)
		assert.Zero(t, r.Violations)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(opts.Metrics.Solves.WithLabelValues(SolverMCTS, "success")))
	assert.Equal(t, 3*8.0, testutil.ToFloat64(opts.Metrics.Decisions))
}

func TestRunUnknownSolver(t *testing.T) {
	opts := testOptions()
	opts.Solvers = []string{"tabu"}
	_, err := Run(context.Background(), writeSuite(t, 1), opts)
	assert.ErrorIs(t, err, ErrUnknownSolver)
}

func TestRunInvalidSearchConfig(t *testing.T) {
	opts := testOptions()
	opts.Search.Simulations = 0
	_, err := Run(context.Background(), writeSuite(t, 1), opts)
	assert.Error(t, err)

	opts.Solvers = []string{SolverDeadlineAware}
	rep, err := Run(context.Background(), writeSuite(t, 1), opts)
	require.NoError(t, err, "search config is ignored without mcts")
	assert.Len(t, rep.Rows, 1)
}

func TestRunMissingFile(t *testing.T) {
	_, err := Run(context.Background(), []string{filepath.Join(t.TempDir(), "none.json")}, testOptions())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, writeSuite(t, 2), testOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteCSV(t *testing.T) {
	rows := []Row{
		{RunID: "r", Instance: "a", Solver: SolverMCTS, Tasks: 4, RuntimeMs: 1.5, Success: true, Complete: true, Objective: 12},
		{RunID: "r", Instance: "b", Solver: SolverMCTS, Error: "boom, again"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, header, recs[0])
	assert.Equal(t, "a", recs[1][5])
	assert.Equal(t, "12.000", recs[1][13])
	assert.Equal(t, "boom, again", recs[2][len(header)-1])
}

func TestWriteCSVFileCreatesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")
	require.NoError(t, WriteCSVFile(path, []Row{{Solver: SolverDeadlineAware}}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestSummarize(t *testing.T) {
	rows := []Row{
		{Solver: SolverMCTS, Success: true, RuntimeMs: 10, Objective: 100, Delay: 0},
		{Solver: SolverMCTS, Success: true, RuntimeMs: 30, Objective: 200, Delay: 4},
		{Solver: SolverMCTS, Success: false, RuntimeMs: 1000},
		{Solver: SolverEarliestReady, Success: true, RuntimeMs: 1, Objective: 300},
	}
	sums := Summarize(rows)
	require.Len(t, sums, 2)
	assert.Equal(t, SolverSummary{
		Solver: SolverEarliestReady, Runs: 1, Successes: 1, OnTime: 1,
		AvgRuntimeMs: 1, AvgObjective: 300,
	}, sums[0])
	assert.Equal(t, SolverSummary{
		Solver: SolverMCTS, Runs: 3, Successes: 2, OnTime: 1,
		AvgRuntimeMs: 20, AvgObjective: 150, AvgDelay: 2,
	}, sums[1])

	var buf bytes.Buffer
	PrintSummary(&buf, sums)
	assert.Contains(t, buf.String(), "BENCHMARK SUMMARY")
	assert.Contains(t, buf.String(), "50.0%")
}
