package bench

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

var header = []string{
	"run_id", "timestamp", "go_version", "os", "arch",
	"instance", "num_tasks", "num_units", "added_edges", "solver",
	"runtime_ms", "success", "complete", "objective", "delay",
	"makespan", "late_tasks", "violations", "error",
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

// WriteCSV writes the header and one line per row.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.RunID, r.Timestamp.Format(time.RFC3339), r.GoVersion, r.OS, r.Arch,
			r.Instance, strconv.Itoa(r.Tasks), strconv.Itoa(r.Units), strconv.Itoa(r.AddedEdges), r.Solver,
			formatFloat(r.RuntimeMs), strconv.FormatBool(r.Success), strconv.FormatBool(r.Complete),
			formatFloat(r.Objective), formatFloat(r.Delay),
			formatFloat(r.Makespan), strconv.Itoa(r.LateTasks), strconv.Itoa(r.Violations), r.Error,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes rows to path, creating parent directories.
func WriteCSVFile(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SolverSummary aggregates the rows of one solver. Averages cover
// successful runs only.
type SolverSummary struct {
	Solver       string
	Runs         int
	Successes    int
	OnTime       int // successful runs with zero delay
	AvgRuntimeMs float64
	AvgObjective float64
	AvgDelay     float64
}

// Summarize aggregates rows by solver, sorted by name.
func Summarize(rows []Row) []SolverSummary {
	by := make(map[string]*SolverSummary)
	for _, r := range rows {
		s, ok := by[r.Solver]
		if !ok {
			s = &SolverSummary{Solver: r.Solver}
			by[r.Solver] = s
		}
		s.Runs++
		if !r.Success {
			continue
		}
		s.Successes++
		s.AvgRuntimeMs += r.RuntimeMs
		s.AvgObjective += r.Objective
		s.AvgDelay += r.Delay
		if r.Delay == 0 {
			s.OnTime++
		}
	}

	out := make([]SolverSummary, 0, len(by))
	for _, s := range by {
		if s.Successes > 0 {
			n := float64(s.Successes)
			s.AvgRuntimeMs /= n
			s.AvgObjective /= n
			s.AvgDelay /= n
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Solver < out[j].Solver })
	return out
}

// PrintSummary writes a fixed-width summary table.
func PrintSummary(w io.Writer, sums []SolverSummary) {
	fmt.Fprintln(w, "=== BENCHMARK SUMMARY ===")
	fmt.Fprintf(w, "%-16s %6s %8s %8s %12s %12s %10s\n",
		"Solver", "Runs", "Success", "OnTime%", "AvgTime(ms)", "AvgObj", "AvgDelay")
	fmt.Fprintln(w, strings.Repeat("-", 78))
	for _, s := range sums {
		onTime := 0.0
		if s.Successes > 0 {
			onTime = float64(s.OnTime) / float64(s.Successes) * 100
		}
		fmt.Fprintf(w, "%-16s %6d %8d %7.1f%% %12.2f %12.2f %10.2f\n",
			s.Solver, s.Runs, s.Successes, onTime, s.AvgRuntimeMs, s.AvgObjective, s.AvgDelay)
	}
}
