package core

import (
	"cmp"
	"encoding/json"
	"math"
	"slices"
)

// Assignment maps tasks to units.
type Assignment map[TaskID]UnitID

// Schedule maps tasks to start times.
type Schedule map[TaskID]float64

// Solution is a (possibly partial) crane schedule.
type Solution struct {
	Solver     string     `json:"solver"`
	Assignment Assignment `json:"assignment"`
	Schedule   Schedule   `json:"schedule"`
	Sequence   []Action   `json:"sequence"` // decision order
	Objective  float64    `json:"objective"`
	Delay      float64    `json:"delay"`
	Makespan   float64    `json:"makespan"`
	Complete   bool       `json:"complete"`
}

// NewSolution creates an empty solution.
func NewSolution(solver string) *Solution {
	return &Solution{
		Solver:     solver,
		Assignment: make(Assignment),
		Schedule:   make(Schedule),
	}
}

// MarkIncomplete reports the solution as failed: objective and delay are +Inf.
func (s *Solution) MarkIncomplete() {
	s.Complete = false
	s.Objective = math.Inf(1)
	s.Delay = math.Inf(1)
}

// ComputeMakespan calculates max completion time.
func (s *Solution) ComputeMakespan(inst *Instance) float64 {
	maxC := 0.0
	for tid, start := range s.Schedule {
		if !inst.validTask(tid) {
			continue
		}
		completion := start + inst.Tasks[tid].Duration
		if completion > maxC {
			maxC = completion
		}
	}
	s.Makespan = maxC
	return maxC
}

// Tasks returns the tasks of unit v ordered by start time.
func (s *Solution) Tasks(v UnitID) []TaskID {
	var out []TaskID
	for _, a := range s.Sequence {
		if a.Unit == v {
			out = append(out, a.Task)
		}
	}
	sortByStart(out, s.Schedule)
	return out
}

func sortByStart(ts []TaskID, sched Schedule) {
	slices.SortFunc(ts, func(a, b TaskID) int {
		if c := cmp.Compare(sched[a], sched[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
}

// solutionJSON encodes non-finite objective and delay as null.
type solutionJSON struct {
	Solver     string     `json:"solver"`
	Assignment Assignment `json:"assignment"`
	Schedule   Schedule   `json:"schedule"`
	Sequence   []Action   `json:"sequence"`
	Objective  *float64   `json:"objective"`
	Delay      *float64   `json:"delay"`
	Makespan   float64    `json:"makespan"`
	Complete   bool       `json:"complete"`
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func orInf(p *float64) float64 {
	if p == nil {
		return math.Inf(1)
	}
	return *p
}

// MarshalJSON implements json.Marshaler.
func (s *Solution) MarshalJSON() ([]byte, error) {
	return json.Marshal(solutionJSON{
		Solver:     s.Solver,
		Assignment: s.Assignment,
		Schedule:   s.Schedule,
		Sequence:   s.Sequence,
		Objective:  finite(s.Objective),
		Delay:      finite(s.Delay),
		Makespan:   s.Makespan,
		Complete:   s.Complete,
	})
}

// UnmarshalJSON implements json.Unmarshaler. A null objective or delay
// decodes as +Inf.
func (s *Solution) UnmarshalJSON(data []byte) error {
	var raw solutionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Solution{
		Solver:     raw.Solver,
		Assignment: raw.Assignment,
		Schedule:   raw.Schedule,
		Sequence:   raw.Sequence,
		Objective:  orInf(raw.Objective),
		Delay:      orInf(raw.Delay),
		Makespan:   raw.Makespan,
		Complete:   raw.Complete,
	}
	if s.Assignment == nil {
		s.Assignment = make(Assignment)
	}
	if s.Schedule == nil {
		s.Schedule = make(Schedule)
	}
	return nil
}
