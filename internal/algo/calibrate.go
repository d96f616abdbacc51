package algo

import (
	"fmt"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
)

// DefaultEps guards the layered reward against division by zero.
const DefaultEps = 1e-9

// Refs are the reward normalization constants of one instance.
type Refs struct {
	ObjRef float64 `json:"obj_ref"` // deadline-aware greedy objective
	DCap   float64 `json:"dcap"`    // earliest-ready delay, capped at 10|T|; 1 when zero
	Eps    float64 `json:"eps"`
}

// Calibrate runs both construction heuristics once and derives Refs.
func Calibrate(inst *core.Instance) (Refs, error) {
	refs, _, err := calibrate(inst)
	return refs, err
}

// calibrate also returns the deadline-aware schedule.
func calibrate(inst *core.Instance) (Refs, *core.Solution, error) {
	da, err := NewDeadlineAware().Solve(inst)
	if err != nil {
		return Refs{}, nil, fmt.Errorf("calibrate deadline-aware: %w", err)
	}
	er, err := NewEarliestReady().Solve(inst)
	if err != nil {
		return Refs{}, nil, fmt.Errorf("calibrate earliest-ready: %w", err)
	}
	return RefsFrom(da.Objective, er.Delay, inst.NumTasks()), da, nil
}

// RefsFrom builds Refs from a reference objective and a reference delay.
func RefsFrom(objRef, delayRef float64, numTasks int) Refs {
	dcap := 1.0
	if delayRef > 0 {
		dcap = min(delayRef, 10*float64(numTasks))
	}
	return Refs{ObjRef: objRef, DCap: dcap, Eps: DefaultEps}
}
