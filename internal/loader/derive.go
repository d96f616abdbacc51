package loader

import (
	"math"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
)

// gap is the safety distance between two cranes on a track.
func gap(inst *core.Instance, v1, v2 core.UnitID, gamma float64) float64 {
	return (gamma + 1) * math.Abs(float64(inst.Units[v1].Label-inst.Units[v2].Label))
}

// Interferes reports whether t1 on v1 and t2 on v2 can collide: both tasks
// share a track and the spans they sweep, widened by the crane gap, overlap
// on the side where the cranes meet.
func Interferes(inst *core.Instance, t1, t2 core.TaskID, v1, v2 core.UnitID, gamma float64) bool {
	a, b := &inst.Tasks[t1], &inst.Tasks[t2]
	if t1 == t2 || v1 == v2 || a.Track != b.Track {
		return false
	}
	d := gap(inst, v1, v2, gamma)
	l1, l2 := inst.Units[v1].Label, inst.Units[v2].Label
	switch {
	case l1 < l2:
		return max(a.Pickup, a.Drop)+d > min(b.Pickup, b.Drop)
	case l1 > l2:
		return min(a.Pickup, a.Drop)-d < max(b.Pickup, b.Drop)
	}
	return false
}

// Offset derives the separation t2 on v2 needs after t1 on v1 finishes.
// The crane behind must wait until the one ahead has cleared the pickup of
// the follower; one or two handling times are recovered when the follower
// only has to clear part of the leader's span.
func Offset(inst *core.Instance, t1, t2 core.TaskID, v1, v2 core.UnitID, gamma, handling float64) float64 {
	a, b := &inst.Tasks[t1], &inst.Tasks[t2]
	d := gap(inst, v1, v2, gamma)
	tt := inst.TravelTime
	if inst.Units[v1].Label < inst.Units[v2].Label {
		base := (a.Drop + d - b.Pickup) * tt
		switch {
		case a.Drop+d > b.Pickup:
			return base
		case a.Pickup+d > b.Pickup || a.Drop+d > b.Drop:
			return base - handling
		}
		return base - 2*handling
	}
	base := (b.Pickup + d - a.Drop) * tt
	switch {
	case a.Drop-d < b.Pickup:
		return base
	case a.Pickup-d < b.Pickup || a.Drop-d < b.Drop:
		return base - handling
	}
	return base - 2*handling
}

// DeriveInterference adds every interfering tuple between compatible units
// with its derived offset and returns how many were added.
func DeriveInterference(inst *core.Instance, gamma, handling float64) int {
	added := 0
	for i := range inst.Tasks {
		t1 := core.TaskID(i)
		for j := range inst.Tasks {
			t2 := core.TaskID(j)
			if t1 == t2 || inst.Tasks[i].Track != inst.Tasks[j].Track {
				continue
			}
			for _, v1 := range inst.Tasks[i].Units {
				for _, v2 := range inst.Tasks[j].Units {
					if !Interferes(inst, t1, t2, v1, v2, gamma) {
						continue
					}
					inst.SetOffset(t1, t2, v1, v2, Offset(inst, t1, t2, v1, v2, gamma, handling))
					added++
				}
			}
		}
	}
	return added
}
