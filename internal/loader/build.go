package loader

import (
	"fmt"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
)

// Build converts the file into an instance. Missing durations, windows and
// interference offsets are derived. The result is not yet finalized.
func (f *File) Build() (*core.Instance, error) {
	inst := core.NewInstance(f.Name)
	inst.TravelTime = f.TravelTime

	units := make(map[int]core.UnitID, len(f.Units))
	for _, u := range f.Units {
		if _, dup := units[u.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate unit id %d", core.ErrInvalidInstance, u.ID)
		}
		units[u.ID] = inst.AddUnit(core.Unit{Label: u.ID, Track: core.Track(u.Track), Start: u.Start})
	}

	tasks := make(map[int]core.TaskID, len(f.Tasks))
	for _, ts := range f.Tasks {
		if _, dup := tasks[ts.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate task id %d", core.ErrInvalidInstance, ts.ID)
		}
		compat := make([]core.UnitID, 0, len(ts.Units))
		for _, label := range ts.Units {
			v, ok := units[label]
			if !ok {
				return nil, fmt.Errorf("%w: task %d references unknown unit %d", core.ErrInvalidInstance, ts.ID, label)
			}
			compat = append(compat, v)
		}
		task := core.Task{
			Label:         ts.ID,
			Track:         core.Track(ts.Track),
			Release:       ts.Release,
			Due:           ts.Due,
			EarliestStart: valueOr(ts.EarliestStart, ts.Release),
			LatestStart:   valueOr(ts.LatestStart, ts.Due),
			Pickup:        ts.Pickup,
			Drop:          ts.Drop,
			Weight:        ts.Weight,
			Units:         compat,
		}
		task.Duration = valueOr(ts.Duration, inst.Travel(ts.Pickup, ts.Drop)+2*f.HandlingTime)
		tasks[ts.ID] = inst.AddTask(task)
	}

	lookup := func(label int) (core.TaskID, error) {
		t, ok := tasks[label]
		if !ok {
			return 0, fmt.Errorf("%w: unknown task %d", core.ErrInvalidInstance, label)
		}
		return t, nil
	}

	for _, e := range f.Precedence {
		from, err := lookup(e.From)
		if err != nil {
			return nil, err
		}
		to, err := lookup(e.To)
		if err != nil {
			return nil, err
		}
		inst.AddEdge(from, to, e.Lag)
	}

	if len(f.Objective) == 0 {
		for i := range inst.Tasks {
			inst.Objective = append(inst.Objective, core.TaskID(i))
		}
	}
	for _, label := range f.Objective {
		t, err := lookup(label)
		if err != nil {
			return nil, err
		}
		inst.Objective = append(inst.Objective, t)
	}

	if len(f.Interference) == 0 {
		DeriveInterference(inst, f.Gamma, f.HandlingTime)
		return inst, nil
	}
	for _, o := range f.Interference {
		t1, err := lookup(o.Task1)
		if err != nil {
			return nil, err
		}
		t2, err := lookup(o.Task2)
		if err != nil {
			return nil, err
		}
		v1, ok1 := units[o.Unit1]
		v2, ok2 := units[o.Unit2]
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: interference references unknown unit %d or %d", core.ErrInvalidInstance, o.Unit1, o.Unit2)
		}
		offset := valueOr(o.Offset, 0)
		if o.Offset == nil {
			offset = Offset(inst, t1, t2, v1, v2, f.Gamma, f.HandlingTime)
		}
		inst.SetOffset(t1, t2, v1, v2, offset)
	}
	return inst, nil
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
