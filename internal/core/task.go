package core

// TaskID indexes Instance.Tasks.
type TaskID int

// Task is one transport job: move a load from Pickup to Drop.
type Task struct {
	ID    TaskID
	Label int // identifier used in instance files
	Track Track

	Release       float64 // a: earliest permitted start
	Due           float64 // b: start after this counts as delay
	EarliestStart float64 // es: lower start bound after preprocessing
	LatestStart   float64 // ls: deadline-derived upper start bound
	Duration      float64 // h

	Pickup float64 // l1
	Drop   float64 // l2
	Weight float64 // r: subtracted in the objective

	Units []UnitID // compatible units
}

// InitialBound is the start lower bound before any decision is taken.
func (t *Task) InitialBound() float64 {
	return max(t.Release, t.EarliestStart)
}

// Lateness returns how far start exceeds the due time (never negative).
func (t *Task) Lateness(start float64) float64 {
	return max(0, start-t.Due)
}

// CompatibleWith reports whether unit v may execute the task.
func (t *Task) CompatibleWith(v UnitID) bool {
	for _, u := range t.Units {
		if u == v {
			return true
		}
	}
	return false
}
