package core

// UnitID indexes Instance.Units.
type UnitID int

// NoUnit marks an unassigned task.
const NoUnit UnitID = -1

// Unit is a crane.
type Unit struct {
	ID    UnitID
	Label int // identifier used in instance files; also the crane's order on its track
	Track Track
	Start float64 // l0: initial position
}
