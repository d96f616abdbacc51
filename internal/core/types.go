// Package core defines domain models for crane scheduling.
package core

import (
	"errors"
	"fmt"
)

// Track identifies a rail shared by cranes. Units on the same track interfere.
type Track int

// Action assigns one task to one unit.
type Action struct {
	Task TaskID `json:"task"`
	Unit UnitID `json:"unit"`
}

func (a Action) String() string {
	return fmt.Sprintf("(%d,%d)", a.Task, a.Unit)
}

var (
	// ErrInvalidInstance marks structurally broken instances.
	ErrInvalidInstance = errors.New("invalid instance")
	// ErrPrecedenceCycle is returned when the precedence relation is not acyclic.
	ErrPrecedenceCycle = errors.New("precedence graph has a cycle")
	// ErrNoCompatibleUnit is returned when a task cannot be served by any unit.
	ErrNoCompatibleUnit = errors.New("task has no compatible unit")
)
