package algo

import (
	"time"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
)

// RolloutOutcome classifies how a simulation ended.
type RolloutOutcome string

const (
	RolloutComplete  RolloutOutcome = "complete"
	RolloutStepLimit RolloutOutcome = "step_limit"
	RolloutDeadEnd   RolloutOutcome = "dead_end"
)

// SearchStats summarizes one search call.
type SearchStats struct {
	Simulations int
	Nodes       int
	RootVisits  int
	BestReward  float64
	Elapsed     time.Duration
}

// Observer is the interface for observing search execution.
// Callbacks run on the searching goroutine.
type Observer interface {
	// OnNodeExpanded is called when a child node is added to the tree.
	OnNodeExpanded(action core.Action, start float64, depth int)

	// OnRollout is called after every simulation.
	OnRollout(outcome RolloutOutcome, reward float64)

	// OnDecision is called when a search commits to a root action.
	OnDecision(d Decision, stats SearchStats)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) OnNodeExpanded(core.Action, float64, int) {}
func (NopObserver) OnRollout(RolloutOutcome, float64)        {}
func (NopObserver) OnDecision(Decision, SearchStats)         {}

// Observers fans events out to several observers.
type Observers []Observer

func (os Observers) OnNodeExpanded(a core.Action, start float64, depth int) {
	for _, o := range os {
		o.OnNodeExpanded(a, start, depth)
	}
}

func (os Observers) OnRollout(outcome RolloutOutcome, reward float64) {
	for _, o := range os {
		o.OnRollout(outcome, reward)
	}
}

func (os Observers) OnDecision(d Decision, stats SearchStats) {
	for _, o := range os {
		o.OnDecision(d, stats)
	}
}
