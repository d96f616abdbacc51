package algo

import (
	"errors"
	"fmt"
	"math"
)

// FinalAction selects the root child returned by a search.
type FinalAction string

const (
	FinalByVisits FinalAction = "visits"
	FinalByValue  FinalAction = "q"
)

// BackpropMode controls how rollout rewards are aggregated in a node.
type BackpropMode string

const (
	BackpropMax  BackpropMode = "max"
	BackpropMean BackpropMode = "mean"
)

// RolloutPolicy controls how simulations complete a schedule.
type RolloutPolicy string

const (
	RolloutDeadlineAware RolloutPolicy = "deadline-aware"
	RolloutRandom        RolloutPolicy = "random"
)

// ExpansionOrder controls which untried action a node expands next.
type ExpansionOrder string

const (
	// ExpandSorted pops the action with the smallest (bound, task, unit).
	ExpandSorted ExpansionOrder = "sorted"
	// ExpandRandom pops from the shuffled untried list.
	ExpandRandom ExpansionOrder = "random"
)

// RewardMode selects the reward function.
type RewardMode string

const (
	// RewardLinear is -objective - weight*delay.
	RewardLinear RewardMode = "linear"
	// RewardLayered maps delayed schedules into [-2,-1] and on-time ones into [0,1].
	RewardLayered RewardMode = "layered"
)

// RewardConfig configures terminal rewards.
type RewardConfig struct {
	Mode        RewardMode `json:"mode" yaml:"mode"`
	DelayWeight float64    `json:"delay_weight" yaml:"delay_weight"`
	// FailReward is returned for rollouts that cannot finish.
	// Zero selects the mode default.
	FailReward float64 `json:"fail_reward" yaml:"fail_reward"`
}

// Fail returns the failure reward in effect.
func (c RewardConfig) Fail() float64 {
	if c.FailReward != 0 {
		return c.FailReward
	}
	if c.Mode == RewardLayered {
		return -2.5
	}
	return -1e15
}

// MCTSConfig configures the tree search.
type MCTSConfig struct {
	// Simulations per decision.
	Simulations int `json:"simulations" yaml:"simulations"`
	// Exploration is the UCT constant c.
	Exploration  float64        `json:"exploration" yaml:"exploration"`
	FinalAction  FinalAction    `json:"final_action" yaml:"final_action"`
	RolloutLimit int            `json:"rollout_limit" yaml:"rollout_limit"` // 0 = unlimited
	Backprop     BackpropMode   `json:"backprop" yaml:"backprop"`
	Rollout      RolloutPolicy  `json:"rollout" yaml:"rollout"`
	Expansion    ExpansionOrder `json:"expansion" yaml:"expansion"`
	Reward       RewardConfig   `json:"reward" yaml:"reward"`
	Seed         int64          `json:"seed" yaml:"seed"`
}

// DefaultMCTSConfig returns the default search configuration.
func DefaultMCTSConfig() MCTSConfig {
	return MCTSConfig{
		Simulations: 200,
		Exploration: math.Sqrt2,
		FinalAction: FinalByVisits,
		Backprop:    BackpropMax,
		Rollout:     RolloutDeadlineAware,
		Expansion:   ExpandSorted,
		Reward: RewardConfig{
			Mode:        RewardLinear,
			DelayWeight: 100,
		},
		Seed: 1,
	}
}

// Validate checks the configuration.
func (c MCTSConfig) Validate() error {
	var errs []error
	if c.Simulations < 1 {
		errs = append(errs, fmt.Errorf("simulations must be >= 1, got %d", c.Simulations))
	}
	if c.Exploration < 0 || math.IsNaN(c.Exploration) || math.IsInf(c.Exploration, 0) {
		errs = append(errs, fmt.Errorf("exploration must be finite and >= 0, got %v", c.Exploration))
	}
	if c.RolloutLimit < 0 {
		errs = append(errs, fmt.Errorf("rollout_limit must be >= 0, got %d", c.RolloutLimit))
	}
	switch c.FinalAction {
	case FinalByVisits, FinalByValue:
	default:
		errs = append(errs, fmt.Errorf("unknown final_action %q", c.FinalAction))
	}
	switch c.Backprop {
	case BackpropMax, BackpropMean:
	default:
		errs = append(errs, fmt.Errorf("unknown backprop %q", c.Backprop))
	}
	switch c.Rollout {
	case RolloutDeadlineAware, RolloutRandom:
	default:
		errs = append(errs, fmt.Errorf("unknown rollout %q", c.Rollout))
	}
	switch c.Expansion {
	case ExpandSorted, ExpandRandom:
	default:
		errs = append(errs, fmt.Errorf("unknown expansion %q", c.Expansion))
	}
	switch c.Reward.Mode {
	case RewardLinear, RewardLayered:
	default:
		errs = append(errs, fmt.Errorf("unknown reward mode %q", c.Reward.Mode))
	}
	if c.Reward.DelayWeight < 0 {
		errs = append(errs, fmt.Errorf("delay_weight must be >= 0, got %v", c.Reward.DelayWeight))
	}
	return errors.Join(errs...)
}
