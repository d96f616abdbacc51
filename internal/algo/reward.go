package algo

import "math"

// Reward scores a complete schedule. Higher is better.
func (c RewardConfig) Reward(objective, delay float64, refs Refs) float64 {
	if c.Mode == RewardLayered {
		return layeredReward(objective, delay, refs)
	}
	return -objective - c.DelayWeight*delay
}

// layeredReward keeps every delayed schedule strictly below every on-time one:
// delayed schedules land in [-2,-1], on-time schedules in [0,1] by their
// improvement over the reference objective.
func layeredReward(objective, delay float64, refs Refs) float64 {
	if delay > 0 {
		penalty := min(1, delay/max(refs.DCap, refs.Eps))
		return -1 - penalty
	}
	imp := (refs.ObjRef - objective) / (math.Abs(refs.ObjRef) + refs.Eps)
	imp = max(-1, min(1, imp))
	return 0.5 + 0.5*imp
}
