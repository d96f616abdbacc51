package loader

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// legacyFile mirrors the symbol-keyed JSON used by the research scripts.
// Per-task maps are keyed by the task id as a string; pair and quadruple
// keys are written as tuple strings, e.g. "(3, 7)".
type legacyFile struct {
	Tasks      []int              `json:"T"`
	Units      []int              `json:"V"`
	Release    map[string]float64 `json:"a"`
	Due        map[string]float64 `json:"b"`
	Earliest   map[string]float64 `json:"es"`
	Latest     map[string]float64 `json:"ls"`
	Start      map[string]float64 `json:"l^0"`
	Pickup     map[string]float64 `json:"l^1"`
	Drop       map[string]float64 `json:"l^2"`
	Weight     map[string]float64 `json:"r"`
	Duration   map[string]float64 `json:"h"`
	Compatible map[string][]int   `json:"V_tau"`
	TaskTrack  map[string]int     `json:"task_tr"`
	UnitTrack  map[string]int     `json:"crane_tr"`
	Lag        map[string]float64 `json:"g"`
	Precedence [][2]int           `json:"Xi"`
	Theta      [][4]int           `json:"Theta"`
	Delta      map[string]float64 `json:"Delta"`
	TravelTime float64            `json:"hat(t)"`
	Handling   float64            `json:"lambda"`
	Gamma      float64            `json:"gamma"`
	Objective  []int              `json:"T^obj"`
}

func decodeLegacy(data []byte) (*File, error) {
	var lf legacyFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("decode legacy json: %w", err)
	}

	f := &File{
		TravelTime:   lf.TravelTime,
		HandlingTime: lf.Handling,
		Gamma:        lf.Gamma,
		Objective:    lf.Objective,
	}

	for _, v := range lf.Units {
		key := strconv.Itoa(v)
		f.Units = append(f.Units, UnitSpec{ID: v, Track: lf.UnitTrack[key], Start: lf.Start[key]})
	}
	for _, t := range lf.Tasks {
		key := strconv.Itoa(t)
		ts := TaskSpec{
			ID:      t,
			Track:   lf.TaskTrack[key],
			Release: lf.Release[key],
			Due:     lf.Due[key],
			Pickup:  lf.Pickup[key],
			Drop:    lf.Drop[key],
			Weight:  lf.Weight[key],
			Units:   lf.Compatible[key],
		}
		ts.EarliestStart = lookupPtr(lf.Earliest, key)
		ts.LatestStart = lookupPtr(lf.Latest, key)
		ts.Duration = lookupPtr(lf.Duration, key)
		f.Tasks = append(f.Tasks, ts)
	}

	lags := make(map[[2]int]float64, len(lf.Lag))
	for k, v := range lf.Lag {
		ids, err := parseTuple(k, 2)
		if err != nil {
			return nil, err
		}
		lags[[2]int{ids[0], ids[1]}] = v
	}
	pairs := slices.Clone(lf.Precedence)
	slices.SortFunc(pairs, func(a, b [2]int) int {
		if a[0] != b[0] {
			return a[0] - b[0]
		}
		return a[1] - b[1]
	})
	for _, p := range pairs {
		f.Precedence = append(f.Precedence, EdgeSpec{From: p[0], To: p[1], Lag: lags[p]})
	}

	if lf.Theta != nil {
		deltas := make(map[[4]int]float64, len(lf.Delta))
		for k, v := range lf.Delta {
			ids, err := parseTuple(k, 4)
			if err != nil {
				return nil, err
			}
			deltas[[4]int{ids[0], ids[1], ids[2], ids[3]}] = v
		}
		for _, q := range lf.Theta {
			spec := OffsetSpec{Task1: q[0], Task2: q[1], Unit1: q[2], Unit2: q[3]}
			if d, ok := deltas[q]; ok {
				spec.Offset = &d
			}
			f.Interference = append(f.Interference, spec)
		}
	}
	return f, nil
}

func lookupPtr(m map[string]float64, key string) *float64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	return &v
}

// parseTuple parses "(1, 2, 3)" into its n integers.
func parseTuple(s string, n int) ([]int, error) {
	body := strings.TrimSpace(s)
	body = strings.TrimPrefix(body, "(")
	body = strings.TrimSuffix(body, ")")
	parts := strings.Split(body, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("tuple %q: want %d elements, got %d", s, n, len(parts))
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("tuple %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}
