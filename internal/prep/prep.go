// Package prep tightens crane instances before search: it derives implied
// precedence relations, propagates lags into start windows and rejects
// instances whose windows cannot all be met.
package prep

import (
	"errors"
	"fmt"
	"math"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
)

// ErrPositiveCycle marks instances whose lags and windows contradict each other.
var ErrPositiveCycle = errors.New("positive cycle in distance matrix")

// cycleTolerance absorbs float noise when testing d[i][i] > 0.
const cycleTolerance = 1e-9

// Options selects the tightening rules.
type Options struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// SameTrackOrder orders same-track pairs that cannot run the other way round.
	SameTrackOrder bool `json:"same_track_order" yaml:"same_track_order"`
	// SameTrackChain orders same-track pairs whose order keeps all neighbours consistent.
	SameTrackChain bool `json:"same_track_chain" yaml:"same_track_chain"`
	// CrossTrackOrder orders the remaining unrelated cross-track pairs by earliest start.
	CrossTrackOrder bool `json:"cross_track_order" yaml:"cross_track_order"`
}

// DefaultOptions enables every rule.
func DefaultOptions() Options {
	return Options{Enabled: true, SameTrackOrder: true, SameTrackChain: true, CrossTrackOrder: true}
}

// Report counts the precedence edges each rule added.
type Report struct {
	SameTrackOrder  int
	SameTrackChain  int
	CrossTrackOrder int
}

// Total returns the number of added edges.
func (r Report) Total() int { return r.SameTrackOrder + r.SameTrackChain + r.CrossTrackOrder }

// Apply tightens inst in place and finalizes it.
func Apply(inst *core.Instance, opts Options) (Report, error) {
	var rep Report
	if !opts.Enabled {
		return rep, inst.Finalize()
	}
	if err := inst.Finalize(); err != nil {
		return rep, err
	}
	p := newPass(inst)

	if opts.SameTrackOrder {
		rep.SameTrackOrder = p.sameTrackOrder()
	}
	if err := p.tighten(); err != nil {
		return rep, err
	}
	if opts.SameTrackChain {
		rep.SameTrackChain = p.sameTrackChain()
	}
	if err := p.tighten(); err != nil {
		return rep, err
	}
	if opts.CrossTrackOrder {
		rep.CrossTrackOrder = p.crossTrackOrder()
	}

	d, err := Distances(inst)
	if err != nil {
		return rep, err
	}
	n := inst.NumTasks()
	inst.Distance = make([][]float64, n)
	for i := range inst.Distance {
		inst.Distance[i] = append([]float64(nil), d[i][:n]...)
	}
	return rep, inst.Finalize()
}

// pass holds the mutable view used while rules add edges.
type pass struct {
	inst  *core.Instance
	succ  [][]core.TaskID
	reach [][]bool
}

func newPass(inst *core.Instance) *pass {
	for i := range inst.Tasks {
		inst.Tasks[i].EarliestStart = inst.Tasks[i].InitialBound()
	}
	succ := inst.Adjacency()
	return &pass{inst: inst, succ: succ, reach: core.Closure(succ)}
}

// tighten recomputes distances, narrows start windows and refreshes reachability.
func (p *pass) tighten() error {
	d, err := Distances(p.inst)
	if err != nil {
		return err
	}
	TightenWindows(p.inst, d)
	p.reach = core.Closure(p.succ)
	return nil
}

func (p *pass) unrelated(a, b core.TaskID) bool {
	return !p.reach[a][b] && !p.reach[b][a]
}

// addEdge adds a->b with lag es(b)-ls(a) unless it would close a cycle.
// It reports whether a new successor link was created.
func (p *pass) addEdge(a, b core.TaskID) bool {
	if core.PathExists(p.succ, b, a) {
		return false
	}
	added := true
	for _, s := range p.succ[a] {
		if s == b {
			added = false
			break
		}
	}
	if added {
		p.succ[a] = append(p.succ[a], b)
	}
	p.inst.AddEdge(a, b, p.inst.Tasks[b].EarliestStart-p.inst.Tasks[a].LatestStart)
	return added
}

// travel is the empty move from a's drop to b's pickup.
func (p *pass) travel(a, b core.TaskID) float64 {
	return p.inst.Travel(p.inst.Tasks[a].Drop, p.inst.Tasks[b].Pickup)
}

// gap is the largest separation b needs after a finishes on any unit pair.
func (p *pass) gap(a, b core.TaskID) float64 {
	g := p.travel(a, b)
	for _, v1 := range p.inst.Tasks[a].Units {
		for _, v2 := range p.inst.Tasks[b].Units {
			if v1 == v2 {
				continue
			}
			if d, ok := p.inst.Offset(a, b, v1, v2); ok {
				g = max(g, d)
			}
		}
	}
	return g
}

// Distances computes longest lags between all tasks by Floyd-Warshall.
// Index NumTasks() is a virtual origin: d[n][t] = es(t), d[t][n] = -ls(t).
// Unrelated pairs hold -Inf.
func Distances(inst *core.Instance) ([][]float64, error) {
	n := inst.NumTasks()
	d := make([][]float64, n+1)
	for i := range d {
		d[i] = make([]float64, n+1)
		for j := range d[i] {
			if i != j {
				d[i][j] = math.Inf(-1)
			}
		}
	}
	for i := range inst.Tasks {
		d[n][i] = inst.Tasks[i].EarliestStart
		d[i][n] = -inst.Tasks[i].LatestStart
	}
	for _, e := range inst.Edges {
		d[e.From][e.To] = max(d[e.From][e.To], e.Lag)
	}
	for k := 0; k <= n; k++ {
		for i := 0; i <= n; i++ {
			if i == k || math.IsInf(d[i][k], -1) {
				continue
			}
			for j := 0; j <= n; j++ {
				if j == k {
					continue
				}
				if v := d[i][k] + d[k][j]; v > d[i][j] {
					d[i][j] = v
				}
			}
		}
	}
	for i := 0; i <= n; i++ {
		if d[i][i] > cycleTolerance {
			if i == n {
				return nil, fmt.Errorf("%w: start windows cannot all be met", ErrPositiveCycle)
			}
			return nil, fmt.Errorf("%w: through task %d", ErrPositiveCycle, i)
		}
	}
	return d, nil
}

// TightenWindows narrows every start window to the bounds implied by d.
func TightenWindows(inst *core.Instance, d [][]float64) {
	n := inst.NumTasks()
	for i := range inst.Tasks {
		t := &inst.Tasks[i]
		t.EarliestStart = max(t.EarliestStart, d[n][i])
		t.LatestStart = min(t.LatestStart, -d[i][n])
	}
}
