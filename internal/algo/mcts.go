package algo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
	"github.com/elektrokombinacija/crane-mcts/internal/schedule"
)

const tracerName = "github.com/elektrokombinacija/crane-mcts/internal/algo"

// node is an arena entry; parent and children are arena indices.
type node struct {
	state    *schedule.State
	parent   int
	action   core.Action
	start    float64 // start computed when the node was expanded
	depth    int
	untried  []core.Action
	children []int
	visits   int
	acc      float64 // best reward (max) or reward sum (mean)
	value    float64 // Q
}

// MCTS chooses one assignment at a time by UCT tree search.
// The tree is rebuilt for every Search call. An MCTS is not safe for
// concurrent use; create one per goroutine.
type MCTS struct {
	eng      *schedule.Engine
	refs     Refs
	cfg      MCTSConfig
	rng      *rand.Rand
	greedy   *Heuristic
	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer

	nodes []node
	best  float64
}

// NewMCTS creates a search engine for the engine's instance.
func NewMCTS(eng *schedule.Engine, refs Refs, cfg MCTSConfig) (*MCTS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("mcts config: %w", err)
	}
	return &MCTS{
		eng:      eng,
		refs:     refs,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		greedy:   NewDeadlineAware(),
		observer: NopObserver{},
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}, nil
}

func (m *MCTS) Name() string { return "MCTS" }

// WithObserver sets the search observer.
func (m *MCTS) WithObserver(o Observer) *MCTS {
	m.observer = o
	return m
}

// WithLogger sets the logger.
func (m *MCTS) WithLogger(l *slog.Logger) *MCTS {
	m.logger = l
	return m
}

// WithTracer sets the tracer.
func (m *MCTS) WithTracer(t trace.Tracer) *MCTS {
	m.tracer = t
	return m
}

// Search runs the configured number of simulations from root and returns the
// chosen action with the start computed when it was expanded.
// ErrNoLegalMove is returned when the root has no children.
func (m *MCTS) Search(ctx context.Context, root *schedule.State) (Decision, error) {
	_, span := m.tracer.Start(ctx, "mcts.search", trace.WithAttributes(
		attribute.Int("mcts.unscheduled", root.Unscheduled()),
		attribute.Int("mcts.simulations", m.cfg.Simulations),
	))
	defer span.End()

	begin := time.Now()
	m.nodes = m.nodes[:0]
	m.best = math.Inf(-1)
	m.addNode(root, -1, core.Action{}, 0, 0)

	for i := 0; i < m.cfg.Simulations; i++ {
		leaf := m.selectLeaf(0)
		child, err := m.expand(leaf)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "expansion failed")
			return Decision{}, err
		}
		reward, outcome := m.simulate(m.nodes[child].state)
		m.observer.OnRollout(outcome, reward)
		m.best = max(m.best, reward)
		m.backprop(child, reward)
	}

	c, ok := m.finalChild()
	if !ok {
		span.SetStatus(codes.Error, ErrNoLegalMove.Error())
		return Decision{}, ErrNoLegalMove
	}
	d := Decision{Action: m.nodes[c].action, Start: m.nodes[c].start}
	stats := SearchStats{
		Simulations: m.cfg.Simulations,
		Nodes:       len(m.nodes),
		RootVisits:  m.nodes[0].visits,
		BestReward:  m.best,
		Elapsed:     time.Since(begin),
	}
	m.observer.OnDecision(d, stats)
	span.SetAttributes(
		attribute.Int("mcts.task", int(d.Action.Task)),
		attribute.Int("mcts.unit", int(d.Action.Unit)),
		attribute.Float64("mcts.start", d.Start),
		attribute.Int("mcts.nodes", stats.Nodes),
	)
	m.logger.Debug("mcts decision",
		slog.Int("task", int(d.Action.Task)),
		slog.Int("unit", int(d.Action.Unit)),
		slog.Float64("start", d.Start),
		slog.Int("nodes", stats.Nodes),
		slog.Float64("best_reward", stats.BestReward),
		slog.Duration("elapsed", stats.Elapsed))
	return d, nil
}

func (m *MCTS) addNode(s *schedule.State, parent int, a core.Action, start float64, depth int) int {
	untried := LegalActions(m.eng.Instance(), s)
	m.rng.Shuffle(len(untried), func(i, j int) { untried[i], untried[j] = untried[j], untried[i] })
	acc := 0.0
	if m.cfg.Backprop == BackpropMax {
		acc = math.Inf(-1)
	}
	m.nodes = append(m.nodes, node{
		state:   s,
		parent:  parent,
		action:  a,
		start:   start,
		depth:   depth,
		untried: untried,
		acc:     acc,
	})
	return len(m.nodes) - 1
}

// selectLeaf descends by UCT while nodes are fully expanded.
func (m *MCTS) selectLeaf(i int) int {
	for {
		n := &m.nodes[i]
		if n.state.Done() || len(n.untried) > 0 || len(n.children) == 0 {
			return i
		}
		i = m.uctChild(i)
	}
}

// uctChild returns the child maximizing Q + c*sqrt(ln N / n). Unvisited
// children score +Inf; ties go to the earliest expanded child.
func (m *MCTS) uctChild(i int) int {
	n := &m.nodes[i]
	logN := 0.0
	if n.visits > 0 {
		logN = math.Log(float64(n.visits))
	}
	best, bestScore := -1, math.Inf(-1)
	for _, c := range n.children {
		ch := &m.nodes[c]
		score := math.Inf(1)
		if ch.visits > 0 {
			score = ch.value + m.cfg.Exploration*math.Sqrt(logN/float64(ch.visits))
		}
		if best < 0 || score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// expand adds one untried child of i. Terminal or exhausted nodes are
// returned unchanged.
func (m *MCTS) expand(i int) (int, error) {
	n := &m.nodes[i]
	if n.state.Done() || len(n.untried) == 0 {
		return i, nil
	}
	k := len(n.untried) - 1
	if m.cfg.Expansion == ExpandSorted {
		k = smallestAction(n.state, n.untried)
	}
	a := n.untried[k]
	n.untried = slices.Delete(n.untried, k, k+1)

	start, _ := m.eng.FeasibleStart(n.state, a.Task, a.Unit)
	next, err := m.eng.Apply(n.state, a.Task, a.Unit, start)
	if err != nil {
		return -1, fmt.Errorf("expand %s: %w", a, err)
	}
	depth := n.depth + 1
	child := m.addNode(next, i, a, start, depth)
	// addNode may move the arena.
	m.nodes[i].children = append(m.nodes[i].children, child)
	m.observer.OnNodeExpanded(a, start, depth)
	return child, nil
}

// smallestAction returns the index of the action with the smallest
// (start bound, task, unit).
func smallestAction(s *schedule.State, as []core.Action) int {
	best := 0
	for k := 1; k < len(as); k++ {
		a, b := as[k], as[best]
		ba, bb := s.Bound(a.Task), s.Bound(b.Task)
		switch {
		case ba != bb:
			if ba < bb {
				best = k
			}
		case a.Task != b.Task:
			if a.Task < b.Task {
				best = k
			}
		case a.Unit < b.Unit:
			best = k
		}
	}
	return best
}

// simulate completes s with the rollout policy and scores the result.
func (m *MCTS) simulate(s *schedule.State) (float64, RolloutOutcome) {
	fail := m.cfg.Reward.Fail()
	steps := 0
	// At most RolloutLimit steps; completing on the last one still scores.
	for !s.Done() {
		if m.cfg.RolloutLimit > 0 && steps >= m.cfg.RolloutLimit {
			return fail, RolloutStepLimit
		}
		d, err := m.rolloutStep(s)
		if err != nil {
			return fail, RolloutDeadEnd
		}
		s, err = m.eng.Apply(s, d.Action.Task, d.Action.Unit, d.Start)
		if err != nil {
			return fail, RolloutDeadEnd
		}
		steps++
	}
	obj, delay, err := m.eng.Evaluate(s)
	if err != nil {
		return fail, RolloutDeadEnd
	}
	return m.cfg.Reward.Reward(obj, delay, m.refs), RolloutComplete
}

func (m *MCTS) rolloutStep(s *schedule.State) (Decision, error) {
	if m.cfg.Rollout == RolloutDeadlineAware {
		return m.greedy.Step(m.eng, s)
	}
	ready := s.ReadyTasks()
	if len(ready) == 0 {
		return Decision{}, ErrNoLegalMove
	}
	t := ready[m.rng.Intn(len(ready))]
	units := m.eng.Instance().Tasks[t].Units
	if len(units) == 0 {
		return Decision{}, fmt.Errorf("task %d: %w", t, core.ErrNoCompatibleUnit)
	}
	v := units[m.rng.Intn(len(units))]
	start, _ := m.eng.FeasibleStart(s, t, v)
	return Decision{Action: core.Action{Task: t, Unit: v}, Start: start}, nil
}

// backprop updates visit counts and values from i up to the root.
func (m *MCTS) backprop(i int, reward float64) {
	for i >= 0 {
		n := &m.nodes[i]
		n.visits++
		if m.cfg.Backprop == BackpropMean {
			n.acc += reward
			n.value = n.acc / float64(n.visits)
		} else {
			n.acc = max(n.acc, reward)
			n.value = n.acc
		}
		i = n.parent
	}
}

// finalChild picks the root child by visits or value.
func (m *MCTS) finalChild() (int, bool) {
	root := &m.nodes[0]
	best := -1
	for _, c := range root.children {
		if best < 0 {
			best = c
			continue
		}
		ch, b := &m.nodes[c], &m.nodes[best]
		if m.cfg.FinalAction == FinalByValue {
			if ch.value > b.value {
				best = c
			}
		} else if ch.visits > b.visits {
			best = c
		}
	}
	return best, best >= 0
}
