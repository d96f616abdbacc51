package algo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
	"github.com/elektrokombinacija/crane-mcts/internal/schedule"
)

// Result is the outcome of a planner run.
type Result struct {
	Solution  *core.Solution
	Baseline  *core.Solution // deadline-aware greedy schedule used for Refs.ObjRef
	Refs      Refs
	Decisions int
	Elapsed   time.Duration
}

// Improvement returns (baseline - mcts) / |baseline|, or 0 when undefined.
func (r *Result) Improvement() float64 {
	if r.Baseline == nil || r.Solution == nil || !r.Solution.Complete || r.Baseline.Objective == 0 {
		return 0
	}
	base := r.Baseline.Objective
	if base < 0 {
		base = -base
	}
	return (r.Baseline.Objective - r.Solution.Objective) / base
}

// Planner builds a full schedule by running one MCTS search per decision.
type Planner struct {
	cfg      MCTSConfig
	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewPlanner creates a planner.
func NewPlanner(cfg MCTSConfig) *Planner {
	return &Planner{
		cfg:      cfg,
		observer: NopObserver{},
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
}

func (p *Planner) Name() string { return "MCTS" }

// WithObserver sets the search observer.
func (p *Planner) WithObserver(o Observer) *Planner {
	p.observer = o
	return p
}

// WithLogger sets the logger.
func (p *Planner) WithLogger(l *slog.Logger) *Planner {
	p.logger = l
	return p
}

// WithTracer sets the tracer.
func (p *Planner) WithTracer(t trace.Tracer) *Planner {
	p.tracer = t
	return p
}

// Solve implements Solver.
func (p *Planner) Solve(inst *core.Instance) (*core.Solution, error) {
	res, err := p.Run(context.Background(), inst)
	if res == nil {
		return nil, err
	}
	return res.Solution, err
}

// Run calibrates rewards, then takes |T| decisions, each from a fresh search
// rooted at the current state. If a search finds no legal move the partial
// schedule is returned marked incomplete, together with the error.
func (p *Planner) Run(ctx context.Context, inst *core.Instance) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "planner.run", trace.WithAttributes(
		attribute.String("instance", inst.Name),
		attribute.Int("tasks", inst.NumTasks()),
		attribute.Int("units", inst.NumUnits()),
	))
	defer span.End()

	fail := func(err error) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	begin := time.Now()
	eng, err := schedule.NewEngine(inst)
	if err != nil {
		return fail(err)
	}
	refs, baseline, err := calibrate(inst)
	if err != nil {
		return fail(err)
	}
	m, err := NewMCTS(eng, refs, p.cfg)
	if err != nil {
		return fail(err)
	}
	m.WithObserver(p.observer).WithLogger(p.logger).WithTracer(p.tracer)

	res := &Result{Baseline: baseline, Refs: refs}
	s := eng.Initial()
	for step := 0; step < inst.NumTasks(); step++ {
		d, err := m.Search(ctx, s)
		if err != nil {
			res.Solution = eng.Solution(s, p.Name())
			res.Solution.MarkIncomplete()
			res.Decisions, res.Elapsed = step, time.Since(begin)
			span.RecordError(err)
			span.SetStatus(codes.Error, "incomplete schedule")
			p.logger.Warn("planner stopped",
				slog.String("instance", inst.Name),
				slog.Int("decision", step),
				slog.Any("error", err))
			return res, fmt.Errorf("decision %d: %w", step, err)
		}
		if s, err = eng.Apply(s, d.Action.Task, d.Action.Unit, d.Start); err != nil {
			return fail(fmt.Errorf("decision %d: %w", step, err))
		}
	}

	res.Solution = eng.Solution(s, p.Name())
	res.Decisions, res.Elapsed = inst.NumTasks(), time.Since(begin)
	span.SetAttributes(
		attribute.Float64("objective", res.Solution.Objective),
		attribute.Float64("delay", res.Solution.Delay),
	)
	p.logger.Info("planner finished",
		slog.String("instance", inst.Name),
		slog.Float64("objective", res.Solution.Objective),
		slog.Float64("delay", res.Solution.Delay),
		slog.Float64("baseline_objective", baseline.Objective),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}
