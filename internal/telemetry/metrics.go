// Package telemetry exports search and benchmark metrics to Prometheus and
// search spans through OpenTelemetry.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elektrokombinacija/crane-mcts/internal/algo"
	"github.com/elektrokombinacija/crane-mcts/internal/core"
)

const namespace = "cranesched"

// Metrics records search events. It implements algo.Observer.
type Metrics struct {
	NodesExpanded   prometheus.Counter
	Rollouts        *prometheus.CounterVec
	RolloutReward   prometheus.Histogram
	Decisions       prometheus.Counter
	SearchDuration  prometheus.Histogram
	BestReward      prometheus.Gauge
	TreeNodes       prometheus.Histogram
	Solves          *prometheus.CounterVec
	SolveDuration   *prometheus.HistogramVec
	ScheduleDelay   *prometheus.HistogramVec
	AuditViolations *prometheus.CounterVec
}

var _ algo.Observer = (*Metrics)(nil)

// New registers the metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		NodesExpanded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mcts",
			Name:      "nodes_expanded_total",
			Help:      "Total search tree nodes expanded",
		}),
		Rollouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mcts",
			Name:      "rollouts_total",
			Help:      "Total rollouts by outcome",
		}, []string{"outcome"}),
		RolloutReward: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mcts",
			Name:      "rollout_reward",
			Help:      "Reward of finished rollouts",
			Buckets:   []float64{-2.5, -2, -1.5, -1, -0.5, 0, 0.25, 0.5, 0.75, 1},
		}),
		Decisions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mcts",
			Name:      "decisions_total",
			Help:      "Total root actions committed",
		}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mcts",
			Name:      "search_duration_seconds",
			Help:      "Duration of one search call",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		BestReward: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mcts",
			Name:      "best_reward",
			Help:      "Best reward seen by the latest search",
		}),
		TreeNodes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mcts",
			Name:      "tree_nodes",
			Help:      "Tree size at the end of a search call",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		Solves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solve",
			Name:      "total",
			Help:      "Total solver runs by solver and status",
		}, []string{"solver", "status"}),
		SolveDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solve",
			Name:      "duration_seconds",
			Help:      "Wall time of one solver run",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"solver"}),
		ScheduleDelay: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solve",
			Name:      "delay",
			Help:      "Total delay of complete schedules",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		}, []string{"solver"}),
		AuditViolations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "violations_total",
			Help:      "Total audit violations by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) OnNodeExpanded(core.Action, float64, int) {
	m.NodesExpanded.Inc()
}

func (m *Metrics) OnRollout(outcome algo.RolloutOutcome, reward float64) {
	m.Rollouts.WithLabelValues(string(outcome)).Inc()
	if outcome == algo.RolloutComplete && !math.IsInf(reward, 0) {
		m.RolloutReward.Observe(reward)
	}
}

func (m *Metrics) OnDecision(_ algo.Decision, stats algo.SearchStats) {
	m.Decisions.Inc()
	m.SearchDuration.Observe(stats.Elapsed.Seconds())
	m.TreeNodes.Observe(float64(stats.Nodes))
	if !math.IsInf(stats.BestReward, 0) {
		m.BestReward.Set(stats.BestReward)
	}
}

// RecordSolve records one solver run. delay is observed only when the
// schedule is complete.
func (m *Metrics) RecordSolve(solver string, success bool, elapsed time.Duration, complete bool, delay float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.Solves.WithLabelValues(solver, status).Inc()
	m.SolveDuration.WithLabelValues(solver).Observe(elapsed.Seconds())
	if complete {
		m.ScheduleDelay.WithLabelValues(solver).Observe(delay)
	}
}

// RecordViolation counts one audit violation.
func (m *Metrics) RecordViolation(kind string) {
	m.AuditViolations.WithLabelValues(kind).Inc()
}

// Handler returns the scrape handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes g on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics endpoint listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
		return nil
	}
}
