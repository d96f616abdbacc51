package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/elektrokombinacija/crane-mcts/internal/config"
	"github.com/elektrokombinacija/crane-mcts/internal/logging"
	"github.com/elektrokombinacija/crane-mcts/internal/telemetry"
)

// app carries the state shared by all subcommands.
type app struct {
	configPath  string
	logLevel    string
	logFormat   string
	trace       bool
	traceOutput string

	cfg      config.Config
	logger   *slog.Logger
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "cranesched",
		Short:         "Crane transport scheduling with Monte Carlo tree search",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: auto, text, json")
	pf.BoolVar(&a.trace, "trace", false, "export search spans as JSON")
	pf.StringVar(&a.traceOutput, "trace-output", "", "span output file (default stderr)")

	root.AddCommand(
		newSolveCmd(a),
		newBaselineCmd(a),
		newCalibrateCmd(a),
		newAuditCmd(a),
		newBenchCmd(a),
		newGenCmd(a),
	)
	// Flush spans whether or not the command succeeds.
	for _, c := range root.Commands() {
		run := c.RunE
		c.RunE = func(cmd *cobra.Command, args []string) error {
			return errors.Join(run(cmd, args), a.close())
		}
	}
	return root
}

// init loads the config and installs the logger. Flags win over the file.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = logging.Format(a.logFormat)
	}
	if a.trace {
		cfg.Tracing.Enabled = true
	}
	if a.traceOutput != "" {
		cfg.Tracing.Output = a.traceOutput
	}
	logger, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	shutdown, err := telemetry.InitTracing(cfg.Tracing, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	slog.SetDefault(logger)
	a.cfg, a.logger, a.shutdown = cfg, logger, shutdown
	return nil
}

// close flushes exported spans. It is safe to call more than once.
func (a *app) close() error {
	if a.shutdown == nil {
		return nil
	}
	// The command context may already be cancelled by a signal.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.shutdown(ctx)
	a.shutdown = nil
	if err != nil {
		return fmt.Errorf("flush traces: %w", err)
	}
	return nil
}

// serveMetrics registers fresh metrics and serves them on addr until stop
// is called. The returned context is cancelled by stop.
func (a *app) serveMetrics(ctx context.Context, addr string) (context.Context, *telemetry.Metrics, func()) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := telemetry.New(reg)

	ctx, cancel := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- telemetry.Serve(ctx, addr, reg) }()
	stop := func() {
		cancel()
		if err := <-served; err != nil {
			a.logger.Warn("metrics endpoint", slog.Any("error", err))
		}
	}
	return ctx, m, stop
}
