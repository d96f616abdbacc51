package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/elektrokombinacija/crane-mcts/internal/algo"
)

func TestInitTracingDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	shutdown, err := InitTracing(TracingConfig{Output: path, SampleRatio: 1}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.NoFileExists(t, path)
}

func TestInitTracingWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(TracingConfig{Enabled: true, SampleRatio: 1}, &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "unit.work")
	span.End()
	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"unit.work"`)
	assert.Contains(t, buf.String(), serviceName)
}

func TestInitTracingPlannerToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	shutdown, err := InitTracing(TracingConfig{Enabled: true, Output: path, SampleRatio: 1}, nil)
	require.NoError(t, err)

	cfg := algo.DefaultMCTSConfig()
	cfg.Simulations = 5
	_, err = algo.NewPlanner(cfg).Run(context.Background(), twoTaskInstance(t))
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Name":"planner.run"`)
	assert.Contains(t, string(data), `"Name":"mcts.search"`)
}

func TestInitTracingRejectsBadRatio(t *testing.T) {
	_, err := InitTracing(TracingConfig{Enabled: true, SampleRatio: 2}, nil)
	assert.Error(t, err)
	assert.NoError(t, DefaultTracingConfig().Validate())
}
