package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/crane-mcts/internal/algo"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cranesched.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 200, cfg.Search.Simulations)
	assert.True(t, cfg.Rules.Enabled)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
search:
  simulations: 50
  final_action: q
  reward:
    mode: layered
rules:
  enabled: false
bench:
  workers: 2
  solvers: [mcts]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Search.Simulations)
	assert.Equal(t, algo.FinalByValue, cfg.Search.FinalAction)
	assert.Equal(t, algo.RewardLayered, cfg.Search.Reward.Mode)
	assert.Equal(t, 100.0, cfg.Search.Reward.DelayWeight, "unset nested fields keep defaults")
	assert.Equal(t, algo.BackpropMax, cfg.Search.Backprop)
	assert.False(t, cfg.Rules.Enabled)
	assert.Equal(t, []string{"mcts"}, cfg.Bench.Solvers)
	assert.Equal(t, 2, cfg.Bench.Workers)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "search:\n  simulations: 50\n")
	t.Setenv("CRANESCHED_SIMULATIONS", "75")
	t.Setenv("CRANESCHED_EXPLORATION", "0.5")
	t.Setenv("CRANESCHED_SEED", "9")
	t.Setenv("CRANESCHED_FINAL_ACTION", "q")
	t.Setenv("CRANESCHED_LOG_LEVEL", "debug")
	t.Setenv("CRANESCHED_WORKERS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Search.Simulations)
	assert.Equal(t, 0.5, cfg.Search.Exploration)
	assert.Equal(t, int64(9), cfg.Search.Seed)
	assert.Equal(t, algo.FinalByValue, cfg.Search.FinalAction)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 8, cfg.Bench.Workers)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{"bad yaml", "search: [", nil},
		{"invalid search", "search:\n  simulations: 0\n", nil},
		{"invalid log level", "logging:\n  level: loud\n", nil},
		{"no workers", "bench:\n  workers: 0\n", nil},
		{"metrics without addr", "metrics:\n  enabled: true\n  addr: \"\"\n", nil},
		{"bad sample ratio", "tracing:\n  enabled: true\n  sample_ratio: 1.5\n", nil},
		{"bad env bool", "", map[string]string{"CRANESCHED_TRACING": "maybe"}},
		{"bad env number", "", map[string]string{"CRANESCHED_SIMULATIONS": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadTracing(t *testing.T) {
	path := writeConfig(t, "tracing:\n  output: spans.json\n  sample_ratio: 0.5\n")
	t.Setenv("CRANESCHED_TRACING", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "spans.json", cfg.Tracing.Output)
	assert.Equal(t, 0.5, cfg.Tracing.SampleRatio)
	assert.False(t, Default().Tracing.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
