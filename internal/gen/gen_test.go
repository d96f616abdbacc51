package gen

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elektrokombinacija/crane-mcts/internal/loader"
	"github.com/elektrokombinacija/crane-mcts/internal/prep"
)

func TestGenerateDeterministic(t *testing.T) {
	p := DefaultParams()
	a, err := Generate(p)
	require.NoError(t, err)
	b, err := Generate(p)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different instances (-a +b):\n%s", diff)
	}

	p.Seed++
	c, err := Generate(p)
	require.NoError(t, err)
	assert.NotEqual(t, a.Name, c.Name)
}

func TestGenerateLayout(t *testing.T) {
	p := DefaultParams()
	f, err := Generate(p)
	require.NoError(t, err)

	require.Len(t, f.Units, p.Units)
	require.Len(t, f.Tasks, p.Tasks)
	tracks := make(map[int]int)
	for _, u := range f.Units {
		tracks[u.ID] = u.Track
		assert.GreaterOrEqual(t, u.Start, 0.0)
		assert.LessOrEqual(t, u.Start, float64(p.Length))
	}
	for _, ts := range f.Tasks {
		require.NotEmpty(t, ts.Units)
		for _, u := range ts.Units {
			assert.Equal(t, ts.Track, tracks[u], "task %d served from another track", ts.ID)
		}
		require.NotNil(t, ts.EarliestStart)
		require.NotNil(t, ts.LatestStart)
		assert.GreaterOrEqual(t, *ts.EarliestStart, ts.Release)
		assert.LessOrEqual(t, *ts.EarliestStart, *ts.LatestStart)
	}
	for _, e := range f.Precedence {
		assert.Less(t, e.From, e.To)
	}
}

func TestGeneratedInstancesLoad(t *testing.T) {
	p := DefaultParams()
	p.PrecedenceProb = 0.6
	files, err := Suite(p, 8)
	require.NoError(t, err)
	require.Len(t, files, 8)

	for _, f := range files {
		t.Run(f.Name, func(t *testing.T) {
			inst, _, err := loader.FromFile(f, prep.DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, p.Tasks, inst.NumTasks())
			assert.Len(t, inst.TopoOrder(), inst.NumTasks())
		})
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"no tasks", func(p *Params) { p.Tasks = 0 }},
		{"no tracks", func(p *Params) { p.Tracks = 0 }},
		{"track without unit", func(p *Params) { p.Units = 1 }},
		{"empty track", func(p *Params) { p.Length = 0 }},
		{"inverted slack", func(p *Params) { p.SlackMax = p.SlackMin - 1 }},
		{"probability", func(p *Params) { p.PrecedenceProb = 2 }},
		{"weight", func(p *Params) { p.MaxWeight = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			_, err := Generate(p)
			assert.Error(t, err)
		})
	}
	assert.NoError(t, DefaultParams().Validate())
}
