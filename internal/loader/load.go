package loader

import (
	"fmt"

	"github.com/elektrokombinacija/crane-mcts/internal/core"
	"github.com/elektrokombinacija/crane-mcts/internal/prep"
)

// Load reads an instance file, derives missing data, runs preprocessing
// and validates the result.
func Load(path string, opts prep.Options) (*core.Instance, prep.Report, error) {
	f, err := Read(path)
	if err != nil {
		return nil, prep.Report{}, err
	}
	return FromFile(f, opts)
}

// FromFile builds, preprocesses and validates an in-memory file.
func FromFile(f *File, opts prep.Options) (*core.Instance, prep.Report, error) {
	inst, err := f.Build()
	if err != nil {
		return nil, prep.Report{}, fmt.Errorf("build %s: %w", f.Name, err)
	}
	rep, err := prep.Apply(inst, opts)
	if err != nil {
		return nil, rep, fmt.Errorf("preprocess %s: %w", f.Name, err)
	}
	if err := inst.Validate(); err != nil {
		return nil, rep, fmt.Errorf("validate %s: %w", f.Name, err)
	}
	return inst, rep, nil
}
