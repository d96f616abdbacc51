// Package loader reads crane scheduling instances from JSON or YAML files
// and turns them into finalized core instances.
package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is an instance file encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatLegacy Format = "legacy" // JSON keyed by model symbols (T, V, l^1, V_tau, ...)
)

// ErrUnknownFormat is returned for unsupported file extensions.
var ErrUnknownFormat = errors.New("unknown instance format")

// File is the on-disk instance schema. Identifiers are the labels used in
// the file; they are mapped to dense indices by Build.
type File struct {
	Name string `json:"name" yaml:"name"`
	// TravelTime is the empty travel time per position unit.
	TravelTime float64 `json:"travel_time" yaml:"travel_time"`
	// HandlingTime is added twice (pick and drop) to derived durations.
	HandlingTime float64 `json:"handling_time" yaml:"handling_time"`
	// Gamma sets the crane safety gap (Gamma+1)*|label difference|.
	Gamma        float64      `json:"gamma" yaml:"gamma"`
	Units        []UnitSpec   `json:"units" yaml:"units"`
	Tasks        []TaskSpec   `json:"tasks" yaml:"tasks"`
	Precedence   []EdgeSpec   `json:"precedence,omitempty" yaml:"precedence,omitempty"`
	Interference []OffsetSpec `json:"interference,omitempty" yaml:"interference,omitempty"`
	// Objective lists task ids counted in the objective; empty means all.
	Objective []int `json:"objective,omitempty" yaml:"objective,omitempty"`
}

// UnitSpec describes a crane.
type UnitSpec struct {
	ID    int     `json:"id" yaml:"id"`
	Track int     `json:"track" yaml:"track"`
	Start float64 `json:"start" yaml:"start"`
}

// TaskSpec describes a transport task. Nil optional fields are derived.
type TaskSpec struct {
	ID            int      `json:"id" yaml:"id"`
	Track         int      `json:"track" yaml:"track"`
	Release       float64  `json:"release" yaml:"release"`
	Due           float64  `json:"due" yaml:"due"`
	EarliestStart *float64 `json:"earliest_start,omitempty" yaml:"earliest_start,omitempty"`
	LatestStart   *float64 `json:"latest_start,omitempty" yaml:"latest_start,omitempty"`
	Duration      *float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
	Pickup        float64  `json:"pickup" yaml:"pickup"`
	Drop          float64  `json:"drop" yaml:"drop"`
	Weight        float64  `json:"weight" yaml:"weight"`
	Units         []int    `json:"units" yaml:"units"`
}

// EdgeSpec is a precedence relation with lag.
type EdgeSpec struct {
	From int     `json:"from" yaml:"from"`
	To   int     `json:"to" yaml:"to"`
	Lag  float64 `json:"lag" yaml:"lag"`
}

// OffsetSpec is an interference tuple. A nil Offset is derived from positions.
type OffsetSpec struct {
	Task1  int      `json:"task1" yaml:"task1"`
	Task2  int      `json:"task2" yaml:"task2"`
	Unit1  int      `json:"unit1" yaml:"unit1"`
	Unit2  int      `json:"unit2" yaml:"unit2"`
	Offset *float64 `json:"offset,omitempty" yaml:"offset,omitempty"`
}

// FormatOf guesses the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Read loads a file. JSON files using the legacy symbol keys are detected
// automatically.
func Read(path string) (*File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instance: %w", err)
	}
	if format == FormatJSON && isLegacy(data) {
		format = FormatLegacy
	}
	f, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return f, nil
}

// Decode parses an instance in the given format.
func Decode(r io.Reader, format Format) (*File, error) {
	var f File
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&f); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&f); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatLegacy:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return decodeLegacy(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return &f, nil
}

// Write stores the file in the format implied by path.
func (f *File) Write(path string) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	var data []byte
	if format == FormatYAML {
		data, err = yaml.Marshal(f)
	} else {
		data, err = json.MarshalIndent(f, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode instance: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func isLegacy(data []byte) bool {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return false
	}
	_, hasT := keys["T"]
	_, hasV := keys["V"]
	return hasT && hasV
}
