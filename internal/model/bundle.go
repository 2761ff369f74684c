package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/alnah/go-speechscreen/internal/features"
)

// Bundle file names inside a model directory.
const (
	ClassifierFile = "classifier.json"
	ScalerFile     = "scaler.json"
	FeaturesFile   = "features.json"
)

// ClassifierDoc is the content of classifier.json.
type ClassifierDoc struct {
	Version string `json:"version"`
	Forest
}

// ScalerDoc is the content of scaler.json. Medians are the training-set
// column medians used for imputation, aligned with Columns.
type ScalerDoc struct {
	Version string    `json:"version"`
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
	Medians []float64 `json:"medians"`
}

// FeaturesDoc is the content of features.json.
type FeaturesDoc struct {
	Version string          `json:"version"`
	Schema  features.Schema `json:"schema"`
}

// Bundle is the full set of artifacts produced by one training run.
type Bundle struct {
	Classifier ClassifierDoc
	Scaler     ScalerDoc
	Features   FeaturesDoc
}

// Validate checks that the three documents belong together.
func (b *Bundle) Validate() error {
	v := b.Classifier.Version
	if v == "" {
		return fmt.Errorf("%w: %s has no version", ErrModelConfiguration, ClassifierFile)
	}
	if b.Scaler.Version != v || b.Features.Version != v {
		return fmt.Errorf("%w: version mismatch: classifier %q, scaler %q, features %q",
			ErrModelConfiguration, v, b.Scaler.Version, b.Features.Version)
	}

	sc := b.Scaler
	if len(sc.Columns) == 0 || len(sc.Mean) != len(sc.Columns) || len(sc.Scale) != len(sc.Columns) {
		return ErrScalerNotFitted
	}
	if len(sc.Medians) != len(sc.Columns) {
		return fmt.Errorf("%w: %d medians for %d columns", ErrModelConfiguration, len(sc.Medians), len(sc.Columns))
	}
	for i, m := range sc.Medians {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return fmt.Errorf("%w: median of %q is not finite", ErrModelConfiguration, sc.Columns[i])
		}
	}

	want := slices.Clone([]string(b.Features.Schema.All()))
	got := slices.Clone(sc.Columns)
	slices.Sort(want)
	slices.Sort(got)
	if !slices.Equal(want, got) {
		return fmt.Errorf("%w: scaler columns differ from %s schema", ErrSchemaMismatch, FeaturesFile)
	}
	if len(slices.Compact(got)) != len(sc.Columns) {
		return fmt.Errorf("%w: duplicate scaler columns", ErrModelConfiguration)
	}
	return nil
}

// Load reads and validates the bundle in dir. Every failure wraps
// ErrModelConfiguration.
func Load(dir string) (*Registry, error) {
	var b Bundle
	if err := readJSON(dir, ClassifierFile, &b.Classifier); err != nil {
		return nil, err
	}
	if err := readJSON(dir, ScalerFile, &b.Scaler); err != nil {
		return nil, err
	}
	if err := readJSON(dir, FeaturesFile, &b.Features); err != nil {
		return nil, err
	}
	return NewRegistry(b)
}

func readJSON(dir, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(dir, name)) // #nosec G304 -- configured model directory
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s missing in %s", ErrModelConfiguration, name, dir)
		}
		return fmt.Errorf("%w: read %s: %v", ErrModelConfiguration, name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrModelConfiguration, name, err)
	}
	return nil
}

// Save writes b to dir atomically: the files are staged in a sibling
// temporary directory which then replaces dir. Readers never observe a
// partially written bundle.
func Save(dir string, b Bundle) (err error) {
	if err := b.Validate(); err != nil {
		return err
	}

	dir = filepath.Clean(dir)
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+"-staging-*")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(staging)
		}
	}()

	docs := []struct {
		name string
		v    any
	}{
		{ClassifierFile, b.Classifier},
		{ScalerFile, b.Scaler},
		{FeaturesFile, b.Features},
	}
	for _, d := range docs {
		if err := writeJSON(filepath.Join(staging, d.name), d.v); err != nil {
			return err
		}
	}

	var old string
	if _, statErr := os.Stat(dir); statErr == nil {
		old = staging + ".old"
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("move previous bundle aside: %w", err)
		}
	}
	if err := os.Rename(staging, dir); err != nil {
		if old != "" {
			_ = os.Rename(old, dir)
		}
		return fmt.Errorf("publish bundle: %w", err)
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

func writeJSON(path string, v any) (err error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640) // #nosec G304 -- staging directory
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
