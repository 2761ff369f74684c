// Package model loads the trained classifier bundle and scores feature
// vectors with it.
//
// A Registry is built once at startup and shared read-only across
// concurrent requests; nothing in it is mutated after construction.
package model

import (
	"fmt"
	"slices"

	"github.com/alnah/go-speechscreen/internal/features"
)

// Registry holds the loaded model state.
type Registry struct {
	version string
	schema  features.Schema
	imputer *Imputer
	scorer  *Scorer
	trees   int
}

// NewRegistry validates b and builds a Registry from it.
func NewRegistry(b Bundle) (*Registry, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	sc := b.Scaler
	scaler := &Scaler{
		Columns: slices.Clone(sc.Columns),
		Mean:    slices.Clone(sc.Mean),
		Scale:   slices.Clone(sc.Scale),
	}
	forest := b.Classifier.Forest
	forest.FeatureNames = slices.Clone(forest.FeatureNames)

	scorer, err := NewScorer(scaler, &forest)
	if err != nil {
		return nil, err
	}
	return &Registry{
		version: b.Classifier.Version,
		schema: features.Schema{
			Acoustic:   slices.Clone(b.Features.Schema.Acoustic),
			Linguistic: slices.Clone(b.Features.Schema.Linguistic),
		},
		imputer: NewImputer(sc.Columns, sc.Medians),
		scorer:  scorer,
		trees:   len(forest.Trees),
	}, nil
}

// Version returns the bundle version shared by all three artifacts.
func (r *Registry) Version() string { return r.version }

// Schema returns the feature schema. Callers must not modify it.
func (r *Registry) Schema() features.Schema { return r.schema }

// Impute fills NaN values with training medians.
func (r *Registry) Impute(v features.Vector) features.Vector { return r.imputer.Impute(v) }

// Score returns P(AD) for an imputed vector.
func (r *Registry) Score(v features.Vector) (float64, error) { return r.scorer.Score(v) }

// Summary describes a loaded bundle.
type Summary struct {
	Version     string   `json:"version"`
	Trees       int      `json:"trees"`
	Acoustic    int      `json:"acoustic_features"`
	Linguistic  int      `json:"linguistic_features"`
	Significant []string `json:"significant_features"`
}

// Summary returns a description for inspection tooling.
func (r *Registry) Summary() Summary {
	return Summary{
		Version:     r.version,
		Trees:       r.trees,
		Acoustic:    len(r.schema.Acoustic),
		Linguistic:  len(r.schema.Linguistic),
		Significant: r.scorer.Significant(),
	}
}

// String implements fmt.Stringer.
func (s Summary) String() string {
	return fmt.Sprintf("model %s: %d trees, %d acoustic + %d linguistic features, %d significant",
		s.Version, s.Trees, s.Acoustic, s.Linguistic, len(s.Significant))
}
