package model

import (
	"math"

	"github.com/alnah/go-speechscreen/internal/features"
)

// Imputer replaces NaN with per-column training medians.
type Imputer struct {
	medians map[string]float64
}

// NewImputer pairs columns with medians by position.
func NewImputer(columns []string, medians []float64) *Imputer {
	m := make(map[string]float64, len(columns))
	for i, c := range columns {
		m[c] = medians[i]
	}
	return &Imputer{medians: m}
}

// Impute returns a copy of v with every NaN replaced by its column median.
// Names without a stored median are left untouched.
func (im *Imputer) Impute(v features.Vector) features.Vector {
	out := make(features.Vector, len(v))
	for k, x := range v {
		if math.IsNaN(x) {
			if m, ok := im.medians[k]; ok {
				x = m
			}
		}
		out[k] = x
	}
	return out
}
