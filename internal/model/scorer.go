package model

import (
	"fmt"

	"github.com/alnah/go-speechscreen/internal/features"
)

// Scorer turns one imputed feature vector into the positive-class
// probability. It never thresholds and never refits anything.
type Scorer struct {
	scaler *Scaler
	forest *Forest
	// pick[i] is the scaler column feeding forest feature i.
	pick []int
}

// NewScorer links a fitted scaler to a forest whose features are a subset
// of the scaler's columns.
func NewScorer(scaler *Scaler, forest *Forest) (*Scorer, error) {
	if !scaler.Fitted() {
		return nil, ErrScalerNotFitted
	}
	if err := forest.validate(); err != nil {
		return nil, fmt.Errorf("%w: classifier: %v", ErrModelConfiguration, err)
	}
	col := make(map[string]int, len(scaler.Columns))
	for i, name := range scaler.Columns {
		col[name] = i
	}
	pick := make([]int, len(forest.FeatureNames))
	for i, name := range forest.FeatureNames {
		j, ok := col[name]
		if !ok {
			return nil, fmt.Errorf("%w: significant feature %q not among scaler columns", ErrSchemaMismatch, name)
		}
		pick[i] = j
	}
	return &Scorer{scaler: scaler, forest: forest, pick: pick}, nil
}

// Score standardizes v, selects the significant features and returns
// P(label = 1) in [0, 1].
func (s *Scorer) Score(v features.Vector) (float64, error) {
	row, err := s.scaler.Row(v)
	if err != nil {
		return 0, err
	}
	s.scaler.Transform(row)

	selected := make([]float64, len(s.pick))
	for i, j := range s.pick {
		selected[i] = row[j]
	}
	return s.forest.PositiveProba(selected), nil
}

// Significant returns the classifier's feature names in order.
func (s *Scorer) Significant() []string {
	return append([]string(nil), s.forest.FeatureNames...)
}
