package model

import (
	"fmt"
	"math"

	"github.com/alnah/go-speechscreen/internal/features"
)

// Scaler is a standard scaler fit offline. Columns fixes the row order.
type Scaler struct {
	Columns []string
	Mean    []float64
	Scale   []float64
}

// Fitted reports whether the scaler carries statistics for every column.
func (s *Scaler) Fitted() bool {
	return s != nil && len(s.Columns) > 0 &&
		len(s.Mean) == len(s.Columns) && len(s.Scale) == len(s.Columns)
}

// Row lays v out in column order. v must have exactly the scaler's columns.
func (s *Scaler) Row(v features.Vector) ([]float64, error) {
	if !s.Fitted() {
		return nil, ErrScalerNotFitted
	}
	if len(v) != len(s.Columns) {
		return nil, fmt.Errorf("%w: got %d columns, want %d%s",
			ErrSchemaMismatch, len(v), len(s.Columns), s.diff(v))
	}
	row := make([]float64, len(s.Columns))
	for i, name := range s.Columns {
		x, ok := v[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, name)
		}
		if math.IsNaN(x) {
			return nil, fmt.Errorf("%w: column %q", ErrNaNFeature, name)
		}
		row[i] = x
	}
	return row, nil
}

// Transform standardizes row in place as (x - mean) / scale. A zero scale
// is treated as 1, matching constant columns at fit time.
func (s *Scaler) Transform(row []float64) {
	for i := range row {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		row[i] = (row[i] - s.Mean[i]) / scale
	}
}

func (s *Scaler) diff(v features.Vector) string {
	known := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		known[c] = true
	}
	for name := range v {
		if !known[name] {
			return fmt.Sprintf(" (unexpected column %q)", name)
		}
	}
	return ""
}
