// Package features defines feature vectors and the clients that obtain
// them from the acoustic and linguistic feature services.
package features

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Vector maps feature names to values. NaN marks a missing value.
type Vector map[string]float64

// AllNaN reports whether v holds no usable value. An empty vector is all NaN.
func (v Vector) AllNaN() bool {
	for _, x := range v {
		if !math.IsNaN(x) {
			return false
		}
	}
	return true
}

// Missing returns the names whose value is NaN, sorted.
func (v Vector) Missing() []string {
	var names []string
	for k, x := range v {
		if math.IsNaN(x) {
			names = append(names, k)
		}
	}
	slices.Sort(names)
	return names
}

// Merge returns a new vector holding the entries of all vs. Later vectors
// win on duplicate names.
func Merge(vs ...Vector) Vector {
	n := 0
	for _, v := range vs {
		n += len(v)
	}
	out := make(Vector, n)
	for _, v := range vs {
		for k, x := range v {
			out[k] = x
		}
	}
	return out
}

// Names is an ordered list of feature names.
type Names []string

// Complete returns a vector with exactly the names in n: values present in
// v are kept, absent ones are NaN, and names outside n are dropped.
func (n Names) Complete(v Vector) Vector {
	out := make(Vector, len(n))
	for _, name := range n {
		if x, ok := v[name]; ok {
			out[name] = x
		} else {
			out[name] = math.NaN()
		}
	}
	return out
}

// Conform is Complete for vectors received from a feature service: names
// outside n, or a vector sharing no name with n, fail with ErrSchemaDrift
// instead of being dropped.
func (n Names) Conform(v Vector) (Vector, error) {
	var unknown []string
	known := 0
	for name := range v {
		if slices.Contains(n, name) {
			known++
		} else {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return nil, fmt.Errorf("%w: unexpected columns %s", ErrSchemaDrift, strings.Join(unknown, ", "))
	}
	if len(n) > 0 && known == 0 {
		return nil, fmt.Errorf("%w: none of %d expected columns present", ErrSchemaDrift, len(n))
	}
	return n.Complete(v), nil
}

// NaNFilled returns a vector with every name set to NaN.
func (n Names) NaNFilled() Vector {
	return n.Complete(nil)
}

// Schema is the full feature set a model was trained on.
type Schema struct {
	Acoustic   Names `json:"acoustic"`
	Linguistic Names `json:"linguistic"`
}

// All returns acoustic names followed by linguistic names.
func (s Schema) All() Names {
	return slices.Concat(s.Acoustic, s.Linguistic)
}

// Complete restricts v to the schema, NaN-filling absent names.
func (s Schema) Complete(v Vector) Vector {
	return s.All().Complete(v)
}

// AcousticExtractor computes acoustic features from a segment WAV file.
type AcousticExtractor interface {
	ExtractAcoustic(ctx context.Context, segmentPath string) (Vector, error)
}

// LinguisticExtractor computes linguistic features from a transcript.
type LinguisticExtractor interface {
	ExtractLinguistic(ctx context.Context, text, language string) (Vector, error)
}
