package model

import "fmt"

// leaf marks a node without children in the exported tree arrays.
const leaf = -1

// Tree is one decision tree in flattened array form. Node i splits on
// Feature[i] at Threshold[i]: rows with x <= threshold go left. Value[i]
// holds the per-class sample weights reaching node i.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

func (t *Tree) validate(nFeatures, nClasses int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays have different lengths")
	}
	for i := range n {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if (l == leaf) != (r == leaf) {
			return fmt.Errorf("node %d has one child", i)
		}
		if l != leaf {
			if l <= i || r <= i || l >= n || r >= n {
				return fmt.Errorf("node %d has out-of-order children", i)
			}
			if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
				return fmt.Errorf("node %d splits on feature %d of %d", i, t.Feature[i], nFeatures)
			}
		}
		if len(t.Value[i]) != nClasses {
			return fmt.Errorf("node %d has %d class weights, want %d", i, len(t.Value[i]), nClasses)
		}
	}
	return nil
}

// proba returns the normalized class distribution of the leaf row falls in.
func (t *Tree) proba(row []float64) []float64 {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if row[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	weights := t.Value[node]
	var total float64
	for _, w := range weights {
		total += w
	}
	out := make([]float64, len(weights))
	if total == 0 {
		return out
	}
	for i, w := range weights {
		out[i] = w / total
	}
	return out
}

// Forest is a random forest classifier over FeatureNames, in order.
type Forest struct {
	FeatureNames []string `json:"feature_names"`
	Classes      []int    `json:"classes"`
	Trees        []Tree   `json:"trees"`
}

func (f *Forest) validate() error {
	if len(f.FeatureNames) == 0 {
		return fmt.Errorf("no feature names")
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("no trees")
	}
	if f.positiveIndex() < 0 {
		return fmt.Errorf("classes %v do not include 1", f.Classes)
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(len(f.FeatureNames), len(f.Classes)); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func (f *Forest) positiveIndex() int {
	for i, c := range f.Classes {
		if c == 1 {
			return i
		}
	}
	return -1
}

// PositiveProba averages the trees' leaf distributions and returns the
// weight of class 1. row is laid out in FeatureNames order.
func (f *Forest) PositiveProba(row []float64) float64 {
	pos := f.positiveIndex()
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].proba(row)[pos]
	}
	return sum / float64(len(f.Trees))
}
