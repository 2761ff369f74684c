// Package vote combines per-segment predictions into one recording-level
// label with a confidence-weighted majority vote.
package vote

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoVotes indicates there was nothing to aggregate.
var ErrNoVotes = errors.New("no segment votes to aggregate")

// ErrInvalidVote indicates a vote with an unknown label or a probability
// outside [0, 1].
var ErrInvalidVote = errors.New("invalid segment vote")

// DefaultThreshold is the probability at or above which a segment votes AD.
const DefaultThreshold = 0.28

// Label is a binary classification.
type Label int

const (
	// HC is a healthy control.
	HC Label = 0
	// AD is Alzheimer's-indicative speech.
	AD Label = 1
)

func (l Label) String() string {
	switch l {
	case HC:
		return "HC"
	case AD:
		return "AD"
	default:
		return fmt.Sprintf("Label(%d)", int(l))
	}
}

// Binarize labels p as AD when p >= threshold.
func Binarize(p, threshold float64) Label {
	if p >= threshold {
		return AD
	}
	return HC
}

// ScoredSegment is one segment's prediction. Probability is always P(AD),
// whatever the label.
type ScoredSegment struct {
	Index       int
	Source      string
	Label       Label
	Probability float64
}

// Tally records the weights behind a decision.
type Tally struct {
	Positive float64 // sum of p over AD votes
	Negative float64 // sum of 1-p over HC votes
	AD       int
	HC       int
}

// Aggregate returns AD when the positive weight strictly exceeds the
// negative weight; ties go to HC.
func Aggregate(segments []ScoredSegment) (Label, Tally, error) {
	var t Tally
	if len(segments) == 0 {
		return HC, t, ErrNoVotes
	}
	for _, s := range segments {
		if math.IsNaN(s.Probability) || s.Probability < 0 || s.Probability > 1 {
			return HC, Tally{}, fmt.Errorf("%w: segment %d probability %v", ErrInvalidVote, s.Index, s.Probability)
		}
		switch s.Label {
		case AD:
			t.Positive += s.Probability
			t.AD++
		case HC:
			t.Negative += 1 - s.Probability
			t.HC++
		default:
			return HC, Tally{}, fmt.Errorf("%w: segment %d label %d", ErrInvalidVote, s.Index, int(s.Label))
		}
	}
	if t.Positive > t.Negative {
		return AD, t, nil
	}
	return HC, t, nil
}
