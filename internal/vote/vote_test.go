package vote_test

import (
	"errors"
	"math"
	"testing"

	"github.com/alnah/go-speechscreen/internal/vote"
)

func votes(pairs ...float64) []vote.ScoredSegment {
	out := make([]vote.ScoredSegment, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, vote.ScoredSegment{
			Index:       i / 2,
			Label:       vote.Label(int(pairs[i])),
			Probability: pairs[i+1],
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Aggregate
// ---------------------------------------------------------------------------

func TestAggregate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		segments []vote.ScoredSegment
		want     vote.Label
		wantPos  float64
		wantNeg  float64
	}{
		{
			name:     "confident AD outweighs two unsure HC",
			segments: votes(1, 0.9, 0, 0.6, 0, 0.6),
			want:     vote.AD,
			wantPos:  0.9,
			wantNeg:  0.8,
		},
		{
			name:     "exact tie goes to HC",
			segments: votes(1, 0.5, 0, 0.5),
			want:     vote.HC,
			wantPos:  0.5,
			wantNeg:  0.5,
		},
		{
			name:     "single AD",
			segments: votes(1, 0.3),
			want:     vote.AD,
			wantPos:  0.3,
		},
		{
			name:     "single HC",
			segments: votes(0, 0.1),
			want:     vote.HC,
			wantNeg:  0.9,
		},
		{
			name:     "HC at probability 1 adds no weight",
			segments: votes(0, 1, 1, 0.28),
			want:     vote.AD,
			wantPos:  0.28,
			wantNeg:  0,
		},
		{
			name:     "many confident HC",
			segments: votes(1, 0.95, 0, 0.05, 0, 0.1),
			want:     vote.HC,
			wantPos:  0.95,
			wantNeg:  1.85,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, tally, err := vote.Aggregate(tt.segments)
			if err != nil {
				t.Fatalf("Aggregate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Aggregate() = %v, want %v", got, tt.want)
			}
			if math.Abs(tally.Positive-tt.wantPos) > 1e-9 || math.Abs(tally.Negative-tt.wantNeg) > 1e-9 {
				t.Errorf("tally = %+v, want positive %v negative %v", tally, tt.wantPos, tt.wantNeg)
			}
			if tally.AD+tally.HC != len(tt.segments) {
				t.Errorf("vote counts %d+%d != %d", tally.AD, tally.HC, len(tt.segments))
			}
		})
	}
}

func TestAggregate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		segments []vote.ScoredSegment
		wantErr  error
	}{
		{name: "nil", segments: nil, wantErr: vote.ErrNoVotes},
		{name: "empty", segments: []vote.ScoredSegment{}, wantErr: vote.ErrNoVotes},
		{name: "probability above one", segments: votes(1, 1.2), wantErr: vote.ErrInvalidVote},
		{name: "negative probability", segments: votes(0, -0.1), wantErr: vote.ErrInvalidVote},
		{name: "NaN probability", segments: votes(1, math.NaN()), wantErr: vote.ErrInvalidVote},
		{name: "unknown label", segments: votes(2, 0.5), wantErr: vote.ErrInvalidVote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := vote.Aggregate(tt.segments); !errors.Is(err, tt.wantErr) {
				t.Errorf("Aggregate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Binarize
// ---------------------------------------------------------------------------

func TestBinarize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		p    float64
		want vote.Label
	}{
		{0, vote.HC},
		{0.279999, vote.HC},
		{0.28, vote.AD},
		{0.280001, vote.AD},
		{1, vote.AD},
	}

	for _, tt := range tests {
		if got := vote.Binarize(tt.p, vote.DefaultThreshold); got != tt.want {
			t.Errorf("Binarize(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestLabel_String(t *testing.T) {
	t.Parallel()
	if vote.AD.String() != "AD" || vote.HC.String() != "HC" || vote.Label(5).String() != "Label(5)" {
		t.Error("unexpected Label.String output")
	}
}
