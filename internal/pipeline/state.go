package pipeline

import (
	"errors"
	"fmt"

	"github.com/alnah/go-speechscreen/internal/audio"
	"github.com/alnah/go-speechscreen/internal/audit"
	"github.com/alnah/go-speechscreen/internal/features"
	"github.com/alnah/go-speechscreen/internal/lang"
	"github.com/alnah/go-speechscreen/internal/model"
	"github.com/alnah/go-speechscreen/internal/vote"
)

// State is a request's position in the classification state machine:
//
//	Idle -> Segmenting -> Extracting -> Scoring -> Aggregating -> Finalizing -> Done
//
// Any state may move to Finalizing on error or cancellation, which then
// ends in Failed.
type State int

const (
	StateIdle State = iota
	StateSegmenting
	StateExtracting
	StateScoring
	StateAggregating
	StateFinalizing
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateSegmenting:  "segmenting",
	StateExtracting:  "extracting",
	StateScoring:     "scoring",
	StateAggregating: "aggregating",
	StateFinalizing:  "finalizing",
	StateDone:        "done",
	StateFailed:      "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome is the user-facing verdict.
type Outcome string

const (
	OutcomeAD           Outcome = "AD"
	OutcomeHC           Outcome = "HC"
	OutcomeUnclassified Outcome = "could not classify"
)

func outcomeOf(l vote.Label) Outcome {
	if l == vote.AD {
		return OutcomeAD
	}
	return OutcomeHC
}

// Classification maps the return values of Classify to the outcome shown to
// users. A failed request never surfaces a default label.
func Classification(res *Result, err error) Outcome {
	if err != nil || res == nil {
		return OutcomeUnclassified
	}
	return res.Outcome
}

// Reason returns a short user-facing explanation for a failed request.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequestID):
		return "invalid request id"
	case errors.Is(err, lang.ErrUnsupported):
		return "language not supported"
	case errors.Is(err, audio.ErrTooLong):
		return "recording is too long"
	case errors.Is(err, audio.ErrDecode), errors.Is(err, ErrNoAudio):
		return "audio could not be decoded"
	case errors.Is(err, audio.ErrNoSegments):
		return "recording is empty"
	case errors.Is(err, ErrNoUsableSegments):
		return "no usable speech found"
	case errors.Is(err, features.ErrSchemaDrift):
		return "feature service does not match the model"
	case errors.Is(err, model.ErrModelConfiguration):
		return "model unavailable"
	case errors.Is(err, audit.ErrAudit), errors.Is(err, audit.ErrExists):
		return "audit trail could not be written"
	case isCanceled(err):
		return "canceled"
	default:
		return "internal error"
	}
}
