package pipeline

import "errors"

// ErrNoUsableSegments indicates every segment lacked both acoustic and
// linguistic features, leaving nothing to score.
var ErrNoUsableSegments = errors.New("no usable segments")

// ErrNoAudio indicates the request carried no audio stream.
var ErrNoAudio = errors.New("request has no audio")

// ErrInvalidRequestID indicates a caller-supplied request ID is not a UUID.
// Request IDs name the work directory, so nothing else is accepted.
var ErrInvalidRequestID = errors.New("request id must be a UUID")
