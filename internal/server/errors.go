package server

import "errors"

var (
	// ErrJobNotFound indicates an unknown or expired request id.
	ErrJobNotFound = errors.New("classification not found")

	// ErrJobFinished indicates a cancel for a request that already ended.
	ErrJobFinished = errors.New("classification already finished")
)
