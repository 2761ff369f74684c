package lang

import "errors"

// ErrUnsupported indicates the language has no transcription or feature
// support. It is a caller error and fails the request before any work.
var ErrUnsupported = errors.New("unsupported language")
