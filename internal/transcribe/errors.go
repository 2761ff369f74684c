package transcribe

import "errors"

// ErrTranscription indicates a segment could not be transcribed. It is
// recoverable: the caller treats the segment text as empty.
var ErrTranscription = errors.New("transcription failed")

// ErrAPIKeyMissing indicates OPENAI_API_KEY is not set.
var ErrAPIKeyMissing = errors.New("OPENAI_API_KEY environment variable not set")
