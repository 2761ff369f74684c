package audio

import "errors"

// ErrDecode indicates the recording could not be decoded, even after the
// FFmpeg re-encode fallback. It is fatal for the request.
var ErrDecode = errors.New("audio could not be decoded")

// ErrNoSegments indicates segmentation produced nothing (an empty recording).
var ErrNoSegments = errors.New("no audio segments produced")

// ErrTooLong indicates the recording exceeds the segmenter's maximum
// duration. It is checked from the WAV header before samples are loaded.
var ErrTooLong = errors.New("recording exceeds the maximum duration")

// errNotPCMWAV marks input the native decoder does not handle; it triggers
// the re-encode fallback and never escapes the package.
var errNotPCMWAV = errors.New("not a PCM WAV file")
