package ffmpeg

import "errors"

// ErrNotFound indicates no usable FFmpeg binary could be located.
var ErrNotFound = errors.New("ffmpeg not found")

// ErrReencodeFailed indicates FFmpeg could not convert the input to PCM WAV.
var ErrReencodeFailed = errors.New("ffmpeg re-encode failed")
