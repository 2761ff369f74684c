package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Re-encode target: 16-bit little-endian PCM, 16 kHz, mono WAV.
const (
	ReencodeCodec      = "pcm_s16le"
	ReencodeSampleRate = 16000
	ReencodeChannels   = 1
)

// minMajorVersion is the oldest FFmpeg release known to decode every
// container the mobile clients upload (m4a/aac, 3gp/amr, webm/opus).
const minMajorVersion = 4

// runOutputFn runs a command and returns its stderr.
type runOutputFn func(ctx context.Context, path string, args []string) (string, error)

// Executor runs FFmpeg commands with injectable dependencies.
type Executor struct {
	runOutput runOutputFn
	stderr    io.Writer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRunOutput sets a custom runOutput function (for testing).
func WithRunOutput(fn runOutputFn) ExecutorOption {
	return func(e *Executor) { e.runOutput = fn }
}

// WithStderr sets the writer for version warnings.
func WithStderr(w io.Writer) ExecutorOption {
	return func(e *Executor) { e.stderr = w }
}

// NewExecutor creates an Executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		runOutput: defaultRunOutput,
		stderr:    os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOutput executes FFmpeg and captures its stderr output.
func (e *Executor) RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	return e.runOutput(ctx, ffmpegPath, args)
}

// ReencodeArgs builds the argument list converting in to a 16 kHz mono PCM WAV at out.
func ReencodeArgs(in, out string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", in,
		"-vn",
		"-acodec", ReencodeCodec,
		"-ar", fmt.Sprint(ReencodeSampleRate),
		"-ac", fmt.Sprint(ReencodeChannels),
		"-f", "wav",
		out,
	}
}

// Reencode converts in to 16-bit PCM, 16 kHz mono WAV at out.
// It is the single fallback attempted when native decoding fails.
func (e *Executor) Reencode(ctx context.Context, ffmpegPath, in, out string) error {
	output, err := e.runOutput(ctx, ffmpegPath, ReencodeArgs(in, out))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v: %s", ErrReencodeFailed, err, strings.TrimSpace(output))
	}
	return nil
}

// CheckVersion warns on stderr when ffmpeg is older than the supported minimum.
// Returns false when the version could not be determined.
func (e *Executor) CheckVersion(ctx context.Context, ffmpegPath string) bool {
	output, err := e.runOutput(ctx, ffmpegPath, []string{"-version"})
	if err != nil && output == "" {
		return false
	}

	firstLine, _, _ := strings.Cut(output, "\n")
	if firstLine == "" {
		return false
	}

	var major int
	if _, err := fmt.Sscanf(firstLine, "ffmpeg version %d", &major); err != nil {
		if _, err := fmt.Sscanf(firstLine, "ffmpeg version n%d", &major); err != nil {
			return false
		}
	}

	if major < minMajorVersion {
		fmt.Fprintf(e.stderr, "Warning: ffmpeg version %d detected, version %d+ recommended\n",
			major, minMajorVersion)
	}
	return true
}

// defaultRunOutput returns stderr even when the command fails; FFmpeg
// writes its diagnostics there.
func defaultRunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	// #nosec G204 -- args are built by ReencodeArgs, paths live in the request work dir
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stderr.String(), err
}
