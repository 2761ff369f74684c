package audio

import (
	"context"
	"fmt"
	"os"

	"github.com/alnah/go-speechscreen/internal/ffmpeg"
)

// Reencoder converts an arbitrary audio file to 16 kHz mono PCM WAV.
type Reencoder interface {
	Reencode(ctx context.Context, in, out string) error
}

// dirMaker creates directories.
type dirMaker interface {
	MkdirAll(path string, perm os.FileMode) error
}

type osDirMaker struct{}

func (osDirMaker) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// FFmpegReencoder implements Reencoder with the ffmpeg binary at Path.
type FFmpegReencoder struct {
	Path     string
	Executor *ffmpeg.Executor
}

// Reencode runs the fixed PCM conversion. An empty Path reports ffmpeg.ErrNotFound.
func (r FFmpegReencoder) Reencode(ctx context.Context, in, out string) error {
	if r.Path == "" {
		return fmt.Errorf("re-encode %s: %w", in, ffmpeg.ErrNotFound)
	}
	exec := r.Executor
	if exec == nil {
		exec = ffmpeg.NewExecutor()
	}
	return exec.Reencode(ctx, r.Path, in, out)
}

var (
	_ Reencoder = FFmpegReencoder{}
	_ dirMaker  = osDirMaker{}
)
