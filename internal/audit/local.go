package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalSink appends to <dir>/predictions-<request>.csv. The header is
// written only when the file is created; existing rows are never rewritten.
type LocalSink struct {
	dir string
}

var _ Sink = (*LocalSink)(nil)

// NewLocalSink creates a sink rooted at dir. The directory is created on
// first write.
func NewLocalSink(dir string) *LocalSink {
	return &LocalSink{dir: dir}
}

// Write appends rows and returns the file path.
func (s *LocalSink) Write(ctx context.Context, requestID string, rows []Row) (_ string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAudit, err)
	}
	path := filepath.Join(s.dir, objectName(requestID))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) // #nosec G304 -- name derived from a generated request id
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAudit, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %v", ErrAudit, cerr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAudit, err)
	}
	if err := Encode(f, rows, info.Size() == 0); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAudit, err)
	}
	return path, nil
}
