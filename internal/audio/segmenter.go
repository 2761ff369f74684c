package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Segmenter splits or pads one recording into fixed-length WAV segments.
type Segmenter struct {
	length      time.Duration
	maxDuration time.Duration
	reencoder   Reencoder
	dirs        dirMaker
	log         logrus.FieldLogger
}

// SegmenterOption configures a Segmenter.
type SegmenterOption func(*Segmenter)

// WithSegmentLength overrides DefaultSegmentLength.
func WithSegmentLength(d time.Duration) SegmenterOption {
	return func(s *Segmenter) {
		if d > 0 {
			s.length = d
		}
	}
}

// WithMaxDuration rejects recordings longer than d with ErrTooLong.
// Zero disables the limit.
func WithMaxDuration(d time.Duration) SegmenterOption {
	return func(s *Segmenter) {
		if d >= 0 {
			s.maxDuration = d
		}
	}
}

// WithReencoder sets the re-encode fallback (for testing or custom tooling).
func WithReencoder(r Reencoder) SegmenterOption {
	return func(s *Segmenter) { s.reencoder = r }
}

// WithLogger sets the logger used for decode and segmentation events.
func WithLogger(l logrus.FieldLogger) SegmenterOption {
	return func(s *Segmenter) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSegmenter creates a Segmenter whose fallback runs ffmpeg at ffmpegPath.
// An empty ffmpegPath disables the fallback: non-WAV input then fails with ErrDecode.
func NewSegmenter(ffmpegPath string, opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		length:    DefaultSegmentLength,
		reencoder: FFmpegReencoder{Path: ffmpegPath},
		dirs:      osDirMaker{},
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Length returns the target segment duration.
func (s *Segmenter) Length() time.Duration {
	return s.length
}

// Segment decodes recordingPath and writes its segments into outDir, ordered
// by Index. Every segment holds exactly Length() of audio.
//
// Undecodable input is re-encoded once; if that also fails the error wraps
// ErrDecode. An empty recording yields ErrNoSegments.
func (s *Segmenter) Segment(ctx context.Context, recordingPath, outDir string) ([]Segment, error) {
	if err := s.dirs.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("create segment directory: %w", err)
	}

	rec, samples, err := s.decode(ctx, recordingPath, outDir)
	if err != nil {
		return nil, err
	}

	target := int(int64(rec.SampleRate) * int64(s.length) / int64(time.Second))
	ranges := plan(rec.Frames, target)
	if len(ranges) == 0 {
		return nil, fmt.Errorf("%s (%d frames): %w", rec.Source, rec.Frames, ErrNoSegments)
	}

	s.log.WithFields(logrus.Fields{
		"source":      rec.Source,
		"duration":    rec.Duration().String(),
		"sample_rate": rec.SampleRate,
		"channels":    rec.Channels,
		"reencoded":   rec.Reencoded,
		"segments":    len(ranges),
	}).Info("recording decoded")

	ch := samples.channels
	segments := make([]Segment, 0, len(ranges))
	for i, r := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data := samples.data[r.start*ch : r.end*ch]
		if r.loop {
			data = loopTo(data, ch, target)
		}

		path := filepath.Join(outDir, segmentFileName(rec.Source, i))
		out := &pcm{data: data, channels: ch, sampleRate: samples.sampleRate, bitDepth: samples.bitDepth}
		if err := encodeWAV(path, out); err != nil {
			return nil, fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}

		if r.loop {
			s.log.WithFields(logrus.Fields{
				"segment":      filepath.Base(path),
				"source_range": fmt.Sprintf("%d-%d", r.start, r.end),
			}).Debug("segment padded by looping")
		}

		segments = append(segments, Segment{
			Index:    i,
			Path:     path,
			Source:   rec.Source,
			Duration: s.length,
		})
	}

	return segments, nil
}

// decode tries the native WAV decoder, then the re-encode fallback exactly once.
func (s *Segmenter) decode(ctx context.Context, recordingPath, workDir string) (Recording, *pcm, error) {
	source := filepath.Base(recordingPath)
	rec := Recording{Source: source}

	if err := ctx.Err(); err != nil {
		return rec, nil, err
	}

	samples, nativeErr := decodeWAV(recordingPath, s.maxDuration)
	if nativeErr != nil {
		if errors.Is(nativeErr, fs.ErrNotExist) {
			return rec, nil, fmt.Errorf("%w: %v", ErrDecode, nativeErr)
		}
		if errors.Is(nativeErr, ErrTooLong) {
			return rec, nil, fmt.Errorf("%s: %w", source, nativeErr)
		}

		s.log.WithFields(logrus.Fields{
			"source": source,
			"error":  nativeErr.Error(),
		}).Warn("native decode failed, re-encoding")

		stem := strings.TrimSuffix(source, filepath.Ext(source))
		reencoded := filepath.Join(workDir, stem+"_reencoded.wav")
		if err := s.reencoder.Reencode(ctx, recordingPath, reencoded); err != nil {
			if ctx.Err() != nil {
				return rec, nil, ctx.Err()
			}
			return rec, nil, fmt.Errorf("%w: %s: re-encode: %v", ErrDecode, source, err)
		}

		var err error
		samples, err = decodeWAV(reencoded, s.maxDuration)
		if errors.Is(err, ErrTooLong) {
			return rec, nil, fmt.Errorf("%s: %w", source, err)
		}
		if err != nil {
			return rec, nil, fmt.Errorf("%w: %s: after re-encode: %v", ErrDecode, source, err)
		}
		rec.Reencoded = true
	}

	rec.SampleRate = samples.sampleRate
	rec.Channels = samples.channels
	rec.BitDepth = samples.bitDepth
	rec.Frames = samples.frames()
	return rec, samples, nil
}
