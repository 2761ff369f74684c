package audio

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultSegmentLength is the fixed duration of every segment. Some acoustic
// features (zero-crossing rate, energy statistics) depend on clip length, so
// every segment is normalized to it.
const DefaultSegmentLength = 20 * time.Second

// Segment is a fixed-length slice of one recording, written as a WAV file.
// The caller owns the file and removes it with the request work directory.
type Segment struct {
	Index    int           // Zero-based ordinal in time order.
	Path     string        // Absolute path to the segment WAV.
	Source   string        // Base filename of the originating recording.
	Duration time.Duration // Always the segmenter's target length.
}

// Name returns the segment's file name, used as the audit row key.
func (s Segment) Name() string {
	return filepath.Base(s.Path)
}

// String returns a human-readable representation for logging.
func (s Segment) String() string {
	return fmt.Sprintf("segment %d (%s from %s)", s.Index, s.Name(), s.Source)
}

// segmentFileName derives "<stem>_segment<N>.wav" with a 1-based N.
func segmentFileName(source string, index int) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_segment%d.wav", stem, index+1)
}

// Recording describes a decoded input.
type Recording struct {
	Source     string
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
	Reencoded  bool
}

// Duration returns the decoded length of the recording.
func (r Recording) Duration() time.Duration {
	if r.SampleRate == 0 {
		return 0
	}
	return time.Duration(int64(r.Frames) * int64(time.Second) / int64(r.SampleRate))
}
