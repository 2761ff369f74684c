package audio

// Export internal functions for testing.
// This file is only compiled during tests (suffix _test.go).

// FrameRange is a test-visible version of frameRange.
type FrameRange struct {
	Start, End int
	Loop       bool
}

// Plan exports plan for testing.
func Plan(total, target int) []FrameRange {
	internal := plan(total, target)
	if internal == nil {
		return nil
	}
	result := make([]FrameRange, len(internal))
	for i, r := range internal {
		result[i] = FrameRange{Start: r.start, End: r.end, Loop: r.loop}
	}
	return result
}

// LoopTo exports loopTo for testing.
var LoopTo = loopTo

// SegmentFileName exports segmentFileName for testing.
var SegmentFileName = segmentFileName

// WriteWAV writes interleaved integer samples as a PCM WAV file.
func WriteWAV(path string, data []int, channels, sampleRate, bitDepth int) error {
	return encodeWAV(path, &pcm{data: data, channels: channels, sampleRate: sampleRate, bitDepth: bitDepth})
}

// ReadWAV decodes a PCM WAV file, returning samples, channels and sample rate.
func ReadWAV(path string) (data []int, channels, sampleRate int, err error) {
	p, err := decodeWAV(path, 0)
	if err != nil {
		return nil, 0, 0, err
	}
	return p.data, p.channels, p.sampleRate, nil
}

// ErrNotPCMWAV exports errNotPCMWAV for testing.
var ErrNotPCMWAV = errNotPCMWAV
