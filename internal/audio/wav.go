package audio

import (
	"fmt"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavHeaderSize is the canonical RIFF/fmt/data header length.
const wavHeaderSize = 44

// wavFormatPCM is the WAVE_FORMAT_PCM tag; float and compressed WAVs go
// through the re-encode fallback instead.
const wavFormatPCM = 1

// pcm is interleaved integer sample data.
type pcm struct {
	data       []int
	channels   int
	sampleRate int
	bitDepth   int
}

// frames returns the number of sample frames (samples per channel).
func (p *pcm) frames() int {
	if p.channels == 0 {
		return 0
	}
	return len(p.data) / p.channels
}

// decodeWAV reads an integer PCM WAV file fully into memory. Samples are
// held as []int, so a file longer than maxDuration (when positive) is
// rejected with ErrTooLong from its size before anything is loaded.
func decodeWAV(path string, maxDuration time.Duration) (*pcm, error) {
	f, err := os.Open(path) // #nosec G304 -- path lives in the request work dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	d := wav.NewDecoder(f)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errNotPCMWAV, err)
	}
	if d.NumChans < 1 || d.BitDepth < 8 {
		return nil, fmt.Errorf("%w: %d channels, %d bits", errNotPCMWAV, d.NumChans, d.BitDepth)
	}
	if d.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: format tag %d", errNotPCMWAV, d.WavAudioFormat)
	}

	if maxDuration > 0 {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		bytesPerSecond := int64(d.SampleRate) * int64(d.NumChans) * int64(d.BitDepth/8)
		if bytesPerSecond > 0 {
			seconds := float64(info.Size()-wavHeaderSize) / float64(bytesPerSecond)
			if seconds > maxDuration.Seconds() {
				return nil, fmt.Errorf("%w: about %s, limit %s", ErrTooLong,
					time.Duration(seconds*float64(time.Second)).Round(time.Second), maxDuration)
			}
		}
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate < 1 {
		return nil, fmt.Errorf("%w: missing format information", errNotPCMWAV)
	}

	return &pcm{
		data:       buf.Data,
		channels:   buf.Format.NumChannels,
		sampleRate: buf.Format.SampleRate,
		bitDepth:   int(d.BitDepth),
	}, nil
}

// encodeWAV writes p as an integer PCM WAV file. Output is a pure function
// of p, so repeated runs produce byte-identical files.
func encodeWAV(path string, p *pcm) (err error) {
	f, err := os.Create(path) // #nosec G304 -- path lives in the request work dir
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc := wav.NewEncoder(f, p.sampleRate, p.bitDepth, p.channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: p.channels, SampleRate: p.sampleRate},
		Data:           p.data,
		SourceBitDepth: p.bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav header: %w", err)
	}
	return nil
}
