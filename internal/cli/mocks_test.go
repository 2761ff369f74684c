package cli

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alnah/go-speechscreen/internal/config"
	"github.com/alnah/go-speechscreen/internal/features"
	"github.com/alnah/go-speechscreen/internal/model"
	"github.com/alnah/go-speechscreen/internal/pipeline"
	"github.com/alnah/go-speechscreen/internal/transcribe"
)

// ---------------------------------------------------------------------------
// Mock FFmpegResolver
// ---------------------------------------------------------------------------

type mockFFmpegResolver struct {
	ResolveFunc func(ctx context.Context) (string, error)

	mu           sync.Mutex
	resolveCalls int
	checked      []string
}

func (m *mockFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.resolveCalls++
	m.mu.Unlock()
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx)
	}
	return "/usr/bin/ffmpeg", nil
}

func (m *mockFFmpegResolver) CheckVersion(_ context.Context, ffmpegPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checked = append(m.checked, ffmpegPath)
}

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	cfg *config.Config
	err error

	mu    sync.Mutex
	calls int
}

func (m *mockConfigLoader) Load(string, func(string) string) (*config.Config, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c := *m.cfg
	return &c, nil
}

func (m *mockConfigLoader) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ---------------------------------------------------------------------------
// Mock LoggerFactory
// ---------------------------------------------------------------------------

type mockLoggerFactory struct{}

func (mockLoggerFactory) NewLogger(*config.Config) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l, nil
}

// ---------------------------------------------------------------------------
// Mock ModelLoader + model
// ---------------------------------------------------------------------------

// fakeModel scores every segment with a fixed probability.
type fakeModel struct {
	p float64
}

func (fakeModel) Version() string { return "test-1" }

func (fakeModel) Schema() features.Schema {
	return features.Schema{Acoustic: features.Names{"a"}, Linguistic: features.Names{"l"}}
}

func (fakeModel) Impute(v features.Vector) features.Vector {
	out := make(features.Vector, len(v))
	for k, x := range v {
		if math.IsNaN(x) {
			x = 0
		}
		out[k] = x
	}
	return out
}

func (m fakeModel) Score(features.Vector) (float64, error) { return m.p, nil }

func (fakeModel) Summary() model.Summary {
	return model.Summary{Version: "test-1", Trees: 3, Acoustic: 1, Linguistic: 1, Significant: []string{"a"}}
}

type mockModelLoader struct {
	model LoadedModel
	err   error

	mu   sync.Mutex
	dirs []string
}

func (m *mockModelLoader) Load(dir string) (LoadedModel, error) {
	m.mu.Lock()
	m.dirs = append(m.dirs, dir)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.model, nil
}

func (m *mockModelLoader) Dirs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dirs...)
}

// ---------------------------------------------------------------------------
// Mock TranscriberFactory + Transcriber
// ---------------------------------------------------------------------------

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, string, string) (string, error) {
	return f.text, f.err
}

type mockTranscriberFactory struct {
	transcriber transcribe.Transcriber
	err         error

	mu      sync.Mutex
	apiKeys []string
}

func (m *mockTranscriberFactory) NewTranscriber(_ *config.Config, apiKey string) (transcribe.Transcriber, error) {
	m.mu.Lock()
	m.apiKeys = append(m.apiKeys, apiKey)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.transcriber, nil
}

func (m *mockTranscriberFactory) APIKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.apiKeys...)
}

// ---------------------------------------------------------------------------
// Mock ExtractorFactory + Extractor
// ---------------------------------------------------------------------------

type fakeExtractor struct {
	failAcoustic bool
}

func (f fakeExtractor) ExtractAcoustic(ctx context.Context, _ string) (features.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failAcoustic {
		return nil, errors.New("sidecar down")
	}
	return features.Vector{"a": 1}, nil
}

func (fakeExtractor) ExtractLinguistic(ctx context.Context, text, _ string) (features.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return features.Vector{"l": float64(len(text))}, nil
}

type mockExtractorFactory struct {
	extractor pipeline.Extractor

	mu     sync.Mutex
	schema features.Schema
}

func (m *mockExtractorFactory) NewExtractor(_ *config.Config, schema features.Schema) pipeline.Extractor {
	m.mu.Lock()
	m.schema = schema
	m.mu.Unlock()
	return m.extractor
}

// ---------------------------------------------------------------------------
// Fixed clock
// ---------------------------------------------------------------------------

func fixedNow() func() time.Time {
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}
