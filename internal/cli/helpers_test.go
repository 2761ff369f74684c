package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"

	"github.com/alnah/go-speechscreen/internal/config"
)

// ---------------------------------------------------------------------------
// syncBuffer - thread-safe bytes.Buffer for concurrent test output
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ io.Writer = (*syncBuffer)(nil)

// ---------------------------------------------------------------------------
// testMocks - convenience struct for grouping all mocks
// ---------------------------------------------------------------------------

type testMocks struct {
	ffmpeg      *mockFFmpegResolver
	config      *mockConfigLoader
	models      *mockModelLoader
	transcriber *mockTranscriberFactory
	extractor   *mockExtractorFactory
	cfg         *config.Config
	stdout      *syncBuffer
	stderr      *syncBuffer
	env         map[string]string
}

// newTestEnv returns an Env whose file system effects stay under t.TempDir.
// The segmenter and audit sink are the production ones.
func newTestEnv(t *testing.T) (*Env, *testMocks) {
	t.Helper()
	root := t.TempDir()

	cfg := &config.Config{}
	cfg.Paths.WorkRoot = filepath.Join(root, "work")
	cfg.Paths.AuditDir = filepath.Join(root, "audit")
	cfg.Paths.ModelDir = filepath.Join(root, "model")
	cfg.Pipeline.Threshold = config.DefaultThreshold
	cfg.Pipeline.SegmentSeconds = config.DefaultSegmentSeconds
	cfg.Pipeline.Parallel = 2
	cfg.Features.URL = "http://features.invalid"
	cfg.Features.TimeoutSec = 5
	cfg.ASR.Provider = config.ProviderOpenAI
	cfg.Audit.Sink = config.SinkLocal
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.MaxUploadMB = 1
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	m := &testMocks{
		ffmpeg:      &mockFFmpegResolver{},
		config:      &mockConfigLoader{cfg: cfg},
		models:      &mockModelLoader{model: fakeModel{p: 0.9}},
		transcriber: &mockTranscriberFactory{transcriber: fakeTranscriber{text: "the boy takes a cookie"}},
		extractor:   &mockExtractorFactory{extractor: fakeExtractor{}},
		cfg:         cfg,
		stdout:      &syncBuffer{},
		stderr:      &syncBuffer{},
		env:         map[string]string{EnvOpenAIAPIKey: "sk-test"},
	}
	env := NewEnv(
		WithStdout(m.stdout),
		WithStderr(m.stderr),
		WithGetenv(func(k string) string { return m.env[k] }),
		WithNow(fixedNow()),
		WithFFmpegResolver(m.ffmpeg),
		WithConfigLoader(m.config),
		WithLoggerFactory(mockLoggerFactory{}),
		WithModelLoader(m.models),
		WithTranscriberFactory(m.transcriber),
		WithExtractorFactory(m.extractor),
	)
	return env, m
}

func testCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	return cmd
}

// writeRecording writes a mono 16-bit, 100 Hz WAV of the given length.
func writeRecording(t *testing.T, dir, name string, seconds int) string {
	t.Helper()
	const rate = 100
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	data := make([]int, seconds*rate)
	for i := range data {
		data[i] = (i % 50) * 100
	}
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("left behind in %s: %s", dir, e.Name())
	}
}
