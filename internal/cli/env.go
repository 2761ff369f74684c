package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alnah/go-speechscreen/internal/apierr"
	"github.com/alnah/go-speechscreen/internal/audio"
	"github.com/alnah/go-speechscreen/internal/audit"
	"github.com/alnah/go-speechscreen/internal/config"
	"github.com/alnah/go-speechscreen/internal/features"
	"github.com/alnah/go-speechscreen/internal/ffmpeg"
	"github.com/alnah/go-speechscreen/internal/logging"
	"github.com/alnah/go-speechscreen/internal/model"
	"github.com/alnah/go-speechscreen/internal/pipeline"
	"github.com/alnah/go-speechscreen/internal/transcribe"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing CLI commands in isolation.
//
// Env must not be nil when passed to command functions. Use DefaultEnv()
// or NewEnv() to create a valid instance.
type Env struct {
	// I/O and environment
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
	Now    func() time.Time

	// Factories for domain objects
	FFmpegResolver     FFmpegResolver
	ConfigLoader       ConfigLoader
	LoggerFactory      LoggerFactory
	ModelLoader        ModelLoader
	SegmenterFactory   SegmenterFactory
	TranscriberFactory TranscriberFactory
	ExtractorFactory   ExtractorFactory
	SinkFactory        SinkFactory
}

// FFmpegResolver resolves the path to the FFmpeg binary.
type FFmpegResolver interface {
	Resolve(ctx context.Context) (string, error)
	CheckVersion(ctx context.Context, ffmpegPath string)
}

// ConfigLoader loads configuration from path (the default location when
// empty) with environment overrides from getenv.
type ConfigLoader interface {
	Load(path string, getenv func(string) string) (*config.Config, error)
}

// LoggerFactory builds the structured logger.
type LoggerFactory interface {
	NewLogger(cfg *config.Config) (*logrus.Logger, error)
}

// LoadedModel is a model bundle ready for scoring.
type LoadedModel interface {
	pipeline.Model
	Version() string
	Summary() model.Summary
}

// ModelLoader loads a model bundle directory.
type ModelLoader interface {
	Load(dir string) (LoadedModel, error)
}

// SegmenterFactory creates the recording segmenter.
type SegmenterFactory interface {
	NewSegmenter(ffmpegPath string, length, maxDuration time.Duration, log logrus.FieldLogger) pipeline.Segmenter
}

// TranscriberFactory creates the speech recognizer selected by cfg.
type TranscriberFactory interface {
	NewTranscriber(cfg *config.Config, apiKey string) (transcribe.Transcriber, error)
}

// ExtractorFactory creates the feature service client.
type ExtractorFactory interface {
	NewExtractor(cfg *config.Config, schema features.Schema) pipeline.Extractor
}

// SinkFactory creates the audit sink selected by cfg.
type SinkFactory interface {
	NewSink(cfg *config.Config, getenv func(string) string) (audit.Sink, error)
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) { e.Stdout = w }
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) { e.Stderr = w }
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) { e.Getenv = fn }
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) { e.Now = fn }
}

// WithFFmpegResolver sets the FFmpeg resolver.
func WithFFmpegResolver(r FFmpegResolver) EnvOption {
	return func(e *Env) { e.FFmpegResolver = r }
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) { e.ConfigLoader = l }
}

// WithLoggerFactory sets the logger factory.
func WithLoggerFactory(f LoggerFactory) EnvOption {
	return func(e *Env) { e.LoggerFactory = f }
}

// WithModelLoader sets the model loader.
func WithModelLoader(l ModelLoader) EnvOption {
	return func(e *Env) { e.ModelLoader = l }
}

// WithSegmenterFactory sets the segmenter factory.
func WithSegmenterFactory(f SegmenterFactory) EnvOption {
	return func(e *Env) { e.SegmenterFactory = f }
}

// WithTranscriberFactory sets the transcriber factory.
func WithTranscriberFactory(f TranscriberFactory) EnvOption {
	return func(e *Env) { e.TranscriberFactory = f }
}

// WithExtractorFactory sets the feature extractor factory.
func WithExtractorFactory(f ExtractorFactory) EnvOption {
	return func(e *Env) { e.ExtractorFactory = f }
}

// WithSinkFactory sets the audit sink factory.
func WithSinkFactory(f SinkFactory) EnvOption {
	return func(e *Env) { e.SinkFactory = f }
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stdout:             os.Stdout,
		Stderr:             os.Stderr,
		Getenv:             os.Getenv,
		Now:                time.Now,
		FFmpegResolver:     &defaultFFmpegResolver{},
		ConfigLoader:       &defaultConfigLoader{},
		LoggerFactory:      &defaultLoggerFactory{},
		ModelLoader:        &defaultModelLoader{},
		SegmenterFactory:   &defaultSegmenterFactory{},
		TranscriberFactory: &defaultTranscriberFactory{},
		ExtractorFactory:   &defaultExtractorFactory{},
		SinkFactory:        &defaultSinkFactory{},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

type defaultFFmpegResolver struct{}

func (defaultFFmpegResolver) Resolve(ctx context.Context) (string, error) {
	return ffmpeg.Resolve(ctx)
}

func (defaultFFmpegResolver) CheckVersion(ctx context.Context, ffmpegPath string) {
	ffmpeg.NewExecutor().CheckVersion(ctx, ffmpegPath)
}

type defaultConfigLoader struct{}

func (defaultConfigLoader) Load(path string, getenv func(string) string) (*config.Config, error) {
	return config.Load(path, getenv)
}

type defaultLoggerFactory struct{}

func (defaultLoggerFactory) NewLogger(cfg *config.Config) (*logrus.Logger, error) {
	return logging.Configure(cfg)
}

type defaultModelLoader struct{}

func (defaultModelLoader) Load(dir string) (LoadedModel, error) {
	reg, err := model.Load(dir)
	if err != nil {
		return nil, err
	}
	return reg, nil
}

type defaultSegmenterFactory struct{}

func (defaultSegmenterFactory) NewSegmenter(ffmpegPath string, length, maxDuration time.Duration, log logrus.FieldLogger) pipeline.Segmenter {
	return audio.NewSegmenter(ffmpegPath,
		audio.WithSegmentLength(length),
		audio.WithMaxDuration(maxDuration),
		audio.WithLogger(log),
	)
}

type defaultTranscriberFactory struct{}

func (defaultTranscriberFactory) NewTranscriber(cfg *config.Config, apiKey string) (transcribe.Transcriber, error) {
	opts := []transcribe.Option{
		transcribe.WithModel(cfg.ASR.Model),
		transcribe.WithRetry(retryPolicy(cfg.ASR.Retries)),
	}
	if cfg.ASR.Provider == config.ProviderHTTP {
		return transcribe.NewHTTPTranscriber(cfg.ASR.URL, opts...), nil
	}
	return transcribe.NewOpenAITranscriber(apiKey, opts...)
}

type defaultExtractorFactory struct{}

func (defaultExtractorFactory) NewExtractor(cfg *config.Config, schema features.Schema) pipeline.Extractor {
	timeout := time.Duration(cfg.Features.TimeoutSec) * time.Second
	return features.NewClient(cfg.Features.URL, schema,
		features.WithTimeout(timeout),
		features.WithRetry(retryPolicy(cfg.Features.Retries)),
	)
}

type defaultSinkFactory struct{}

func (defaultSinkFactory) NewSink(cfg *config.Config, getenv func(string) string) (audit.Sink, error) {
	if cfg.Audit.Sink != config.SinkS3 {
		return audit.NewLocalSink(cfg.Paths.AuditDir), nil
	}
	access, secret := getenv(EnvAWSAccessKeyID), getenv(EnvAWSSecretAccessKey)
	if access == "" || secret == "" {
		return nil, ErrS3CredentialsMissing
	}
	client := audit.NewS3Client(audit.S3Options{
		Region:       cfg.Audit.Region,
		Endpoint:     cfg.Audit.Endpoint,
		AccessKey:    access,
		SecretKey:    secret,
		UsePathStyle: cfg.Audit.Endpoint != "",
	})
	return audit.NewS3Sink(client, cfg.Audit.Bucket, cfg.Audit.Prefix), nil
}

// retryPolicy keeps the default backoff and sets the retry count.
func retryPolicy(retries int) apierr.RetryConfig {
	cfg := apierr.DefaultRetryConfig
	cfg.MaxRetries = retries
	return cfg
}

// Compile-time interface verification.
var (
	_ FFmpegResolver     = (*defaultFFmpegResolver)(nil)
	_ ConfigLoader       = (*defaultConfigLoader)(nil)
	_ LoggerFactory      = (*defaultLoggerFactory)(nil)
	_ ModelLoader        = (*defaultModelLoader)(nil)
	_ SegmenterFactory   = (*defaultSegmenterFactory)(nil)
	_ TranscriberFactory = (*defaultTranscriberFactory)(nil)
	_ ExtractorFactory   = (*defaultExtractorFactory)(nil)
	_ SinkFactory        = (*defaultSinkFactory)(nil)
	_ LoadedModel        = (*model.Registry)(nil)
)
