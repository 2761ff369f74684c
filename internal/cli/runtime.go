package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alnah/go-speechscreen/internal/config"
	"github.com/alnah/go-speechscreen/internal/pipeline"
	"github.com/alnah/go-speechscreen/internal/transcribe"
)

// setup loads configuration and the logger shared by every command.
func setup(env *Env, configPath string) (*config.Config, *logrus.Logger, error) {
	cfg, err := env.ConfigLoader.Load(configPath, env.Getenv)
	if err != nil {
		return nil, nil, err
	}
	log, err := env.LoggerFactory.NewLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("configure logging: %w", err)
	}
	return cfg, log, nil
}

// loadModel loads the bundle from modelDir, or the configured directory.
func loadModel(env *Env, cfg *config.Config, modelDir string) (LoadedModel, error) {
	if modelDir == "" {
		modelDir = cfg.Paths.ModelDir
	}
	m, err := env.ModelLoader.Load(config.ExpandPath(modelDir))
	if err != nil {
		return nil, fmt.Errorf("load model from %s: %w", modelDir, err)
	}
	return m, nil
}

// newOrchestrator wires every pipeline collaborator from cfg.
// Validation order: model -> API key -> transcriber -> audit sink -> ffmpeg
func newOrchestrator(ctx context.Context, env *Env, cfg *config.Config, log *logrus.Logger, m LoadedModel, observer pipeline.Observer) (*pipeline.Orchestrator, error) {
	var apiKey string
	if cfg.ASR.Provider == config.ProviderOpenAI {
		apiKey = env.Getenv(EnvOpenAIAPIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("%w (set it with: export %s=sk-...)", transcribe.ErrAPIKeyMissing, EnvOpenAIAPIKey)
		}
	}
	tr, err := env.TranscriberFactory.NewTranscriber(cfg, apiKey)
	if err != nil {
		return nil, err
	}
	sink, err := env.SinkFactory.NewSink(cfg, env.Getenv)
	if err != nil {
		return nil, err
	}

	// Without ffmpeg only PCM WAV input decodes; everything else fails per request.
	ffmpegPath, err := env.FFmpegResolver.Resolve(ctx)
	if err != nil {
		fmt.Fprintln(env.Stderr, "Warning: ffmpeg not found, only PCM WAV recordings can be decoded")
		log.WithError(err).Warn("ffmpeg unavailable")
		ffmpegPath = ""
	} else {
		env.FFmpegResolver.CheckVersion(ctx, ffmpegPath)
	}

	length := time.Duration(cfg.Pipeline.SegmentSeconds) * time.Second
	maxDuration := time.Duration(cfg.Pipeline.MaxMinutes) * time.Minute
	seg := env.SegmenterFactory.NewSegmenter(ffmpegPath, length, maxDuration, log)
	fx := env.ExtractorFactory.NewExtractor(cfg, m.Schema())

	opts := []pipeline.Option{
		pipeline.WithWorkRoot(cfg.Paths.WorkRoot),
		pipeline.WithParallel(cfg.Pipeline.Parallel),
		pipeline.WithThreshold(cfg.Pipeline.Threshold),
		pipeline.WithLogger(log),
	}
	if observer != nil {
		opts = append(opts, pipeline.WithObserver(observer))
	}
	return pipeline.New(seg, tr, fx, m, sink, opts...)
}

var progressMessages = map[pipeline.State]string{
	pipeline.StateSegmenting:  "Segmenting recording...",
	pipeline.StateExtracting:  "Extracting features...",
	pipeline.StateScoring:     "Scoring segments...",
	pipeline.StateAggregating: "Aggregating votes...",
	pipeline.StateFinalizing:  "Cleaning up...",
}

// progressObserver prints one line per stage for an interactive run.
func progressObserver(w io.Writer) pipeline.Observer {
	return func(_ string, s pipeline.State) {
		if msg, ok := progressMessages[s]; ok {
			fmt.Fprintln(w, msg)
		}
	}
}
