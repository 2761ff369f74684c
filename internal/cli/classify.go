package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alnah/go-speechscreen/internal/format"
	"github.com/alnah/go-speechscreen/internal/lang"
	"github.com/alnah/go-speechscreen/internal/pipeline"
)

type classifyOptions struct {
	language   string
	configPath string
	modelDir   string
	jsonOut    bool
}

// ClassifyCmd creates the classify command.
// The env parameter provides injectable dependencies for testing.
func ClassifyCmd(env *Env) *cobra.Command {
	var opts classifyOptions

	cmd := &cobra.Command{
		Use:   "classify <recording>",
		Short: "Classify a speech recording as AD or HC",
		Long: `Classify a speech recording as Alzheimer's-indicative (AD) or healthy control (HC).

The recording is split into 20 second segments. Each segment is transcribed,
turned into acoustic and linguistic features, and scored by the model bundle.
Segment votes are weighted by confidence to produce the verdict.

Every scored segment is appended to the audit trail before the verdict is
printed. Press Ctrl+C to cancel; temporary files are always removed.

Supported languages: ar, de, el, en, es, zh`,
		Example: `  speechscreen classify interview.wav -l en
  speechscreen classify sample.mp3 -l zh --json
  speechscreen classify visit.m4a -l de --model-dir ./model/2024.06`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, env, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Recording language (ar, de, el, en, es, zh)")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: $XDG_CONFIG_HOME/speechscreen/config.toml)")
	cmd.Flags().StringVar(&opts.modelDir, "model-dir", "", "Model bundle directory (default: paths.model_dir)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("language")

	return cmd
}

// runClassify executes one classification.
// Validation order: file exists -> language -> config -> model -> pipeline wiring
func runClassify(cmd *cobra.Command, env *Env, inputPath string, opts classifyOptions) error {
	ctx := cmd.Context()

	// === VALIDATION (fail-fast) ===

	info, err := os.Stat(inputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, inputPath)
		}
		return fmt.Errorf("cannot access input file: %w", err)
	}
	code, err := lang.Validate(opts.language)
	if err != nil {
		return err
	}

	// === SETUP ===

	cfg, log, err := setup(env, opts.configPath)
	if err != nil {
		return err
	}
	m, err := loadModel(env, cfg, opts.modelDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Stderr, "Model %s loaded\n", m.Version())

	orch, err := newOrchestrator(ctx, env, cfg, log, m, progressObserver(env.Stderr))
	if err != nil {
		return err
	}

	// === CLASSIFICATION ===

	f, err := os.Open(inputPath) // #nosec G304 -- user-specified recording
	if err != nil {
		return fmt.Errorf("cannot open input file: %w", err)
	}
	defer func() { _ = f.Close() }()

	length := time.Duration(cfg.Pipeline.SegmentSeconds) * time.Second
	fmt.Fprintf(env.Stderr, "Classifying %s (%s, %s segments)\n", filepath.Base(inputPath), format.Size(info.Size()), format.Clock(length))

	start := env.Now()
	res, err := orch.Classify(ctx, pipeline.Request{
		Audio:    f,
		Filename: filepath.Base(inputPath),
		Language: code,
	})
	if err != nil {
		fmt.Fprintf(env.Stderr, "Result: %s (%s)\n", pipeline.OutcomeUnclassified, pipeline.Reason(err))
		return err
	}
	fmt.Fprintf(env.Stderr, "Done in %s\n", format.Elapsed(env.Now().Sub(start)))

	if opts.jsonOut {
		return writeResultJSON(env.Stdout, res)
	}
	return writeResultText(env.Stdout, res)
}

type segmentOutput struct {
	FileName    string  `json:"file_name"`
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
}

type resultOutput struct {
	RequestID      string           `json:"request_id"`
	Outcome        pipeline.Outcome `json:"outcome"`
	PositiveWeight float64          `json:"positive_weight"`
	NegativeWeight float64          `json:"negative_weight"`
	Segments       []segmentOutput  `json:"segments"`
	Skipped        int              `json:"skipped"`
	AuditLocation  string           `json:"audit_location"`
}

func writeResultJSON(w io.Writer, res *pipeline.Result) error {
	out := resultOutput{
		RequestID:      res.RequestID,
		Outcome:        res.Outcome,
		PositiveWeight: res.Tally.Positive,
		NegativeWeight: res.Tally.Negative,
		Segments:       make([]segmentOutput, len(res.Segments)),
		Skipped:        res.Skipped,
		AuditLocation:  res.AuditLocation,
	}
	for i, s := range res.Segments {
		out.Segments[i] = segmentOutput{FileName: s.Source, Prediction: int(s.Label), Probability: s.Probability}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeResultText(w io.Writer, res *pipeline.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEGMENT\tLABEL\tP(AD)")
	for _, s := range res.Segments {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\n", s.Source, s.Label, s.Probability)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nResult: %s\nVotes: AD %.3f, HC %.3f (%d scored, %d skipped)\nAudit: %s\n",
		res.Outcome, res.Tally.Positive, res.Tally.Negative, len(res.Segments), res.Skipped, res.AuditLocation)
	return err
}
