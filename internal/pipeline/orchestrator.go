// Package pipeline runs one recording through segmentation, feature
// extraction, scoring and voting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-speechscreen/internal/audio"
	"github.com/alnah/go-speechscreen/internal/audit"
	"github.com/alnah/go-speechscreen/internal/features"
	"github.com/alnah/go-speechscreen/internal/lang"
	"github.com/alnah/go-speechscreen/internal/transcribe"
	"github.com/alnah/go-speechscreen/internal/vote"
)

// DefaultParallel bounds concurrent per-segment work.
const DefaultParallel = 4

// Segmenter splits a recording into fixed-length segments.
type Segmenter interface {
	Segment(ctx context.Context, recordingPath, outDir string) ([]audio.Segment, error)
}

// Extractor provides both feature families. *features.Client satisfies it.
type Extractor interface {
	features.AcousticExtractor
	features.LinguisticExtractor
}

// Model imputes and scores feature vectors. *model.Registry satisfies it.
type Model interface {
	Schema() features.Schema
	Impute(v features.Vector) features.Vector
	Score(v features.Vector) (float64, error)
}

// Observer receives every state transition of every request.
type Observer func(requestID string, state State)

// Request is one recording to classify.
type Request struct {
	ID       string    // optional UUID; one is generated when empty
	Audio    io.Reader // consumed once into the work directory
	Filename string    // original name, used for segment and audit names
	Language string
}

// Result is a successful classification.
type Result struct {
	RequestID     string
	Outcome       Outcome
	Label         vote.Label
	Tally         vote.Tally
	Segments      []vote.ScoredSegment // ordered by Index
	Skipped       int
	AuditLocation string
}

// Orchestrator drives requests through the state machine. It holds no
// per-request state and is safe for concurrent use.
type Orchestrator struct {
	segmenter   Segmenter
	transcriber transcribe.Transcriber
	extractor   Extractor
	model       Model
	sink        audit.Sink

	workRoot  string
	parallel  int
	threshold float64
	observer  Observer
	log       logrus.FieldLogger
	newID     func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkRoot sets the directory under which per-request work directories
// are created.
func WithWorkRoot(dir string) Option {
	return func(o *Orchestrator) {
		if dir != "" {
			o.workRoot = dir
		}
	}
}

// WithParallel bounds concurrent segment processing.
func WithParallel(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.parallel = n
		}
	}
}

// WithThreshold sets the probability at which a segment votes AD.
func WithThreshold(t float64) Option {
	return func(o *Orchestrator) {
		if t > 0 && t <= 1 {
			o.threshold = t
		}
	}
}

// WithObserver registers a transition callback. It is called synchronously.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithIDGenerator replaces UUID generation (for testing). Generated IDs are
// used as directory names without validation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// New creates an Orchestrator. All collaborators are required.
func New(seg Segmenter, tr transcribe.Transcriber, fx Extractor, m Model, sink audit.Sink, opts ...Option) (*Orchestrator, error) {
	if seg == nil || tr == nil || fx == nil || m == nil || sink == nil {
		return nil, errors.New("pipeline: segmenter, transcriber, extractor, model and audit sink are required")
	}
	o := &Orchestrator{
		segmenter:   seg,
		transcriber: tr,
		extractor:   fx,
		model:       m,
		sink:        sink,
		workRoot:    filepath.Join(os.TempDir(), "speechscreen"),
		parallel:    DefaultParallel,
		threshold:   vote.DefaultThreshold,
		observer:    func(string, State) {},
		log:         logrus.StandardLogger(),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// NewRequestID returns a fresh request identifier.
func (o *Orchestrator) NewRequestID() string {
	return o.newID()
}

// requestID returns a generated ID when raw is empty, otherwise raw in
// canonical UUID form. Other IDs never reach the file system.
func (o *Orchestrator) requestID(raw string) (string, error) {
	if raw == "" {
		return o.newID(), nil
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidRequestID, raw)
	}
	return parsed.String(), nil
}

// run is the mutable state of one Classify call.
type run struct {
	id      string
	state   State
	workDir string
	log     logrus.FieldLogger
	notify  Observer
}

func (r *run) to(s State) {
	r.log.WithFields(logrus.Fields{"from": r.state.String(), "to": s.String()}).Debug("state")
	r.state = s
	r.notify(r.id, s)
}

// Classify runs req to completion. On success it returns the verdict; on
// failure it returns the error and the caller should report
// OutcomeUnclassified. Cancellation through ctx returns context.Canceled.
// The work directory is removed on every path.
func (o *Orchestrator) Classify(ctx context.Context, req Request) (res *Result, err error) {
	id, idErr := o.requestID(req.ID)
	if idErr != nil {
		id = req.ID
	}
	r := &run{
		id:     id,
		state:  StateIdle,
		log:    o.log.WithField("request_id", id),
		notify: o.observer,
	}
	o.observer(id, StateIdle)
	started := time.Now()

	// Nothing has touched the file system yet; Finalizing has nothing to remove.
	reject := func(err error) (*Result, error) {
		r.log.WithError(err).Warn("request rejected")
		r.to(StateFinalizing)
		r.to(StateFailed)
		return nil, err
	}
	if idErr != nil {
		return reject(idErr)
	}
	code, err := lang.Validate(req.Language)
	if err != nil {
		return reject(err)
	}
	if req.Audio == nil {
		return reject(ErrNoAudio)
	}

	r.workDir = filepath.Join(o.workRoot, id)
	defer func() {
		r.to(StateFinalizing)
		if rmErr := os.RemoveAll(r.workDir); rmErr != nil {
			r.log.WithError(rmErr).Warn("work directory cleanup failed")
		}
		if err != nil {
			if ctx.Err() != nil && isCanceled(err) {
				err = ctx.Err()
			}
			r.log.WithError(err).WithField("elapsed", time.Since(started).String()).Warn("classification failed")
			r.to(StateFailed)
			return
		}
		r.log.WithFields(logrus.Fields{
			"outcome":  string(res.Outcome),
			"segments": len(res.Segments),
			"skipped":  res.Skipped,
			"elapsed":  time.Since(started).String(),
		}).Info("classification done")
		r.to(StateDone)
	}()

	if err := os.MkdirAll(r.workDir, 0o750); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}

	r.to(StateSegmenting)
	segments, err := o.segment(ctx, r, req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.to(StateExtracting)
	extracted, err := o.extract(ctx, r, segments, code)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.to(StateScoring)
	scored, skipped, err := o.score(r, extracted)
	if err != nil {
		return nil, err
	}
	location, err := o.sink.Write(ctx, id, auditRows(scored))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.to(StateAggregating)
	label, tally, err := vote.Aggregate(scored)
	if err != nil {
		return nil, err
	}

	return &Result{
		RequestID:     id,
		Outcome:       outcomeOf(label),
		Label:         label,
		Tally:         tally,
		Segments:      scored,
		Skipped:       skipped,
		AuditLocation: location,
	}, nil
}

// segment stores the upload in the work directory and splits it.
func (o *Orchestrator) segment(ctx context.Context, r *run, req Request) ([]audio.Segment, error) {
	name := uploadName(req.Filename)
	uploadDir := filepath.Join(r.workDir, "upload")
	if err := os.MkdirAll(uploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	path := filepath.Join(uploadDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640) // #nosec G304 -- sanitized name in the work dir
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	n, copyErr := io.Copy(f, req.Audio)
	closeErr := f.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("store upload: %w", copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("store upload: %w", closeErr)
	}
	r.log.WithFields(logrus.Fields{"file": name, "bytes": n}).Info("upload stored")

	segments, err := o.segmenter.Segment(ctx, path, filepath.Join(r.workDir, "segments"))
	if err != nil {
		return nil, err
	}
	r.log.WithField("segments", len(segments)).Info("recording segmented")
	return segments, nil
}

func uploadName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	switch {
	case name == "." || name == ".." || name == "/":
		return "recording"
	case strings.HasPrefix(name, "."):
		return "recording" + name
	}
	return name
}

// extracted holds the feature vectors of one segment.
type extracted struct {
	segment    audio.Segment
	acoustic   features.Vector
	linguistic features.Vector
}

// extract processes segments in parallel, bounded by o.parallel.
// Segment-local failures become NaN vectors; cancellation and schema drift
// abort the request.
func (o *Orchestrator) extract(ctx context.Context, r *run, segments []audio.Segment, code string) ([]extracted, error) {
	schema := o.model.Schema()
	results := make([]extracted, len(segments))
	sem := make(chan struct{}, o.parallel)

	g, ctx := errgroup.WithContext(ctx)
	for i, seg := range segments {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				return err
			}
			log := r.log.WithField("segment", seg.Name())

			acoustic, err := o.extractor.ExtractAcoustic(ctx, seg.Path)
			if err != nil {
				if aborts(err) {
					return err
				}
				log.WithError(err).Warn("acoustic features unavailable")
				acoustic = schema.Acoustic.NaNFilled()
			}

			text, err := o.transcriber.Transcribe(ctx, seg.Path, code)
			if err != nil {
				if isCanceled(err) {
					return err
				}
				log.WithError(err).Warn("transcription unavailable")
				text = ""
			}

			linguistic := schema.Linguistic.NaNFilled()
			if strings.TrimSpace(text) != "" {
				v, err := o.extractor.ExtractLinguistic(ctx, text, code)
				switch {
				case err == nil:
					linguistic = v
				case aborts(err):
					return err
				default:
					log.WithError(err).Warn("linguistic features unavailable")
				}
			}

			results[i] = extracted{segment: seg, acoustic: acoustic, linguistic: linguistic}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// score imputes and scores each usable segment, in Index order.
func (o *Orchestrator) score(r *run, items []extracted) ([]vote.ScoredSegment, int, error) {
	schema := o.model.Schema()
	scored := make([]vote.ScoredSegment, 0, len(items))
	skipped := 0

	for _, it := range items {
		if it.acoustic.AllNaN() && it.linguistic.AllNaN() {
			skipped++
			r.log.WithField("segment", it.segment.Name()).Warn("segment skipped: no features")
			continue
		}
		merged := schema.Complete(features.Merge(it.acoustic, it.linguistic))
		if missing := merged.Missing(); len(missing) > 0 {
			r.log.WithFields(logrus.Fields{
				"segment": it.segment.Name(),
				"imputed": strings.Join(missing, ","),
			}).Debug("imputing missing features")
		}
		v := o.model.Impute(merged)
		p, err := o.model.Score(v)
		if err != nil {
			return nil, 0, fmt.Errorf("score %s: %w", it.segment.Name(), err)
		}
		scored = append(scored, vote.ScoredSegment{
			Index:       it.segment.Index,
			Source:      it.segment.Name(),
			Label:       vote.Binarize(p, o.threshold),
			Probability: p,
		})
	}

	if len(scored) == 0 {
		return nil, skipped, fmt.Errorf("%d segments, all without features: %w", len(items), ErrNoUsableSegments)
	}
	slices.SortFunc(scored, func(a, b vote.ScoredSegment) int { return a.Index - b.Index })
	return scored, skipped, nil
}

func auditRows(scored []vote.ScoredSegment) []audit.Row {
	rows := make([]audit.Row, len(scored))
	for i, s := range scored {
		rows[i] = audit.Row{FileName: s.Source, Prediction: int(s.Label), Probability: s.Probability}
	}
	return rows
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// aborts reports whether a feature error ends the whole request rather
// than one segment.
func aborts(err error) bool {
	return isCanceled(err) || errors.Is(err, features.ErrSchemaDrift)
}
