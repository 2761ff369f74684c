package server

import (
	"context"
	"sync"
	"time"

	"github.com/alnah/go-speechscreen/internal/pipeline"
)

// DefaultRetention is how long finished jobs stay queryable.
const DefaultRetention = time.Hour

// SegmentView is one scored segment in a status response.
type SegmentView struct {
	Index       int     `json:"index"`
	FileName    string  `json:"file_name"`
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
}

// JobView is the JSON status of one classification request.
type JobView struct {
	ID              string           `json:"id"`
	State           pipeline.State   `json:"state"`
	Language        string           `json:"language"`
	FileName        string           `json:"file_name"`
	Outcome         pipeline.Outcome `json:"outcome,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	CancelRequested bool             `json:"cancel_requested,omitempty"`
	Segments        []SegmentView    `json:"segments,omitempty"`
	Skipped         int              `json:"skipped,omitempty"`
	PositiveWeight  float64          `json:"positive_weight,omitempty"`
	NegativeWeight  float64          `json:"negative_weight,omitempty"`
	AuditLocation   string           `json:"audit_location,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type job struct {
	view   JobView
	cancel context.CancelFunc
}

// finished reports whether the job reached Done or Failed, either through
// the observer or through finish.
func (jb *job) finished() bool {
	return jb.view.State.Terminal()
}

// Jobs tracks classification requests by id. Each request owns its entry;
// no state is shared between requests. Safe for concurrent use.
type Jobs struct {
	mu        sync.RWMutex
	jobs      map[string]*job
	retention time.Duration
	now       func() time.Time
}

// NewJobs creates an empty registry. Finished jobs are dropped after
// retention (DefaultRetention when <= 0).
func NewJobs(retention time.Duration) *Jobs {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Jobs{jobs: make(map[string]*job), retention: retention, now: time.Now}
}

// add registers a new job in StateIdle.
func (j *Jobs) add(id, language, fileName string, cancel context.CancelFunc) JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pruneLocked()

	now := j.now()
	v := JobView{
		ID:        id,
		State:     pipeline.StateIdle,
		Language:  language,
		FileName:  fileName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	j.jobs[id] = &job{view: v, cancel: cancel}
	return v
}

// Observe records a state transition. It is passed to the orchestrator as
// its pipeline.Observer.
func (j *Jobs) Observe(id string, s pipeline.State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if jb, ok := j.jobs[id]; ok && !jb.finished() {
		jb.view.State = s
		jb.view.UpdatedAt = j.now()
	}
}

// finish stores the final result of a request.
func (j *Jobs) finish(id string, res *pipeline.Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	jb, ok := j.jobs[id]
	if !ok {
		return
	}
	jb.cancel = nil
	jb.view.UpdatedAt = j.now()
	jb.view.Outcome = pipeline.Classification(res, err)
	if err != nil {
		jb.view.State = pipeline.StateFailed
		jb.view.Reason = pipeline.Reason(err)
		return
	}
	jb.view.State = pipeline.StateDone
	jb.view.Skipped = res.Skipped
	jb.view.PositiveWeight = res.Tally.Positive
	jb.view.NegativeWeight = res.Tally.Negative
	jb.view.AuditLocation = res.AuditLocation
	jb.view.Segments = make([]SegmentView, len(res.Segments))
	for i, s := range res.Segments {
		jb.view.Segments[i] = SegmentView{
			Index:       s.Index,
			FileName:    s.Source,
			Prediction:  int(s.Label),
			Probability: s.Probability,
		}
	}
}

// Get returns a snapshot of one job.
func (j *Jobs) Get(id string) (JobView, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	jb, ok := j.jobs[id]
	if !ok {
		return JobView{}, ErrJobNotFound
	}
	return jb.view, nil
}

// Cancel requests cancellation of a running job. The job still passes
// through Finalizing before it reports Failed.
func (j *Jobs) Cancel(id string) (JobView, error) {
	j.mu.Lock()
	jb, ok := j.jobs[id]
	if !ok {
		j.mu.Unlock()
		return JobView{}, ErrJobNotFound
	}
	if jb.finished() {
		v := jb.view
		j.mu.Unlock()
		return v, ErrJobFinished
	}
	jb.view.CancelRequested = true
	jb.view.UpdatedAt = j.now()
	cancel, v := jb.cancel, jb.view
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return v, nil
}

// cancelAll cancels every running job.
func (j *Jobs) cancelAll() {
	j.mu.Lock()
	var cancels []context.CancelFunc
	for _, jb := range j.jobs {
		if !jb.finished() && jb.cancel != nil {
			jb.view.CancelRequested = true
			cancels = append(cancels, jb.cancel)
		}
	}
	j.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func (j *Jobs) pruneLocked() {
	cutoff := j.now().Add(-j.retention)
	for id, jb := range j.jobs {
		if jb.finished() && jb.view.UpdatedAt.Before(cutoff) {
			delete(j.jobs, id)
		}
	}
}
