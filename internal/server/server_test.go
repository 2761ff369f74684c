package server_test

// Notes:
// - Requests go through Server.Handler() with httptest recorders.
// - fakeClassifier blocks until released or canceled and reports states
//   through the same Jobs.Observe hook the orchestrator uses.
// - Background jobs are awaited by polling the status endpoint.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alnah/go-speechscreen/internal/pipeline"
	"github.com/alnah/go-speechscreen/internal/server"
	"github.com/alnah/go-speechscreen/internal/vote"
)

// ---------------------------------------------------------------------------
// Fakes and helpers
// ---------------------------------------------------------------------------

type fakeClassifier struct {
	jobs    *server.Jobs
	release chan struct{}
	n       atomic.Int32

	mu     sync.Mutex
	bodies map[string]string
	names  map[string]string
}

func newFakeClassifier(jobs *server.Jobs) *fakeClassifier {
	return &fakeClassifier{
		jobs:    jobs,
		release: make(chan struct{}),
		bodies:  map[string]string{},
		names:   map[string]string{},
	}
}

func (f *fakeClassifier) NewRequestID() string {
	return fmt.Sprintf("job-%d", f.n.Add(1))
}

func (f *fakeClassifier) Classify(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	data, _ := io.ReadAll(req.Audio)
	f.mu.Lock()
	f.bodies[req.ID] = string(data)
	f.names[req.ID] = req.Filename
	f.mu.Unlock()

	f.jobs.Observe(req.ID, pipeline.StateSegmenting)
	select {
	case <-f.release:
	case <-ctx.Done():
		f.jobs.Observe(req.ID, pipeline.StateFinalizing)
		f.jobs.Observe(req.ID, pipeline.StateFailed)
		return nil, ctx.Err()
	}
	f.jobs.Observe(req.ID, pipeline.StateFinalizing)
	f.jobs.Observe(req.ID, pipeline.StateDone)
	return &pipeline.Result{
		RequestID: req.ID,
		Outcome:   pipeline.OutcomeAD,
		Label:     vote.AD,
		Tally:     vote.Tally{Positive: 0.9, Negative: 0.4},
		Segments: []vote.ScoredSegment{
			{Index: 0, Source: "a_segment1.wav", Label: vote.AD, Probability: 0.9},
			{Index: 1, Source: "a_segment2.wav", Label: vote.HC, Probability: 0.4},
		},
		AuditLocation: "/audit/predictions-" + req.ID + ".csv",
	}, nil
}

func (f *fakeClassifier) body(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[id]
}

func (f *fakeClassifier) name(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.names[id]
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newServer(t *testing.T, opts ...server.Option) (*server.Server, *fakeClassifier, string) {
	t.Helper()
	jobs := server.NewJobs(0)
	fc := newFakeClassifier(jobs)
	spool := t.TempDir()
	opts = append([]server.Option{server.WithLogger(quietLogger()), server.WithSpoolDir(spool)}, opts...)
	srv := server.New(fc, jobs, opts...)
	t.Cleanup(srv.Shutdown)
	return srv, fc, spool
}

func uploadRequest(t *testing.T, fields map[string]string, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/classifications", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func do(srv *server.Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// jobView mirrors server.JobView with the state as its JSON name.
type jobView struct {
	ID              string  `json:"id"`
	State           string  `json:"state"`
	Language        string  `json:"language"`
	FileName        string  `json:"file_name"`
	Outcome         string  `json:"outcome"`
	Reason          string  `json:"reason"`
	CancelRequested bool    `json:"cancel_requested"`
	PositiveWeight  float64 `json:"positive_weight"`
	AuditLocation   string  `json:"audit_location"`
	Segments        []struct {
		FileName    string  `json:"file_name"`
		Prediction  int     `json:"prediction"`
		Probability float64 `json:"probability"`
	} `json:"segments"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func submit(t *testing.T, srv *server.Server, lang string, content string) jobView {
	t.Helper()
	rec := do(srv, uploadRequest(t, map[string]string{"language": lang}, "interview.wav", []byte(content)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[jobView](t, rec)
}

// waitFor polls the status endpoint until the job reaches state.
func waitFor(t *testing.T, srv *server.Server, id, state string) jobView {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := do(srv, httptest.NewRequest(http.MethodGet, "/v1/classifications/"+id, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status code = %d", rec.Code)
		}
		v := decode[jobView](t, rec)
		if v.State == state {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %q, want %q", id, v.State, state)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ---------------------------------------------------------------------------
// Upload and status
// ---------------------------------------------------------------------------

func TestUpload_RunsToCompletion(t *testing.T) {
	t.Parallel()
	srv, fc, spool := newServer(t)

	rec := do(srv, uploadRequest(t, map[string]string{"language": "EN"}, "interview.wav", []byte("RIFF-bytes")))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decode[jobView](t, rec)
	if created.ID != "job-1" || created.State != "idle" || created.Language != "en" {
		t.Errorf("created = %+v", created)
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/classifications/job-1" {
		t.Errorf("Location = %q", loc)
	}

	waitFor(t, srv, "job-1", "segmenting")
	close(fc.release)
	done := waitFor(t, srv, "job-1", "done")

	if done.Outcome != "AD" || len(done.Segments) != 2 || done.PositiveWeight != 0.9 {
		t.Errorf("done = %+v", done)
	}
	if done.Segments[0].FileName != "a_segment1.wav" || done.Segments[1].Prediction != 0 {
		t.Errorf("segments = %+v", done.Segments)
	}
	if fc.body("job-1") != "RIFF-bytes" {
		t.Errorf("classifier saw %q", fc.body("job-1"))
	}
	if fc.name("job-1") != "interview.wav" {
		t.Errorf("filename = %q", fc.name("job-1"))
	}

	srv.Shutdown()
	entries, _ := os.ReadDir(spool)
	if len(entries) != 0 {
		t.Errorf("spooled uploads left behind: %d", len(entries))
	}
}

func TestUpload_JobsAreIndependent(t *testing.T) {
	t.Parallel()
	srv, fc, _ := newServer(t)

	a := submit(t, srv, "de", "first")
	b := submit(t, srv, "es", "second")
	waitFor(t, srv, a.ID, "segmenting")
	waitFor(t, srv, b.ID, "segmenting")

	if rec := do(srv, httptest.NewRequest(http.MethodPost, "/v1/classifications/"+a.ID+"/cancel", nil)); rec.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	waitFor(t, srv, a.ID, "failed")

	close(fc.release)
	got := waitFor(t, srv, b.ID, "done")
	if got.Outcome != "AD" {
		t.Errorf("other job affected by cancel: %+v", got)
	}
	if fc.body(a.ID) != "first" || fc.body(b.ID) != "second" {
		t.Errorf("uploads crossed: %q %q", fc.body(a.ID), fc.body(b.ID))
	}
}

func TestUpload_Rejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fields   map[string]string
		file     string
		wantCode int
		wantBody string
	}{
		{name: "unsupported language", fields: map[string]string{"language": "fr"}, file: "a.wav", wantCode: http.StatusBadRequest, wantBody: "unsupported"},
		{name: "missing language", fields: nil, file: "a.wav", wantCode: http.StatusBadRequest, wantBody: "supported"},
		{name: "missing file", fields: map[string]string{"language": "en"}, wantCode: http.StatusBadRequest, wantBody: `"file"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, fc, _ := newServer(t)
			rec := do(srv, uploadRequest(t, tt.fields, tt.file, []byte("x")))
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(strings.ToLower(rec.Body.String()), tt.wantBody) {
				t.Errorf("body = %s, want it to mention %s", rec.Body.String(), tt.wantBody)
			}
			if fc.n.Load() != 0 {
				t.Error("rejected upload reached the classifier")
			}
		})
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	t.Parallel()
	srv, _, _ := newServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/classifications", strings.NewReader(`{"language":"en"}`))
	req.Header.Set("Content-Type", "application/json")
	if rec := do(srv, req); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpload_TooLarge(t *testing.T) {
	t.Parallel()
	srv, fc, _ := newServer(t, server.WithMaxUpload(1024))
	rec := do(srv, uploadRequest(t, map[string]string{"language": "en"}, "big.wav", bytes.Repeat([]byte("a"), 8<<10)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "upload exceeds 1 KB") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if fc.n.Load() != 0 {
		t.Error("oversized upload reached the classifier")
	}
}

func TestStatus_Unknown(t *testing.T) {
	t.Parallel()
	srv, _, _ := newServer(t)
	rec := do(srv, httptest.NewRequest(http.MethodGet, "/v1/classifications/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Cancel
// ---------------------------------------------------------------------------

func TestCancel_RunningJob(t *testing.T) {
	t.Parallel()
	srv, _, _ := newServer(t)
	job := submit(t, srv, "zh", "audio")
	waitFor(t, srv, job.ID, "segmenting")

	rec := do(srv, httptest.NewRequest(http.MethodPost, "/v1/classifications/"+job.ID+"/cancel", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	if v := decode[jobView](t, rec); !v.CancelRequested {
		t.Errorf("cancel response = %+v", v)
	}

	failed := waitFor(t, srv, job.ID, "failed")
	if failed.Outcome != string(pipeline.OutcomeUnclassified) || failed.Reason != "canceled" {
		t.Errorf("failed = %+v", failed)
	}
}

func TestCancel_Errors(t *testing.T) {
	t.Parallel()
	srv, fc, _ := newServer(t)
	job := submit(t, srv, "el", "audio")
	close(fc.release)
	waitFor(t, srv, job.ID, "done")

	if rec := do(srv, httptest.NewRequest(http.MethodPost, "/v1/classifications/"+job.ID+"/cancel", nil)); rec.Code != http.StatusConflict {
		t.Errorf("cancel finished: status = %d, want 409", rec.Code)
	}
	if rec := do(srv, httptest.NewRequest(http.MethodPost, "/v1/classifications/ghost/cancel", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("cancel unknown: status = %d, want 404", rec.Code)
	}
}

func TestShutdown_CancelsRunningJobs(t *testing.T) {
	t.Parallel()
	srv, _, _ := newServer(t)
	job := submit(t, srv, "ar", "audio")
	waitFor(t, srv, job.ID, "segmenting")

	srv.Shutdown()
	rec := do(srv, httptest.NewRequest(http.MethodGet, "/v1/classifications/"+job.ID, nil))
	if v := decode[jobView](t, rec); v.State != "failed" || v.Reason != "canceled" {
		t.Errorf("after shutdown = %+v", v)
	}
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	srv, _, _ := newServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skip("no loopback listener:", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 100; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return")
	}
}

// ---------------------------------------------------------------------------
// Info endpoints
// ---------------------------------------------------------------------------

func TestLanguages(t *testing.T) {
	t.Parallel()
	srv, _, _ := newServer(t)
	rec := do(srv, httptest.NewRequest(http.MethodGet, "/v1/languages", nil))
	body := decode[struct {
		Languages []struct{ Code, Name string } `json:"languages"`
	}](t, rec)

	var codes []string
	for _, l := range body.Languages {
		codes = append(codes, l.Code)
		if l.Name == "" {
			t.Errorf("language %s has no name", l.Code)
		}
	}
	if got := strings.Join(codes, ","); got != "ar,de,el,en,es,zh" {
		t.Errorf("codes = %s", got)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv, _, _ := newServer(t, server.WithModelVersion("2024.06"))
	rec := do(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	body := decode[map[string]string](t, rec)
	if rec.Code != http.StatusOK || body["status"] != "ok" || body["model_version"] != "2024.06" {
		t.Errorf("healthz = %d %v", rec.Code, body)
	}
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

func TestJobs_FinishedJobsExpire(t *testing.T) {
	t.Parallel()
	jobs := server.NewJobs(time.Minute)
	now := time.Unix(0, 0)
	jobs.SetNow(func() time.Time { return now })

	jobs.Add("old", "en", "a.wav", func() {})
	jobs.Finish("old", nil, errors.New("boom"))
	jobs.Add("running", "en", "b.wav", func() {})

	now = now.Add(2 * time.Minute)
	jobs.Add("new", "en", "c.wav", func() {})

	if _, err := jobs.Get("old"); !errors.Is(err, server.ErrJobNotFound) {
		t.Errorf("finished job not pruned: %v", err)
	}
	if _, err := jobs.Get("running"); err != nil {
		t.Errorf("running job pruned: %v", err)
	}
}

func TestJobs_FinishMapsFailure(t *testing.T) {
	t.Parallel()
	jobs := server.NewJobs(0)
	jobs.Add("x", "en", "a.wav", func() {})
	jobs.Finish("x", nil, pipeline.ErrNoUsableSegments)

	v, err := jobs.Get("x")
	if err != nil {
		t.Fatal(err)
	}
	if v.State != pipeline.StateFailed || v.Outcome != pipeline.OutcomeUnclassified || v.Reason != "no usable speech found" {
		t.Errorf("view = %+v", v)
	}
	jobs.Observe("x", pipeline.StateScoring)
	if v, _ := jobs.Get("x"); v.State != pipeline.StateFailed {
		t.Errorf("late transition applied to finished job: %v", v.State)
	}
}

func TestJobs_TerminalStateFromObserver(t *testing.T) {
	t.Parallel()
	jobs := server.NewJobs(0)
	var canceled atomic.Bool
	jobs.Add("x", "en", "a.wav", func() { canceled.Store(true) })

	jobs.Observe("x", pipeline.StateFinalizing)
	jobs.Observe("x", pipeline.StateFailed)
	if _, err := jobs.Cancel("x"); !errors.Is(err, server.ErrJobFinished) {
		t.Errorf("Cancel() error = %v, want ErrJobFinished", err)
	}
	if canceled.Load() {
		t.Error("cancel func called for a failed job")
	}
	jobs.Observe("x", pipeline.StateScoring)
	if v, _ := jobs.Get("x"); v.State != pipeline.StateFailed {
		t.Errorf("state = %v, want failed", v.State)
	}
}
