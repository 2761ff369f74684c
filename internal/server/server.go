// Package server exposes classification over HTTP: upload a recording,
// poll its status, cancel it.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/alnah/go-speechscreen/internal/format"
	"github.com/alnah/go-speechscreen/internal/lang"
	"github.com/alnah/go-speechscreen/internal/pipeline"
)

// DefaultMaxUpload bounds the multipart request size.
const DefaultMaxUpload int64 = 64 << 20

const shutdownTimeout = 10 * time.Second

// Classifier runs one request. *pipeline.Orchestrator satisfies it.
type Classifier interface {
	Classify(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	NewRequestID() string
}

// Server is the HTTP front end. Uploads are spooled to disk and classified
// in the background, one goroutine per request.
type Server struct {
	engine       *gin.Engine
	classifier   Classifier
	jobs         *Jobs
	log          logrus.FieldLogger
	spoolDir     string
	maxUpload    int64
	modelVersion string

	base    context.Context
	stopAll context.CancelFunc
	running sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSpoolDir sets where uploads wait until their request starts.
func WithSpoolDir(dir string) Option {
	return func(s *Server) {
		if dir != "" {
			s.spoolDir = dir
		}
	}
}

// WithMaxUpload sets the request body limit in bytes.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithModelVersion reports the loaded model bundle on /healthz.
func WithModelVersion(v string) Option {
	return func(s *Server) { s.modelVersion = v }
}

// New creates a Server. jobs must be the registry whose Observe method the
// classifier reports transitions to.
func New(classifier Classifier, jobs *Jobs, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	base, stop := context.WithCancel(context.Background())

	s := &Server{
		engine:     gin.New(),
		classifier: classifier,
		jobs:       jobs,
		log:        logrus.StandardLogger(),
		spoolDir:   filepath.Join(os.TempDir(), "speechscreen-uploads"),
		maxUpload:  DefaultMaxUpload,
		base:       base,
		stopAll:    stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine.MaxMultipartMemory = 8 << 20
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)
	v1 := s.engine.Group("/v1")
	v1.GET("/languages", s.languages)
	v1.POST("/classifications", s.create)
	v1.GET("/classifications/:id", s.status)
	v1.POST("/classifications/:id/cancel", s.cancel)
}

// Handler returns the HTTP handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is canceled, then stops accepting requests,
// cancels running classifications and waits for their cleanup.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.Shutdown()
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Shutdown()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Shutdown cancels every running classification and waits for them to
// finish cleaning up.
func (s *Server) Shutdown() {
	s.stopAll()
	s.jobs.cancelAll()
	s.running.Wait()
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"model_version": s.modelVersion,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

type languageView struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (s *Server) languages(c *gin.Context) {
	codes := lang.Supported()
	out := make([]languageView, len(codes))
	for i, code := range codes {
		out[i] = languageView{Code: code, Name: lang.DisplayName(code)}
	}
	c.JSON(http.StatusOK, gin.H{"languages": out})
}

func (s *Server) create(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	if err := c.Request.ParseMultipartForm(s.engine.MaxMultipartMemory); err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds " + format.Size(s.maxUpload)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected multipart/form-data"})
		return
	}

	code, err := lang.Validate(c.PostForm("language"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "supported": lang.Supported()})
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": `multipart field "file" is required`})
		return
	}

	spooled, err := s.spool(header)
	if err != nil {
		s.log.WithError(err).Error("spool upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store upload"})
		return
	}

	id := s.classifier.NewRequestID()
	ctx, cancel := context.WithCancel(s.base)
	view := s.jobs.add(id, code, header.Filename, cancel)
	s.running.Add(1)
	go s.run(ctx, cancel, id, code, header.Filename, spooled)

	c.Header("Location", "/v1/classifications/"+id)
	c.JSON(http.StatusAccepted, view)
}

func (s *Server) status(c *gin.Context) {
	view, err := s.jobs.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) cancel(c *gin.Context) {
	view, err := s.jobs.Cancel(c.Param("id"))
	switch {
	case errors.Is(err, ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrJobFinished):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": view.State})
	default:
		c.JSON(http.StatusAccepted, view)
	}
}

// ---------------------------------------------------------------------------
// Background work
// ---------------------------------------------------------------------------

// spool copies the upload out of the request so it survives the handler.
func (s *Server) spool(header *multipart.FileHeader) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(s.spoolDir, 0o750); err != nil {
		return "", err
	}
	dst, err := os.CreateTemp(s.spoolDir, "upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func (s *Server) run(ctx context.Context, cancel context.CancelFunc, id, code, fileName, spooled string) {
	defer s.running.Done()
	defer cancel()
	defer func() { _ = os.Remove(spooled) }()

	f, err := os.Open(spooled) // #nosec G304 -- path from os.CreateTemp
	if err != nil {
		s.jobs.finish(id, nil, fmt.Errorf("open spooled upload: %w", err))
		return
	}
	defer func() { _ = f.Close() }()

	res, err := s.classifier.Classify(ctx, pipeline.Request{
		ID:       id,
		Audio:    f,
		Filename: fileName,
		Language: code,
	})
	s.jobs.finish(id, res, err)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		entry := s.log.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Debug("request")
		}
	}
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}
