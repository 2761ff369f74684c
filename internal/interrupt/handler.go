// Package interrupt turns SIGINT/SIGTERM into request cancellation.
//
// The first signal cancels the returned context so the running request can
// finish its cleanup. A second signal within Window exits the process with
// ExitInterrupt without waiting.
package interrupt

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ExitInterrupt is the exit code for interrupt (130 = 128 + SIGINT).
const ExitInterrupt = 130

// Window is how long after the first signal a second one forces exit.
const Window = 2 * time.Second

const (
	cancelMessage = "\nCanceling, cleaning up. Press Ctrl+C again to exit immediately."
	abortMessage  = "\nAborted."
)

// Handler watches for interrupts for the lifetime of one command.
type Handler struct {
	mu          sync.Mutex
	first       time.Time
	interrupted bool
	stopped     bool
	cancel      context.CancelFunc
	done        chan struct{}
	stopSignals func()

	exit   func(int)
	now    func() time.Time
	stderr io.Writer
}

// Options holds injectable dependencies for testing.
type Options struct {
	SigCh <-chan os.Signal
	Exit  func(int)
	Now   func() time.Time
	// Stderr must be safe for concurrent writes.
	Stderr io.Writer
}

// NewHandler listens for SIGINT and SIGTERM. The returned context is
// canceled on the first one.
func NewHandler(parent context.Context, stderr io.Writer) (*Handler, context.Context) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	h, ctx := NewHandlerWithOptions(parent, Options{SigCh: sigCh, Stderr: stderr})
	h.stopSignals = func() { signal.Stop(sigCh) }
	return h, ctx
}

// NewHandlerWithOptions creates a handler reading from opts.SigCh.
func NewHandlerWithOptions(parent context.Context, opts Options) (*Handler, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	h := &Handler{
		cancel:      cancel,
		done:        make(chan struct{}),
		stopSignals: func() {},
		exit:        opts.Exit,
		now:         opts.Now,
		stderr:      opts.Stderr,
	}
	if h.exit == nil {
		h.exit = os.Exit
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.stderr == nil {
		h.stderr = os.Stderr
	}

	if opts.SigCh != nil {
		go h.listen(opts.SigCh)
	}
	return h, ctx
}

func (h *Handler) listen(sigCh <-chan os.Signal) {
	for {
		select {
		case <-h.done:
			return
		case _, ok := <-sigCh:
			if !ok {
				return
			}
			if h.handle() {
				return
			}
		}
	}
}

// handle processes one signal and reports whether listening should stop.
func (h *Handler) handle() bool {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return true
	}
	now := h.now()

	if !h.interrupted {
		h.interrupted = true
		h.first = now
		h.mu.Unlock()
		h.cancel()
		_, _ = fmt.Fprintln(h.stderr, cancelMessage)
		return false
	}

	if now.Sub(h.first) <= Window {
		h.mu.Unlock()
		_, _ = fmt.Fprintln(h.stderr, abortMessage)
		h.exit(ExitInterrupt)
		return true
	}

	// Late second signal: restart the window.
	h.first = now
	h.mu.Unlock()
	_, _ = fmt.Fprintln(h.stderr, cancelMessage)
	return false
}

// WasInterrupted reports whether at least one signal was received.
func (h *Handler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

// Stop releases the signal subscription and the listener goroutine.
// It is safe to call more than once.
func (h *Handler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	h.stopSignals()
	close(h.done)
	h.cancel()
}
