// Package poller drives a job to a terminal status by querying it on a fixed
// interval until it completes, fails, or is cancelled.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"imagegen/internal/inference"
)

// StatusChecker performs a single status query. *inference.Client
// satisfies it.
type StatusChecker interface {
	Status(ctx context.Context, jobID string) (inference.StatusResponse, error)
}

// Result is the terminal outcome of one loop. Exactly one of OutputURL and
// Err is set.
type Result struct {
	JobID     string
	OutputURL string
	Err       error
}

// DefaultInterval is the delay between status queries when none is set.
const DefaultInterval = 3 * time.Second

type Options struct {
	Interval time.Duration
	// Timeout bounds the wall time of one loop. Zero means no bound.
	Timeout time.Duration
}

type Poller struct {
	checker  StatusChecker
	interval time.Duration
	timeout  time.Duration
}

func New(checker StatusChecker, opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{checker: checker, interval: interval, timeout: opts.Timeout}
}

// Interval returns the delay between status queries.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Handle is a running poll loop.
type Handle struct {
	id        string
	jobID     string
	cancel    context.CancelFunc
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// ID identifies the loop in logs.
func (h *Handle) ID() string { return h.id }

func (h *Handle) JobID() string { return h.jobID }

// Cancel stops the loop. No result is delivered after Cancel returns unless
// delivery had already begun. Safe to call more than once.
func (h *Handle) Cancel() {
	h.once.Do(func() {
		h.cancelled.Store(true)
		h.cancel()
		slog.Debug("poller: cancelled", "handle", h.id, "job_id", h.jobID)
	})
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

// Done is closed once the loop goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Start launches a loop for jobID and returns immediately. onResult is
// called at most once, from the loop goroutine.
func (p *Poller) Start(ctx context.Context, jobID string, onResult func(Result)) *Handle {
	var loopCtx context.Context
	var cancel context.CancelFunc
	if p.timeout > 0 {
		loopCtx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		loopCtx, cancel = context.WithCancel(ctx)
	}
	h := &Handle{
		id:     uuid.NewString(),
		jobID:  jobID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	slog.Debug("poller: started", "handle", h.id, "job_id", jobID, "interval", p.interval)
	go p.run(loopCtx, h, onResult)
	return h
}

// Wait polls jobID until it reaches a terminal status and returns the output
// url. Cancelling ctx stops the loop and returns ctx.Err().
func (p *Poller) Wait(ctx context.Context, jobID string) (string, error) {
	results := make(chan Result, 1)
	h := p.Start(ctx, jobID, func(r Result) { results <- r })
	select {
	case r := <-results:
		return r.OutputURL, r.Err
	case <-ctx.Done():
		h.Cancel()
		<-h.Done()
		// A result may have raced the cancellation.
		select {
		case r := <-results:
			return r.OutputURL, r.Err
		default:
		}
		return "", ctx.Err()
	}
}

func (p *Poller) run(ctx context.Context, h *Handle, onResult func(Result)) {
	defer close(h.done)
	defer h.cancel()

	deliver := func(r Result) {
		if h.cancelled.Load() || onResult == nil {
			return
		}
		onResult(r)
	}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			p.finishOnContext(ctx, h, deliver)
			return
		case <-timer.C:
		}

		status, err := p.checker.Status(ctx, h.jobID)
		if err != nil {
			if ctx.Err() != nil {
				p.finishOnContext(ctx, h, deliver)
				return
			}
			slog.Warn("poller: status check failed", "handle", h.id, "job_id", h.jobID, "err", err)
			deliver(Result{JobID: h.jobID, Err: err})
			return
		}

		switch status.Status {
		case inference.StatusComplete:
			slog.Info("poller: job complete", "handle", h.id, "job_id", h.jobID, "checks", attempt)
			deliver(Result{JobID: h.jobID, OutputURL: status.OutputURL()})
			return
		case inference.StatusPending, inference.StatusRunning:
			slog.Debug("poller: job in progress", "handle", h.id, "job_id", h.jobID, "status", status.Status)
			timer.Reset(p.interval)
		default:
			slog.Warn("poller: job failed", "handle", h.id, "job_id", h.jobID, "status", status.Status)
			deliver(Result{JobID: h.jobID, Err: &inference.JobFailedError{JobID: h.jobID, Status: status.Status}})
			return
		}
	}
}

// finishOnContext reports a loop timeout. Plain cancellation, by Cancel or
// by the parent context, ends the loop silently.
func (p *Poller) finishOnContext(ctx context.Context, h *Handle, deliver func(Result)) {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return
	}
	slog.Warn("poller: timed out", "handle", h.id, "job_id", h.jobID, "timeout", p.timeout)
	deliver(Result{JobID: h.jobID, Err: &inference.PollTransportError{JobID: h.jobID, Err: ctx.Err()}})
}
