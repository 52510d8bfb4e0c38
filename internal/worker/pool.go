// Package worker runs a bounded number of job resolutions concurrently.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// ResolveFunc drives one job to a terminal status and returns its output.
type ResolveFunc func(ctx context.Context, jobID string) (string, error)

// Outcome is the result for one job id.
type Outcome struct {
	JobID     string
	OutputURL string
	Err       error
}

// Pool limits how many jobs are resolved at once.
type Pool struct {
	n int
}

func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{n: n}
}

func (p *Pool) Size() int { return p.n }

// Resolve runs resolve for every job id with at most Size() in flight. One
// failure does not stop the others. onDone, when set, is called from the
// worker goroutine as each job finishes. Outcomes are returned in input
// order; the error is ctx.Err() if the context ended first.
func (p *Pool) Resolve(ctx context.Context, jobIDs []string, resolve ResolveFunc, onDone func(Outcome)) ([]Outcome, error) {
	outcomes := make([]Outcome, len(jobIDs))
	var g errgroup.Group
	g.SetLimit(p.n)

	for i, jobID := range jobIDs {
		if ctx.Err() != nil {
			outcomes[i] = Outcome{JobID: jobID, Err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			out := p.process(ctx, i, jobID, resolve)
			outcomes[i] = out
			if onDone != nil {
				onDone(out)
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, ctx.Err()
}

func (p *Pool) process(ctx context.Context, slot int, jobID string, resolve ResolveFunc) (out Outcome) {
	out.JobID = jobID
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker panic", "slot", slot, "job_id", jobID, "panic", r, "stack", string(debug.Stack()))
			out.Err = fmt.Errorf("resolve %s: panic: %v", jobID, r)
		}
	}()

	slog.Debug("worker resolving job", "slot", slot, "job_id", jobID)
	url, err := resolve(ctx, jobID)
	if err != nil {
		out.Err = err
		return out
	}
	out.OutputURL = url
	return out
}
