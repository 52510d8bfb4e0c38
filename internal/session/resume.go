package session

import (
	"context"
	"log/slog"

	"imagegen/internal/worker"
)

// ResumeReport summarizes one Resume run.
type ResumeReport struct {
	Outcomes []worker.Outcome
	Resolved int
	Failed   int
}

// Resume polls every unresolved history entry to completion using pool.
// Entries for the active loop's job are skipped. Results only update the
// history; the loading flag and output reference are left alone.
func (c *Controller) Resume(ctx context.Context, pool *worker.Pool) (ResumeReport, error) {
	c.mu.Lock()
	var active string
	if c.active != nil {
		active = c.active.JobID()
	}
	seen := make(map[string]struct{})
	var jobIDs []string
	for _, i := range c.ledger.Unresolved() {
		rec, err := c.ledger.Get(i)
		if err != nil {
			continue
		}
		if rec.JobID == active {
			continue
		}
		if _, dup := seen[rec.JobID]; dup {
			continue
		}
		seen[rec.JobID] = struct{}{}
		jobIDs = append(jobIDs, rec.JobID)
	}
	c.mu.Unlock()

	if len(jobIDs) == 0 {
		return ResumeReport{}, nil
	}
	slog.Info("session: resuming unresolved jobs", "count", len(jobIDs), "workers", pool.Size())

	outcomes, err := pool.Resolve(ctx, jobIDs, c.poller.Wait, func(o worker.Outcome) {
		if o.Err != nil {
			slog.Warn("session: resume failed", "job_id", o.JobID, "err", o.Err)
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.ledger.ResolveJob(o.JobID, o.OutputURL) > 0 {
			c.persistLedgerLocked(context.WithoutCancel(ctx))
		}
	})

	report := ResumeReport{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Err != nil {
			report.Failed++
		} else {
			report.Resolved++
		}
	}
	return report, err
}

// Poll waits for jobID to finish and records the output on every history
// entry carrying that job id. Like Resume it never touches the loading flag
// or output reference.
func (c *Controller) Poll(ctx context.Context, jobID string) (string, error) {
	outputURL, err := c.poller.Wait(ctx, jobID)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ledger.ResolveJob(jobID, outputURL) > 0 {
		c.persistLedgerLocked(context.WithoutCancel(ctx))
	}
	return outputURL, nil
}
