// Package session owns the live form, output reference, loading flag and
// history for one user, and is the only writer of persisted state.
//
// Every mutation happens under one mutex. Poll loops report back through a
// callback that first checks the loop is still the current one, so a
// cancelled or superseded loop never touches shared state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"imagegen/internal/inference"
	"imagegen/internal/ledger"
	"imagegen/internal/notify"
	"imagegen/internal/poller"
	"imagegen/internal/state"
)

var (
	// ErrJobInFlight is returned by Submit while the main loop is running.
	ErrJobInFlight  = errors.New("a job is already in progress")
	ErrUnknownModel = errors.New("unknown model")
)

// Submitter starts a remote job. *inference.Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req inference.Request) (string, error)
}

type Options struct {
	Store    *state.Store
	Client   Submitter
	Poller   *poller.Poller
	Notifier *notify.Notifier
	// Models is the configured model order.
	Models       []string
	DefaultModel string
	// OnChange is called, outside the lock, after a poll loop changes state.
	OnChange func(View)
}

// View is a consistent copy of the controller state.
type View struct {
	Form        state.FormState
	OutputRef   string
	Loading     bool
	Error       string
	History     []ledger.PromptRecord
	ActiveJobID string
}

// CanSubmit mirrors the submit control: enabled only with a prompt and no
// job in flight.
func (v View) CanSubmit() bool {
	return strings.TrimSpace(v.Form.Prompt) != "" && !v.Loading
}

type Controller struct {
	baseCtx  context.Context
	store    *state.Store
	client   Submitter
	poller   *poller.Poller
	notifier *notify.Notifier
	models   []string
	defModel string
	onChange func(View)

	mu         sync.Mutex
	form       state.FormState
	outputRef  string
	ledger     *ledger.Ledger
	loading    bool
	errMsg     string
	active     *poller.Handle
	generation uint64
}

// New loads persisted state and returns a ready controller. Poll loops are
// bound to ctx.
func New(ctx context.Context, opts Options) (*Controller, error) {
	if opts.Store == nil || opts.Client == nil || opts.Poller == nil {
		return nil, errors.New("session: store, client and poller are required")
	}
	snap, err := opts.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return &Controller{
		baseCtx:   ctx,
		store:     opts.Store,
		client:    opts.Client,
		poller:    opts.Poller,
		notifier:  opts.Notifier,
		models:    opts.Models,
		defModel:  opts.DefaultModel,
		onChange:  opts.OnChange,
		form:      snap.Form,
		outputRef: snap.OutputRef,
		ledger:    snap.Ledger,
	}, nil
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	v := View{
		Form:      c.form,
		OutputRef: c.outputRef,
		Loading:   c.loading,
		Error:     c.errMsg,
		History:   c.ledger.Records(),
	}
	if c.active != nil {
		v.ActiveJobID = c.active.JobID()
	}
	return v
}

func (c *Controller) SetPrompt(ctx context.Context, v string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.Prompt = v
	return c.store.SetPrompt(ctx, v)
}

func (c *Controller) SetNegativePrompt(ctx context.Context, v string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.NegativePrompt = v
	return c.store.SetNegativePrompt(ctx, v)
}

// SetModel selects a configured model id.
func (c *Controller) SetModel(ctx context.Context, id string) error {
	if !slices.Contains(c.models, id) {
		return fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.ModelID = id
	return c.store.SetModel(ctx, id)
}

// SetHeight stores the raw input; it is validated on submit.
func (c *Controller) SetHeight(ctx context.Context, v string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.Height = v
	return c.store.SetHeight(ctx, v)
}

func (c *Controller) SetWidth(ctx context.Context, v string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.Width = v
	return c.store.SetWidth(ctx, v)
}

// Submit sends the current form and starts polling the new job. It blocks
// for the submission request only; the poll loop runs in the background.
// A blank prompt fails with inference.ErrEmptyPrompt without touching the
// loading flag.
func (c *Controller) Submit(ctx context.Context) (string, error) {
	c.mu.Lock()
	if strings.TrimSpace(c.form.Prompt) == "" {
		c.mu.Unlock()
		return "", inference.ErrEmptyPrompt
	}
	if c.loading {
		c.mu.Unlock()
		return "", ErrJobInFlight
	}
	c.cancelActiveLocked()
	gen := c.generation
	c.loading = true
	c.errMsg = ""
	form := c.form
	c.mu.Unlock()

	jobID, err := c.client.Submit(ctx, inference.Request{
		Prompt:         form.Prompt,
		NegativePrompt: form.NegativePrompt,
		ModelID:        form.ModelID,
		Height:         form.Height,
		Width:          form.Width,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	current := gen == c.generation
	if err != nil {
		slog.Warn("session: submission failed", "err", err)
		if current {
			c.loading = false
			c.errMsg = err.Error()
		}
		return "", err
	}

	rec := ledger.PromptRecord{
		Prompt:         form.Prompt,
		NegativePrompt: strings.TrimSpace(form.NegativePrompt),
		ModelID:        form.ModelID,
		JobID:          jobID,
		Height:         strings.TrimSpace(form.Height),
		Width:          strings.TrimSpace(form.Width),
	}
	if _, err := c.ledger.Append(rec); err != nil {
		err = fmt.Errorf("record job %s: %w", jobID, err)
		if current {
			c.loading = false
			c.errMsg = err.Error()
		}
		return jobID, err
	}
	c.persistLedgerLocked(ctx)
	slog.Info("session: job submitted", "job_id", jobID, "model", form.ModelID)

	if !current {
		// Cleared or superseded while the request was in flight. The job
		// stays in history, unresolved.
		return jobID, nil
	}
	c.startLoopLocked(jobID, rec)
	return jobID, nil
}

// SelectEntry loads entry i into the form. A resolved entry is shown
// immediately and leaves any running loop alone; when that loop finishes its
// output replaces the one shown. An unresolved entry is polled again.
func (c *Controller) SelectEntry(ctx context.Context, i int) (ledger.PromptRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.ledger.Get(i)
	if err != nil {
		return ledger.PromptRecord{}, err
	}
	c.errMsg = ""
	c.form.Prompt = rec.Prompt
	c.form.NegativePrompt = rec.NegativePrompt
	if rec.ModelID != "" && slices.Contains(c.models, rec.ModelID) {
		c.form.ModelID = rec.ModelID
	}
	c.form.Height = rec.Height
	c.form.Width = rec.Width
	if err := c.store.SetForm(ctx, c.form); err != nil {
		return rec, fmt.Errorf("save form: %w", err)
	}

	switch {
	case rec.Resolved():
		c.setOutputLocked(ctx, rec.OutputRef)
	case rec.JobID != "":
		if c.active != nil && c.active.JobID() == rec.JobID {
			return rec, nil
		}
		c.setOutputLocked(ctx, "")
		c.startLoopLocked(rec.JobID, rec)
	}
	return rec, nil
}

// DeleteEntry removes entry i. Later entries shift down by one.
func (c *Controller) DeleteEntry(ctx context.Context, i int) (ledger.PromptRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.ledger.Delete(i)
	if err != nil {
		return ledger.PromptRecord{}, err
	}
	if err := c.store.SetLedger(ctx, c.ledger); err != nil {
		return rec, fmt.Errorf("save history: %w", err)
	}
	return rec, nil
}

// Clear empties the prompt and output and stops the active loop. Model,
// negative prompt and dimensions are kept.
func (c *Controller) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelActiveLocked()
	c.loading = false
	c.errMsg = ""
	c.form.Prompt = ""
	if err := c.store.SetPrompt(ctx, ""); err != nil {
		return err
	}
	c.outputRef = ""
	return c.store.SetOutputRef(ctx, "")
}

// Await blocks until the active loop, if any, has finished and returns
// the resulting view.
func (c *Controller) Await(ctx context.Context) (View, error) {
	c.mu.Lock()
	h := c.active
	c.mu.Unlock()
	if h != nil {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return c.View(), ctx.Err()
		}
	}
	return c.View(), nil
}

// Close stops the active loop.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelActiveLocked()
}

func (c *Controller) cancelActiveLocked() {
	c.generation++
	if c.active != nil {
		c.active.Cancel()
		c.active = nil
	}
}

func (c *Controller) startLoopLocked(jobID string, rec ledger.PromptRecord) {
	c.cancelActiveLocked()
	gen := c.generation
	c.loading = true
	c.active = c.poller.Start(c.baseCtx, jobID, func(r poller.Result) {
		c.handleResult(gen, rec, r)
	})
}

func (c *Controller) handleResult(gen uint64, rec ledger.PromptRecord, r poller.Result) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		slog.Debug("session: dropping result of superseded loop", "job_id", r.JobID)
		return
	}
	c.active = nil
	c.loading = false

	ctx := context.WithoutCancel(c.baseCtx)
	payload := notify.NewPayload(notify.TriggerJobComplete, r.JobID, rec.Prompt, rec.ModelID)
	if r.Err != nil {
		c.errMsg = r.Err.Error()
		payload = notify.NewPayload(notify.TriggerJobFailed, r.JobID, rec.Prompt, rec.ModelID)
		payload.Error = r.Err.Error()
	} else {
		c.errMsg = ""
		if n := c.ledger.ResolveJob(r.JobID, r.OutputURL); n > 0 {
			c.persistLedgerLocked(ctx)
		}
		c.setOutputLocked(ctx, r.OutputURL)
		payload.OutputURL = r.OutputURL
	}
	view := c.viewLocked()
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(view)
	}
	c.notifier.Notify(ctx, payload)
}

func (c *Controller) setOutputLocked(ctx context.Context, ref string) {
	c.outputRef = ref
	if err := c.store.SetOutputRef(ctx, ref); err != nil {
		slog.Error("session: save output reference failed", "err", err)
	}
}

func (c *Controller) persistLedgerLocked(ctx context.Context) {
	if err := c.store.SetLedger(ctx, c.ledger); err != nil {
		slog.Error("session: save history failed", "err", err)
	}
}
