package tui

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"imagegen/internal/config"
	"imagegen/internal/db"
	"imagegen/internal/inference"
	"imagegen/internal/ledger"
	"imagegen/internal/poller"
	"imagegen/internal/session"
	"imagegen/internal/state"

	tea "github.com/charmbracelet/bubbletea"
)

func TestMainViewShowsFormAndEmptyHistory(t *testing.T) {
	t.Parallel()
	m, _ := newTestModel(t, nil)

	view := m.mainView()
	for _, want := range []string{"IMAGEGEN", "Prompt", "Negative prompt", "Realistic Vision XL 4.0", "No image yet.", "No history yet."} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view, got:\n%s", want, view)
		}
	}
	if strings.Contains(view, "ctrl+s submit") {
		t.Fatalf("submit hint should be hidden with a blank prompt")
	}
}

func TestTypingWritesThroughToController(t *testing.T) {
	t.Parallel()
	m, ctrl := newTestModel(t, nil)

	for _, r := range "a cat" {
		modelAny, _ := m.handleKey(keyRunes(r))
		m = modelAny.(Model)
	}
	if got := ctrl.View().Form.Prompt; got != "a cat" {
		t.Fatalf("expected prompt written through, got %q", got)
	}
	if !strings.Contains(m.mainView(), "ctrl+s submit") {
		t.Fatalf("expected submit hint once prompt is set")
	}
}

func TestSubmitIgnoredWithBlankPrompt(t *testing.T) {
	t.Parallel()
	m, _ := newTestModel(t, nil)

	_, cmd := m.handleKey(tea.KeyMsg{Type: tea.KeyCtrlS})
	if cmd != nil {
		t.Fatalf("expected no command for blank prompt")
	}
}

func TestSubmitAddsHistoryAndShowsLoading(t *testing.T) {
	t.Parallel()
	m, ctrl := newTestModel(t, nil)
	if err := ctrl.SetPrompt(context.Background(), "a lighthouse"); err != nil {
		t.Fatalf("set prompt: %v", err)
	}
	m = m.applyView(ctrl.View())

	modelAny, cmd := m.handleKey(tea.KeyMsg{Type: tea.KeyCtrlS})
	m = modelAny.(Model)
	if cmd == nil {
		t.Fatalf("expected submit command")
	}
	m = drain(t, m, cmd())

	if len(m.state.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(m.state.History))
	}
	if m.state.History[0].JobID != "T1" {
		t.Fatalf("expected job T1, got %q", m.state.History[0].JobID)
	}

	view, err := ctrl.Await(context.Background())
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	m = m.applyView(view)
	if !strings.Contains(m.mainView(), "https://x/T1.png") {
		t.Fatalf("expected output url in view, got:\n%s", m.mainView())
	}
}

func TestHistoryDeleteRequiresConfirmation(t *testing.T) {
	t.Parallel()
	m, ctrl := newTestModel(t, []ledger.PromptRecord{
		{Prompt: "first", OutputRef: "https://x/1.png"},
		{Prompt: "second", OutputRef: "https://x/2.png"},
	})
	m.focus = fieldHistory
	m.applyFocus()

	modelAny, _ := m.handleKey(keyRunes('d'))
	m = modelAny.(Model)
	if !m.confirmDelete {
		t.Fatalf("expected delete confirmation")
	}
	if !strings.Contains(m.mainView(), "Delete entry 0?") {
		t.Fatalf("expected delete prompt in view")
	}

	modelAny, _ = m.handleKey(keyRunes('n'))
	m = modelAny.(Model)
	if m.confirmDelete || len(ctrl.View().History) != 2 {
		t.Fatalf("expected delete aborted")
	}

	modelAny, _ = m.handleKey(keyRunes('d'))
	m = modelAny.(Model)
	modelAny, cmd := m.handleKey(keyRunes('y'))
	m = modelAny.(Model)
	if cmd == nil {
		t.Fatalf("expected delete command")
	}
	m = drain(t, m, cmd())

	history := ctrl.View().History
	if len(history) != 1 || history[0].Prompt != "second" {
		t.Fatalf("expected only second entry left, got %#v", history)
	}
	if len(m.state.History) != 1 {
		t.Fatalf("expected model refreshed after delete")
	}
}

func TestHistorySelectLoadsEntry(t *testing.T) {
	t.Parallel()
	m, ctrl := newTestModel(t, []ledger.PromptRecord{
		{Prompt: "castle", NegativePrompt: "fog", ModelID: "sdxl-turbo", OutputRef: "https://x/c.png"},
	})
	m.focus = fieldHistory
	m.applyFocus()

	_, cmd := m.handleKey(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("expected select command")
	}
	m = drain(t, m, cmd())

	if m.prompt.Value() != "castle" || m.negative.Value() != "fog" {
		t.Fatalf("expected form loaded from entry, got %q / %q", m.prompt.Value(), m.negative.Value())
	}
	if m.cfg.Models[m.modelIdx].ID != "sdxl-turbo" {
		t.Fatalf("expected model selector on sdxl-turbo")
	}
	if ctrl.View().OutputRef != "https://x/c.png" {
		t.Fatalf("expected output shown immediately")
	}
}

func TestModelSelectorCycles(t *testing.T) {
	t.Parallel()
	m, ctrl := newTestModel(t, nil)
	m.focus = fieldModel
	m.applyFocus()

	modelAny, _ := m.handleKey(tea.KeyMsg{Type: tea.KeyRight})
	m = modelAny.(Model)
	if got := ctrl.View().Form.ModelID; got != "sdxxxl-v3" {
		t.Fatalf("expected next model selected, got %q", got)
	}
	modelAny, _ = m.handleKey(tea.KeyMsg{Type: tea.KeyRight})
	m = modelAny.(Model)
	if got := ctrl.View().Form.ModelID; got != "sdxl-turbo" {
		t.Fatalf("expected selector to wrap, got %q", got)
	}
}

func TestErrorBannerAndDetailView(t *testing.T) {
	t.Parallel()
	m, _ := newTestModel(t, []ledger.PromptRecord{{Prompt: "pending fox", JobID: "J9"}})
	m.state.Error = "job J9 ended with status FAILED"
	if !strings.Contains(m.mainView(), "Error: job J9 ended with status FAILED") {
		t.Fatalf("expected error banner")
	}

	m.focus = fieldHistory
	modelAny, _ := m.handleKey(keyRunes('v'))
	m = modelAny.(Model)
	if !m.showDetail {
		t.Fatalf("expected detail view")
	}
	detail := m.View()
	if !strings.Contains(detail, "fox") || !strings.Contains(detail, "J9") {
		t.Fatalf("expected entry details, got:\n%s", detail)
	}

	modelAny, _ = m.handleKey(tea.KeyMsg{Type: tea.KeyEsc})
	m = modelAny.(Model)
	if m.showDetail {
		t.Fatalf("expected esc to close detail")
	}
}

func TestFeedPushKeepsLatest(t *testing.T) {
	t.Parallel()
	f := make(Feed, 1)
	f.Push(session.View{OutputRef: "old"})
	f.Push(session.View{OutputRef: "new"})
	if got := (<-f).OutputRef; got != "new" {
		t.Fatalf("expected latest view, got %q", got)
	}
}

// drain feeds msg through Update and runs follow-up commands until none
// produce a message the model consumes.
func drain(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	for i := 0; msg != nil && i < 5; i++ {
		modelAny, cmd := m.Update(msg)
		m = modelAny.(Model)
		if _, isView := msg.(viewMsg); isView || cmd == nil {
			break
		}
		msg = cmd()
	}
	return m
}

func newTestModel(t *testing.T, history []ledger.PromptRecord) (Model, *session.Controller) {
	t.Helper()
	ctx := context.Background()

	store, err := db.Open(filepath.Join(t.TempDir(), "imagegen.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		DefaultModel: "realistic-vision-xl-4",
		Models: []config.ModelConfig{
			{ID: "sdxl-turbo", Label: "SDXL Turbo"},
			{ID: "realistic-vision-xl-4", Label: "Realistic Vision XL 4.0"},
			{ID: "sdxxxl-v3", Label: "SDXXXL v3.0"},
		},
	}
	st := state.New(store, cfg.ModelIDs(), cfg.DefaultModel)
	if history != nil {
		if err := st.SetLedger(ctx, ledger.New(history)); err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}

	ctrl, err := session.New(ctx, session.Options{
		Store:        st,
		Client:       &stubSubmitter{},
		Poller:       poller.New(completeAfterOne{}, poller.Options{Interval: 5 * time.Millisecond}),
		Models:       cfg.ModelIDs(),
		DefaultModel: cfg.DefaultModel,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(ctrl.Close)
	return NewModel(ctrl, cfg, nil), ctrl
}

type stubSubmitter struct {
	mu sync.Mutex
	n  int
}

func (s *stubSubmitter) Submit(context.Context, inference.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "T" + string(rune('0'+s.n)), nil
}

type completeAfterOne struct{}

func (completeAfterOne) Status(_ context.Context, jobID string) (inference.StatusResponse, error) {
	return inference.StatusResponse{
		TaskID:  jobID,
		Status:  inference.StatusComplete,
		Outputs: map[string]inference.Output{inference.OutputKey: {URL: "https://x/" + jobID + ".png"}},
	}, nil
}

func keyRunes(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}
