package tui

import (
	"context"
	"fmt"
	"strings"

	"imagegen/internal/config"
	"imagegen/internal/ledger"
	"imagegen/internal/session"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// ── Styles ──────────────────────────────────────────────────────────────────

const pad = 2 // horizontal padding on each side

var (
	frameStyle    = lipgloss.NewStyle().Padding(1, pad)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("37"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	focusLabel    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")).Background(lipgloss.Color("160")).Padding(0, 1)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusStyle   = map[string]lipgloss.Style{
		"pending": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"done":    lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		"legacy":  lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
	}
)

// ── Model ───────────────────────────────────────────────────────────────────

type field int

const (
	fieldPrompt field = iota
	fieldNegative
	fieldModel
	fieldHeight
	fieldWidth
	fieldHistory
	fieldCount
)

// Model is the BubbleTea model for the imagegen TUI: a form on top, the
// output panel, and the history list below.
type Model struct {
	ctrl  *session.Controller
	cfg   *config.Config
	feed  Feed
	state session.View

	focus    field
	prompt   textarea.Model
	negative textarea.Model
	heightIn textinput.Model
	widthIn  textinput.Model
	spinner  spinner.Model
	modelIdx int

	histCursor    int
	confirmDelete bool

	// Entry detail overlay.
	showDetail  bool
	detailLines []string

	actionErr error // non-fatal error from the last local action
	width     int
	height    int
}

func NewModel(ctrl *session.Controller, cfg *config.Config, feed Feed) Model {
	v := ctrl.View()

	prompt := textarea.New()
	prompt.Placeholder = "Describe the image..."
	prompt.ShowLineNumbers = false
	prompt.CharLimit = 4000
	prompt.SetHeight(3)
	prompt.SetValue(v.Form.Prompt)

	negative := textarea.New()
	negative.Placeholder = "Things to avoid (optional)"
	negative.ShowLineNumbers = false
	negative.CharLimit = 2000
	negative.SetHeight(2)
	negative.SetValue(v.Form.NegativePrompt)

	heightIn := newDimensionInput("height")
	heightIn.SetValue(v.Form.Height)
	widthIn := newDimensionInput("width")
	widthIn.SetValue(v.Form.Width)

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot

	m := Model{
		ctrl:     ctrl,
		cfg:      cfg,
		feed:     feed,
		state:    v,
		prompt:   prompt,
		negative: negative,
		heightIn: heightIn,
		widthIn:  widthIn,
		spinner:  spin,
	}
	m.modelIdx = m.indexOfModel(v.Form.ModelID)
	m.applyFocus()
	return m
}

func newDimensionInput(name string) textinput.Model {
	in := textinput.New()
	in.Placeholder = "auto"
	in.CharLimit = 5
	in.Width = 6
	in.Prompt = ""
	in.Validate = func(s string) error {
		for _, r := range s {
			if r < '0' || r > '9' {
				return fmt.Errorf("%s must be digits", name)
			}
		}
		return nil
	}
	return in
}

// ── Messages ────────────────────────────────────────────────────────────────

type viewMsg session.View

type submitResultMsg struct {
	jobID string
	err   error
}

type actionResultMsg struct {
	action string
	err    error
}

// ── Init / Commands ─────────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, m.waitForChange)
}

// waitForChange delivers the next state change pushed by a poll loop.
func (m Model) waitForChange() tea.Msg {
	if m.feed == nil {
		return nil
	}
	v, ok := <-m.feed
	if !ok {
		return nil
	}
	return viewMsg(v)
}

func (m Model) refresh() tea.Msg {
	return viewMsg(m.ctrl.View())
}

func (m Model) executeSubmit() tea.Msg {
	jobID, err := m.ctrl.Submit(context.Background())
	return submitResultMsg{jobID: jobID, err: err}
}

func (m Model) executeClear() tea.Msg {
	return actionResultMsg{action: "clear", err: m.ctrl.Clear(context.Background())}
}

func (m Model) executeSelect(i int) tea.Cmd {
	return func() tea.Msg {
		_, err := m.ctrl.SelectEntry(context.Background(), i)
		return actionResultMsg{action: "select", err: err}
	}
}

func (m Model) executeDelete(i int) tea.Cmd {
	return func() tea.Msg {
		_, err := m.ctrl.DeleteEntry(context.Background(), i)
		return actionResultMsg{action: "delete", err: err}
	}
}

// ── Update ──────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.prompt.SetWidth(m.cw())
		m.negative.SetWidth(m.cw())
	case viewMsg:
		m = m.applyView(session.View(msg))
		return m, m.waitForChange
	case submitResultMsg:
		// Submission errors already live on the controller view.
		m.actionErr = nil
		return m, m.refresh
	case actionResultMsg:
		m.actionErr = msg.err
		return m, m.refresh
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// applyView takes a fresh controller snapshot. Text fields are only reset
// when the stored value differs, so typing is never clobbered.
func (m Model) applyView(v session.View) Model {
	m.state = v
	if m.prompt.Value() != v.Form.Prompt {
		m.prompt.SetValue(v.Form.Prompt)
	}
	if m.negative.Value() != v.Form.NegativePrompt {
		m.negative.SetValue(v.Form.NegativePrompt)
	}
	if m.heightIn.Value() != v.Form.Height {
		m.heightIn.SetValue(v.Form.Height)
	}
	if m.widthIn.Value() != v.Form.Width {
		m.widthIn.SetValue(v.Form.Width)
	}
	m.modelIdx = m.indexOfModel(v.Form.ModelID)
	if m.histCursor >= len(v.History) {
		m.histCursor = max(len(v.History)-1, 0)
	}
	return m
}

// renderMarkdown renders text as terminal-styled markdown via glamour.
// Falls back to plain text splitting on error.
func renderMarkdown(text string, width int) []string {
	if width < 40 {
		width = 76
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return strings.Split(text, "\n")
	}
	rendered, err := r.Render(text)
	if err != nil {
		return strings.Split(text, "\n")
	}
	rendered = strings.TrimRight(rendered, "\n")
	return strings.Split(rendered, "\n")
}

// entryMarkdown describes one history entry.
func (m Model) entryMarkdown(i int, rec ledger.PromptRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Entry %d\n\n", i)
	fmt.Fprintf(&b, "**Prompt:** %s\n\n", rec.Prompt)
	if rec.NegativePrompt != "" {
		fmt.Fprintf(&b, "**Negative prompt:** %s\n\n", rec.NegativePrompt)
	}
	fmt.Fprintf(&b, "**Model:** %s\n\n", m.modelLabel(rec.ModelID))
	if rec.Height != "" || rec.Width != "" {
		fmt.Fprintf(&b, "**Size:** %s × %s\n\n", orAuto(rec.Width), orAuto(rec.Height))
	}
	if rec.JobID != "" {
		fmt.Fprintf(&b, "**Task:** `%s`\n\n", rec.JobID)
	}
	if rec.OutputRef != "" {
		fmt.Fprintf(&b, "**Image:** %s\n", rec.OutputRef)
	} else {
		b.WriteString("**Image:** _pending_\n")
	}
	return b.String()
}

// ── Key Handling ────────────────────────────────────────────────────────────

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+s":
		if !m.state.CanSubmit() {
			return m, nil
		}
		m.actionErr = nil
		m.state.Loading = true
		return m, m.executeSubmit
	case "ctrl+l":
		m.confirmDelete = false
		return m, m.executeClear
	case "tab":
		m.focus = (m.focus + 1) % fieldCount
		return m, m.applyFocus()
	case "shift+tab":
		m.focus = (m.focus + fieldCount - 1) % fieldCount
		return m, m.applyFocus()
	}

	if m.showDetail {
		if key == "esc" || key == "v" || key == "q" {
			m.showDetail = false
			m.detailLines = nil
		}
		return m, nil
	}

	switch m.focus {
	case fieldModel:
		return m.handleKeyModel(key)
	case fieldHistory:
		return m.handleKeyHistory(key)
	}
	return m.updateInput(msg)
}

func (m Model) handleKeyModel(key string) (tea.Model, tea.Cmd) {
	n := len(m.cfg.Models)
	if n == 0 {
		return m, nil
	}
	switch key {
	case "left", "h":
		m.modelIdx = (m.modelIdx + n - 1) % n
	case "right", "l", " ":
		m.modelIdx = (m.modelIdx + 1) % n
	default:
		return m, nil
	}
	id := m.cfg.Models[m.modelIdx].ID
	m.state.Form.ModelID = id
	m.actionErr = m.ctrl.SetModel(context.Background(), id)
	return m, nil
}

func (m Model) handleKeyHistory(key string) (tea.Model, tea.Cmd) {
	if m.confirmDelete {
		switch key {
		case "y":
			m.confirmDelete = false
			return m, m.executeDelete(m.histCursor)
		case "n", "esc":
			m.confirmDelete = false
		}
		return m, nil
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.histCursor > 0 {
			m.histCursor--
		}
	case "down", "j":
		if m.histCursor < len(m.state.History)-1 {
			m.histCursor++
		}
	case "enter":
		if m.histCursor < len(m.state.History) {
			m.actionErr = nil
			return m, m.executeSelect(m.histCursor)
		}
	case "d", "x":
		if m.histCursor < len(m.state.History) {
			m.confirmDelete = true
		}
	case "v":
		if m.histCursor < len(m.state.History) {
			m.showDetail = true
			m.detailLines = renderMarkdown(m.entryMarkdown(m.histCursor, m.state.History[m.histCursor]), m.cw())
		}
	case "r":
		return m, m.refresh
	}
	return m, nil
}

// updateInput forwards a key to the focused text component and writes the
// new value through the controller when it changed.
func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	var cmd tea.Cmd
	switch m.focus {
	case fieldPrompt:
		before := m.prompt.Value()
		m.prompt, cmd = m.prompt.Update(msg)
		if v := m.prompt.Value(); v != before {
			m.state.Form.Prompt = v
			m.actionErr = m.ctrl.SetPrompt(ctx, v)
		}
	case fieldNegative:
		before := m.negative.Value()
		m.negative, cmd = m.negative.Update(msg)
		if v := m.negative.Value(); v != before {
			m.state.Form.NegativePrompt = v
			m.actionErr = m.ctrl.SetNegativePrompt(ctx, v)
		}
	case fieldHeight:
		before := m.heightIn.Value()
		m.heightIn, cmd = m.heightIn.Update(msg)
		if v := m.heightIn.Value(); v != before {
			m.state.Form.Height = v
			m.actionErr = m.ctrl.SetHeight(ctx, v)
		}
	case fieldWidth:
		before := m.widthIn.Value()
		m.widthIn, cmd = m.widthIn.Update(msg)
		if v := m.widthIn.Value(); v != before {
			m.state.Form.Width = v
			m.actionErr = m.ctrl.SetWidth(ctx, v)
		}
	}
	return m, cmd
}

// applyFocus focuses the component for m.focus and blurs the rest.
func (m *Model) applyFocus() tea.Cmd {
	m.prompt.Blur()
	m.negative.Blur()
	m.heightIn.Blur()
	m.widthIn.Blur()
	m.confirmDelete = false
	switch m.focus {
	case fieldPrompt:
		return m.prompt.Focus()
	case fieldNegative:
		return m.negative.Focus()
	case fieldHeight:
		return m.heightIn.Focus()
	case fieldWidth:
		return m.widthIn.Focus()
	}
	return nil
}

// ── Views ───────────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.showDetail {
		return frameStyle.Render(m.detailView())
	}
	return frameStyle.Render(m.mainView())
}

func (m Model) mainView() string {
	var b strings.Builder
	w := m.cw()

	b.WriteString(titleStyle.Render("IMAGEGEN"))
	b.WriteString(dimStyle.Render("  " + m.statusLine()))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", w)))
	b.WriteString("\n")

	if m.state.Error != "" {
		b.WriteString(errorStyle.Render("Error: " + m.state.Error))
		b.WriteString("\n")
	}
	if m.actionErr != nil {
		b.WriteString(warnStyle.Render("Warning: " + m.actionErr.Error()))
		b.WriteString("\n")
	}

	// ── Form ──
	b.WriteString(m.label(fieldPrompt, "Prompt"))
	b.WriteString("\n")
	b.WriteString(m.prompt.View())
	b.WriteString("\n")
	b.WriteString(m.label(fieldNegative, "Negative prompt"))
	b.WriteString("\n")
	b.WriteString(m.negative.View())
	b.WriteString("\n")

	modelLine := fmt.Sprintf("‹ %s ›", m.modelLabel(m.state.Form.ModelID))
	if m.focus == fieldModel {
		modelLine = selectedStyle.Render(modelLine)
	}
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		m.label(fieldModel, "Model"), modelLine,
		m.label(fieldHeight, "Height"), m.heightIn.View(),
		m.label(fieldWidth, "Width"), m.widthIn.View(),
	)
	b.WriteString("\n")

	// ── Output ──
	b.WriteString(headerStyle.Render("OUTPUT"))
	b.WriteString("\n")
	switch {
	case m.state.Loading:
		jobID := m.state.ActiveJobID
		if jobID == "" {
			jobID = "submitting"
		}
		fmt.Fprintf(&b, "%s Generating... %s\n", m.spinner.View(), dimStyle.Render(jobID))
	case m.state.OutputRef != "":
		b.WriteString(m.state.OutputRef)
		b.WriteString("\n")
	default:
		b.WriteString(dimStyle.Render("No image yet."))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(strings.Repeat("─", w)))
	b.WriteString("\n")

	// ── History ──
	b.WriteString(m.historyView(w))

	b.WriteString(dimStyle.Render(strings.Repeat("─", w)))
	b.WriteString("\n")
	if m.confirmDelete {
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")).Render(fmt.Sprintf("Delete entry %d?", m.histCursor)))
		b.WriteString(dimStyle.Render("  y confirm  n cancel"))
		return b.String()
	}
	b.WriteString(dimStyle.Render(m.hints()))
	return b.String()
}

func (m Model) historyView(w int) string {
	var b strings.Builder
	const (
		colIdx    = 5
		colStatus = 9
		colModel  = 24
	)

	b.WriteString(m.label(fieldHistory, "History"))
	b.WriteString("\n")
	if len(m.state.History) == 0 {
		b.WriteString(dimStyle.Render("No history yet."))
		b.WriteString("\n")
		return b.String()
	}

	header := "  " +
		headerStyle.Render(padRight("#", colIdx)) +
		headerStyle.Render(padRight("STATUS", colStatus)) +
		headerStyle.Render(padRight("MODEL", colModel)) +
		headerStyle.Render("PROMPT")
	b.WriteString(header)
	b.WriteString("\n")

	start, end := scrollWindow(len(m.state.History), m.histCursor, m.historyHeight())
	promptW := max(w-colIdx-colStatus-colModel-2, 10)
	for i := start; i < end; i++ {
		rec := m.state.History[i]
		cursor := "  "
		if m.focus == fieldHistory && i == m.histCursor {
			cursor = "> "
		}
		status := entryStatus(rec)
		line := cursor +
			padRight(fmt.Sprintf("%d", i), colIdx) +
			statusStyle[status].Render(padRight(status, colStatus)) +
			padRight(truncate(m.modelLabel(rec.ModelID), colModel-1), colModel) +
			truncate(oneLine(rec.Prompt), promptW)
		if m.focus == fieldHistory && i == m.histCursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) detailView() string {
	var b strings.Builder
	w := m.cw()
	b.WriteString(titleStyle.Render("ENTRY"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(strings.Repeat("─", w)))
	b.WriteString("\n")
	for _, line := range m.detailLines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(strings.Repeat("─", w)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("esc back"))
	return b.String()
}

func (m Model) statusLine() string {
	switch {
	case m.state.Loading:
		return "working"
	case m.state.CanSubmit():
		return "ready"
	default:
		return "enter a prompt"
	}
}

func (m Model) hints() string {
	parts := []string{"tab next field"}
	if m.state.CanSubmit() {
		parts = append(parts, "ctrl+s submit")
	}
	parts = append(parts, "ctrl+l clear")
	switch m.focus {
	case fieldModel:
		parts = append(parts, "←/→ model")
	case fieldHistory:
		parts = append(parts, "j/k navigate", "enter load", "v view", "d delete", "q quit")
	}
	parts = append(parts, "ctrl+c quit")
	return strings.Join(parts, "  ")
}

func (m Model) label(f field, text string) string {
	if m.focus == f {
		return focusLabel.Render(text)
	}
	return labelStyle.Render(text)
}

// ── Helpers ─────────────────────────────────────────────────────────────────

func (m Model) indexOfModel(id string) int {
	for i, mc := range m.cfg.Models {
		if mc.ID == id {
			return i
		}
	}
	return 0
}

func (m Model) modelLabel(id string) string {
	if id == "" {
		return "-"
	}
	if mc, ok := m.cfg.ModelByID(id); ok {
		return mc.Label
	}
	return id
}

func entryStatus(rec ledger.PromptRecord) string {
	switch {
	case rec.Resolved():
		return "done"
	case rec.JobID != "":
		return "pending"
	default:
		return "legacy"
	}
}

// cw returns content width (terminal width minus frame padding).
func (m Model) cw() int {
	w := m.width - pad*2
	if w < 40 {
		w = 76 // sensible default before first WindowSizeMsg
	}
	return w
}

func (m Model) historyHeight() int {
	// Form, output and chrome take roughly 22 lines.
	h := m.height - 22
	if h < 3 {
		h = 3
	}
	return h
}

// scrollWindow keeps cursor visible in a window of avail rows.
func scrollWindow(n, cursor, avail int) (int, int) {
	if avail < 1 {
		avail = 1
	}
	start := 0
	if cursor >= avail {
		start = cursor - avail + 1
	}
	end := min(start+avail, n)
	return start, end
}

func orAuto(s string) string {
	if s == "" {
		return "auto"
	}
	return s
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// padRight pads a plain string to n characters with spaces.
func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
