// Package tui implements the interactive negotiation screen: draft on
// the left of the timeline, glimpses and ladder cues as they happen,
// choices bound to keys.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/metalagman/glimpse/internal/draft"
	"github.com/metalagman/glimpse/internal/ladder"
	"github.com/metalagman/glimpse/internal/negotiate"
)

type phase int

const (
	phaseEditing phase = iota
	phaseGlimpsing
	phaseReviewing
	phaseConfirmBlind
	phaseDone
)

const (
	fieldText = iota
	fieldGoal
	fieldConstraints
	fieldCount
)

var (
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	faintStyle   = lipgloss.NewStyle().Faint(true)
	alignedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	deltaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	helpStyle    = lipgloss.NewStyle().Faint(true).MarginTop(1)
)

type previewMsg struct {
	res draft.PreviewResult
	st  draft.AttemptStatus
	err error
}

type commitMsg struct {
	rec draft.CommitRecord
	err error
}

type tickMsg time.Time

// Model is the bubbletea model for one negotiation.
type Model struct {
	engine *negotiate.Engine

	phase   phase
	focus   int
	text    textarea.Model
	goal    textinput.Model
	constr  textinput.Model
	spin    spinner.Model
	cancel  context.CancelFunc
	working draft.Draft
	result  draft.PreviewResult
	status  draft.AttemptStatus
	rung    ladder.Rung
	record  draft.CommitRecord
	err     error
	note    string
}

// New builds the model around an engine instance.
func New(engine *negotiate.Engine) Model {
	text := textarea.New()
	text.Placeholder = "Draft…"
	text.SetHeight(4)
	text.Focus()

	goal := textinput.New()
	goal.Placeholder = "Goal (optional)"
	constr := textinput.New()
	constr.Placeholder = "Constraints (optional)"

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot

	return Model{engine: engine, text: text, goal: goal, constr: constr, spin: spin}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m *Model) draftFromInputs() draft.Draft {
	return draft.Draft{
		Text:        strings.TrimSpace(m.text.Value()),
		Goal:        strings.TrimSpace(m.goal.Value()),
		Constraints: strings.TrimSpace(m.constr.Value()),
	}
}

func (m *Model) startGlimpse() tea.Cmd {
	d := m.draftFromInputs()
	if m.engine.Attempts() > 0 {
		if err := m.engine.Adjust(d); err != nil {
			m.note = err.Error()
			return nil
		}
		d = m.engine.Working()
	}
	m.working = d
	m.phase = phaseGlimpsing
	m.note = ""

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	engine := m.engine
	preview := func() tea.Msg {
		res, st, err := engine.Preview(ctx, d)
		return previewMsg{res: res, st: st, err: err}
	}
	return tea.Batch(preview, m.spin.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) commit(override bool) tea.Cmd {
	engine := m.engine
	d := m.working
	res := m.result
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var rec draft.CommitRecord
		var err error
		if override {
			rec, err = engine.CommitOverride(ctx, d, res)
		} else {
			rec, err = engine.Commit(ctx, d, res)
		}
		return commitMsg{rec: rec, err: err}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tickMsg:
		if m.phase != phaseGlimpsing {
			return m, nil
		}
		m.rung = m.engine.Rung()
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case previewMsg:
		m.cancel = nil
		if msg.err != nil {
			// Cancelled or abandoned: back to the draft.
			m.phase = phaseEditing
			m.note = "glimpse cancelled (no attempt consumed)"
			return m, nil
		}
		m.result = msg.res
		m.status = msg.st
		m.rung = ladder.Rung{}
		switch msg.st {
		case draft.StatusRedial, draft.StatusStale:
			m.phase = phaseEditing
			m.note = lastLine(m.engine.History())
		default:
			m.phase = phaseReviewing
		}
		return m, nil
	case commitMsg:
		if msg.err != nil {
			m.err = msg.err
			m.note = "commit failed; state kept, retry with c"
			return m, nil
		}
		m.record = msg.rec
		m.phase = phaseDone
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	}

	switch m.phase {
	case phaseEditing:
		return m.handleEditingKey(msg)
	case phaseGlimpsing:
		return m.handleGlimpsingKey(msg)
	case phaseReviewing:
		return m.handleReviewingKey(msg)
	case phaseConfirmBlind:
		switch msg.String() {
		case "y":
			m.result = draft.PreviewResult{}
			return m, m.commit(true)
		default:
			m.phase = phaseGlimpsing
			return m, nil
		}
	}
	return m, nil
}

func (m Model) handleEditingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab:
		m.focus = (m.focus + 1) % fieldCount
		m.syncFocus()
		return m, nil
	case tea.KeyCtrlG:
		return m, m.startGlimpse()
	case tea.KeyEsc:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	switch m.focus {
	case fieldText:
		m.text, cmd = m.text.Update(msg)
	case fieldGoal:
		m.goal, cmd = m.goal.Update(msg)
	case fieldConstraints:
		m.constr, cmd = m.constr.Update(msg)
	}
	return m, cmd
}

func (m *Model) syncFocus() {
	m.text.Blur()
	m.goal.Blur()
	m.constr.Blur()
	switch m.focus {
	case fieldText:
		m.text.Focus()
	case fieldGoal:
		m.goal.Focus()
	case fieldConstraints:
		m.constr.Focus()
	}
}

func (m Model) handleGlimpsingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	offered := map[ladder.Choice]bool{}
	for _, c := range m.rung.Choices {
		offered[c] = true
	}
	switch msg.String() {
	case "c":
		if offered[ladder.ChoiceCancel] && m.cancel != nil {
			m.cancel()
		}
	case "r":
		if offered[ladder.ChoiceRedial] {
			m.note = m.engine.Redial()
			if m.cancel != nil {
				m.cancel()
			}
		}
	case "e":
		if offered[ladder.ChoiceEssenceOnly] {
			m.engine.SetEssenceOnly(true)
			m.note = "essence-only for this attempt"
		}
	case "!":
		if offered[ladder.ChoiceCommitBlind] {
			m.phase = phaseConfirmBlind
		}
	}
	return m, nil
}

func (m Model) handleReviewingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	question := m.engine.Question()
	switch msg.String() {
	case "c":
		if m.status == draft.StatusAligned {
			return m, m.commit(false)
		}
		m.note = "not aligned; o commits anyway"
	case "o":
		return m, m.commit(true)
	case "a":
		m.phase = phaseEditing
		m.syncFocus()
	case "r":
		m.note = m.engine.Redial()
		m.phase = phaseEditing
	case "g":
		return m, m.startGlimpse()
	case "y", "n":
		if question == "" {
			break
		}
		if err := m.ensureAdjusted(); err != nil {
			m.note = err.Error()
			break
		}
		amended, err := m.engine.Answer(msg.String() == "y")
		if err != nil {
			m.note = err.Error()
			break
		}
		m.constr.SetValue(amended.Constraints)
		m.phase = phaseEditing
		m.syncFocus()
	case "q", "esc":
		return m, tea.Quit
	}
	return m, nil
}

// ensureAdjusted opens the adjust window before an answer is recorded,
// so the amended draft is the engine's working draft.
func (m *Model) ensureAdjusted() error {
	return m.engine.Adjust(m.working)
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	switch m.phase {
	case phaseEditing:
		b.WriteString(statusStyle.Render("Draft") + "\n")
		b.WriteString(m.text.View() + "\n")
		b.WriteString(m.goal.View() + "\n")
		b.WriteString(m.constr.View() + "\n")
		b.WriteString(helpStyle.Render("tab: next field · ctrl+g: glimpse · esc: quit"))
	case phaseGlimpsing:
		b.WriteString(m.spin.View() + " ")
		if m.rung.Status != "" {
			b.WriteString(statusStyle.Render(m.rung.Status))
		} else {
			b.WriteString(statusStyle.Render("…"))
		}
		b.WriteString("\n")
		if len(m.rung.Choices) > 0 {
			b.WriteString(helpStyle.Render(choiceHelp(m.rung.Choices)))
		}
	case phaseConfirmBlind:
		b.WriteString(deltaStyle.Render("Commit without preview?") + " ")
		b.WriteString(helpStyle.Render("y to confirm, any other key to keep waiting"))
	case phaseReviewing:
		b.WriteString(m.renderResult())
	case phaseDone:
		b.WriteString(alignedStyle.Render("Committed ") + m.record.ID + "\n")
	}

	if m.note != "" {
		b.WriteString("\n" + faintStyle.Render(m.note))
	}
	if hist := m.engine.History(); len(hist) > 0 {
		b.WriteString("\n\n" + faintStyle.Render(strings.Join(hist, " · ")))
	}
	return b.String()
}

func (m Model) renderResult() string {
	var b strings.Builder
	switch m.status {
	case draft.StatusAligned:
		b.WriteString(alignedStyle.Render(negotiate.LineAligned) + "\n")
	default:
		b.WriteString(deltaStyle.Render(negotiate.LineNotAligned) + "\n")
	}
	var body strings.Builder
	if m.result.Sample != "" {
		body.WriteString(m.result.Sample + "\n\n")
	}
	body.WriteString(faintStyle.Render(m.result.Essence))
	if m.result.Delta != "" {
		body.WriteString("\n" + deltaStyle.Render("Δ "+m.result.Delta))
	}
	b.WriteString(boxStyle.Render(body.String()) + "\n")

	keys := "a: adjust · r: redial · g: re-glimpse · q: quit"
	if m.status == draft.StatusAligned {
		keys = "c: commit · " + keys
	} else if m.engine.Question() != "" {
		keys = "y/n: answer · " + keys
	} else {
		keys = "o: commit anyway · " + keys
	}
	b.WriteString(helpStyle.Render(keys))
	return b.String()
}

func choiceHelp(choices []ladder.Choice) string {
	parts := make([]string, 0, len(choices))
	for _, c := range choices {
		switch c {
		case ladder.ChoiceCancel:
			parts = append(parts, "c: cancel (no attempt)")
		case ladder.ChoiceKeepWaiting:
			parts = append(parts, "k: keep waiting")
		case ladder.ChoiceRedial:
			parts = append(parts, "r: redial")
		case ladder.ChoiceEssenceOnly:
			parts = append(parts, "e: essence-only")
		case ladder.ChoiceCommitBlind:
			parts = append(parts, "!: commit without preview")
		}
	}
	return strings.Join(parts, " · ")
}

func lastLine(hist []string) string {
	if len(hist) == 0 {
		return ""
	}
	return hist[len(hist)-1]
}
