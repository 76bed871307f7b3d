// Package tui is the terminal frontend of the conversation.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xaenox/gigachat-bot/internal/conversation"
	"github.com/xaenox/gigachat-bot/internal/models"
)

var (
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	finalStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	suggestionStyle = lipgloss.NewStyle().Faint(true)
	activeStyle     = lipgloss.NewStyle().Underline(true)
	dividerStyle    = lipgloss.NewStyle().Faint(true)
)

// stateChangedMsg tells the model to reload the session state.
type stateChangedMsg struct{}

// Model is the Bubble Tea model for one conversation session.
type Model struct {
	ctx     context.Context
	session *conversation.Session
	changes chan struct{}

	state      conversation.State
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	suggestion int

	ready    bool
	width    int
	quitting bool
}

// New creates the model and subscribes it to session.
func New(ctx context.Context, session *conversation.Session) Model {
	ti := textinput.New()
	ti.Placeholder = "Tell me what tea you like..."
	ti.Prompt = "> "
	ti.CharLimit = 0
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	// Listeners must not block, so notifications coalesce into one pending signal.
	changes := make(chan struct{}, 1)
	session.Subscribe(func(prev, next conversation.State) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	return Model{
		ctx:        ctx,
		session:    session,
		changes:    changes,
		state:      session.State(),
		input:      ti,
		spinner:    s,
		suggestion: -1,
	}
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changes
		return stateChangedMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForChange(m.changes))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.layout(msg.Width, msg.Height)
		return m, nil

	case stateChangedMsg:
		m.state = m.session.State()
		m.refresh()
		return m, waitForChange(m.changes)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.submit()
			return m, nil
		case tea.KeyTab:
			m.nextSuggestion()
			return m, nil
		case tea.KeyEsc:
			m.session.Dispatch(m.ctx, conversation.Dismiss{})
			m.state = m.session.State()
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() != before {
			m.session.Dispatch(m.ctx, conversation.UpdateInput{Text: m.input.Value()})
		}
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit sends the typed text. The input is only cleared when the session
// accepted the turn, so text typed while a reply is pending is kept.
func (m *Model) submit() {
	before := len(m.session.State().Messages)
	m.session.Dispatch(m.ctx, conversation.Submit{Text: m.input.Value()})

	m.state = m.session.State()
	if len(m.state.Messages) > before {
		m.input.Reset()
		m.suggestion = -1
	}
	m.refresh()
}

// nextSuggestion cycles the input through the last reply's suggestions.
func (m *Model) nextSuggestion() {
	suggestions := m.suggestions()
	if len(suggestions) == 0 {
		return
	}
	m.suggestion = (m.suggestion + 1) % len(suggestions)
	m.input.SetValue(suggestions[m.suggestion])
	m.input.CursorEnd()
	m.session.Dispatch(m.ctx, conversation.UpdateInput{Text: m.input.Value()})
}

func (m Model) suggestions() []string {
	last, ok := m.state.LastReply()
	if !ok || m.state.IsLoading {
		return nil
	}
	return last.Suggestions
}

func (m *Model) layout(width, height int) {
	// divider, status line, suggestions and input
	chrome := 4
	h := height - chrome
	if h < 1 {
		h = 1
	}
	if !m.ready {
		m.viewport = viewport.New(width, h)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = h
	}
	m.input.Width = width - len(m.input.Prompt) - 1
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderTranscript(m.state.Messages, m.width))
	m.viewport.GotoBottom()
}

func renderTranscript(messages []models.Message, width int) string {
	if len(messages) == 0 {
		return suggestionStyle.Render("Say hello to start choosing your tea.")
	}

	wrap := lipgloss.NewStyle()
	if width > 0 {
		wrap = wrap.Width(width)
	}

	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch {
		case msg.IsUser:
			b.WriteString(userStyle.Render("You"))
		case msg.IsFinalRecommendation:
			b.WriteString(finalStyle.Render("🍵 Final recommendation"))
		default:
			b.WriteString(assistantStyle.Render("Tea expert"))
		}
		b.WriteString("\n")
		b.WriteString(wrap.Render(conversation.Render(msg)))
	}
	return b.String()
}

func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if !m.ready {
		return "  Initializing..."
	}

	var status string
	switch m.state.Phase() {
	case conversation.PhaseSending:
		status = m.spinner.View() + " Thinking..."
	case conversation.PhaseError:
		status = errorStyle.Render("⚠ "+m.state.Error) + suggestionStyle.Render("  (esc to dismiss)")
	}

	var hints string
	if suggestions := m.suggestions(); len(suggestions) > 0 {
		parts := make([]string, len(suggestions))
		for i, s := range suggestions {
			if i == m.suggestion {
				parts[i] = activeStyle.Render(s)
			} else {
				parts[i] = suggestionStyle.Render(s)
			}
		}
		hints = suggestionStyle.Render("tab: ") + strings.Join(parts, suggestionStyle.Render(" · "))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		dividerStyle.Render(strings.Repeat("─", max(m.width, 1))),
		status,
		hints,
		m.input.View(),
	)
}

// Run starts the terminal UI and blocks until the user quits or ctx is done.
func Run(ctx context.Context, session *conversation.Session, opts ...tea.ProgramOption) error {
	p := tea.NewProgram(New(ctx, session), append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)...)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
