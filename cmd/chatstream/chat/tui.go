package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/conversation"
)

const (
	inputCharLimit = 4000

	// Lines below the transcript: status, input and help.
	chromeHeight = 4

	streamingCursor = "▍"
)

var (
	tuiTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	tuiStatusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tuiRuleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
)

type chatKeyMap struct {
	Send     key.Binding
	Cancel   key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

func (k chatKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Cancel, k.PageUp, k.PageDown, k.Quit}
}

func (k chatKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Send, k.Cancel}, {k.PageUp, k.PageDown, k.Quit}}
}

func defaultKeyMap() chatKeyMap {
	return chatKeyMap{
		Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Cancel:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop reply")),
		PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdown", "scroll down")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+c", "ctrl+d"), key.WithHelp("ctrl+c", "quit")),
	}
}

// snapshotMsg carries a Store snapshot into the program.
type snapshotMsg conversation.Snapshot

// turnDoneMsg reports the end of a Submit call.
type turnDoneMsg struct {
	err error
}

type chatModel struct {
	ctx    context.Context
	client *chat.Client
	snap   conversation.Snapshot

	// cancelTurn stops the turn in flight, nil when idle.
	cancelTurn context.CancelFunc
	lastErr    error

	viewport   viewport.Model
	input      textinput.Model
	spinner    spinner.Model
	help       help.Model
	keys       chatKeyMap
	width      int
	height     int
	ready      bool
	autoScroll bool

	// rendered caches glamour output of finished assistant messages by id.
	rendered      map[string]string
	renderedWidth int
}

func runTUI(ctx context.Context, client *chat.Client) error {
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
	lipgloss.SetHasDarkBackground(termenv.HasDarkBackground())

	model := newChatModel(ctx, client)
	program := bubbletea.NewProgram(model,
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
	)

	unsubscribe := client.Store().Subscribe(func(snap conversation.Snapshot) {
		program.Send(snapshotMsg(snap))
	})
	defer unsubscribe()

	_, err := program.Run()
	if errors.Is(err, bubbletea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func newChatModel(ctx context.Context, client *chat.Client) chatModel {
	input := textinput.New()
	input.Placeholder = "Ask about an order or a product"
	input.Prompt = userPrompt()
	input.CharLimit = inputCharLimit
	input.Focus()

	spin := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(cliui.AssistantStyle),
	)

	return chatModel{
		ctx:        ctx,
		client:     client,
		snap:       client.Store().Snapshot(),
		input:      input,
		spinner:    spin,
		help:       help.New(),
		keys:       defaultKeyMap(),
		autoScroll: true,
		rendered:   map[string]string{},
	}
}

func (m chatModel) Init() bubbletea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case snapshotMsg:
		m.snap = conversation.Snapshot(msg)
		m.refresh()
		return m, nil

	case turnDoneMsg:
		if m.cancelTurn != nil {
			m.cancelTurn()
			m.cancelTurn = nil
		}
		m.lastErr = msg.err
		m.snap = m.client.Store().Snapshot()
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.snap.Busy() && m.cancelTurn == nil {
			return m, nil
		}
		var cmd bubbletea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case bubbletea.KeyMsg:
		return m.handleKey(msg)

	case bubbletea.MouseMsg:
		var cmd bubbletea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.autoScroll = m.viewport.AtBottom()
		return m, cmd
	}

	var cmd bubbletea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.cancelTurn != nil {
			m.cancelTurn()
		}
		return m, bubbletea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.cancelTurn != nil {
			m.cancelTurn()
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd bubbletea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.autoScroll = m.viewport.AtBottom()
		return m, cmd

	case key.Matches(msg, m.keys.Send):
		return m.send()
	}

	var cmd bubbletea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send submits the input unless a turn is in flight or the input is blank.
// The input is kept while busy so nothing typed is lost.
func (m chatModel) send() (bubbletea.Model, bubbletea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.cancelTurn != nil || m.snap.Busy() {
		return m, nil
	}
	m.input.Reset()
	m.lastErr = nil
	m.autoScroll = true

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelTurn = cancel

	client := m.client
	submit := func() bubbletea.Msg {
		return turnDoneMsg{err: client.Submit(ctx, text)}
	}
	return m, bubbletea.Batch(submit, m.spinner.Tick)
}

func (m *chatModel) setSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width
	m.input.Width = max(width-lipgloss.Width(m.input.Prompt)-1, 1)

	vpHeight := max(height-chromeHeight-1, 1)
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.refresh()
}

func (m *chatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	if m.autoScroll {
		m.viewport.GotoBottom()
	}
}

func (m *chatModel) renderTranscript() string {
	if m.renderedWidth != m.width {
		clear(m.rendered)
		m.renderedWidth = m.width
	}

	wrap := lipgloss.NewStyle().Width(max(m.width-2, 1))

	var b strings.Builder
	for _, msg := range m.snap.Messages {
		switch {
		case msg.Role == conversation.RoleUser:
			b.WriteString(userPrompt())
			b.WriteString(wrap.Render(msg.Content))
			b.WriteString("\n\n")

		case msg.Streaming:
			b.WriteString(assistantPrompt())
			b.WriteString("\n")
			b.WriteString(wrap.Render(msg.Content + streamingCursor))
			b.WriteString("\n\n")

		case msg.Content == chat.FailureNotice:
			b.WriteString(assistantPrompt())
			b.WriteString("\n")
			b.WriteString(cliui.ErrorStyle.Render(wrap.Render(msg.Content)))
			b.WriteString("\n\n")

		default:
			b.WriteString(assistantPrompt())
			b.WriteString("\n")
			b.WriteString(m.renderMarkdown(msg))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (m *chatModel) renderMarkdown(msg conversation.Message) string {
	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}

	out, err := cliui.RenderMarkdown(msg.Content, m.width-2)
	if err != nil {
		out = msg.Content + "\n"
	}
	m.rendered[msg.ID] = out
	return out
}

func (m chatModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	return strings.Join([]string{
		m.viewport.View(),
		tuiRuleStyle.Render(strings.Repeat("─", max(m.width, 1))),
		m.statusLine(),
		m.input.View(),
		m.help.View(m.keys),
	}, "\n")
}

func (m chatModel) statusLine() string {
	title := tuiTitleStyle.Render("chatstream")

	var status string
	switch {
	case m.snap.Phase == conversation.PhaseSending:
		status = m.spinner.View() + " waiting for the assistant"
	case m.snap.Phase == conversation.PhaseStreaming:
		status = m.spinner.View() + " streaming reply"
	case errors.Is(m.lastErr, context.Canceled):
		status = cliui.WarnStyle.Render("reply stopped")
	case m.lastErr != nil:
		status = cliui.ErrorStyle.Render(m.lastErr.Error())
	case m.snap.SessionID != "":
		status = fmt.Sprintf("session %s", m.snap.SessionID)
	default:
		status = "new conversation"
	}

	return title + " " + tuiStatusStyle.Render(status)
}
