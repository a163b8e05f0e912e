// Package tui is the terminal front end of the chat client.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/streamchat/internal/client"
	"github.com/zhouzirui/streamchat/internal/client/scroll"
)

const (
	inputHeight  = 3
	statusHeight = 1
)

type viewMsg client.View

type submitDoneMsg struct{}

// Model is the bubbletea model. Every call into the client runs inside a
// tea.Cmd: the client notifies subscribers synchronously and the
// subscription feeds Program.Send.
type Model struct {
	ctx    context.Context
	client *client.Client
	follow *Follow
	keys   KeyMap

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	renderer *renderer

	view   client.View
	width  int
	height int
	ready  bool
}

// New builds the model. follow must be the Viewport the client was
// constructed with.
func New(ctx context.Context, c *client.Client, follow *Follow) Model {
	input := textinput.New()
	input.Placeholder = "Type your message..."
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	vp.KeyMap = viewportKeys()

	return Model{
		ctx:      ctx,
		client:   c,
		follow:   follow,
		keys:     DefaultKeyMap(),
		viewport: vp,
		input:    input,
		spinner:  spin,
		renderer: newRenderer(80),
		view:     c.View(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case viewMsg:
		m.view = client.View(msg)
		m.refresh()
		return m, nil

	case submitDoneMsg:
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.view.Busy {
			m.refresh()
		}
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, tea.Batch(cmd, m.scrolled())

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Submit):
			text := m.input.Value()
			if m.view.Busy || strings.TrimSpace(text) == "" {
				return m, nil
			}
			m.input.Reset()
			return m, m.submit(text)

		case key.Matches(msg, m.keys.Clear):
			return m, m.clear()

		case key.Matches(msg, m.keys.JumpToEnd):
			m.viewport.GotoBottom()
			return m, m.jumpToEnd()

		case isScrollKey(m.viewport.KeyMap, msg):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, tea.Batch(cmd, m.scrolled())
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if !m.ready {
		return "\n  Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.statusLine(),
		inputBorderStyle.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	vpHeight := height - inputHeight - statusHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.input.Width = width - 6
	m.renderer.resize(width)
	m.ready = true

	m.refresh()
	if m.view.NearBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderer.conversation(m.view.Messages, m.spinner.View()))
	if m.follow != nil && m.follow.take() {
		m.viewport.GotoBottom()
	}
}

func (m Model) statusLine() string {
	var parts []string
	if m.view.UnreadCount > 0 {
		label := "new message"
		if m.view.UnreadCount > 1 {
			label = "new messages"
		}
		parts = append(parts, badgeStyle.Render(fmt.Sprintf("↓ %d %s (C-e)", m.view.UnreadCount, label)))
	}

	help := make([]string, 0, len(m.keys.help()))
	for _, b := range m.keys.help() {
		help = append(help, b.Help().Key+" "+b.Help().Desc)
	}
	parts = append(parts, statusStyle.Render(strings.Join(help, " • ")))
	return strings.Join(parts, " ")
}

func (m Model) position() scroll.Position {
	return scroll.Position{
		Offset:  m.viewport.YOffset,
		Height:  m.viewport.Height,
		Content: m.viewport.TotalLineCount(),
	}
}

func (m Model) scrolled() tea.Cmd {
	c, pos := m.client, m.position()
	return func() tea.Msg {
		c.Scrolled(pos)
		return nil
	}
}

func (m Model) submit(text string) tea.Cmd {
	c, ctx := m.client, m.ctx
	return func() tea.Msg {
		c.Submit(ctx, text)
		return submitDoneMsg{}
	}
}

func (m Model) clear() tea.Cmd {
	c, ctx := m.client, m.ctx
	return func() tea.Msg {
		c.Clear(ctx)
		return nil
	}
}

func (m Model) jumpToEnd() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		c.JumpToEnd()
		return nil
	}
}

func isScrollKey(km viewport.KeyMap, msg tea.KeyMsg) bool {
	return key.Matches(msg, km.PageDown, km.PageUp, km.HalfPageDown, km.HalfPageUp, km.Up, km.Down)
}
