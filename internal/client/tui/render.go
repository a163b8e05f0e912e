package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/streamchat/internal/model/chat"
)

var (
	userLabelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	botLabelStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	systemLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	thinkingStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))
	userTextStyle    = lipgloss.NewStyle().PaddingLeft(2)
	badgeStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("214")).Padding(0, 1)
	statusStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	inputBorderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62"))
)

type renderedMessage struct {
	text string
	out  string
}

// renderer turns messages into terminal text. Bot replies are markdown.
type renderer struct {
	width int
	md    *glamour.TermRenderer
	cache map[string]renderedMessage
}

func newRenderer(width int) *renderer {
	r := &renderer{cache: make(map[string]renderedMessage)}
	r.resize(width)
	return r
}

func (r *renderer) resize(width int) {
	if width <= 0 {
		width = 80
	}
	if width == r.width && r.md != nil {
		return
	}
	r.width = width
	r.cache = make(map[string]renderedMessage)

	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		r.md = nil
		return
	}
	r.md = md
}

func (r *renderer) conversation(msgs []chat.Message, spin string) string {
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		parts = append(parts, r.message(msg, spin))
	}
	r.prune(msgs)
	return strings.Join(parts, "\n")
}

func (r *renderer) prune(msgs []chat.Message) {
	if len(r.cache) <= len(msgs) {
		return
	}
	live := make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		live[msg.ID] = struct{}{}
	}
	for id := range r.cache {
		if _, ok := live[id]; !ok {
			delete(r.cache, id)
		}
	}
}

func (r *renderer) message(msg chat.Message, spin string) string {
	switch {
	case msg.IsThinking:
		return botLabelStyle.Render("Assistant") + "\n  " + thinkingStyle.Render(spin+" Thinking...")
	case msg.Sender == chat.SenderUser:
		return userLabelStyle.Render("You") + "\n" + userTextStyle.Width(r.width-2).Render(msg.Text)
	case msg.Sender == chat.SenderSystem:
		return systemLabelStyle.Render("System") + "\n" + userTextStyle.Render(msg.Text)
	}
	return botLabelStyle.Render("Assistant") + "\n" + r.markdown(msg)
}

func (r *renderer) markdown(msg chat.Message) string {
	if cached, ok := r.cache[msg.ID]; ok && cached.text == msg.Text {
		return cached.out
	}
	out := userTextStyle.Render(msg.Text)
	if r.md != nil {
		if rendered, err := r.md.Render(msg.Text); err == nil {
			out = strings.TrimRight(rendered, "\n")
		}
	}
	r.cache[msg.ID] = renderedMessage{text: msg.Text, out: out}
	return out
}
