package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/zhouzirui/streamchat/internal/client"
)

// Run drives c in the terminal until the user quits or ctx ends.
func Run(ctx context.Context, c *client.Client, follow *Follow) error {
	p := tea.NewProgram(
		New(ctx, c, follow),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	cancel := c.Subscribe(func(v client.View) {
		p.Send(viewMsg(v))
	})
	defer cancel()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "run terminal ui")
	}
	return nil
}
