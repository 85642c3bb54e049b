package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the program and blocks until the user quits or ctx ends.
// bridge, if non-nil, is attached so provider navigations and realtime
// messages reach the program.
func Run(ctx context.Context, opts Options, bridge *Bridge) error {
	m := New(ctx, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if bridge != nil {
		// Send blocks until the event loop runs, so flush from a goroutine.
		go bridge.Attach(p)
		defer bridge.Detach()
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
