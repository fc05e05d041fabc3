// Package console is a terminal view of the bridge: it shows script messages
// and bridge events from the bus and queues typed lines as messages to
// script.
package console

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"hostbridge/pkg/bus"
)

type Options struct {
	BaseURI string
	// Reload backs the /reload command.
	Reload func() error
}

// Run blocks until the user quits or ctx ends. The console is the consumer
// of the bus's inbound queue while it runs.
func Run(ctx context.Context, mb *bus.MessageBus, opts Options) error {
	if mb == nil {
		return errors.New("message bus is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, unsubscribe := mb.SubscribeEvents(ctx, 256)
	defer unsubscribe()

	model := newModel(ctx, mb, events, opts)
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}

	return nil
}
