// Package tui is the terminal front end. It drives a monitor engine with
// key commands and renders whatever the engine reports through its event
// channel.
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/epalmerini/rabbitwatch/internal/config"
	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/monitor"
)

// Engine is the part of the monitor coordinator the UI drives.
type Engine interface {
	StartAll(ctx context.Context, queues, topics []string) error
	StartOne(ctx context.Context, name string, kind message.Kind) error
	Stop()
	Running() bool
	Monitored() (queues, topics []string)
	Snapshot() []message.Message
	Browse(ctx context.Context, queue string) monitor.BrowseResult
	Discover(ctx context.Context) (queues, topics []string)
}

// Deps wires the UI to the rest of the program.
type Deps struct {
	Engine Engine
	Events <-chan monitor.Event

	// Connect opens the broker connection for a profile ("" selects the
	// default resolution) and returns the address shown in the status bar.
	Connect func(ctx context.Context, profile string) (string, error)

	// File lists the profiles offered by the picker. The picker is shown
	// only when Profile is empty and more than one profile exists.
	File    config.FileConfig
	Profile string
	Config  config.Config

	ExportDir string
	Log       zerolog.Logger
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, deps Deps) error {
	p := tea.NewProgram(newAppModel(ctx, deps), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

// Tea messages
type (
	eventMsg struct{ ev monitor.Event }

	connectedMsg struct{ broker string }

	connectionErrorMsg struct{ err error }

	destinationsMsg struct{ queues, topics []string }

	commandDoneMsg struct {
		action string
		err    error
	}

	browseDoneMsg struct {
		queue string
		res   monitor.BrowseResult
	}

	clearStatusMsg struct{}
)

func waitForEvent(events <-chan monitor.Event) tea.Cmd {
	return func() tea.Msg {
		if events == nil {
			return nil
		}
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg{ev: ev}
	}
}

func connectCmd(ctx context.Context, connect func(context.Context, string) (string, error), profile string) tea.Cmd {
	return func() tea.Msg {
		if connect == nil {
			return connectedMsg{}
		}
		broker, err := connect(ctx, profile)
		if err != nil {
			return connectionErrorMsg{err: err}
		}
		return connectedMsg{broker: broker}
	}
}

func discoverCmd(ctx context.Context, e Engine) tea.Cmd {
	return func() tea.Msg {
		queues, topics := e.Discover(ctx)
		return destinationsMsg{queues: queues, topics: topics}
	}
}

func startOneCmd(ctx context.Context, e Engine, d message.Destination) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg{action: "monitoring " + d.String(), err: e.StartOne(ctx, d.Name, d.Kind)}
	}
}

func startAllCmd(ctx context.Context, e Engine, queues, topics []string) tea.Cmd {
	return func() tea.Msg {
		return commandDoneMsg{action: "monitoring all destinations", err: e.StartAll(ctx, queues, topics)}
	}
}

func stopCmd(e Engine) tea.Cmd {
	return func() tea.Msg {
		e.Stop()
		return commandDoneMsg{action: "stopped"}
	}
}

func browseCmd(ctx context.Context, e Engine, queue string) tea.Cmd {
	return func() tea.Msg {
		return browseDoneMsg{queue: queue, res: e.Browse(ctx, queue)}
	}
}
