package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

type appView int

const (
	appViewPicker appView = iota
	appViewMonitor
)

type appModel struct {
	ctx  context.Context
	deps Deps
	view appView

	picker  profilePickerModel
	monitor model

	width, height int
}

// newAppModel starts on the profile picker only when no profile was chosen
// and there is more than one to choose from.
func newAppModel(ctx context.Context, deps Deps) appModel {
	m := appModel{ctx: ctx, deps: deps}
	if deps.Profile == "" && len(deps.File.Profiles) > 1 {
		m.view = appViewPicker
		m.picker = newProfilePickerModel(deps.File)
		return m
	}
	m.view = appViewMonitor
	m.monitor = newModel(ctx, deps, deps.Profile)
	return m
}

func (m appModel) Init() tea.Cmd {
	if m.view == appViewPicker {
		return m.picker.Init()
	}
	return m.monitor.Init()
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case profileSelectedMsg:
		m.view = appViewMonitor
		m.monitor = newModel(m.ctx, m.deps, msg.name)
		m.monitor.width, m.monitor.height = m.width, m.height
		return m, m.monitor.Init()
	}

	switch m.view {
	case appViewPicker:
		updated, cmd := m.picker.Update(msg)
		m.picker = updated.(profilePickerModel)
		return m, cmd
	default:
		updated, cmd := m.monitor.Update(msg)
		m.monitor = updated.(model)
		return m, cmd
	}
}

func (m appModel) View() string {
	if m.view == appViewPicker {
		return m.picker.View()
	}
	return m.monitor.View()
}
