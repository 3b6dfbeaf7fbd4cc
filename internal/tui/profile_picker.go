package tui

import (
	"fmt"
	"net/url"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/epalmerini/rabbitwatch/internal/config"
)

type profileSelectedMsg struct {
	name string
}

type profilePickerModel struct {
	profiles    map[string]config.Profile
	names       []string
	selectedIdx int
	width       int
	height      int
}

func newProfilePickerModel(fc config.FileConfig) profilePickerModel {
	return profilePickerModel{
		profiles: fc.Profiles,
		names:    fc.ProfileNames(),
	}
}

func (m profilePickerModel) Init() tea.Cmd {
	return nil
}

func (m profilePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "j", "down":
			if m.selectedIdx < len(m.names)-1 {
				m.selectedIdx++
			}
		case "k", "up":
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		case "enter":
			if len(m.names) > 0 {
				name := m.names[m.selectedIdx]
				return m, func() tea.Msg {
					return profileSelectedMsg{name: name}
				}
			}
		}
	}
	return m, nil
}

// profileSummary describes where a profile connects without its password.
func profileSummary(p config.Profile) string {
	if p.URL != "" {
		u, err := url.Parse(p.URL)
		if err != nil {
			return "(invalid url)"
		}
		if u.User != nil {
			u.User = url.User(u.User.Username())
		}
		return u.String()
	}
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	if p.Port != 0 {
		host = fmt.Sprintf("%s:%d", host, p.Port)
	}
	if p.Protocol != "" {
		host = p.Protocol + " " + host
	}
	return host
}

func (m profilePickerModel) View() string {
	var sb strings.Builder

	sb.WriteString(headerStyle.Width(max(m.width-2, 20)).Render("rabbitwatch"))
	sb.WriteString("\n\n")

	sb.WriteString(fieldNameStyle.Render("  Select a connection profile"))
	sb.WriteString("\n\n")

	for i, name := range m.names {
		cursor := "  "
		if i == m.selectedIdx {
			cursor = "> "
		}

		line := cursor + name
		if i == m.selectedIdx {
			line = selectedStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString(mutedStyle.Render("  " + profileSummary(m.profiles[name])))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			helpKeyStyle.Render("j/k")+" navigate",
			"  │  ",
			helpKeyStyle.Render("enter")+" select",
			"  │  ",
			helpKeyStyle.Render("q")+" quit",
		),
	))

	return sb.String()
}
