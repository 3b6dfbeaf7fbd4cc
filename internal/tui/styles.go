package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor   = lipgloss.Color("#FF6B6B")
	secondaryColor = lipgloss.Color("#4ECDC4")
	accentColor    = lipgloss.Color("#FFE66D")
	mutedColor     = lipgloss.Color("#6C757D")
	successColor   = lipgloss.Color("#2ECC71")
	errorColor     = lipgloss.Color("#E74C3C")
	selectedBg     = lipgloss.Color("#2D2D44")
	fgColor        = lipgloss.Color("#EAEAEA")

	// Header
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	// Status bar
	statusBarStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	connectedStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	disconnectedStyle = lipgloss.NewStyle().
				Foreground(errorColor).
				Bold(true)

	runningStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	confirmationStyle = lipgloss.NewStyle().
				Foreground(successColor)

	// Panes
	activePaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	inactivePaneStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(mutedColor).
				Padding(0, 1)

	paneTitleStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Background(selectedBg).
			Foreground(accentColor).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(fgColor)

	monitoredStyle = lipgloss.NewStyle().
			Foreground(successColor)

	destinationStyle = lipgloss.NewStyle().
				Foreground(secondaryColor).
				Italic(true)

	timestampStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	emptyStateStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	// Detail panel
	fieldNameStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	fieldValueStyle = lipgloss.NewStyle().
			Foreground(fgColor)

	jsonKeyStyle    = lipgloss.NewStyle().Foreground(secondaryColor)
	jsonStringStyle = lipgloss.NewStyle().Foreground(successColor)
	jsonNumberStyle = lipgloss.NewStyle().Foreground(accentColor)
	jsonBoolStyle   = lipgloss.NewStyle().Foreground(primaryColor)
	jsonNullStyle   = lipgloss.NewStyle().Foreground(mutedColor)

	// Help bar
	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	// Utility styles
	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)
