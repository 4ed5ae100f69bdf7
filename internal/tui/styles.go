package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	colorRed       = lipgloss.Color("#ff5555")
	colorGreen     = lipgloss.Color("#50fa7b")
	colorYellow    = lipgloss.Color("#f1fa8c")
	colorBlue      = lipgloss.Color("#8be9fd")
	colorPurple    = lipgloss.Color("#bd93f9")
	colorDim       = lipgloss.Color("#6272a4")
	colorFg        = lipgloss.Color("#f8f8f2")
	colorOrange    = lipgloss.Color("#ffb86c")
	colorBorder    = lipgloss.Color("#44475a")
	colorHighlight = lipgloss.Color("#44475a")
)

// Style definitions.
var (
	// Header
	titleStyle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	statusRunningStyle = lipgloss.NewStyle().
				Foreground(colorBlue).
				Bold(true)

	statusDoneStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	statusFailedStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Bold(true)

	elapsedStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	// Phase checklist
	phaseDoneStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	phaseActiveStyle = lipgloss.NewStyle().
				Foreground(colorBlue).
				Bold(true)

	phasePendingStyle = lipgloss.NewStyle().
				Foreground(colorDim)

	phaseDurationStyle = lipgloss.NewStyle().
				Foreground(colorDim)

	// Panes
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	paneTitleStyle = lipgloss.NewStyle().
			Foreground(colorOrange).
			Bold(true)

	paneTitleDimStyle = lipgloss.NewStyle().
				Foreground(colorDim)

	thinkingStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Italic(true)

	eventTimeStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	eventKindStyle = lipgloss.NewStyle().
			Foreground(colorPurple)

	docRowStyle = lipgloss.NewStyle().
			Foreground(colorFg)

	docRowAltStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorHighlight)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	// Bars
	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorBorder)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorBlue)

	helpBarStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)
