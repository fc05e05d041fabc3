package console

import "github.com/charmbracelet/lipgloss"

// theme groups reusable styles for console regions.
type theme struct {
	header        lipgloss.Style
	headerMeta    lipgloss.Style
	divider       lipgloss.Style
	inboundTag    lipgloss.Style
	outboundTag   lipgloss.Style
	eventTag      lipgloss.Style
	errorTag      lipgloss.Style
	entryText     lipgloss.Style
	timestamp     lipgloss.Style
	status        lipgloss.Style
	statusBusy    lipgloss.Style
	statusErr     lipgloss.Style
	hint          lipgloss.Style
	inputLabel    lipgloss.Style
	input         lipgloss.Style
	viewport      lipgloss.Style
	stateRunning  lipgloss.Style
	stateStopping lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("24")),
		headerMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("153")),
		divider: lipgloss.NewStyle().
			Foreground(lipgloss.Color("31")),
		inboundTag: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("44")).
			Padding(0, 1),
		outboundTag: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("214")).
			Padding(0, 1),
		eventTag: lipgloss.NewStyle().
			Foreground(lipgloss.Color("16")).
			Background(lipgloss.Color("109")).
			Padding(0, 1),
		errorTag: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1),
		entryText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		timestamp: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		status: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Bold(true),
		statusBusy: lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")).
			Bold(true),
		statusErr: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		inputLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")),
		input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("31")).
			Background(lipgloss.Color("236")).
			Padding(0, 1),
		viewport: lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("31")).
			Background(lipgloss.Color("233")).
			Padding(0, 1),
		stateRunning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")).
			Bold(true),
		stateStopping: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")),
	}
}
