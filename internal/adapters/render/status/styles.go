package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title     lipgloss.Style
	header    lipgloss.Style
	device    lipgloss.Style
	kind      lipgloss.Style
	detail    lipgloss.Style
	warning   lipgloss.Style
	healthy   lipgloss.Style
	unhealthy lipgloss.Style
	section   lipgloss.Style
	empty     lipgloss.Style
	fieldKey  lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:     lipgloss.NewStyle().Bold(true),
		header:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		device:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		kind:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		detail:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warning:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		healthy:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		unhealthy: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:   lipgloss.NewStyle().MarginTop(1),
		empty:     lipgloss.NewStyle().Faint(true),
		fieldKey:  lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
	}
}
