package tui

import "github.com/charmbracelet/lipgloss"

// Styles contains lipgloss styles for the TUI
type Styles struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Status    lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Muted     lipgloss.Style
	Border    lipgloss.Style
	Unread    lipgloss.Style
	Selected  lipgloss.Style
	Help      lipgloss.Style
	Key       lipgloss.Style
	KeyDesc   lipgloss.Style
	Highlight lipgloss.Style
}

// DefaultStyles returns the default lipgloss styles
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("169")). // Rose
			MarginBottom(1),
		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		Status: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")), // Cyan
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")), // Red
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("46")), // Green
		Warning: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")), // Amber
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("169")).
			Padding(0, 2),
		Unread: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")),
		Selected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("169")).
			Bold(true),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1),
		Key: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("169")),
		KeyDesc: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Highlight: lipgloss.NewStyle().
			Background(lipgloss.Color("169")).
			Foreground(lipgloss.Color("230")).
			Bold(true).
			Padding(0, 1),
	}
}
