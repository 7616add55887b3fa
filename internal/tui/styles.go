package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles of the chat screen.
type Styles struct {
	Header    lipgloss.Style
	Footer    lipgloss.Style
	Panel     lipgloss.Style
	Active    lipgloss.Style
	Cursor    lipgloss.Style
	Preview   lipgloss.Style
	Pending   lipgloss.Style
	Self      lipgloss.Style
	Other     lipgloss.Style
	Timestamp lipgloss.Style
	Error     lipgloss.Style
}

func DefaultStyles() Styles {
	primary := lipgloss.Color("#7C3AED")
	muted := lipgloss.Color("#6B7280")

	return Styles{
		Header: lipgloss.NewStyle().
			Background(primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(muted).
			Padding(0, 1),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),

		Active: lipgloss.NewStyle().
			Foreground(primary).
			Bold(true),

		Cursor: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#4C1D95")),

		Preview: lipgloss.NewStyle().
			Foreground(muted),

		Pending: lipgloss.NewStyle().
			Foreground(muted).
			Italic(true),

		Self: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true),

		Other: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true),

		Timestamp: lipgloss.NewStyle().
			Foreground(muted),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")),
	}
}
