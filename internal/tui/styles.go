package tui

import "github.com/charmbracelet/lipgloss"

// selectStyles holds the lipgloss styles for the selection picker.
type selectStyles struct {
	title   lipgloss.Style
	cursor  lipgloss.Style
	checked lipgloss.Style
	dim     lipgloss.Style
	errMsg  lipgloss.Style
	count   lipgloss.Style
	prompt  lipgloss.Style
}

func newSelectStyles() selectStyles {
	return selectStyles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Background(lipgloss.Color("236")).
			Padding(0, 2),
		cursor: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true),
		checked: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		dim: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		errMsg: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")),
		count: lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true),
		prompt: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true),
	}
}
