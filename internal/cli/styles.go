package cli

import "github.com/charmbracelet/lipgloss"

// theme holds the REPL output styles.
type theme struct {
	Prompt lipgloss.Style
	Ok     lipgloss.Style
	Value  lipgloss.Style
	Miss   lipgloss.Style
	Error  lipgloss.Style
	Subtle lipgloss.Style
}

func newTheme() theme {
	return theme{
		Prompt: lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true),
		Ok:     lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
		Value:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#FAFAFA"}),
		Miss:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")).Italic(true),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true),
		Subtle: lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C")),
	}
}
