package main

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4ECDC4"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#95E1D3"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)
