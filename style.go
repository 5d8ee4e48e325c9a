package main

import "github.com/charmbracelet/lipgloss"

func keyword(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Render(s)
}

func paragraph(s string) string {
	return lipgloss.NewStyle().Width(78).Padding(0, 2).Render(s)
}

func errorStyle(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Render(s)
}

func faint(s string) string {
	return lipgloss.NewStyle().Faint(true).Render(s)
}
