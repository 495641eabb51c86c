package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/domain"
)

// Terminal output styles.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Width(22)

	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	transcriptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

// qualityStyle colors a transcript quality label.
func qualityStyle(quality string) lipgloss.Style {
	switch quality {
	case domain.QualityExcellent, domain.QualityGood:
		return passStyle
	case domain.QualityFair:
		return warnStyle
	default:
		return failStyle
	}
}
