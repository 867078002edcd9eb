package ui

import "github.com/charmbracelet/lipgloss"

// Color palette. One accent color, everything else neutral.
const (
	ColorCyan     = "51"  // Primary accent
	ColorCyanDim  = "37"  // Dimmed accent for secondary labels
	ColorWhite    = "255" // Answer text, headers
	ColorGray     = "245" // Paths, scores, metadata
	ColorDarkGray = "238" // Separators
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings, stale markers
	ColorGreen    = "78"  // Ingested markers
)

// Styles holds the render styles for CLI output.
type Styles struct {
	Header  lipgloss.Style
	Answer  lipgloss.Style
	Source  lipgloss.Style
	Score   lipgloss.Style
	Snippet lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
}

// DefaultStyles returns styled components for terminal output.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorCyan)),
		Answer:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWhite)),
		Source:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorCyanDim)),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Snippet: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)).Italic(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGreen)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
	}
}

// NoColorStyles returns unstyled components for pipes and NO_COLOR.
func NoColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Answer:  lipgloss.NewStyle(),
		Source:  lipgloss.NewStyle(),
		Score:   lipgloss.NewStyle(),
		Snippet: lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
	}
}
