package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/harshul/apprunner/internal/supervisor"
)

var (
	subtle     = lipgloss.AdaptiveColor{Light: "#666", Dark: "#999"}
	highlight  = lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"}
	success    = lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"}
	warning    = lipgloss.AdaptiveColor{Light: "#CC6600", Dark: "#FFAA00"}
	errorColor = lipgloss.AdaptiveColor{Light: "#AA0000", Dark: "#FF0000"}
	info       = lipgloss.AdaptiveColor{Light: "#0066CC", Dark: "#00AAFF"}
	dim        = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"}
)

// Styles holds the lipgloss styles of the console.
type Styles struct {
	App    lipgloss.Style
	Header lipgloss.Style
	Footer lipgloss.Style
	Title  lipgloss.Style

	StatusIdle     lipgloss.Style
	StatusStarting lipgloss.Style
	StatusRunning  lipgloss.Style
	StatusStopping lipgloss.Style
	StatusFailed   lipgloss.Style

	Usage       lipgloss.Style
	LogViewport lipgloss.Style
	Prompt      lipgloss.Style
	PromptKey   lipgloss.Style

	Help     lipgloss.Style
	HelpKey  lipgloss.Style
	HelpDesc lipgloss.Style
}

// DefaultStyles returns the default color scheme
func DefaultStyles() *Styles {
	return &Styles{
		App: lipgloss.NewStyle().
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(subtle),
		Footer: lipgloss.NewStyle().
			Foreground(subtle).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(subtle),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight),

		StatusIdle: lipgloss.NewStyle().
			Foreground(subtle),
		StatusStarting: lipgloss.NewStyle().
			Foreground(info),
		StatusRunning: lipgloss.NewStyle().
			Bold(true).
			Foreground(success),
		StatusStopping: lipgloss.NewStyle().
			Foreground(warning),
		StatusFailed: lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor),

		Usage: lipgloss.NewStyle().
			Foreground(dim),
		LogViewport: lipgloss.NewStyle(),
		Prompt: lipgloss.NewStyle().
			Bold(true).
			Foreground(warning),
		PromptKey: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight),

		Help: lipgloss.NewStyle().
			Foreground(subtle),
		HelpKey: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight),
		HelpDesc: lipgloss.NewStyle().
			Foreground(subtle),
	}
}

// status returns the style for a supervisor state.
func (s *Styles) status(state supervisor.State) lipgloss.Style {
	switch state {
	case supervisor.Starting, supervisor.Installing:
		return s.StatusStarting
	case supervisor.Running:
		return s.StatusRunning
	case supervisor.Stopping:
		return s.StatusStopping
	case supervisor.Failed:
		return s.StatusFailed
	default:
		return s.StatusIdle
	}
}
