// Package style holds the lipgloss styles of the recording screen.
package style

import (
	"github.com/alkime/memo/internal/session"
	"github.com/charmbracelet/lipgloss"
)

const (
	pink   = lipgloss.Color("205")
	grey   = lipgloss.Color("241")
	red    = lipgloss.Color("196")
	green  = lipgloss.Color("42")
	orange = lipgloss.Color("214")
)

var (
	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(pink)

	// Timer renders the elapsed mm:ss counter.
	Timer = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("255"))

	// Prompt frames the microphone settings prompt.
	Prompt = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(orange).
		Foreground(orange).
		Padding(0, 1)

	Fault = lipgloss.NewStyle().
		Foreground(red)

	HintText = lipgloss.NewStyle().
			Foreground(grey)

	HintKey = lipgloss.NewStyle().
		Foreground(pink).
		Bold(true)

	badges = map[session.Phase]lipgloss.Style{
		session.PhaseIdle:      lipgloss.NewStyle().Foreground(grey),
		session.PhaseRecording: lipgloss.NewStyle().Foreground(red).Bold(true),
		session.PhasePlaying:   lipgloss.NewStyle().Foreground(green).Bold(true),
	}
)

// Badge renders label in the color of phase.
func Badge(phase session.Phase, label string) string {
	return badges[phase].Render(label)
}
