package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/odgrim/abathur-swarm/internal/types"
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
	runStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"})

	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"})
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"})
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

func init() {
	// Respect NO_COLOR / non-TTY output the way termenv's terminal
	// detection intends, rather than lipgloss's own default (which only
	// looks at the env, not the output stream lipgloss renders to).
	out := termenv.NewOutput(os.Stdout)
	if out.Profile == termenv.Ascii {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// statusStyle renders a status string colored by lifecycle stage.
func statusStyle(status types.Status) lipgloss.Style {
	switch status {
	case types.StatusReady:
		return passStyle
	case types.StatusRunning:
		return runStyle
	case types.StatusCompleted:
		return passStyle
	case types.StatusFailed, types.StatusCancelled:
		return failStyle
	case types.StatusBlocked, types.StatusPending:
		return warnStyle
	default:
		return mutedStyle
	}
}

func renderStatus(status types.Status) string {
	return statusStyle(status).Render(string(status))
}

func renderReadyBadge() string {
	return boldStyle.Render("[READY]")
}
