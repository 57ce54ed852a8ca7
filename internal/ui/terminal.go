// Package ui provides terminal styling and output helpers for the mn CLI.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Shared palette. Adaptive colors keep output readable on light and dark
// terminals.
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7D79F6"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "#0E8A16", Dark: "#4AC26B"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#B08800", Dark: "#D4A72C"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#FF6A69"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#768390"}
)

var (
	TitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent).Align(lipgloss.Center)
	BorderStyle = lipgloss.NewStyle().Foreground(ColorMuted)
)

// RenderPass styles success markers.
func RenderPass(s string) string { return PassStyle.Render(s) }

// RenderWarn styles warning markers.
func RenderWarn(s string) string { return WarnStyle.Render(s) }

// RenderFail styles failure markers.
func RenderFail(s string) string { return FailStyle.Render(s) }

// IsTerminal reports whether stdout is a TTY.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor follows the NO_COLOR and CLICOLOR conventions, falling
// back to TTY detection.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	return IsTerminal()
}

// Width returns the terminal width, or 80 when it cannot be determined.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// DarkBackground reports whether the terminal background is dark; used to
// pick the markdown style.
func DarkBackground() bool {
	return termenv.NewOutput(os.Stdout).HasDarkBackground()
}
