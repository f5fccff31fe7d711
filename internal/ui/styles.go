// Package ui styles terminal output of the flixtube CLI.
package ui

import "fmt"

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorFail   = 203 // red
)

var noColor bool

func render(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderStatus colors a health or subscriber status: green when ok is true,
// red otherwise.
func RenderStatus(s string, ok bool) string {
	if ok {
		return render(colorOK, s)
	}
	return render(colorFail, s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// ConfigureColor disables color unless stdout supports it.
func ConfigureColor() {
	if !ShouldUseColor() {
		ForceNoColor()
	}
}
