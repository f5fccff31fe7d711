package main

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/flixtube/internal/ui"
)

// helpRule styles every match of re. style receives the submatches and
// returns the replacement text.
type helpRule struct {
	re    *regexp.Regexp
	style func(m []string) string
}

// helpRules are applied in order to Cobra's plain-text help.
var helpRules = []helpRule{
	// "Services:", "Flags:" and other section headers.
	{
		re:    regexp.MustCompile(`(?m)^([A-Z][^\n]*:)[ \t]*$`),
		style: func(m []string) string { return ui.RenderAccent(m[1]) },
	},
	// Command names in a command list.
	{
		re:    regexp.MustCompile(`(?m)^(  )(\S+)(  )`),
		style: func(m []string) string { return m[1] + ui.RenderCommand(m[2]) + m[3] },
	},
	// Flag value types, e.g. "--limit int".
	{
		re:    regexp.MustCompile(`(--?\S+\s+)(string|int|duration)\b`),
		style: func(m []string) string { return m[1] + ui.RenderMuted(m[2]) },
	},
	{
		re:    regexp.MustCompile(`\(default "[^"]*"\)`),
		style: func(m []string) string { return ui.RenderMuted(m[0]) },
	},
}

// colorizedHelpFunc returns a Cobra help function that colors the default
// help text when the terminal supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}

		out := cmd.OutOrStdout()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)

		fmt.Fprint(out, colorizeHelpOutput(buf.String()))
	}
}

func colorizeHelpOutput(s string) string {
	for _, r := range helpRules {
		s = r.re.ReplaceAllStringFunc(s, func(match string) string {
			return r.style(r.re.FindStringSubmatch(match))
		})
	}
	return s
}
