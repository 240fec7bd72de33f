package cli

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"

	"github.com/glorpus-work/pkgng/pkg/orchestrator"
)

// phaseStyle returns the style an event phase is printed with.
func phaseStyle(phase string) *pterm.Style {
	switch phase {
	case "installing", "upgrading":
		return pterm.NewStyle(pterm.FgGreen)
	case "removing":
		return pterm.NewStyle(pterm.FgYellow)
	case "failed", "skipped":
		return pterm.NewStyle(pterm.FgRed, pterm.Bold)
	default:
		return pterm.NewStyle(pterm.FgGray)
	}
}

// progressHooks prints applier events to w. Quiet mode only prints failures.
func progressHooks(w io.Writer, quiet bool) orchestrator.Hooks {
	return orchestrator.Hooks{OnEvent: func(e orchestrator.Event) {
		if e.Phase == "done" {
			return
		}
		if quiet && e.Phase != "failed" && e.Phase != "skipped" {
			return
		}
		label := phaseStyle(e.Phase).Sprintf("%-10s", e.Phase)
		if e.Origin != "" {
			_, _ = fmt.Fprintf(w, "%s %s: %s\n", label, e.Origin, e.Msg)
			return
		}
		_, _ = fmt.Fprintf(w, "%s %s\n", label, e.Msg)
	}}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
