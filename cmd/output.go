package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/zjrosen/vibe/internal/monitor"
	"github.com/zjrosen/vibe/internal/sessions/application"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"})
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#047857", Dark: "#73F59F"})
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#FF8787"}).Bold(true)

	severityStyles = map[monitor.Severity]lipgloss.Style{
		monitor.SeverityLow:    lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#54A0FF"}),
		monitor.SeverityMedium: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FECA57"}),
		monitor.SeverityHigh:   lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#FF8787"}).Bold(true),
	}
)

// jsonOutput is set by --json on commands that support it.
var jsonOutput bool

func severityLabel(s monitor.Severity) string {
	style, ok := severityStyles[s]
	if !ok {
		return strings.ToUpper(string(s))
	}
	return style.Render(strings.ToUpper(string(s)))
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// renderMarkdown renders md for w, falling back to the raw text when
// rendering fails.
func renderMarkdown(w io.Writer, md string) string {
	style := "notty"
	if isTerminal(w) {
		style = "dark"
		if !lipgloss.HasDarkBackground() {
			style = "light"
		}
	}
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle(style), glamour.WithWordWrap(100))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// report prints an outcome, as JSON with --json, and returns its error.
func report[T any](w io.Writer, out application.Outcome[T], print func(T)) error {
	if jsonOutput {
		if err := writeJSON(w, out); err != nil {
			return err
		}
		return out.Err()
	}
	if !out.Success {
		if out.Error != nil {
			_, _ = fmt.Fprintln(w, errorStyle.Render("Error:"), out.Error.Message)
		}
		return out.Err()
	}
	if print != nil {
		print(out.Data)
	}
	if out.Message != "" {
		_, _ = fmt.Fprintln(w, successStyle.Render(out.Message))
	}
	return nil
}

func printStatus(w io.Writer, s application.SessionStatus) {
	_, _ = fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Session"), s.SessionID)
	_, _ = fmt.Fprintf(w, "%s %s\n", mutedStyle.Render("Prompt: "), s.Prompt)
	if s.Complete || s.Current == nil {
		_, _ = fmt.Fprintln(w, successStyle.Render("All workflows complete."))
		return
	}

	names := make([]string, len(s.Stack))
	for i, f := range s.Stack {
		names[i] = fmt.Sprintf("%s (%d/%d)", f.Workflow, f.CurrentStep, f.TotalSteps)
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", mutedStyle.Render("Stack:  "), strings.Join(names, " > "))

	c := s.Current
	_, _ = fmt.Fprintf(w, "\n%s step %d of %d\n", titleStyle.Render(c.WorkflowName), c.StepNumber, c.TotalSteps)
	_, _ = fmt.Fprintln(w, c.Instruction)
	if c.Command != "" {
		cmdLine := c.Command
		if c.WorkingDir != "" {
			cmdLine = fmt.Sprintf("(cd %s && %s)", c.WorkingDir, c.Command)
		}
		_, _ = fmt.Fprintf(w, "%s %s\n", mutedStyle.Render("Run:"), cmdLine)
	}
}

func printAlert(w io.Writer, a monitor.Alert) {
	_, _ = fmt.Fprintf(w, "%-8s %s %s %s\n", severityLabel(a.Severity), a.SessionID,
		titleStyle.Render(string(a.Type)), a.Message)
}
