package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zjrosen/vibe/communityworkflows"
	"github.com/zjrosen/vibe/internal/workflow"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows [query]",
	Short: "List available workflows",
	Long: `Display all workflows available to sessions, including built-in, enabled
community, and user-defined workflows. A query filters by name, description,
category, or trigger.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWorkflows,
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
}

func runWorkflows(cmd *cobra.Command, args []string) error {
	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	if len(args) == 1 {
		matches := registry.Search(args[0])
		if len(matches) == 0 {
			_, _ = fmt.Fprintf(w, "No workflows match %q\n", args[0])
			return nil
		}
		printWorkflows(w, matches, true)
		return nil
	}

	// Get workflows grouped by source
	builtinWorkflows := registry.ListBySource(workflow.SourceBuiltIn)
	communityWorkflows := registry.ListBySource(workflow.SourceCommunity)
	userDefinedWorkflows := registry.ListBySource(workflow.SourceUser)

	_, _ = fmt.Fprintln(w, titleStyle.Render("Built-in Workflows:"))
	printWorkflows(w, builtinWorkflows, false)
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, titleStyle.Render("Community Workflows:"))
	if len(communityWorkflows) == 0 {
		_, _ = fmt.Fprintln(w, "  (none enabled, configure in workflows.community)")
		if available, err := workflow.LoadFS(communityworkflows.FS(), workflow.SourceCommunity); err == nil && len(available) > 0 {
			_, _ = fmt.Fprintln(w, mutedStyle.Render("  available:"))
			printWorkflows(w, available, false)
		}
	} else {
		printWorkflows(w, communityWorkflows, false)
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("User Workflows (%s):", registry.UserDir())))
	printWorkflows(w, userDefinedWorkflows, false)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Start a session with: vibe session start \"<prompt>\" -w <workflow>")

	return nil
}

func printWorkflows(w io.Writer, defs []*workflow.Definition, withSource bool) {
	if len(defs) == 0 {
		_, _ = fmt.Fprintln(w, "  (none)")
		return
	}
	maxLen := maxNameLen(defs)
	for _, d := range defs {
		desc := d.Description
		if d.Kind == workflow.KindChecklist {
			desc = "[checklist] " + desc
		}
		if withSource {
			desc = fmt.Sprintf("%s %s", desc, mutedStyle.Render("("+d.Source.String()+")"))
		}
		_, _ = fmt.Fprintf(w, "  %-*s  %s\n", maxLen, d.Name, desc)
	}
}

// maxNameLen returns the length of the longest workflow name in the slice.
func maxNameLen(defs []*workflow.Definition) int {
	maxLen := 0
	for _, d := range defs {
		if len(d.Name) > maxLen {
			maxLen = len(d.Name)
		}
	}
	return maxLen
}
