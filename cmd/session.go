package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/vibe/internal/log"
	"github.com/zjrosen/vibe/internal/sessions/application"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"s"},
	Short:   "Start and drive workflow sessions",
}

var startWorkflows []string

var sessionStartCmd = &cobra.Command{
	Use:   "start <prompt>",
	Short: "Start a session for a prompt",
	Long: `Start a workflow session. Workflows are taken from --workflow, in order,
or matched from the prompt against each workflow's triggers.

Example:
  vibe session start "add a login page" -w analysis -w implementation
  vibe session start "write tests for the parser"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			prompt := strings.Join(args, " ")
			names := startWorkflows
			if len(names) == 0 {
				for _, d := range rt.registry.Match(prompt) {
					names = append(names, d.Name)
				}
				log.Debug(log.CatSession, "Matched workflows", "prompt", prompt, "workflows", names)
			}
			out := rt.svc.StartSession(ctx, application.StartRequest{Prompt: prompt, Workflows: names})
			return report(cmd.OutOrStdout(), out, func(s application.SessionStatus) {
				printStatus(cmd.OutOrStdout(), s)
			})
		})
	},
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show the current step of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  statusCommand((*application.Service).Status),
}

var sessionNextCmd = &cobra.Command{
	Use:     "next <session-id>",
	Aliases: []string{"advance"},
	Short:   "Mark the current step done and move on",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			w := cmd.OutOrStdout()
			return report(w, rt.svc.Advance(ctx, args[0]), func(r application.AdvanceResult) {
				if r.Popped != "" {
					_, _ = fmt.Fprintf(w, "%s %s\n\n", successStyle.Render("Finished workflow"), r.Popped)
				}
				printStatus(w, r.Session)
			})
		})
	},
}

var sessionBackCmd = &cobra.Command{
	Use:   "back <session-id>",
	Short: "Go back one step",
	Args:  cobra.ExactArgs(1),
	RunE:  statusCommand((*application.Service).Back),
}

var sessionRestartCmd = &cobra.Command{
	Use:   "restart <session-id>",
	Short: "Restart the current workflow from its first step",
	Args:  cobra.ExactArgs(1),
	RunE:  statusCommand((*application.Service).Restart),
}

var sessionBreakCmd = &cobra.Command{
	Use:   "break <session-id>",
	Short: "Leave the current nested workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  statusCommand((*application.Service).Break),
}

var sessionPushCmd = &cobra.Command{
	Use:   "push <session-id> <workflow>",
	Short: "Nest a workflow on top of the current one",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			w := cmd.OutOrStdout()
			return report(w, rt.svc.PushWorkflow(ctx, args[0], args[1]), func(s application.SessionStatus) {
				printStatus(w, s)
			})
		})
	},
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			w := cmd.OutOrStdout()
			return report(w, rt.svc.ListSessions(ctx), func(list []application.SessionStatus) {
				if len(list) == 0 {
					_, _ = fmt.Fprintln(w, mutedStyle.Render("No sessions."))
					return
				}
				for _, s := range list {
					where := successStyle.Render("complete")
					if s.Current != nil {
						where = fmt.Sprintf("%s %d/%d", s.Current.WorkflowName, s.Current.StepNumber, s.Current.TotalSteps)
					}
					_, _ = fmt.Fprintf(w, "%s  %-30s  %s  %s\n", s.SessionID, truncate(s.Prompt, 30), where,
						mutedStyle.Render(s.LastAccessed.Local().Format("2006-01-02 15:04")))
				}
			})
		})
	},
}

var sessionRemoveCmd = &cobra.Command{
	Use:     "remove <session-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			return report(cmd.OutOrStdout(), rt.svc.RemoveSession(ctx, args[0]), nil)
		})
	},
}

var sessionArchivedCmd = &cobra.Command{
	Use:   "archived",
	Short: "List archived sessions",
	Long:  `List sessions kept by storage.archive after removal.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			w := cmd.OutOrStdout()
			return report(w, rt.svc.ListArchived(ctx), func(ids []string) {
				if len(ids) == 0 {
					_, _ = fmt.Fprintln(w, mutedStyle.Render("No archived sessions."))
					return
				}
				for _, id := range ids {
					_, _ = fmt.Fprintln(w, id)
				}
			})
		})
	},
}

func init() {
	sessionStartCmd.Flags().StringSliceVarP(&startWorkflows, "workflow", "w", nil, "workflow to run (repeatable, first is the base)")
	sessionCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print the raw JSON outcome")

	sessionCmd.AddCommand(
		sessionStartCmd,
		sessionStatusCmd,
		sessionNextCmd,
		sessionBackCmd,
		sessionRestartCmd,
		sessionBreakCmd,
		sessionPushCmd,
		sessionListCmd,
		sessionRemoveCmd,
		sessionArchivedCmd,
	)
	rootCmd.AddCommand(sessionCmd)
}

// withRuntime opens the configured runtime for the duration of fn.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(cmd.Context(), rt)
}

// statusCommand builds the RunE of a command that takes a session id and
// prints the resulting status.
func statusCommand(op func(*application.Service, context.Context, string) application.Outcome[application.SessionStatus]) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			w := cmd.OutOrStdout()
			return report(w, op(rt.svc, ctx, args[0]), func(s application.SessionStatus) {
				printStatus(w, s)
			})
		})
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
