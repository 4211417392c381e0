package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/vibe/internal/log"
	"github.com/zjrosen/vibe/internal/monitor"
	"github.com/zjrosen/vibe/internal/sessions/application"
)

var monitorCmd = &cobra.Command{
	Use:     "monitor",
	Aliases: []string{"m"},
	Short:   "Check session health and nudge forgetful agents",
}

var (
	checkIntervene    bool
	checkDormantAfter time.Duration
	checkStaleAfter   time.Duration
)

var monitorCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the health checks once and list alerts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			if checkDormantAfter > 0 || checkStaleAfter > 0 {
				p := rt.monitor.Policy()
				if checkDormantAfter > 0 {
					p.DormantAfter = checkDormantAfter
				}
				if checkStaleAfter > 0 {
					p.StaleAfter = checkStaleAfter
				}
				if err := p.Validate(); err != nil {
					return err
				}
				rt.monitor.SetPolicy(p)
			}
			w := cmd.OutOrStdout()
			return report(w, rt.svc.CheckHealth(ctx), func(alerts []monitor.Alert) {
				if len(alerts) == 0 {
					_, _ = fmt.Fprintln(w, successStyle.Render("All sessions healthy."))
					return
				}
				for _, a := range alerts {
					printAlert(w, a)
					if checkIntervene {
						printIntervention(ctx, w, rt.svc, a)
					}
				}
			})
		})
	},
}

var monitorAnalyzeCmd = &cobra.Command{
	Use:   "analyze <session-id> [response]",
	Short: "Check an agent response for a forgotten workflow completion",
	Long: `Analyze an agent response. The response is read from the remaining
arguments, or from stdin when none are given.

Example:
  vibe monitor analyze 1a2b3c4d "All done, the feature is complete."
  agent-cli run | vibe monitor analyze 1a2b3c4d`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[1:], " ")
		if text == "" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}
			text = string(data)
		}
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			w := cmd.OutOrStdout()
			return report(w, rt.svc.AnalyzeResponse(ctx, args[0], text), func(a application.Analysis) {
				if a.Alert == nil {
					return
				}
				printAlert(w, *a.Alert)
				_, _ = fmt.Fprint(w, renderMarkdown(w, a.Intervention))
			})
		})
	},
}

var (
	cleanupInactive time.Duration
	cleanupPurge    time.Duration
)

var monitorCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove sessions past the archive age",
	Long: `Remove sessions older than monitor.archive_after. With --inactive, remove
every session that has not been touched for the given duration instead.
With --purge-archived, permanently delete archived records older than the
given duration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			w := cmd.OutOrStdout()
			if cleanupPurge > 0 {
				return report(w, rt.svc.PurgeArchived(ctx, cleanupPurge), nil)
			}
			if cleanupInactive > 0 {
				return report(w, rt.svc.CleanupInactive(ctx, cleanupInactive), nil)
			}
			return report(w, rt.svc.CleanupStale(ctx), func(ids []string) {
				for _, id := range ids {
					_, _ = fmt.Fprintln(w, mutedStyle.Render("removed"), id)
				}
			})
		})
	},
}

var monitorSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize session health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			w := cmd.OutOrStdout()
			if jsonOutput {
				return report(w, rt.svc.MonitorSummary(ctx), nil)
			}
			health := rt.svc.HealthSummary(ctx)
			if err := report(w, health, func(h application.HealthSummary) {
				_, _ = fmt.Fprintf(w, "%s %d total, %d active, %d completed, %d dormant, %d stale\n",
					titleStyle.Render("Sessions:"), h.Total, h.Active, h.Completed, h.Dormant, h.Stale)
			}); err != nil {
				return err
			}
			return report(w, rt.svc.MonitorSummary(ctx), func(s monitor.StatusSummary) {
				for _, d := range s.Sessions {
					_, _ = fmt.Fprintf(w, "  %s  %-30s  step %d/%d  idle %s  %s\n",
						d.SessionID, strings.Join(d.Workflows, " > "), d.CurrentStep, d.TotalSteps,
						d.InactiveFor, mutedStyle.Render(strings.Join(d.AlertTypes, ",")))
				}
			})
		})
	},
}

var monitorWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the health checks continuously",
	Long: `Sweep sessions every monitor.check_interval and print each alert until
interrupted. Archive-eligible sessions are removed when monitor.auto_cleanup
is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := cmd.OutOrStdout()
		rt, err := buildRuntime(cfg, func(a monitor.Alert) { printAlert(w, a) })
		if err != nil {
			return err
		}
		defer rt.close()

		if err := rt.monitor.Start(ctx); err != nil {
			return err
		}
		log.Info(log.CatMonitor, "Watching sessions", "interval", cfg.Monitor.CheckInterval)
		rt.monitor.Sweep(ctx)
		<-ctx.Done()
		return nil
	},
}

func init() {
	monitorCheckCmd.Flags().BoolVar(&checkIntervene, "intervene", false, "print the intervention message for each alert")
	monitorCheckCmd.Flags().DurationVar(&checkDormantAfter, "dormant-after", 0, "override monitor.dormant_after for this check")
	monitorCheckCmd.Flags().DurationVar(&checkStaleAfter, "stale-after", 0, "override monitor.stale_after for this check")
	monitorCleanupCmd.Flags().DurationVar(&cleanupInactive, "inactive", 0, "remove sessions idle this long (e.g. 2h)")
	monitorCleanupCmd.Flags().DurationVar(&cleanupPurge, "purge-archived", 0, "delete archived records older than this (e.g. 168h)")
	monitorCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print the raw JSON outcome")

	monitorCmd.AddCommand(
		monitorCheckCmd,
		monitorAnalyzeCmd,
		monitorCleanupCmd,
		monitorSummaryCmd,
		monitorWatchCmd,
	)
	rootCmd.AddCommand(monitorCmd)
}

func printIntervention(ctx context.Context, w io.Writer, svc *application.Service, a monitor.Alert) {
	out := svc.Intervention(ctx, a)
	if !out.Success {
		return
	}
	_, _ = fmt.Fprint(w, renderMarkdown(w, out.Data))
}
