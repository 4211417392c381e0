package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/vibe/internal/log"
	"github.com/zjrosen/vibe/internal/mcp"
	"github.com/zjrosen/vibe/internal/workflow"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the session tools over MCP on stdio",
	Long: `Run an MCP server on stdin/stdout exposing session and monitor tools to a
coding agent. Logs go to the configured log file, never to stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		watchWorkflows(ctx, rt.registry)
		if err := rt.monitor.Start(ctx); err != nil {
			return err
		}

		srv := mcp.NewServer(rt.svc, rt.registry, version)
		log.Info(log.CatMCP, "Serving MCP on stdio", "tools", len(srv.ToolNames()))
		return srv.ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// watchWorkflows reloads user workflows in the background when
// workflows.watch is set.
func watchWorkflows(ctx context.Context, registry *workflow.Registry) {
	if !cfg.Workflows.Watch {
		return
	}
	log.SafeGo("workflow-watch", func() {
		if err := registry.Watch(ctx, workflow.DefaultDebounce); err != nil {
			log.ErrorErr(log.CatWorkflow, "Workflow watcher stopped", err)
		}
	})
}
