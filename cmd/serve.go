package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/vibe/internal/frontend"
	"github.com/zjrosen/vibe/internal/log"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only session API over HTTP",
	Long: `Start an HTTP server exposing session health, status, alerts and response
analysis as JSON. The monitor runs in the background for the lifetime of the
server.

Example:
  vibe serve --addr 127.0.0.1:7420
  curl localhost:7420/api/sessions`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", addr, err)
		}

		watchWorkflows(ctx, rt.registry)
		if err := rt.monitor.Start(ctx); err != nil {
			_ = ln.Close()
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", ln.Addr())
		log.Info(log.CatHTTP, "Serving API", "addr", ln.Addr().String())
		return frontend.Serve(ctx, ln, frontend.NewHandler(rt.svc).Routes())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
	rootCmd.AddCommand(serveCmd)
}
