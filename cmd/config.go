package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/vibe/internal/config"
	"github.com/zjrosen/vibe/internal/paths"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the vibe configuration",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a commented default config file",
	Long:  `Write the default configuration to path, or to ~/.config/vibe/config.yaml.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := paths.UserConfigPath()
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Wrote"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := yaml.Marshal(effectiveConfig(cfg))
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// effectiveConfig mirrors config.Config with yaml keys and human-readable
// durations.
func effectiveConfig(c config.Config) map[string]any {
	return map[string]any{
		"log_level": c.LogLevel,
		"log_file":  c.LogFile,
		"storage": map[string]any{
			"backend": c.Storage.Backend,
			"dir":     c.Storage.Dir,
			"db_path": c.Storage.DBPath,
			"archive": c.Storage.Archive,
			"retry": map[string]any{
				"max_attempts": c.Storage.Retry.MaxAttempts,
				"base_delay":   c.Storage.Retry.BaseDelay.String(),
				"max_delay":    c.Storage.Retry.MaxDelay.String(),
				"multiplier":   c.Storage.Retry.Multiplier,
				"jitter":       c.Storage.Retry.Jitter,
			},
		},
		"monitor": map[string]any{
			"dormant_after":  c.Monitor.DormantAfter.String(),
			"stale_after":    c.Monitor.StaleAfter.String(),
			"archive_after":  c.Monitor.ArchiveAfter.String(),
			"history_size":   c.Monitor.HistorySize,
			"check_interval": c.Monitor.CheckInterval.String(),
			"auto_cleanup":   c.Monitor.AutoCleanup,
		},
		"session": map[string]any{
			"interactive":       c.Session.Interactive,
			"timeout":           c.Session.Timeout.String(),
			"continue_on_error": c.Session.ContinueOnError,
			"max_steps":         c.Session.MaxSteps,
			"auto_advance":      c.Session.AutoAdvance,
			"ai_agent_prefix":   c.Session.AgentPrefix,
			"ai_agent_suffix":   c.Session.AgentSuffix,
		},
		"workflows": map[string]any{
			"user_dir":  c.Workflows.UserDir,
			"community": c.Workflows.Community,
			"watch":     c.Workflows.Watch,
		},
		"tracing": map[string]any{
			"enabled":  c.Tracing.Enabled,
			"exporter": c.Tracing.Exporter,
			"endpoint": c.Tracing.Endpoint,
		},
		"server": map[string]any{
			"addr": c.Server.Addr,
		},
	}
}
