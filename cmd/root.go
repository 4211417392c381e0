// Package cmd implements the vibe command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/vibe/communityworkflows"
	"github.com/zjrosen/vibe/internal/config"
	"github.com/zjrosen/vibe/internal/infrastructure/filestore"
	"github.com/zjrosen/vibe/internal/infrastructure/sqlite"
	"github.com/zjrosen/vibe/internal/log"
	"github.com/zjrosen/vibe/internal/monitor"
	"github.com/zjrosen/vibe/internal/paths"
	"github.com/zjrosen/vibe/internal/sessions/application"
	"github.com/zjrosen/vibe/internal/sessions/domain"
	"github.com/zjrosen/vibe/internal/tracing"
	"github.com/zjrosen/vibe/internal/workflow"
)

var (
	cfgFile  string
	logLevel string
	cfg      config.Config
	version  = "dev"

	closeLog        = func() {}
	shutdownTracing tracing.ShutdownFunc
)

var rootCmd = &cobra.Command{
	Use:   "vibe",
	Short: "Guide coding agents through nested workflows",
	Long: `vibe keeps a stack of workflows per session so a coding agent always knows
which step comes next, can nest a sub-workflow and return to where it was, and
gets nudged when it forgets to finish.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		teardown(cmd.Context())
	},
}

// Execute runs the root command.
func Execute(v string) error {
	if v != "" {
		version = v
	}
	rootCmd.Version = version
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./.vibe.yaml or ~/.config/vibe/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

func setup(cmd *cobra.Command, _ []string) error {
	loaded, used, err := config.Load(viper.New(), cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logFile, err := paths.ExpandHome(cfg.LogFile)
	if err != nil {
		return err
	}
	closer, err := log.Init(log.Options{Level: cfg.LogLevel, File: logFile})
	if err != nil {
		return err
	}
	closeLog = closer
	if used != "" {
		log.Debug(log.CatConfig, "Loaded config", "file", used)
	}

	shutdownTracing, err = tracing.Setup(cmd.Context(), tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "vibe",
		Version:     version,
	})
	return err
}

func teardown(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(ctx); err != nil {
			log.ErrorErr(log.CatTrace, "Failed to flush traces", err)
		}
	}
	closeLog()
}

// runtime bundles the components a command works with.
type runtime struct {
	svc      *application.Service
	store    *application.Store
	monitor  *monitor.Monitor
	registry *workflow.Registry
	close    func()
}

// buildRuntime wires storage, workflows, the monitor and the service from c.
func buildRuntime(c config.Config, onAlert monitor.AlertCallback) (*runtime, error) {
	registry, err := newRegistry(c)
	if err != nil {
		return nil, err
	}

	repo, closeRepo, err := newRepository(c)
	if err != nil {
		return nil, err
	}

	storeOpts := []application.StoreOption{
		application.WithRetryPolicy(c.RetryPolicy()),
		application.WithInactivityThresholds(c.Monitor.DormantAfter, c.Monitor.StaleAfter),
	}
	var store *application.Store
	if repo == nil {
		store = application.NewMemoryStore(storeOpts...)
	} else {
		// mcp, serve and monitor watch share the backend with short-lived
		// commands, so every read goes back to it.
		store = application.NewStore(repo, append(storeOpts, application.WithReloadOnRead())...)
	}

	mon := monitor.New(store, monitor.Config{
		Policy:        c.MonitorPolicy(),
		CheckInterval: c.Monitor.CheckInterval,
		AutoCleanup:   c.Monitor.AutoCleanup,
		OnAlert:       onAlert,
	})
	svc := application.NewService(store, mon, registry, application.WithSessionDefaults(c.SessionConfig()))

	return &runtime{
		svc:      svc,
		store:    store,
		monitor:  mon,
		registry: registry,
		close: func() {
			mon.Stop()
			closeRepo()
		},
	}, nil
}

func newRegistry(c config.Config) (*workflow.Registry, error) {
	userDir, err := paths.ExpandHome(c.Workflows.UserDir)
	if err != nil {
		return nil, err
	}
	registry, err := workflow.NewRegistry(workflow.Options{
		Community: &workflow.CommunitySource{
			FS:      communityworkflows.FS(),
			Enabled: c.Workflows.Community,
		},
		UserDir: userDir,
	})
	if err != nil {
		return nil, fmt.Errorf("loading workflows: %w", err)
	}
	return registry, nil
}

// newRepository opens the configured backend. The memory backend returns a
// nil repository.
func newRepository(c config.Config) (domain.SessionRepository, func(), error) {
	switch c.Storage.Backend {
	case config.BackendMemory:
		return nil, func() {}, nil
	case config.BackendSQLite:
		db, err := sqlite.NewDB(c.Storage.DBPath)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				log.ErrorErr(log.CatDB, "Failed to close database", err)
			}
		}
		return db.SessionRepository(sqlite.WithSoftDelete(c.Storage.Archive)), closeDB, nil
	default:
		repo, err := filestore.New(c.Storage.Dir, filestore.WithArchive(c.Storage.Archive))
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	}
}

// openRuntime is buildRuntime for the current command's config.
func openRuntime() (*runtime, error) {
	return buildRuntime(cfg, nil)
}
