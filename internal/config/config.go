// Package config provides configuration types and defaults for vibe.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/zjrosen/vibe/internal/monitor"
	"github.com/zjrosen/vibe/internal/paths"
	"github.com/zjrosen/vibe/internal/retry"
	"github.com/zjrosen/vibe/internal/sessions/domain"
	"github.com/zjrosen/vibe/internal/tracing"
)

// EnvPrefix is prepended to environment overrides, e.g. VIBE_STORAGE_BACKEND.
const EnvPrefix = "VIBE"

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Tracing exporters.
const (
	ExporterStdout = tracing.ExporterStdout
	ExporterOTLP   = tracing.ExporterOTLP
)

// Config holds all configuration options for vibe.
type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	LogFile   string          `mapstructure:"log_file"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Session   SessionDefaults `mapstructure:"session"`
	Workflows WorkflowsConfig `mapstructure:"workflows"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Server    ServerConfig    `mapstructure:"server"`
}

// StorageConfig selects and configures the session backend.
type StorageConfig struct {
	// Backend is one of "file", "sqlite", "memory".
	Backend string `mapstructure:"backend"`
	// Dir holds one JSON file per session (file backend).
	Dir string `mapstructure:"dir"`
	// DBPath is the database file (sqlite backend).
	DBPath string `mapstructure:"db_path"`
	// Archive keeps removed sessions instead of deleting them.
	Archive bool        `mapstructure:"archive"`
	Retry   RetryConfig `mapstructure:"retry"`
}

// RetryConfig controls how failed saves are retried.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Jitter      float64       `mapstructure:"jitter"`
}

// MonitorConfig holds the session monitor thresholds.
type MonitorConfig struct {
	DormantAfter  time.Duration `mapstructure:"dormant_after"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	ArchiveAfter  time.Duration `mapstructure:"archive_after"`
	HistorySize   int           `mapstructure:"history_size"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	AutoCleanup   bool          `mapstructure:"auto_cleanup"`
}

// SessionDefaults are the flags given to sessions started without explicit
// configuration.
type SessionDefaults struct {
	Interactive     bool          `mapstructure:"interactive"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ContinueOnError bool          `mapstructure:"continue_on_error"`
	MaxSteps        int           `mapstructure:"max_steps"`
	AutoAdvance     bool          `mapstructure:"auto_advance"`
	AgentPrefix     bool          `mapstructure:"ai_agent_prefix"`
	AgentSuffix     bool          `mapstructure:"ai_agent_suffix"`
}

// WorkflowsConfig controls where workflow definitions come from.
type WorkflowsConfig struct {
	// UserDir holds user-defined workflow YAML files.
	UserDir string `mapstructure:"user_dir"`
	// Community lists opt-in community workflows by name.
	Community []string `mapstructure:"community"`
	// Watch reloads user workflows when files change.
	Watch bool `mapstructure:"watch"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"`
	Endpoint string `mapstructure:"endpoint"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	rp := retry.DefaultPolicy()
	mp := monitor.DefaultPolicy()
	sc := domain.DefaultSessionConfig()

	return Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Backend: BackendFile,
			Dir:     "~/" + paths.StateDirName + "/sessions",
			DBPath:  "~/" + paths.StateDirName + "/sessions.db",
			Retry: RetryConfig{
				MaxAttempts: rp.MaxAttempts,
				BaseDelay:   rp.BaseDelay,
				MaxDelay:    rp.MaxDelay,
				Multiplier:  rp.Multiplier,
				Jitter:      rp.Jitter,
			},
		},
		Monitor: MonitorConfig{
			DormantAfter:  mp.DormantAfter,
			StaleAfter:    mp.StaleAfter,
			ArchiveAfter:  mp.ArchiveAfter,
			HistorySize:   mp.HistorySize,
			CheckInterval: monitor.DefaultCheckInterval,
		},
		Session: SessionDefaults{
			Interactive:     sc.Interactive,
			Timeout:         sc.Timeout,
			ContinueOnError: sc.ContinueOnError,
			MaxSteps:        sc.MaxSteps,
			AutoAdvance:     sc.AutoAdvance,
			AgentPrefix:     sc.AgentPrefix,
			AgentSuffix:     sc.AgentSuffix,
		},
		Workflows: WorkflowsConfig{
			UserDir: "~/" + paths.StateDirName + "/workflows",
		},
		Tracing: TracingConfig{
			Exporter: ExporterStdout,
			Endpoint: "localhost:4317",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7420",
		},
	}
}

// SetDefaults registers every default on v so that env overrides and
// Unmarshal see the full key set.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.dir", d.Storage.Dir)
	v.SetDefault("storage.db_path", d.Storage.DBPath)
	v.SetDefault("storage.archive", d.Storage.Archive)
	v.SetDefault("storage.retry.max_attempts", d.Storage.Retry.MaxAttempts)
	v.SetDefault("storage.retry.base_delay", d.Storage.Retry.BaseDelay)
	v.SetDefault("storage.retry.max_delay", d.Storage.Retry.MaxDelay)
	v.SetDefault("storage.retry.multiplier", d.Storage.Retry.Multiplier)
	v.SetDefault("storage.retry.jitter", d.Storage.Retry.Jitter)

	v.SetDefault("monitor.dormant_after", d.Monitor.DormantAfter)
	v.SetDefault("monitor.stale_after", d.Monitor.StaleAfter)
	v.SetDefault("monitor.archive_after", d.Monitor.ArchiveAfter)
	v.SetDefault("monitor.history_size", d.Monitor.HistorySize)
	v.SetDefault("monitor.check_interval", d.Monitor.CheckInterval)
	v.SetDefault("monitor.auto_cleanup", d.Monitor.AutoCleanup)

	v.SetDefault("session.interactive", d.Session.Interactive)
	v.SetDefault("session.timeout", d.Session.Timeout)
	v.SetDefault("session.continue_on_error", d.Session.ContinueOnError)
	v.SetDefault("session.max_steps", d.Session.MaxSteps)
	v.SetDefault("session.auto_advance", d.Session.AutoAdvance)
	v.SetDefault("session.ai_agent_prefix", d.Session.AgentPrefix)
	v.SetDefault("session.ai_agent_suffix", d.Session.AgentSuffix)

	v.SetDefault("workflows.user_dir", d.Workflows.UserDir)
	v.SetDefault("workflows.community", d.Workflows.Community)
	v.SetDefault("workflows.watch", d.Workflows.Watch)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)

	v.SetDefault("server.addr", d.Server.Addr)
}

// ConfigCandidates lists the files Load tries, in order, when no explicit
// config file is given.
func ConfigCandidates() []string {
	return []string{".vibe.yaml", paths.UserConfigPath()}
}

// Load reads configuration into a Config. When file is empty the first
// existing entry of ConfigCandidates is used; having none is not an error.
// Environment variables prefixed with VIBE_ override file values. It returns
// the config file actually read, if any.
func Load(v *viper.Viper, file string) (Config, string, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file == "" {
		for _, candidate := range ConfigCandidates() {
			if _, err := os.Stat(candidate); err == nil {
				file = candidate
				break
			}
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, "", fmt.Errorf("reading config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, file, nil
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("storage.backend: unknown backend %q (want file, sqlite or memory)", c.Storage.Backend)
	}
	if c.Storage.Backend == BackendFile && c.Storage.Dir == "" {
		return errors.New("storage.dir is required for the file backend")
	}
	if c.Storage.Backend == BackendSQLite && c.Storage.DBPath == "" {
		return errors.New("storage.db_path is required for the sqlite backend")
	}
	if c.Storage.Retry.MaxAttempts < 1 {
		return fmt.Errorf("storage.retry.max_attempts must be at least 1: %d", c.Storage.Retry.MaxAttempts)
	}

	policy := c.MonitorPolicy()
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	if c.Monitor.CheckInterval < 0 {
		return fmt.Errorf("monitor.check_interval cannot be negative: %v", c.Monitor.CheckInterval)
	}
	if c.Session.Timeout < 0 {
		return fmt.Errorf("session.timeout cannot be negative: %s", c.Session.Timeout)
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case ExporterStdout, ExporterOTLP:
		default:
			return fmt.Errorf("tracing.exporter: unknown exporter %q (want stdout or otlp)", c.Tracing.Exporter)
		}
	}
	return nil
}

// RetryPolicy converts the storage retry settings.
func (c Config) RetryPolicy() retry.Policy {
	r := c.Storage.Retry
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
		Multiplier:  r.Multiplier,
		Jitter:      r.Jitter,
	}
}

// MonitorPolicy converts the monitor thresholds. Response history expires
// together with archive eligibility.
func (c Config) MonitorPolicy() monitor.Policy {
	m := c.Monitor
	return monitor.Policy{
		DormantAfter: m.DormantAfter,
		StaleAfter:   m.StaleAfter,
		ArchiveAfter: m.ArchiveAfter,
		HistorySize:  m.HistorySize,
		HistoryTTL:   m.ArchiveAfter,
	}
}

// SessionConfig converts the session defaults.
func (c Config) SessionConfig() domain.SessionConfig {
	s := c.Session
	return domain.SessionConfig{
		Interactive:     s.Interactive,
		Timeout:         s.Timeout,
		ContinueOnError: s.ContinueOnError,
		MaxSteps:        s.MaxSteps,
		AutoAdvance:     s.AutoAdvance,
		AgentPrefix:     s.AgentPrefix,
		AgentSuffix:     s.AgentSuffix,
	}
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Vibe Configuration

# Log level: debug, info, warn, error
log_level: info

# Write JSON logs to a file instead of stderr
# log_file: ~/.vibe/vibe.log

# Where workflow sessions are kept
storage:
  # file   - one JSON file per session in storage.dir
  # sqlite - a single database at storage.db_path
  # memory - nothing survives the process
  backend: file
  dir: ~/.vibe/sessions
  db_path: ~/.vibe/sessions.db

  # Keep removed sessions (archive/ dir or archived_at column)
  archive: false

  # Failed saves are retried with exponential backoff
  retry:
    max_attempts: 3
    base_delay: 100ms
    max_delay: 2s
    multiplier: 2
    jitter: 0.1

# Session health monitor
monitor:
  dormant_after: 10m     # Inactive this long -> dormant alert
  stale_after: 30m       # Inactive this long -> stale alert
  archive_after: 6h      # Sessions older than this are cleaned up
  history_size: 5        # Agent responses kept per session
  check_interval: 1m     # Background sweep interval (vibe monitor watch / serve)
  auto_cleanup: false    # Remove archive-eligible sessions during the sweep

# Flags applied to new sessions
session:
  interactive: false
  timeout: 30s           # Recorded but not enforced
  continue_on_error: false
  max_steps: 0
  auto_advance: false
  ai_agent_prefix: true  # Prefix instructions with the session header
  ai_agent_suffix: false # Append the "advance when done" reminder

# Workflow definitions
workflows:
  user_dir: ~/.vibe/workflows
  # Opt-in community workflows (run 'vibe workflows' to list them)
  # community:
  #   - dependency-audit
  #   - docs-refresh
  watch: false           # Reload user workflows when files change

# OpenTelemetry tracing
tracing:
  enabled: false
  exporter: stdout       # stdout or otlp
  endpoint: localhost:4317

# HTTP API (vibe serve)
server:
  addr: 127.0.0.1:7420
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	// Create parent directory if needed
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write the template
	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
