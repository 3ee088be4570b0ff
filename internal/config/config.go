// Package config provides weaver and weaverd configuration loaded from
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/weaver/pkg/sockets"
)

const logPrefix = "config:LoadConfig"

// Backends weaverd can serve analysis from.
const (
	BackendAgent    = "agent"
	BackendPostgres = "postgres"
)

// Config holds configuration shared by the CLI and the worker.
type Config struct {
	// Socket location
	RuntimeDir string `envconfig:"XDG_RUNTIME_DIR"`
	SocketPath string `envconfig:"WEAVER_SOCKET_PATH"`

	// Client
	Debug         string        `envconfig:"WEAVER_DEBUG"`
	DaemonBin     string        `envconfig:"WEAVERD_BIN"`
	ProbeTimeout  time.Duration `envconfig:"WEAVER_PROBE_TIMEOUT" default:"1s"`
	StartAttempts int           `envconfig:"WEAVER_START_ATTEMPTS" default:"50"`
	StartInterval time.Duration `envconfig:"WEAVER_START_INTERVAL" default:"100ms"`

	// Worker analysis backend
	Backend      string        `envconfig:"WEAVERD_BACKEND" default:"agent"`
	Agent        string        `envconfig:"WEAVERD_AGENT" default:"serena-agent@>=0.1.0"`
	AgentTimeout time.Duration `envconfig:"WEAVERD_AGENT_TIMEOUT" default:"5m"`
	ProjectDir   string        `envconfig:"WEAVERD_PROJECT_DIR"`

	// Database (postgres backend, migrate, clear)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH"`

	// COMMS: call events are published only when COMMSURL is set.
	COMMSURL     string `envconfig:"COMMS_URL"`
	COMMSName    string `envconfig:"SERVICE_NAME" default:"weaverd"`
	EventSubject string `envconfig:"WEAVERD_EVENT_SUBJECT"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	return &c, nil
}

// ResolvedSocketPath returns WEAVER_SOCKET_PATH, or the per-user default
// under RuntimeDir.
func (c *Config) ResolvedSocketPath() string {
	if c.SocketPath != "" {
		return c.SocketPath
	}
	return sockets.PathFor(c.RuntimeDir, sockets.CurrentUser())
}

// DebugEnabled reports whether WEAVER_DEBUG is set to a truthy value.
func (c *Config) DebugEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(c.Debug)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// SlogLevel maps LogLevel to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidateForServe checks required config when running the worker.
func (c *Config) ValidateForServe() error {
	switch c.Backend {
	case BackendAgent:
		if c.Agent == "" {
			return fmt.Errorf("%s - WEAVERD_AGENT is required for the agent backend", logPrefix)
		}
		if c.AgentTimeout <= 0 {
			return fmt.Errorf("%s - WEAVERD_AGENT_TIMEOUT must be positive", logPrefix)
		}
	case BackendPostgres:
		if err := c.ValidateForDB(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s - WEAVERD_BACKEND must be %q or %q, got %q", logPrefix, BackendAgent, BackendPostgres, c.Backend)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// ValidateForClient checks the CLI's start budget.
func (c *Config) ValidateForClient() error {
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("%s - WEAVER_PROBE_TIMEOUT must be positive", logPrefix)
	}
	if c.StartAttempts <= 0 {
		return fmt.Errorf("%s - WEAVER_START_ATTEMPTS must be positive", logPrefix)
	}
	if c.StartInterval <= 0 {
		return fmt.Errorf("%s - WEAVER_START_INTERVAL must be positive", logPrefix)
	}
	return nil
}
