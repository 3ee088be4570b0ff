// Package server runs weaverd: it wires the analysis backend, the method
// registry, optional COMMS call events and the socket transport.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/weaver/internal/analysis"
	"github.com/morezero/weaver/internal/config"
	"github.com/morezero/weaver/internal/transport"
	"github.com/morezero/weaver/pkg/commsutil"
	"github.com/morezero/weaver/pkg/db"
	"github.com/morezero/weaver/pkg/events"
)

const logPrefix = "server:server"

// Run loads configuration, serves on socketPath (the configured path when
// empty) and blocks until SIGINT or SIGTERM.
func Run(socketPath string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}

	// stdout may be discarded by the spawning client; log to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	if socketPath == "" {
		socketPath = cfg.ResolvedSocketPath()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, socketPath)
}

// resources are closed when the worker stops.
type resources struct {
	nc   *comms.Conn
	pool *pgxpool.Pool
}

func (r *resources) close() {
	if r.nc != nil {
		r.nc.Drain()
	}
	if r.pool != nil {
		r.pool.Close()
	}
}

func run(ctx context.Context, cfg *config.Config, socketPath string) error {
	slog.Info(fmt.Sprintf("%s - Starting weaverd (pid %d, backend %s)", logPrefix, os.Getpid(), cfg.Backend))

	res := &resources{}
	defer res.close()

	backend, err := newBackend(ctx, cfg, res)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg, res)
	if err != nil {
		return err
	}

	reg, err := NewMethodRegistry(backend)
	if err != nil {
		return fmt.Errorf("%s - failed to register methods: %w", logPrefix, err)
	}

	ln, err := transport.Listen(socketPath)
	if err != nil {
		return fmt.Errorf("%s - failed to listen: %w", logPrefix, err)
	}

	srv := transport.NewServer(transport.NewServerParams{Registry: reg, Publisher: publisher})
	slog.Info(fmt.Sprintf("%s - weaverd is ready on %s (%d methods)", logPrefix, socketPath, len(reg.Methods())))

	if err := srv.Serve(ctx, ln); err != nil {
		return fmt.Errorf("%s - serve: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// projectDir returns the absolute project directory, the working directory
// by default.
func projectDir(cfg *config.Config) (string, error) {
	dir := cfg.ProjectDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("%s - failed to get working directory: %w", logPrefix, err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%s - invalid project dir %s: %w", logPrefix, dir, err)
	}
	return abs, nil
}

func newBackend(ctx context.Context, cfg *config.Config, res *resources) (analysis.Backend, error) {
	project, err := projectDir(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		res.pool = pool
		if cfg.RunMigrations {
			migrations, err := db.LoadMigrations(cfg.MigrationPath)
			if err != nil {
				return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
		slog.Info(fmt.Sprintf("%s - Serving stored diagnostics for %s", logPrefix, project))
		return analysis.NewPostgresBackend(db.NewRepository(pool), project), nil
	default:
		b, err := analysis.NewAgentBackend(analysis.NewAgentBackendParams{
			Requirement: cfg.Agent,
			ProjectDir:  project,
			Timeout:     cfg.AgentTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("%s - invalid WEAVERD_AGENT: %w", logPrefix, err)
		}
		slog.Info(fmt.Sprintf("%s - Using agent %s for %s", logPrefix, cfg.Agent, project))
		return b, nil
	}
}

func newPublisher(cfg *config.Config, res *resources) (events.EventPublisher, error) {
	if cfg.COMMSURL == "" {
		slog.Debug(fmt.Sprintf("%s - COMMS_URL not set, call events disabled", logPrefix))
		return &events.NoOpPublisher{}, nil
	}
	nc, err := commsutil.Connect(commsutil.ConnectParams{URL: cfg.COMMSURL, Name: cfg.COMMSName})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	res.nc = nc
	return events.NewCommsPublisher(nc, &events.CommsPublisherOpts{
		Subject: cfg.EventSubject,
		Service: cfg.COMMSName,
	}), nil
}
