// Package main is the entrypoint for weaverd, the per-user analysis worker.
package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/morezero/weaver/internal/config"
	"github.com/morezero/weaver/internal/server"
	"github.com/morezero/weaver/pkg/db"
	"github.com/morezero/weaver/pkg/schema"
	"github.com/morezero/weaver/pkg/wire"
)

const usage = `Usage: weaverd [command]
       weaverd serve [--socket-path P]   Serve analysis methods on a Unix socket.
       weaverd migrate up                Apply the diagnostics schema.
       weaverd migrate status            Show whether the schema is applied.
       weaverd ensure-db [name]          Create the database if missing (default: name in DATABASE_URL).
       weaverd import [file]             Replace the project's stored diagnostics with JSON lines from file (default stdin).
       weaverd clear                     Truncate stored diagnostics and reports; schema is preserved.

Commands:
  serve           (default) Start the worker. Normally spawned by weaver.
  migrate up      Run database migrations only.
  migrate status  Report migration status.
  ensure-db       Create the database on the DATABASE_URL host.
  import          Load diagnostics for the postgres backend.
  clear           Delete stored data.

Environment: WEAVER_SOCKET_PATH, WEAVERD_BACKEND (agent|postgres), WEAVERD_AGENT,
WEAVERD_PROJECT_DIR, DATABASE_URL, MIGRATION_PATH, RUN_MIGRATIONS, COMMS_URL, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("weaverd migrate: require subcommand (up, status)")
		}
		switch sub := args[1]; sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("weaverd migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("weaverd migrate status: %v", err)
			}
		default:
			log.Fatalf("weaverd migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "ensure-db":
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		if err := runEnsureDB(name); err != nil {
			log.Fatalf("weaverd ensure-db: %v", err)
		}
		return
	case "import":
		file := ""
		if len(args) > 1 {
			file = args[1]
		}
		if err := runImport(file); err != nil {
			log.Fatalf("weaverd import: %v", err)
		}
		return
	case "clear":
		if err := runClear(); err != nil {
			log.Fatalf("weaverd clear: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	var rest []string
	if len(args) > 0 {
		rest = args[1:]
	}
	socketPath, err := parseServeArgs(rest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weaverd serve: %v\n%s", err, usage)
		os.Exit(1)
	}
	if err := server.Run(socketPath); err != nil {
		log.Fatalf("weaverd: %v", err)
	}
}

// parseServeArgs accepts --socket-path P and --socket-path=P.
func parseServeArgs(args []string) (string, error) {
	socketPath := ""
	for i := 0; i < len(args); i++ {
		a := args[i]
		if v, ok := strings.CutPrefix(a, "--socket-path="); ok {
			a, socketPath = "", v
		} else if a == "--socket-path" {
			if i+1 >= len(args) || args[i+1] == "" {
				return "", fmt.Errorf("--socket-path requires a value")
			}
			i++
			a, socketPath = "", args[i]
		}
		if a != "" {
			return "", fmt.Errorf("unknown argument %q", a)
		}
	}
	if socketPath == "" && len(args) > 0 {
		return "", fmt.Errorf("--socket-path requires a value")
	}
	return socketPath, nil
}

func loadDBConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMigrateUp() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	migrations, err := db.LoadMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	return db.RunMigrations(ctx, pool, migrations)
}

func runMigrateStatus() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	applied, err := db.SchemaApplied(ctx, pool)
	if err != nil {
		return err
	}
	if applied {
		fmt.Println("schema: applied")
	} else {
		fmt.Println("schema: not applied (run weaverd migrate up)")
	}
	return nil
}

func runEnsureDB(name string) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	target, err := withDatabase(cfg.DatabaseURL, name)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), target); err != nil {
		return err
	}
	fmt.Println("Database is ready.")
	return nil
}

// withDatabase replaces the database name of rawURL when name is set.
func withDatabase(rawURL, name string) (string, error) {
	if name == "" {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + name
	return u.String(), nil
}

func runImport(file string) error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	diags, err := readDiagnostics(in)
	if err != nil {
		return err
	}

	project := cfg.ProjectDir
	if project == "" {
		if project, err = os.Getwd(); err != nil {
			return err
		}
	}
	if project, err = filepath.Abs(project); err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.NewRepository(pool).ReplaceDiagnostics(ctx, project, diags); err != nil {
		return err
	}
	fmt.Printf("Imported %d diagnostics for %s.\n", len(diags), project)
	return nil
}

// readDiagnostics decodes one diagnostic per non-blank line.
func readDiagnostics(r io.Reader) ([]schema.Diagnostic, error) {
	var diags []schema.Diagnostic
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var d schema.Diagnostic
		if err := wire.DecodeLine(line, &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if d.Type == "" {
			d.Type = schema.KindDiagnostic
		}
		if d.Type != schema.KindDiagnostic {
			return nil, fmt.Errorf("line %d: unexpected record type %q", n, d.Type)
		}
		diags = append(diags, d)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return diags, nil
}

func runClear() error {
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.ClearAll(ctx, pool); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}
