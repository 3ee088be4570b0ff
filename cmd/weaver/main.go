// Package main is the entrypoint for weaver, the thin CLI that forwards one
// request to the per-user weaverd worker and prints its response.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/morezero/weaver/internal/client"
	"github.com/morezero/weaver/internal/config"
	"github.com/morezero/weaver/pkg/sockets"
)

const usage = `Usage: weaver <method> [--severity S] [--file F ...]
       weaver check-socket [path]

Shortcuts:
  status        project-status
  onboard       onboard-project
  diagnostics   list-diagnostics (filters: --severity S, --file F, repeatable)
  deps          check-dependencies
  methods       list-methods

Any other method name is forwarded as is. weaverd is started on demand.
Each response record is printed as one JSON line on stdout.

Exit status: 0 on success; 1 on a dependency error, a worker start failure
or an I/O error.

Environment: WEAVER_SOCKET_PATH, XDG_RUNTIME_DIR, WEAVERD_BIN, WEAVER_DEBUG,
WEAVER_PROBE_TIMEOUT, WEAVER_START_ATTEMPTS, WEAVER_START_INTERVAL.
`

var shortcuts = map[string]string{
	"status":      "project-status",
	"onboard":     "onboard-project",
	"diagnostics": "list-diagnostics",
	"deps":        "check-dependencies",
	"methods":     "list-methods",
}

// invocation is a parsed command line.
type invocation struct {
	help        bool
	checkSocket bool
	socketPath  string
	method      string
	params      map[string]any
}

func parseArgs(args []string) (*invocation, error) {
	if len(args) == 0 {
		return nil, errors.New("missing method")
	}
	switch args[0] {
	case "help", "-h", "--help":
		return &invocation{help: true}, nil
	case "check-socket":
		if len(args) > 2 {
			return nil, errors.New("check-socket takes at most one path")
		}
		inv := &invocation{checkSocket: true}
		if len(args) == 2 {
			inv.socketPath = args[1]
		}
		return inv, nil
	}

	method := args[0]
	if strings.HasPrefix(method, "-") {
		return nil, fmt.Errorf("expected a method before %q", method)
	}
	if m, ok := shortcuts[method]; ok {
		method = m
	}

	inv := &invocation{method: method}
	var files []string
	for i := 1; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		if name != "--severity" && name != "--file" {
			return nil, fmt.Errorf("unknown argument %q", args[i])
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("%s requires a value", name)
			}
			i++
			value = args[i]
		}
		if name == "--severity" {
			if inv.params == nil {
				inv.params = map[string]any{}
			}
			inv.params["severity"] = value
		} else {
			files = append(files, value)
		}
	}
	if len(files) > 0 {
		if inv.params == nil {
			inv.params = map[string]any{}
		}
		inv.params["files"] = files
	}
	return inv, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	inv, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "weaver: %v\n%s", err, usage)
		return 1
	}
	if inv.help {
		fmt.Fprint(stdout, usage)
		return 0
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "weaver: %v\n", err)
		return 1
	}
	level := slog.LevelWarn
	if cfg.DebugEnabled() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	if err := cfg.ValidateForClient(); err != nil {
		fmt.Fprintf(stderr, "weaver: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if inv.checkSocket {
		path := inv.socketPath
		if path == "" {
			path = cfg.ResolvedSocketPath()
		}
		if sockets.CanConnect(ctx, path, cfg.ProbeTimeout) {
			fmt.Fprintf(stdout, "socket available: %s\n", path)
			return 0
		}
		fmt.Fprintf(stdout, "socket unavailable: %s\n", path)
		return 1
	}

	caller := client.NewCaller(client.NewSupervisor(client.NewSupervisorParams{
		Spawner:      &client.ExecSpawner{Binary: cfg.DaemonBin, Debug: cfg.DebugEnabled()},
		ProbeTimeout: cfg.ProbeTimeout,
		Attempts:     cfg.StartAttempts,
		Interval:     cfg.StartInterval,
	}))

	var params any
	if inv.params != nil {
		params = inv.params
	}
	return exitCode(caller.Call(ctx, inv.method, params, cfg.ResolvedSocketPath(), stdout), stderr)
}

// exitCode reports err on stderr and maps it to the process status.
func exitCode(err error, stderr io.Writer) int {
	var startErr *client.StartError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, client.ErrDependency):
		fmt.Fprintln(stderr, "weaver: weaverd reported a missing or unusable dependency (run `weaver deps`)")
	case errors.As(err, &startErr):
		fmt.Fprintf(stderr, "weaver: %v (socket %s)\n", startErr, startErr.Path)
	default:
		fmt.Fprintf(stderr, "weaver: %v\n", err)
	}
	return 1
}
