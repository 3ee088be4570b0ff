package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

const spawnerLogPrefix = "client:spawner"

// DaemonName is the worker binary looked up next to the CLI and on PATH.
const DaemonName = "weaverd"

// ExecSpawner starts the worker binary as a detached process.
type ExecSpawner struct {
	// Binary overrides the lookup (WEAVERD_BIN).
	Binary string
	// Debug keeps the worker's stdout and stderr attached to ours.
	Debug bool
}

// Spawn runs `weaverd serve --socket-path <path>` in its own session and
// releases it; the worker outlives the CLI.
func (s *ExecSpawner) Spawn(_ context.Context, socketPath string) error {
	bin, err := s.resolve()
	if err != nil {
		return err
	}

	// Not CommandContext: the worker must survive the caller.
	cmd := exec.Command(bin, "serve", "--socket-path", socketPath)
	cmd.SysProcAttr = detachedAttr()
	if s.Debug {
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s - start %s: %w", spawnerLogPrefix, bin, err)
	}
	slog.Debug(fmt.Sprintf("%s - spawned %s (pid %d)", spawnerLogPrefix, bin, cmd.Process.Pid))
	return cmd.Process.Release()
}

// resolve finds the worker binary: Binary, then a sibling of the running
// executable, then PATH.
func (s *ExecSpawner) resolve() (string, error) {
	if s.Binary != "" {
		if _, err := os.Stat(s.Binary); err != nil {
			return "", fmt.Errorf("%s - WEAVERD_BIN: %w", spawnerLogPrefix, err)
		}
		return s.Binary, nil
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), DaemonName)
		if info, err := os.Stat(sibling); err == nil && info.Mode().IsRegular() {
			return sibling, nil
		}
	}
	bin, err := exec.LookPath(DaemonName)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%s - %s not found next to this binary or on PATH: %w", spawnerLogPrefix, DaemonName, err)
		}
		return "", fmt.Errorf("%s - look up %s: %w", spawnerLogPrefix, DaemonName, err)
	}
	return bin, nil
}
