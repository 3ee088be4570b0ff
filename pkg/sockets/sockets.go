// Package sockets locates the worker socket and probes it for reachability.
package sockets

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"time"
)

const (
	// DefaultProbeTimeout bounds a single reachability probe.
	DefaultProbeTimeout = time.Second

	socketPrefix = "weaverd"
)

// PathFor returns the socket path for runtimeDir and userName. An empty
// runtimeDir falls back to the system temp directory.
func PathFor(runtimeDir, userName string) string {
	if runtimeDir == "" {
		runtimeDir = os.TempDir()
	}
	return filepath.Join(runtimeDir, fmt.Sprintf("%s-%s.sock", socketPrefix, userName))
}

// DefaultPath derives the socket path from XDG_RUNTIME_DIR and the
// invoking user.
func DefaultPath() string {
	return PathFor(os.Getenv("XDG_RUNTIME_DIR"), CurrentUser())
}

// CurrentUser returns the login name of the invoking user, or uid-<euid>
// when it cannot be determined.
func CurrentUser() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return fmt.Sprintf("uid-%d", os.Geteuid())
}

// CanConnect reports whether a listener accepts connections at path. The
// probe connection is closed immediately. Every dial failure (missing file,
// refused, permission denied, timeout) reads as unreachable.
func CanConnect(ctx context.Context, path string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
