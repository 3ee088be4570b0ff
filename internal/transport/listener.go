// Package transport serves a dispatcher registry over a local Unix stream
// socket, one JSON line per request and per response chunk.
package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
)

const listenerLogPrefix = "transport:listener"

// Listen binds a Unix stream socket at path. The parent directory is created
// with 0700 when missing, any file already at path is removed first, and the
// socket is restricted to its owner. Closing the listener unlinks the socket.
//
// Nothing stops a second worker from replacing the socket of a live one.
func Listen(path string) (net.Listener, error) {
	if path == "" {
		return nil, fmt.Errorf("%s - socket path is empty", listenerLogPrefix)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%s - create socket dir: %w", listenerLogPrefix, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s - remove stale socket %s: %w", listenerLogPrefix, path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("%s - listen on %s: %w", listenerLogPrefix, path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("%s - chmod %s: %w", listenerLogPrefix, path, err)
	}

	slog.Info(fmt.Sprintf("%s - Listening on %s", listenerLogPrefix, path))
	return ln, nil
}
