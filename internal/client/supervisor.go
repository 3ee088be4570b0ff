// Package client is the CLI side of the worker protocol: it brings the
// worker up on demand and streams a call's response lines to a sink.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/weaver/pkg/sockets"
)

const supervisorLogPrefix = "client:supervisor"

// Default start budget: 50 probes 100ms apart.
const (
	DefaultStartAttempts = 50
	DefaultStartInterval = 100 * time.Millisecond
)

// Spawner starts a worker that will listen on socketPath.
type Spawner interface {
	Spawn(ctx context.Context, socketPath string) error
}

// StartError reports that the worker could not be brought up.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("weaverd failed to start: %v", e.Err)
	}
	return "weaverd failed to start"
}

func (e *StartError) Unwrap() error { return e.Err }

// Supervisor makes sure a worker is reachable before a call.
type Supervisor struct {
	spawner      Spawner
	probeTimeout time.Duration
	attempts     int
	interval     time.Duration
}

// NewSupervisorParams holds parameters for NewSupervisor. Zero values use
// the defaults.
type NewSupervisorParams struct {
	Spawner      Spawner
	ProbeTimeout time.Duration
	Attempts     int
	Interval     time.Duration
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(params NewSupervisorParams) *Supervisor {
	s := &Supervisor{
		spawner:      params.Spawner,
		probeTimeout: params.ProbeTimeout,
		attempts:     params.Attempts,
		interval:     params.Interval,
	}
	if s.probeTimeout <= 0 {
		s.probeTimeout = sockets.DefaultProbeTimeout
	}
	if s.attempts <= 0 {
		s.attempts = DefaultStartAttempts
	}
	if s.interval <= 0 {
		s.interval = DefaultStartInterval
	}
	return s
}

// EnsureRunning returns nil once a worker accepts connections at path,
// spawning one if none does. Concurrent callers may each spawn a worker;
// the last one to bind keeps the socket.
func (s *Supervisor) EnsureRunning(ctx context.Context, path string) error {
	if sockets.CanConnect(ctx, path, s.probeTimeout) {
		return nil
	}
	if s.spawner == nil {
		return &StartError{Path: path, Err: fmt.Errorf("no spawner configured")}
	}

	slog.Debug(fmt.Sprintf("%s - worker not reachable at %s, spawning", supervisorLogPrefix, path))
	if err := s.spawner.Spawn(ctx, path); err != nil {
		return &StartError{Path: path, Err: err}
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	for i := 0; i < s.attempts; i++ {
		select {
		case <-ctx.Done():
			return &StartError{Path: path, Err: ctx.Err()}
		case <-timer.C:
		}
		if sockets.CanConnect(ctx, path, s.probeTimeout) {
			slog.Debug(fmt.Sprintf("%s - worker reachable after %d probes", supervisorLogPrefix, i+1))
			return nil
		}
		timer.Reset(s.interval)
	}

	slog.Warn(fmt.Sprintf("%s - worker did not become reachable at %s", supervisorLogPrefix, path))
	return &StartError{Path: path}
}
