package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/morezero/weaver/pkg/depcheck"
	"github.com/morezero/weaver/pkg/dispatcher"
	"github.com/morezero/weaver/pkg/wire"
)

const callerLogPrefix = "client:caller"

// ErrDependency is returned by Call when the response reported a missing or
// unusable dependency. Every line has already reached the sink.
var ErrDependency = errors.New("weaverd reported a dependency error")

// Caller sends one request per connection and relays the response.
type Caller struct {
	supervisor *Supervisor
	dialer     net.Dialer
}

// NewCaller creates a Caller that brings the worker up through sup.
func NewCaller(sup *Supervisor) *Caller {
	return &Caller{supervisor: sup}
}

// Call ensures the worker is running, sends method with params (nil sends
// an empty object), half-closes, and copies each response line to sink as
// it arrives. It returns ErrDependency when any line was a dependency
// error, a *StartError when the worker never came up, and wrapped I/O
// errors otherwise.
func (c *Caller) Call(ctx context.Context, method string, params any, path string, sink io.Writer) error {
	if err := c.supervisor.EnsureRunning(ctx, path); err != nil {
		return err
	}

	line, err := encodeRequest(method, params)
	if err != nil {
		return err
	}

	conn, err := c.dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return fmt.Errorf("%s - dial %s: %w", callerLogPrefix, path, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("%s - send request: %w", callerLogPrefix, err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return fmt.Errorf("%s - half-close: %w", callerLogPrefix, err)
		}
	}

	dependencyFailure := false
	r := bufio.NewReader(conn)
	for {
		chunk, readErr := r.ReadBytes(wire.Terminator)
		if len(chunk) > 0 {
			if !bytes.HasSuffix(chunk, []byte{wire.Terminator}) {
				chunk = append(chunk, wire.Terminator)
			}
			if _, err := sink.Write(chunk); err != nil {
				return fmt.Errorf("%s - write output: %w", callerLogPrefix, err)
			}
			if classify(chunk) {
				dependencyFailure = true
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%s - read response: %w", callerLogPrefix, readErr)
		}
	}

	if dependencyFailure {
		return ErrDependency
	}
	return nil
}

func encodeRequest(method string, params any) ([]byte, error) {
	raw := json.RawMessage(`{}`)
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("%s - encode params: %w", callerLogPrefix, err)
		}
		raw = data
	}
	line, err := wire.EncodeLine(dispatcher.Request{Method: method, Params: raw})
	if err != nil {
		return nil, fmt.Errorf("%s - encode request: %w", callerLogPrefix, err)
	}
	return line, nil
}

// classify reports whether a response line is a dependency error. Lines
// that do not decode are passed through and never count.
func classify(line []byte) bool {
	rec, err := wire.DecodeRecord(line)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - unparseable line: %v", callerLogPrefix, err))
		return false
	}
	return depcheck.IsDependencyError(rec)
}
