// Package commsutil provides COMMS (NATS) connection helpers and subjects
// for the worker's call events.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

// ConnectParams holds parameters for Connect. Zero values use defaults.
type ConnectParams struct {
	URL           string
	Name          string
	Timeout       time.Duration
	MaxReconnects int
}

// Connect opens a COMMS connection for publishing worker events. Events are
// best effort, so the connection gives up after a bounded number of
// reconnects instead of retrying forever.
func Connect(params ConnectParams) (*comms.Conn, error) {
	if params.Timeout <= 0 {
		params.Timeout = 5 * time.Second
	}
	if params.MaxReconnects == 0 {
		params.MaxReconnects = 10
	}
	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", logPrefix, params.URL, params.Name))

	nc, err := comms.Connect(params.URL,
		comms.Name(params.Name),
		comms.Timeout(params.Timeout),
		comms.ReconnectWait(2*time.Second),
		comms.MaxReconnects(params.MaxReconnects),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			if err != nil {
				slog.Warn(fmt.Sprintf("%s - COMMS disconnected: %v", logPrefix, err))
			}
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - COMMS reconnected to %s", logPrefix, nc.ConnectedUrl()))
		}),
		comms.ClosedHandler(func(*comms.Conn) {
			slog.Debug(fmt.Sprintf("%s - COMMS connection closed", logPrefix))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}
