package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/morezero/weaver/pkg/dispatcher"
	"github.com/morezero/weaver/pkg/events"
	"github.com/morezero/weaver/pkg/schema"
	"github.com/morezero/weaver/pkg/wire"
)

const logPrefix = "transport:server"

// errorChunkPrefix identifies error chunks produced by wire.Encode for
// counting in call events.
var errorChunkPrefix = []byte(`{"type":"error"`)

// Server serves a sealed dispatcher registry on accepted connections.
type Server struct {
	reg       *dispatcher.Registry
	publisher events.EventPublisher

	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
}

// NewServerParams holds parameters for NewServer.
type NewServerParams struct {
	Registry *dispatcher.Registry
	// Publisher receives one CallEvent per served request. Nil disables events.
	Publisher events.EventPublisher
}

// NewServer creates a Server. The registry is sealed if it is not already.
func NewServer(params NewServerParams) *Server {
	if !params.Registry.Sealed() {
		params.Registry.Seal()
	}
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	return &Server{
		reg:       params.Registry,
		publisher: pub,
		conns:     make(map[*conn]struct{}),
	}
}

type conn struct {
	id   string
	nc   net.Conn
	once sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { c.nc.Close() })
}

// Serve accepts connections on ln until ctx is cancelled or accept fails.
// Cancellation closes the listener and every open connection; Serve returns
// once all connection goroutines have exited. A cancelled ctx yields nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		ln.Close()
		s.closeAll()
		return nil
	})

	g.Go(func() error {
		for {
			nc, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%s - accept: %w", logPrefix, err)
			}
			c := s.track(nc)
			if c == nil {
				continue
			}
			g.Go(func() error {
				s.handleConn(gctx, c)
				return nil
			})
		}
	})

	err := g.Wait()
	if err != nil {
		slog.Error(fmt.Sprintf("%s - serve stopped: %v", logPrefix, err))
		return err
	}
	slog.Info(fmt.Sprintf("%s - Server stopped", logPrefix))
	return nil
}

func (s *Server) track(nc net.Conn) *conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		nc.Close()
		return nil
	}
	c := &conn{id: uuid.NewString(), nc: nc}
	s.conns[c] = struct{}{}
	return c
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	s.closed = true
	open := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		c.close()
	}
}

// handleConn serves requests on c until the peer closes, a write fails or
// ctx is cancelled. Each request is answered fully before the next line is
// read. A final line without a terminator is still served.
func (s *Server) handleConn(ctx context.Context, c *conn) {
	defer s.untrack(c)
	defer c.close()

	slog.Debug(fmt.Sprintf("%s - conn %s opened", logPrefix, c.id))
	r := bufio.NewReader(c.nc)
	w := bufio.NewWriter(c.nc)

	for {
		line, readErr := r.ReadBytes(wire.Terminator)
		// Blank lines are requests too and get an error chunk; only the
		// empty read at EOF carries nothing to answer.
		if len(line) > 0 {
			if err := s.serveLine(ctx, c, line, w); err != nil {
				if ctx.Err() == nil {
					slog.Debug(fmt.Sprintf("%s - conn %s ended: %v", logPrefix, c.id, err))
				}
				return
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) && ctx.Err() == nil {
				slog.Warn(fmt.Sprintf("%s - conn %s read failed: %v", logPrefix, c.id, readErr))
			}
			slog.Debug(fmt.Sprintf("%s - conn %s closed", logPrefix, c.id))
			return
		}
	}
}

// serveLine answers one request. It returns an error only when the
// connection can no longer be used.
func (s *Server) serveLine(ctx context.Context, c *conn, line []byte, w *bufio.Writer) error {
	start := time.Now()
	var chunks, errs int
	emit := func(chunk []byte) error {
		chunks++
		if bytes.HasPrefix(chunk, errorChunkPrefix) {
			errs++
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		if err := w.WriteByte(wire.Terminator); err != nil {
			return err
		}
		return w.Flush()
	}

	err := s.handle(ctx, c, line, emit)

	ev := events.NewCallEvent(c.id, methodOf(line), start)
	ev.Chunks = chunks
	ev.Errors = errs
	ev.Incomplete = err != nil
	if pubErr := s.publisher.PublishCall(ctx, ev); pubErr != nil {
		slog.Warn(fmt.Sprintf("%s - publish call event: %v", logPrefix, pubErr))
	}
	return err
}

// handle runs the dispatcher and turns a panic escaping it into an error
// chunk so the connection keeps serving.
func (s *Server) handle(ctx context.Context, c *conn, line []byte, emit dispatcher.Emitter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - conn %s: panic serving request: %v", logPrefix, c.id, r))
			chunk, encErr := wire.Encode(schema.NewError(fmt.Sprintf("internal error: %v", r)))
			if encErr != nil {
				err = encErr
				return
			}
			err = emit(chunk)
		}
	}()
	return s.reg.Handle(ctx, line, emit)
}

// methodOf extracts the method name of a request line for reporting.
func methodOf(line []byte) string {
	var req dispatcher.Request
	if err := wire.DecodeLine(line, &req); err != nil {
		return ""
	}
	return req.Method
}
