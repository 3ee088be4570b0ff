package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/morezero/weaver/pkg/schema"
	"github.com/morezero/weaver/pkg/wire"
)

const logPrefix = "dispatcher:dispatch"

var (
	// ErrDuplicateMethod is returned when a name is registered twice.
	ErrDuplicateMethod = errors.New("method already registered")
	// ErrSealed is returned when registering after Seal.
	ErrSealed = errors.New("registry is sealed")
	// ErrEmptyMethod is returned for an empty method name.
	ErrEmptyMethod = errors.New("method name is empty")
	// ErrNilHandler is returned for a zero Handler.
	ErrNilHandler = errors.New("handler is nil")
)

// Registry maps method names to handlers. It is filled once at startup and
// sealed before serving; after Seal it is read-only and safe for concurrent
// use without locking.
type Registry struct {
	handlers map[string]Handler
	sealed   bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to h.
func (r *Registry) Register(name string, h Handler) error {
	switch {
	case r.sealed:
		return fmt.Errorf("%s - register %q: %w", logPrefix, name, ErrSealed)
	case name == "":
		return fmt.Errorf("%s - %w", logPrefix, ErrEmptyMethod)
	case h.call == nil:
		return fmt.Errorf("%s - register %q: %w", logPrefix, name, ErrNilHandler)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%s - register %q: %w", logPrefix, name, ErrDuplicateMethod)
	}
	r.handlers[name] = h
	slog.Debug(fmt.Sprintf("%s - registered %s (%s)", logPrefix, name, h.kind))
	return nil
}

// MustRegister is Register for startup wiring; it panics on error.
func (r *Registry) MustRegister(name string, h Handler) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

// Seal freezes the method table.
func (r *Registry) Seal() { r.sealed = true }

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool { return r.sealed }

// Methods returns the registered names in sorted order.
func (r *Registry) Methods() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// deliveryError wraps an emit failure so it is never reported as a chunk.
type deliveryError struct {
	err error
}

func (e *deliveryError) Error() string { return e.err.Error() }
func (e *deliveryError) Unwrap() error { return e.err }

// Handle decodes one request line, runs its handler and emits the response
// chunks in production order. Request, routing and handler failures become
// a single error chunk and Handle returns nil. A non-nil return means emit
// failed or ctx was cancelled; the response is then incomplete.
func (r *Registry) Handle(ctx context.Context, line []byte, emit Emitter) error {
	var req Request
	if err := wire.DecodeLine(line, &req); err != nil {
		var decErr *wire.DecodeError
		detail := err.Error()
		if errors.As(err, &decErr) {
			detail = decErr.Detail()
		}
		return r.emitError(emit, schema.NewError("invalid request: "+detail))
	}
	if req.Method == "" {
		return r.emitError(emit, schema.NewError("invalid request: missing method"))
	}

	h, ok := r.handlers[req.Method]
	if !ok {
		return r.emitError(emit, schema.NewError("unknown method: "+req.Method))
	}

	slog.Debug(fmt.Sprintf("%s - method=%s kind=%s", logPrefix, req.Method, h.kind))

	var res result
	err := recovered(func() error {
		var callErr error
		res, callErr = h.call(ctx, req.Params)
		return callErr
	})
	if err != nil {
		if cancelled(ctx, err) {
			return err
		}
		var bindErr *bindError
		if errors.As(err, &bindErr) {
			return r.emitError(emit, schema.NewError(fmt.Sprintf("invalid params for %s: %v", req.Method, bindErr.err)))
		}
		return r.emitError(emit, errorRecord(err))
	}

	switch h.kind {
	case KindRaw:
		return emit(bytes.TrimRight(res.raw, "\r\n"))
	case KindValue:
		var chunk []byte
		// MarshalJSON of a handler's result may panic.
		if err := recovered(func() (encErr error) {
			chunk, encErr = wire.Encode(res.value)
			return encErr
		}); err != nil {
			return r.emitError(emit, errorRecord(err))
		}
		return emit(chunk)
	case KindSeq:
		return r.drainSeq(ctx, res, emit)
	case KindStream:
		return r.drainStream(ctx, res, emit)
	default:
		return r.emitError(emit, schema.NewError(fmt.Sprintf("method %s has no result kind", req.Method)))
	}
}

func (r *Registry) drainSeq(ctx context.Context, res result, emit Emitter) error {
	var failure error
	err := recovered(func() error {
		for item, itemErr := range res.seq {
			if itemErr != nil {
				failure = itemErr
				return nil
			}
			chunk, encErr := wire.Encode(item)
			if encErr != nil {
				failure = encErr
				return nil
			}
			if err := deliver(emit, chunk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var delErr *deliveryError
		if errors.As(err, &delErr) {
			return delErr.err
		}
		failure = err
	}
	if failure == nil {
		return nil
	}
	if cancelled(ctx, failure) {
		return failure
	}
	return r.emitError(emit, errorRecord(failure))
}

func (r *Registry) drainStream(ctx context.Context, res result, emit Emitter) error {
	// stopped is set once the stream can no longer continue; later sends
	// return it without emitting.
	var stopped error
	var encodeFailure error
	send := func(item any) error {
		if stopped != nil {
			return stopped
		}
		chunk, err := wire.Encode(item)
		if err != nil {
			encodeFailure = err
			stopped = err
			return err
		}
		if err := emit(chunk); err != nil {
			stopped = &deliveryError{err: err}
			return stopped
		}
		return nil
	}

	err := recovered(func() error { return res.stream(send) })
	var delErr *deliveryError
	if errors.As(stopped, &delErr) {
		return delErr.err
	}
	if encodeFailure != nil {
		err = encodeFailure
	}
	if err == nil {
		return nil
	}
	if cancelled(ctx, err) {
		return err
	}
	return r.emitError(emit, errorRecord(err))
}

func (r *Registry) emitError(emit Emitter, rec schema.ErrorRecord) error {
	slog.Debug(fmt.Sprintf("%s - error chunk: %s", logPrefix, rec.Message))
	chunk, err := wire.Encode(rec)
	if err != nil {
		return err
	}
	return emit(chunk)
}

// deliver emits chunk and marks a failure as a delivery failure.
func deliver(emit Emitter, chunk []byte) error {
	if err := emit(chunk); err != nil {
		return &deliveryError{err: err}
	}
	return nil
}

// errorRecord converts a handler error into an error chunk, carrying the
// code of the first CodedError in its chain.
func errorRecord(err error) schema.ErrorRecord {
	var coded CodedError
	if errors.As(err, &coded) && coded.ErrorCode() != "" {
		return schema.NewCodedError(err.Error(), coded.ErrorCode())
	}
	return schema.NewError(err.Error())
}

// cancelled reports whether err stems from ctx being done.
func cancelled(ctx context.Context, err error) bool {
	ctxErr := ctx.Err()
	return ctxErr != nil && errors.Is(err, ctxErr)
}
