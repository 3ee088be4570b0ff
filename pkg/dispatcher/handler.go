package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
)

// Handler is a registered method. Build one with Raw, Seq, Stream or Value;
// the constructor fixes the result shape.
type Handler struct {
	kind ResultKind
	call func(ctx context.Context, params json.RawMessage) (result, error)
}

// Kind returns the result shape of h.
func (h Handler) Kind() ResultKind { return h.kind }

type result struct {
	raw    []byte
	seq    iter.Seq2[any, error]
	stream func(send func(any) error) error
	value  any
}

// bindError marks a failure to decode or validate params.
type bindError struct {
	err error
}

func (e *bindError) Error() string { return e.err.Error() }
func (e *bindError) Unwrap() error { return e.err }

// bindParams decodes raw into P. Absent or null params decode to the zero
// value. Unknown fields are rejected.
func bindParams[P any](raw json.RawMessage) (P, error) {
	var params P
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&params); err != nil {
			return params, &bindError{err: err}
		}
	}
	var target any = &params
	if v, ok := target.(Validator); ok {
		if err := v.Validate(); err != nil {
			return params, &bindError{err: err}
		}
	}
	return params, nil
}

// Raw registers a handler returning an already encoded record.
func Raw[P any](fn func(ctx context.Context, params P) ([]byte, error)) Handler {
	return Handler{kind: KindRaw, call: func(ctx context.Context, raw json.RawMessage) (result, error) {
		params, err := bindParams[P](raw)
		if err != nil {
			return result{}, err
		}
		data, err := fn(ctx, params)
		return result{raw: data}, err
	}}
}

// Seq registers a handler returning a finite synchronous sequence. A non-nil
// error in the sequence ends the response with an error chunk.
func Seq[P, R any](fn func(ctx context.Context, params P) (iter.Seq2[R, error], error)) Handler {
	return Handler{kind: KindSeq, call: func(ctx context.Context, raw json.RawMessage) (result, error) {
		params, err := bindParams[P](raw)
		if err != nil {
			return result{}, err
		}
		seq, err := fn(ctx, params)
		if err != nil {
			return result{}, err
		}
		return result{seq: func(yield func(any, error) bool) {
			if seq == nil {
				return
			}
			for item, err := range seq {
				if !yield(item, err) {
					return
				}
			}
		}}, nil
	}}
}

// Stream registers a handler that pushes items through send. send blocks
// until the chunk is handed to the connection and fails once the response
// can no longer continue; the handler should return at that point.
func Stream[P, R any](fn func(ctx context.Context, params P, send func(R) error) error) Handler {
	return Handler{kind: KindStream, call: func(ctx context.Context, raw json.RawMessage) (result, error) {
		params, err := bindParams[P](raw)
		if err != nil {
			return result{}, err
		}
		return result{stream: func(send func(any) error) error {
			return fn(ctx, params, func(item R) error { return send(item) })
		}}, nil
	}}
}

// Value registers a handler returning a single record.
func Value[P, R any](fn func(ctx context.Context, params P) (R, error)) Handler {
	return Handler{kind: KindValue, call: func(ctx context.Context, raw json.RawMessage) (result, error) {
		params, err := bindParams[P](raw)
		if err != nil {
			return result{}, err
		}
		v, err := fn(ctx, params)
		return result{value: v}, err
	}}
}

// NoParams is the parameter type of methods that take none.
type NoParams struct{}

// recovered converts a panic into an error.
func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return fn()
}
