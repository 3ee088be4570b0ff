// Package dispatcher routes request lines to registered handlers and turns
// their results into an ordered stream of response chunks.
package dispatcher

import "encoding/json"

// Request is the JSON envelope of one call.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResultKind is the shape of a handler's result, fixed at registration.
type ResultKind int

const (
	// KindRaw results are pre-encoded and written verbatim as one chunk.
	KindRaw ResultKind = iota + 1
	// KindSeq results are finite synchronous sequences.
	KindSeq
	// KindStream results are pushed item by item and may be long-lived.
	KindStream
	// KindValue results are a single record.
	KindValue
)

func (k ResultKind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindSeq:
		return "seq"
	case KindStream:
		return "stream"
	case KindValue:
		return "value"
	default:
		return "unknown"
	}
}

// Validator is implemented by parameter structs that check themselves after
// decoding.
type Validator interface {
	Validate() error
}

// CodedError is an error carrying a structured error code for the client.
type CodedError interface {
	error
	ErrorCode() string
}

// Emitter receives each encoded chunk, without a line terminator, in
// production order. A non-nil return means the chunk could not be delivered.
type Emitter func(chunk []byte) error
