// Package wire implements the line-delimited JSON framing shared by weaver and weaverd.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const logPrefix = "wire:codec"

// Terminator ends every record on the wire.
const Terminator = '\n'

// Record is a decoded wire record of unknown shape.
type Record = map[string]any

// DecodeError reports a line that is not a valid record.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s - malformed record: %v", logPrefix, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Detail returns the underlying decoder message without the package prefix.
func (e *DecodeError) Detail() string {
	return e.Err.Error()
}

// Encode serializes v as a single JSON line without the terminator.
func Encode(v any) ([]byte, error) {
	line, err := EncodeLine(v)
	if err != nil {
		return nil, err
	}
	return line[:len(line)-1], nil
}

// EncodeLine serializes v as a single JSON line and appends the terminator.
// HTML escaping is disabled so messages survive a round trip unchanged.
func EncodeLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("%s - failed to encode record: %w", logPrefix, err)
	}
	return buf.Bytes(), nil
}

// DecodeLine parses one line into v. A trailing terminator (and carriage
// return) is ignored. Malformed input yields a *DecodeError.
func DecodeLine(data []byte, v any) error {
	line := bytes.TrimRight(data, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return &DecodeError{Err: fmt.Errorf("empty line")}
	}
	if err := json.Unmarshal(line, v); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// DecodeRecord parses one line into a generic Record. Lines holding valid JSON
// that is not an object also yield a *DecodeError.
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := DecodeLine(data, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &DecodeError{Err: fmt.Errorf("record is not an object")}
	}
	return rec, nil
}
