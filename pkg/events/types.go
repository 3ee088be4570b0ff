// Package events defines the worker's per-call event and the publishers that
// report it.
package events

import "time"

// CallEvent is reported once for every request a connection serves.
type CallEvent struct {
	ConnID     string `json:"connId"`
	Method     string `json:"method"`
	Chunks     int    `json:"chunks"`
	Errors     int    `json:"errors"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  string `json:"timestamp"`
	// Incomplete is set when the response was cut short by the peer going
	// away or shutdown.
	Incomplete bool   `json:"incomplete,omitempty"`
	Service    string `json:"service,omitempty"`
}

// NewCallEvent fills the timing fields of a CallEvent from start.
func NewCallEvent(connID, method string, start time.Time) *CallEvent {
	return &CallEvent{
		ConnID:     connID,
		Method:     method,
		DurationMs: time.Since(start).Milliseconds(),
		Timestamp:  start.UTC().Format(time.RFC3339Nano),
	}
}
