package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectCallEvent = "weaver.calls"
)

// BuildCallSubject builds the granular call event subject for a method.
// NATS tokens may not contain dots or spaces, so both become underscores.
func BuildCallSubject(base, method string) string {
	if base == "" {
		base = SubjectCallEvent
	}
	safe := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(method)
	if safe == "" {
		safe = "_"
	}
	return fmt.Sprintf("%s.%s", base, safe)
}
