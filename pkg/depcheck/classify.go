// Package depcheck recognizes records that report a missing or failing
// external dependency of the worker.
package depcheck

import (
	"regexp"
)

// Code is a structured dependency error code carried in error_code.
type Code string

const (
	MissingDependency         Code = "MISSING_DEPENDENCY"
	AgentNotFound             Code = "AGENT_NOT_FOUND"
	DependencyUnavailable     Code = "DEPENDENCY_UNAVAILABLE"
	DependencyVersionMismatch Code = "DEPENDENCY_VERSION_MISMATCH"
	legacySerenaAgentNotFound Code = "SERENA_AGENT_NOT_FOUND"
)

// Codes lists the codes emitted by current workers.
var Codes = []Code{MissingDependency, AgentNotFound, DependencyUnavailable, DependencyVersionMismatch}

var dependencyCodes = map[Code]struct{}{
	MissingDependency:         {},
	AgentNotFound:             {},
	DependencyUnavailable:     {},
	DependencyVersionMismatch: {},
	legacySerenaAgentNotFound: {},
}

// IsDependencyCode reports whether s names a dependency error.
func IsDependencyCode(s string) bool {
	_, ok := dependencyCodes[Code(s)]
	return ok
}

// IsDependencyError reports whether rec is an error record signalling a
// dependency problem. Only records with type "error" qualify. A recognized
// error code is authoritative; message matching applies only without one.
func IsDependencyError(rec map[string]any) bool {
	if rec == nil || rec["type"] != "error" {
		return false
	}
	if HasDependencyCode(rec) {
		return true
	}
	msg, _ := rec["message"].(string)
	return MatchesLegacyMessage(msg)
}

// HasDependencyCode checks error_code, then the older "code" field.
func HasDependencyCode(rec map[string]any) bool {
	return IsDependencyCode(errorCode(rec))
}

func errorCode(rec map[string]any) string {
	if code, ok := rec["error_code"].(string); ok && code != "" {
		return code
	}
	code, _ := rec["code"].(string)
	return code
}

var (
	missingDependencyPattern = regexp.MustCompile(`(?i)\bmissing dependency\b[:\-]?\s*\w+`)
	agentMissingPattern      = regexp.MustCompile(`(?i)\bserena[- ]agent\b.*(not found|unavailable|missing)`)
)

// MatchesLegacyMessage matches the free-text failures of workers that predate
// error codes. It can be removed once those workers are gone.
func MatchesLegacyMessage(msg string) bool {
	if msg == "" {
		return false
	}
	return missingDependencyPattern.MatchString(msg) || agentMissingPattern.MatchString(msg)
}
