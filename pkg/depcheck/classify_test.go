package depcheck

import (
	"testing"
)

const classifyTestPrefix = "depcheck:classify_test"

func TestIsDependencyError(t *testing.T) {
	tests := []struct {
		name string
		rec  map[string]any
		want bool
	}{
		{"agent not found code", map[string]any{"type": "error", "error_code": "AGENT_NOT_FOUND"}, true},
		{"missing dependency message", map[string]any{"type": "error", "message": "missing dependency: foo-lib"}, true},
		{"wrong discriminator", map[string]any{"type": "info", "message": "agent not found"}, false},
		{"unrelated code", map[string]any{"type": "error", "error_code": "SOME_OTHER", "message": "irrelevant"}, false},
		{"legacy code field", map[string]any{"type": "error", "code": "DEPENDENCY_UNAVAILABLE"}, true},
		{"legacy serena code", map[string]any{"type": "error", "error_code": "SERENA_AGENT_NOT_FOUND"}, true},
		{"plain error", map[string]any{"type": "error", "message": "boom"}, false},
		{"no type", map[string]any{"foo": "bar"}, false},
		{"empty", map[string]any{}, false},
		{"nil", nil, false},
		{"code wins over silent message", map[string]any{"type": "error", "error_code": "MISSING_DEPENDENCY", "message": ""}, true},
		{"non-string code falls back to message", map[string]any{"type": "error", "error_code": 7, "message": "serena agent unavailable"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDependencyError(tt.rec); got != tt.want {
				t.Errorf("%s - IsDependencyError(%v) = %v, want %v", classifyTestPrefix, tt.rec, got, tt.want)
			}
		})
	}
}

func TestIsDependencyError_AllCodes(t *testing.T) {
	for _, code := range Codes {
		for _, field := range []string{"error_code", "code"} {
			rec := map[string]any{"type": "error", field: string(code)}
			if !IsDependencyError(rec) {
				t.Errorf("%s - %s=%s not classified as dependency error", classifyTestPrefix, field, code)
			}
		}
	}
}

func TestMatchesLegacyMessage(t *testing.T) {
	positives := []string{
		"missing dependency serena-agent",
		"missing dependency: foo-lib",
		"Missing Dependency-bar",
		"Serena-Agent not found",
		"serena agent unavailable",
		"diagnostics failed: serena-agent is missing",
	}
	for _, msg := range positives {
		if !MatchesLegacyMessage(msg) {
			t.Errorf("%s - expected match for %q", classifyTestPrefix, msg)
		}
	}

	negatives := []string{
		"",
		"boom",
		"missing dependency",
		"agent not found",
		"serena-agent started",
	}
	for _, msg := range negatives {
		if MatchesLegacyMessage(msg) {
			t.Errorf("%s - unexpected match for %q", classifyTestPrefix, msg)
		}
	}
}
