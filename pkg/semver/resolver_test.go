package semver

import (
	"testing"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		output string
		want   string
		ok     bool
	}{
		{"serena-agent 0.4.1\n", "0.4.1", true},
		{"serena-agent version v1.2.0-rc.1 (linux/amd64)", "1.2.0-rc.1", true},
		{"ruff 0.5", "0.5", true},
		{"built 2024 by ci", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractVersion(tt.output)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExtractVersion(%q) = %q, %v; want %q, %v", tt.output, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSatisfiesRange(t *testing.T) {
	tests := []struct {
		version string
		rng     string
		want    bool
	}{
		{"0.4.1", ">=0.1.0", true},
		{"0.0.9", ">=0.1.0", false},
		{"1.4.2", "^1.2.0", true},
		{"2.0.0", "^1.2.0", false},
		{"3.1.0", "3", true},
		{"4.0.0", "3", false},
		{"1.0.0", "", true},
		{"not-a-version", "", false},
		{"1.0.0", "garbage", false},
	}
	for _, tt := range tests {
		if got := SatisfiesRange(tt.version, tt.rng); got != tt.want {
			t.Errorf("SatisfiesRange(%q, %q) = %v, want %v", tt.version, tt.rng, got, tt.want)
		}
	}
}

func TestRequirement_Check(t *testing.T) {
	req, err := ParseRequirement("serena-agent@>=0.2.0")
	if err != nil {
		t.Fatalf("ParseRequirement: %v", err)
	}

	found, err := req.Check("serena-agent 0.3.0")
	if err != nil || found != "0.3.0" {
		t.Errorf("Check(0.3.0) = %q, %v", found, err)
	}

	found, err = req.Check("serena-agent 0.1.5")
	if err == nil {
		t.Errorf("expected mismatch for 0.1.5")
	}
	if found != "0.1.5" {
		t.Errorf("found = %q, want 0.1.5 on mismatch", found)
	}

	if _, err := req.Check("no version here"); err == nil {
		t.Errorf("expected error when output carries no version")
	}
}
