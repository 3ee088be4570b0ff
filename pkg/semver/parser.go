// Package semver parses external tool requirements and checks reported
// versions against them.
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:parser"

// Requirement is a parsed "name@range" tool requirement.
type Requirement struct {
	// Tool name looked up on PATH (e.g., "serena-agent")
	Name string
	// Version range (e.g., ">=0.1.0", "^1.2", "2"); empty accepts any version
	Range string
	// Raw input string
	Raw string
}

var (
	toolNameRegex  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]*$`)
	majorOnlyRegex = regexp.MustCompile(`^\d+$`)
)

// ParseRequirement parses a tool requirement.
//
// Supported formats:
//   - serena-agent            (any version)
//   - serena-agent@1          (major only)
//   - serena-agent@1.4.2      (exact version)
//   - serena-agent@^1.4.0     (caret range)
//   - serena-agent@>=0.1.0    (comparison range)
func ParseRequirement(input string) (*Requirement, error) {
	raw := strings.TrimSpace(input)
	name, rangeStr, _ := strings.Cut(raw, "@")
	name = strings.TrimSpace(name)
	rangeStr = strings.TrimSpace(rangeStr)

	if !toolNameRegex.MatchString(name) {
		return nil, fmt.Errorf("%s - invalid tool name in requirement %q", logPrefix, raw)
	}
	if rangeStr != "" && !IsMajorOnly(rangeStr) {
		if _, err := masterminds.NewConstraint(rangeStr); err != nil {
			return nil, fmt.Errorf("%s - invalid version range in requirement %q: %w", logPrefix, raw, err)
		}
	}
	return &Requirement{Name: name, Range: rangeStr, Raw: raw}, nil
}

// String formats r back into "name@range" form.
func (r *Requirement) String() string {
	if r.Range == "" {
		return r.Name
	}
	return r.Name + "@" + r.Range
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	major, err := strconv.Atoi(rangeStr)
	if err != nil {
		return -1
	}
	return major
}
