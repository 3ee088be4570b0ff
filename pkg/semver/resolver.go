package semver

import (
	"fmt"
	"regexp"

	masterminds "github.com/Masterminds/semver/v3"
)

const resolverLogPrefix = "semver:resolver"

// versionTokenRegex finds the first version-looking token in tool output
// such as "serena-agent 0.4.1" or "version v1.2.0-rc.1".
var versionTokenRegex = regexp.MustCompile(`\bv?(\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?)\b`)

// ExtractVersion returns the first version in a tool's --version output.
func ExtractVersion(output string) (string, bool) {
	m := versionTokenRegex.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SatisfiesRange checks if a version string satisfies a range. An empty
// range accepts any valid version.
func SatisfiesRange(version, rangeStr string) bool {
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}
	if rangeStr == "" {
		return true
	}
	if IsMajorOnly(rangeStr) {
		return int(sv.Major()) == ExtractMajorFromRange(rangeStr)
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}

// Check extracts the version from a tool's --version output and matches it
// against r. It returns the version found, if any.
func (r *Requirement) Check(output string) (string, error) {
	version, ok := ExtractVersion(output)
	if !ok {
		return "", fmt.Errorf("%s - no version in %s output %q", resolverLogPrefix, r.Name, output)
	}
	if !SatisfiesRange(version, r.Range) {
		return version, fmt.Errorf("%s - %s %s does not satisfy %s", resolverLogPrefix, r.Name, version, r.Range)
	}
	return version, nil
}
