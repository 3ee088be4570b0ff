// Package schema defines the records exchanged between weaver and weaverd.
// Every record carries a "type" discriminator naming its kind. The edit,
// symbol, reference, impact and test-result kinds are reserved wire kinds:
// clients decode them, but no weaverd method emits them yet.
package schema

// Record kinds.
const (
	KindError           = "error"
	KindDiagnostic      = "diagnostic"
	KindOnboarding      = "onboarding"
	KindProjectStatus   = "project-status"
	KindDependencyCheck = "dependency-check"
	KindMethodList      = "method-list"
	KindEdit            = "edit"
	KindSymbol          = "symbol"
	KindReference       = "reference"
	KindImpact          = "impact"
	KindTestResult      = "test-result"
)

// Diagnostic severities.
const (
	SeverityError   = "Error"
	SeverityWarning = "Warning"
	SeverityInfo    = "Info"
	SeverityHint    = "Hint"
)

// Position is a zero-based point in a text file.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a range within a file.
type Location struct {
	File  string `json:"file"`
	Range Range  `json:"range"`
}

// ErrorRecord is the structured error chunk. ErrorCode is set for
// dependency failures.
type ErrorRecord struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewError returns an error record with the given message.
func NewError(message string) ErrorRecord {
	return ErrorRecord{Type: KindError, Message: message}
}

// NewCodedError returns an error record carrying a dependency error code.
func NewCodedError(message, code string) ErrorRecord {
	return ErrorRecord{Type: KindError, Message: message, ErrorCode: code}
}

// Diagnostic is a compiler or linter message.
type Diagnostic struct {
	Type     string   `json:"type"`
	Location Location `json:"location"`
	Severity string   `json:"severity"`
	Code     *string  `json:"code"`
	Message  string   `json:"message"`
}

// NewDiagnostic fills in the discriminator.
func NewDiagnostic(loc Location, severity string, code *string, message string) Diagnostic {
	return Diagnostic{Type: KindDiagnostic, Location: loc, Severity: severity, Code: code, Message: message}
}

// OnboardingReport holds information gathered during project onboarding.
type OnboardingReport struct {
	Type    string `json:"type"`
	Details string `json:"details"`
}

// NewOnboardingReport fills in the discriminator.
func NewOnboardingReport(details string) OnboardingReport {
	return OnboardingReport{Type: KindOnboarding, Details: details}
}

// ProjectStatus is the worker health indicator.
type ProjectStatus struct {
	Type    string  `json:"type"`
	PID     int     `json:"pid"`
	RSSMB   float64 `json:"rss_mb"`
	Ready   bool    `json:"ready"`
	Message string  `json:"message"`
	Backend string  `json:"backend,omitempty"`
}

// DependencyCheck reports the state of one external requirement.
type DependencyCheck struct {
	Type      string  `json:"type"`
	Name      string  `json:"name"`
	Required  string  `json:"required,omitempty"`
	Found     *string `json:"found"`
	OK        bool    `json:"ok"`
	ErrorCode string  `json:"error_code,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// MethodList enumerates the methods a worker serves.
type MethodList struct {
	Type    string   `json:"type"`
	Methods []string `json:"methods"`
}

// CodeEdit is a text replacement within a file.
type CodeEdit struct {
	Type    string `json:"type"`
	File    string `json:"file"`
	Range   Range  `json:"range"`
	NewText string `json:"new_text"`
}

// Symbol is a named code symbol.
type Symbol struct {
	Type     string   `json:"type"`
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Location Location `json:"location"`
}

// Reference points at a use of a symbol.
type Reference struct {
	Type     string   `json:"type"`
	Location Location `json:"location"`
}

// ImpactReport is the result of analysing a proposed change.
type ImpactReport struct {
	Type        string       `json:"type"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// TestResult is the outcome of one project test.
type TestResult struct {
	Type   string  `json:"type"`
	Name   string  `json:"name"`
	Status string  `json:"status"` // passed, failed, error, skipped
	Output *string `json:"output"`
}
