package db

import (
	"time"

	"github.com/morezero/weaver/pkg/schema"
)

// DiagnosticRow represents a row in the diagnostics table.
type DiagnosticRow struct {
	ID        int64
	Project   string
	File      string
	StartLine int
	StartChar int
	EndLine   int
	EndChar   int
	Severity  string
	Code      *string
	Message   string
	Recorded  time.Time
}

// ToSchema converts the row into a diagnostic record.
func (r *DiagnosticRow) ToSchema() schema.Diagnostic {
	loc := schema.Location{
		File: r.File,
		Range: schema.Range{
			Start: schema.Position{Line: r.StartLine, Character: r.StartChar},
			End:   schema.Position{Line: r.EndLine, Character: r.EndChar},
		},
	}
	return schema.NewDiagnostic(loc, r.Severity, r.Code, r.Message)
}

// DiagnosticRowFrom builds a row for project from a diagnostic record.
func DiagnosticRowFrom(project string, d schema.Diagnostic) DiagnosticRow {
	return DiagnosticRow{
		Project:   project,
		File:      d.Location.File,
		StartLine: d.Location.Range.Start.Line,
		StartChar: d.Location.Range.Start.Character,
		EndLine:   d.Location.Range.End.Line,
		EndChar:   d.Location.Range.End.Character,
		Severity:  d.Severity,
		Code:      d.Code,
		Message:   d.Message,
	}
}

// OnboardingReportRow represents a row in the onboarding_reports table.
type OnboardingReportRow struct {
	ID      int64
	Project string
	Details string
	Created time.Time
}
