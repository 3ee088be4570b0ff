package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/morezero/weaver/pkg/db"
	"github.com/morezero/weaver/pkg/depcheck"
	"github.com/morezero/weaver/pkg/schema"
)

// DiagnosticStore is the part of db.Repository the Postgres backend uses.
type DiagnosticStore interface {
	Ping(ctx context.Context) error
	ListDiagnostics(ctx context.Context, project string) ([]schema.Diagnostic, error)
	CountDiagnostics(ctx context.Context, project string) (map[string]int, error)
	SaveOnboardingReport(ctx context.Context, project, details string) (*db.OnboardingReportRow, error)
}

// PostgresBackend serves diagnostics recorded in Postgres by an external
// lint pipeline and stores onboarding reports next to them.
type PostgresBackend struct {
	store   DiagnosticStore
	project string
}

// NewPostgresBackend creates a PostgresBackend for project.
func NewPostgresBackend(store DiagnosticStore, project string) *PostgresBackend {
	return &PostgresBackend{store: store, project: project}
}

// Name returns "postgres".
func (b *PostgresBackend) Name() string { return "postgres" }

func unavailable(err error) error {
	return &DependencyError{Code: depcheck.DependencyUnavailable, Msg: "postgres unavailable", Err: err}
}

// Check reports database reachability.
func (b *PostgresBackend) Check(ctx context.Context) []schema.DependencyCheck {
	var err error
	if pingErr := b.store.Ping(ctx); pingErr != nil {
		err = unavailable(pingErr)
	}
	return []schema.DependencyCheck{checkFromError("postgres", "", nil, err)}
}

// ListDiagnostics returns the stored diagnostics of the project.
func (b *PostgresBackend) ListDiagnostics(ctx context.Context) ([]schema.Diagnostic, error) {
	diags, err := b.store.ListDiagnostics(ctx, b.project)
	if err != nil {
		return nil, unavailable(err)
	}
	return diags, nil
}

// Onboard summarises the stored diagnostics per file and records the
// summary as the project's onboarding report.
func (b *PostgresBackend) Onboard(ctx context.Context) (string, error) {
	counts, err := b.store.CountDiagnostics(ctx, b.project)
	if err != nil {
		return "", unavailable(err)
	}
	details := summarise(b.project, counts)
	if _, err := b.store.SaveOnboardingReport(ctx, b.project, details); err != nil {
		return "", unavailable(err)
	}
	return details, nil
}

func summarise(project string, counts map[string]int) string {
	files := make([]string, 0, len(counts))
	total := 0
	for f, n := range counts {
		files = append(files, f)
		total += n
	}
	sort.Strings(files)

	var sb strings.Builder
	fmt.Fprintf(&sb, "project %s: %d diagnostics in %d files", project, total, len(files))
	for _, f := range files {
		fmt.Fprintf(&sb, "\n  %s: %d", f, counts[f])
	}
	return sb.String()
}
