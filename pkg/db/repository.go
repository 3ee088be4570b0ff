package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/weaver/pkg/schema"
)

const repoLogPrefix = "db:repository"

// Repository provides database access for stored diagnostics and reports.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%s - ping failed: %w", repoLogPrefix, err)
	}
	return nil
}

// ListDiagnostics returns the diagnostics recorded for project ordered by
// file and position.
func (r *Repository) ListDiagnostics(ctx context.Context, project string) ([]schema.Diagnostic, error) {
	slog.Debug(fmt.Sprintf("%s - ListDiagnostics project=%s", repoLogPrefix, project))

	rows, err := r.pool.Query(ctx,
		`SELECT id, project, file, start_line, start_char, end_line, end_char,
		        severity, code, message, recorded
		 FROM diagnostics
		 WHERE project = $1
		 ORDER BY file, start_line, start_char, id`, project)
	if err != nil {
		return nil, fmt.Errorf("%s - ListDiagnostics failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []schema.Diagnostic
	for rows.Next() {
		row, err := scanDiagnostic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row.ToSchema())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - ListDiagnostics rows: %w", repoLogPrefix, err)
	}
	return out, nil
}

// ReplaceDiagnostics swaps the stored diagnostics of project for diags in
// one transaction.
func (r *Repository) ReplaceDiagnostics(ctx context.Context, project string, diags []schema.Diagnostic) error {
	slog.Info(fmt.Sprintf("%s - ReplaceDiagnostics project=%s count=%d", repoLogPrefix, project, len(diags)))

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM diagnostics WHERE project = $1`, project); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, d := range diags {
			row := DiagnosticRowFrom(project, d)
			batch.Queue(
				`INSERT INTO diagnostics (project, file, start_line, start_char, end_line, end_char, severity, code, message)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				row.Project, row.File, row.StartLine, row.StartChar, row.EndLine, row.EndChar,
				row.Severity, row.Code, row.Message)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("%s - ReplaceDiagnostics failed: %w", repoLogPrefix, err)
	}
	return nil
}

// SaveOnboardingReport records an onboarding report for project.
func (r *Repository) SaveOnboardingReport(ctx context.Context, project, details string) (*OnboardingReportRow, error) {
	var row OnboardingReportRow
	err := r.pool.QueryRow(ctx,
		`INSERT INTO onboarding_reports (project, details)
		 VALUES ($1, $2)
		 RETURNING id, project, details, created`, project, details,
	).Scan(&row.ID, &row.Project, &row.Details, &row.Created)
	if err != nil {
		return nil, fmt.Errorf("%s - SaveOnboardingReport failed: %w", repoLogPrefix, err)
	}
	return &row, nil
}

// LatestOnboardingReport returns the newest report for project, or nil.
func (r *Repository) LatestOnboardingReport(ctx context.Context, project string) (*OnboardingReportRow, error) {
	var row OnboardingReportRow
	err := r.pool.QueryRow(ctx,
		`SELECT id, project, details, created
		 FROM onboarding_reports
		 WHERE project = $1
		 ORDER BY created DESC, id DESC
		 LIMIT 1`, project,
	).Scan(&row.ID, &row.Project, &row.Details, &row.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - LatestOnboardingReport failed: %w", repoLogPrefix, err)
	}
	return &row, nil
}

// CountDiagnostics returns the number of diagnostics stored per file for project.
func (r *Repository) CountDiagnostics(ctx context.Context, project string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT file, COUNT(*)::int FROM diagnostics WHERE project = $1 GROUP BY file`, project)
	if err != nil {
		return nil, fmt.Errorf("%s - CountDiagnostics failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var file string
		var n int
		if err := rows.Scan(&file, &n); err != nil {
			return nil, fmt.Errorf("%s - CountDiagnostics scan failed: %w", repoLogPrefix, err)
		}
		counts[file] = n
	}
	return counts, rows.Err()
}

func scanDiagnostic(rows pgx.Rows) (*DiagnosticRow, error) {
	var d DiagnosticRow
	err := rows.Scan(&d.ID, &d.Project, &d.File, &d.StartLine, &d.StartChar, &d.EndLine, &d.EndChar,
		&d.Severity, &d.Code, &d.Message, &d.Recorded)
	if err != nil {
		return nil, fmt.Errorf("%s - scan diagnostic failed: %w", repoLogPrefix, err)
	}
	return &d, nil
}
