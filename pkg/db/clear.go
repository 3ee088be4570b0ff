package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearAll truncates the diagnostics and onboarding_reports tables. Schema is
// preserved; RESTART IDENTITY resets sequences.
func ClearAll(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing stored diagnostics and reports", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE diagnostics, onboarding_reports RESTART IDENTITY`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Cleared", clearLogPrefix))
	return nil
}
