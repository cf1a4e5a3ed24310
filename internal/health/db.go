package health

import (
	"context"
	"database/sql"
	"fmt"
)

// DBChecker pings the event database.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a checker for db.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database and confirms the events table is queryable.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT 1 FROM events LIMIT 1`).Scan(&n); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("events table unavailable: %w", err)
	}
	return nil
}
