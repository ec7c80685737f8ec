package database

import (
	"context"
	"fmt"
	"strings"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rate_limit_counters (
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	day TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, kind)
)`,
	`CREATE INDEX IF NOT EXISTS idx_rate_limit_counters_day ON rate_limit_counters (day)`,
}

// Migrate creates the tables the service needs. It is safe to run on every
// start.
func Migrate(ctx context.Context, db DBPool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Rebind rewrites $N placeholders for drivers that do not understand them.
// SQLite reads ?N as the same numbered parameter.
func Rebind(dbType DBType, query string) string {
	if dbType != DBTypeSQLite {
		return query
	}
	return strings.ReplaceAll(query, "$", "?")
}
