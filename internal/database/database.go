// Package database opens the SQL backend that persists rate limit counters:
// SQLite on a single node, PostgreSQL when counters are shared.
package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/irfndi/gatekeeper/internal/config"
	"go.uber.org/zap"
)

// Database is a DBPool that owns its connections.
type Database interface {
	DBPool
	Close() error
	IsReady() bool
	HealthCheck(ctx context.Context) error
}

// DBType enumerates supported database drivers.
type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypePostgres DBType = "postgres"
)

// NewDatabaseConnection opens the backend named by cfg.Driver.
func NewDatabaseConnection(cfg *config.DatabaseConfig) (Database, error) {
	return NewDatabaseConnectionWithContext(context.Background(), cfg)
}

func NewDatabaseConnectionWithContext(ctx context.Context, cfg *config.DatabaseConfig) (Database, error) {
	switch DetectDBType(cfg.Driver) {
	case DBTypeSQLite:
		if d := strings.ToLower(strings.TrimSpace(cfg.Driver)); d != "" && d != "sqlite" && d != "sqlite3" {
			return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres)", cfg.Driver)
		}
		path := cfg.SQLitePath
		if path == "" {
			path = "gatekeeper.db"
		}
		zap.L().Info("Connecting to SQLite database", zap.String("path", path))
		return NewSQLiteConnection(path)
	default:
		zap.L().Info("Connecting to PostgreSQL database",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.String("dbname", cfg.DBName),
		)
		return NewPostgresConnectionWithContext(ctx, cfg)
	}
}

// DetectDBType maps a driver name to its backend. Unknown names map to
// SQLite.
func DetectDBType(driver string) DBType {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pgx":
		return DBTypePostgres
	default:
		return DBTypeSQLite
	}
}

// NormalizeDriver normalizes the driver string to a canonical form.
func NormalizeDriver(driver string) string {
	return string(DetectDBType(driver))
}
