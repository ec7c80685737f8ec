package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/irfndi/gatekeeper/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var errPostgresNotInitialized = errors.New("postgres pool is not initialized")

// PostgresDB wraps a PostgreSQL connection pool.
type PostgresDB struct {
	Pool *pgxpool.Pool
}

var _ Database = (*PostgresDB)(nil)

const maxAllowedPoolConns int32 = 10000

// NewPostgresConnectionWithContext connects with up to three attempts and
// exponential backoff between them.
func NewPostgresConnectionWithContext(ctx context.Context, cfg *config.DatabaseConfig) (*PostgresDB, error) {
	poolConfig, err := buildPGXPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var pool *pgxpool.Pool
	for attempt := 0; attempt < 3; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				break
			}
			pool.Close()
		}
		zap.L().Warn("Database connection attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		if attempt < 2 {
			select {
			case <-time.After(time.Duration(1<<uint(attempt)) * time.Second):
			case <-ctx.Done():
				return nil, fmt.Errorf("failed to connect to postgres: %w", ctx.Err())
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres after retries: %w", err)
	}

	zap.L().Info("Successfully connected to PostgreSQL")
	return &PostgresDB{Pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	if db.IsReady() {
		db.Pool.Close()
		zap.L().Info("PostgreSQL connection closed")
	}
	return nil
}

func (db *PostgresDB) HealthCheck(ctx context.Context) error {
	if !db.IsReady() {
		return errPostgresNotInitialized
	}
	return db.Pool.Ping(ctx)
}

func (db *PostgresDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	if !db.IsReady() {
		return nil, errPostgresNotInitialized
	}
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return PgxRows{Rows: rows}, nil
}

func (db *PostgresDB) QueryRow(ctx context.Context, query string, args ...any) Row {
	if !db.IsReady() {
		return errRow{err: errPostgresNotInitialized}
	}
	return PgxRow{Row: db.Pool.QueryRow(ctx, query, args...)}
}

func (db *PostgresDB) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	if !db.IsReady() {
		return nil, errPostgresNotInitialized
	}
	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return PgxResult{CommandTag: tag}, nil
}

func (db *PostgresDB) IsReady() bool {
	return db != nil && db.Pool != nil
}

func buildPGXPoolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	var dsn string
	switch {
	case strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://"):
		dsn = cfg.Host
	case cfg.DatabaseURL != "":
		dsn = cfg.DatabaseURL
	default:
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		if cfg.ConnectTimeout > 0 {
			dsn += fmt.Sprintf(" connect_timeout=%d", cfg.ConnectTimeout)
		}
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = clampToSafePoolSize(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = clampToSafePoolSize(cfg.MaxIdleConns)
	}
	if poolConfig.MinConns > 0 && poolConfig.MaxConns > 0 && poolConfig.MinConns > poolConfig.MaxConns {
		return nil, fmt.Errorf("invalid pool sizing: min_conns (%d) > max_conns (%d)", poolConfig.MinConns, poolConfig.MaxConns)
	}

	if cfg.ConnMaxLifetime != "" {
		d, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse conn_max_lifetime: %w", err)
		}
		poolConfig.MaxConnLifetime = d
	}
	if cfg.ConnMaxIdleTime != "" {
		d, err := time.ParseDuration(cfg.ConnMaxIdleTime)
		if err != nil {
			return nil, fmt.Errorf("failed to parse conn_max_idle_time: %w", err)
		}
		poolConfig.MaxConnIdleTime = d
	}

	if cfg.ApplicationName != "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	if cfg.StatementTimeout > 0 {
		poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout)
	}

	poolConfig.ConnConfig.Tracer = &PostgresSentryTracer{}
	return poolConfig, nil
}

func clampToSafePoolSize(value int) int32 {
	requested := int64(value)
	if requested <= 0 {
		return 0
	}
	if requested > int64(math.MaxInt32) || requested > int64(maxAllowedPoolConns) {
		zap.L().Warn("Configured pool size exceeds safe limit; clamping",
			zap.Int("requested", value),
			zap.Int32("limit", maxAllowedPoolConns),
		)
		return maxAllowedPoolConns
	}
	return int32(requested)
}
