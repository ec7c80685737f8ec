package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/irfndi/gatekeeper/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteConnection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := NewSQLiteConnection(dbPath)
	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
	assert.True(t, db.IsReady())
	assert.NoError(t, db.HealthCheck(context.Background()))
}

func TestSQLiteConnection_EmptyPath(t *testing.T) {
	db, err := NewSQLiteConnection("")
	assert.Error(t, err)
	assert.Nil(t, db)
}

func TestSQLiteDB_Close(t *testing.T) {
	db, err := NewSQLiteConnection(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	assert.NoError(t, db.Close())

	var nilDB *SQLiteDB
	assert.NoError(t, nilDB.Close())
	assert.False(t, nilDB.IsReady())
}

func TestSQLiteDB_NotInitialized(t *testing.T) {
	db := &SQLiteDB{}
	ctx := context.Background()

	_, err := db.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, errSQLiteNotInitialized)

	_, err = db.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, errSQLiteNotInitialized)

	var n int
	assert.ErrorIs(t, db.QueryRow(ctx, "SELECT 1").Scan(&n), errSQLiteNotInitialized)
	assert.ErrorIs(t, db.HealthCheck(ctx), errSQLiteNotInitialized)
}

func TestSQLiteDB_QueryExec(t *testing.T) {
	db, err := NewSQLiteConnection(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	_, err = db.Exec(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	res, err := db.Exec(ctx, "INSERT INTO items (name) VALUES (?), (?)", "a", "b")
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	rows, err := db.Query(ctx, "SELECT name FROM items ORDER BY id")
	require.NoError(t, err)
	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	rows.Close()
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := NewSQLiteConnection(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db))

	var n int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM rate_limit_counters").Scan(&n))
	assert.Zero(t, n)
}

func TestRebind(t *testing.T) {
	q := "SELECT day FROM rate_limit_counters WHERE user_id = $1 AND kind = $2"

	assert.Equal(t, q, Rebind(DBTypePostgres, q))
	assert.Equal(t, "SELECT day FROM rate_limit_counters WHERE user_id = ?1 AND kind = ?2", Rebind(DBTypeSQLite, q))
}

func TestRebind_NumberedParamsOnSQLite(t *testing.T) {
	db, err := NewSQLiteConnection(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	var a, b string
	err = db.QueryRow(context.Background(), Rebind(DBTypeSQLite, "SELECT $2, $1"), "first", "second").Scan(&a, &b)
	require.NoError(t, err)
	assert.Equal(t, "second", a)
	assert.Equal(t, "first", b)
}

func TestDetectDBType(t *testing.T) {
	tests := []struct {
		driver string
		want   DBType
	}{
		{"", DBTypeSQLite},
		{"sqlite", DBTypeSQLite},
		{"SQLite3", DBTypeSQLite},
		{"postgres", DBTypePostgres},
		{" PostgreSQL ", DBTypePostgres},
		{"pgx", DBTypePostgres},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDBType(tt.driver))
			assert.Equal(t, string(tt.want), NormalizeDriver(tt.driver))
		})
	}
}

func TestNewDatabaseConnection_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "gatekeeper.db"),
	}

	db, err := NewDatabaseConnection(cfg)
	require.NoError(t, err)
	defer db.Close()

	_, ok := db.(*SQLiteDB)
	assert.True(t, ok)
}

func TestNewDatabaseConnection_UnsupportedDriver(t *testing.T) {
	db, err := NewDatabaseConnection(&config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestBuildPGXPoolConfig(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:             "localhost",
		Port:             5432,
		User:             "gatekeeper",
		Password:         "secret",
		DBName:           "gatekeeper",
		SSLMode:          "disable",
		MaxOpenConns:     20,
		MaxIdleConns:     2,
		ConnMaxLifetime:  "30m",
		ConnMaxIdleTime:  "5m",
		ApplicationName:  "gatekeeper-test",
		StatementTimeout: 5000,
	}

	poolConfig, err := buildPGXPoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(20), poolConfig.MaxConns)
	assert.Equal(t, int32(2), poolConfig.MinConns)
	assert.Equal(t, "30m0s", poolConfig.MaxConnLifetime.String())
	assert.Equal(t, "5m0s", poolConfig.MaxConnIdleTime.String())
	assert.Equal(t, "gatekeeper-test", poolConfig.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "5000", poolConfig.ConnConfig.RuntimeParams["statement_timeout"])
	assert.IsType(t, &PostgresSentryTracer{}, poolConfig.ConnConfig.Tracer)
}

func TestBuildPGXPoolConfig_Errors(t *testing.T) {
	base := func() *config.DatabaseConfig {
		return &config.DatabaseConfig{Host: "localhost", Port: 5432, User: "u", DBName: "d", SSLMode: "disable"}
	}

	cfg := base()
	cfg.MaxOpenConns = 2
	cfg.MaxIdleConns = 5
	_, err := buildPGXPoolConfig(cfg)
	assert.ErrorContains(t, err, "invalid pool sizing")

	cfg = base()
	cfg.ConnMaxLifetime = "forever"
	_, err = buildPGXPoolConfig(cfg)
	assert.ErrorContains(t, err, "conn_max_lifetime")
}

func TestBuildPGXPoolConfig_URL(t *testing.T) {
	cfg := &config.DatabaseConfig{DatabaseURL: "postgres://u:p@db.internal:6543/limits?sslmode=disable"}

	poolConfig, err := buildPGXPoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", poolConfig.ConnConfig.Host)
	assert.Equal(t, uint16(6543), poolConfig.ConnConfig.Port)
	assert.Equal(t, "limits", poolConfig.ConnConfig.Database)
}

func TestClampToSafePoolSize(t *testing.T) {
	assert.Equal(t, int32(0), clampToSafePoolSize(-1))
	assert.Equal(t, int32(25), clampToSafePoolSize(25))
	assert.Equal(t, maxAllowedPoolConns, clampToSafePoolSize(1_000_000))
}

func TestPostgresDB_NotInitialized(t *testing.T) {
	var db *PostgresDB
	ctx := context.Background()

	assert.False(t, db.IsReady())
	assert.NoError(t, db.Close())
	assert.ErrorIs(t, db.HealthCheck(ctx), errPostgresNotInitialized)

	_, err := db.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, errPostgresNotInitialized)
	_, err = db.Exec(ctx, "SELECT 1")
	assert.ErrorIs(t, err, errPostgresNotInitialized)
}
