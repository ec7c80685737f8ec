package ratelimit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/irfndi/gatekeeper/internal/database"
	"github.com/irfndi/gatekeeper/internal/models"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, 0)
	ctx := context.Background()

	c, err := store.Load(ctx, "u1", models.ActionBlock)
	require.NoError(t, err)
	assert.Equal(t, models.RateLimitCounter{Kind: models.ActionBlock}, c)

	for i := 1; i <= 3; i++ {
		n, err := store.Increment(ctx, "u1", models.ActionBlock, "2026-03-10")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	c, err = store.Load(ctx, "u1", models.ActionBlock)
	require.NoError(t, err)
	assert.Equal(t, models.RateLimitCounter{Kind: models.ActionBlock, Date: "2026-03-10", Count: 3}, c)

	key := "ratelimit:daily:u1:block"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, DefaultRedisTTL, mr.TTL(key))

	n, err := store.Increment(ctx, "u1", models.ActionBlock, "2026-03-11")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a new day restarts the count")
	assert.Equal(t, "2026-03-11", mr.HGet(key, "date"))
}

func TestRedisStore_WithLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(NewRedisStore(client, time.Hour), &now)
	ctx := context.Background()

	require.NoError(t, l.RecordAction(ctx, "u1", models.ActionReport))
	assert.Equal(t, 9, l.Remaining(ctx, "u1", models.ActionReport))

	mr.Close()
	assert.Equal(t, 10, l.Remaining(ctx, "u1", models.ActionReport), "unreachable redis fails open")
}

func TestRedisStore_CorruptCount(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mr.HSet("ratelimit:daily:u1:block", "date", "2026-03-10", "count", "many")

	_, err := NewRedisStore(client, 0).Load(context.Background(), "u1", models.ActionBlock)
	assert.Error(t, err)
}

func TestSQLStore_Postgres(t *testing.T) {
	pool, mock, err := database.NewMockDBPoolFromNewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewSQLStore(pool, database.DBTypePostgres)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT day, count FROM rate_limit_counters WHERE user_id = \$1 AND kind = \$2`).
		WithArgs("u1", "block").
		WillReturnRows(pgxmock.NewRows([]string{"day", "count"}))

	c, err := store.Load(ctx, "u1", models.ActionBlock)
	require.NoError(t, err)
	assert.Equal(t, models.RateLimitCounter{Kind: models.ActionBlock}, c)

	mock.ExpectQuery(`INSERT INTO rate_limit_counters`).
		WithArgs("u1", "block", "2026-03-10").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	n, err := store.Increment(ctx, "u1", models.ActionBlock, "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	mock.ExpectQuery(`SELECT day, count FROM rate_limit_counters`).
		WithArgs("u1", "block").
		WillReturnRows(pgxmock.NewRows([]string{"day", "count"}).AddRow("2026-03-10", 4))

	c, err = store.Load(ctx, "u1", models.ActionBlock)
	require.NoError(t, err)
	assert.Equal(t, models.RateLimitCounter{Kind: models.ActionBlock, Date: "2026-03-10", Count: 4}, c)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SQLite(t *testing.T) {
	db, err := database.NewSQLiteConnection(filepath.Join(t.TempDir(), "limits.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, db))

	store := NewSQLStore(db, database.DBTypeSQLite)

	c, err := store.Load(ctx, "u1", models.ActionReport)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Count)

	for i := 1; i <= 2; i++ {
		n, err := store.Increment(ctx, "u1", models.ActionReport, "2026-03-10")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err := store.Increment(ctx, "u1", models.ActionReport, "2026-03-11")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, err = store.Load(ctx, "u1", models.ActionReport)
	require.NoError(t, err)
	assert.Equal(t, models.RateLimitCounter{Kind: models.ActionReport, Date: "2026-03-11", Count: 1}, c)

	other, err := store.Load(ctx, "u2", models.ActionReport)
	require.NoError(t, err)
	assert.Equal(t, 0, other.Count)
}
