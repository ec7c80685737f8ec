package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/irfndi/gatekeeper/internal/database"
	"github.com/irfndi/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5"
)

const (
	loadCounterQuery = `SELECT day, count FROM rate_limit_counters WHERE user_id = $1 AND kind = $2`

	incrementCounterQuery = `INSERT INTO rate_limit_counters (user_id, kind, day, count)
VALUES ($1, $2, $3, 1)
ON CONFLICT (user_id, kind) DO UPDATE SET
	count = CASE WHEN rate_limit_counters.day = excluded.day THEN rate_limit_counters.count + 1 ELSE 1 END,
	day = excluded.day,
	updated_at = CURRENT_TIMESTAMP
RETURNING count`
)

// SQLStore keeps counters in the rate_limit_counters table, one row per user
// and kind.
type SQLStore struct {
	db     database.DBPool
	dbType database.DBType
}

func NewSQLStore(db database.DBPool, dbType database.DBType) *SQLStore {
	return &SQLStore{db: db, dbType: dbType}
}

func (s *SQLStore) Load(ctx context.Context, userID string, kind models.ActionKind) (models.RateLimitCounter, error) {
	c := models.RateLimitCounter{Kind: kind}
	err := s.db.QueryRow(ctx, database.Rebind(s.dbType, loadCounterQuery), userID, string(kind)).Scan(&c.Date, &c.Count)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return models.RateLimitCounter{Kind: kind}, nil
	}
	if err != nil {
		return models.RateLimitCounter{}, fmt.Errorf("failed to load counter: %w", err)
	}
	return c, nil
}

func (s *SQLStore) Increment(ctx context.Context, userID string, kind models.ActionKind, day string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, database.Rebind(s.dbType, incrementCounterQuery), userID, string(kind), day).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	return count, nil
}
