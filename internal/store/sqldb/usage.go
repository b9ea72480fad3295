package sqldb

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// UsageStore implements store.UsageStore with atomic SQL increments so
// concurrent turns never race a read-modify-write in process memory.
type UsageStore struct {
	db *sql.DB
}

func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

func (s *UsageStore) AddSpend(ctx context.Context, day string, userID uuid.UUID, cost float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_daily (day, user_id, spent, turns)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (day, user_id) DO UPDATE SET
		   spent = usage_daily.spent + excluded.spent,
		   turns = usage_daily.turns + 1`,
		day, userID, cost,
	)
	return err
}

func (s *UsageStore) DailySpent(ctx context.Context, day string) (float64, error) {
	var spent sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(spent) FROM usage_daily WHERE day = $1`, day,
	).Scan(&spent)
	if err != nil {
		return 0, err
	}
	return spent.Float64, nil
}

func (s *UsageStore) UserSpent(ctx context.Context, day string, userID uuid.UUID) (float64, error) {
	var spent sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(spent) FROM usage_daily WHERE day = $1 AND user_id = $2`,
		day, userID,
	).Scan(&spent)
	if err != nil {
		return 0, err
	}
	return spent.Float64, nil
}

func (s *UsageStore) PruneBefore(ctx context.Context, day string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM usage_daily WHERE day < $1`, day,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
