package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neeroai/migue.ai-sub000/internal/store"
)

// UserStore implements store.UserStore over database/sql.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) UpsertByWaID(ctx context.Context, waID, displayName string) (*store.User, error) {
	now := time.Now().UTC()
	u := &store.User{}

	// DO UPDATE (rather than DO NOTHING) so RETURNING always yields the
	// row, whether freshly inserted or pre-existing.
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (id, wa_id, display_name, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (wa_id) DO UPDATE SET
		   display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE users.display_name END
		 RETURNING id, wa_id, display_name, created_at`,
		store.GenID(), waID, displayName, now,
	).Scan(&u.ID, &u.WaID, &u.DisplayName, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user %s: %w", waID, err)
	}
	return u, nil
}

func (s *UserStore) GetByWaID(ctx context.Context, waID string) (*store.User, error) {
	u := &store.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, wa_id, display_name, created_at FROM users WHERE wa_id = $1`,
		waID,
	).Scan(&u.ID, &u.WaID, &u.DisplayName, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
