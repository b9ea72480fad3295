package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/neeroai/migue.ai-sub000/internal/store"
)

// ActionStore persists tool side effects. Every insert goes through the
// idempotency_key uniqueness constraint so a "fire, time out, retry"
// sequence from the tool executor lands exactly one row.
type ActionStore struct {
	db *sql.DB
}

func NewActionStore(db *sql.DB) *ActionStore {
	return &ActionStore{db: db}
}

func (s *ActionStore) InsertReminder(ctx context.Context, r *store.Reminder) (bool, error) {
	if r.ID == uuid.Nil {
		r.ID = store.GenID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return s.keyedInsert(ctx,
		`INSERT INTO reminders (id, user_id, title, due_at, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (idempotency_key) DO NOTHING
		 RETURNING id`,
		r.ID, r.UserID, r.Title, r.DueAt, r.IdempotencyKey, r.CreatedAt,
	)
}

func (s *ActionStore) InsertMeeting(ctx context.Context, m *store.Meeting) (bool, error) {
	if m.ID == uuid.Nil {
		m.ID = store.GenID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return s.keyedInsert(ctx,
		`INSERT INTO meetings (id, user_id, title, starts_at, duration_min, attendee, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (idempotency_key) DO NOTHING
		 RETURNING id`,
		m.ID, m.UserID, m.Title, m.StartsAt, m.DurationMin, m.Attendee, m.IdempotencyKey, m.CreatedAt,
	)
}

func (s *ActionStore) InsertExpense(ctx context.Context, e *store.Expense) (bool, error) {
	if e.ID == uuid.Nil {
		e.ID = store.GenID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return s.keyedInsert(ctx,
		`INSERT INTO expenses (id, user_id, amount, currency, category, note, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (idempotency_key) DO NOTHING
		 RETURNING id`,
		e.ID, e.UserID, e.Amount, e.Currency, e.Category, e.Note, e.IdempotencyKey, e.CreatedAt,
	)
}

func (s *ActionStore) CountReminders(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE user_id = $1`, userID,
	).Scan(&n)
	return n, err
}

func (s *ActionStore) keyedInsert(ctx context.Context, query string, args ...any) (bool, error) {
	var returned uuid.UUID
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&returned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if IsUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
