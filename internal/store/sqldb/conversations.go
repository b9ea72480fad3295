package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/neeroai/migue.ai-sub000/internal/store"
)

// ConversationStore implements store.ConversationStore over database/sql.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

const convCols = `id, user_id, thread_id, status, created_at, updated_at`

func (s *ConversationStore) GetActive(ctx context.Context, userID uuid.UUID) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+convCols+` FROM conversations
		 WHERE user_id = $1 AND status = $2
		 ORDER BY updated_at DESC LIMIT 1`,
		userID, store.ConversationActive,
	)
	return scanConversation(row)
}

func (s *ConversationStore) GetByThread(ctx context.Context, threadID string) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+convCols+` FROM conversations WHERE thread_id = $1 LIMIT 1`,
		threadID,
	)
	return scanConversation(row)
}

func (s *ConversationStore) Create(ctx context.Context, userID uuid.UUID, threadID string) (*store.Conversation, error) {
	now := time.Now().UTC()
	c := &store.Conversation{
		ID:        store.GenID(),
		UserID:    userID,
		ThreadID:  threadID,
		Status:    store.ConversationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, thread_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.UserID, c.ThreadID, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ConversationStore) Close(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = $1, updated_at = $2 WHERE id = $3`,
		store.ConversationClosed, time.Now().UTC(), id,
	)
	return err
}

func (s *ConversationStore) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	return err
}

func scanConversation(row *sql.Row) (*store.Conversation, error) {
	c := &store.Conversation{}
	var threadID sql.NullString
	err := row.Scan(&c.ID, &c.UserID, &threadID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.ThreadID = threadID.String
	return c, nil
}
