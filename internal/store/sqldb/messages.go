package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/neeroai/migue.ai-sub000/internal/store"
)

// MessageStore implements store.MessageStore over database/sql.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// InsertInbound inserts the row under the channel_message_id uniqueness
// constraint. ON CONFLICT DO NOTHING plus RETURNING means a redelivered
// message yields sql.ErrNoRows instead of an error — that absence of a
// returned row is the idempotency anchor: it survives process restarts
// and concurrent redelivery, unlike any in-process cache.
func (s *MessageStore) InsertInbound(ctx context.Context, rec *store.MessageRecord) (bool, error) {
	if rec.ID == uuid.Nil {
		rec.ID = store.GenID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var returned uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (id, conversation_id, direction, type, content, media_ref, channel_message_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (channel_message_id) DO NOTHING
		 RETURNING id`,
		rec.ID, rec.ConversationID, store.DirectionInbound, rec.Type,
		rec.Content, rec.MediaRef, rec.ChannelMessageID, rec.CreatedAt,
	).Scan(&returned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if IsUniqueViolation(err) {
		// Some drivers surface the conflict instead of swallowing it;
		// same outcome: duplicate redelivery, not an error.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MessageStore) InsertOutbound(ctx context.Context, rec *store.MessageRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = store.GenID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, direction, type, content, media_ref, channel_message_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULL, $7)`,
		rec.ID, rec.ConversationID, store.DirectionOutbound, rec.Type,
		rec.Content, rec.MediaRef, rec.CreatedAt,
	)
	return err
}

func (s *MessageStore) ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, direction, type, content, media_ref, channel_message_id, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []store.MessageRecord
	for rows.Next() {
		var m store.MessageRecord
		var cmid sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Type,
			&m.Content, &m.MediaRef, &cmid, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ChannelMessageID = cmid.String
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to oldest-first for prompt assembly.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
