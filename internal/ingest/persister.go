// Package ingest turns a normalized channel event into durable rows:
// sender identity, conversation, and the inbound message under its
// uniqueness anchor.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/neeroai/migue.ai-sub000/internal/store"
	"github.com/neeroai/migue.ai-sub000/internal/store/sqldb"
)

// PersistResult reports where the message landed and whether this
// delivery was the first one.
type PersistResult struct {
	UserID         uuid.UUID
	ConversationID uuid.UUID
	WasInserted    bool
}

// Persister owns conversation and message row creation.
type Persister struct {
	stores    *store.Stores
	baseDelay time.Duration
	maxDelay  time.Duration
}

func NewPersister(stores *store.Stores) *Persister {
	return &Persister{
		stores:    stores,
		baseDelay: 500 * time.Millisecond,
		maxDelay:  5 * time.Second,
	}
}

// Persist upserts the sender, resolves the conversation, and inserts the
// inbound message. A duplicate redelivery is a successful outcome with
// WasInserted=false, never an error. Transient store failures get one
// retried attempt with jittered backoff; anything else propagates — the
// webhook has already been acked, so these are logged for diagnosis, not
// surfaced to the channel.
func (p *Persister) Persist(ctx context.Context, msg *store.NormalizedMessage) (*PersistResult, error) {
	var result *PersistResult

	err := p.withRetry(ctx, "persist inbound", func() error {
		var err error
		result, err = p.persistOnce(ctx, msg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Persister) persistOnce(ctx context.Context, msg *store.NormalizedMessage) (*PersistResult, error) {
	user, err := p.stores.Users.UpsertByWaID(ctx, msg.SenderID, msg.SenderName)
	if err != nil {
		return nil, fmt.Errorf("upsert sender: %w", err)
	}

	conv, err := p.resolveConversation(ctx, user.ID, msg.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}

	inserted, err := p.stores.Messages.InsertInbound(ctx, &store.MessageRecord{
		ConversationID:   conv.ID,
		Type:             msg.Type,
		Content:          msg.Text,
		MediaRef:         msg.MediaRef,
		ChannelMessageID: msg.ChannelMessageID,
		CreatedAt:        msg.ReceivedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("insert inbound message: %w", err)
	}

	if inserted {
		if err := p.stores.Conversations.Touch(ctx, conv.ID); err != nil {
			slog.Warn("conversation touch failed", "conversation", conv.ID, "error", err)
		}
	}

	return &PersistResult{
		UserID:         user.ID,
		ConversationID: conv.ID,
		WasInserted:    inserted,
	}, nil
}

// resolveConversation prefers an explicit thread id, then the user's
// single active conversation, then creates one.
func (p *Persister) resolveConversation(ctx context.Context, userID uuid.UUID, threadID string) (*store.Conversation, error) {
	if threadID != "" {
		conv, err := p.stores.Conversations.GetByThread(ctx, threadID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	conv, err := p.stores.Conversations.GetActive(ctx, userID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	return p.stores.Conversations.Create(ctx, userID, threadID)
}

// withRetry runs fn, retrying once on transient-class errors.
func (p *Persister) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || !sqldb.IsTransient(err) {
		return err
	}

	delay := p.baseDelay + time.Duration(rand.Int63n(int64(p.baseDelay)))
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	slog.Warn("transient store error, retrying", "op", op, "delay", delay, "error", err)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}

	if err := fn(); err != nil {
		return fmt.Errorf("%s (after retry): %w", op, err)
	}
	return nil
}
