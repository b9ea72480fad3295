// Package store defines the persisted records and storage interfaces for
// the assistant: users, conversations, messages, daily usage counters,
// and the thin action tables written by governed tools.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Message direction flags.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Conversation statuses.
const (
	ConversationActive = "active"
	ConversationClosed = "closed"
)

// NormalizedMessage is the canonical shape of one inbound channel event,
// produced by the channel normalizer and immutable afterwards.
type NormalizedMessage struct {
	SenderID         string    // external sender identifier (wa_id)
	SenderName       string    // display name, best-effort
	ChannelMessageID string    // channel message id (wamid), idempotency anchor
	ThreadID         string    // explicit thread/context id when the channel supplies one
	Type             string    // "text", "image", "audio", "document", "interactive"
	Text             string
	MediaRef         string    // channel media id for non-text messages
	ReceivedAt       time.Time
}

// User is a sender identity, keyed by the channel's stable external id.
type User struct {
	ID          uuid.UUID
	WaID        string
	DisplayName string
	CreatedAt   time.Time
}

// Conversation groups messages for one user. At most one conversation per
// user is active at a time.
type Conversation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ThreadID  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRecord is a persisted inbound or outbound message row.
// ChannelMessageID carries the uniqueness constraint for inbound rows.
type MessageRecord struct {
	ID               uuid.UUID
	ConversationID   uuid.UUID
	Direction        string
	Type             string
	Content          string
	MediaRef         string
	ChannelMessageID string
	CreatedAt        time.Time
}

// UserStore upserts and reads sender identities.
type UserStore interface {
	// UpsertByWaID inserts the user or refreshes the display name,
	// conflict-safe under concurrent redelivery.
	UpsertByWaID(ctx context.Context, waID, displayName string) (*User, error)
	GetByWaID(ctx context.Context, waID string) (*User, error)
}

// ConversationStore resolves and mutates conversations.
type ConversationStore interface {
	// GetActive returns the user's single active conversation, or ErrNotFound.
	GetActive(ctx context.Context, userID uuid.UUID) (*Conversation, error)
	// GetByThread looks up a conversation by explicit channel thread id.
	GetByThread(ctx context.Context, threadID string) (*Conversation, error)
	Create(ctx context.Context, userID uuid.UUID, threadID string) (*Conversation, error)
	Close(ctx context.Context, id uuid.UUID) error
	Touch(ctx context.Context, id uuid.UUID) error
}

// MessageStore inserts and reads message rows.
type MessageStore interface {
	// InsertInbound inserts under the channel-message-id uniqueness
	// constraint. inserted=false means the row already existed
	// (duplicate redelivery), which is a successful outcome.
	InsertInbound(ctx context.Context, rec *MessageRecord) (inserted bool, err error)
	InsertOutbound(ctx context.Context, rec *MessageRecord) error
	// ListRecent returns up to limit most-recent messages for the
	// conversation, oldest first.
	ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]MessageRecord, error)
}

// UsageStore tracks spend counters keyed by UTC date. Increments must be
// additive at the storage layer so concurrent turns never under-count.
type UsageStore interface {
	// AddSpend atomically adds cost (USD) to the day/user counter.
	AddSpend(ctx context.Context, day string, userID uuid.UUID, cost float64) error
	// DailySpent returns the total spent across all users for the day.
	DailySpent(ctx context.Context, day string) (float64, error)
	// UserSpent returns the amount spent by one user for the day.
	UserSpent(ctx context.Context, day string, userID uuid.UUID) (float64, error)
	// PruneBefore deletes counters older than the given day.
	PruneBefore(ctx context.Context, day string) (int64, error)
}

// Reminder, Meeting and Expense are the rows written by governed tools.
// The surrounding domain logic (notification delivery, calendar sync,
// reporting) lives outside this system; only persistence is in scope.
type Reminder struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Title          string
	DueAt          time.Time
	IdempotencyKey string
	CreatedAt      time.Time
}

type Meeting struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Title          string
	StartsAt       time.Time
	DurationMin    int
	Attendee       string
	IdempotencyKey string
	CreatedAt      time.Time
}

type Expense struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Amount         float64
	Currency       string
	Category       string
	Note           string
	IdempotencyKey string
	CreatedAt      time.Time
}

// ActionStore persists tool side effects. Each insert is keyed by an
// idempotency key so a timed-out-then-retried tool call lands once.
type ActionStore interface {
	InsertReminder(ctx context.Context, r *Reminder) (inserted bool, err error)
	InsertMeeting(ctx context.Context, m *Meeting) (inserted bool, err error)
	InsertExpense(ctx context.Context, e *Expense) (inserted bool, err error)
	CountReminders(ctx context.Context, userID uuid.UUID) (int, error)
}

// Stores bundles every storage interface behind one handle.
type Stores struct {
	Users         UserStore
	Conversations ConversationStore
	Messages      MessageStore
	Usage         UsageStore
	Actions       ActionStore
}

// GenID returns a new time-ordered row id.
func GenID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Day formats a timestamp as the UTC date key used by usage counters.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
