// Package memory implements the store interfaces in process memory.
// Used by tests and by --standalone dev mode; everything resets on
// restart, so it is never the deployment default.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neeroai/migue.ai-sub000/internal/store"
)

// NewStores returns a fully in-memory store bundle sharing one lock.
func NewStores() *store.Stores {
	db := &memDB{
		usersByWaID:   make(map[string]*store.User),
		conversations: make(map[uuid.UUID]*store.Conversation),
		messagesByCMID: make(map[string]uuid.UUID),
		spend:          make(map[string]map[uuid.UUID]float64),
		actionKeys:     make(map[string]bool),
	}
	return &store.Stores{
		Users:         &userStore{db},
		Conversations: &conversationStore{db},
		Messages:      &messageStore{db},
		Usage:         &usageStore{db},
		Actions:       &actionStore{db},
	}
}

type memDB struct {
	mu sync.Mutex

	usersByWaID    map[string]*store.User
	conversations  map[uuid.UUID]*store.Conversation
	messages       []store.MessageRecord
	messagesByCMID map[string]uuid.UUID
	spend          map[string]map[uuid.UUID]float64 // day → user → spent
	actionKeys     map[string]bool
	Reminders      []store.Reminder
	Meetings       []store.Meeting
	Expenses       []store.Expense
}

type userStore struct{ db *memDB }

func (s *userStore) UpsertByWaID(_ context.Context, waID, displayName string) (*store.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if u, ok := s.db.usersByWaID[waID]; ok {
		if displayName != "" {
			u.DisplayName = displayName
		}
		cp := *u
		return &cp, nil
	}
	u := &store.User{
		ID:          store.GenID(),
		WaID:        waID,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	s.db.usersByWaID[waID] = u
	cp := *u
	return &cp, nil
}

func (s *userStore) GetByWaID(_ context.Context, waID string) (*store.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.usersByWaID[waID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type conversationStore struct{ db *memDB }

func (s *conversationStore) GetActive(_ context.Context, userID uuid.UUID) (*store.Conversation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var latest *store.Conversation
	for _, c := range s.db.conversations {
		if c.UserID == userID && c.Status == store.ConversationActive {
			if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) {
				latest = c
			}
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *conversationStore) GetByThread(_ context.Context, threadID string) (*store.Conversation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, c := range s.db.conversations {
		if c.ThreadID == threadID && threadID != "" {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *conversationStore) Create(_ context.Context, userID uuid.UUID, threadID string) (*store.Conversation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := time.Now().UTC()
	c := &store.Conversation{
		ID:        store.GenID(),
		UserID:    userID,
		ThreadID:  threadID,
		Status:    store.ConversationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.db.conversations[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *conversationStore) Close(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if c, ok := s.db.conversations[id]; ok {
		c.Status = store.ConversationClosed
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *conversationStore) Touch(_ context.Context, id uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if c, ok := s.db.conversations[id]; ok {
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}

type messageStore struct{ db *memDB }

func (s *messageStore) InsertInbound(_ context.Context, rec *store.MessageRecord) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if rec.ChannelMessageID != "" {
		if _, exists := s.db.messagesByCMID[rec.ChannelMessageID]; exists {
			return false, nil
		}
	}
	if rec.ID == uuid.Nil {
		rec.ID = store.GenID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Direction = store.DirectionInbound
	s.db.messages = append(s.db.messages, *rec)
	if rec.ChannelMessageID != "" {
		s.db.messagesByCMID[rec.ChannelMessageID] = rec.ID
	}
	return true, nil
}

func (s *messageStore) InsertOutbound(_ context.Context, rec *store.MessageRecord) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = store.GenID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Direction = store.DirectionOutbound
	s.db.messages = append(s.db.messages, *rec)
	return nil
}

func (s *messageStore) ListRecent(_ context.Context, conversationID uuid.UUID, limit int) ([]store.MessageRecord, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var msgs []store.MessageRecord
	for _, m := range s.db.messages {
		if m.ConversationID == conversationID {
			msgs = append(msgs, m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// All returns every stored message, test helper.
func (s *messageStore) All() []store.MessageRecord {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make([]store.MessageRecord, len(s.db.messages))
	copy(out, s.db.messages)
	return out
}

type usageStore struct{ db *memDB }

func (s *usageStore) AddSpend(_ context.Context, day string, userID uuid.UUID, cost float64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.spend[day] == nil {
		s.db.spend[day] = make(map[uuid.UUID]float64)
	}
	s.db.spend[day][userID] += cost
	return nil
}

func (s *usageStore) DailySpent(_ context.Context, day string) (float64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var total float64
	for _, v := range s.db.spend[day] {
		total += v
	}
	return total, nil
}

func (s *usageStore) UserSpent(_ context.Context, day string, userID uuid.UUID) (float64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.spend[day][userID], nil
}

func (s *usageStore) PruneBefore(_ context.Context, day string) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for d := range s.db.spend {
		if d < day {
			delete(s.db.spend, d)
			n++
		}
	}
	return n, nil
}

type actionStore struct{ db *memDB }

func (s *actionStore) InsertReminder(_ context.Context, r *store.Reminder) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.actionKeys[r.IdempotencyKey] {
		return false, nil
	}
	if r.ID == uuid.Nil {
		r.ID = store.GenID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.db.actionKeys[r.IdempotencyKey] = true
	s.db.Reminders = append(s.db.Reminders, *r)
	return true, nil
}

func (s *actionStore) InsertMeeting(_ context.Context, m *store.Meeting) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.actionKeys[m.IdempotencyKey] {
		return false, nil
	}
	if m.ID == uuid.Nil {
		m.ID = store.GenID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.db.actionKeys[m.IdempotencyKey] = true
	s.db.Meetings = append(s.db.Meetings, *m)
	return true, nil
}

func (s *actionStore) InsertExpense(_ context.Context, e *store.Expense) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.actionKeys[e.IdempotencyKey] {
		return false, nil
	}
	if e.ID == uuid.Nil {
		e.ID = store.GenID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.db.actionKeys[e.IdempotencyKey] = true
	s.db.Expenses = append(s.db.Expenses, *e)
	return true, nil
}

func (s *actionStore) CountReminders(_ context.Context, userID uuid.UUID) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int
	for _, r := range s.db.Reminders {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

// Reminders returns all stored reminders, test helper.
func Reminders(st *store.Stores) []store.Reminder {
	as, ok := st.Actions.(*actionStore)
	if !ok {
		return nil
	}
	as.db.mu.Lock()
	defer as.db.mu.Unlock()
	out := make([]store.Reminder, len(as.db.Reminders))
	copy(out, as.db.Reminders)
	return out
}

// Messages returns all stored messages, test helper.
func Messages(st *store.Stores) []store.MessageRecord {
	ms, ok := st.Messages.(*messageStore)
	if !ok {
		return nil
	}
	return ms.All()
}
