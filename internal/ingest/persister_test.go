package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/neeroai/migue.ai-sub000/internal/store"
	"github.com/neeroai/migue.ai-sub000/internal/store/memory"
)

func normalized(cmid, text string) *store.NormalizedMessage {
	return &store.NormalizedMessage{
		SenderID:         "573001112233",
		SenderName:       "Ana",
		ChannelMessageID: cmid,
		Type:             "text",
		Text:             text,
		ReceivedAt:       time.Now().UTC(),
	}
}

func TestPersistFirstDelivery(t *testing.T) {
	st := memory.NewStores()
	p := NewPersister(st)

	res, err := p.Persist(context.Background(), normalized("wamid.123", "hola"))
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if !res.WasInserted {
		t.Error("WasInserted = false, want true for first delivery")
	}

	msgs := memory.Messages(st)
	if len(msgs) != 1 {
		t.Fatalf("stored messages = %d, want 1", len(msgs))
	}
	if msgs[0].ChannelMessageID != "wamid.123" {
		t.Errorf("ChannelMessageID = %q", msgs[0].ChannelMessageID)
	}
	if msgs[0].Direction != store.DirectionInbound {
		t.Errorf("Direction = %q", msgs[0].Direction)
	}
}

func TestPersistDuplicateDelivery(t *testing.T) {
	st := memory.NewStores()
	p := NewPersister(st)
	ctx := context.Background()

	first, err := p.Persist(ctx, normalized("wamid.123", "hola"))
	if err != nil {
		t.Fatalf("first Persist: %v", err)
	}
	second, err := p.Persist(ctx, normalized("wamid.123", "hola"))
	if err != nil {
		t.Fatalf("duplicate Persist: %v", err)
	}

	if !first.WasInserted {
		t.Error("first WasInserted = false")
	}
	if second.WasInserted {
		t.Error("duplicate WasInserted = true, want false")
	}
	if first.ConversationID != second.ConversationID {
		t.Errorf("conversation diverged: %s vs %s", first.ConversationID, second.ConversationID)
	}
	if got := len(memory.Messages(st)); got != 1 {
		t.Errorf("stored messages = %d, want exactly 1", got)
	}
}

func TestPersistReusesActiveConversation(t *testing.T) {
	st := memory.NewStores()
	p := NewPersister(st)
	ctx := context.Background()

	a, err := p.Persist(ctx, normalized("wamid.a", "primero"))
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	b, err := p.Persist(ctx, normalized("wamid.b", "segundo"))
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}

	if a.ConversationID != b.ConversationID {
		t.Errorf("messages from one sender landed in different conversations: %s vs %s",
			a.ConversationID, b.ConversationID)
	}
	if a.UserID != b.UserID {
		t.Errorf("user diverged: %s vs %s", a.UserID, b.UserID)
	}
}

func TestPersistPrefersThreadConversation(t *testing.T) {
	st := memory.NewStores()
	p := NewPersister(st)
	ctx := context.Background()

	first, err := p.Persist(ctx, normalized("wamid.a", "primero"))
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}

	// A second sender replying into an explicit thread joins that
	// conversation instead of opening their own.
	user, err := st.Users.UpsertByWaID(ctx, "573009998877", "Beto")
	if err != nil {
		t.Fatalf("UpsertByWaID: %v", err)
	}
	threaded, err := st.Conversations.Create(ctx, user.ID, "wamid.thread")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	msg := normalized("wamid.c", "en el hilo")
	msg.ThreadID = "wamid.thread"
	res, err := p.Persist(ctx, msg)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}

	if res.ConversationID != threaded.ID {
		t.Errorf("ConversationID = %s, want thread conversation %s", res.ConversationID, threaded.ID)
	}
	if res.ConversationID == first.ConversationID {
		t.Error("threaded message fell back to the sender's active conversation")
	}
}
