package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/neeroai/migue.ai-sub000/internal/store"
	"github.com/neeroai/migue.ai-sub000/internal/tools"
)

// Dispatcher persists the outbound message and hands it to the delivery
// channel adapter. Best-effort on both legs: a dispatch failure after
// the ack can only be logged.
type Dispatcher struct {
	messages store.MessageStore
	sender   tools.MessageSender
}

func NewDispatcher(messages store.MessageStore, sender tools.MessageSender) *Dispatcher {
	return &Dispatcher{messages: messages, sender: sender}
}

// Send records and delivers one outbound text message.
func (d *Dispatcher) Send(ctx context.Context, conversationID uuid.UUID, to, text string) {
	if text == "" {
		return
	}

	if err := d.messages.InsertOutbound(ctx, &store.MessageRecord{
		ConversationID: conversationID,
		Type:           "text",
		Content:        text,
	}); err != nil {
		slog.Error("outbound message persist failed", "conversation", conversationID, "error", err)
	}

	if err := d.sender.SendText(ctx, to, text); err != nil {
		slog.Error("outbound delivery failed", "to", to, "error", err)
	}
}
