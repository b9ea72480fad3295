package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/neeroai/migue.ai-sub000/internal/providers"
	"github.com/neeroai/migue.ai-sub000/internal/store"
)

// MemoryStore is the long-term semantic memory collaborator. The real
// implementation lives outside this system; NopMemory stands in when
// none is configured.
type MemoryStore interface {
	// Retrieve returns context snippets relevant to the query, at most
	// limit entries.
	Retrieve(ctx context.Context, userID uuid.UUID, query string, limit int) ([]string, error)
}

// NopMemory retrieves nothing.
type NopMemory struct{}

func (NopMemory) Retrieve(context.Context, uuid.UUID, string, int) ([]string, error) {
	return nil, nil
}

// Classifier assigns a complexity tier to an inbound message. External
// collaborator; HeuristicClassifier is the built-in default.
type Classifier interface {
	Classify(text string, mediaType string) string
}

// HeuristicClassifier maps message shape to a complexity tier.
type HeuristicClassifier struct{}

func (HeuristicClassifier) Classify(text string, mediaType string) string {
	switch {
	case mediaType != "" && mediaType != "text":
		return "high"
	case len(text) > 600:
		return "high"
	case len(text) > 160:
		return "medium"
	default:
		return "low"
	}
}

const systemPrompt = `You are migue, a personal WhatsApp assistant. You help with reminders, meetings, and expense tracking. Reply briefly and naturally, in the user's language. Use a tool when the user asks for an action; otherwise just answer.`

// buildMessages assembles the prompt: system, memory snippets, bounded
// history, then the new user message.
func (e *Executor) buildMessages(ctx context.Context, req TurnRequest, prof pathwayProfile) []providers.Message {
	messages := []providers.Message{{Role: "system", Content: systemPrompt}}

	if prof.UseMemory && e.memory != nil {
		snippets, err := e.memory.Retrieve(ctx, req.UserID, req.Message, 5)
		if err != nil {
			slog.Warn("memory retrieval failed", "error", err)
		} else if len(snippets) > 0 {
			content := "Relevant context about this user:"
			for _, s := range snippets {
				content += "\n- " + s
			}
			messages = append(messages, providers.Message{Role: "system", Content: content})
		}
	}

	history, err := e.stores.Messages.ListRecent(ctx, req.ConversationID, prof.HistoryLimit)
	if err != nil {
		slog.Warn("history load failed", "conversation", req.ConversationID, "error", err)
	}
	for _, m := range history {
		// The just-persisted inbound message is part of history;
		// skip it so it appears exactly once, as the final turn.
		if m.ChannelMessageID != "" && m.ChannelMessageID == req.MessageID {
			continue
		}
		role := "user"
		if m.Direction == store.DirectionOutbound {
			role = "assistant"
		}
		content := m.Content
		if content == "" && m.MediaRef != "" {
			content = fmt.Sprintf("[%s message]", m.Type)
		}
		messages = append(messages, providers.Message{Role: role, Content: content})
	}

	messages = append(messages, providers.Message{Role: "user", Content: req.Message})
	return messages
}

// historyTexts extracts plain content for token estimation.
func historyTexts(messages []providers.Message) []string {
	texts := make([]string, 0, len(messages))
	for _, m := range messages {
		texts = append(texts, m.Content)
	}
	return texts
}
