package whatsapp

import (
	"strconv"
	"time"

	"github.com/neeroai/migue.ai-sub000/internal/store"
)

// Normalize converts a webhook envelope into the canonical message
// shape. The Cloud API batches entries and changes, but in practice one
// delivery carries one user message; the first message of the first
// change wins. Status-only payloads return nil: nothing to process.
func Normalize(env *Envelope) *store.NormalizedMessage {
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) == 0 {
				continue
			}
			msg := change.Value.Messages[0]

			name := ""
			if len(change.Value.Contacts) > 0 {
				name = change.Value.Contacts[0].Profile.Name
			}

			n := &store.NormalizedMessage{
				SenderID:         msg.From,
				SenderName:       name,
				ChannelMessageID: msg.ID,
				Type:             msg.Type,
				ReceivedAt:       parseTimestamp(msg.Timestamp),
			}
			if msg.Context != nil {
				n.ThreadID = msg.Context.ID
			}

			switch msg.Type {
			case "text":
				if msg.Text != nil {
					n.Text = msg.Text.Body
				}
			case "image":
				if msg.Image != nil {
					n.MediaRef = msg.Image.ID
					n.Text = msg.Image.Caption
				}
			case "audio":
				if msg.Audio != nil {
					n.MediaRef = msg.Audio.ID
				}
			case "document":
				if msg.Document != nil {
					n.MediaRef = msg.Document.ID
					n.Text = msg.Document.Caption
				}
			case "interactive":
				if msg.Interactive != nil {
					switch {
					case msg.Interactive.ButtonReply != nil:
						n.Text = msg.Interactive.ButtonReply.Title
					case msg.Interactive.ListReply != nil:
						n.Text = msg.Interactive.ListReply.Title
					}
				}
			}
			return n
		}
	}
	return nil
}

func parseTimestamp(s string) time.Time {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	return time.Now().UTC()
}
