package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WindowCalculator tracks the 24-hour messaging-window eligibility for
// proactively-initiated messages. External collaborator; the pipeline
// only notifies it of inbound activity.
type WindowCalculator interface {
	UpdateOnInbound(ctx context.Context, userID uuid.UUID, receivedAt time.Time) error
}

// NopWindowCalculator ignores updates.
type NopWindowCalculator struct{}

func (NopWindowCalculator) UpdateOnInbound(context.Context, uuid.UUID, time.Time) error {
	return nil
}

// Transcriber converts audio media into text. External collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaRef string) (string, error)
}

// NopTranscriber returns empty text, leaving audio messages to be
// answered from their type alone.
type NopTranscriber struct{}

func (NopTranscriber) Transcribe(context.Context, string) (string, error) {
	return "", nil
}
