// Package pipeline orchestrates the asynchronous half of message
// processing: persist, window update, agent turn, dispatch. It starts
// after the webhook ack, so nothing here may surface an error to the
// channel — the boundary catches everything.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/neeroai/migue.ai-sub000/internal/agent"
	"github.com/neeroai/migue.ai-sub000/internal/ingest"
	"github.com/neeroai/migue.ai-sub000/internal/store"
)

var tracer = otel.Tracer("migue/pipeline")

const apologyMessage = "Sorry, something went wrong on my side. Please try again."

// jobTimeout bounds one whole pipeline run, model latency included.
const jobTimeout = 90 * time.Second

// Pipeline wires the post-ack stages together.
type Pipeline struct {
	persister  *ingest.Persister
	executor   *agent.Executor
	dispatcher *Dispatcher
	window     WindowCalculator
}

func New(persister *ingest.Persister, executor *agent.Executor, dispatcher *Dispatcher, window WindowCalculator) *Pipeline {
	if window == nil {
		window = NopWindowCalculator{}
	}
	return &Pipeline{
		persister:  persister,
		executor:   executor,
		dispatcher: dispatcher,
		window:     window,
	}
}

// Process runs one inbound message through the pipeline. It never
// returns an error: every failure is logged and, when a conversation is
// known, answered with a best-effort apology.
func (p *Pipeline) Process(ctx context.Context, msg *store.NormalizedMessage, requestID string) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "pipeline.process")
	span.SetAttributes(attribute.String("request_id", requestID))
	defer span.End()

	persisted, err := p.persister.Persist(ctx, msg)
	if err != nil {
		// Already acked; nothing can reach the channel. Log with
		// enough detail to diagnose a misconfiguration.
		slog.Error("persist failed after ack",
			"request_id", requestID, "sender", msg.SenderID,
			"channel_message_id", msg.ChannelMessageID, "error", err)
		return
	}

	if !persisted.WasInserted {
		// Duplicate redelivery: terminal. No model call, no tool
		// execution, no reply — the first delivery handled all of it.
		slog.Info("duplicate delivery ignored",
			"request_id", requestID, "channel_message_id", msg.ChannelMessageID)
		return
	}

	if err := p.window.UpdateOnInbound(ctx, persisted.UserID, msg.ReceivedAt); err != nil {
		slog.Warn("messaging-window update failed", "error", err)
	}

	pathway := ChoosePathway(msg)
	result, err := p.executor.ExecuteTurn(ctx, agent.TurnRequest{
		ConversationID: persisted.ConversationID,
		UserID:         persisted.UserID,
		Message:        turnText(msg),
		MessageID:      msg.ChannelMessageID,
		MediaType:      msg.Type,
		Pathway:        pathway,
		// A typed, directly-phrased action request carries the user's
		// consent; content inferred from media never does.
		ExplicitConsent: pathway == agent.PathwayToolIntent,
	})
	if err != nil {
		slog.Error("agent turn failed", "request_id", requestID, "error", err)
		p.dispatcher.Send(ctx, persisted.ConversationID, msg.SenderID, apologyMessage)
		return
	}

	slog.Info("turn completed",
		"request_id", requestID, "pathway", pathway,
		"finish", result.FinishReason, "tool_calls", result.ToolCallCount,
		"cost", result.Cost,
	)

	p.dispatcher.Send(ctx, persisted.ConversationID, msg.SenderID, result.ResponseText)
}

// turnText is what the model sees for the inbound message.
func turnText(msg *store.NormalizedMessage) string {
	if msg.Text != "" {
		return msg.Text
	}
	return "[" + msg.Type + " message]"
}
