package whatsapp

import (
	"encoding/json"
	"html"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/neeroai/migue.ai-sub000/internal/config"
	"github.com/neeroai/migue.ai-sub000/internal/ingest"
	"github.com/neeroai/migue.ai-sub000/internal/store"
)

const maxBodyBytes = 1 << 20

// EnqueueFunc hands a normalized message to the background pipeline.
// Returns false when the queue cannot accept the job.
type EnqueueFunc func(msg *store.NormalizedMessage, requestID string) bool

// Webhook is the ingestion HTTP surface. The POST handler does only
// sub-50ms synchronous work — signature check, parse, rate-limit gate —
// then acks; everything downstream runs on the background runner.
type Webhook struct {
	cfg     config.WhatsAppConfig
	limiter *ingest.SenderLimiter
	enqueue EnqueueFunc
	mux     *http.ServeMux
}

func NewWebhook(cfg config.WhatsAppConfig, limiter *ingest.SenderLimiter, enqueue EnqueueFunc) *Webhook {
	w := &Webhook{cfg: cfg, limiter: limiter, enqueue: enqueue, mux: http.NewServeMux()}
	w.mux.HandleFunc("GET /webhook", w.handleVerification)
	w.mux.HandleFunc("POST /webhook", w.handleEvent)
	w.mux.HandleFunc("GET /health", handleHealth)
	return w
}

// ServeHTTP implements http.Handler.
func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mux.ServeHTTP(rw, r)
}

func handleHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(map[string]string{"status": "ok"})
}

// handleVerification echoes the subscription challenge. Used once at
// channel-subscription setup time.
func (w *Webhook) handleVerification(rw http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token != "" && token == w.cfg.VerifyToken {
		slog.Info("webhook subscription verified")
		rw.WriteHeader(http.StatusOK)
		io.WriteString(rw, html.EscapeString(challenge))
		return
	}

	slog.Warn("webhook verification rejected", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

type ackResponse struct {
	Success           bool   `json:"success"`
	RequestID         string `json:"request_id,omitempty"`
	Reason            string `json:"reason,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// handleEvent acks every authenticated, parseable delivery with 200 —
// never 5xx, so the channel's retry storm cannot amplify internal
// failures. Only signature failure (401) and malformed payload (400)
// produce non-200 responses.
func (w *Webhook) handleEvent(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	if !VerifySignature(w.cfg.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		slog.Warn("webhook signature verification failed")
		http.Error(rw, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		slog.Warn("webhook payload unparseable", "error", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	requestID := uuid.Must(uuid.NewV7()).String()

	msg := Normalize(&env)
	if msg == nil {
		// Status-only delivery; nothing to process.
		writeAck(rw, ackResponse{Success: true, RequestID: requestID})
		return
	}

	if !w.limiter.Allow(msg.SenderID) {
		slog.Info("sender rate limited", "sender", msg.SenderID)
		writeAck(rw, ackResponse{
			Success:           false,
			Reason:            "rate_limited",
			RetryAfterSeconds: int(w.limiter.RetryAfter().Seconds()),
		})
		return
	}

	if !w.enqueue(msg, requestID) {
		// Queue saturated. Still ack: the channel redelivers, and the
		// idempotency anchor makes the redelivery safe.
		slog.Error("pipeline queue full, dropping event", "request_id", requestID,
			"channel_message_id", msg.ChannelMessageID)
	}

	writeAck(rw, ackResponse{Success: true, RequestID: requestID})
}

func writeAck(rw http.ResponseWriter, ack ackResponse) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	json.NewEncoder(rw).Encode(ack)
}
