package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/neeroai/migue.ai-sub000/internal/config"
	"github.com/neeroai/migue.ai-sub000/internal/providers"
)

// Client sends messages through the Graph API. It is the delivery
// channel adapter consumed by the dispatcher and the send_message tool.
type Client struct {
	phoneNumberID string
	accessToken   string
	baseURL       string
	http          *http.Client
	retry         providers.RetryConfig
}

func NewClient(cfg config.WhatsAppConfig) *Client {
	base := cfg.GraphBaseURL
	if base == "" {
		base = "https://graph.facebook.com/v21.0"
	}
	return &Client{
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		baseURL:       strings.TrimRight(base, "/"),
		http:          &http.Client{Timeout: 15 * time.Second},
		retry:         providers.DefaultRetryConfig(),
	}
}

// SendText delivers a text message to the recipient's wa_id.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	payload, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": text},
	})
	if err != nil {
		return fmt.Errorf("whatsapp: marshal message: %w", err)
	}

	_, err = providers.RetryDo(ctx, c.retry, func() (struct{}, error) {
		return struct{}{}, c.post(ctx, payload)
	})
	return err
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &providers.HTTPError{
			Provider:   "whatsapp",
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: providers.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return nil
}
