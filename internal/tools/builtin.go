package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/neeroai/migue.ai-sub000/internal/store"
)

// RegisterBuiltins wires the assistant's action tools into the registry.
// sender delivers side-channel messages for the send_message tool.
func RegisterBuiltins(r *Registry, stores *store.Stores, sender MessageSender) error {
	for _, t := range []Tool{
		&CreateReminderTool{actions: stores.Actions},
		&ScheduleMeetingTool{actions: stores.Actions},
		&RecordExpenseTool{actions: stores.Actions},
		&SendMessageTool{sender: sender},
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// MessageSender delivers a text message to an external recipient.
// Implemented by the WhatsApp channel client.
type MessageSender interface {
	SendText(ctx context.Context, to, text string) error
}

func stringArg(input map[string]any, key string) string {
	v, _ := input[key].(string)
	return v
}

func floatArg(input map[string]any, key string) float64 {
	switch v := input[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func timeArg(input map[string]any, key string) (time.Time, error) {
	s := stringArg(input, key)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing %s", key)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s (want RFC3339): %w", key, err)
	}
	return t, nil
}

// CreateReminderTool records a reminder for the user.
type CreateReminderTool struct {
	actions store.ActionStore
}

func (t *CreateReminderTool) Name() string { return "create_reminder" }

func (t *CreateReminderTool) Description() string {
	return "Create a reminder for the user. Requires a title and an RFC3339 due time."
}

func (t *CreateReminderTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":  map[string]any{"type": "string", "description": "What to remind about"},
			"due_at": map[string]any{"type": "string", "description": "Due time, RFC3339"},
		},
		"required": []string{"title", "due_at"},
	}
}

func (t *CreateReminderTool) Spec() Spec {
	return Spec{Risk: RiskMedium, Timeout: 5 * time.Second, Retries: 1, Idempotency: IdempotencyKeyed}
}

func (t *CreateReminderTool) Execute(ctx context.Context, call Call) (*Result, error) {
	title := stringArg(call.Input, "title")
	if title == "" {
		return ErrorResult("missing title"), nil
	}
	dueAt, err := timeArg(call.Input, "due_at")
	if err != nil {
		return ErrorResult(err.Error()), nil
	}

	inserted, err := t.actions.InsertReminder(ctx, &store.Reminder{
		UserID:         call.UserID,
		Title:          title,
		DueAt:          dueAt,
		IdempotencyKey: call.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	when := dueAt.Format("Mon Jan 2 15:04")
	if !inserted {
		return ConfirmResult(
			fmt.Sprintf("reminder %q already existed for %s", title, when),
			fmt.Sprintf("Reminder set: %s (%s)", title, when),
		), nil
	}
	return ConfirmResult(
		fmt.Sprintf("reminder %q created for %s", title, when),
		fmt.Sprintf("Reminder set: %s (%s)", title, when),
	), nil
}

// ScheduleMeetingTool records a meeting for the user.
type ScheduleMeetingTool struct {
	actions store.ActionStore
}

func (t *ScheduleMeetingTool) Name() string { return "schedule_meeting" }

func (t *ScheduleMeetingTool) Description() string {
	return "Schedule a meeting. Requires a title and an RFC3339 start time; duration defaults to 30 minutes."
}

func (t *ScheduleMeetingTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":        map[string]any{"type": "string"},
			"starts_at":    map[string]any{"type": "string", "description": "Start time, RFC3339"},
			"duration_min": map[string]any{"type": "number"},
			"attendee":     map[string]any{"type": "string"},
		},
		"required": []string{"title", "starts_at"},
	}
}

func (t *ScheduleMeetingTool) Spec() Spec {
	return Spec{Risk: RiskMedium, Timeout: 5 * time.Second, Retries: 1, Idempotency: IdempotencyKeyed}
}

func (t *ScheduleMeetingTool) Execute(ctx context.Context, call Call) (*Result, error) {
	title := stringArg(call.Input, "title")
	if title == "" {
		return ErrorResult("missing title"), nil
	}
	startsAt, err := timeArg(call.Input, "starts_at")
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	duration := int(floatArg(call.Input, "duration_min"))
	if duration <= 0 {
		duration = 30
	}

	_, err = t.actions.InsertMeeting(ctx, &store.Meeting{
		UserID:         call.UserID,
		Title:          title,
		StartsAt:       startsAt,
		DurationMin:    duration,
		Attendee:       stringArg(call.Input, "attendee"),
		IdempotencyKey: call.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	when := startsAt.Format("Mon Jan 2 15:04")
	return ConfirmResult(
		fmt.Sprintf("meeting %q scheduled for %s (%d min)", title, when, duration),
		fmt.Sprintf("Meeting scheduled: %s, %s", title, when),
	), nil
}

// RecordExpenseTool records an expense for the user.
type RecordExpenseTool struct {
	actions store.ActionStore
}

func (t *RecordExpenseTool) Name() string { return "record_expense" }

func (t *RecordExpenseTool) Description() string {
	return "Record an expense. Requires a positive amount; currency defaults to USD."
}

func (t *RecordExpenseTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"amount":   map[string]any{"type": "number"},
			"currency": map[string]any{"type": "string"},
			"category": map[string]any{"type": "string"},
			"note":     map[string]any{"type": "string"},
		},
		"required": []string{"amount"},
	}
}

func (t *RecordExpenseTool) Spec() Spec {
	return Spec{Risk: RiskMedium, Timeout: 5 * time.Second, Retries: 1, Idempotency: IdempotencyKeyed}
}

func (t *RecordExpenseTool) Execute(ctx context.Context, call Call) (*Result, error) {
	amount := floatArg(call.Input, "amount")
	if amount <= 0 {
		return ErrorResult("amount must be positive"), nil
	}
	currency := stringArg(call.Input, "currency")
	if currency == "" {
		currency = "USD"
	}

	_, err := t.actions.InsertExpense(ctx, &store.Expense{
		UserID:         call.UserID,
		Amount:         amount,
		Currency:       currency,
		Category:       stringArg(call.Input, "category"),
		Note:           stringArg(call.Input, "note"),
		IdempotencyKey: call.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	return ConfirmResult(
		fmt.Sprintf("expense recorded: %.2f %s", amount, currency),
		fmt.Sprintf("Expense recorded: %.2f %s", amount, currency),
	), nil
}

// SendMessageTool delivers a message to a third party. High risk: the
// recipient must be on the operator allowlist and the user must have
// explicitly consented.
type SendMessageTool struct {
	sender MessageSender
}

func (t *SendMessageTool) Name() string { return "send_message" }

func (t *SendMessageTool) Description() string {
	return "Send a WhatsApp message to another person on the user's behalf."
}

func (t *SendMessageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to":   map[string]any{"type": "string", "description": "Recipient phone number"},
			"text": map[string]any{"type": "string"},
		},
		"required": []string{"to", "text"},
	}
}

func (t *SendMessageTool) Spec() Spec {
	return Spec{Risk: RiskHigh, Timeout: 10 * time.Second, Retries: 1, Idempotency: IdempotencyNone}
}

// Recipient implements RecipientTargeted for allowlist checks.
func (t *SendMessageTool) Recipient(call Call) string {
	return stringArg(call.Input, "to")
}

func (t *SendMessageTool) Execute(ctx context.Context, call Call) (*Result, error) {
	to := stringArg(call.Input, "to")
	text := stringArg(call.Input, "text")
	if to == "" || text == "" {
		return ErrorResult("missing to or text"), nil
	}
	if err := t.sender.SendText(ctx, to, text); err != nil {
		return nil, err
	}
	return ConfirmResult(
		fmt.Sprintf("message delivered to %s", to),
		fmt.Sprintf("Sent your message to %s.", to),
	), nil
}
