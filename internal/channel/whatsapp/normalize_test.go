package whatsapp

import (
	"encoding/json"
	"testing"
	"time"
)

func envelopeFromJSON(t *testing.T, raw string) *Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return &env
}

const textEnvelope = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "102290129",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"metadata": {"display_phone_number": "15550000000", "phone_number_id": "123456"},
				"contacts": [{"wa_id": "573001112233", "profile": {"name": "Ana"}}],
				"messages": [{
					"id": "wamid.HBgLNTcz=",
					"from": "573001112233",
					"timestamp": "1724932800",
					"type": "text",
					"text": {"body": "hola, recuerdame pagar el arriendo"}
				}]
			}
		}]
	}]
}`

func TestNormalizeText(t *testing.T) {
	msg := Normalize(envelopeFromJSON(t, textEnvelope))
	if msg == nil {
		t.Fatal("expected a normalized message")
	}
	if msg.SenderID != "573001112233" {
		t.Errorf("SenderID = %q", msg.SenderID)
	}
	if msg.SenderName != "Ana" {
		t.Errorf("SenderName = %q", msg.SenderName)
	}
	if msg.ChannelMessageID != "wamid.HBgLNTcz=" {
		t.Errorf("ChannelMessageID = %q", msg.ChannelMessageID)
	}
	if msg.Type != "text" {
		t.Errorf("Type = %q", msg.Type)
	}
	if msg.Text != "hola, recuerdame pagar el arriendo" {
		t.Errorf("Text = %q", msg.Text)
	}
	want := time.Unix(1724932800, 0).UTC()
	if !msg.ReceivedAt.Equal(want) {
		t.Errorf("ReceivedAt = %v, want %v", msg.ReceivedAt, want)
	}
}

func TestNormalizeStatusOnly(t *testing.T) {
	env := envelopeFromJSON(t, `{
		"object": "whatsapp_business_account",
		"entry": [{"id": "1", "changes": [{"field": "messages", "value": {
			"messaging_product": "whatsapp",
			"statuses": [{"id": "wamid.X", "status": "delivered", "recipient_id": "573001112233"}]
		}}]}]
	}`)
	if msg := Normalize(env); msg != nil {
		t.Fatalf("status-only delivery should normalize to nil, got %+v", msg)
	}
}

func TestNormalizeImageCaption(t *testing.T) {
	env := envelopeFromJSON(t, `{
		"object": "whatsapp_business_account",
		"entry": [{"id": "1", "changes": [{"field": "messages", "value": {
			"messaging_product": "whatsapp",
			"messages": [{
				"id": "wamid.IMG", "from": "57300", "timestamp": "1724932800",
				"type": "image",
				"image": {"id": "media-42", "mime_type": "image/jpeg", "caption": "mi recibo"}
			}]
		}}]}]
	}`)
	msg := Normalize(env)
	if msg == nil {
		t.Fatal("expected a normalized message")
	}
	if msg.MediaRef != "media-42" {
		t.Errorf("MediaRef = %q", msg.MediaRef)
	}
	if msg.Text != "mi recibo" {
		t.Errorf("Text = %q", msg.Text)
	}
}

func TestNormalizeInteractiveReply(t *testing.T) {
	env := envelopeFromJSON(t, `{
		"object": "whatsapp_business_account",
		"entry": [{"id": "1", "changes": [{"field": "messages", "value": {
			"messaging_product": "whatsapp",
			"messages": [{
				"id": "wamid.BTN", "from": "57300", "timestamp": "1724932800",
				"type": "interactive",
				"context": {"id": "wamid.PARENT"},
				"interactive": {"type": "button_reply", "button_reply": {"id": "confirm", "title": "Confirmar"}}
			}]
		}}]}]
	}`)
	msg := Normalize(env)
	if msg == nil {
		t.Fatal("expected a normalized message")
	}
	if msg.Text != "Confirmar" {
		t.Errorf("Text = %q", msg.Text)
	}
	if msg.ThreadID != "wamid.PARENT" {
		t.Errorf("ThreadID = %q", msg.ThreadID)
	}
}

func TestNormalizeEmptyEnvelope(t *testing.T) {
	if msg := Normalize(&Envelope{}); msg != nil {
		t.Fatalf("empty envelope should normalize to nil, got %+v", msg)
	}
}
