package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "app-secret"
	body := []byte(`{"object":"whatsapp_business_account"}`)

	tests := []struct {
		name   string
		secret string
		body   []byte
		header string
		want   bool
	}{
		{"valid", secret, body, sign(secret, body), true},
		{"wrong secret", secret, body, sign("other-secret", body), false},
		{"tampered body", secret, []byte(`{"object":"tampered"}`), sign(secret, body), false},
		{"missing prefix", secret, body, hex.EncodeToString([]byte("raw")), false},
		{"malformed hex", secret, body, "sha256=not-hex!", false},
		{"empty header", secret, body, "", false},
		{"empty secret", "", body, sign("", body), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature(tt.secret, tt.body, tt.header)
			if got != tt.want {
				t.Errorf("VerifySignature = %v, want %v", got, tt.want)
			}
		})
	}
}
