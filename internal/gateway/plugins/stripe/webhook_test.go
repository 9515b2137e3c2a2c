package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/smallbiznis/payway/internal/gateway/domain"
	"go.uber.org/zap"
)

func signPayload(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%s.%s", timestamp, string(payload))))
	return hex.EncodeToString(mac.Sum(nil))
}

func testGateway() *Gateway {
	return &Gateway{log: zap.NewNop()}
}

func configWith(mode string, raw map[string]any) domain.Config {
	return domain.Config{
		Code:     "stripe",
		Name:     "Stripe",
		Settings: domain.NewSettings(mode, raw),
	}
}

func TestVerifyWebhookValidSignature(t *testing.T) {
	g := testGateway()
	cfg := configWith(domain.ModeLive, map[string]any{"live_webhook_secret": "whsec_test"})
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=12345,v1=%s", signPayload("whsec_test", "12345", payload)))

	if err := g.VerifyWebhook(context.Background(), cfg, payload, headers); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyWebhookBadSignature(t *testing.T) {
	g := testGateway()
	cfg := configWith(domain.ModeLive, map[string]any{"live_webhook_secret": "whsec_test"})
	payload := []byte(`{"id":"evt_1"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", "t=12345,v1=deadbeef")

	if err := g.VerifyWebhook(context.Background(), cfg, payload, headers); !errors.Is(err, domain.ErrWebhookSignature) {
		t.Fatalf("expected ErrWebhookSignature, got %v", err)
	}
}

func TestVerifyWebhookMissingHeader(t *testing.T) {
	g := testGateway()
	cfg := configWith(domain.ModeLive, map[string]any{"live_webhook_secret": "whsec_test"})

	if err := g.VerifyWebhook(context.Background(), cfg, []byte(`{}`), http.Header{}); !errors.Is(err, domain.ErrWebhookSignature) {
		t.Fatalf("expected ErrWebhookSignature, got %v", err)
	}
}

func TestVerifyWebhookUnsignedLiveModeRejected(t *testing.T) {
	g := testGateway()
	cfg := configWith(domain.ModeLive, map[string]any{})

	if err := g.VerifyWebhook(context.Background(), cfg, []byte(`{}`), http.Header{}); !errors.Is(err, domain.ErrWebhookSignature) {
		t.Fatalf("unsigned payload must be rejected in live mode, got %v", err)
	}
}

func TestVerifyWebhookUnsignedTestModeAccepted(t *testing.T) {
	g := testGateway()
	cfg := configWith(domain.ModeTest, map[string]any{})

	if err := g.VerifyWebhook(context.Background(), cfg, []byte(`{}`), http.Header{}); err != nil {
		t.Fatalf("unsigned payload should pass outside live mode, got %v", err)
	}
}

func TestVerifyWebhookModeScopedSecret(t *testing.T) {
	g := testGateway()
	// Only the test secret is set; in live mode it must not be consulted.
	cfg := configWith(domain.ModeLive, map[string]any{"test_webhook_secret": "whsec_test"})
	payload := []byte(`{"id":"evt_1"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=1,v1=%s", signPayload("whsec_test", "1", payload)))

	if err := g.VerifyWebhook(context.Background(), cfg, payload, headers); !errors.Is(err, domain.ErrWebhookSignature) {
		t.Fatalf("live mode must ignore test credentials, got %v", err)
	}
}

func TestHandleWebhookUnknownEventIgnored(t *testing.T) {
	g := testGateway()
	cfg := configWith(domain.ModeTest, nil)

	err := g.HandleWebhook(context.Background(), cfg, []byte(`{"id":"evt_1","type":"customer.created"}`))
	if !errors.Is(err, domain.ErrWebhookIgnored) {
		t.Fatalf("expected ErrWebhookIgnored, got %v", err)
	}
}

func TestHandleWebhookMalformedPayload(t *testing.T) {
	g := testGateway()
	cfg := configWith(domain.ModeTest, nil)

	if err := g.HandleWebhook(context.Background(), cfg, []byte(`not json`)); !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestParseSignatureHeader(t *testing.T) {
	timestamp, signatures, err := parseSignatureHeader("t=123, v1=abc, v1=def, v0=old")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if timestamp != "123" {
		t.Fatalf("expected timestamp 123, got %q", timestamp)
	}
	if len(signatures) != 2 || signatures[0] != "abc" || signatures[1] != "def" {
		t.Fatalf("unexpected signatures: %v", signatures)
	}

	if _, _, err := parseSignatureHeader("v1=abc"); err == nil {
		t.Fatal("expected error for header without timestamp")
	}
}
