package square

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	"github.com/smallbiznis/payway/internal/gateway/base"
	"github.com/smallbiznis/payway/internal/gateway/domain"
	"go.uber.org/zap"
)

func testGateway() *Gateway {
	return &Gateway{
		base: &base.Base{BaseURL: "https://shop.example.com"},
		log:  zap.NewNop(),
	}
}

func squareConfig(mode string, raw map[string]any) domain.Config {
	return domain.Config{
		Code:     "square",
		Name:     "Square",
		Settings: domain.NewSettings(mode, raw),
	}
}

func signSquare(key, url string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write([]byte(url))
	_, _ = mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookValidSignature(t *testing.T) {
	g := testGateway()
	cfg := squareConfig(domain.ModeLive, map[string]any{"live_webhook_signature_key": "sigkey"})
	payload := []byte(`{"event_id":"evt","type":"payment.updated"}`)

	headers := http.Header{}
	headers.Set(signatureHeader, signSquare("sigkey", "https://shop.example.com/webhooks/square", payload))

	if err := g.VerifyWebhook(context.Background(), cfg, payload, headers); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyWebhookBadSignature(t *testing.T) {
	g := testGateway()
	cfg := squareConfig(domain.ModeLive, map[string]any{"live_webhook_signature_key": "sigkey"})

	headers := http.Header{}
	headers.Set(signatureHeader, "bogus")

	if err := g.VerifyWebhook(context.Background(), cfg, []byte(`{}`), headers); !errors.Is(err, domain.ErrWebhookSignature) {
		t.Fatalf("expected ErrWebhookSignature, got %v", err)
	}
}

func TestVerifyWebhookUnsignedOnlyInTestMode(t *testing.T) {
	g := testGateway()

	if err := g.VerifyWebhook(context.Background(), squareConfig(domain.ModeTest, nil), []byte(`{}`), http.Header{}); err != nil {
		t.Fatalf("unsigned payload should pass in test mode, got %v", err)
	}
	if err := g.VerifyWebhook(context.Background(), squareConfig(domain.ModeLive, nil), []byte(`{}`), http.Header{}); !errors.Is(err, domain.ErrWebhookSignature) {
		t.Fatalf("unsigned payload must fail in live mode, got %v", err)
	}
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	g := testGateway()
	cfg := squareConfig(domain.ModeTest, nil)

	err := g.HandleWebhook(context.Background(), cfg, []byte(`{"event_id":"evt","type":"customer.created"}`))
	if !errors.Is(err, domain.ErrWebhookIgnored) {
		t.Fatalf("expected ErrWebhookIgnored, got %v", err)
	}
}

func TestResultFromPayment(t *testing.T) {
	cases := []struct {
		status     string
		state      domain.State
		refundable bool
	}{
		{"COMPLETED", domain.StateSucceeded, true},
		{"APPROVED", domain.StateRequiresCapture, true},
		{"PENDING", domain.StateInitiated, false},
		{"CANCELED", domain.StateCanceled, false},
		{"FAILED", domain.StateFailed, false},
	}
	for _, tc := range cases {
		res := resultFromPayment(&payment{ID: "pay_1", Status: tc.status})
		if res.State != tc.state {
			t.Fatalf("status %s: expected state %s, got %s", tc.status, tc.state, res.State)
		}
		if res.IsRefundable != tc.refundable {
			t.Fatalf("status %s: refundable mismatch", tc.status)
		}
	}
}
