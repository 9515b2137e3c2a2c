package domain

import (
	"testing"

	"gorm.io/datatypes"
)

func TestParseSettingsDefaultsToTestMode(t *testing.T) {
	cases := []string{
		`{}`,
		`{"transaction_mode":""}`,
		`{"transaction_mode":"sandbox"}`,
		`{"transaction_mode":"LIVE "}`,
	}
	for _, blob := range cases {
		s, err := ParseSettings(datatypes.JSON(blob))
		if err != nil {
			t.Fatalf("ParseSettings(%s): %v", blob, err)
		}
		if blob == `{"transaction_mode":"LIVE "}` {
			if !s.IsLive() {
				t.Fatalf("trimmed live mode should parse as live")
			}
			continue
		}
		if s.IsLive() {
			t.Fatalf("ParseSettings(%s) must default to test mode", blob)
		}
	}
}

func TestParseSettingsRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseSettings(datatypes.JSON(`{not json`)); err != ErrConfiguration {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestCredentialNeverCrossesModes(t *testing.T) {
	raw := map[string]any{
		"test_api_key": "sk_test_123",
		"live_api_key": "sk_live_456",
	}

	test := NewSettings(ModeTest, raw)
	if got := test.Credential("api_key"); got != "sk_test_123" {
		t.Fatalf("test mode resolved %q", got)
	}

	live := NewSettings(ModeLive, raw)
	if got := live.Credential("api_key"); got != "sk_live_456" {
		t.Fatalf("live mode resolved %q", got)
	}

	// A key configured only for the other mode resolves empty, never falls
	// through.
	partial := NewSettings(ModeLive, map[string]any{"test_secret": "x"})
	if got := partial.Credential("secret"); got != "" {
		t.Fatalf("live lookup must not read test_secret, got %q", got)
	}
}

func TestSettingsNumericCoercion(t *testing.T) {
	s, err := ParseSettings(datatypes.JSON(`{"minimum_order_total":"2500","fee_amount":150}`))
	if err != nil {
		t.Fatalf("ParseSettings: %v", err)
	}
	if got := s.MinimumOrderTotal(); got != 2500 {
		t.Fatalf("string minimum coerced to %d", got)
	}
	if got := s.FeeAmount(); got != 150 {
		t.Fatalf("numeric fee coerced to %d", got)
	}
}

func TestOrderStatusFallback(t *testing.T) {
	s, _ := ParseSettings(datatypes.JSON(`{}`))
	if got := s.OrderStatus(); got != "processing" {
		t.Fatalf("default order status %q", got)
	}
	s, _ = ParseSettings(datatypes.JSON(`{"order_status":"on_hold"}`))
	if got := s.OrderStatus(); got != "on_hold" {
		t.Fatalf("configured order status %q", got)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		0:     "0.00",
		5:     "0.05",
		2000:  "20.00",
		12345: "123.45",
		-150:  "-1.50",
	}
	for amount, want := range cases {
		if got := FormatAmount(amount); got != want {
			t.Fatalf("FormatAmount(%d) = %q, want %q", amount, got, want)
		}
	}
}
