package base

import (
	"testing"

	"github.com/smallbiznis/payway/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
)

func config(settings map[string]any) domain.Config {
	return domain.Config{
		Code:     "testpay",
		Name:     "Test Pay",
		Settings: domain.NewSettings(domain.ModeTest, settings),
	}
}

func TestIsApplicableBoundary(t *testing.T) {
	b := &Base{}
	cfg := config(map[string]any{"minimum_order_total": 2000})

	if !b.IsApplicable(2000, cfg) {
		t.Fatal("total equal to the minimum must be applicable")
	}
	if b.IsApplicable(1999, cfg) {
		t.Fatal("one minor unit below the minimum must not be applicable")
	}
	if !b.IsApplicable(0, config(nil)) {
		t.Fatal("no configured minimum means everything is applicable")
	}
}

func TestChargeAmountAppliesFee(t *testing.T) {
	b := &Base{}
	ord := &orderdomain.Order{OrderTotal: 10000, Currency: "USD"}

	cases := []struct {
		name     string
		settings map[string]any
		want     int64
	}{
		{"no fee", nil, 10000},
		{"fixed fee", map[string]any{"fee_type": "fixed", "fee_amount": 250}, 10250},
		{"percent fee", map[string]any{"fee_type": "percent", "fee_amount": 3}, 10300},
		{"unknown fee type charges bare total", map[string]any{"fee_type": "surcharge", "fee_amount": 250}, 10000},
	}
	for _, tc := range cases {
		if got := b.ChargeAmount(config(tc.settings), ord); got != tc.want {
			t.Fatalf("%s: ChargeAmount = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestEntryPointURL(t *testing.T) {
	b := &Base{BaseURL: "https://shop.example.com"}
	got := b.EntryPointURL("paypal_return", "42")
	if got != "https://shop.example.com/payments/paypal_return/42" {
		t.Fatalf("unexpected entry point url %q", got)
	}
}
