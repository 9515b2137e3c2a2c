package paypal

import (
	"testing"
	"time"

	txnlogdomain "github.com/smallbiznis/payway/internal/txnlog/domain"
	"gorm.io/datatypes"
)

func entryWith(code string, success bool, transactionID string) txnlogdomain.Entry {
	entry := txnlogdomain.Entry{
		PaymentCode: code,
		IsSuccess:   success,
		CreatedAt:   time.Now(),
	}
	if transactionID != "" {
		entry.Response = datatypes.JSON(`{"transaction_id":"` + transactionID + `"}`)
	}
	return entry
}

func TestPendingProviderOrderPicksLatest(t *testing.T) {
	entries := []txnlogdomain.Entry{
		entryWith("paypal", false, "OLD-1"),
		entryWith("paypal", false, "NEW-2"),
	}
	if got := pendingProviderOrder(entries, "paypal"); got != "NEW-2" {
		t.Fatalf("expected NEW-2, got %q", got)
	}
}

func TestPendingProviderOrderSkipsOtherGatewaysAndSuccesses(t *testing.T) {
	entries := []txnlogdomain.Entry{
		entryWith("paypal", false, "PENDING-1"),
		entryWith("stripe", false, "pi_123"),
		entryWith("paypal", true, "CAPTURED-2"),
	}
	if got := pendingProviderOrder(entries, "paypal"); got != "PENDING-1" {
		t.Fatalf("expected PENDING-1, got %q", got)
	}
}

func TestPendingProviderOrderNone(t *testing.T) {
	entries := []txnlogdomain.Entry{
		entryWith("cod", true, ""),
	}
	if got := pendingProviderOrder(entries, "paypal"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
