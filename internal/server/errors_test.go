package server

import (
	"fmt"
	"net/http"
	"testing"

	gatewaydomain "github.com/smallbiznis/payway/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
)

func TestMapErrorEntryPointMissIsForbidden(t *testing.T) {
	status, payload := mapError(gatewaydomain.ErrEntryPointNotFound)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	if payload.Type != "forbidden" {
		t.Fatalf("unexpected type %q", payload.Type)
	}
}

func TestMapErrorValidationKeepsMessage(t *testing.T) {
	err := fmt.Errorf("%w: Cash on Delivery requires a minimum order total of 20.00 USD",
		gatewaydomain.ErrBelowMinimumTotal)
	status, payload := mapError(err)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if payload.Message != err.Error() {
		t.Fatalf("validation message must pass through, got %q", payload.Message)
	}
}

func TestMapErrorProviderHidesDetail(t *testing.T) {
	err := fmt.Errorf("%w: stripe responded 402: card_declined", gatewaydomain.ErrProvider)
	status, payload := mapError(err)
	if status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
	if payload.Message != "payment could not be completed, please try again later" {
		t.Fatalf("provider detail must not leak, got %q", payload.Message)
	}
}

func TestMapErrorNotFoundAndConflict(t *testing.T) {
	if status, _ := mapError(orderdomain.ErrNotFound); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if status, _ := mapError(gatewaydomain.ErrAlreadyProcessed); status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
}

func TestSplitRest(t *testing.T) {
	if got := splitRest("/123/abc"); len(got) != 2 || got[0] != "123" || got[1] != "abc" {
		t.Fatalf("unexpected segments: %v", got)
	}
	if got := splitRest("/"); got != nil {
		t.Fatalf("expected nil for empty rest, got %v", got)
	}
}
