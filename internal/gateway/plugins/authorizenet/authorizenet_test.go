package authorizenet

import (
	"testing"

	"github.com/smallbiznis/payway/internal/gateway/domain"
	txnlogdomain "github.com/smallbiznis/payway/internal/txnlog/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func approvedResponse(transID string) *transactionResponse {
	resp := &transactionResponse{}
	resp.Messages.ResultCode = "Ok"
	resp.TransactionResponse.ResponseCode = responseApproved
	resp.TransactionResponse.TransID = transID
	resp.TransactionResponse.AccountNum = "XXXX1111"
	return resp
}

func TestResultFromTransactionApproved(t *testing.T) {
	g := &Gateway{log: zap.NewNop()}

	res := g.resultFromTransaction(approvedResponse("60123"), false)
	if res.State != domain.StateSucceeded {
		t.Fatalf("expected succeeded, got %s", res.State)
	}
	if !res.IsRefundable {
		t.Fatal("captured charge must be refundable")
	}
	if res.TransactionID != "60123" {
		t.Fatalf("expected trans id 60123, got %q", res.TransactionID)
	}
}

func TestResultFromTransactionAuthOnly(t *testing.T) {
	g := &Gateway{log: zap.NewNop()}

	res := g.resultFromTransaction(approvedResponse("60123"), true)
	if res.State != domain.StateRequiresCapture {
		t.Fatalf("expected requires_capture, got %s", res.State)
	}
}

func TestResultFromTransactionDeclined(t *testing.T) {
	g := &Gateway{log: zap.NewNop()}
	resp := &transactionResponse{}
	resp.Messages.ResultCode = "Ok"
	resp.TransactionResponse.ResponseCode = responseDeclined
	resp.TransactionResponse.Errors = []struct {
		ErrorCode string `json:"errorCode"`
		ErrorText string `json:"errorText"`
	}{{ErrorCode: "2", ErrorText: "This transaction has been declined."}}

	res := g.resultFromTransaction(resp, false)
	if res.State != domain.StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if res.Message != "This transaction has been declined." {
		t.Fatalf("unexpected message: %q", res.Message)
	}
}

func TestResultFromTransactionHeld(t *testing.T) {
	g := &Gateway{log: zap.NewNop()}
	resp := approvedResponse("60123")
	resp.TransactionResponse.ResponseCode = responseHeld

	res := g.resultFromTransaction(resp, false)
	if res.State != domain.StateInitiated {
		t.Fatalf("expected initiated for held transaction, got %s", res.State)
	}
	if res.IsRefundable {
		t.Fatal("held transaction must not be refundable yet")
	}
}

func TestMaskedCard(t *testing.T) {
	entry := &txnlogdomain.Entry{
		Response: datatypes.JSON(`{"account_number":"XXXX1111","transaction_id":"60123"}`),
	}
	if got := maskedCard(entry); got != "XXXX1111" {
		t.Fatalf("expected XXXX1111, got %q", got)
	}
	if got := maskedCard(&txnlogdomain.Entry{}); got != "" {
		t.Fatalf("expected empty for missing payload, got %q", got)
	}
}

func TestLast4(t *testing.T) {
	if got := last4("4111111111111111"); got != "1111" {
		t.Fatalf("expected 1111, got %q", got)
	}
	if got := last4("42"); got != "42" {
		t.Fatalf("expected short input unchanged, got %q", got)
	}
}
