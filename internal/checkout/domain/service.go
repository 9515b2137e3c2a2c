package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/payway/internal/gateway/domain"
	profiledomain "github.com/smallbiznis/payway/internal/profile/domain"
	txnlogdomain "github.com/smallbiznis/payway/internal/txnlog/domain"
)

// PaymentRequest carries one checkout attempt. Data holds the raw form
// fields the selected gateway understands (card details, provider tokens).
type PaymentRequest struct {
	OrderID snowflake.ID      `json:"order_id"`
	Data    map[string]string `json:"data"`
}

// PaymentResponse is the checkout-facing view of a gateway outcome.
type PaymentResponse struct {
	State        gatewaydomain.State `json:"state"`
	Message      string              `json:"message"`
	RedirectURL  string              `json:"redirect_url,omitempty"`
	ClientFields map[string]string   `json:"client_fields,omitempty"`
}

// RefundRequest targets one transaction log entry. A zero amount means a
// full refund of the order total.
type RefundRequest struct {
	EntryID snowflake.ID `json:"entry_id"`
	Amount  int64        `json:"amount"`
}

// WebhookJob is a deferred webhook delivery: verified payload plus routing.
type WebhookJob struct {
	ID          string `json:"id"`
	PaymentCode string `json:"payment_code"`
	Payload     []byte `json:"payload"`
}

// WebhookQueue defers webhook processing to a background worker.
type WebhookQueue interface {
	Enqueue(ctx context.Context, job WebhookJob) error
}

// Service orchestrates checkout across the registered gateways.
type Service interface {
	ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error)
	PayFromProfile(ctx context.Context, req PaymentRequest) (*PaymentResponse, error)

	Refund(ctx context.Context, req RefundRequest) error
	Capture(ctx context.Context, entryID snowflake.ID) error
	CancelAuthorization(ctx context.Context, entryID snowflake.ID) error

	// HandleOrderStatusChanged captures authorized payments whose gateway is
	// configured to capture on the new status.
	HandleOrderStatusChanged(ctx context.Context, orderID snowflake.ID, newStatus string) error

	// HandleWebhook verifies and applies (or defers) one provider callback.
	HandleWebhook(ctx context.Context, paymentCode string, payload []byte, headers http.Header) error
	// ProcessWebhookJob applies a previously verified, queued payload.
	ProcessWebhookJob(ctx context.Context, job WebhookJob) error

	UpdatePaymentProfile(ctx context.Context, paymentCode string, customerID snowflake.ID, data map[string]string) (*profiledomain.Profile, error)
	DeletePaymentProfile(ctx context.Context, paymentCode string, customerID snowflake.ID) error
	// MakePrimaryProfile promotes the customer's profile for the method and
	// demotes every sibling in one transaction.
	MakePrimaryProfile(ctx context.Context, paymentCode string, customerID snowflake.ID) error
	ListProfiles(ctx context.Context, customerID snowflake.ID) ([]profiledomain.Profile, error)

	ListTransactions(ctx context.Context, orderID snowflake.ID) ([]txnlogdomain.Entry, error)
}
