package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
	profiledomain "github.com/smallbiznis/payway/internal/profile/domain"
	txnlogdomain "github.com/smallbiznis/payway/internal/txnlog/domain"
)

// State is the abstract transaction state every gateway maps onto.
type State string

const (
	StateInitiated       State = "initiated"
	StateSucceeded       State = "succeeded"
	StateRequiresCapture State = "requires_capture"
	StateRedirectPending State = "redirect_pending"
	StateFailed          State = "failed"
	// StateCanceled is a first-class terminal transition (customer abandons
	// a redirect, or an authorization is voided). Never conflated with
	// StateFailed.
	StateCanceled State = "canceled"
)

// ProcessResult is the normalized outcome of one provider interaction.
type ProcessResult struct {
	State         State
	Message       string
	TransactionID string
	RedirectURL   string
	IsRefundable  bool
	// Request and Response carry the raw provider payloads for the
	// transaction log; Response is the replay source of truth.
	Request  map[string]any
	Response map[string]any
	// ClientFields are hidden form fields/tokens exposed to the client when
	// the gateway completes payment client-side.
	ClientFields map[string]string
}

// EntryPointResponse is what an entry-point handler tells the HTTP layer to do.
type EntryPointResponse struct {
	Status      int
	RedirectURL string
	Body        map[string]any
}

// EntryPointHandler answers one callback URL suffix. rest holds the path
// segments following the suffix, split on "/".
type EntryPointHandler func(ctx context.Context, cfg Config, rest []string) (*EntryPointResponse, error)

// Gateway is the contract every payment method plugin implements.
type Gateway interface {
	Code() string
	Name() string

	// IsApplicable reports whether this method may take the order. The
	// default rule is minimum_order_total <= orderTotal; gateways override.
	IsApplicable(orderTotal int64, cfg Config) bool

	// ProcessPaymentForm is the primary synchronous entry: delegate to the
	// provider, write exactly one transaction log entry, and on success
	// complete the order.
	ProcessPaymentForm(ctx context.Context, form map[string]string, cfg Config, ord *orderdomain.Order) (*ProcessResult, error)

	// RegisterEntryPoints declares the callback URL suffixes this gateway
	// answers. Suffixes must be provider-namespaced (e.g. "paypal_return")
	// so collisions across gateways are structurally impossible.
	RegisterEntryPoints() map[string]EntryPointHandler

	// CompletesPaymentOnClient reports whether confirmation happens
	// client-side, requiring tokens/hidden fields instead of an immediate
	// server-side completion.
	CompletesPaymentOnClient() bool

	// SettingsFields declares the configuration schema consumed by the
	// external configuration UI.
	SettingsFields() []SettingsField
}

// Refundable is the optional refund capability.
type Refundable interface {
	CanRefund(entry *txnlogdomain.Entry) bool
	// ProcessRefund refunds amount (minor units) against the charge recorded
	// in entry, appends a refund log entry and stamps the source entry.
	ProcessRefund(ctx context.Context, cfg Config, ord *orderdomain.Order, entry *txnlogdomain.Entry, amount int64) error
}

// AuthorizeCapturable is the optional authorize-then-capture capability.
type AuthorizeCapturable interface {
	Capture(ctx context.Context, cfg Config, ord *orderdomain.Order, entry *txnlogdomain.Entry) error
	CancelAuthorization(ctx context.Context, cfg Config, ord *orderdomain.Order, entry *txnlogdomain.Entry) error
}

// ProfileCapable is the optional stored-payment-profile capability.
type ProfileCapable interface {
	// UpdatePaymentProfile fetch-or-creates the provider customer and card
	// records and upserts the local profile. A stale provider reference is
	// recovered by transparently recreating the provider-side record.
	UpdatePaymentProfile(ctx context.Context, cfg Config, customerID snowflake.ID, data map[string]string) (*profiledomain.Profile, error)
	// DeletePaymentProfile disables the provider token then clears local
	// data. Missing provider references make this a no-op success.
	DeletePaymentProfile(ctx context.Context, cfg Config, profile *profiledomain.Profile) error
	PayFromPaymentProfile(ctx context.Context, cfg Config, ord *orderdomain.Order, profile *profiledomain.Profile, data map[string]string) (*ProcessResult, error)
}

// WebhookConsumer is the optional asynchronous-confirmation capability.
type WebhookConsumer interface {
	// VerifyWebhook authenticates the payload before it is trusted. With no
	// secret configured, unsigned payloads pass only outside live mode.
	VerifyWebhook(ctx context.Context, cfg Config, payload []byte, headers http.Header) error
	// HandleWebhook dispatches the provider event. Unknown event types are
	// accepted and ignored to avoid provider retry storms.
	HandleWebhook(ctx context.Context, cfg Config, payload []byte) error
}

// SettingsField describes one configuration input of a gateway.
type SettingsField struct {
	Key        string   `json:"key"`
	Label      string   `json:"label"`
	Type       string   `json:"type"` // text, secret, select, toggle, amount
	Required   bool     `json:"required"`
	Options    []string `json:"options,omitempty"`
	// VisibleWhen names a sibling key/value gating this field's visibility
	// in the configuration UI, e.g. "transaction_mode=live".
	VisibleWhen string `json:"visible_when,omitempty"`
}

// MethodSource resolves configured payment methods for dispatch. Implemented
// by the method service; keeps the registry free of persistence concerns.
type MethodSource interface {
	Enabled(ctx context.Context) ([]Config, error)
	ByCode(ctx context.Context, code string) (*Config, error)
}
