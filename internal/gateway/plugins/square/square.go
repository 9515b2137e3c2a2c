package square

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/gateway/base"
	"github.com/smallbiznis/payway/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
	profiledomain "github.com/smallbiznis/payway/internal/profile/domain"
	txnlogdomain "github.com/smallbiznis/payway/internal/txnlog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Gateway charges through the Square Payments API using a card nonce minted
// client-side by the Web Payments SDK.
type Gateway struct {
	base     *base.Base
	profiles profiledomain.Repository
	log      *zap.Logger
}

type Params struct {
	fx.In

	Base     *base.Base
	Profiles profiledomain.Repository
	Log      *zap.Logger
}

func New(p Params) *Gateway {
	return &Gateway{
		base:     p.Base,
		profiles: p.Profiles,
		log:      p.Log.Named("gateway.square"),
	}
}

func (g *Gateway) Code() string { return "square" }
func (g *Gateway) Name() string { return "Square" }

func (g *Gateway) IsApplicable(orderTotal int64, cfg domain.Config) bool {
	return g.base.IsApplicable(orderTotal, cfg)
}

func (g *Gateway) ProcessPaymentForm(ctx context.Context, form map[string]string, cfg domain.Config, ord *orderdomain.Order) (*domain.ProcessResult, error) {
	if err := g.base.RequireMethodMatch(cfg, ord); err != nil {
		return nil, err
	}
	if err := g.base.RequireApplicable(g, cfg, ord); err != nil {
		return nil, err
	}
	api, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	nonce := form["card_nonce"]
	if nonce == "" {
		return nil, fmt.Errorf("%w: missing card nonce", domain.ErrProvider)
	}

	amount := g.base.ChargeAmount(cfg, ord)
	req := createPaymentRequest{
		SourceID:       nonce,
		IdempotencyKey: g.base.NewIdempotencyKey(ord.ID),
		AmountMoney:    money(amount, ord.Currency),
		Autocomplete:   !cfg.Settings.Bool("authorize_only"),
		ReferenceID:    ord.ID.String(),
	}
	request := map[string]any{
		"amount":       amount,
		"currency":     ord.Currency,
		"autocomplete": req.Autocomplete,
	}

	envelope, err := api.createPayment(ctx, req)
	if err != nil {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, "square payment failed", request, nil, err)
	}

	res := resultFromPayment(&envelope.Payment)
	res.Request = request
	if res.State == domain.StateFailed {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, res.Message, request, res.Response,
			errors.New("payment not approved"))
	}
	if err := g.base.FinishPayment(ctx, cfg, ord, res); err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil, err
	}
	return res, nil
}

func resultFromPayment(p *payment) *domain.ProcessResult {
	res := &domain.ProcessResult{
		TransactionID: p.ID,
		Response: map[string]any{
			"payment_id": p.ID,
			"status":     p.Status,
		},
	}
	switch p.Status {
	case "COMPLETED":
		res.State = domain.StateSucceeded
		res.Message = "payment captured"
		res.IsRefundable = true
	case "APPROVED":
		res.State = domain.StateRequiresCapture
		res.Message = "payment authorized, capture pending"
		res.IsRefundable = true
	case "PENDING":
		res.State = domain.StateInitiated
		res.Message = "payment pending at provider"
	case "CANCELED":
		res.State = domain.StateCanceled
		res.Message = "payment canceled"
	default:
		res.State = domain.StateFailed
		res.Message = "payment not completed"
	}
	return res
}

func (g *Gateway) RegisterEntryPoints() map[string]domain.EntryPointHandler { return nil }

func (g *Gateway) CompletesPaymentOnClient() bool { return true }

func (g *Gateway) SettingsFields() []domain.SettingsField {
	return []domain.SettingsField{
		{Key: "transaction_mode", Label: "Transaction mode", Type: "select", Required: true, Options: []string{domain.ModeTest, domain.ModeLive}},
		{Key: "test_access_token", Label: "Sandbox access token", Type: "secret", VisibleWhen: "transaction_mode=test"},
		{Key: "test_application_id", Label: "Sandbox application ID", Type: "text", VisibleWhen: "transaction_mode=test"},
		{Key: "test_webhook_signature_key", Label: "Sandbox webhook signature key", Type: "secret", VisibleWhen: "transaction_mode=test"},
		{Key: "live_access_token", Label: "Access token", Type: "secret", Required: true, VisibleWhen: "transaction_mode=live"},
		{Key: "live_application_id", Label: "Application ID", Type: "text", Required: true, VisibleWhen: "transaction_mode=live"},
		{Key: "live_webhook_signature_key", Label: "Webhook signature key", Type: "secret", VisibleWhen: "transaction_mode=live"},
		{Key: "authorize_only", Label: "Authorize only, capture later", Type: "toggle"},
		{Key: "capture_status", Label: "Order status that triggers capture", Type: "text"},
		{Key: "minimum_order_total", Label: "Minimum order total", Type: "amount"},
	}
}

// --- Refundable ---

func (g *Gateway) CanRefund(entry *txnlogdomain.Entry) bool {
	return entry != nil && entry.IsRefundable && entry.RefundedAt == nil && base.TransactionID(entry) != ""
}

func (g *Gateway) ProcessRefund(ctx context.Context, cfg domain.Config, ord *orderdomain.Order, entry *txnlogdomain.Entry, amount int64) error {
	api, err := newClient(cfg)
	if err != nil {
		return err
	}
	paymentID := base.TransactionID(entry)
	if paymentID == "" {
		return domain.ErrNoChargeToRefund
	}

	envelope, err := api.refundPayment(ctx, paymentID, g.base.NewIdempotencyKey(ord.ID), amount, ord.Currency)
	if err != nil {
		g.log.Warn("square refund failed",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: refund was rejected by the provider", domain.ErrProvider)
	}
	return g.base.FinishRefund(ctx, cfg, ord, entry, amount, map[string]any{
		"refund_id":      envelope.Refund.ID,
		"status":         envelope.Refund.Status,
		"transaction_id": paymentID,
	})
}

// --- AuthorizeCapturable ---

func (g *Gateway) Capture(ctx context.Context, cfg domain.Config, ord *orderdomain.Order, entry *txnlogdomain.Entry) error {
	api, err := newClient(cfg)
	if err != nil {
		return err
	}
	paymentID := base.TransactionID(entry)
	if paymentID == "" {
		return domain.ErrNoChargeToRefund
	}

	envelope, err := api.completePayment(ctx, paymentID)
	if err != nil {
		return g.base.FailPayment(ctx, cfg, ord.ID, "square capture failed",
			map[string]any{"payment_id": paymentID}, nil, err)
	}

	res := &domain.ProcessResult{
		State:         domain.StateSucceeded,
		Message:       "authorized payment captured",
		TransactionID: paymentID,
		IsRefundable:  true,
		Response:      map[string]any{"status": envelope.Payment.Status},
	}
	err = g.base.FinishPayment(ctx, cfg, ord, res)
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil
	}
	return err
}

func (g *Gateway) CancelAuthorization(ctx context.Context, cfg domain.Config, ord *orderdomain.Order, entry *txnlogdomain.Entry) error {
	api, err := newClient(cfg)
	if err != nil {
		return err
	}
	paymentID := base.TransactionID(entry)
	if paymentID == "" {
		return domain.ErrNoChargeToRefund
	}

	if _, err := api.cancelPayment(ctx, paymentID); err != nil {
		return fmt.Errorf("%w: authorization could not be voided", domain.ErrProvider)
	}

	res := &domain.ProcessResult{
		State:         domain.StateCanceled,
		Message:       "authorization voided",
		TransactionID: paymentID,
	}
	if err := g.base.FinishPayment(ctx, cfg, ord, res); err != nil {
		return err
	}
	return g.base.Orders.UpdateStatus(ctx, g.base.DB, ord.ID, orderdomain.StatusCanceled)
}

// --- ProfileCapable ---

func (g *Gateway) UpdatePaymentProfile(ctx context.Context, cfg domain.Config, customerID snowflake.ID, data map[string]string) (*profiledomain.Profile, error) {
	api, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	nonce := data["card_nonce"]
	if nonce == "" {
		return nil, fmt.Errorf("%w: missing card nonce", domain.ErrProvider)
	}

	profile, err := g.profiles.FindByCustomer(ctx, g.base.DB, customerID, cfg.Code)
	if err != nil && !errors.Is(err, profiledomain.ErrNotFound) {
		return nil, err
	}
	if profile == nil {
		profile = &profiledomain.Profile{
			ID:          g.base.GenID.Generate(),
			CustomerID:  customerID,
			PaymentCode: cfg.Code,
		}
	}

	if profile.ProviderCustomerID == "" {
		customer, err := api.createCustomer(ctx, customerID.String())
		if err != nil {
			return nil, fmt.Errorf("%w: customer could not be created", domain.ErrProvider)
		}
		profile.ProviderCustomerID = customer.Customer.ID
	}

	card, err := api.createCard(ctx, profile.ProviderCustomerID, nonce, g.base.NewIdempotencyKey(customerID))
	if err != nil {
		return nil, fmt.Errorf("%w: card could not be saved", domain.ErrProvider)
	}

	profile.ProviderCardID = card.Card.ID
	profile.CardBrand = card.Card.CardBrand
	profile.CardLast4 = card.Card.Last4
	if err := g.profiles.Upsert(ctx, g.base.DB, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (g *Gateway) DeletePaymentProfile(ctx context.Context, cfg domain.Config, profile *profiledomain.Profile) error {
	api, err := newClient(cfg)
	if err != nil {
		return err
	}
	if profile.ProviderCardID != "" {
		if err := api.disableCard(ctx, profile.ProviderCardID); err != nil {
			// A card already disabled at the provider still counts as removed.
			g.log.Info("square card disable skipped",
				zap.String("card_id", profile.ProviderCardID),
				zap.Error(err),
			)
		}
	}
	return g.profiles.Delete(ctx, g.base.DB, profile.ID)
}

func (g *Gateway) PayFromPaymentProfile(ctx context.Context, cfg domain.Config, ord *orderdomain.Order, profile *profiledomain.Profile, data map[string]string) (*domain.ProcessResult, error) {
	if err := g.base.RequireMethodMatch(cfg, ord); err != nil {
		return nil, err
	}
	api, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if profile.ProviderCustomerID == "" || profile.ProviderCardID == "" {
		return nil, fmt.Errorf("%w: payment profile has no stored card", domain.ErrConfiguration)
	}

	amount := g.base.ChargeAmount(cfg, ord)
	req := createPaymentRequest{
		SourceID:       profile.ProviderCardID,
		IdempotencyKey: g.base.NewIdempotencyKey(ord.ID),
		AmountMoney:    money(amount, ord.Currency),
		Autocomplete:   true,
		CustomerID:     profile.ProviderCustomerID,
		ReferenceID:    ord.ID.String(),
	}
	request := map[string]any{
		"amount":      amount,
		"customer_id": profile.ProviderCustomerID,
	}

	envelope, err := api.createPayment(ctx, req)
	if err != nil {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, "square profile charge failed", request, nil, err)
	}
	res := resultFromPayment(&envelope.Payment)
	res.Request = request
	if res.State == domain.StateFailed {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, res.Message, request, res.Response,
			errors.New("payment not approved"))
	}
	if err := g.base.FinishPayment(ctx, cfg, ord, res); err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil, err
	}
	return res, nil
}
