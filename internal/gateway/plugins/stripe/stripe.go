package stripe

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/gateway/base"
	"github.com/smallbiznis/payway/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
	profiledomain "github.com/smallbiznis/payway/internal/profile/domain"
	txnlogdomain "github.com/smallbiznis/payway/internal/txnlog/domain"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Gateway charges cards through Stripe payment intents. It carries the full
// capability set: refunds, authorize/capture, stored payment profiles and
// asynchronous webhook confirmation.
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
		log:      p.Log.Named("gateway.stripe"),
	}
}

func (g *Gateway) Code() string { return "stripe" }
func (g *Gateway) Name() string { return "Stripe" }

func (g *Gateway) IsApplicable(orderTotal int64, cfg domain.Config) bool {
	return g.base.IsApplicable(orderTotal, cfg)
}

// api builds a client bound to the mode-scoped secret key. Credentials of
// the inactive mode are never consulted.
func (g *Gateway) api(cfg domain.Config) (*client.API, error) {
	key := cfg.Settings.Credential("secret_key")
	if key == "" {
		return nil, fmt.Errorf("%w: stripe secret key not configured", domain.ErrConfiguration)
	}
	sc := &client.API{}
	sc.Init(key, nil)
	return sc, nil
}

func (g *Gateway) ProcessPaymentForm(ctx context.Context, form map[string]string, cfg domain.Config, ord *orderdomain.Order) (*domain.ProcessResult, error) {
	if err := g.base.RequireMethodMatch(cfg, ord); err != nil {
		return nil, err
	}
	if err := g.base.RequireApplicable(g, cfg, ord); err != nil {
		return nil, err
	}
	sc, err := g.api(cfg)
	if err != nil {
		return nil, err
	}

	paymentMethod := form["payment_method"]
	if paymentMethod == "" {
		return nil, fmt.Errorf("%w: missing payment_method token", domain.ErrProvider)
	}

	amount := g.base.ChargeAmount(cfg, ord)
	params := &stripeapi.PaymentIntentParams{
		Amount:        stripeapi.Int64(amount),
		Currency:      stripeapi.String(ord.Currency),
		PaymentMethod: stripeapi.String(paymentMethod),
		Confirm:       stripeapi.Bool(true),
	}
	if cfg.Settings.Bool("authorize_only") {
		params.CaptureMethod = stripeapi.String(string(stripeapi.PaymentIntentCaptureMethodManual))
	}
	params.Context = ctx
	params.AddMetadata("order_id", ord.ID.String())
	params.SetIdempotencyKey(g.base.NewIdempotencyKey(ord.ID))

	request := map[string]any{
		"amount":         amount,
		"currency":       ord.Currency,
		"payment_method": paymentMethod,
	}

	pi, err := sc.PaymentIntents.New(params)
	if err != nil {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, "stripe payment intent failed",
			request, stripeErrPayload(err), err)
	}

	res := g.resultFromIntent(pi)
	res.Request = request
	if err := g.base.FinishPayment(ctx, cfg, ord, res); err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil, err
	}
	return res, nil
}

func (g *Gateway) resultFromIntent(pi *stripeapi.PaymentIntent) *domain.ProcessResult {
	res := &domain.ProcessResult{
		TransactionID: pi.ID,
		Response: map[string]any{
			"payment_intent": pi.ID,
			"status":         string(pi.Status),
		},
	}
	switch pi.Status {
	case stripeapi.PaymentIntentStatusSucceeded:
		res.State = domain.StateSucceeded
		res.Message = "payment captured"
		res.IsRefundable = true
	case stripeapi.PaymentIntentStatusRequiresCapture:
		res.State = domain.StateRequiresCapture
		res.Message = "payment authorized, capture pending"
		res.IsRefundable = true
	case stripeapi.PaymentIntentStatusRequiresAction:
		res.State = domain.StateInitiated
		res.Message = "additional customer action required"
		res.ClientFields = map[string]string{"client_secret": pi.ClientSecret}
	case stripeapi.PaymentIntentStatusCanceled:
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
		{Key: "test_secret_key", Label: "Test secret key", Type: "secret", VisibleWhen: "transaction_mode=test"},
		{Key: "test_webhook_secret", Label: "Test webhook signing secret", Type: "secret", VisibleWhen: "transaction_mode=test"},
		{Key: "live_secret_key", Label: "Live secret key", Type: "secret", Required: true, VisibleWhen: "transaction_mode=live"},
		{Key: "live_webhook_secret", Label: "Live webhook signing secret", Type: "secret", VisibleWhen: "transaction_mode=live"},
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
	sc, err := g.api(cfg)
	if err != nil {
		return err
	}
	txnID := base.TransactionID(entry)
	if txnID == "" {
		return domain.ErrNoChargeToRefund
	}

	params := &stripeapi.RefundParams{
		PaymentIntent: stripeapi.String(txnID),
		Amount:        stripeapi.Int64(amount),
	}
	params.Context = ctx
	params.SetIdempotencyKey(g.base.NewIdempotencyKey(ord.ID))

	r, err := sc.Refunds.New(params)
	if err != nil {
		g.log.Warn("stripe refund failed",
			zap.String("payment_intent", txnID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: refund was rejected by the provider", domain.ErrProvider)
	}
	return g.base.FinishRefund(ctx, cfg, ord, entry, amount, map[string]any{
		"refund_id":      r.ID,
		"status":         string(r.Status),
		"transaction_id": txnID,
	})
}

// --- AuthorizeCapturable ---

func (g *Gateway) Capture(ctx context.Context, cfg domain.Config, ord *orderdomain.Order, entry *txnlogdomain.Entry) error {
	sc, err := g.api(cfg)
	if err != nil {
		return err
	}
	txnID := base.TransactionID(entry)
	if txnID == "" {
		return domain.ErrNoChargeToRefund
	}

	params := &stripeapi.PaymentIntentCaptureParams{}
	params.Context = ctx
	pi, err := sc.PaymentIntents.Capture(txnID, params)
	if err != nil {
		return g.base.FailPayment(ctx, cfg, ord.ID, "stripe capture failed",
			map[string]any{"payment_intent": txnID}, stripeErrPayload(err), err)
	}

	res := &domain.ProcessResult{
		State:         domain.StateSucceeded,
		Message:       "authorized payment captured",
		TransactionID: pi.ID,
		IsRefundable:  true,
		Response:      map[string]any{"status": string(pi.Status)},
	}
	err = g.base.FinishPayment(ctx, cfg, ord, res)
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil
	}
	return err
}

func (g *Gateway) CancelAuthorization(ctx context.Context, cfg domain.Config, ord *orderdomain.Order, entry *txnlogdomain.Entry) error {
	sc, err := g.api(cfg)
	if err != nil {
		return err
	}
	txnID := base.TransactionID(entry)
	if txnID == "" {
		return domain.ErrNoChargeToRefund
	}

	params := &stripeapi.PaymentIntentCancelParams{}
	params.Context = ctx
	pi, err := sc.PaymentIntents.Cancel(txnID, params)
	if err != nil {
		return fmt.Errorf("%w: authorization could not be voided", domain.ErrProvider)
	}

	res := &domain.ProcessResult{
		State:         domain.StateCanceled,
		Message:       "authorization voided",
		TransactionID: pi.ID,
		Response:      map[string]any{"status": string(pi.Status)},
	}
	if err := g.base.FinishPayment(ctx, cfg, ord, res); err != nil {
		return err
	}
	return g.base.Orders.UpdateStatus(ctx, g.base.DB, ord.ID, orderdomain.StatusCanceled)
}

// --- ProfileCapable ---

func (g *Gateway) UpdatePaymentProfile(ctx context.Context, cfg domain.Config, customerID snowflake.ID, data map[string]string) (*profiledomain.Profile, error) {
	sc, err := g.api(cfg)
	if err != nil {
		return nil, err
	}
	paymentMethod := data["payment_method"]
	if paymentMethod == "" {
		return nil, fmt.Errorf("%w: missing payment_method token", domain.ErrProvider)
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

	providerCustomer, err := g.ensureCustomer(ctx, sc, profile, customerID)
	if err != nil {
		return nil, err
	}
	profile.ProviderCustomerID = providerCustomer

	attachParams := &stripeapi.PaymentMethodAttachParams{
		Customer: stripeapi.String(providerCustomer),
	}
	attachParams.Context = ctx
	pm, err := sc.PaymentMethods.Attach(paymentMethod, attachParams)
	if err != nil {
		return nil, fmt.Errorf("%w: card could not be saved", domain.ErrProvider)
	}

	profile.ProviderCardID = pm.ID
	if pm.Card != nil {
		profile.CardBrand = string(pm.Card.Brand)
		profile.CardLast4 = pm.Card.Last4
	}
	if err := g.profiles.Upsert(ctx, g.base.DB, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// ensureCustomer reuses the stored provider customer, transparently
// recreating it when the stored reference is stale.
func (g *Gateway) ensureCustomer(ctx context.Context, sc *client.API, profile *profiledomain.Profile, customerID snowflake.ID) (string, error) {
	if profile.ProviderCustomerID != "" {
		params := &stripeapi.CustomerParams{}
		params.Context = ctx
		if _, err := sc.Customers.Get(profile.ProviderCustomerID, params); err == nil {
			return profile.ProviderCustomerID, nil
		} else if !isMissingResource(err) {
			return "", fmt.Errorf("%w: customer lookup failed", domain.ErrProvider)
		}
		g.log.Info("stale provider customer, recreating",
			zap.String("provider_customer_id", profile.ProviderCustomerID),
		)
	}

	params := &stripeapi.CustomerParams{}
	params.Context = ctx
	params.AddMetadata("customer_id", customerID.String())
	created, err := sc.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: customer could not be created", domain.ErrProvider)
	}
	return created.ID, nil
}

func (g *Gateway) DeletePaymentProfile(ctx context.Context, cfg domain.Config, profile *profiledomain.Profile) error {
	sc, err := g.api(cfg)
	if err != nil {
		return err
	}
	if profile.ProviderCardID != "" {
		params := &stripeapi.PaymentMethodDetachParams{}
		params.Context = ctx
		if _, err := sc.PaymentMethods.Detach(profile.ProviderCardID, params); err != nil && !isMissingResource(err) {
			return fmt.Errorf("%w: card could not be removed", domain.ErrProvider)
		}
	}
	return g.profiles.Delete(ctx, g.base.DB, profile.ID)
}

func (g *Gateway) PayFromPaymentProfile(ctx context.Context, cfg domain.Config, ord *orderdomain.Order, profile *profiledomain.Profile, data map[string]string) (*domain.ProcessResult, error) {
	if err := g.base.RequireMethodMatch(cfg, ord); err != nil {
		return nil, err
	}
	sc, err := g.api(cfg)
	if err != nil {
		return nil, err
	}
	if profile.ProviderCustomerID == "" || profile.ProviderCardID == "" {
		return nil, fmt.Errorf("%w: payment profile has no stored card", domain.ErrConfiguration)
	}

	amount := g.base.ChargeAmount(cfg, ord)
	params := &stripeapi.PaymentIntentParams{
		Amount:        stripeapi.Int64(amount),
		Currency:      stripeapi.String(ord.Currency),
		Customer:      stripeapi.String(profile.ProviderCustomerID),
		PaymentMethod: stripeapi.String(profile.ProviderCardID),
		Confirm:       stripeapi.Bool(true),
		OffSession:    stripeapi.Bool(true),
	}
	params.Context = ctx
	params.AddMetadata("order_id", ord.ID.String())
	params.SetIdempotencyKey(g.base.NewIdempotencyKey(ord.ID))

	request := map[string]any{
		"amount":   amount,
		"currency": ord.Currency,
		"customer": profile.ProviderCustomerID,
	}
	pi, err := sc.PaymentIntents.New(params)
	if err != nil {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, "stripe off-session payment failed",
			request, stripeErrPayload(err), err)
	}

	res := g.resultFromIntent(pi)
	res.Request = request
	if err := g.base.FinishPayment(ctx, cfg, ord, res); err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil, err
	}
	return res, nil
}

func isMissingResource(err error) bool {
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.Code == stripeapi.ErrorCodeResourceMissing
	}
	return false
}

func stripeErrPayload(err error) map[string]any {
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		return map[string]any{
			"code":    string(stripeErr.Code),
			"message": stripeErr.Msg,
			"status":  strconv.Itoa(stripeErr.HTTPStatusCode),
		}
	}
	return map[string]any{"message": err.Error()}
}
