package mollie

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/gateway/base"
	"github.com/smallbiznis/payway/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
	txnlogdomain "github.com/smallbiznis/payway/internal/txnlog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Gateway runs the Mollie hosted-checkout flow. The customer is redirected to
// Mollie; mollie_notify re-fetches the payment server-side before any state
// is trusted, and mollie_return only routes the browser.
type Gateway struct {
	base *base.Base
	log  *zap.Logger
}

type Params struct {
	fx.In

	Base *base.Base
	Log  *zap.Logger
}

func New(p Params) *Gateway {
	return &Gateway{
		base: p.Base,
		log:  p.Log.Named("gateway.mollie"),
	}
}

func (g *Gateway) Code() string { return "mollie" }
func (g *Gateway) Name() string { return "Mollie" }

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

	redirectURL := g.base.EntryPointURL("mollie_return", ord.ID.String())
	webhookURL := g.base.EntryPointURL("mollie_notify", ord.ID.String())
	amount := g.base.ChargeAmount(cfg, ord)
	request := map[string]any{
		"amount":   amount,
		"currency": ord.Currency,
	}

	created, err := api.createPayment(ctx, amount, ord.Currency,
		fmt.Sprintf("Order %s", ord.ID.String()), redirectURL, webhookURL, ord.ID.String())
	if err != nil {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, "mollie payment could not be created",
			request, nil, err)
	}
	checkoutURL := created.Links.Checkout.Href
	if checkoutURL == "" {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, "mollie payment has no checkout link",
			request, map[string]any{"status": created.Status}, errors.New("missing checkout link"))
	}

	res := &domain.ProcessResult{
		State:         domain.StateRedirectPending,
		Message:       "customer redirected to mollie checkout",
		TransactionID: created.ID,
		RedirectURL:   checkoutURL,
		Request:       request,
		Response:      map[string]any{"status": created.Status},
	}
	if err := g.base.FinishPayment(ctx, cfg, ord, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (g *Gateway) RegisterEntryPoints() map[string]domain.EntryPointHandler {
	return map[string]domain.EntryPointHandler{
		"mollie_notify": g.handleNotify,
		"mollie_return": g.handleReturn,
	}
}

func (g *Gateway) CompletesPaymentOnClient() bool { return false }

func (g *Gateway) SettingsFields() []domain.SettingsField {
	return []domain.SettingsField{
		{Key: "transaction_mode", Label: "Transaction mode", Type: "select", Required: true, Options: []string{domain.ModeTest, domain.ModeLive}},
		{Key: "test_api_key", Label: "Test API key", Type: "secret", VisibleWhen: "transaction_mode=test"},
		{Key: "live_api_key", Label: "Live API key", Type: "secret", Required: true, VisibleWhen: "transaction_mode=live"},
		{Key: "success_redirect", Label: "Redirect after successful payment", Type: "text"},
		{Key: "cancel_redirect", Label: "Redirect after canceled payment", Type: "text"},
		{Key: "minimum_order_total", Label: "Minimum order total", Type: "amount"},
	}
}

// handleNotify is Mollie's server-to-server callback. The payment is always
// re-fetched from the API; the callback body itself carries no trusted state.
func (g *Gateway) handleNotify(ctx context.Context, cfg domain.Config, rest []string) (*domain.EntryPointResponse, error) {
	ord, paymentID, err := g.resumeOrder(ctx, cfg, rest)
	if err != nil {
		return nil, err
	}
	if err := g.applyRemoteState(ctx, cfg, ord, paymentID); err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil, err
	}
	return &domain.EntryPointResponse{Status: 200}, nil
}

// handleReturn lands the customer back on the shop. State is synced the same
// way as the notify path, then the browser is routed by outcome.
func (g *Gateway) handleReturn(ctx context.Context, cfg domain.Config, rest []string) (*domain.EntryPointResponse, error) {
	ord, paymentID, err := g.resumeOrder(ctx, cfg, rest)
	if err != nil {
		return nil, err
	}
	err = g.applyRemoteState(ctx, cfg, ord, paymentID)
	if err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		if errors.Is(err, errPaymentNotFinal) || errors.Is(err, errPaymentCanceled) {
			return g.redirectResponse(cfg, "cancel_redirect", ord), nil
		}
		return nil, err
	}
	return g.redirectResponse(cfg, "success_redirect", ord), nil
}

var (
	errPaymentNotFinal = errors.New("mollie_payment_not_final")
	errPaymentCanceled = errors.New("mollie_payment_canceled")
)

func (g *Gateway) applyRemoteState(ctx context.Context, cfg domain.Config, ord *orderdomain.Order, paymentID string) error {
	api, err := newClient(cfg)
	if err != nil {
		return err
	}
	remote, err := api.getPayment(ctx, paymentID)
	if err != nil {
		return g.base.FailPayment(ctx, cfg, ord.ID, "mollie payment could not be verified",
			map[string]any{"payment_id": paymentID}, nil, err)
	}

	switch remote.Status {
	case "paid":
		res := &domain.ProcessResult{
			State:         domain.StateSucceeded,
			Message:       "payment confirmed by mollie",
			TransactionID: remote.ID,
			IsRefundable:  true,
			Response:      map[string]any{"status": remote.Status},
		}
		return g.base.FinishPayment(ctx, cfg, ord, res)
	case "canceled", "expired":
		res := &domain.ProcessResult{
			State:         domain.StateCanceled,
			Message:       "payment " + remote.Status + " at mollie",
			TransactionID: remote.ID,
			Response:      map[string]any{"status": remote.Status},
		}
		if err := g.base.FinishPayment(ctx, cfg, ord, res); err != nil {
			return err
		}
		return errPaymentCanceled
	case "failed":
		return g.base.FailPayment(ctx, cfg, ord.ID, "payment failed at mollie",
			map[string]any{"payment_id": paymentID},
			map[string]any{"status": remote.Status}, errors.New("payment failed"))
	default:
		// open or pending: nothing final yet, the next callback decides.
		g.log.Info("mollie payment not final yet",
			zap.String("payment_id", paymentID),
			zap.String("status", remote.Status),
		)
		return errPaymentNotFinal
	}
}

func (g *Gateway) resumeOrder(ctx context.Context, cfg domain.Config, rest []string) (*orderdomain.Order, string, error) {
	if len(rest) == 0 {
		return nil, "", domain.ErrEntryPointNotFound
	}
	orderID, err := snowflake.ParseString(strings.TrimSpace(rest[0]))
	if err != nil {
		return nil, "", domain.ErrEntryPointNotFound
	}
	ord, err := g.base.Orders.Find(ctx, g.base.DB, orderID)
	if errors.Is(err, orderdomain.ErrNotFound) {
		return nil, "", domain.ErrEntryPointNotFound
	}
	if err != nil {
		return nil, "", err
	}

	entries, err := g.base.Logs.ListByOrder(ctx, g.base.DB, ord.ID)
	if err != nil {
		return nil, "", err
	}
	paymentID := pendingPayment(entries, cfg.Code)
	if paymentID == "" {
		return nil, "", domain.ErrEntryPointNotFound
	}
	return ord, paymentID, nil
}

// pendingPayment digs the provider payment id out of the most recent
// non-success entry. Entries arrive oldest-first.
func pendingPayment(entries []txnlogdomain.Entry, code string) string {
	for i := len(entries) - 1; i >= 0; i-- {
		entry := &entries[i]
		if entry.PaymentCode != code || entry.IsSuccess {
			continue
		}
		if id := base.TransactionID(entry); id != "" {
			return id
		}
	}
	return ""
}

func (g *Gateway) redirectResponse(cfg domain.Config, settingKey string, ord *orderdomain.Order) *domain.EntryPointResponse {
	target := cfg.Settings.String(settingKey)
	if target == "" {
		target = g.base.BaseURL + "/orders/" + ord.ID.String()
	}
	return &domain.EntryPointResponse{Status: 302, RedirectURL: target}
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

	refund, err := api.createRefund(ctx, paymentID, amount, ord.Currency)
	if err != nil {
		g.log.Warn("mollie refund failed",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: refund was rejected by the provider", domain.ErrProvider)
	}
	return g.base.FinishRefund(ctx, cfg, ord, entry, amount, map[string]any{
		"refund_id":      refund.ID,
		"status":         refund.Status,
		"transaction_id": paymentID,
	})
}
