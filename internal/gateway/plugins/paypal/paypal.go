package paypal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/gateway/base"
	"github.com/smallbiznis/payway/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
	"github.com/smallbiznis/payway/internal/tokencache"
	txnlogdomain "github.com/smallbiznis/payway/internal/txnlog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Gateway runs the PayPal redirect flow: checkout creates a provider order
// and sends the customer to PayPal; the paypal_return entry point re-verifies
// the approval at the provider and captures before completing the order.
type Gateway struct {
	base   *base.Base
	tokens *tokencache.Cache
	log    *zap.Logger
}

type Params struct {
	fx.In

	Base   *base.Base
	Tokens *tokencache.Cache
	Log    *zap.Logger
}

func New(p Params) *Gateway {
	return &Gateway{
		base:   p.Base,
		tokens: p.Tokens,
		log:    p.Log.Named("gateway.paypal"),
	}
}

func (g *Gateway) Code() string { return "paypal" }
func (g *Gateway) Name() string { return "PayPal" }

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
	api, err := newClient(cfg, g.tokens)
	if err != nil {
		return nil, err
	}

	returnURL := g.base.EntryPointURL("paypal_return", ord.ID.String())
	cancelURL := g.base.EntryPointURL("paypal_cancel", ord.ID.String())
	amount := g.base.ChargeAmount(cfg, ord)
	request := map[string]any{
		"amount":     amount,
		"currency":   ord.Currency,
		"return_url": returnURL,
	}

	created, err := api.createOrder(ctx, amount, ord.Currency, returnURL, cancelURL)
	if err != nil {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, "paypal order could not be created",
			request, nil, err)
	}
	approveURL := created.approveURL()
	if approveURL == "" {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, "paypal order has no approval link",
			request, map[string]any{"status": created.Status}, errors.New("missing approve link"))
	}

	res := &domain.ProcessResult{
		State:         domain.StateRedirectPending,
		Message:       "customer redirected to paypal for approval",
		TransactionID: created.ID,
		RedirectURL:   approveURL,
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
		"paypal_return": g.handleReturn,
		"paypal_cancel": g.handleCancel,
	}
}

func (g *Gateway) CompletesPaymentOnClient() bool { return false }

func (g *Gateway) SettingsFields() []domain.SettingsField {
	return []domain.SettingsField{
		{Key: "transaction_mode", Label: "Transaction mode", Type: "select", Required: true, Options: []string{domain.ModeTest, domain.ModeLive}},
		{Key: "test_client_id", Label: "Sandbox client ID", Type: "text", VisibleWhen: "transaction_mode=test"},
		{Key: "test_client_secret", Label: "Sandbox client secret", Type: "secret", VisibleWhen: "transaction_mode=test"},
		{Key: "live_client_id", Label: "Live client ID", Type: "text", Required: true, VisibleWhen: "transaction_mode=live"},
		{Key: "live_client_secret", Label: "Live client secret", Type: "secret", Required: true, VisibleWhen: "transaction_mode=live"},
		{Key: "success_redirect", Label: "Redirect after successful payment", Type: "text"},
		{Key: "cancel_redirect", Label: "Redirect after canceled payment", Type: "text"},
		{Key: "minimum_order_total", Label: "Minimum order total", Type: "amount"},
	}
}

// handleReturn finishes an approved redirect. The provider order is fetched
// and captured server-side; the browser redirect alone is never trusted.
func (g *Gateway) handleReturn(ctx context.Context, cfg domain.Config, rest []string) (*domain.EntryPointResponse, error) {
	ord, providerOrderID, err := g.resumeOrder(ctx, cfg, rest)
	if err != nil {
		return nil, err
	}
	api, err := newClient(cfg, g.tokens)
	if err != nil {
		return nil, err
	}

	remote, err := api.getOrder(ctx, providerOrderID)
	if err != nil {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, "paypal order could not be verified",
			map[string]any{"paypal_order_id": providerOrderID}, nil, err)
	}
	if remote.Status != "APPROVED" && remote.Status != "COMPLETED" {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, "paypal order not approved",
			map[string]any{"paypal_order_id": providerOrderID},
			map[string]any{"status": remote.Status}, errors.New("order not approved"))
	}

	captured := remote
	if remote.Status != "COMPLETED" {
		captured, err = api.captureOrder(ctx, providerOrderID)
		if err != nil {
			return nil, g.base.FailPayment(ctx, cfg, ord.ID, "paypal capture failed",
				map[string]any{"paypal_order_id": providerOrderID}, nil, err)
		}
	}

	transactionID := captured.captureID()
	if transactionID == "" {
		transactionID = providerOrderID
	}
	res := &domain.ProcessResult{
		State:         domain.StateSucceeded,
		Message:       "payment approved and captured",
		TransactionID: transactionID,
		IsRefundable:  true,
		Response: map[string]any{
			"paypal_order_id": providerOrderID,
			"status":          captured.Status,
		},
	}
	err = g.base.FinishPayment(ctx, cfg, ord, res)
	if err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil, err
	}
	return g.redirectResponse(cfg, "success_redirect", ord), nil
}

// handleCancel records the abandoned redirect as a canceled transition, not
// a failure.
func (g *Gateway) handleCancel(ctx context.Context, cfg domain.Config, rest []string) (*domain.EntryPointResponse, error) {
	ord, providerOrderID, err := g.resumeOrder(ctx, cfg, rest)
	if err != nil {
		return nil, err
	}
	res := &domain.ProcessResult{
		State:         domain.StateCanceled,
		Message:       "customer canceled at paypal",
		TransactionID: providerOrderID,
	}
	if err := g.base.FinishPayment(ctx, cfg, ord, res); err != nil {
		return nil, err
	}
	return g.redirectResponse(cfg, "cancel_redirect", ord), nil
}

// resumeOrder resolves the local order from the entry point path and digs the
// pending provider order id out of the redirect log entry.
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
	providerOrderID := pendingProviderOrder(entries, cfg.Code)
	if providerOrderID == "" {
		g.log.Warn("return hit without a pending paypal order",
			zap.String("order_id", ord.ID.String()),
		)
		return nil, "", domain.ErrEntryPointNotFound
	}
	return ord, providerOrderID, nil
}

// pendingProviderOrder picks the provider order id of the most recent
// redirect initiation. Entries arrive oldest-first.
func pendingProviderOrder(entries []txnlogdomain.Entry, code string) string {
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
	return &domain.EntryPointResponse{
		Status:      302,
		RedirectURL: target,
	}
}

// --- Refundable ---

func (g *Gateway) CanRefund(entry *txnlogdomain.Entry) bool {
	return entry != nil && entry.IsRefundable && entry.RefundedAt == nil && base.TransactionID(entry) != ""
}

func (g *Gateway) ProcessRefund(ctx context.Context, cfg domain.Config, ord *orderdomain.Order, entry *txnlogdomain.Entry, amount int64) error {
	api, err := newClient(cfg, g.tokens)
	if err != nil {
		return err
	}
	captureID := base.TransactionID(entry)
	if captureID == "" {
		return domain.ErrNoChargeToRefund
	}

	refund, err := api.refundCapture(ctx, captureID, amount, ord.Currency)
	if err != nil {
		g.log.Warn("paypal refund failed",
			zap.String("capture_id", captureID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: refund was rejected by the provider", domain.ErrProvider)
	}
	return g.base.FinishRefund(ctx, cfg, ord, entry, amount, map[string]any{
		"refund_id":      refund.ID,
		"status":         refund.Status,
		"transaction_id": captureID,
	})
}
