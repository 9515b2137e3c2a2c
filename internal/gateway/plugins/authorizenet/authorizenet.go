package authorizenet

import (
	"context"
	"encoding/json"
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

const (
	responseApproved = "1"
	responseDeclined = "2"
	responseError    = "3"
	responseHeld     = "4"
)

// Gateway charges cards through the Authorize.Net AIM JSON API, optionally
// authorizing first and capturing on a later order status change. Stored
// profiles use the CIM customer profile API.
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
		log:      p.Log.Named("gateway.authorizenet"),
	}
}

func (g *Gateway) Code() string { return "authorizenet" }
func (g *Gateway) Name() string { return "Authorize.Net" }

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

	cardNumber := form["card_number"]
	expiration := form["card_expiry"]
	if cardNumber == "" || expiration == "" {
		return nil, fmt.Errorf("%w: missing card details", domain.ErrProvider)
	}

	transactionType := "authCaptureTransaction"
	if cfg.Settings.Bool("authorize_only") {
		transactionType = "authOnlyTransaction"
	}
	amount := g.base.ChargeAmount(cfg, ord)
	transaction := map[string]any{
		"transactionType": transactionType,
		"amount":          domain.FormatAmount(amount),
		"payment": map[string]any{
			"creditCard": map[string]any{
				"cardNumber":     cardNumber,
				"expirationDate": expiration,
				"cardCode":       form["card_cvv"],
			},
		},
		"order": map[string]any{"invoiceNumber": ord.ID.String()},
	}
	request := map[string]any{
		"transaction_type": transactionType,
		"amount":           amount,
		"invoice":          ord.ID.String(),
	}

	resp, err := api.createTransaction(ctx, transaction)
	if err != nil {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, "authorize.net request failed", request, nil, err)
	}

	res := g.resultFromTransaction(resp, transactionType == "authOnlyTransaction")
	res.Request = request
	if res.State == domain.StateFailed {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, res.Message, request, res.Response,
			errors.New("transaction declined"))
	}
	if err := g.base.FinishPayment(ctx, cfg, ord, res); err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil, err
	}
	return res, nil
}

func (g *Gateway) resultFromTransaction(resp *transactionResponse, authOnly bool) *domain.ProcessResult {
	tr := resp.TransactionResponse
	res := &domain.ProcessResult{
		TransactionID: tr.TransID,
		Response: map[string]any{
			"response_code":  tr.ResponseCode,
			"account_number": tr.AccountNum,
		},
	}
	if !resp.Messages.ok() {
		res.State = domain.StateFailed
		res.Message = resp.Messages.text()
		if res.Message == "" {
			res.Message = "transaction rejected"
		}
		return res
	}
	switch tr.ResponseCode {
	case responseApproved:
		if authOnly {
			res.State = domain.StateRequiresCapture
			res.Message = "payment authorized, capture pending"
		} else {
			res.State = domain.StateSucceeded
			res.Message = "payment captured"
		}
		res.IsRefundable = true
	case responseHeld:
		res.State = domain.StateInitiated
		res.Message = "transaction held for review"
	default:
		res.State = domain.StateFailed
		res.Message = "transaction declined"
		if len(tr.Errors) > 0 {
			res.Message = tr.Errors[0].ErrorText
		}
	}
	return res
}

func (g *Gateway) RegisterEntryPoints() map[string]domain.EntryPointHandler { return nil }

func (g *Gateway) CompletesPaymentOnClient() bool { return false }

func (g *Gateway) SettingsFields() []domain.SettingsField {
	return []domain.SettingsField{
		{Key: "transaction_mode", Label: "Transaction mode", Type: "select", Required: true, Options: []string{domain.ModeTest, domain.ModeLive}},
		{Key: "test_login_id", Label: "Sandbox API login ID", Type: "text", VisibleWhen: "transaction_mode=test"},
		{Key: "test_transaction_key", Label: "Sandbox transaction key", Type: "secret", VisibleWhen: "transaction_mode=test"},
		{Key: "live_login_id", Label: "API login ID", Type: "text", Required: true, VisibleWhen: "transaction_mode=live"},
		{Key: "live_transaction_key", Label: "Transaction key", Type: "secret", Required: true, VisibleWhen: "transaction_mode=live"},
		{Key: "authorize_only", Label: "Authorize only, capture later", Type: "toggle"},
		{Key: "capture_status", Label: "Order status that triggers capture", Type: "text"},
		{Key: "minimum_order_total", Label: "Minimum order total", Type: "amount"},
	}
}

// --- Refundable ---

func (g *Gateway) CanRefund(entry *txnlogdomain.Entry) bool {
	return entry != nil && entry.IsRefundable && entry.RefundedAt == nil && base.TransactionID(entry) != ""
}

// ProcessRefund issues a refundTransaction. The API requires the masked card
// number recorded with the original charge.
func (g *Gateway) ProcessRefund(ctx context.Context, cfg domain.Config, ord *orderdomain.Order, entry *txnlogdomain.Entry, amount int64) error {
	api, err := newClient(cfg)
	if err != nil {
		return err
	}
	transID := base.TransactionID(entry)
	if transID == "" {
		return domain.ErrNoChargeToRefund
	}

	resp, err := api.createTransaction(ctx, map[string]any{
		"transactionType": "refundTransaction",
		"amount":          domain.FormatAmount(amount),
		"payment": map[string]any{
			"creditCard": map[string]any{
				"cardNumber":     maskedCard(entry),
				"expirationDate": "XXXX",
			},
		},
		"refTransId": transID,
	})
	if err != nil {
		return fmt.Errorf("%w: refund was rejected by the provider", domain.ErrProvider)
	}
	if !resp.Messages.ok() || resp.TransactionResponse.ResponseCode != responseApproved {
		g.log.Warn("authorize.net refund declined",
			zap.String("trans_id", transID),
			zap.String("message", resp.Messages.text()),
		)
		return fmt.Errorf("%w: refund was rejected by the provider", domain.ErrProvider)
	}
	return g.base.FinishRefund(ctx, cfg, ord, entry, amount, map[string]any{
		"refund_trans_id": resp.TransactionResponse.TransID,
		"transaction_id":  transID,
	})
}

func maskedCard(entry *txnlogdomain.Entry) string {
	if entry == nil || len(entry.Response) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(entry.Response, &payload); err != nil {
		return ""
	}
	masked, _ := payload["account_number"].(string)
	return masked
}

// --- AuthorizeCapturable ---

func (g *Gateway) Capture(ctx context.Context, cfg domain.Config, ord *orderdomain.Order, entry *txnlogdomain.Entry) error {
	api, err := newClient(cfg)
	if err != nil {
		return err
	}
	transID := base.TransactionID(entry)
	if transID == "" {
		return domain.ErrNoChargeToRefund
	}

	resp, err := api.createTransaction(ctx, map[string]any{
		"transactionType": "priorAuthCaptureTransaction",
		"amount":          domain.FormatAmount(g.base.ChargeAmount(cfg, ord)),
		"refTransId":      transID,
	})
	if err != nil {
		return g.base.FailPayment(ctx, cfg, ord.ID, "authorize.net capture failed",
			map[string]any{"trans_id": transID}, nil, err)
	}
	if !resp.Messages.ok() || resp.TransactionResponse.ResponseCode != responseApproved {
		return g.base.FailPayment(ctx, cfg, ord.ID, "authorize.net capture declined",
			map[string]any{"trans_id": transID},
			map[string]any{"message": resp.Messages.text()},
			errors.New("capture declined"))
	}

	res := &domain.ProcessResult{
		State:         domain.StateSucceeded,
		Message:       "authorized payment captured",
		TransactionID: transID,
		IsRefundable:  true,
		Response:      map[string]any{"capture_trans_id": resp.TransactionResponse.TransID},
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
	transID := base.TransactionID(entry)
	if transID == "" {
		return domain.ErrNoChargeToRefund
	}

	resp, err := api.createTransaction(ctx, map[string]any{
		"transactionType": "voidTransaction",
		"refTransId":      transID,
	})
	if err != nil || !resp.Messages.ok() {
		return fmt.Errorf("%w: authorization could not be voided", domain.ErrProvider)
	}

	res := &domain.ProcessResult{
		State:         domain.StateCanceled,
		Message:       "authorization voided",
		TransactionID: transID,
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
	cardNumber := data["card_number"]
	expiration := data["card_expiry"]
	if cardNumber == "" || expiration == "" {
		return nil, fmt.Errorf("%w: missing card details", domain.ErrProvider)
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
		created, err := api.request(ctx, "createCustomerProfileRequest", map[string]any{
			"profile": map[string]any{
				"merchantCustomerId": customerID.String(),
			},
		})
		if err != nil || !created.Messages.ok() {
			return nil, fmt.Errorf("%w: customer profile could not be created", domain.ErrProvider)
		}
		profile.ProviderCustomerID = created.CustomerProfileID
	}

	payment, err := api.request(ctx, "createCustomerPaymentProfileRequest", map[string]any{
		"customerProfileId": profile.ProviderCustomerID,
		"paymentProfile": map[string]any{
			"payment": map[string]any{
				"creditCard": map[string]any{
					"cardNumber":     cardNumber,
					"expirationDate": expiration,
				},
			},
		},
		"validationMode": validationMode(cfg),
	})
	if err != nil || !payment.Messages.ok() {
		return nil, fmt.Errorf("%w: card could not be saved", domain.ErrProvider)
	}

	profile.ProviderCardID = payment.CustomerPaymentProfileID
	profile.CardLast4 = last4(cardNumber)
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
	if profile.ProviderCustomerID != "" && profile.ProviderCardID != "" {
		resp, err := api.request(ctx, "deleteCustomerPaymentProfileRequest", map[string]any{
			"customerProfileId":        profile.ProviderCustomerID,
			"customerPaymentProfileId": profile.ProviderCardID,
		})
		// A record already gone at the provider is a successful delete.
		if err == nil && !resp.Messages.ok() {
			g.log.Info("provider payment profile already removed",
				zap.String("customer_profile_id", profile.ProviderCustomerID),
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
	transaction := map[string]any{
		"transactionType": "authCaptureTransaction",
		"amount":          domain.FormatAmount(amount),
		"profile": map[string]any{
			"customerProfileId": profile.ProviderCustomerID,
			"paymentProfile": map[string]any{
				"paymentProfileId": profile.ProviderCardID,
			},
		},
		"order": map[string]any{"invoiceNumber": ord.ID.String()},
	}
	request := map[string]any{
		"amount":              amount,
		"customer_profile_id": profile.ProviderCustomerID,
	}

	resp, err := api.createTransaction(ctx, transaction)
	if err != nil {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, "authorize.net profile charge failed", request, nil, err)
	}
	res := g.resultFromTransaction(resp, false)
	res.Request = request
	if res.State == domain.StateFailed {
		return nil, g.base.FailPayment(ctx, cfg, ord.ID, res.Message, request, res.Response,
			errors.New("transaction declined"))
	}
	if err := g.base.FinishPayment(ctx, cfg, ord, res); err != nil && !errors.Is(err, domain.ErrAlreadyProcessed) {
		return nil, err
	}
	return res, nil
}

func validationMode(cfg domain.Config) string {
	if cfg.Settings.IsLive() {
		return "liveMode"
	}
	return "testMode"
}

func last4(cardNumber string) string {
	if len(cardNumber) < 4 {
		return cardNumber
	}
	return cardNumber[len(cardNumber)-4:]
}
