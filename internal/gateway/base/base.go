package base

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/payway/internal/gateway/domain"
	obsmetrics "github.com/smallbiznis/payway/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
	txnlogdomain "github.com/smallbiznis/payway/internal/txnlog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Params collects the shared plugin dependencies.
type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Orders  orderdomain.Repository
	Logs    txnlogdomain.Repository
	BaseURL string              `name:"base_url"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Base carries the behavior shared by every gateway plugin: applicability,
// entry-point URL construction, and the log/complete sequence that keeps
// order completion at-most-once.
type Base struct {
	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Orders  orderdomain.Repository
	Logs    txnlogdomain.Repository
	BaseURL string
	Metrics *obsmetrics.Metrics
}

func New(p Params) *Base {
	return &Base{
		DB:      p.DB,
		Log:     p.Log.Named("gateway"),
		GenID:   p.GenID,
		Orders:  p.Orders,
		Logs:    p.Logs,
		BaseURL: strings.TrimRight(p.BaseURL, "/"),
		Metrics: p.Metrics,
	}
}

// IsApplicable is the default applicability rule.
func (b *Base) IsApplicable(orderTotal int64, cfg domain.Config) bool {
	return cfg.Settings.MinimumOrderTotal() <= orderTotal
}

// RequireMethodMatch fails when the order's selected method is not this one.
func (b *Base) RequireMethodMatch(cfg domain.Config, ord *orderdomain.Order) error {
	if ord == nil || !strings.EqualFold(ord.PaymentCode, cfg.Code) {
		return domain.ErrPaymentMethodMismatch
	}
	return nil
}

// RequireApplicable enforces the minimum-total rule and renders the
// user-facing message for the rejected method.
func (b *Base) RequireApplicable(gw domain.Gateway, cfg domain.Config, ord *orderdomain.Order) error {
	if gw.IsApplicable(ord.OrderTotal, cfg) {
		return nil
	}
	return fmt.Errorf("%w: %s requires a minimum order total of %s %s",
		domain.ErrBelowMinimumTotal,
		cfg.Name,
		domain.FormatAmount(cfg.Settings.MinimumOrderTotal()),
		ord.Currency,
	)
}

// ChargeAmount is the amount handed to the provider: the order total plus
// the method's configured fee. fee_type "fixed" adds fee_amount minor units,
// "percent" adds fee_amount percent of the total; anything else charges the
// bare total.
func (b *Base) ChargeAmount(cfg domain.Config, ord *orderdomain.Order) int64 {
	total := ord.OrderTotal
	switch cfg.Settings.FeeType() {
	case "fixed":
		return total + cfg.Settings.FeeAmount()
	case "percent":
		return total + total*cfg.Settings.FeeAmount()/100
	default:
		return total
	}
}

// EntryPointURL builds the externally reachable URL of a declared entry
// point, with optional extra path segments.
func (b *Base) EntryPointURL(name string, rest ...string) string {
	parts := append([]string{b.BaseURL, "payments", name}, rest...)
	return strings.Join(parts, "/")
}

// NewIdempotencyKey derives a stable provider idempotency key for one
// logical attempt: order id plus an attempt nonce.
func (b *Base) NewIdempotencyKey(orderID snowflake.ID) string {
	return fmt.Sprintf("%d-%s", orderID, ulid.Make().String())
}

// FinishPayment applies a provider outcome: it performs the guarded order
// completion when the outcome warrants it and writes exactly one transaction
// log entry describing what happened. When another trigger already completed
// the order, the entry is informational and ErrAlreadyProcessed is returned
// so callers can treat the duplicate as a benign no-op.
func (b *Base) FinishPayment(ctx context.Context, cfg domain.Config, ord *orderdomain.Order, res *domain.ProcessResult) error {
	if res == nil {
		return domain.ErrProvider
	}

	completes := res.State == domain.StateSucceeded || res.State == domain.StateRequiresCapture
	if completes {
		err := b.Orders.CompletePayment(ctx, b.DB, ord.ID, cfg.Settings.OrderStatus())
		if errors.Is(err, orderdomain.ErrAlreadyProcessed) {
			b.recordAttempt(ctx, cfg.Code, "duplicate")
			if logErr := b.logEntry(ctx, cfg, ord.ID, &domain.ProcessResult{
				State:    res.State,
				Message:  "payment already processed, skipping completion",
				Request:  res.Request,
				Response: res.Response,
			}, false); logErr != nil {
				return logErr
			}
			return domain.ErrAlreadyProcessed
		}
		if err != nil {
			return err
		}
	}

	success := completes
	if err := b.logEntry(ctx, cfg, ord.ID, res, success); err != nil {
		return err
	}
	b.recordAttempt(ctx, cfg.Code, string(res.State))
	return nil
}

// FailPayment logs a failed attempt with the raw provider payload and
// returns the generic provider error. No failure path skips logging.
func (b *Base) FailPayment(ctx context.Context, cfg domain.Config, orderID snowflake.ID, message string, request, response map[string]any, cause error) error {
	entry := &domain.ProcessResult{
		State:    domain.StateFailed,
		Message:  message,
		Request:  request,
		Response: response,
	}
	if err := b.logEntry(ctx, cfg, orderID, entry, false); err != nil {
		b.Log.Error("failed to log payment failure",
			zap.String("gateway", cfg.Code),
			zap.Error(err),
		)
	}
	b.recordAttempt(ctx, cfg.Code, "failed")
	b.Log.Warn("provider call failed",
		zap.String("gateway", cfg.Code),
		zap.String("order_id", orderID.String()),
		zap.Error(cause),
	)
	return fmt.Errorf("%w: payment could not be completed, please try again later", domain.ErrProvider)
}

// FinishRefund appends the refund log entry then stamps the source entry.
// The stamp is idempotent; losing the race surfaces ErrNothingToRefund.
func (b *Base) FinishRefund(ctx context.Context, cfg domain.Config, ord *orderdomain.Order, source *txnlogdomain.Entry, amount int64, response map[string]any) error {
	refundEntry := &txnlogdomain.Entry{
		ID:          b.GenID.Generate(),
		OrderID:     ord.ID,
		PaymentCode: cfg.Code,
		PaymentName: cfg.Name,
		Message:     fmt.Sprintf("refunded %s %s", domain.FormatAmount(amount), ord.Currency),
		IsSuccess:   true,
		Response:    marshalPayload(response),
	}
	if err := b.Logs.Append(ctx, b.DB, refundEntry); err != nil {
		return err
	}

	err := b.Logs.MarkRefundProcessed(ctx, b.DB, source.ID,
		func(ctx context.Context, entry *txnlogdomain.Entry) error {
			b.Log.Info("refund processing",
				zap.String("gateway", cfg.Code),
				zap.String("transaction_log_id", entry.ID.String()),
			)
			return nil
		},
		func(ctx context.Context, entry *txnlogdomain.Entry) error {
			b.Log.Info("refund processed",
				zap.String("gateway", cfg.Code),
				zap.String("transaction_log_id", entry.ID.String()),
			)
			return nil
		},
	)
	if errors.Is(err, txnlogdomain.ErrAlreadyRefunded) {
		return domain.ErrNothingToRefund
	}
	if err != nil {
		return err
	}

	if b.Metrics != nil {
		b.Metrics.RecordRefund(ctx, cfg.Code, "succeeded")
	}
	return nil
}

func (b *Base) logEntry(ctx context.Context, cfg domain.Config, orderID snowflake.ID, res *domain.ProcessResult, success bool) error {
	message := res.Message
	if message == "" {
		message = string(res.State)
	}
	response := res.Response
	if res.TransactionID != "" {
		response = make(map[string]any, len(res.Response)+1)
		for k, v := range res.Response {
			response[k] = v
		}
		response["transaction_id"] = res.TransactionID
	}
	return b.Logs.Append(ctx, b.DB, &txnlogdomain.Entry{
		ID:           b.GenID.Generate(),
		OrderID:      orderID,
		PaymentCode:  cfg.Code,
		PaymentName:  cfg.Name,
		Message:      message,
		IsSuccess:    success,
		Request:      marshalPayload(res.Request),
		Response:     marshalPayload(response),
		IsRefundable: success && res.IsRefundable,
	})
}

// TransactionID reads the provider transaction reference back out of a log
// entry's response payload.
func TransactionID(entry *txnlogdomain.Entry) string {
	if entry == nil || len(entry.Response) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(entry.Response, &payload); err != nil {
		return ""
	}
	id, _ := payload["transaction_id"].(string)
	return id
}

func (b *Base) recordAttempt(ctx context.Context, gateway, outcome string) {
	if b.Metrics != nil {
		b.Metrics.RecordPaymentAttempt(ctx, gateway, outcome)
	}
}

func marshalPayload(payload map[string]any) datatypes.JSON {
	if len(payload) == 0 {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
