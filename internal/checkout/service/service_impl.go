package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/payway/internal/checkout/domain"
	gatewaydomain "github.com/smallbiznis/payway/internal/gateway/domain"
	"github.com/smallbiznis/payway/internal/gateway/registry"
	obsmetrics "github.com/smallbiznis/payway/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
	profiledomain "github.com/smallbiznis/payway/internal/profile/domain"
	txnlogdomain "github.com/smallbiznis/payway/internal/txnlog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Registry *registry.Registry
	Orders   orderdomain.Repository
	Logs     txnlogdomain.Repository
	Profiles profiledomain.Repository
	Queue    domain.WebhookQueue `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	registry *registry.Registry
	orders   orderdomain.Repository
	logs     txnlogdomain.Repository
	profiles profiledomain.Repository
	queue    domain.WebhookQueue
	metrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("checkout.service"),
		genID:    p.GenID,
		registry: p.Registry,
		orders:   p.Orders,
		logs:     p.Logs,
		profiles: p.Profiles,
		queue:    p.Queue,
		metrics:  p.Metrics,
	}
}

func (s *service) ProcessPayment(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResponse, error) {
	ord, gw, cfg, err := s.resolveOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	res, err := gw.ProcessPaymentForm(ctx, req.Data, *cfg, ord)
	if err != nil {
		return nil, err
	}
	return toResponse(res), nil
}

func (s *service) PayFromProfile(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResponse, error) {
	ord, gw, cfg, err := s.resolveOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	capable, ok := gw.(gatewaydomain.ProfileCapable)
	if !ok {
		return nil, gatewaydomain.ErrNotImplemented
	}
	profile, err := s.profiles.FindByCustomer(ctx, s.db, ord.CustomerID, cfg.Code)
	if err != nil {
		return nil, err
	}

	res, err := capable.PayFromPaymentProfile(ctx, *cfg, ord, profile, req.Data)
	if err != nil {
		return nil, err
	}
	return toResponse(res), nil
}

// resolveOrder loads the order and the gateway it selected, rejecting orders
// that are already paid before any provider call happens. The duplicate
// trigger is still logged so the attempt history stays complete.
func (s *service) resolveOrder(ctx context.Context, orderID snowflake.ID) (*orderdomain.Order, gatewaydomain.Gateway, *gatewaydomain.Config, error) {
	ord, err := s.orders.Find(ctx, s.db, orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	if ord.IsPaymentProcessed {
		s.logDuplicateTrigger(ctx, ord)
		return nil, nil, nil, gatewaydomain.ErrAlreadyProcessed
	}
	gw, cfg, err := s.registry.Resolve(ctx, ord.PaymentCode)
	if err != nil {
		return nil, nil, nil, err
	}
	return ord, gw, cfg, nil
}

// logDuplicateTrigger writes the informational no-op entry for a completion
// trigger that observed the processed flag already set.
func (s *service) logDuplicateTrigger(ctx context.Context, ord *orderdomain.Order) {
	name := ord.PaymentCode
	if gw, err := s.registry.FindGateway(ord.PaymentCode); err == nil {
		name = gw.Name()
	}
	entry := &txnlogdomain.Entry{
		ID:          s.genID.Generate(),
		OrderID:     ord.ID,
		PaymentCode: ord.PaymentCode,
		PaymentName: name,
		Message:     "payment already processed, skipping completion",
		IsSuccess:   false,
	}
	if err := s.logs.Append(ctx, s.db, entry); err != nil {
		s.log.Warn("failed to log duplicate trigger",
			zap.String("order_id", ord.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *service) Refund(ctx context.Context, req domain.RefundRequest) error {
	entry, err := s.logs.Find(ctx, s.db, req.EntryID)
	if err != nil {
		return err
	}
	if !entry.IsSuccess || !entry.IsRefundable {
		return gatewaydomain.ErrNoChargeToRefund
	}
	if entry.RefundedAt != nil {
		return gatewaydomain.ErrNothingToRefund
	}

	ord, err := s.orders.Find(ctx, s.db, entry.OrderID)
	if err != nil {
		return err
	}
	gw, cfg, err := s.registry.Resolve(ctx, entry.PaymentCode)
	if err != nil {
		return err
	}
	refundable, ok := gw.(gatewaydomain.Refundable)
	if !ok {
		return gatewaydomain.ErrNotImplemented
	}
	if !refundable.CanRefund(entry) {
		return gatewaydomain.ErrNoChargeToRefund
	}

	amount := req.Amount
	if amount == 0 {
		amount = ord.OrderTotal
	}
	if amount < 0 || amount > ord.OrderTotal {
		return gatewaydomain.ErrRefundExceedsTotal
	}

	if err := refundable.ProcessRefund(ctx, *cfg, ord, entry, amount); err != nil {
		return err
	}
	if amount == ord.OrderTotal {
		if err := s.orders.UpdateStatus(ctx, s.db, ord.ID, orderdomain.StatusRefunded); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) Capture(ctx context.Context, entryID snowflake.ID) error {
	entry, ord, gw, cfg, err := s.resolveEntry(ctx, entryID)
	if err != nil {
		return err
	}
	capable, ok := gw.(gatewaydomain.AuthorizeCapturable)
	if !ok {
		return gatewaydomain.ErrNotImplemented
	}
	return capable.Capture(ctx, *cfg, ord, entry)
}

func (s *service) CancelAuthorization(ctx context.Context, entryID snowflake.ID) error {
	entry, ord, gw, cfg, err := s.resolveEntry(ctx, entryID)
	if err != nil {
		return err
	}
	capable, ok := gw.(gatewaydomain.AuthorizeCapturable)
	if !ok {
		return gatewaydomain.ErrNotImplemented
	}
	return capable.CancelAuthorization(ctx, *cfg, ord, entry)
}

func (s *service) resolveEntry(ctx context.Context, entryID snowflake.ID) (*txnlogdomain.Entry, *orderdomain.Order, gatewaydomain.Gateway, *gatewaydomain.Config, error) {
	entry, err := s.logs.Find(ctx, s.db, entryID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	ord, err := s.orders.Find(ctx, s.db, entry.OrderID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	gw, cfg, err := s.registry.Resolve(ctx, entry.PaymentCode)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return entry, ord, gw, cfg, nil
}

// HandleOrderStatusChanged captures an authorized payment when the order
// reaches the gateway's configured capture status.
func (s *service) HandleOrderStatusChanged(ctx context.Context, orderID snowflake.ID, newStatus string) error {
	ord, err := s.orders.Find(ctx, s.db, orderID)
	if err != nil {
		return err
	}
	gw, cfg, err := s.registry.Resolve(ctx, ord.PaymentCode)
	if errors.Is(err, gatewaydomain.ErrGatewayNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	captureStatus := cfg.Settings.CaptureStatus()
	if captureStatus == "" || captureStatus != newStatus {
		return nil
	}
	capable, ok := gw.(gatewaydomain.AuthorizeCapturable)
	if !ok {
		return nil
	}

	entry, err := s.latestChargeEntry(ctx, ord.ID, cfg.Code)
	if err != nil {
		return err
	}
	if entry == nil {
		s.log.Info("no authorized charge to capture",
			zap.String("order_id", ord.ID.String()),
		)
		return nil
	}
	return capable.Capture(ctx, *cfg, ord, entry)
}

// latestChargeEntry finds the newest successful charge entry for a gateway.
func (s *service) latestChargeEntry(ctx context.Context, orderID snowflake.ID, code string) (*txnlogdomain.Entry, error) {
	entries, err := s.logs.ListByOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		entry := &entries[i]
		if entry.PaymentCode == code && entry.IsSuccess && entry.IsRefundable {
			return entry, nil
		}
	}
	return nil, nil
}

func (s *service) HandleWebhook(ctx context.Context, paymentCode string, payload []byte, headers http.Header) error {
	gw, cfg, err := s.registry.Resolve(ctx, paymentCode)
	if err != nil {
		return err
	}
	consumer, ok := gw.(gatewaydomain.WebhookConsumer)
	if !ok {
		return gatewaydomain.ErrNotImplemented
	}
	if err := consumer.VerifyWebhook(ctx, *cfg, payload, headers); err != nil {
		if s.metrics != nil {
			s.metrics.RecordWebhookEvent(ctx, paymentCode, "rejected")
		}
		return err
	}

	if s.queue != nil {
		job := domain.WebhookJob{
			ID:          uuid.NewString(),
			PaymentCode: paymentCode,
			Payload:     payload,
		}
		if err := s.queue.Enqueue(ctx, job); err == nil {
			if s.metrics != nil {
				s.metrics.RecordWebhookEvent(ctx, paymentCode, "queued")
			}
			return nil
		}
		// Queue trouble falls back to inline processing, never a dropped event.
		s.log.Warn("webhook enqueue failed, processing inline", zap.Error(err))
	}
	return s.applyWebhook(ctx, consumer, *cfg, payload)
}

func (s *service) ProcessWebhookJob(ctx context.Context, job domain.WebhookJob) error {
	gw, cfg, err := s.registry.Resolve(ctx, job.PaymentCode)
	if err != nil {
		return err
	}
	consumer, ok := gw.(gatewaydomain.WebhookConsumer)
	if !ok {
		return gatewaydomain.ErrNotImplemented
	}
	return s.applyWebhook(ctx, consumer, *cfg, job.Payload)
}

func (s *service) applyWebhook(ctx context.Context, consumer gatewaydomain.WebhookConsumer, cfg gatewaydomain.Config, payload []byte) error {
	err := consumer.HandleWebhook(ctx, cfg, payload)
	outcome := "processed"
	switch {
	case errors.Is(err, gatewaydomain.ErrWebhookIgnored):
		outcome = "ignored"
		err = nil
	case err != nil:
		outcome = "failed"
	}
	if s.metrics != nil {
		s.metrics.RecordWebhookEvent(ctx, cfg.Code, outcome)
	}
	return err
}

func (s *service) UpdatePaymentProfile(ctx context.Context, paymentCode string, customerID snowflake.ID, data map[string]string) (*profiledomain.Profile, error) {
	gw, cfg, err := s.registry.Resolve(ctx, paymentCode)
	if err != nil {
		return nil, err
	}
	capable, ok := gw.(gatewaydomain.ProfileCapable)
	if !ok {
		return nil, gatewaydomain.ErrNotImplemented
	}
	return capable.UpdatePaymentProfile(ctx, *cfg, customerID, data)
}

func (s *service) DeletePaymentProfile(ctx context.Context, paymentCode string, customerID snowflake.ID) error {
	gw, cfg, err := s.registry.Resolve(ctx, paymentCode)
	if err != nil {
		return err
	}
	capable, ok := gw.(gatewaydomain.ProfileCapable)
	if !ok {
		return gatewaydomain.ErrNotImplemented
	}
	profile, err := s.profiles.FindByCustomer(ctx, s.db, customerID, paymentCode)
	if errors.Is(err, profiledomain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return capable.DeletePaymentProfile(ctx, *cfg, profile)
}

func (s *service) MakePrimaryProfile(ctx context.Context, paymentCode string, customerID snowflake.ID) error {
	profile, err := s.profiles.FindByCustomer(ctx, s.db, customerID, paymentCode)
	if err != nil {
		return err
	}
	return s.profiles.MakePrimary(ctx, s.db, profile.ID)
}

func (s *service) ListProfiles(ctx context.Context, customerID snowflake.ID) ([]profiledomain.Profile, error) {
	return s.profiles.ListByCustomer(ctx, s.db, customerID)
}

func (s *service) ListTransactions(ctx context.Context, orderID snowflake.ID) ([]txnlogdomain.Entry, error) {
	return s.logs.ListByOrder(ctx, s.db, orderID)
}

func toResponse(res *gatewaydomain.ProcessResult) *domain.PaymentResponse {
	return &domain.PaymentResponse{
		State:        res.State,
		Message:      res.Message,
		RedirectURL:  res.RedirectURL,
		ClientFields: res.ClientFields,
	}
}
