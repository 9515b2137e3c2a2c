package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/smallbiznis/payway/internal/checkout/domain"
	checkoutservice "github.com/smallbiznis/payway/internal/checkout/service"
	"github.com/smallbiznis/payway/internal/gateway/base"
	gatewaydomain "github.com/smallbiznis/payway/internal/gateway/domain"
	"github.com/smallbiznis/payway/internal/gateway/plugins/cod"
	stripeplugin "github.com/smallbiznis/payway/internal/gateway/plugins/stripe"
	"github.com/smallbiznis/payway/internal/gateway/registry"
	methodrepo "github.com/smallbiznis/payway/internal/method/repository"
	methodservice "github.com/smallbiznis/payway/internal/method/service"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
	orderrepo "github.com/smallbiznis/payway/internal/order/repository"
	profiledomain "github.com/smallbiznis/payway/internal/profile/domain"
	profilerepo "github.com/smallbiznis/payway/internal/profile/repository"
	txnlogdomain "github.com/smallbiznis/payway/internal/txnlog/domain"
	txnlogrepo "github.com/smallbiznis/payway/internal/txnlog/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE orders (
			id BIGINT PRIMARY KEY,
			customer_id BIGINT NOT NULL,
			order_total BIGINT NOT NULL,
			currency TEXT NOT NULL,
			payment_code TEXT NOT NULL,
			status TEXT NOT NULL,
			is_payment_processed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE transaction_logs (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			payment_code TEXT NOT NULL,
			payment_name TEXT NOT NULL,
			message TEXT NOT NULL,
			is_success BOOLEAN NOT NULL DEFAULT FALSE,
			request TEXT,
			response TEXT,
			is_refundable BOOLEAN NOT NULL DEFAULT FALSE,
			refunded_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE payment_methods (
			code TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			enabled BOOLEAN NOT NULL DEFAULT FALSE,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			settings TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE payment_profiles (
			id BIGINT PRIMARY KEY,
			customer_id BIGINT NOT NULL,
			payment_code TEXT NOT NULL,
			provider_customer_id TEXT,
			provider_card_id TEXT,
			card_brand TEXT,
			card_last4 TEXT,
			is_primary BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_payment_profiles_customer_code ON payment_profiles(customer_id, payment_code)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	base     *base.Base
	svc      checkoutdomain.Service
	orders   orderdomain.Repository
	logs     txnlogdomain.Repository
	profiles profiledomain.Repository
	stripe   *stripeplugin.Gateway
}

// fakeRefundGateway completes and refunds without any provider round trip.
type fakeRefundGateway struct {
	base *base.Base
}

func (g *fakeRefundGateway) Code() string { return "fakepay" }
func (g *fakeRefundGateway) Name() string { return "Fake Pay" }
func (g *fakeRefundGateway) IsApplicable(orderTotal int64, cfg gatewaydomain.Config) bool {
	return g.base.IsApplicable(orderTotal, cfg)
}
func (g *fakeRefundGateway) ProcessPaymentForm(ctx context.Context, form map[string]string, cfg gatewaydomain.Config, ord *orderdomain.Order) (*gatewaydomain.ProcessResult, error) {
	if err := g.base.RequireMethodMatch(cfg, ord); err != nil {
		return nil, err
	}
	if err := g.base.RequireApplicable(g, cfg, ord); err != nil {
		return nil, err
	}
	res := &gatewaydomain.ProcessResult{
		State:         gatewaydomain.StateSucceeded,
		Message:       "charged",
		TransactionID: "fake_txn_1",
		IsRefundable:  true,
	}
	if err := g.base.FinishPayment(ctx, cfg, ord, res); err != nil {
		return nil, err
	}
	return res, nil
}
func (g *fakeRefundGateway) RegisterEntryPoints() map[string]gatewaydomain.EntryPointHandler {
	return nil
}
func (g *fakeRefundGateway) CompletesPaymentOnClient() bool { return false }
func (g *fakeRefundGateway) SettingsFields() []gatewaydomain.SettingsField { return nil }

func (g *fakeRefundGateway) CanRefund(entry *txnlogdomain.Entry) bool {
	return entry != nil && entry.IsRefundable && entry.RefundedAt == nil
}
func (g *fakeRefundGateway) ProcessRefund(ctx context.Context, cfg gatewaydomain.Config, ord *orderdomain.Order, entry *txnlogdomain.Entry, amount int64) error {
	return g.base.FinishRefund(ctx, cfg, ord, entry, amount, map[string]any{"refund_id": "fake_ref_1"})
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	orders := orderrepo.Provide()
	logs := txnlogrepo.Provide()
	profiles := profilerepo.Provide()

	b := &base.Base{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Orders:  orders,
		Logs:    logs,
		BaseURL: "https://shop.example.com",
	}

	methodSvc := methodservice.New(methodservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Methods: methodrepo.Provide(),
	})

	stripeGW := stripeplugin.New(stripeplugin.Params{
		Base:     b,
		Profiles: profiles,
		Log:      zap.NewNop(),
	})
	reg := registry.New(registry.Params{
		Logger:  zap.NewNop(),
		Methods: methodSvc,
		Gateways: []gatewaydomain.Gateway{
			cod.New(b),
			stripeGW,
			&fakeRefundGateway{base: b},
		},
	})

	svc := checkoutservice.New(checkoutservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Registry: reg,
		Orders:   orders,
		Logs:     logs,
		Profiles: profiles,
	})

	return &fixture{
		db:       db,
		node:     node,
		base:     b,
		svc:      svc,
		orders:   orders,
		logs:     logs,
		profiles: profiles,
		stripe:   stripeGW,
	}
}

func (f *fixture) seedMethod(t *testing.T, code, name string, settings map[string]any) {
	t.Helper()
	raw, err := json.Marshal(settings)
	if err != nil {
		t.Fatalf("marshal settings: %v", err)
	}
	now := time.Now().UTC()
	if err := f.db.Exec(
		`INSERT INTO payment_methods (code, name, priority, enabled, is_default, settings, created_at, updated_at)
		 VALUES (?, ?, 0, TRUE, FALSE, ?, ?, ?)`,
		code, name, string(raw), now, now,
	).Error; err != nil {
		t.Fatalf("seed method: %v", err)
	}
}

func (f *fixture) seedOrder(t *testing.T, total int64, paymentCode string) *orderdomain.Order {
	t.Helper()
	ord := &orderdomain.Order{
		ID:          f.node.Generate(),
		CustomerID:  f.node.Generate(),
		OrderTotal:  total,
		Currency:    "USD",
		PaymentCode: paymentCode,
		Status:      orderdomain.StatusPending,
	}
	now := time.Now().UTC()
	if err := f.db.Exec(
		`INSERT INTO orders (id, customer_id, order_total, currency, payment_code, status, is_payment_processed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, FALSE, ?, ?)`,
		ord.ID, ord.CustomerID, ord.OrderTotal, ord.Currency, ord.PaymentCode, ord.Status, now, now,
	).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return ord
}

func (f *fixture) successEntries(t *testing.T, orderID snowflake.ID) []txnlogdomain.Entry {
	t.Helper()
	entries, err := f.logs.ListByOrder(context.Background(), f.db, orderID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	var successes []txnlogdomain.Entry
	for _, entry := range entries {
		if entry.IsSuccess {
			successes = append(successes, entry)
		}
	}
	return successes
}

func TestProcessPaymentCODHappyPath(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "cod", "Cash on Delivery", map[string]any{"order_status": "on_hold"})
	ord := f.seedOrder(t, 5000, "cod")

	res, err := f.svc.ProcessPayment(ctx, checkoutdomain.PaymentRequest{OrderID: ord.ID})
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if res.State != gatewaydomain.StateSucceeded {
		t.Fatalf("expected succeeded, got %s", res.State)
	}

	got, err := f.orders.Find(ctx, f.db, ord.ID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if !got.IsPaymentProcessed {
		t.Fatal("order must be flagged processed")
	}
	if got.Status != "on_hold" {
		t.Fatalf("expected configured status on_hold, got %q", got.Status)
	}
	if n := len(f.successEntries(t, ord.ID)); n != 1 {
		t.Fatalf("expected exactly one success entry, got %d", n)
	}
}

func TestProcessPaymentTwiceIsRejected(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "cod", "Cash on Delivery", nil)
	ord := f.seedOrder(t, 5000, "cod")

	if _, err := f.svc.ProcessPayment(ctx, checkoutdomain.PaymentRequest{OrderID: ord.ID}); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	_, err := f.svc.ProcessPayment(ctx, checkoutdomain.PaymentRequest{OrderID: ord.ID})
	if !errors.Is(err, gatewaydomain.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if n := len(f.successEntries(t, ord.ID)); n != 1 {
		t.Fatalf("expected exactly one success entry, got %d", n)
	}
}

func TestBelowMinimumTotalMessage(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "cod", "Cash on Delivery", map[string]any{"minimum_order_total": 2000})
	ord := f.seedOrder(t, 1500, "cod")

	_, err := f.svc.ProcessPayment(ctx, checkoutdomain.PaymentRequest{OrderID: ord.ID})
	if !errors.Is(err, gatewaydomain.ErrBelowMinimumTotal) {
		t.Fatalf("expected ErrBelowMinimumTotal, got %v", err)
	}
	if !strings.Contains(err.Error(), "20.00") {
		t.Fatalf("message must show the formatted minimum, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "Cash on Delivery") {
		t.Fatalf("message must show the display name, got %q", err.Error())
	}
}

func TestProcessPaymentMethodMismatch(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "cod", "Cash on Delivery", nil)
	f.seedMethod(t, "fakepay", "Fake Pay", nil)
	ord := f.seedOrder(t, 5000, "fakepay")

	// The order selected fakepay; driving it through cod must fail.
	gw, cfg, err := registryResolve(ctx, f, "cod")
	if err != nil {
		t.Fatalf("resolve cod: %v", err)
	}
	_, err = gw.ProcessPaymentForm(ctx, nil, *cfg, ord)
	if !errors.Is(err, gatewaydomain.ErrPaymentMethodMismatch) {
		t.Fatalf("expected ErrPaymentMethodMismatch, got %v", err)
	}
}

func registryResolve(ctx context.Context, f *fixture, code string) (gatewaydomain.Gateway, *gatewaydomain.Config, error) {
	methodSvc := methodservice.New(methodservice.Params{
		DB:      f.db,
		Log:     zap.NewNop(),
		Methods: methodrepo.Provide(),
	})
	cfg, err := methodSvc.ByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	reg := registry.New(registry.Params{
		Logger:   zap.NewNop(),
		Methods:  methodSvc,
		Gateways: []gatewaydomain.Gateway{cod.New(f.base)},
	})
	gw, err := reg.FindGateway(code)
	return gw, cfg, err
}

func TestRefundFullThenSecondRefundFails(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "fakepay", "Fake Pay", nil)
	ord := f.seedOrder(t, 5000, "fakepay")

	if _, err := f.svc.ProcessPayment(ctx, checkoutdomain.PaymentRequest{OrderID: ord.ID}); err != nil {
		t.Fatalf("process payment: %v", err)
	}
	entry := f.successEntries(t, ord.ID)[0]

	if err := f.svc.Refund(ctx, checkoutdomain.RefundRequest{EntryID: entry.ID}); err != nil {
		t.Fatalf("first refund: %v", err)
	}

	got, err := f.orders.Find(ctx, f.db, ord.ID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if got.Status != orderdomain.StatusRefunded {
		t.Fatalf("expected refunded status, got %q", got.Status)
	}

	err = f.svc.Refund(ctx, checkoutdomain.RefundRequest{EntryID: entry.ID})
	if !errors.Is(err, gatewaydomain.ErrNothingToRefund) {
		t.Fatalf("second refund must fail with ErrNothingToRefund, got %v", err)
	}

	stamped, err := f.logs.Find(ctx, f.db, entry.ID)
	if err != nil {
		t.Fatalf("find entry: %v", err)
	}
	if stamped.RefundedAt == nil {
		t.Fatal("source entry must carry the refund stamp")
	}
}

func TestRefundExceedingTotalRejected(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "fakepay", "Fake Pay", nil)
	ord := f.seedOrder(t, 5000, "fakepay")

	if _, err := f.svc.ProcessPayment(ctx, checkoutdomain.PaymentRequest{OrderID: ord.ID}); err != nil {
		t.Fatalf("process payment: %v", err)
	}
	entry := f.successEntries(t, ord.ID)[0]

	err := f.svc.Refund(ctx, checkoutdomain.RefundRequest{EntryID: entry.ID, Amount: ord.OrderTotal + 1})
	if !errors.Is(err, gatewaydomain.ErrRefundExceedsTotal) {
		t.Fatalf("expected ErrRefundExceedsTotal, got %v", err)
	}

	// A partial refund inside the bound succeeds and keeps the order status.
	if err := f.svc.Refund(ctx, checkoutdomain.RefundRequest{EntryID: entry.ID, Amount: 1000}); err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	got, err := f.orders.Find(ctx, f.db, ord.ID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if got.Status == orderdomain.StatusRefunded {
		t.Fatal("partial refund must not mark the order refunded")
	}
}

func TestRefundOnFailedEntryRejected(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "fakepay", "Fake Pay", nil)
	ord := f.seedOrder(t, 5000, "fakepay")

	entry := &txnlogdomain.Entry{
		ID:          f.node.Generate(),
		OrderID:     ord.ID,
		PaymentCode: "fakepay",
		PaymentName: "Fake Pay",
		Message:     "declined",
		IsSuccess:   false,
	}
	if err := f.logs.Append(ctx, f.db, entry); err != nil {
		t.Fatalf("append entry: %v", err)
	}

	err := f.svc.Refund(ctx, checkoutdomain.RefundRequest{EntryID: entry.ID})
	if !errors.Is(err, gatewaydomain.ErrNoChargeToRefund) {
		t.Fatalf("expected ErrNoChargeToRefund, got %v", err)
	}
}

func TestWebhookCompletesOrderOnce(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "stripe", "Stripe", map[string]any{"transaction_mode": "test"})
	ord := f.seedOrder(t, 5000, "stripe")

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","status":"succeeded","metadata":{"order_id":"%s"}}}}`,
		ord.ID.String(),
	))

	// Unsigned payloads pass verification in test mode.
	if err := f.svc.HandleWebhook(ctx, "stripe", payload, nil); err != nil {
		t.Fatalf("first webhook: %v", err)
	}
	got, err := f.orders.Find(ctx, f.db, ord.ID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if !got.IsPaymentProcessed {
		t.Fatal("webhook must complete the order")
	}

	// The provider retries: the duplicate is acknowledged, not reapplied.
	if err := f.svc.HandleWebhook(ctx, "stripe", payload, nil); err != nil {
		t.Fatalf("duplicate webhook: %v", err)
	}
	if n := len(f.successEntries(t, ord.ID)); n != 1 {
		t.Fatalf("expected exactly one success entry, got %d", n)
	}
}

func TestWebhookThenCheckoutTrigger(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "stripe", "Stripe", map[string]any{"transaction_mode": "test"})
	f.seedMethod(t, "cod", "Cash on Delivery", nil)
	ord := f.seedOrder(t, 5000, "stripe")

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","status":"succeeded","metadata":{"order_id":"%s"}}}}`,
		ord.ID.String(),
	))
	if err := f.svc.HandleWebhook(ctx, "stripe", payload, nil); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	// The synchronous trigger arrives after the webhook already completed.
	_, err := f.svc.ProcessPayment(ctx, checkoutdomain.PaymentRequest{OrderID: ord.ID})
	if !errors.Is(err, gatewaydomain.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if n := len(f.successEntries(t, ord.ID)); n != 1 {
		t.Fatalf("expected exactly one success entry, got %d", n)
	}
}

func TestWebhookUnknownOrderIgnored(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "stripe", "Stripe", map[string]any{"transaction_mode": "test"})

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"order_id":"123456789"}}}}`)
	if err := f.svc.HandleWebhook(ctx, "stripe", payload, nil); err != nil {
		t.Fatalf("unknown order must be acknowledged, got %v", err)
	}
}

func TestWebhookOnGatewayWithoutConsumer(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "cod", "Cash on Delivery", nil)

	err := f.svc.HandleWebhook(ctx, "cod", []byte(`{}`), nil)
	if !errors.Is(err, gatewaydomain.ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}

func TestCaptureOnGatewayWithoutCapability(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "fakepay", "Fake Pay", nil)
	ord := f.seedOrder(t, 5000, "fakepay")

	if _, err := f.svc.ProcessPayment(ctx, checkoutdomain.PaymentRequest{OrderID: ord.ID}); err != nil {
		t.Fatalf("process payment: %v", err)
	}
	entry := f.successEntries(t, ord.ID)[0]

	err := f.svc.Capture(ctx, entry.ID)
	if !errors.Is(err, gatewaydomain.ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}

func TestDisabledMethodNotResolvable(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "cod", "Cash on Delivery", nil)
	if err := f.db.Exec(`UPDATE payment_methods SET enabled = FALSE WHERE code = 'cod'`).Error; err != nil {
		t.Fatalf("disable method: %v", err)
	}
	ord := f.seedOrder(t, 5000, "cod")

	_, err := f.svc.ProcessPayment(ctx, checkoutdomain.PaymentRequest{OrderID: ord.ID})
	if !errors.Is(err, gatewaydomain.ErrGatewayNotFound) {
		t.Fatalf("expected ErrGatewayNotFound, got %v", err)
	}
}

func TestDuplicateTriggerLogsInformationalEntry(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "cod", "Cash on Delivery", nil)
	ord := f.seedOrder(t, 5000, "cod")

	if _, err := f.svc.ProcessPayment(ctx, checkoutdomain.PaymentRequest{OrderID: ord.ID}); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	before, err := f.logs.ListByOrder(ctx, f.db, ord.ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}

	_, err = f.svc.ProcessPayment(ctx, checkoutdomain.PaymentRequest{OrderID: ord.ID})
	if !errors.Is(err, gatewaydomain.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}

	after, err := f.logs.ListByOrder(ctx, f.db, ord.ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(after) != len(before)+1 {
		t.Fatalf("duplicate trigger must add one entry, had %d now %d", len(before), len(after))
	}
	last := after[len(after)-1]
	if last.IsSuccess {
		t.Fatal("duplicate trigger entry must not be a success entry")
	}
	if !strings.Contains(last.Message, "already processed") {
		t.Fatalf("unexpected duplicate entry message %q", last.Message)
	}
	if n := len(f.successEntries(t, ord.ID)); n != 1 {
		t.Fatalf("expected exactly one success entry, got %d", n)
	}
}

func TestMakePrimaryProfileDemotesSiblings(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	customerID := f.node.Generate()

	first := &profiledomain.Profile{
		ID:          f.node.Generate(),
		CustomerID:  customerID,
		PaymentCode: "stripe",
		CardBrand:   "visa",
		CardLast4:   "4242",
		IsPrimary:   true,
	}
	second := &profiledomain.Profile{
		ID:          f.node.Generate(),
		CustomerID:  customerID,
		PaymentCode: "square",
		CardBrand:   "mastercard",
		CardLast4:   "4444",
	}
	for _, p := range []*profiledomain.Profile{first, second} {
		if err := f.profiles.Upsert(ctx, f.db, p); err != nil {
			t.Fatalf("upsert profile: %v", err)
		}
	}

	if err := f.svc.MakePrimaryProfile(ctx, "square", customerID); err != nil {
		t.Fatalf("make primary: %v", err)
	}

	profiles, err := f.svc.ListProfiles(ctx, customerID)
	if err != nil {
		t.Fatalf("list profiles: %v", err)
	}
	for _, p := range profiles {
		switch p.PaymentCode {
		case "square":
			if !p.IsPrimary {
				t.Fatal("promoted profile must be primary")
			}
		case "stripe":
			if p.IsPrimary {
				t.Fatal("sibling profile must be demoted")
			}
		}
	}

	err = f.svc.MakePrimaryProfile(ctx, "paypal", customerID)
	if !errors.Is(err, profiledomain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a missing profile, got %v", err)
	}
}

func TestDeletePaymentProfileMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	f.seedMethod(t, "stripe", "Stripe", map[string]any{"transaction_mode": "test"})

	customerID := f.node.Generate()
	if err := f.svc.DeletePaymentProfile(ctx, "stripe", customerID); err != nil {
		t.Fatalf("missing profile must delete as a no-op, got %v", err)
	}
}
