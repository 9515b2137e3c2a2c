package registry

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/smallbiznis/payway/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
	"go.uber.org/zap"
)

type fakeGateway struct {
	code        string
	name        string
	entryPoints map[string]domain.EntryPointHandler
}

func (g *fakeGateway) Code() string { return g.code }
func (g *fakeGateway) Name() string { return g.name }
func (g *fakeGateway) IsApplicable(orderTotal int64, cfg domain.Config) bool {
	return cfg.Settings.MinimumOrderTotal() <= orderTotal
}
func (g *fakeGateway) ProcessPaymentForm(ctx context.Context, form map[string]string, cfg domain.Config, ord *orderdomain.Order) (*domain.ProcessResult, error) {
	return &domain.ProcessResult{State: domain.StateSucceeded}, nil
}
func (g *fakeGateway) RegisterEntryPoints() map[string]domain.EntryPointHandler {
	return g.entryPoints
}
func (g *fakeGateway) CompletesPaymentOnClient() bool      { return false }
func (g *fakeGateway) SettingsFields() []domain.SettingsField { return nil }

type fakeMethods struct {
	enabled map[string]domain.Config
}

func (m *fakeMethods) Enabled(ctx context.Context) ([]domain.Config, error) {
	out := make([]domain.Config, 0, len(m.enabled))
	for _, cfg := range m.enabled {
		out = append(out, cfg)
	}
	return out, nil
}

func (m *fakeMethods) ByCode(ctx context.Context, code string) (*domain.Config, error) {
	cfg, ok := m.enabled[code]
	if !ok {
		return nil, domain.ErrGatewayNotFound
	}
	return &cfg, nil
}

func newTestRegistry(gateways []domain.Gateway, methods domain.MethodSource) *Registry {
	return New(Params{
		Logger:   zap.NewNop(),
		Methods:  methods,
		Gateways: gateways,
	})
}

func TestFindGateway(t *testing.T) {
	reg := newTestRegistry(
		[]domain.Gateway{&fakeGateway{code: "paypal", name: "PayPal"}},
		&fakeMethods{},
	)

	if _, err := reg.FindGateway("paypal"); err != nil {
		t.Fatalf("FindGateway(paypal) error: %v", err)
	}
	if _, err := reg.FindGateway("unknown"); !errors.Is(err, domain.ErrGatewayNotFound) {
		t.Fatalf("expected ErrGatewayNotFound, got %v", err)
	}
}

func TestCodeDerivedFromName(t *testing.T) {
	reg := newTestRegistry(
		[]domain.Gateway{&fakeGateway{name: "Authorize.Net AIM"}},
		&fakeMethods{},
	)

	if _, err := reg.FindGateway("authorize-net-aim"); err != nil {
		t.Fatalf("expected slug-derived code to resolve, got %v", err)
	}
}

func TestCodeCollisionLastWins(t *testing.T) {
	first := &fakeGateway{code: "stripe", name: "Stripe v1"}
	second := &fakeGateway{code: "stripe", name: "Stripe v2"}
	reg := newTestRegistry([]domain.Gateway{first, second}, &fakeMethods{})

	gw, err := reg.FindGateway("stripe")
	if err != nil {
		t.Fatalf("FindGateway(stripe) error: %v", err)
	}
	if gw.Name() != "Stripe v2" {
		t.Fatalf("expected last registration to win, got %q", gw.Name())
	}
}

func TestRunEntryPoint(t *testing.T) {
	handled := false
	gw := &fakeGateway{
		code: "paypal",
		name: "PayPal",
		entryPoints: map[string]domain.EntryPointHandler{
			"paypal_return": func(ctx context.Context, cfg domain.Config, rest []string) (*domain.EntryPointResponse, error) {
				handled = true
				if len(rest) != 1 || rest[0] != "123" {
					t.Fatalf("unexpected rest segments: %v", rest)
				}
				return &domain.EntryPointResponse{Status: http.StatusFound, RedirectURL: "/orders/123"}, nil
			},
		},
	}
	methods := &fakeMethods{enabled: map[string]domain.Config{
		"paypal": {Code: "paypal", Name: "PayPal"},
	}}
	reg := newTestRegistry([]domain.Gateway{gw}, methods)

	res, err := reg.RunEntryPoint(context.Background(), "paypal_return", []string{"123"})
	if err != nil {
		t.Fatalf("RunEntryPoint error: %v", err)
	}
	if !handled {
		t.Fatal("handler was not invoked")
	}
	if res.Status != http.StatusFound {
		t.Fatalf("expected 302, got %d", res.Status)
	}
}

func TestRunEntryPointUnknownName(t *testing.T) {
	reg := newTestRegistry(nil, &fakeMethods{})

	if _, err := reg.RunEntryPoint(context.Background(), "nope", nil); !errors.Is(err, domain.ErrEntryPointNotFound) {
		t.Fatalf("expected ErrEntryPointNotFound, got %v", err)
	}
}

func TestRunEntryPointDisabledMethod(t *testing.T) {
	gw := &fakeGateway{
		code: "mollie",
		name: "Mollie",
		entryPoints: map[string]domain.EntryPointHandler{
			"mollie_notify": func(ctx context.Context, cfg domain.Config, rest []string) (*domain.EntryPointResponse, error) {
				t.Fatal("handler must not run for a disabled method")
				return nil, nil
			},
		},
	}
	reg := newTestRegistry([]domain.Gateway{gw}, &fakeMethods{})

	if _, err := reg.RunEntryPoint(context.Background(), "mollie_notify", nil); !errors.Is(err, domain.ErrEntryPointNotFound) {
		t.Fatalf("expected ErrEntryPointNotFound for disabled method, got %v", err)
	}
}
