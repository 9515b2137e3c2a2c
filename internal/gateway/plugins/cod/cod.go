package cod

import (
	"context"

	"github.com/smallbiznis/payway/internal/gateway/base"
	"github.com/smallbiznis/payway/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
)

// Gateway takes payment on delivery: no provider call, the order completes
// immediately and the money is collected out of band. Nothing to refund
// through a provider, so the capability interfaces stay unimplemented.
type Gateway struct {
	base *base.Base
}

func New(b *base.Base) *Gateway {
	return &Gateway{base: b}
}

func (g *Gateway) Code() string { return "cod" }
func (g *Gateway) Name() string { return "Cash on Delivery" }

func (g *Gateway) IsApplicable(orderTotal int64, cfg domain.Config) bool {
	if max := cfg.Settings.Int64("maximum_order_total"); max > 0 && orderTotal > max {
		return false
	}
	return g.base.IsApplicable(orderTotal, cfg)
}

func (g *Gateway) ProcessPaymentForm(ctx context.Context, form map[string]string, cfg domain.Config, ord *orderdomain.Order) (*domain.ProcessResult, error) {
	if err := g.base.RequireMethodMatch(cfg, ord); err != nil {
		return nil, err
	}
	if err := g.base.RequireApplicable(g, cfg, ord); err != nil {
		return nil, err
	}

	res := &domain.ProcessResult{
		State:   domain.StateSucceeded,
		Message: "payment will be collected on delivery",
	}
	if err := g.base.FinishPayment(ctx, cfg, ord, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (g *Gateway) RegisterEntryPoints() map[string]domain.EntryPointHandler { return nil }

func (g *Gateway) CompletesPaymentOnClient() bool { return false }

func (g *Gateway) SettingsFields() []domain.SettingsField {
	return []domain.SettingsField{
		{Key: "minimum_order_total", Label: "Minimum order total", Type: "amount"},
		{Key: "maximum_order_total", Label: "Maximum order total", Type: "amount"},
		{Key: "order_status", Label: "Order status after checkout", Type: "text"},
	}
}
