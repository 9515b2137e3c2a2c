package gateway

import (
	"github.com/smallbiznis/payway/internal/gateway/base"
	"github.com/smallbiznis/payway/internal/gateway/domain"
	"github.com/smallbiznis/payway/internal/gateway/plugins/authorizenet"
	"github.com/smallbiznis/payway/internal/gateway/plugins/cod"
	"github.com/smallbiznis/payway/internal/gateway/plugins/mollie"
	"github.com/smallbiznis/payway/internal/gateway/plugins/paypal"
	"github.com/smallbiznis/payway/internal/gateway/plugins/square"
	"github.com/smallbiznis/payway/internal/gateway/plugins/stripe"
	"github.com/smallbiznis/payway/internal/gateway/registry"
	"go.uber.org/fx"
)

type gatewayResult struct {
	fx.Out

	Gateway domain.Gateway `group:"gateways"`
}

var Module = fx.Module("gateway",
	fx.Provide(
		base.New,
		registry.New,
		func(b *base.Base) gatewayResult {
			return gatewayResult{Gateway: cod.New(b)}
		},
		func(p stripe.Params) gatewayResult {
			return gatewayResult{Gateway: stripe.New(p)}
		},
		func(p paypal.Params) gatewayResult {
			return gatewayResult{Gateway: paypal.New(p)}
		},
		func(p authorizenet.Params) gatewayResult {
			return gatewayResult{Gateway: authorizenet.New(p)}
		},
		func(p square.Params) gatewayResult {
			return gatewayResult{Gateway: square.New(p)}
		},
		func(p mollie.Params) gatewayResult {
			return gatewayResult{Gateway: mollie.New(p)}
		},
	),
)
