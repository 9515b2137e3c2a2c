package checkout

import (
	"github.com/smallbiznis/payway/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout",
	fx.Provide(service.New),
)
