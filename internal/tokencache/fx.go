package tokencache

import "go.uber.org/fx"

var Module = fx.Module("tokencache",
	fx.Provide(New),
)
