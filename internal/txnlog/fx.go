package txnlog

import (
	"github.com/smallbiznis/payway/internal/txnlog/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("txnlog",
	fx.Provide(repository.Provide),
)
