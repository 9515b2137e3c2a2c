package method

import (
	gatewaydomain "github.com/smallbiznis/payway/internal/gateway/domain"
	"github.com/smallbiznis/payway/internal/method/repository"
	"github.com/smallbiznis/payway/internal/method/service"
	"go.uber.org/fx"
)

var Module = fx.Module("method",
	fx.Provide(
		repository.Provide,
		service.New,
		func(s service.Service) gatewaydomain.MethodSource { return s },
	),
)
