package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/payway/internal/gateway/domain"
	obsmetrics "github.com/smallbiznis/payway/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params receives every gateway plugin through the "gateways" value group.
type Params struct {
	fx.In

	Logger   *zap.Logger
	Methods  domain.MethodSource
	Gateways []domain.Gateway    `group:"gateways"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type entryPointBinding struct {
	gateway domain.Gateway
	handler domain.EntryPointHandler
}

// Registry is the dispatch hub: it maps codes to gateway plugins and entry
// point names to their handlers. The set of plugins is fixed at construction;
// lookup tables build lazily on first use.
type Registry struct {
	log     *zap.Logger
	methods domain.MethodSource
	metrics *obsmetrics.Metrics

	registered []domain.Gateway

	buildOnce   sync.Once
	gateways    map[string]domain.Gateway
	entryPoints map[string]entryPointBinding
}

func New(p Params) *Registry {
	return &Registry{
		log:        p.Logger.Named("gateway.registry"),
		methods:    p.Methods,
		metrics:    p.Metrics,
		registered: p.Gateways,
	}
}

func (r *Registry) build() {
	r.gateways = make(map[string]domain.Gateway, len(r.registered))
	r.entryPoints = make(map[string]entryPointBinding)

	for _, gw := range r.registered {
		code := gw.Code()
		if code == "" {
			code = slug.Make(gw.Name())
		}
		if _, exists := r.gateways[code]; exists {
			// Last registration wins, matching plugin override semantics.
			r.log.Warn("gateway code collision, overriding", zap.String("code", code))
		}
		r.gateways[code] = gw

		for name, handler := range gw.RegisterEntryPoints() {
			if _, exists := r.entryPoints[name]; exists {
				r.log.Warn("entry point collision, overriding",
					zap.String("entry_point", name),
					zap.String("code", code),
				)
			}
			r.entryPoints[name] = entryPointBinding{gateway: gw, handler: handler}
		}
	}
}

// FindGateway resolves a plugin by code.
func (r *Registry) FindGateway(code string) (domain.Gateway, error) {
	r.buildOnce.Do(r.build)
	gw, ok := r.gateways[code]
	if !ok {
		return nil, domain.ErrGatewayNotFound
	}
	return gw, nil
}

// ListGateways returns every registered plugin.
func (r *Registry) ListGateways() []domain.Gateway {
	r.buildOnce.Do(r.build)
	out := make([]domain.Gateway, 0, len(r.gateways))
	for _, gw := range r.gateways {
		out = append(out, gw)
	}
	return out
}

// Resolve returns the plugin together with its enabled configuration. A
// disabled or unknown method resolves to ErrGatewayNotFound.
func (r *Registry) Resolve(ctx context.Context, code string) (domain.Gateway, *domain.Config, error) {
	gw, err := r.FindGateway(code)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := r.methods.ByCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	return gw, cfg, nil
}

// RunEntryPoint dispatches an inbound callback URL. The name must belong to a
// gateway whose payment method is currently enabled; anything else is an
// entry point miss, surfaced to the HTTP layer as 403.
func (r *Registry) RunEntryPoint(ctx context.Context, name string, rest []string) (*domain.EntryPointResponse, error) {
	r.buildOnce.Do(r.build)

	binding, ok := r.entryPoints[name]
	if !ok {
		return nil, domain.ErrEntryPointNotFound
	}
	cfg, err := r.methods.ByCode(ctx, binding.gateway.Code())
	if errors.Is(err, domain.ErrGatewayNotFound) {
		return nil, domain.ErrEntryPointNotFound
	}
	if err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.RecordEntryPointHit(ctx, binding.gateway.Code(), name)
	}
	r.log.Info("entry point hit",
		zap.String("entry_point", name),
		zap.String("gateway", binding.gateway.Code()),
	)
	return binding.handler(ctx, *cfg, rest)
}
